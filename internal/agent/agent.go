// Package agent orchestrates the screening pipeline: extract requirements,
// parse and gate resumes, score, review and rank, then publish the result to
// the job store. Everything after Submit runs in the background; callers
// observe progress by polling the store.
package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/recruitai/screening-agent/internal/ingestion"
	"github.com/recruitai/screening-agent/internal/jobstore"
	"github.com/recruitai/screening-agent/internal/models"
	"github.com/recruitai/screening-agent/internal/ranking"
	"github.com/recruitai/screening-agent/internal/requirements"
	"github.com/recruitai/screening-agent/internal/rolefilter"
	"github.com/recruitai/screening-agent/internal/scoring"
	"github.com/recruitai/screening-agent/internal/semantic"
	"github.com/recruitai/screening-agent/internal/textutil"
)

// RequirementsExtractor derives structured requirements from a job
// description.
type RequirementsExtractor interface {
	Extract(ctx context.Context, jdText string) (models.JobRequirements, error)
}

// RoleMatcher gates documents on relevance to the advertised role.
type RoleMatcher interface {
	Match(ctx context.Context, roleTitle, subject, resumeText string) rolefilter.Decision
}

// SemanticMatcher scores all candidate documents against the job
// description in one batch.
type SemanticMatcher interface {
	MatchBatch(ctx context.Context, jobText string, skills []string, docs []semantic.Document) (*semantic.Result, error)
}

// CandidateReviewer runs the deep review pass over the leading candidates.
type CandidateReviewer interface {
	ReviewAll(ctx context.Context, jobSummary string, candidates []models.Candidate) []models.Candidate
}

// Exporter writes the report packet to disk. A nil exporter skips the step.
type Exporter interface {
	Export(jobTitle string, result *models.JobResult, originals map[string][]byte) (string, error)
}

// Options carry the pipeline tunables.
type Options struct {
	Workers     int
	DefaultTopN int
	// JobTimeout bounds one whole job run; zero disables the limit.
	JobTimeout time.Duration
}

// Pipeline wires the stages together.
type Pipeline struct {
	store        jobstore.Store
	extractor    ingestion.Extractor
	requirements RequirementsExtractor
	role         RoleMatcher
	matcher      SemanticMatcher
	scorer       *scoring.Scorer
	reviewer     CandidateReviewer
	exporter     Exporter
	opts         Options
	logger       *zap.Logger
}

// New assembles a pipeline.
func New(store jobstore.Store, extractor ingestion.Extractor, reqs RequirementsExtractor,
	role RoleMatcher, matcher SemanticMatcher, scorer *scoring.Scorer,
	reviewer CandidateReviewer, exporter Exporter, opts Options, logger *zap.Logger) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 5
	}
	if opts.DefaultTopN <= 0 {
		opts.DefaultTopN = 5
	}
	return &Pipeline{
		store:        store,
		extractor:    extractor,
		requirements: reqs,
		role:         role,
		matcher:      matcher,
		scorer:       scorer,
		reviewer:     reviewer,
		exporter:     exporter,
		opts:         opts,
		logger:       logger,
	}
}

// SubmitRequest is one screening job.
type SubmitRequest struct {
	JDText string
	Files  []models.SourcedFile
	TopN   int
}

// Submit registers the job and kicks off the background run. It returns the
// job identifier immediately; progress is observed through the store.
func (p *Pipeline) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	jobID := uuid.NewString()
	now := time.Now().UTC()
	job := models.Job{
		ID:          jobID,
		Status:      models.JobProcessing,
		Progress:    0,
		CurrentStep: "Queued",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.store.Create(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	go p.run(jobID, req)
	return jobID, nil
}

// run executes the whole pipeline for one job. It always ends the job with
// exactly one terminal transition; the store's terminal guard makes a second
// attempt a no-op.
func (p *Pipeline) run(jobID string, req SubmitRequest) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pipeline panicked", zap.String("job", jobID), zap.Any("panic", r))
			p.fail(jobID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	ctx := context.Background()
	if p.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.JobTimeout)
		defer cancel()
	}

	log := p.logger.With(zap.String("job", jobID))
	start := time.Now()

	p.step(jobID, 5, "Extracting job requirements")
	reqs, err := p.requirements.Extract(ctx, req.JDText)
	if err != nil {
		if errors.Is(err, requirements.ErrEmptyJobDescription) {
			p.fail(jobID, "job description is empty")
		} else {
			p.fail(jobID, fmt.Sprintf("extract requirements: %v", err))
		}
		return
	}
	log.Info("requirements extracted",
		zap.String("title", reqs.Title), zap.Int("skills", len(reqs.Skills)))

	p.step(jobID, 10, "Parsing resumes")
	candidates, rejected := p.parseAll(ctx, reqs.Title, req.Files)
	if len(candidates) == 0 {
		p.fail(jobID, "no readable resumes in input")
		return
	}
	if ctx.Err() != nil {
		p.fail(jobID, "job timed out")
		return
	}

	p.step(jobID, 45, "Matching resumes against the role")
	sims, skillHits := p.matchAll(ctx, reqs, candidates, log)

	p.step(jobID, 60, "Scoring candidates")
	var survivors []models.Candidate
	for _, c := range candidates {
		c.Similarity = sims[c.Filename]
		c.Breakdown = p.scorer.Score(c.RawText, reqs, c.Similarity, c.PageCount)
		p.scorer.ApplyBackstop(&c.Breakdown, reqs, skillHits[c.Filename])
		if c.Breakdown.IsRejected {
			c.Status = models.CandidateRejected
			rejected = append(rejected, models.RejectedCandidate{
				Filename: c.Filename,
				Name:     c.Identity.Name,
				Reason:   c.Breakdown.RejectionReason,
			})
			continue
		}
		survivors = append(survivors, c)
	}
	if ctx.Err() != nil {
		p.fail(jobID, "job timed out")
		return
	}

	// Pre-review order decides who gets the bounded review slots.
	sort.SliceStable(survivors, func(i, j int) bool {
		a, b := survivors[i], survivors[j]
		if a.Breakdown.Total != b.Breakdown.Total {
			return a.Breakdown.Total > b.Breakdown.Total
		}
		return a.Similarity > b.Similarity
	})

	p.step(jobID, 70, "Reviewing top candidates")
	survivors = p.reviewer.ReviewAll(ctx, reviewSummary(reqs), survivors)

	p.step(jobID, 90, "Ranking candidates")
	topN := req.TopN
	if topN <= 0 {
		topN = p.opts.DefaultTopN
	}
	selected, notSelected := ranking.Rank(survivors, topN)

	result := &models.JobResult{
		JobTitle:      reqs.Title,
		Selected:      selected,
		NotSelected:   notSelected,
		Rejected:      rejected,
		RejectedCount: len(rejected),
		GeneratedAt:   time.Now().UTC(),
	}

	if p.exporter != nil {
		p.step(jobID, 95, "Writing report packet")
		originals := make(map[string][]byte, len(req.Files))
		for _, f := range req.Files {
			originals[f.Filename] = f.Data
		}
		path, err := p.exporter.Export(reqs.Title, result, originals)
		if err != nil {
			log.Warn("report export failed", zap.Error(err))
		} else {
			result.ReportPath = path
		}
	}

	p.complete(jobID, result)
	log.Info("job completed",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("selected", len(selected)),
		zap.Int("not_selected", len(notSelected)),
		zap.Int("rejected", len(rejected)))
}

// parseAll extracts text from every input concurrently. Unreadable or
// off-role documents become rejection rows; only a fully empty yield is
// fatal to the job.
func (p *Pipeline) parseAll(ctx context.Context, roleTitle string, files []models.SourcedFile) ([]models.Candidate, []models.RejectedCandidate) {
	files = ingestion.DedupFilenames(files)

	type slot struct {
		candidate *models.Candidate
		rejected  *models.RejectedCandidate
	}
	slots := make([]slot, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			text, pages := p.extractor.Extract(gctx, f.Data, ingestion.MimeHint(f.Filename))
			if text == "" {
				slots[i].rejected = &models.RejectedCandidate{
					Filename: f.Filename,
					Name:     textutil.ExtractName(text, f.Filename),
					Reason:   "Unreadable file",
				}
				return nil
			}

			cleaned := textutil.CleanText(text)
			identity := models.Identity{
				Name:  textutil.ExtractName(text, f.Filename),
				Email: textutil.ExtractEmail(text),
				Phone: textutil.ExtractPhone(text),
			}

			if d := p.role.Match(gctx, roleTitle, f.Subject, text); !d.IsMatch {
				slots[i].rejected = &models.RejectedCandidate{
					Filename: f.Filename,
					Name:     identity.Name,
					Reason:   "Role mismatch",
				}
				return nil
			}

			sum := sha256.Sum256(f.Data)
			slots[i].candidate = &models.Candidate{
				Filename:    f.Filename,
				ContentHash: hex.EncodeToString(sum[:]),
				RawText:     cleaned,
				PageCount:   pages,
				Subject:     f.Subject,
				Identity:    identity,
				Status:      models.CandidatePending,
			}
			return nil
		})
	}
	// Workers only ever return nil; failures are absorbed into slots.
	_ = g.Wait()

	var candidates []models.Candidate
	var rejected []models.RejectedCandidate
	// Same-content files under different names are all kept and scored; the
	// hash only flags them for the log and lets downstream caches reuse work.
	seen := make(map[string]string)
	for _, s := range slots {
		switch {
		case s.rejected != nil:
			rejected = append(rejected, *s.rejected)
		case s.candidate != nil:
			if first, ok := seen[s.candidate.ContentHash]; ok {
				p.logger.Info("duplicate resume content",
					zap.String("filename", s.candidate.Filename),
					zap.String("duplicate_of", first))
			} else {
				seen[s.candidate.ContentHash] = s.candidate.Filename
			}
			candidates = append(candidates, *s.candidate)
		}
	}
	return candidates, rejected
}

// matchAll runs the single batched semantic call. A backend failure
// degrades every candidate to zero similarity instead of failing the job.
func (p *Pipeline) matchAll(ctx context.Context, reqs models.JobRequirements, candidates []models.Candidate, log *zap.Logger) (map[string]float64, map[string][]string) {
	docs := make([]semantic.Document, len(candidates))
	for i, c := range candidates {
		docs[i] = semantic.Document{ID: c.Filename, Text: c.RawText}
	}
	res, err := p.matcher.MatchBatch(ctx, semanticQuery(reqs), reqs.Skills, docs)
	if err != nil {
		log.Warn("semantic match failed, scoring without similarity", zap.Error(err))
		return map[string]float64{}, map[string][]string{}
	}
	return res.Similarity, res.SkillHits
}

func semanticQuery(reqs models.JobRequirements) string {
	if reqs.Summary != "" {
		return reqs.Title + "\n" + reqs.Summary
	}
	return reqs.Title
}

func reviewSummary(reqs models.JobRequirements) string {
	s := reqs.Title
	if reqs.Summary != "" {
		s += "\n" + reqs.Summary
	}
	if len(reqs.Skills) > 0 {
		s += "\nKey skills: "
		for i, skill := range reqs.Skills {
			if i > 0 {
				s += ", "
			}
			s += skill
		}
	}
	return s
}

func (p *Pipeline) step(jobID string, progress int, name string) {
	err := p.store.Update(context.Background(), jobID, func(j *models.Job) {
		j.Progress = progress
		j.CurrentStep = name
		j.UpdatedAt = time.Now().UTC()
	})
	if err != nil {
		p.logger.Warn("progress update failed", zap.String("job", jobID), zap.Error(err))
	}
}

func (p *Pipeline) complete(jobID string, result *models.JobResult) {
	err := p.store.Update(context.Background(), jobID, func(j *models.Job) {
		j.Status = models.JobCompleted
		j.Progress = 100
		j.CurrentStep = "Done"
		j.Result = result
		j.UpdatedAt = time.Now().UTC()
	})
	if err != nil {
		p.logger.Error("completing job failed", zap.String("job", jobID), zap.Error(err))
	}
}

func (p *Pipeline) fail(jobID, msg string) {
	err := p.store.Update(context.Background(), jobID, func(j *models.Job) {
		j.Status = models.JobError
		j.CurrentStep = "Failed"
		j.Error = msg
		j.UpdatedAt = time.Now().UTC()
	})
	if err != nil {
		p.logger.Error("failing job failed", zap.String("job", jobID), zap.Error(err))
	}
}
