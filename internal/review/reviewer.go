// Package review runs the deep qualitative pass: a bounded number of top
// candidates get an individual model review with schema-validated output.
// Review failures degrade a candidate to score-only, never fail the job.
package review

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"github.com/recruitai/screening-agent/internal/models"
	"github.com/recruitai/screening-agent/internal/textutil"
)

// sleep is swapped out in tests.
var sleep = time.Sleep

// Generator produces model output for a prompt.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string, jsonMode bool) (string, error)
}

const (
	maxSummaryLen = 1500
	maxResumeLen  = 3000
	maxBonus      = 10
)

const resultSchema = `{
	"type": "object",
	"required": ["status", "reasoning"],
	"properties": {
		"status": {"type": "string", "enum": ["Recommended", "Potential", "Rejected"]},
		"reasoning": {"type": "string"},
		"strengths": {"type": "array", "items": {"type": "string"}},
		"weaknesses": {"type": "array", "items": {"type": "string"}},
		"extracted_skills": {"type": "array", "items": {"type": "string"}},
		"hobbies_and_achievements": {"type": "array", "items": {"type": "string"}},
		"achievement_bonus": {"type": "number", "minimum": 0, "maximum": 10},
		"email": {"type": "string"},
		"phone": {"type": "string"}
	}
}`

// Options tune the review pass.
type Options struct {
	// Cap bounds how many candidates get a review.
	Cap int
	// MaxRetries bounds attempts per candidate; retries happen only on
	// rate-limit errors.
	MaxRetries int
	// BackoffBase scales linearly with the attempt number.
	BackoffBase time.Duration
	// MinInterval is the pause between consecutive review calls.
	MinInterval time.Duration
}

// Reviewer performs the deep review pass.
type Reviewer struct {
	gen         Generator
	rateLimited func(error) bool
	opts        Options
	schema      *jsonschema.Schema
	logger      *zap.Logger
}

// NewReviewer builds a reviewer. rateLimited classifies backend errors as
// retryable quota rejections.
func NewReviewer(gen Generator, rateLimited func(error) bool, opts Options, logger *zap.Logger) (*Reviewer, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("review-result.json", strings.NewReader(resultSchema)); err != nil {
		return nil, fmt.Errorf("review: add schema: %w", err)
	}
	schema, err := compiler.Compile("review-result.json")
	if err != nil {
		return nil, fmt.Errorf("review: compile schema: %w", err)
	}
	if rateLimited == nil {
		rateLimited = func(error) bool { return false }
	}
	return &Reviewer{gen: gen, rateLimited: rateLimited, opts: opts, schema: schema, logger: logger}, nil
}

const reviewPrompt = `You are screening candidates for this role:
%s

Review the anonymized resume below. Respond with a single JSON object:
  "status": "Recommended", "Potential" or "Rejected"
  "reasoning": short assessment of fit
  "strengths": array of strings
  "weaknesses": array of strings
  "extracted_skills": array of strings
  "hobbies_and_achievements": array of strings, notable items outside work
  "achievement_bonus": number 0-10 for exceptional achievements

Resume:
%s`

// ReviewAll reviews at most Cap candidates from the front of the slice,
// strictly one at a time with MinInterval between calls. The input is not
// mutated; every candidate comes back, reviewed or not.
func (r *Reviewer) ReviewAll(ctx context.Context, jobSummary string, candidates []models.Candidate) []models.Candidate {
	out := make([]models.Candidate, len(candidates))
	for i, c := range candidates {
		out[i] = c.Clone()
	}

	limit := r.opts.Cap
	if limit > len(out) {
		limit = len(out)
	}
	summary := textutil.Truncate(jobSummary, maxSummaryLen)

	for i := 0; i < limit; i++ {
		if ctx.Err() != nil {
			r.logger.Warn("review pass cancelled", zap.Int("reviewed", i))
			break
		}
		if i > 0 {
			sleep(r.opts.MinInterval)
		}
		r.reviewOne(ctx, summary, &out[i])
	}
	return out
}

func (r *Reviewer) reviewOne(ctx context.Context, summary string, c *models.Candidate) {
	prompt := fmt.Sprintf(reviewPrompt, summary, anonymize(c))

	raw, err := r.generateWithRetry(ctx, prompt)
	if err != nil {
		r.logger.Warn("review failed, keeping score-only result",
			zap.String("candidate", c.Filename), zap.Error(err))
		return
	}

	result, err := r.parseResult(raw)
	if err != nil {
		r.logger.Warn("review output rejected",
			zap.String("candidate", c.Filename), zap.Error(err))
		return
	}
	merge(c, result)
}

// generateWithRetry retries only on rate-limit errors, waiting
// BackoffBase*attempt between tries.
func (r *Reviewer) generateWithRetry(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= r.opts.MaxRetries; attempt++ {
		raw, err := r.gen.GenerateContent(ctx, prompt, true)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if !r.rateLimited(err) || attempt == r.opts.MaxRetries {
			break
		}
		wait := r.opts.BackoffBase * time.Duration(attempt)
		r.logger.Info("rate limited, backing off",
			zap.Duration("wait", wait), zap.Int("attempt", attempt))
		sleep(wait)
	}
	return "", lastErr
}

func (r *Reviewer) parseResult(raw string) (models.ReviewResult, error) {
	obj, ok := textutil.ExtractJSONObject(raw)
	if !ok {
		return models.ReviewResult{}, fmt.Errorf("no JSON object in response")
	}

	var loose interface{}
	dec := json.NewDecoder(bytes.NewReader([]byte(obj)))
	dec.UseNumber()
	if err := dec.Decode(&loose); err != nil {
		return models.ReviewResult{}, fmt.Errorf("decode response: %w", err)
	}
	if err := r.schema.Validate(loose); err != nil {
		return models.ReviewResult{}, fmt.Errorf("validate response: %w", err)
	}

	var result models.ReviewResult
	if err := json.Unmarshal([]byte(obj), &result); err != nil {
		return models.ReviewResult{}, fmt.Errorf("unmarshal response: %w", err)
	}
	return result, nil
}

// merge folds a validated review into the candidate. The locally extracted
// identity wins; model contact details only fill gaps. The achievement
// bonus is additive on top of the score, then re-clamped.
func merge(c *models.Candidate, result models.ReviewResult) {
	bonus := result.AchievementBonus
	if bonus < 0 {
		bonus = 0
	}
	if bonus > maxBonus {
		bonus = maxBonus
	}
	result.AchievementBonus = bonus

	c.Review = &result
	c.Reviewed = true
	c.Breakdown.AchievementBonus = bonus
	c.Breakdown.Total = clamp(c.Breakdown.Total+bonus, 0, 100)

	if c.Identity.Email == "" && result.Email != "" {
		c.Identity.Email = result.Email
	}
	if c.Identity.Phone == "" && result.Phone != "" {
		c.Identity.Phone = result.Phone
	}
}

// anonymize masks the candidate's own contact details before the text
// leaves the process.
func anonymize(c *models.Candidate) string {
	text := c.RawText
	if c.Identity.Email != "" {
		text = replaceFold(text, c.Identity.Email, "[EMAIL]")
	}
	if c.Identity.Phone != "" {
		text = replaceFold(text, c.Identity.Phone, "[PHONE]")
	}
	if name := c.Identity.Name; name != "" && name != "Unknown Candidate" {
		text = replaceFold(text, name, "[CANDIDATE]")
	}
	return textutil.Truncate(text, maxResumeLen)
}

// replaceFold is a case-insensitive ReplaceAll for short needles.
func replaceFold(s, needle, repl string) string {
	lower := strings.ToLower(s)
	needle = strings.ToLower(needle)
	var b strings.Builder
	for {
		i := strings.Index(lower, needle)
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		b.WriteString(repl)
		s = s[i+len(needle):]
		lower = lower[i+len(needle):]
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
