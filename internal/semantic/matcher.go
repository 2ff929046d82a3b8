package semantic

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// chunkSplit breaks resume text on sentence ends, newlines, common bullet
// glyphs and pipes.
var chunkSplit = regexp.MustCompile(`[.\n•●▪➢|]`)

// minChunkLen filters out fragments too short to carry meaning.
const minChunkLen = 15

// topHits is how many chunks per candidate contribute to the similarity.
const topHits = 3

// SplitChunks returns the substantive chunks of a document.
func SplitChunks(text string) []string {
	var chunks []string
	for _, part := range chunkSplit.Split(text, -1) {
		part = strings.TrimSpace(part)
		if len(part) > minChunkLen {
			chunks = append(chunks, part)
		}
	}
	return chunks
}

// Document is one candidate's text keyed by a stable identifier.
type Document struct {
	ID   string
	Text string
}

// Result carries the per-candidate outcome of a batch match.
type Result struct {
	// Similarity is in [0, 1]. Candidates with no usable chunks score 0.
	Similarity map[string]float64
	// SkillHits lists required skills found semantically in each
	// candidate's chunks, used as a backstop for literal keyword misses.
	SkillHits map[string][]string
}

// Matcher scores candidate documents against a job description. Vectors are
// cached by text content so repeated chunks, skills and job summaries are
// embedded once across jobs.
type Matcher struct {
	embedder       Embedder
	skillThreshold float64
	logger         *zap.Logger

	mu    sync.Mutex
	cache map[string][]float32
}

// NewMatcher builds a matcher. skillThreshold bounds the cosine similarity
// at which a skill counts as semantically present.
func NewMatcher(embedder Embedder, skillThreshold float64, logger *zap.Logger) *Matcher {
	return &Matcher{
		embedder:       embedder,
		skillThreshold: skillThreshold,
		logger:         logger,
		cache:          make(map[string][]float32),
	}
}

// MatchBatch embeds the job description, the required skills and every
// candidate chunk in at most one backend call (cache misses only), then
// scores each candidate.
func (m *Matcher) MatchBatch(ctx context.Context, jobText string, skills []string, docs []Document) (*Result, error) {
	res := &Result{
		Similarity: make(map[string]float64, len(docs)),
		SkillHits:  make(map[string][]string, len(docs)),
	}

	docChunks := make(map[string][]string, len(docs))
	texts := []string{jobText}
	texts = append(texts, skills...)
	for _, doc := range docs {
		chunks := SplitChunks(doc.Text)
		docChunks[doc.ID] = chunks
		texts = append(texts, chunks...)
		res.Similarity[doc.ID] = 0
	}

	vectors, err := m.embedAll(ctx, texts)
	if err != nil {
		return nil, err
	}

	jobVec := vectors[0]
	skillVecs := vectors[1 : 1+len(skills)]
	rest := vectors[1+len(skills):]

	index := NewIndex()
	for _, doc := range docs {
		chunks := docChunks[doc.ID]
		if len(chunks) == 0 {
			m.logger.Warn("no usable chunks for semantic match", zap.String("candidate", doc.ID))
			continue
		}
		chunkVecs := rest[:len(chunks)]
		rest = rest[len(chunks):]
		if err := index.Add(doc.ID, chunks, chunkVecs); err != nil {
			return nil, err
		}

		res.Similarity[doc.ID] = similarityFromHits(index.Search(doc.ID, jobVec, topHits))
		res.SkillHits[doc.ID] = skillBackstop(skills, skillVecs, chunkVecs, m.skillThreshold)
	}
	return res, nil
}

// embedAll resolves vectors for texts in order, consulting the content-hash
// cache first and embedding only the misses in one batched call.
func (m *Matcher) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	keys := make([]string, len(texts))
	out := make([][]float32, len(texts))

	var missing []string
	var missingIdx []int
	m.mu.Lock()
	for i, text := range texts {
		sum := sha256.Sum256([]byte(text))
		keys[i] = hex.EncodeToString(sum[:])
		if vec, ok := m.cache[keys[i]]; ok {
			out[i] = vec
		} else {
			missing = append(missing, text)
			missingIdx = append(missingIdx, i)
		}
	}
	m.mu.Unlock()

	if len(missing) > 0 {
		vectors, err := m.embedder.EmbedBatch(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("embed batch: %w", err)
		}
		if len(vectors) != len(missing) {
			return nil, fmt.Errorf("embed batch: got %d vectors for %d texts", len(vectors), len(missing))
		}
		m.mu.Lock()
		for j, i := range missingIdx {
			out[i] = vectors[j]
			m.cache[keys[i]] = vectors[j]
		}
		m.mu.Unlock()
	}
	return out, nil
}

// similarityFromHits averages the top chunk distances and maps them to
// [0, 1]. Distance here is squared euclidean between unit vectors, which is
// 2*(1-cosine); the /1.5 divisor keeps moderate matches from collapsing
// to zero.
func similarityFromHits(hits []Hit) float64 {
	if len(hits) == 0 {
		return 0
	}
	var sum float64
	for _, h := range hits {
		dist := 2 * (1 - h.Similarity)
		sim := 1 - dist/1.5
		if sim < 0 {
			sim = 0
		}
		sum += sim
	}
	return sum / float64(len(hits))
}

func skillBackstop(skills []string, skillVecs, chunkVecs [][]float32, threshold float64) []string {
	var hits []string
	for i, skill := range skills {
		for _, cv := range chunkVecs {
			if Cosine(skillVecs[i], cv) >= threshold {
				hits = append(hits, skill)
				break
			}
		}
	}
	return hits
}
