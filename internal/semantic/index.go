// Package semantic matches resume content against the job description with
// text embeddings. Vectors live in a small in-memory index scoped to a
// single job run; nothing is persisted across jobs.
package semantic

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Embedder turns texts into dense vectors. Implementations batch where the
// backend allows it.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type entry struct {
	candidateID string
	text        string
	vector      []float32
}

// Index is an in-memory vector store keyed by content hash so identical
// chunks are embedded and stored once.
type Index struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{entries: make(map[string]entry)}
}

func chunkKey(candidateID, text string) string {
	sum := sha256.Sum256([]byte(candidateID + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// Add stores chunk vectors for a candidate. len(texts) must equal
// len(vectors).
func (ix *Index) Add(candidateID string, texts []string, vectors [][]float32) error {
	if len(texts) != len(vectors) {
		return fmt.Errorf("semantic: %d texts but %d vectors", len(texts), len(vectors))
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for i, text := range texts {
		ix.entries[chunkKey(candidateID, text)] = entry{
			candidateID: candidateID,
			text:        text,
			vector:      vectors[i],
		}
	}
	return nil
}

// Hit is one scored chunk from a search.
type Hit struct {
	Text       string
	Similarity float64
}

// Search returns the top-k chunks for a candidate ranked by cosine
// similarity to the query vector.
func (ix *Index) Search(candidateID string, query []float32, k int) []Hit {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var hits []Hit
	for _, e := range ix.entries {
		if e.candidateID != candidateID {
			continue
		}
		hits = append(hits, Hit{Text: e.text, Similarity: Cosine(query, e.vector)})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// Cosine computes cosine similarity between two vectors. Mismatched or
// zero-norm vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
