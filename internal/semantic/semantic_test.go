package semantic

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"go.uber.org/zap"
)

// fakeEmbedder maps known substrings to fixed unit vectors so tests can
// steer similarity without a backend.
type fakeEmbedder struct {
	vectors map[string][]float32
	calls   int
	err     error
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := []float32{0, 0, 1} // default: orthogonal filler
		for key, v := range f.vectors {
			if strings.Contains(text, key) {
				vec = v
				break
			}
		}
		out[i] = vec
	}
	return out, nil
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSplitChunks(t *testing.T) {
	text := "Built APIs in Go for five years. short\n• Led a platform team of six engineers\nab|Designed streaming ingestion with Kafka"
	chunks := SplitChunks(text)
	want := []string{
		"Built APIs in Go for five years",
		"Led a platform team of six engineers",
		"Designed streaming ingestion with Kafka",
	}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks %v, want %d", len(chunks), chunks, len(want))
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk[%d] = %q, want %q", i, chunks[i], want[i])
		}
	}
}

func TestIndexSearchScopedToCandidate(t *testing.T) {
	ix := NewIndex()
	if err := ix.Add("a", []string{"alpha chunk"}, [][]float32{{1, 0}}); err != nil {
		t.Fatal(err)
	}
	if err := ix.Add("b", []string{"beta chunk"}, [][]float32{{1, 0}}); err != nil {
		t.Fatal(err)
	}

	hits := ix.Search("a", []float32{1, 0}, 10)
	if len(hits) != 1 || hits[0].Text != "alpha chunk" {
		t.Errorf("search leaked across candidates: %v", hits)
	}
}

func TestIndexAddLengthMismatch(t *testing.T) {
	ix := NewIndex()
	if err := ix.Add("a", []string{"one", "two"}, [][]float32{{1}}); err == nil {
		t.Error("expected error on text/vector length mismatch")
	}
}

func TestIndexDeduplicatesIdenticalChunks(t *testing.T) {
	ix := NewIndex()
	texts := []string{"repeated chunk here", "repeated chunk here"}
	vecs := [][]float32{{1, 0}, {1, 0}}
	if err := ix.Add("a", texts, vecs); err != nil {
		t.Fatal(err)
	}
	if hits := ix.Search("a", []float32{1, 0}, 10); len(hits) != 1 {
		t.Errorf("identical chunks should be stored once, got %d hits", len(hits))
	}
}

func TestMatchBatchSingleCall(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"backend services": {1, 0, 0},
		"distributed systems in production": {1, 0, 0},
		"watercolor painting techniques":    {0, 1, 0},
	}}
	m := NewMatcher(emb, 0.45, zap.NewNop())

	docs := []Document{
		{ID: "match", Text: "Ten years building distributed systems in production."},
		{ID: "miss", Text: "Deep study of watercolor painting techniques."},
	}
	res, err := m.MatchBatch(context.Background(), "Design backend services", nil, docs)
	if err != nil {
		t.Fatal(err)
	}
	if emb.calls != 1 {
		t.Errorf("embedder called %d times, want exactly 1", emb.calls)
	}
	if res.Similarity["match"] != 1 {
		t.Errorf("aligned candidate similarity = %v, want 1", res.Similarity["match"])
	}
	// Orthogonal vectors give distance 2, mapped similarity 0.
	if res.Similarity["miss"] != 0 {
		t.Errorf("orthogonal candidate similarity = %v, want 0", res.Similarity["miss"])
	}
}

func TestMatchBatchSkillBackstop(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"Kubernetes":                       {1, 0, 0},
		"orchestrated container workloads": {1, 0, 0},
		"Terraform":                        {0, 1, 0},
	}}
	m := NewMatcher(emb, 0.45, zap.NewNop())

	docs := []Document{{ID: "c1", Text: "Previously orchestrated container workloads at scale."}}
	res, err := m.MatchBatch(context.Background(), "job", []string{"Kubernetes", "Terraform"}, docs)
	if err != nil {
		t.Fatal(err)
	}
	hits := res.SkillHits["c1"]
	if len(hits) != 1 || hits[0] != "Kubernetes" {
		t.Errorf("skill backstop = %v, want [Kubernetes]", hits)
	}
}

func TestMatchBatchEmptyDocScoresZero(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{}}
	m := NewMatcher(emb, 0.45, zap.NewNop())

	res, err := m.MatchBatch(context.Background(), "job", nil, []Document{{ID: "empty", Text: "ab. cd"}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Similarity["empty"] != 0 {
		t.Errorf("similarity = %v, want 0 for chunkless doc", res.Similarity["empty"])
	}
}

func TestMatchBatchReusesCachedVectors(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{}}
	m := NewMatcher(emb, 0.45, zap.NewNop())
	docs := []Document{{ID: "a", Text: "a chunk long enough to embed"}}

	if _, err := m.MatchBatch(context.Background(), "job", []string{"Go"}, docs); err != nil {
		t.Fatal(err)
	}
	if _, err := m.MatchBatch(context.Background(), "job", []string{"Go"}, docs); err != nil {
		t.Fatal(err)
	}
	if emb.calls != 1 {
		t.Errorf("embedder called %d times, want 1: repeated content must come from cache", emb.calls)
	}
}

func TestMatchBatchEmbedderError(t *testing.T) {
	m := NewMatcher(&fakeEmbedder{err: errors.New("quota")}, 0.45, zap.NewNop())
	if _, err := m.MatchBatch(context.Background(), "job", nil, []Document{{ID: "a", Text: "some longer chunk of text"}}); err == nil {
		t.Error("expected error to propagate")
	}
}
