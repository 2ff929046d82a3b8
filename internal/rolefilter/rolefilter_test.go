package rolefilter

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
)

// fakeClassifier scores by signal lookup, defaulting to low relevance.
type fakeClassifier struct {
	scores map[string]float64
	errFor map[string]error
	calls  []string
}

func (f *fakeClassifier) Relevance(_ context.Context, _, signal string) (float64, error) {
	f.calls = append(f.calls, signal)
	if err := f.errFor[signal]; err != nil {
		return 0, err
	}
	if score, ok := f.scores[signal]; ok {
		return score, nil
	}
	return 0.1, nil
}

func TestMatchBestSignalWins(t *testing.T) {
	c := &fakeClassifier{scores: map[string]float64{"Backend Engineer": 0.95}}
	f := NewFilter(c, 0.6, zap.NewNop())

	d := f.Match(context.Background(), "Backend Engineer", "Sales position",
		"Backend Engineer\nBuilt Go services for five years at Acme.")
	if !d.IsMatch || d.Source != "classifier" {
		t.Fatalf("decision = %+v, want classifier match", d)
	}
	if d.Confidence != 0.95 {
		t.Errorf("confidence = %v, want the best signal score 0.95", d.Confidence)
	}
	if d.DetectedRole != "Backend Engineer" {
		t.Errorf("detected role = %q", d.DetectedRole)
	}
	if len(c.calls) != 3 { // subject + two resume lines, scored separately
		t.Errorf("classifier calls = %d (%q), want one per signal", len(c.calls), c.calls)
	}
}

func TestMatchBelowThresholdDrops(t *testing.T) {
	c := &fakeClassifier{}
	f := NewFilter(c, 0.6, zap.NewNop())

	d := f.Match(context.Background(), "Backend Engineer", "Sales position", "10 years in retail sales")
	if d.IsMatch {
		t.Error("low-relevance candidate should be dropped")
	}
	if d.Confidence != 0.1 {
		t.Errorf("confidence = %v", d.Confidence)
	}
	if d.DetectedRole == "" {
		t.Error("a scored decision should carry its best signal")
	}
}

func TestNoSignalPasses(t *testing.T) {
	c := &fakeClassifier{}
	f := NewFilter(c, 0.6, zap.NewNop())

	d := f.Match(context.Background(), "Backend Engineer", "", "")
	if !d.IsMatch || d.Source != "no-signal" {
		t.Errorf("decision = %+v, want permissive no-signal match", d)
	}
	if len(c.calls) != 0 {
		t.Errorf("classifier called %d times with no signal", len(c.calls))
	}
}

func TestEmptyRolePasses(t *testing.T) {
	f := NewFilter(&fakeClassifier{}, 0.6, zap.NewNop())
	if d := f.Match(context.Background(), "  ", "subject", "some resume text here"); !d.IsMatch {
		t.Error("blank role title must pass everything")
	}
}

func TestClassifierErrorPasses(t *testing.T) {
	down := errors.New("backend down")
	c := &fakeClassifier{errFor: map[string]error{
		"Application":         down,
		"Go developer resume": down,
	}}
	f := NewFilter(c, 0.6, zap.NewNop())

	d := f.Match(context.Background(), "Backend Engineer", "Application", "Go developer resume")
	if !d.IsMatch || d.Source != "classifier-error" {
		t.Errorf("decision = %+v, classifier failure must not reject", d)
	}
}

func TestPartialClassifierErrorUsesScoredSignals(t *testing.T) {
	c := &fakeClassifier{
		scores: map[string]float64{"Backend Engineer": 0.9},
		errFor: map[string]error{"Sales position": errors.New("backend down")},
	}
	f := NewFilter(c, 0.6, zap.NewNop())

	d := f.Match(context.Background(), "Backend Engineer", "Sales position", "Backend Engineer")
	if !d.IsMatch || d.Source != "classifier" || d.Confidence != 0.9 {
		t.Errorf("decision = %+v, want best of the signals that did score", d)
	}
}

func TestBuildSignals(t *testing.T) {
	long := strings.Repeat("x", 200)
	var lines []string
	for i := 0; i < 30; i++ {
		lines = append(lines, "line with content")
	}
	resume := long + "\n" + "ab\n" + strings.Join(lines, "\n")

	got := buildSignals("Re: Application for Software Engineer resume", resume)

	if len(got) != 16 { // subject + 15 resume lines
		t.Fatalf("signals = %d, want 16", len(got))
	}
	if strings.Contains(got[0], "Application") || strings.Contains(got[0], "Re:") {
		t.Errorf("subject noise not stripped: %q", got[0])
	}
	if !strings.Contains(got[0], "Software Engineer") {
		t.Errorf("role words lost from subject: %q", got[0])
	}
	for _, sig := range got {
		if sig == "ab" {
			t.Error("trivial lines should be skipped")
		}
		if len(sig) > 120 {
			t.Errorf("signal exceeds 120 chars: %d", len(sig))
		}
	}
}
