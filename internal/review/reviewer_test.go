package review

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/recruitai/screening-agent/internal/models"
)

// fakeGenerator replays scripted responses and records prompts.
type fakeGenerator struct {
	responses []string
	errs      []error
	calls     int
	prompts   []string
}

func (f *fakeGenerator) GenerateContent(_ context.Context, prompt string, _ bool) (string, error) {
	i := f.calls
	f.calls++
	f.prompts = append(f.prompts, prompt)
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	var resp string
	if i < len(f.responses) {
		resp = f.responses[i]
	}
	return resp, err
}

func stubSleep(t *testing.T) *[]time.Duration {
	t.Helper()
	var slept []time.Duration
	orig := sleep
	sleep = func(d time.Duration) { slept = append(slept, d) }
	t.Cleanup(func() { sleep = orig })
	return &slept
}

func testOptions() Options {
	return Options{Cap: 15, MaxRetries: 3, BackoffBase: 2 * time.Second, MinInterval: time.Second}
}

func candidate(name string) models.Candidate {
	return models.Candidate{
		Filename: name + ".pdf",
		RawText:  "Jane Smith\njane@example.com\n+1 555 0100\nBuilt services in Go.",
		Identity: models.Identity{Name: "Jane Smith", Email: "jane@example.com", Phone: "+1 555 0100"},
		Breakdown: models.ScoreBreakdown{
			Total: 70, MatchedSkills: []string{"Go"}, MissingSkills: []string{},
		},
		Status: models.CandidatePending,
	}
}

const goodResponse = `{
	"status": "Recommended",
	"reasoning": "Strong backend background.",
	"strengths": ["Go services"],
	"weaknesses": [],
	"extracted_skills": ["Go"],
	"hobbies_and_achievements": ["Marathon runner"],
	"achievement_bonus": 5,
	"email": "model@example.com"
}`

func newTestReviewer(t *testing.T, gen Generator, rateLimited func(error) bool) *Reviewer {
	t.Helper()
	r, err := NewReviewer(gen, rateLimited, testOptions(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestReviewMergesResult(t *testing.T) {
	stubSleep(t)
	gen := &fakeGenerator{responses: []string{goodResponse}}
	r := newTestReviewer(t, gen, nil)

	out := r.ReviewAll(context.Background(), "Backend role", []models.Candidate{candidate("a")})

	c := out[0]
	if !c.Reviewed || c.Review == nil {
		t.Fatal("candidate should be marked reviewed")
	}
	if c.Review.Status != "Recommended" {
		t.Errorf("status = %q", c.Review.Status)
	}
	if c.Breakdown.AchievementBonus != 5 || c.Breakdown.Total != 75 {
		t.Errorf("bonus merge: bonus=%v total=%v, want 5 and 75", c.Breakdown.AchievementBonus, c.Breakdown.Total)
	}
	// Local extraction is authoritative for contact details.
	if c.Identity.Email != "jane@example.com" {
		t.Errorf("email overwritten by model output: %q", c.Identity.Email)
	}
}

func TestReviewAnonymizesPrompt(t *testing.T) {
	stubSleep(t)
	gen := &fakeGenerator{responses: []string{goodResponse}}
	r := newTestReviewer(t, gen, nil)

	r.ReviewAll(context.Background(), "Backend role", []models.Candidate{candidate("a")})

	prompt := gen.prompts[0]
	for _, leaked := range []string{"jane@example.com", "+1 555 0100", "Jane Smith"} {
		if strings.Contains(prompt, leaked) {
			t.Errorf("prompt leaks %q", leaked)
		}
	}
	for _, masked := range []string{"[EMAIL]", "[PHONE]", "[CANDIDATE]"} {
		if !strings.Contains(prompt, masked) {
			t.Errorf("prompt missing mask %q", masked)
		}
	}
}

func TestReviewMalformedOutputKeepsScore(t *testing.T) {
	stubSleep(t)
	gen := &fakeGenerator{responses: []string{"not json at all"}}
	r := newTestReviewer(t, gen, nil)

	out := r.ReviewAll(context.Background(), "role", []models.Candidate{candidate("a")})
	c := out[0]
	if c.Reviewed || c.Review != nil {
		t.Error("malformed output must not mark the candidate reviewed")
	}
	if c.Breakdown.Total != 70 {
		t.Errorf("score changed on failed review: %v", c.Breakdown.Total)
	}
}

func TestReviewSchemaViolationKeepsScore(t *testing.T) {
	stubSleep(t)
	// Status outside the enum.
	gen := &fakeGenerator{responses: []string{`{"status": "Maybe", "reasoning": "hmm"}`}}
	r := newTestReviewer(t, gen, nil)

	out := r.ReviewAll(context.Background(), "role", []models.Candidate{candidate("a")})
	if out[0].Reviewed {
		t.Error("schema violation must not mark the candidate reviewed")
	}
}

func TestReviewRetriesOnRateLimitOnly(t *testing.T) {
	slept := stubSleep(t)
	quota := errors.New("rate limited")
	gen := &fakeGenerator{
		errs:      []error{quota, quota, nil},
		responses: []string{"", "", goodResponse},
	}
	r := newTestReviewer(t, gen, func(err error) bool { return errors.Is(err, quota) })

	out := r.ReviewAll(context.Background(), "role", []models.Candidate{candidate("a")})
	if !out[0].Reviewed {
		t.Fatal("review should succeed on the third attempt")
	}
	if gen.calls != 3 {
		t.Errorf("calls = %d, want 3", gen.calls)
	}
	// Linear backoff: base*1 then base*2.
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(*slept) != len(want) || (*slept)[0] != want[0] || (*slept)[1] != want[1] {
		t.Errorf("backoff waits = %v, want %v", *slept, want)
	}
}

func TestReviewNoRetryOnOtherErrors(t *testing.T) {
	stubSleep(t)
	gen := &fakeGenerator{errs: []error{errors.New("bad request")}}
	r := newTestReviewer(t, gen, func(error) bool { return false })

	out := r.ReviewAll(context.Background(), "role", []models.Candidate{candidate("a")})
	if gen.calls != 1 {
		t.Errorf("calls = %d, want 1 (non-quota errors are not retried)", gen.calls)
	}
	if out[0].Reviewed {
		t.Error("failed review must leave the candidate score-only")
	}
}

func TestReviewCapAndSpacing(t *testing.T) {
	slept := stubSleep(t)
	var responses []string
	for i := 0; i < 20; i++ {
		responses = append(responses, goodResponse)
	}
	gen := &fakeGenerator{responses: responses}

	opts := testOptions()
	opts.Cap = 3
	r, err := NewReviewer(gen, nil, opts, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	var cands []models.Candidate
	for i := 0; i < 5; i++ {
		cands = append(cands, candidate(string(rune('a'+i))))
	}
	out := r.ReviewAll(context.Background(), "role", cands)

	if gen.calls != 3 {
		t.Errorf("calls = %d, want cap of 3", gen.calls)
	}
	for i, c := range out[3:] {
		if c.Reviewed {
			t.Errorf("candidate %d beyond cap was reviewed", i+3)
		}
	}
	// Two pauses between three sequential calls.
	if len(*slept) != 2 {
		t.Fatalf("pauses = %v, want 2 pauses", *slept)
	}
	for _, d := range *slept {
		if d < time.Second {
			t.Errorf("pause %v shorter than minimum interval", d)
		}
	}
}

func TestReviewBonusClamped(t *testing.T) {
	stubSleep(t)
	resp := `{"status": "Recommended", "reasoning": "ok", "achievement_bonus": 9}`
	gen := &fakeGenerator{responses: []string{resp}}
	r := newTestReviewer(t, gen, nil)

	c := candidate("a")
	c.Breakdown.Total = 97
	out := r.ReviewAll(context.Background(), "role", []models.Candidate{c})
	if out[0].Breakdown.Total != 100 {
		t.Errorf("total = %v, want clamp at 100", out[0].Breakdown.Total)
	}
}

func TestReviewAdvisoryContactFillsGap(t *testing.T) {
	stubSleep(t)
	gen := &fakeGenerator{responses: []string{goodResponse}}
	r := newTestReviewer(t, gen, nil)

	c := candidate("a")
	c.Identity.Email = ""
	out := r.ReviewAll(context.Background(), "role", []models.Candidate{c})
	if out[0].Identity.Email != "model@example.com" {
		t.Errorf("email = %q, want model value to fill the gap", out[0].Identity.Email)
	}
}

func TestReviewInputNotMutated(t *testing.T) {
	stubSleep(t)
	gen := &fakeGenerator{responses: []string{goodResponse}}
	r := newTestReviewer(t, gen, nil)

	in := []models.Candidate{candidate("a")}
	r.ReviewAll(context.Background(), "role", in)
	if in[0].Reviewed || in[0].Review != nil || in[0].Breakdown.Total != 70 {
		t.Error("input slice was mutated")
	}
}
