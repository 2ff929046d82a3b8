package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/recruitai/screening-agent/internal/agent"
	"github.com/recruitai/screening-agent/internal/jobstore"
	"github.com/recruitai/screening-agent/internal/models"
	"github.com/recruitai/screening-agent/internal/rolefilter"
	"github.com/recruitai/screening-agent/internal/scoring"
	"github.com/recruitai/screening-agent/internal/semantic"
)

type textExtractor struct{}

func (textExtractor) Extract(_ context.Context, data []byte, _ string) (string, int) {
	return string(data), 1
}

type staticRequirements struct{}

func (staticRequirements) Extract(_ context.Context, jd string) (models.JobRequirements, error) {
	return models.JobRequirements{Title: "Backend Engineer", Skills: []string{"Go"}, RequiredYears: 2, Summary: jd}, nil
}

type allowAll struct{}

func (allowAll) Match(context.Context, string, string, string) rolefilter.Decision {
	return rolefilter.Decision{IsMatch: true, Source: "classifier", Confidence: 1}
}

type zeroMatcher struct{}

func (zeroMatcher) MatchBatch(_ context.Context, _ string, _ []string, docs []semantic.Document) (*semantic.Result, error) {
	res := &semantic.Result{Similarity: map[string]float64{}, SkillHits: map[string][]string{}}
	for _, d := range docs {
		res.Similarity[d.ID] = 0.5
	}
	return res, nil
}

type passReviewer struct{}

func (passReviewer) ReviewAll(_ context.Context, _ string, cands []models.Candidate) []models.Candidate {
	out := make([]models.Candidate, len(cands))
	for i, c := range cands {
		out[i] = c.Clone()
		out[i].Reviewed = true
	}
	return out
}

type fakeMail struct {
	files []models.SourcedFile
	err   error
}

func (f fakeMail) FetchAttachments(context.Context, string) ([]models.SourcedFile, error) {
	return f.files, f.err
}

func newTestServer(t *testing.T, mail MailSource) (*Server, jobstore.Store) {
	t.Helper()
	store := jobstore.NewMemory()
	t.Cleanup(func() { store.Close() })
	pipeline := agent.New(store, textExtractor{}, staticRequirements{}, allowAll{},
		zeroMatcher{}, scoring.NewScorer(scoring.DefaultWeights(), nil),
		passReviewer{}, nil, agent.Options{Workers: 2, DefaultTopN: 5}, zap.NewNop())
	return NewServer(pipeline, store, mail, zap.NewNop()), store
}

func multipartBody(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for name, content := range files {
		fw, err := mw.CreateFormFile("resumes", name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestSubmitAndPoll(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body, contentType := multipartBody(t,
		map[string]string{"jd_text": "Backend Engineer, Go required", "top_n": "1"},
		map[string]string{"jane.txt": "Jane Doe\n3 years of experience with Go."})

	resp, err := http.Post(ts.URL+"/v1/jobs", contentType, body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var created struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if created.JobID == "" {
		t.Fatal("no job id in response")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		r2, err := http.Get(ts.URL + "/v1/jobs/" + created.JobID)
		if err != nil {
			t.Fatal(err)
		}
		var job models.Job
		if err := json.NewDecoder(r2.Body).Decode(&job); err != nil {
			t.Fatal(err)
		}
		r2.Body.Close()
		if job.Status.Terminal() {
			if job.Status != models.JobCompleted {
				t.Fatalf("job failed: %q", job.Error)
			}
			if job.Result == nil || len(job.Result.Selected) != 1 {
				t.Fatalf("result = %+v", job.Result)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("job never finished")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubmitValidation(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	tests := []struct {
		name   string
		fields map[string]string
		files  map[string]string
		want   int
	}{
		{"missing job description", map[string]string{}, map[string]string{"a.txt": "text"}, http.StatusBadRequest},
		{"missing resumes", map[string]string{"jd_text": "role"}, nil, http.StatusBadRequest},
		{"bad top_n", map[string]string{"jd_text": "role", "top_n": "zero"}, map[string]string{"a.txt": "text"}, http.StatusBadRequest},
		{"negative top_n", map[string]string{"jd_text": "role", "top_n": "-2"}, map[string]string{"a.txt": "text"}, http.StatusBadRequest},
		{"mailbox not configured", map[string]string{"jd_text": "role", "gmail_subject": "apps"}, nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := multipartBody(t, tt.fields, tt.files)
			resp, err := http.Post(ts.URL+"/v1/jobs", contentType, body)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestUnknownJobIs404(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/jobs/no-such-id")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestMailboxSourcing(t *testing.T) {
	mail := fakeMail{files: []models.SourcedFile{
		{Filename: "[Email] jane.pdf", Data: []byte("Jane Doe\n3 years of Go."), Subject: "Backend application"},
	}}
	srv, _ := newTestServer(t, mail)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body, contentType := multipartBody(t,
		map[string]string{"jd_text": "role", "gmail_subject": "Backend application"}, nil)
	resp, err := http.Post(ts.URL+"/v1/jobs", contentType, body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
}

func TestMailboxFailureIs502(t *testing.T) {
	srv, _ := newTestServer(t, fakeMail{err: errors.New("token expired")})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body, contentType := multipartBody(t,
		map[string]string{"jd_text": "role", "gmail_subject": "apps"}, nil)
	resp, err := http.Post(ts.URL+"/v1/jobs", contentType, body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
