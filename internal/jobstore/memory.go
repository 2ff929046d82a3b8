package jobstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/recruitai/screening-agent/internal/models"
)

// Memory is the reference in-memory store. Job state is lost on restart.
type Memory struct {
	mu   sync.RWMutex
	jobs map[string]*models.Job
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]*models.Job)}
}

func (m *Memory) Create(_ context.Context, job models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[job.ID]; ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	stored := snapshot(&job)
	m.jobs[job.ID] = &stored
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (models.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return models.Job{}, models.ErrNotFound
	}
	return snapshot(job), nil
}

func (m *Memory) Update(_ context.Context, id string, mutate func(*models.Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return models.ErrNotFound
	}
	applyGuarded(job, mutate)
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) Close() error { return nil }

// snapshot deep-copies a job so readers never observe a half-written result.
func snapshot(job *models.Job) models.Job {
	out := *job
	if job.Result != nil {
		res := *job.Result
		res.Selected = cloneCandidates(job.Result.Selected)
		res.NotSelected = cloneCandidates(job.Result.NotSelected)
		res.Rejected = append([]models.RejectedCandidate(nil), job.Result.Rejected...)
		out.Result = &res
	}
	return out
}

func cloneCandidates(in []models.Candidate) []models.Candidate {
	if in == nil {
		return nil
	}
	out := make([]models.Candidate, len(in))
	for i, c := range in {
		out[i] = c.Clone()
	}
	return out
}
