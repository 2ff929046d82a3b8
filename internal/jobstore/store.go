// Package jobstore holds job lifecycle state behind a small interface so a
// durable backend can replace the in-memory reference implementation without
// touching pipeline logic.
package jobstore

import (
	"context"

	"github.com/recruitai/screening-agent/internal/models"
)

// Store persists jobs. Get returns a snapshot safe for concurrent readers;
// Update applies mutate under the store's exclusion and enforces the
// lifecycle invariants (monotonic progress, terminal immutability).
type Store interface {
	Create(ctx context.Context, job models.Job) error
	Get(ctx context.Context, id string) (models.Job, error)
	Update(ctx context.Context, id string, mutate func(*models.Job)) error
	Close() error
}

// applyGuarded runs mutate against job and restores the invariants the
// orchestrator relies on. Shared by both implementations.
func applyGuarded(job *models.Job, mutate func(*models.Job)) {
	if job.Status.Terminal() {
		return
	}
	prevProgress := job.Progress
	mutate(job)
	if job.Progress < prevProgress {
		job.Progress = prevProgress
	}
	if job.Progress > 100 {
		job.Progress = 100
	}
}
