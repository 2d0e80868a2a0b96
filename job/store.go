package job

import (
	"context"

	"github.com/CheapNud/CheapUpscaler-sub000/id"
)

// Repository defines the persistence contract for jobs. Writes must be
// crash-safe: after a crash a write either fully landed or is absent.
type Repository interface {
	// Add persists a new job record.
	Add(ctx context.Context, j *Job) error

	// Update persists changes to an existing job.
	Update(ctx context.Context, j *Job) error

	// Delete removes a job by ID.
	Delete(ctx context.Context, jobID id.JobID) error

	// GetByID retrieves a job by ID.
	GetByID(ctx context.Context, jobID id.JobID) (*Job, error)

	// GetByIDs retrieves the jobs for the given IDs. Missing IDs are
	// skipped, not errors.
	GetByIDs(ctx context.Context, jobIDs []id.JobID) ([]*Job, error)

	// GetAll returns every persisted job, oldest first.
	GetAll(ctx context.Context) ([]*Job, error)

	// ListByStatus returns jobs matching the given status, oldest first.
	ListByStatus(ctx context.Context, status Status) ([]*Job, error)

	// CountByStatus returns the number of jobs in the given status.
	CountByStatus(ctx context.Context, status Status) (int64, error)
}
