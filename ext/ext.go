// Package ext defines the extension system for the upscaler queue.
// Extensions are notified of lifecycle events (job queued, progress,
// completed, failed, etc.) and can react to them — UIs, logging, metrics.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/CheapNud/CheapUpscaler-sub000/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobQueued is called after a job is persisted and enqueued for dispatch.
type JobQueued interface {
	OnJobQueued(ctx context.Context, j *job.Job) error
}

// JobStarted is called when a job's pipeline begins executing.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobProgress is called on every progress tick of a running job.
// Calls for the same job are strictly ordered; there is no ordering
// guarantee across jobs.
type JobProgress interface {
	OnJobProgress(ctx context.Context, j *job.Job) error
}

// JobCompleted is called after a job's pipeline finishes successfully.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobFailed is called when a job fails.
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, err error) error
}

// JobCancelled is called when a job is cancelled.
type JobCancelled interface {
	OnJobCancelled(ctx context.Context, j *job.Job) error
}

// JobPaused is called when a running job is paused.
type JobPaused interface {
	OnJobPaused(ctx context.Context, j *job.Job) error
}

// JobResumed is called when a paused job re-enters the pending state.
type JobResumed interface {
	OnJobResumed(ctx context.Context, j *job.Job) error
}

// JobRetrying is called when a failed job is scheduled for another attempt,
// either automatically or by an explicit retry.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, j *job.Job, attempt int) error
}

// ──────────────────────────────────────────────────
// Queue lifecycle hooks
// ──────────────────────────────────────────────────

// QueuePaused is called when the queue stops dispatching, including the
// automatic pause after the queue drains.
type QueuePaused interface {
	OnQueuePaused(ctx context.Context) error
}

// QueueResumed is called when the queue starts dispatching again.
type QueueResumed interface {
	OnQueueResumed(ctx context.Context) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
