package job

import (
	"time"

	"github.com/CheapNud/CheapUpscaler-sub000/id"
)

// Status represents the lifecycle state of a job.
type Status string

const (
	// StatusPending means the job is waiting to be picked up by the dispatcher.
	StatusPending Status = "pending"
	// StatusRunning means the job's process pipeline is executing.
	StatusRunning Status = "running"
	// StatusPaused means a user paused the job; the pipeline stops at the
	// next progress checkpoint and the job waits for resume.
	StatusPaused Status = "paused"
	// StatusCompleted means the pipeline finished with both stages exiting zero.
	StatusCompleted Status = "completed"
	// StatusFailed means the job failed and is waiting for a retry or delete.
	StatusFailed Status = "failed"
	// StatusCancelled means the job was explicitly cancelled.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is a terminal state. Terminal jobs
// hold no resources; failed and cancelled jobs may still be retried.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusPaused, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// transitions encodes the legal state machine. Retry (failed|cancelled →
// pending) and resume (paused → pending) share the pending target; the
// queue distinguishes them by the operation invoked. Pending → failed
// covers configuration failures surfaced at dispatch, before any process
// spawns.
var transitions = map[Status][]Status{
	StatusPending:   {StatusRunning, StatusCancelled, StatusFailed},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled, StatusPaused},
	StatusPaused:    {StatusPending, StatusCancelled},
	StatusFailed:    {StatusPending},
	StatusCancelled: {StatusPending},
	StatusCompleted: {},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Column width bounds for persisted string fields.
const (
	MaxPathLen        = 1024
	MaxErrorLen       = 2048
	MaxErrorDetailLen = 8192
)

// Truncate bounds s to max bytes for storage.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// Job represents one media enhancement run.
type Job struct {
	ID         id.JobID `json:"id"`
	SourcePath string   `json:"source_path"`
	OutputPath string   `json:"output_path"`
	Kind       Kind     `json:"kind"`
	Settings   Settings `json:"settings"`
	Status     Status   `json:"status"`

	// Progress. Percent is 0–100 and monotonic within one run.
	Progress      float64        `json:"progress"`
	CurrentFrame  int64          `json:"current_frame"`
	TotalFrames   int64          `json:"total_frames,omitempty"`
	TimeRemaining *time.Duration `json:"time_remaining,omitempty"`

	// Error info. LastError is the operator-facing message; ErrorDetail
	// carries raw diagnostic output from the failing stage.
	LastError   string `json:"last_error,omitempty"`
	ErrorDetail string `json:"error_detail,omitempty"`
	RetryCount  int    `json:"retry_count"`
	MaxRetries  int    `json:"max_retries"`

	// Ownership, stamped while running. A persisted running job whose
	// owner process is gone was interrupted by a crash.
	OwningPID      int    `json:"owning_pid,omitempty"`
	OwningHostname string `json:"owning_hostname,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	QueuedAt    time.Time  `json:"queued_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Clone returns a deep copy of the job. Pointer fields are duplicated so
// copies can cross goroutine boundaries.
func (j *Job) Clone() *Job {
	cp := *j
	if j.TimeRemaining != nil {
		d := *j.TimeRemaining
		cp.TimeRemaining = &d
	}
	if j.StartedAt != nil {
		ts := *j.StartedAt
		cp.StartedAt = &ts
	}
	if j.CompletedAt != nil {
		ts := *j.CompletedAt
		cp.CompletedAt = &ts
	}
	cp.Settings = j.Settings.Clone()
	return &cp
}

// Bound truncates persisted string fields to their column widths.
func (j *Job) Bound() {
	j.SourcePath = Truncate(j.SourcePath, MaxPathLen)
	j.OutputPath = Truncate(j.OutputPath, MaxPathLen)
	j.LastError = Truncate(j.LastError, MaxErrorLen)
	j.ErrorDetail = Truncate(j.ErrorDetail, MaxErrorDetailLen)
}
