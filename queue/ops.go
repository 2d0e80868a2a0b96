package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	upscaler "github.com/CheapNud/CheapUpscaler-sub000"
	"github.com/CheapNud/CheapUpscaler-sub000/id"
	"github.com/CheapNud/CheapUpscaler-sub000/job"
)

// AddJob creates, persists and enqueues a new job. Submission is
// deliberately permissive: a missing source file or an unresolvable
// settings payload fails the job at dispatch, not here, so callers never
// block on validation.
func (q *Queue) AddJob(ctx context.Context, sourcePath, outputPath string, settings job.Settings) (*job.Job, error) {
	if sourcePath == "" || outputPath == "" {
		return nil, fmt.Errorf("%w: source and output paths are required", upscaler.ErrValidation)
	}
	if !settings.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown processing kind %q", upscaler.ErrValidation, settings.Kind)
	}

	now := time.Now()
	j := &job.Job{
		ID:         id.NewJobID(),
		SourcePath: sourcePath,
		OutputPath: outputPath,
		Kind:       settings.Kind,
		Settings:   settings.Clone(),
		Status:     job.StatusPending,
		MaxRetries: q.cfg.MaxRetries,
		CreatedAt:  now,
		QueuedAt:   now,
		UpdatedAt:  now,
	}
	j.Bound()

	q.mu.Lock()
	if err := q.repo.Add(ctx, j); err != nil {
		q.mu.Unlock()
		return nil, err
	}
	q.jobs[j.ID] = j
	snapshot := j.Clone()
	q.mu.Unlock()

	q.pending.push(j.ID)
	q.exts.EmitJobQueued(ctx, snapshot)
	q.logger.Info("job queued",
		slog.String("job_id", j.ID.String()),
		slog.String("kind", string(j.Kind)),
		slog.String("source", j.SourcePath))
	return snapshot, nil
}

// Cancel cancels a pending, running or paused job. For a running job the
// linked cancellation signal starts the pipeline's graceful shutdown;
// the status flips to cancelled immediately, the concurrency slot is
// released when the stages have exited. Returns false for absent or
// already-terminal jobs.
func (q *Queue) Cancel(ctx context.Context, jobID id.JobID) (bool, error) {
	snapshot, err := q.mutate(ctx, jobID, func(j *job.Job) bool {
		if !job.CanTransition(j.Status, job.StatusCancelled) {
			return false
		}
		now := time.Now()
		j.Status = job.StatusCancelled
		j.CompletedAt = &now
		j.TimeRemaining = nil
		j.OwningPID = 0
		j.OwningHostname = ""
		return true
	})
	if err != nil || snapshot == nil {
		return false, err
	}

	q.mu.Lock()
	a := q.actives[jobID]
	if a != nil {
		a.cancel(errCancelRequested)
	}
	q.mu.Unlock()
	if a == nil {
		// No pipeline will finalize this job, so the drain check runs
		// here; a running job's supervisor handles it on exit.
		q.autoPause()
	}

	q.exts.EmitJobCancelled(ctx, snapshot)
	q.logger.Info("job cancelled", slog.String("job_id", jobID.String()))
	return true, nil
}

// Pause requests a cooperative pause of a running job. The pipeline
// driver polls the flag between progress ticks, stops the stages, and
// the job lands in paused; the OS processes are never suspended in
// place. Returns false unless the job is running.
func (q *Queue) Pause(_ context.Context, jobID id.JobID) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[jobID]
	if !ok || j.Status != job.StatusRunning {
		return false, nil
	}
	a := q.actives[jobID]
	if a == nil {
		return false, nil
	}
	a.pauseRequested.Store(true)
	q.logger.Info("job pause requested", slog.String("job_id", jobID.String()))
	return true, nil
}

// Resume re-enqueues a paused job. The next run starts the pipeline from
// the beginning. Returns false unless the job is paused.
func (q *Queue) Resume(ctx context.Context, jobID id.JobID) (bool, error) {
	snapshot, err := q.mutate(ctx, jobID, func(j *job.Job) bool {
		if j.Status != job.StatusPaused {
			return false
		}
		j.Status = job.StatusPending
		j.QueuedAt = time.Now()
		return true
	})
	if err != nil || snapshot == nil {
		return false, err
	}
	q.pending.push(jobID)
	q.exts.EmitJobResumed(ctx, snapshot)
	q.logger.Info("job resumed", slog.String("job_id", jobID.String()))
	return true, nil
}

// Retry re-enqueues a failed or cancelled job, clearing error state and
// progress so nothing stale lingers after a successful rerun. Manual
// retries are always allowed; only automatic retries respect the
// MaxRetries ceiling.
func (q *Queue) Retry(ctx context.Context, jobID id.JobID) (bool, error) {
	var attempt int
	snapshot, err := q.mutate(ctx, jobID, func(j *job.Job) bool {
		if j.Status != job.StatusFailed && j.Status != job.StatusCancelled {
			return false
		}
		j.Status = job.StatusPending
		j.LastError = ""
		j.ErrorDetail = ""
		j.Progress = 0
		j.CurrentFrame = 0
		j.TotalFrames = 0
		j.TimeRemaining = nil
		j.RetryCount++
		j.StartedAt = nil
		j.CompletedAt = nil
		j.OwningPID = 0
		j.OwningHostname = ""
		j.QueuedAt = time.Now()
		attempt = j.RetryCount
		return true
	})
	if err != nil || snapshot == nil {
		return false, err
	}
	q.pending.push(jobID)
	q.exts.EmitJobRetrying(ctx, snapshot, attempt)
	q.logger.Info("job retrying",
		slog.String("job_id", jobID.String()),
		slog.Int("attempt", attempt))
	return true, nil
}

// Delete removes a job from the cache and the repository. Running jobs
// are rejected with ErrJobRunning; cancel first.
func (q *Queue) Delete(ctx context.Context, jobID id.JobID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[jobID]
	if !ok {
		return upscaler.ErrJobNotFound
	}
	if j.Status == job.StatusRunning {
		return upscaler.ErrJobRunning
	}
	if err := q.repo.Delete(ctx, jobID); err != nil {
		return err
	}
	delete(q.jobs, jobID)
	q.logger.Info("job deleted", slog.String("job_id", jobID.String()))
	return nil
}

// mutate applies fn to the cached job under the lock and persists the
// result write-through before returning a snapshot. fn returning false
// leaves the job untouched and yields a nil snapshot. A persistence
// failure rolls the cache back so it never runs ahead of the repository.
func (q *Queue) mutate(ctx context.Context, jobID id.JobID, fn func(*job.Job) bool) (*job.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[jobID]
	if !ok {
		return nil, nil
	}
	updated := j.Clone()
	if !fn(updated) {
		return nil, nil
	}
	updated.UpdatedAt = time.Now()
	updated.Bound()
	if err := q.repo.Update(ctx, updated); err != nil {
		return nil, err
	}
	q.jobs[jobID] = updated
	return updated.Clone(), nil
}
