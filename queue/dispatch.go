package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/CheapNud/CheapUpscaler-sub000/id"
	"github.com/CheapNud/CheapUpscaler-sub000/job"
	"github.com/CheapNud/CheapUpscaler-sub000/pipeline"
)

// progressPersistInterval throttles durable writes of progress ticks.
// State transitions are always written through; intra-run progress is
// best effort and bounded, losing at most this much on a crash.
const progressPersistInterval = time.Second

// loop is the single-threaded dispatch loop: pop the oldest pending job,
// take a gate slot, hand the job to its own goroutine. Parallelism comes
// from in-flight pipelines, never from the loop itself.
func (q *Queue) loop() {
	defer close(q.loopDone)
	ticker := time.NewTicker(q.cfg.PausePollInterval)
	defer ticker.Stop()

	for {
		if q.runCtx.Err() != nil {
			return
		}
		if q.paused.Load() {
			select {
			case <-q.runCtx.Done():
				return
			case <-ticker.C:
			}
			continue
		}
		jobID, ok := q.pending.pop()
		if !ok {
			select {
			case <-q.runCtx.Done():
				return
			case <-q.pending.wake():
			case <-ticker.C:
			}
			continue
		}
		// Cancelled or deleted while queued. Dropping the tombstone here
		// keeps a dead id from holding a gate slot ahead of live work,
		// and the drain check still runs for it.
		if !q.pendingLive(jobID) {
			q.autoPause()
			continue
		}
		if err := q.gate.Acquire(q.runCtx); err != nil {
			return
		}
		q.wg.Add(1)
		go q.runJob(jobID)
	}
}

// pendingLive reports whether the popped id still names a dispatchable
// job.
func (q *Queue) pendingLive(jobID id.JobID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[jobID]
	return ok && j.Status == job.StatusPending
}

// runJob supervises one job: dispatch-time checks, the running
// transition, the pipeline run, and the terminal transition. The gate
// slot is released on every path.
func (q *Queue) runJob(jobID id.JobID) {
	defer q.wg.Done()
	defer q.gate.Release()

	q.mu.Lock()
	j, ok := q.jobs[jobID]
	if !ok || j.Status != job.StatusPending {
		// Cancelled or deleted between the loop's liveness check and the
		// gate acquire. The drain check must still run: this may have been
		// the last live job.
		q.mu.Unlock()
		q.autoPause()
		return
	}
	jctx, cancel := context.WithCancelCause(q.runCtx)
	a := &active{cancel: cancel}
	q.actives[jobID] = a
	dispatched := j.Clone()
	q.mu.Unlock()

	defer func() {
		cancel(nil)
		q.mu.Lock()
		delete(q.actives, jobID)
		q.mu.Unlock()
		q.autoPause()
	}()

	// Configuration problems surface as failed before any process
	// spawns, without the job ever reaching running.
	def, err := q.builder.Build(jctx, dispatched)
	if err == nil {
		if _, statErr := os.Stat(dispatched.SourcePath); statErr != nil {
			err = &pipeline.Error{
				Reason: pipeline.ReasonInputMissing,
				Msg:    fmt.Sprintf("input file %q does not exist", dispatched.SourcePath),
				Err:    statErr,
			}
		}
	}
	if err != nil {
		q.failJob(jctx, jobID, err)
		return
	}
	q.applyPipelineConfig(def)

	started := time.Now()
	snapshot, merr := q.mutate(jctx, jobID, func(j *job.Job) bool {
		if !job.CanTransition(j.Status, job.StatusRunning) {
			return false
		}
		j.Status = job.StatusRunning
		j.StartedAt = &started
		j.OwningPID = os.Getpid()
		j.OwningHostname = hostname()
		return true
	})
	if merr != nil {
		q.logger.Error("cannot persist running transition",
			slog.String("job_id", jobID.String()),
			slog.Any("error", merr))
		return
	}
	if snapshot == nil {
		// Lost a race with cancel; nothing started.
		return
	}
	q.exts.EmitJobStarted(jctx, snapshot)
	q.logger.Info("job started",
		slog.String("job_id", jobID.String()),
		slog.String("kind", string(snapshot.Kind)))

	go q.watchPause(jctx, a, cancel)

	handler := func(ctx context.Context) error {
		return q.runner.Run(ctx, def, q.progressFunc(jctx, jobID, a, started))
	}
	var runErr error
	if q.mw != nil {
		runErr = q.mw(jctx, snapshot, handler)
	} else {
		runErr = handler(jctx)
	}
	q.finalize(jctx, jobID, started, runErr)
}

// watchPause polls the job's pause flag so stages that emit no progress
// lines still honor a pause request.
func (q *Queue) watchPause(ctx context.Context, a *active, cancel context.CancelCauseFunc) {
	ticker := time.NewTicker(q.cfg.PausePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if a.pauseRequested.Load() {
				cancel(errPauseRequested)
				return
			}
		}
	}
}

// applyPipelineConfig fills in the preflight timeout and per-stage grace
// periods the plugin left unset. The upstream stage gets the longer
// grace so the downstream stage can flush and finalize its output before
// the feed disappears.
func (q *Queue) applyPipelineConfig(def *pipeline.Definition) {
	if def.Preflight != nil && def.Preflight.Timeout <= 0 {
		def.Preflight.Timeout = q.cfg.PreflightTimeout
	}
	for i := range def.Stages {
		if def.Stages[i].GracePeriod > 0 {
			continue
		}
		if i == 0 {
			def.Stages[i].GracePeriod = q.cfg.ProducerGracePeriod
		} else {
			def.Stages[i].GracePeriod = q.cfg.EncoderGracePeriod
		}
	}
}

// progressFunc builds the observer for one run. It checks the pause flag
// between ticks, updates the cached record, and persists at most once
// per interval.
func (q *Queue) progressFunc(ctx context.Context, jobID id.JobID, a *active, started time.Time) pipeline.ProgressFunc {
	return func(p pipeline.Progress) {
		if a.pauseRequested.Load() {
			a.cancel(errPauseRequested)
			return
		}

		q.mu.Lock()
		j, ok := q.jobs[jobID]
		if !ok || j.Status != job.StatusRunning {
			q.mu.Unlock()
			return
		}
		if p.Percent > j.Progress {
			j.Progress = p.Percent
		}
		if p.CurrentFrame > 0 {
			j.CurrentFrame = p.CurrentFrame
		}
		if p.TotalFrames > 0 {
			j.TotalFrames = p.TotalFrames
		}
		j.TimeRemaining = pipeline.EstimateRemaining(started, j.Progress)
		j.UpdatedAt = time.Now()
		if time.Since(a.lastPersist) >= progressPersistInterval {
			if err := q.repo.Update(ctx, j); err != nil {
				q.logger.Warn("cannot persist progress",
					slog.String("job_id", jobID.String()),
					slog.Any("error", err))
			} else {
				a.lastPersist = time.Now()
			}
		}
		snapshot := j.Clone()
		q.mu.Unlock()

		q.exts.EmitJobProgress(ctx, snapshot)
	}
}

// finalize applies the terminal (or paused) transition after the
// pipeline returns. The cancellation cause distinguishes a user cancel,
// a cooperative pause, and a process shutdown from an ordinary failure.
func (q *Queue) finalize(ctx context.Context, jobID id.JobID, started time.Time, runErr error) {
	cause := context.Cause(ctx)
	// The run context is often already cancelled here (that is how the
	// pipeline was stopped); the terminal transition must still persist.
	ctx = context.WithoutCancel(ctx)
	switch {
	case runErr == nil:
		snapshot, err := q.mutate(ctx, jobID, func(j *job.Job) bool {
			if !job.CanTransition(j.Status, job.StatusCompleted) {
				return false
			}
			now := time.Now()
			j.Status = job.StatusCompleted
			j.Progress = 100
			j.TimeRemaining = nil
			j.CompletedAt = &now
			j.OwningPID = 0
			j.OwningHostname = ""
			return true
		})
		if err != nil {
			q.logger.Error("cannot persist completion",
				slog.String("job_id", jobID.String()),
				slog.Any("error", err))
			return
		}
		if snapshot != nil {
			elapsed := time.Since(started)
			q.exts.EmitJobCompleted(ctx, snapshot, elapsed)
			q.logger.Info("job completed",
				slog.String("job_id", jobID.String()),
				slog.Duration("elapsed", elapsed))
		}

	case errors.Is(cause, errCancelRequested):
		// Cancel already flipped the record; the pipeline has now caught
		// up and the slot is about to be released.

	case errors.Is(cause, errPauseRequested):
		snapshot, err := q.mutate(ctx, jobID, func(j *job.Job) bool {
			if !job.CanTransition(j.Status, job.StatusPaused) {
				return false
			}
			j.Status = job.StatusPaused
			j.TimeRemaining = nil
			j.OwningPID = 0
			j.OwningHostname = ""
			return true
		})
		if err != nil {
			q.logger.Error("cannot persist pause",
				slog.String("job_id", jobID.String()),
				slog.Any("error", err))
			return
		}
		if snapshot != nil {
			q.exts.EmitJobPaused(ctx, snapshot)
			q.logger.Info("job paused", slog.String("job_id", jobID.String()))
		}

	case errors.Is(cause, errShutdown):
		// The next start's recovery would fail this job anyway; doing it
		// now keeps the persisted record honest if the process exits
		// cleanly.
		q.failJob(ctx, jobID, &pipeline.Error{
			Reason: pipeline.ReasonCancelled,
			Msg:    "interrupted by shutdown",
		})

	default:
		q.failJob(ctx, jobID, runErr)
	}
}

// failJob records a failure and schedules an automatic retry when the
// failure class is transient and the retry ceiling allows it.
func (q *Queue) failJob(ctx context.Context, jobID id.JobID, cause error) {
	msg := cause.Error()
	var detail string
	var reason pipeline.FailureReason
	var perr *pipeline.Error
	if errors.As(cause, &perr) {
		msg = perr.Msg
		detail = perr.Detail
		reason = perr.Reason
	}

	var retryable bool
	snapshot, err := q.mutate(ctx, jobID, func(j *job.Job) bool {
		if !job.CanTransition(j.Status, job.StatusFailed) {
			return false
		}
		now := time.Now()
		j.Status = job.StatusFailed
		j.LastError = msg
		j.ErrorDetail = detail
		j.TimeRemaining = nil
		j.CompletedAt = &now
		j.OwningPID = 0
		j.OwningHostname = ""
		retryable = autoRetryable(reason) && j.RetryCount < j.MaxRetries
		return true
	})
	if err != nil {
		q.logger.Error("cannot persist failure",
			slog.String("job_id", jobID.String()),
			slog.Any("error", err))
		return
	}
	if snapshot == nil {
		return
	}
	q.exts.EmitJobFailed(ctx, snapshot, cause)
	q.logger.Warn("job failed",
		slog.String("job_id", jobID.String()),
		slog.String("reason", string(reason)),
		slog.String("error", msg))

	if retryable {
		q.scheduleRetry(snapshot.ID, snapshot.RetryCount+1)
	}
}

// autoRetryable limits automatic retries to transient runtime failures.
// Configuration problems (missing input, missing binary, bad settings)
// fail the same way every time and wait for the operator.
func autoRetryable(reason pipeline.FailureReason) bool {
	switch reason {
	case pipeline.ReasonStageFailed, pipeline.ReasonStreamCopy, pipeline.ReasonPreflightTimeout:
		return true
	}
	return false
}

// scheduleRetry re-enqueues the job after the backoff delay. The timer
// counts as live work so the queue does not auto-pause out from under a
// pending retry.
func (q *Queue) scheduleRetry(jobID id.JobID, attempt int) {
	delay := q.retry.Delay(attempt)
	q.logger.Info("scheduling automatic retry",
		slog.String("job_id", jobID.String()),
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay))

	q.retryTimers.Add(1)
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		defer q.retryTimers.Add(-1)
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-q.runCtx.Done():
			return
		case <-timer.C:
		}
		if ok, err := q.Retry(context.WithoutCancel(q.runCtx), jobID); err != nil {
			q.logger.Warn("automatic retry not persisted",
				slog.String("job_id", jobID.String()),
				slog.Any("error", err))
		} else if !ok {
			// Deleted or manually retried in the meantime.
			q.logger.Debug("automatic retry skipped",
				slog.String("job_id", jobID.String()))
		}
	}()
}

// autoPause flips the queue's pause flag once nothing remains to do, so
// an empty queue does not idle-poll; resuming requires an explicit call.
// It runs after every event that can drain the queue: a job reaching a
// terminal state through its pipeline, and a queued or paused job being
// cancelled without ever dispatching.
func (q *Queue) autoPause() {
	if q.retryTimers.Load() > 0 {
		return
	}
	q.mu.Lock()
	live := 0
	for _, j := range q.jobs {
		switch j.Status {
		case job.StatusPending, job.StatusRunning, job.StatusPaused:
			live++
		}
	}
	q.mu.Unlock()
	if live == 0 && q.paused.CompareAndSwap(false, true) {
		ctx := context.Background()
		if q.runCtx != nil {
			ctx = context.WithoutCancel(q.runCtx)
		}
		q.exts.EmitQueuePaused(ctx)
		q.logger.Info("queue drained, auto-pausing")
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return ""
	}
	return h
}
