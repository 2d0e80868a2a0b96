package ext_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/CheapNud/CheapUpscaler-sub000/ext"
	"github.com/CheapNud/CheapUpscaler-sub000/id"
	"github.com/CheapNud/CheapUpscaler-sub000/job"
)

// recorder implements a subset of hooks and records calls.
type recorder struct {
	queued    int
	progress  int
	completed int
	failed    int
	hookErr   error
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) OnJobQueued(_ context.Context, _ *job.Job) error {
	r.queued++
	return r.hookErr
}

func (r *recorder) OnJobProgress(_ context.Context, _ *job.Job) error {
	r.progress++
	return r.hookErr
}

func (r *recorder) OnJobCompleted(_ context.Context, _ *job.Job, _ time.Duration) error {
	r.completed++
	return r.hookErr
}

func (r *recorder) OnJobFailed(_ context.Context, _ *job.Job, _ error) error {
	r.failed++
	return r.hookErr
}

func TestRegistryDispatchesToImplementedHooks(t *testing.T) {
	reg := ext.NewRegistry(slog.Default())
	rec := &recorder{}
	reg.Register(rec)

	j := &job.Job{ID: id.NewJobID()}
	ctx := context.Background()

	reg.EmitJobQueued(ctx, j)
	reg.EmitJobProgress(ctx, j)
	reg.EmitJobProgress(ctx, j)
	reg.EmitJobCompleted(ctx, j, time.Second)
	reg.EmitJobFailed(ctx, j, errors.New("boom"))

	// Hooks the recorder does not implement must be safe no-ops.
	reg.EmitJobStarted(ctx, j)
	reg.EmitJobCancelled(ctx, j)
	reg.EmitQueuePaused(ctx)
	reg.EmitShutdown(ctx)

	if rec.queued != 1 || rec.progress != 2 || rec.completed != 1 || rec.failed != 1 {
		t.Errorf("unexpected counts: %+v", rec)
	}
}

func TestRegistryHookErrorsDoNotPropagate(t *testing.T) {
	reg := ext.NewRegistry(slog.Default())
	first := &recorder{hookErr: errors.New("hook exploded")}
	second := &recorder{}
	reg.Register(first)
	reg.Register(second)

	// Must not panic and must still reach the second extension.
	reg.EmitJobQueued(context.Background(), &job.Job{ID: id.NewJobID()})

	if second.queued != 1 {
		t.Errorf("second extension not notified: %+v", second)
	}
}

func TestRegistryExtensions(t *testing.T) {
	reg := ext.NewRegistry(slog.Default())
	reg.Register(&recorder{})
	if len(reg.Extensions()) != 1 {
		t.Fatalf("expected 1 extension, got %d", len(reg.Extensions()))
	}
}
