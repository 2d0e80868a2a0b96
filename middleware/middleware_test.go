package middleware_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/CheapNud/CheapUpscaler-sub000/id"
	"github.com/CheapNud/CheapUpscaler-sub000/job"
	"github.com/CheapNud/CheapUpscaler-sub000/middleware"
)

func TestChain_ExecutionOrder(t *testing.T) {
	var order []string

	mw1 := func(ctx context.Context, _ *job.Job, next middleware.Handler) error {
		order = append(order, "mw1-before")
		err := next(ctx)
		order = append(order, "mw1-after")
		return err
	}

	mw2 := func(ctx context.Context, _ *job.Job, next middleware.Handler) error {
		order = append(order, "mw2-before")
		err := next(ctx)
		order = append(order, "mw2-after")
		return err
	}

	chain := middleware.Chain(mw1, mw2)
	j := &job.Job{ID: id.NewJobID(), Kind: job.KindScale}
	handler := func(_ context.Context) error {
		order = append(order, "handler")
		return nil
	}

	err := chain(context.Background(), j, handler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(order), order)
	}
	for i, want := range expected {
		if order[i] != want {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want)
		}
	}
}

func TestChain_Empty(t *testing.T) {
	chain := middleware.Chain()
	called := false
	handler := func(_ context.Context) error {
		called = true
		return nil
	}

	err := chain(context.Background(), &job.Job{ID: id.NewJobID()}, handler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called with empty chain")
	}
}

func TestChain_ErrorShortCircuits(t *testing.T) {
	boom := errors.New("boom")
	mw := func(_ context.Context, _ *job.Job, _ middleware.Handler) error {
		return boom
	}

	handlerCalled := false
	chain := middleware.Chain(mw)
	err := chain(context.Background(), &job.Job{ID: id.NewJobID()}, func(_ context.Context) error {
		handlerCalled = true
		return nil
	})

	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if handlerCalled {
		t.Error("handler should not run after short-circuit")
	}
}

func TestRecover_ConvertsPanicToError(t *testing.T) {
	chain := middleware.Chain(middleware.Recover(slog.Default()))
	j := &job.Job{ID: id.NewJobID(), Kind: job.KindInterpolate}

	err := chain(context.Background(), j, func(_ context.Context) error {
		panic("plugin exploded")
	})

	if err == nil {
		t.Fatal("expected error from recovered panic")
	}
}

func TestLogging_PassesThroughError(t *testing.T) {
	boom := errors.New("encode failed")
	chain := middleware.Chain(middleware.Logging(slog.Default()))
	j := &job.Job{ID: id.NewJobID(), Kind: job.KindScale}

	err := chain(context.Background(), j, func(_ context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}
