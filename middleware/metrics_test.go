package middleware_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/CheapNud/CheapUpscaler-sub000/id"
	"github.com/CheapNud/CheapUpscaler-sub000/job"
	"github.com/CheapNud/CheapUpscaler-sub000/middleware"
)

func TestMetrics_PassThrough(t *testing.T) {
	mw := middleware.MetricsWithMeter(noop.NewMeterProvider().Meter("test"))
	j := &job.Job{ID: id.NewJobID(), Kind: job.KindUpscaleGAN}

	err := mw(context.Background(), j, func(_ context.Context) error { return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	boom := errors.New("boom")
	err = mw(context.Background(), j, func(_ context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}
