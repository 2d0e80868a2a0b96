// Package engine wires the upscaler subsystems together: repository,
// processing-kind registry, queue, stream broker, and the HTTP API.
// Embedders that want the pieces individually can skip it and assemble
// the packages by hand; the engine is the batteries-included path.
package engine

import (
	"context"
	"log/slog"
	"net/http"

	upscaler "github.com/CheapNud/CheapUpscaler-sub000"
	"github.com/CheapNud/CheapUpscaler-sub000/api"
	"github.com/CheapNud/CheapUpscaler-sub000/backoff"
	"github.com/CheapNud/CheapUpscaler-sub000/ext"
	"github.com/CheapNud/CheapUpscaler-sub000/job"
	"github.com/CheapNud/CheapUpscaler-sub000/kind"
	mw "github.com/CheapNud/CheapUpscaler-sub000/middleware"
	"github.com/CheapNud/CheapUpscaler-sub000/queue"
	"github.com/CheapNud/CheapUpscaler-sub000/stream"
)

// Engine is the assembled upscaler system.
type Engine struct {
	cfg    upscaler.Config
	logger *slog.Logger

	repo    job.Repository
	tools   *kind.Locator
	kinds   *kind.Registry
	broker  *stream.Broker
	queue   *queue.Queue
	metrics bool

	toolOpts []kind.LocatorOption
	extras   []ext.Extension
	mws      []mw.Middleware
	retry    backoff.Strategy
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default configuration.
func WithConfig(cfg upscaler.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithLogger sets the logger shared by all subsystems.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithToolPath pins an external binary to an explicit path.
func WithToolPath(name, path string) Option {
	return func(e *Engine) {
		e.toolOpts = append(e.toolOpts, kind.WithToolPath(name, path))
	}
}

// WithExtensions registers additional lifecycle extensions alongside the
// built-in stream broker.
func WithExtensions(exts ...ext.Extension) Option {
	return func(e *Engine) { e.extras = append(e.extras, exts...) }
}

// WithMiddleware appends middleware after the built-in recover and
// logging layers.
func WithMiddleware(mws ...mw.Middleware) Option {
	return func(e *Engine) { e.mws = append(e.mws, mws...) }
}

// WithBackoff sets the automatic-retry delay strategy.
func WithBackoff(s backoff.Strategy) Option {
	return func(e *Engine) { e.retry = s }
}

// WithMetrics enables the OTel metrics middleware. Metrics go to the
// global MeterProvider; without one configured they are no-ops.
func WithMetrics() Option {
	return func(e *Engine) { e.metrics = true }
}

// New assembles an engine over the given repository.
func New(repo job.Repository, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:    upscaler.DefaultConfig(),
		logger: slog.Default(),
		repo:   repo,
		retry:  backoff.DefaultStrategy(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.tools = kind.NewLocator(e.toolOpts...)
	e.kinds = kind.DefaultRegistry(e.tools, kind.DefaultPhaseWeights())
	e.broker = stream.NewBroker(e.logger)

	middlewares := []mw.Middleware{mw.Recover(e.logger), mw.Logging(e.logger)}
	if e.metrics {
		middlewares = append(middlewares, mw.Metrics())
	}
	middlewares = append(middlewares, e.mws...)

	exts := append([]ext.Extension{e.broker}, e.extras...)

	q, err := queue.New(repo, e.kinds,
		queue.WithConfig(e.cfg),
		queue.WithLogger(e.logger),
		queue.WithExtensions(exts...),
		queue.WithMiddleware(middlewares...),
		queue.WithBackoff(e.retry),
	)
	if err != nil {
		return nil, err
	}
	e.queue = q
	return e, nil
}

// Start recovers persisted state and begins dispatching.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.queue.Recover(ctx); err != nil {
		return err
	}
	return e.queue.Start(ctx)
}

// Stop shuts the queue down gracefully.
func (e *Engine) Stop(ctx context.Context) error {
	return e.queue.Stop(ctx)
}

// Queue returns the job queue.
func (e *Engine) Queue() *queue.Queue { return e.queue }

// Broker returns the stream broker for direct subscriptions.
func (e *Engine) Broker() *stream.Broker { return e.broker }

// Tools returns the external-tool locator.
func (e *Engine) Tools() *kind.Locator { return e.tools }

// Kinds returns the processing-kind registry.
func (e *Engine) Kinds() *kind.Registry { return e.kinds }

// Handler returns the HTTP API for the assembled system.
func (e *Engine) Handler() http.Handler {
	return api.New(e.queue,
		api.WithLogger(e.logger),
		api.WithTools(e.tools),
		api.WithBroker(e.broker),
	).Handler()
}
