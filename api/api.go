// Package api exposes the upscaler queue over HTTP. Routes are
// versioned under /v1 and return JSON; job events are additionally
// available as a server-sent event stream.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/CheapNud/CheapUpscaler-sub000/kind"
	"github.com/CheapNud/CheapUpscaler-sub000/queue"
	"github.com/CheapNud/CheapUpscaler-sub000/stream"
)

// API wires the HTTP handlers for the upscaler queue.
type API struct {
	queue  *queue.Queue
	tools  *kind.Locator
	broker *stream.Broker
	logger *slog.Logger
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the logger for request handling.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) { a.logger = logger }
}

// WithTools enables the external-tool report endpoint.
func WithTools(loc *kind.Locator) Option {
	return func(a *API) { a.tools = loc }
}

// WithBroker enables the /v1/events SSE endpoint.
func WithBroker(b *stream.Broker) Option {
	return func(a *API) { a.broker = b }
}

// New creates an API around a queue.
func New(q *queue.Queue, opts ...Option) *API {
	a := &API{
		queue:  q,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	a.RegisterRoutes(r)
	return r
}

// RegisterRoutes mounts all queue routes onto the given router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", a.createJob)
			r.Get("/", a.listJobs)
			r.Delete("/finished", a.clearFinished)

			r.Route("/{jobID}", func(r chi.Router) {
				r.Get("/", a.getJob)
				r.Delete("/", a.deleteJob)
				r.Post("/cancel", a.cancelJob)
				r.Post("/pause", a.pauseJob)
				r.Post("/resume", a.resumeJob)
				r.Post("/retry", a.retryJob)
			})
		})

		r.Route("/queue", func(r chi.Router) {
			r.Get("/", a.queueState)
			r.Post("/pause", a.pauseQueue)
			r.Post("/resume", a.resumeQueue)
		})

		r.Get("/stats", a.stats)

		if a.tools != nil {
			r.Get("/tools", a.toolReport)
		}
		if a.broker != nil {
			r.Get("/events", a.events)
		}
	})
}
