package queue

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	upscaler "github.com/CheapNud/CheapUpscaler-sub000"
	"github.com/CheapNud/CheapUpscaler-sub000/backoff"
	"github.com/CheapNud/CheapUpscaler-sub000/ext"
	"github.com/CheapNud/CheapUpscaler-sub000/id"
	"github.com/CheapNud/CheapUpscaler-sub000/job"
	"github.com/CheapNud/CheapUpscaler-sub000/middleware"
	"github.com/CheapNud/CheapUpscaler-sub000/pipeline"
)

// DefinitionBuilder turns a job into an executable pipeline definition.
// The kind registry is the production implementation.
type DefinitionBuilder interface {
	Build(ctx context.Context, j *job.Job) (*pipeline.Definition, error)
}

// Cancellation causes distinguish why a job's pipeline was stopped.
var (
	errCancelRequested = errors.New("queue: cancel requested")
	errPauseRequested  = errors.New("queue: pause requested")
	errShutdown        = errors.New("queue: shutting down")
)

// active is the supervision state of one running job.
type active struct {
	cancel         context.CancelCauseFunc
	pauseRequested atomic.Bool
	lastPersist    time.Time
}

// Queue is the durable job queue. All exported methods are safe for
// concurrent use.
type Queue struct {
	cfg     upscaler.Config
	logger  *slog.Logger
	repo    job.Repository
	builder DefinitionBuilder
	runner  *pipeline.Runner
	exts    *ext.Registry
	extList []ext.Extension
	mw      middleware.Middleware
	retry   backoff.Strategy

	mu      sync.Mutex
	jobs    map[id.JobID]*job.Job
	actives map[id.JobID]*active

	pending *fifo
	gate    *Gate

	paused       atomic.Bool
	retryTimers  atomic.Int64
	started      atomic.Bool
	runCtx       context.Context
	shutdownFunc context.CancelCauseFunc
	loopDone     chan struct{}
	wg           sync.WaitGroup
}

// Option configures a Queue.
type Option func(*Queue)

// WithConfig replaces the default configuration.
func WithConfig(cfg upscaler.Config) Option {
	return func(q *Queue) { q.cfg = cfg }
}

// WithLogger sets the queue's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithExtensions registers lifecycle extensions.
func WithExtensions(exts ...ext.Extension) Option {
	return func(q *Queue) { q.extList = append(q.extList, exts...) }
}

// WithMiddleware wraps every pipeline run with the given middleware, in
// order (first is outermost).
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(q *Queue) { q.mw = middleware.Chain(mws...) }
}

// WithBackoff sets the automatic-retry delay strategy.
func WithBackoff(s backoff.Strategy) Option {
	return func(q *Queue) {
		if s != nil {
			q.retry = s
		}
	}
}

// New creates a job queue over the given repository and pipeline
// builder. Call Recover before Start to restore persisted state.
func New(repo job.Repository, builder DefinitionBuilder, opts ...Option) (*Queue, error) {
	if repo == nil {
		return nil, upscaler.ErrNoRepository
	}
	if builder == nil {
		return nil, errors.New("queue: definition builder is required")
	}
	q := &Queue{
		cfg:     upscaler.DefaultConfig(),
		logger:  slog.Default(),
		repo:    repo,
		builder: builder,
		retry:   backoff.DefaultStrategy(),
		jobs:    make(map[id.JobID]*job.Job),
		actives: make(map[id.JobID]*active),
		pending: newFIFO(),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.exts = ext.NewRegistry(q.logger)
	for _, e := range q.extList {
		q.exts.Register(e)
	}
	q.runner = pipeline.NewRunner(pipeline.WithLogger(q.logger))
	q.gate = NewGate(q.cfg.MaxConcurrentJobs)
	return q, nil
}

// ── lifecycle ──

// Recover loads every persisted job into the live cache. Pending jobs
// are re-enqueued. Jobs found running are not resumable, their owning
// pipelines died with the previous process; each is failed with an
// interruption message and persisted before any dispatch begins.
func (q *Queue) Recover(ctx context.Context) error {
	all, err := q.repo.GetAll(ctx)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	for _, j := range all {
		j := j.Clone()
		if j.Status == job.StatusRunning {
			now := time.Now()
			j.Status = job.StatusFailed
			j.LastError = "interrupted by restart"
			j.CompletedAt = &now
			j.UpdatedAt = now
			j.TimeRemaining = nil
			j.OwningPID = 0
			j.OwningHostname = ""
			if err := q.repo.Update(ctx, j); err != nil {
				return err
			}
			q.logger.Warn("failed job interrupted by restart",
				slog.String("job_id", j.ID.String()))
		}
		q.jobs[j.ID] = j
		if j.Status == job.StatusPending {
			q.pending.push(j.ID)
		}
	}
	q.logger.Info("recovered persisted jobs", slog.Int("count", len(all)))
	return nil
}

// Start launches the dispatch loop.
func (q *Queue) Start(context.Context) error {
	if !q.started.CompareAndSwap(false, true) {
		return errors.New("queue: already started")
	}
	q.runCtx, q.shutdownFunc = context.WithCancelCause(context.Background())
	q.loopDone = make(chan struct{})
	go q.loop()
	q.logger.Info("queue started",
		slog.Int("max_concurrent", q.gate.Cap()))
	return nil
}

// Stop cancels all active pipelines and waits for them to wind down,
// bounded by the shutdown timeout (or ctx, whichever ends first).
func (q *Queue) Stop(ctx context.Context) error {
	if !q.started.CompareAndSwap(true, false) {
		return nil
	}
	q.shutdownFunc(errShutdown)

	done := make(chan struct{})
	go func() {
		<-q.loopDone
		q.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(q.cfg.ShutdownTimeout)
	defer timer.Stop()
	var err error
	select {
	case <-done:
	case <-timer.C:
		err = errors.New("queue: shutdown timeout elapsed with jobs still winding down")
	case <-ctx.Done():
		err = ctx.Err()
	}
	q.exts.EmitShutdown(context.WithoutCancel(ctx))
	q.logger.Info("queue stopped")
	return err
}

// PauseQueue stops dispatching new work. Running jobs continue.
func (q *Queue) PauseQueue(ctx context.Context) {
	if q.paused.CompareAndSwap(false, true) {
		q.exts.EmitQueuePaused(ctx)
		q.logger.Info("queue paused")
	}
}

// ResumeQueue re-enables dispatch.
func (q *Queue) ResumeQueue(ctx context.Context) {
	if q.paused.CompareAndSwap(true, false) {
		q.exts.EmitQueueResumed(ctx)
		q.logger.Info("queue resumed")
	}
}

// QueuePaused reports whether dispatch is paused.
func (q *Queue) QueuePaused() bool { return q.paused.Load() }

// ── queries ──

// GetByID returns a copy of the job.
func (q *Queue) GetByID(_ context.Context, jobID id.JobID) (*job.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[jobID]
	if !ok {
		return nil, upscaler.ErrJobNotFound
	}
	return j.Clone(), nil
}

// GetAll returns copies of every job, oldest first.
func (q *Queue) GetAll(context.Context) []*job.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*job.Job, 0, len(q.jobs))
	for _, j := range q.jobs {
		out = append(out, j.Clone())
	}
	sortJobs(out)
	return out
}

// ListByStatus returns copies of jobs in the given status, oldest first.
func (q *Queue) ListByStatus(_ context.Context, status job.Status) []*job.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*job.Job
	for _, j := range q.jobs {
		if j.Status == status {
			out = append(out, j.Clone())
		}
	}
	sortJobs(out)
	return out
}

func sortJobs(jobs []*job.Job) {
	sort.Slice(jobs, func(i, k int) bool {
		if jobs[i].CreatedAt.Equal(jobs[k].CreatedAt) {
			return jobs[i].ID.String() < jobs[k].ID.String()
		}
		return jobs[i].CreatedAt.Before(jobs[k].CreatedAt)
	})
}

// Stats summarizes the queue's population per status.
type Stats struct {
	Pending     int  `json:"pending"`
	Running     int  `json:"running"`
	Paused      int  `json:"paused"`
	Completed   int  `json:"completed"`
	Failed      int  `json:"failed"`
	Cancelled   int  `json:"cancelled"`
	Total       int  `json:"total"`
	QueuePaused bool `json:"queue_paused"`
}

// Statistics returns current per-status counts.
func (q *Queue) Statistics(context.Context) Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := Stats{Total: len(q.jobs), QueuePaused: q.paused.Load()}
	for _, j := range q.jobs {
		switch j.Status {
		case job.StatusPending:
			s.Pending++
		case job.StatusRunning:
			s.Running++
		case job.StatusPaused:
			s.Paused++
		case job.StatusCompleted:
			s.Completed++
		case job.StatusFailed:
			s.Failed++
		case job.StatusCancelled:
			s.Cancelled++
		}
	}
	return s
}

// ClearFinished deletes every job in a terminal state from the cache and
// the repository, returning how many were removed.
func (q *Queue) ClearFinished(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var removed int
	for jobID, j := range q.jobs {
		if !j.Status.Terminal() {
			continue
		}
		if err := q.repo.Delete(ctx, jobID); err != nil {
			return removed, err
		}
		delete(q.jobs, jobID)
		removed++
	}
	return removed, nil
}
