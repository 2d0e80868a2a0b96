package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/CheapNud/CheapUpscaler-sub000/ext"
	"github.com/CheapNud/CheapUpscaler-sub000/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension    = (*Broker)(nil)
	_ ext.JobQueued    = (*Broker)(nil)
	_ ext.JobStarted   = (*Broker)(nil)
	_ ext.JobProgress  = (*Broker)(nil)
	_ ext.JobCompleted = (*Broker)(nil)
	_ ext.JobFailed    = (*Broker)(nil)
	_ ext.JobCancelled = (*Broker)(nil)
	_ ext.JobPaused    = (*Broker)(nil)
	_ ext.JobResumed   = (*Broker)(nil)
	_ ext.JobRetrying  = (*Broker)(nil)
	_ ext.QueuePaused  = (*Broker)(nil)
	_ ext.QueueResumed = (*Broker)(nil)
	_ ext.Shutdown     = (*Broker)(nil)
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// DefaultCredits is the default initial credits for new subscribers.
const DefaultCredits int64 = 1000

// DefaultProgressRate caps job.progress events per job per second.
// Transcode pipelines can report hundreds of frames a second; clients
// only need a few updates.
const DefaultProgressRate rate.Limit = 4

// Broker is the real-time stream broker. It implements the ext hook
// interfaces to receive lifecycle events and fans them out to
// subscribers via topic-based pub/sub.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger

	// Subscriber management.
	subscribers sync.Map // subscriberID → *Subscriber

	// Per-job progress rate limiters, dropped when the job reaches a
	// terminal or parked state.
	progressLimits sync.Map // jobID string → *rate.Limiter

	// Metrics.
	totalPublished atomic.Int64
	totalThrottled atomic.Int64

	// Config.
	bufferSize     int
	defaultCredits int64
	progressRate   rate.Limit
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// WithDefaultCredits sets the initial credits for new subscribers.
func WithDefaultCredits(credits int64) BrokerOption {
	return func(b *Broker) { b.defaultCredits = credits }
}

// WithProgressRate caps how many job.progress events per second are
// published per job. rate.Inf disables throttling.
func WithProgressRate(r rate.Limit) BrokerOption {
	return func(b *Broker) { b.progressRate = r }
}

// NewBroker creates a new stream broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	b := &Broker{
		topics:         NewTopicRegistry(),
		logger:         logger,
		bufferSize:     DefaultBufferSize,
		defaultCredits: DefaultCredits,
		progressRate:   DefaultProgressRate,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements ext.Extension.
func (b *Broker) Name() string { return "stream-broker" }

// Topics returns the topic registry for external use (e.g., the SSE handler).
func (b *Broker) Topics() *TopicRegistry { return b.topics }

// Subscribe creates a new subscriber on the given topics.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	sub := NewSubscriber(subscriberID, b.bufferSize, b.defaultCredits)
	b.subscribers.Store(subscriberID, sub)
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// SubscribeTo adds an existing subscriber to additional topics.
func (b *Broker) SubscribeTo(subscriberID string, topics ...string) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return
	}
	sub := val.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
}

// Unsubscribe removes a subscriber from specific topics.
func (b *Broker) Unsubscribe(subscriberID string, topics ...string) {
	for _, topic := range topics {
		b.topics.Unsubscribe(topic, subscriberID)
	}
}

// RemoveSubscriber removes a subscriber from all topics and closes it.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.topics.UnsubscribeAll(subscriberID)
	if val, ok := b.subscribers.LoadAndDelete(subscriberID); ok {
		val.(*Subscriber).Close() //nolint:errcheck // sync.Map always stores *Subscriber
	}
}

// GetSubscriber returns a subscriber by ID.
func (b *Broker) GetSubscriber(subscriberID string) (*Subscriber, bool) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return nil, false
	}
	return val.(*Subscriber), true //nolint:errcheck // sync.Map always stores *Subscriber
}

// Stats returns broker statistics.
func (b *Broker) Stats() BrokerStats {
	count := 0
	b.subscribers.Range(func(_, _ any) bool {
		count++
		return true
	})
	return BrokerStats{
		TopicCount:      b.topics.TopicCount(),
		SubscriberCount: count,
		TotalPublished:  b.totalPublished.Load(),
		TotalThrottled:  b.totalThrottled.Load(),
	}
}

// BrokerStats contains broker metrics.
type BrokerStats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
	TotalThrottled  int64 `json:"total_throttled"`
}

// publish creates an event and broadcasts it to all matching topics.
func (b *Broker) publish(evt *Event) {
	topics := resolveTopics(evt)
	delivered := b.topics.Broadcast(topics, evt)
	b.totalPublished.Add(int64(delivered))
}

// allowProgress applies the per-job progress rate limit.
func (b *Broker) allowProgress(jobID string) bool {
	if b.progressRate == rate.Inf {
		return true
	}
	val, ok := b.progressLimits.Load(jobID)
	if !ok {
		val, _ = b.progressLimits.LoadOrStore(jobID, rate.NewLimiter(b.progressRate, 1))
	}
	lim := val.(*rate.Limiter) //nolint:errcheck // sync.Map always stores *rate.Limiter
	if lim.Allow() {
		return true
	}
	b.totalThrottled.Add(1)
	return false
}

// mustMarshal marshals data to JSON, panicking on error (programming error).
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("stream: marshal event data: " + err.Error())
	}
	return data
}

func jobData(j *job.Job) JobEventData {
	return JobEventData{
		JobID:      j.ID.String(),
		Kind:       string(j.Kind),
		Status:     string(j.Status),
		SourcePath: j.SourcePath,
		OutputPath: j.OutputPath,
	}
}

func (b *Broker) publishJob(evtType EventType, j *job.Job, data JobEventData) {
	b.publish(&Event{
		Type:      evtType,
		Timestamp: time.Now().UTC(),
		Topic:     JobTopic(j.ID.String()),
		Data:      mustMarshal(data),
	})
}

// ── Job lifecycle hooks ─────────────────────────────

func (b *Broker) OnJobQueued(_ context.Context, j *job.Job) error {
	b.publishJob(EventJobQueued, j, jobData(j))
	return nil
}

func (b *Broker) OnJobStarted(_ context.Context, j *job.Job) error {
	b.publishJob(EventJobStarted, j, jobData(j))
	return nil
}

func (b *Broker) OnJobProgress(_ context.Context, j *job.Job) error {
	if !b.allowProgress(j.ID.String()) {
		return nil
	}
	data := jobData(j)
	data.Progress = j.Progress
	data.CurrentFrame = j.CurrentFrame
	data.TotalFrames = j.TotalFrames
	if j.TimeRemaining != nil {
		data.TimeRemainingMs = j.TimeRemaining.Milliseconds()
	}
	b.publishJob(EventJobProgress, j, data)
	return nil
}

func (b *Broker) OnJobCompleted(_ context.Context, j *job.Job, elapsed time.Duration) error {
	b.progressLimits.Delete(j.ID.String())
	data := jobData(j)
	data.ElapsedMs = elapsed.Milliseconds()
	b.publishJob(EventJobCompleted, j, data)
	return nil
}

func (b *Broker) OnJobFailed(_ context.Context, j *job.Job, jobErr error) error {
	b.progressLimits.Delete(j.ID.String())
	data := jobData(j)
	if jobErr != nil {
		data.Error = jobErr.Error()
	}
	b.publishJob(EventJobFailed, j, data)
	return nil
}

func (b *Broker) OnJobCancelled(_ context.Context, j *job.Job) error {
	b.progressLimits.Delete(j.ID.String())
	b.publishJob(EventJobCancelled, j, jobData(j))
	return nil
}

func (b *Broker) OnJobPaused(_ context.Context, j *job.Job) error {
	b.progressLimits.Delete(j.ID.String())
	data := jobData(j)
	data.Progress = j.Progress
	data.CurrentFrame = j.CurrentFrame
	data.TotalFrames = j.TotalFrames
	b.publishJob(EventJobPaused, j, data)
	return nil
}

func (b *Broker) OnJobResumed(_ context.Context, j *job.Job) error {
	b.publishJob(EventJobResumed, j, jobData(j))
	return nil
}

func (b *Broker) OnJobRetrying(_ context.Context, j *job.Job, attempt int) error {
	data := jobData(j)
	data.Attempt = attempt
	b.publishJob(EventJobRetrying, j, data)
	return nil
}

// ── Queue lifecycle hooks ───────────────────────────

func (b *Broker) OnQueuePaused(_ context.Context) error {
	b.publish(&Event{Type: EventQueuePaused, Timestamp: time.Now().UTC()})
	return nil
}

func (b *Broker) OnQueueResumed(_ context.Context) error {
	b.publish(&Event{Type: EventQueueResumed, Timestamp: time.Now().UTC()})
	return nil
}

// ── Shutdown ────────────────────────────────────────

func (b *Broker) OnShutdown(_ context.Context) error {
	b.subscribers.Range(func(key, value any) bool {
		sub := value.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
		sub.Close()
		b.subscribers.Delete(key)
		return true
	})
	b.logger.Info("stream broker shut down")
	return nil
}
