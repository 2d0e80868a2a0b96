// Package stream provides a real-time event broker for job lifecycle
// events. It bridges the ext hook system to connected clients via
// topic-based pub/sub, so UIs can follow job progress live.
package stream

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	// Job events.
	EventJobQueued    EventType = "job.queued"
	EventJobStarted   EventType = "job.started"
	EventJobProgress  EventType = "job.progress"
	EventJobCompleted EventType = "job.completed"
	EventJobFailed    EventType = "job.failed"
	EventJobCancelled EventType = "job.cancelled"
	EventJobPaused    EventType = "job.paused"
	EventJobResumed   EventType = "job.resumed"
	EventJobRetrying  EventType = "job.retrying"

	// Queue events.
	EventQueuePaused  EventType = "queue.paused"
	EventQueueResumed EventType = "queue.resumed"
)

// Event is the envelope sent to subscribers on a topic channel.
type Event struct {
	// Type identifies the lifecycle event.
	Type EventType `json:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts"`

	// Topic is the entity-specific channel this event belongs to,
	// empty for queue-level events.
	Topic string `json:"topic,omitempty"`

	// Data is the event-specific payload.
	Data json.RawMessage `json:"data,omitempty"`
}

// JobEventData is the payload for job lifecycle events.
type JobEventData struct {
	JobID      string `json:"job_id"`
	Kind       string `json:"kind"`
	Status     string `json:"status"`
	SourcePath string `json:"source_path,omitempty"`
	OutputPath string `json:"output_path,omitempty"`

	// Progress fields, set on job.progress events.
	Progress        float64 `json:"progress,omitempty"`
	CurrentFrame    int64   `json:"current_frame,omitempty"`
	TotalFrames     int64   `json:"total_frames,omitempty"`
	TimeRemainingMs int64   `json:"time_remaining_ms,omitempty"`

	// Outcome fields.
	ElapsedMs int64  `json:"elapsed_ms,omitempty"`
	Error     string `json:"error,omitempty"`
	Attempt   int    `json:"attempt,omitempty"`
}
