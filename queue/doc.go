// Package queue implements the durable job queue: a state machine over
// persisted job records, a single-threaded dispatch loop bounded by a
// concurrency gate, and per-job supervision of the processing pipeline.
//
// The in-memory job map is a cache, never the source of truth: every
// state transition is persisted write-through before it is acknowledged,
// so an abrupt restart loses at most the progress of the interrupted
// run, never the job itself. Startup recovery re-enqueues pending jobs
// and fails jobs found running, since their owning pipelines are gone.
package queue
