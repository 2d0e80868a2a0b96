// Package upscaler provides a durable, crash-safe job queue for long-running
// media enhancement work: frame interpolation, AI super-resolution, and
// plain scaling. Jobs are persisted before they are acknowledged, a bounded
// number run concurrently, and each job executes as a pipeline of chained
// external processes (a frame producer piped into an encoder).
//
// Upscaler is designed as a library, not a service. Embed the queue,
// register processing-kind plugins, and drive it from a UI or the api
// package.
//
// # Quick Start
//
//	repo, err := sqlite.Open(filepath.Join(dataDir, "jobs.db"))
//	eng, err := engine.New(repo)
//	err = eng.Start(ctx)
//	defer eng.Stop(ctx)
//
// The engine package is the batteries-included path; the subsystems can
// also be assembled by hand via queue.New.
//
// # Architecture
//
// The queue owns the in-memory job cache and the state machine; every
// mutation is written through to the job.Repository before it is
// acknowledged. Processing-kind plugins (package kind) turn a job's typed
// settings into a pipeline.Definition, and the pipeline.Runner drives the
// external processes: preflight, launch, wire, observe, join, verdict,
// cleanup. Lifecycle hooks (package ext) and the stream broker deliver
// progress and status notifications without coupling consumers to the
// state machine.
//
// All job IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package upscaler
