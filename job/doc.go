// Package job defines the job entity, its state machine, the typed
// per-kind settings union, and the repository interface.
//
// # Job Entity
//
// A [Job] represents one media enhancement run: a source video, an output
// path, a processing [Kind], and an opaque [Settings] payload interpreted
// only by the matching kind plugin. Jobs progress through a state machine:
//
//	pending → running → completed
//	pending → running → failed     → pending (retry)
//	pending → running → cancelled  → pending (retry)
//	pending → running → paused     → pending (resume)
//
// Transitions not encoded in [CanTransition] are rejected by the queue and
// leave the job untouched.
//
// Fields of note:
//   - MaxRetries / RetryCount: controls the automatic retry budget;
//     manual retries are always allowed
//   - OwningPID / OwningHostname: stamped while running, used to detect
//     jobs orphaned by a crash
//   - Progress / CurrentFrame / TotalFrames: updated live by the pipeline
//
// # Settings
//
// [Settings] is a tagged union: the Kind tag selects the variant and the
// payload is raw JSON decoded at the plugin boundary. The queue core never
// interprets payload contents:
//
//	s, err := job.NewSettings(job.InterpolateSettings{Model: "rife-v4.6", TargetFPS: 60})
//	j := &job.Job{SourcePath: in, OutputPath: out, Kind: job.KindInterpolate, Settings: s}
package job
