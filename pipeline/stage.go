// Package pipeline spawns and supervises the chain of external processes
// that perform one job: a frame producer whose standard output is piped
// into an encoder's standard input, with progress parsed from the
// producer's diagnostic stream.
//
// The orchestration protocol is written once in [Runner] and reused by
// every processing kind: preflight, launch, wire, observe, join, verdict,
// cleanup. Cancellation fans out to both stages, each with its own grace
// period before a forced kill.
package pipeline

import (
	"fmt"
	"time"
)

// Stage describes one external process in a pipeline.
type Stage struct {
	// Name identifies the stage in logs and errors, e.g. "producer".
	Name string

	// Command is the executable path or name.
	Command string

	// Args are the command arguments.
	Args []string

	// Env, when non-nil, replaces the inherited environment.
	Env []string

	// ParseProgress extracts frame progress from one diagnostic line.
	// Nil means the stage reports no progress; its stderr is drained for
	// logging only.
	ParseProgress func(line string) (current, total int64, ok bool)

	// GracePeriod is how long the stage may run after a termination
	// request before it is killed.
	GracePeriod time.Duration
}

// Preflight is an optional validation run of the producer in an
// info-only mode. It converts a silent multi-minute hang (for example a
// first-run model compilation that never finishes) into a fast,
// diagnosable failure before any encoding time is spent.
type Preflight struct {
	Command string
	Args    []string
	Timeout time.Duration
}

// Definition is the full pipeline for one job: one or two stages, the
// progress phase weighting, and artifacts to clean up afterwards.
type Definition struct {
	// InputPath is checked for existence before anything is spawned.
	InputPath string

	// Stages holds 1 or 2 stages. With two, the first stage's stdout is
	// piped into the second's stdin.
	Stages []Stage

	// Preflight, when non-nil, runs before the real pipeline.
	Preflight *Preflight

	// Phases weight the job's overall progress; see PhaseTracker. When
	// empty the pipeline's frame progress maps directly to 0–100.
	Phases []Phase

	// TempFiles are removed during cleanup regardless of outcome.
	TempFiles []string
}

// Validate checks structural soundness of the definition.
func (d *Definition) Validate() error {
	if len(d.Stages) == 0 || len(d.Stages) > 2 {
		return &Error{Reason: ReasonBadDefinition, Msg: fmt.Sprintf("pipeline needs 1 or 2 stages, got %d", len(d.Stages))}
	}
	for _, s := range d.Stages {
		if s.Command == "" {
			return &Error{Reason: ReasonBadDefinition, Stage: s.Name, Msg: "stage has no command"}
		}
	}
	return nil
}

// FailureReason classifies pipeline failures so operators can tell
// configuration problems from transient runtime problems.
type FailureReason string

const (
	// ReasonInputMissing means the source file does not exist.
	ReasonInputMissing FailureReason = "input_missing"
	// ReasonToolNotFound means a required external binary is absent.
	ReasonToolNotFound FailureReason = "tool_not_found"
	// ReasonBadDefinition means the plugin could not build valid stages
	// from the job's settings.
	ReasonBadDefinition FailureReason = "bad_definition"
	// ReasonPreflightTimeout means validation exceeded its deadline.
	ReasonPreflightTimeout FailureReason = "preflight_timeout"
	// ReasonPreflightFailed means validation exited non-zero.
	ReasonPreflightFailed FailureReason = "preflight_failed"
	// ReasonStageFailed means a stage exited non-zero at runtime.
	ReasonStageFailed FailureReason = "stage_failed"
	// ReasonStreamCopy means the producer→encoder byte copy failed while
	// neither cancellation nor a stage exit explains it.
	ReasonStreamCopy FailureReason = "stream_copy"
	// ReasonCancelled means the run was cancelled; not an error in the
	// operator sense, but the pipeline did not produce output.
	ReasonCancelled FailureReason = "cancelled"
)

// Error is the pipeline failure type. Msg is the operator-facing message;
// Detail carries raw diagnostic output from the failing stage.
type Error struct {
	Reason FailureReason
	Stage  string
	Msg    string
	Detail string
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("pipeline: %s: %s: %s", e.Stage, e.Reason, e.Msg)
	}
	return fmt.Sprintf("pipeline: %s: %s", e.Reason, e.Msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }
