package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// defaultGrace bounds termination when a stage carries no grace period of
// its own.
const defaultGrace = 10 * time.Second

// tailLines is how many trailing diagnostic lines each stage keeps for
// error reporting.
const tailLines = 64

// Progress is one progress observation from a running pipeline.
type Progress struct {
	// Percent is the job's overall 0–100 progress, monotonic within one
	// run.
	Percent float64
	// CurrentFrame and TotalFrames are the raw frame counters from the
	// reporting stage.
	CurrentFrame int64
	TotalFrames  int64
	// Phase names the active weighted phase.
	Phase string
}

// ProgressFunc receives progress observations. Calls for one run are
// strictly ordered; the function must not block for long, it runs on the
// diagnostic-stream reader.
type ProgressFunc func(Progress)

// Runner executes pipeline definitions. The zero value is not usable;
// construct with NewRunner.
type Runner struct {
	logger *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner builds a Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one pipeline definition to completion: preflight, launch,
// wire, observe, join, verdict, cleanup. It blocks until both stages have
// exited and both stream tasks are done. Cancelling ctx fans out a
// termination request to every stage; each stage is killed after its own
// grace period. Temporary artifacts are removed regardless of outcome.
//
// A nil return means every stage exited zero. All other outcomes return a
// *Error carrying the failure reason and diagnostic detail.
func (r *Runner) Run(ctx context.Context, def *Definition, onProgress ProgressFunc) error {
	if err := def.Validate(); err != nil {
		return err
	}
	defer r.cleanup(def)

	if def.InputPath != "" {
		if _, err := os.Stat(def.InputPath); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return &Error{Reason: ReasonInputMissing, Msg: fmt.Sprintf("input file %q does not exist", def.InputPath), Err: err}
			}
			return &Error{Reason: ReasonInputMissing, Msg: fmt.Sprintf("input file %q is not readable", def.InputPath), Err: err}
		}
	}

	if def.Preflight != nil {
		if err := r.preflight(ctx, def.Preflight); err != nil {
			return err
		}
	}

	return r.execute(ctx, def, onProgress)
}

// ── preflight ──

func (r *Runner) preflight(ctx context.Context, pf *Preflight) error {
	timeout := pf.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	pfCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r.logger.Info("running pipeline preflight",
		slog.String("command", pf.Command),
		slog.Duration("timeout", timeout))

	start := time.Now()
	cmd := exec.CommandContext(pfCtx, pf.Command, pf.Args...)
	out, err := cmd.CombinedOutput()
	if err == nil {
		r.logger.Info("preflight passed", slog.Duration("elapsed", time.Since(start)))
		return nil
	}

	detail := tailOf(out, tailLines)
	if classified := classifyLaunch(err, "preflight"); classified != nil {
		return classified
	}
	if pfCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return &Error{
			Reason: ReasonPreflightTimeout,
			Stage:  "preflight",
			Msg:    fmt.Sprintf("validation did not finish within %s", timeout),
			Detail: detail,
			Err:    err,
		}
	}
	if ctx.Err() != nil {
		return cancelError(ctx, "preflight")
	}
	return &Error{
		Reason: ReasonPreflightFailed,
		Stage:  "preflight",
		Msg:    fmt.Sprintf("validation exited with an error: %v", err),
		Detail: detail,
		Err:    err,
	}
}

// ── launch / wire / observe / join ──

// stageRun is the live state of one spawned stage.
type stageRun struct {
	def     *Stage
	cmd     *exec.Cmd
	tail    *tailBuffer
	waitErr error
}

// errStreamSevered is the termination cause fanned out to surviving
// stages when the inter-stage copy fails.
var errStreamSevered = errors.New("pipeline: inter-stage stream severed")

func (r *Runner) execute(ctx context.Context, def *Definition, onProgress ProgressFunc) error {
	tracker := NewPhaseTracker(def.Phases)

	// Stages run under their own cancellation scope. When one side of the
	// pipe dies mid-stream the survivor must be torn down too, or the
	// producer blocks forever writing into the full, undrained pipe; that
	// teardown must not make the run look user-cancelled, so the outer ctx
	// stays untouched.
	stageCtx, stopStages := context.WithCancelCause(ctx)
	defer stopStages(nil)

	runs := make([]*stageRun, len(def.Stages))
	for i := range def.Stages {
		runs[i] = r.newStageRun(stageCtx, &def.Stages[i])
	}

	// Wire stage A's stdout into stage B's stdin before starting either
	// process. Pipes must exist first so a start failure leaves nothing
	// dangling.
	var (
		producerOut io.ReadCloser
		encoderIn   io.WriteCloser
	)
	if len(runs) == 2 {
		var err error
		producerOut, err = runs[0].cmd.StdoutPipe()
		if err != nil {
			return &Error{Reason: ReasonStageFailed, Stage: runs[0].def.Name, Msg: "cannot capture stdout", Err: err}
		}
		encoderIn, err = runs[1].cmd.StdinPipe()
		if err != nil {
			return &Error{Reason: ReasonStageFailed, Stage: runs[1].def.Name, Msg: "cannot open stdin", Err: err}
		}
	}

	stderrs := make([]io.ReadCloser, len(runs))
	for i, sr := range runs {
		pipe, err := sr.cmd.StderrPipe()
		if err != nil {
			return &Error{Reason: ReasonStageFailed, Stage: sr.def.Name, Msg: "cannot capture diagnostics", Err: err}
		}
		stderrs[i] = pipe
	}

	for i, sr := range runs {
		if err := sr.cmd.Start(); err != nil {
			// A later start failure must not leave earlier stages running.
			for _, prev := range runs[:i] {
				_ = prev.cmd.Process.Kill()
				_ = prev.cmd.Wait()
			}
			if classified := classifyLaunch(err, sr.def.Name); classified != nil {
				return classified
			}
			if ctx.Err() != nil {
				return cancelError(ctx, sr.def.Name)
			}
			return &Error{Reason: ReasonStageFailed, Stage: sr.def.Name, Msg: fmt.Sprintf("cannot start %s: %v", sr.def.Command, err), Err: err}
		}
		r.logger.Info("stage started",
			slog.String("stage", sr.def.Name),
			slog.String("command", sr.def.Command),
			slog.Int("pid", sr.cmd.Process.Pid))
	}

	var (
		wg      sync.WaitGroup
		copyErr error
	)
	if len(runs) == 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := io.Copy(encoderIn, producerOut)
			// Closing the encoder's stdin signals end-of-stream so it can
			// finalize its output.
			if cerr := encoderIn.Close(); err == nil {
				err = cerr
			}
			copyErr = err
			if err != nil {
				// The encoder stopped reading; terminate the producer so
				// the join below cannot wait on it forever.
				stopStages(errStreamSevered)
			}
		}()
	}

	for i, sr := range runs {
		wg.Add(1)
		go func(sr *stageRun, stderr io.Reader) {
			defer wg.Done()
			r.observe(sr, stderr, tracker, onProgress)
		}(sr, stderrs[i])
	}

	// cmd.Wait closes the pipes, so the stream tasks must finish first.
	wg.Wait()
	for _, sr := range runs {
		sr.waitErr = sr.cmd.Wait()
	}

	return verdict(ctx, runs, copyErr)
}

// newStageRun prepares one stage's command with graceful-then-forced
// termination: on context cancellation the stage receives SIGTERM, and is
// killed if still alive when its grace period elapses.
func (r *Runner) newStageRun(ctx context.Context, s *Stage) *stageRun {
	cmd := exec.CommandContext(ctx, s.Command, s.Args...)
	if s.Env != nil {
		cmd.Env = s.Env
	}
	cmd.Cancel = func() error {
		r.logger.Info("requesting stage termination", slog.String("stage", s.Name))
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	grace := s.GracePeriod
	if grace <= 0 {
		grace = defaultGrace
	}
	cmd.WaitDelay = grace
	return &stageRun{def: s, cmd: cmd, tail: newTailBuffer(tailLines)}
}

// observe reads one stage's diagnostic stream line by line, feeding
// progress reports through the tracker and keeping a bounded tail for
// error reporting. Tool diagnostics terminate lines with either a newline
// or a bare carriage return (in-place progress updates), so both are
// treated as line boundaries.
func (r *Runner) observe(sr *stageRun, stderr io.Reader, tracker *PhaseTracker, onProgress ProgressFunc) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(scanLinesOrCR)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		sr.tail.append(line)
		if sr.def.ParseProgress == nil || onProgress == nil {
			continue
		}
		current, total, ok := sr.def.ParseProgress(line)
		if !ok {
			continue
		}
		onProgress(Progress{
			Percent:      tracker.Update(current, total),
			CurrentFrame: current,
			TotalFrames:  total,
			Phase:        tracker.Phase(),
		})
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, fs.ErrClosed) {
		r.logger.Debug("diagnostic stream closed", slog.String("stage", sr.def.Name), slog.Any("error", err))
	}
	// End of the reporting stage's stream means its phase is done; later
	// phases (encoder flush, container finalize) take over the bar.
	if sr.def.ParseProgress != nil && onProgress != nil && tracker.Advance() {
		onProgress(Progress{
			Percent: tracker.Update(0, 0),
			Phase:   tracker.Phase(),
		})
	}
}

// ── verdict ──

// verdict classifies the joined outcome. Cancellation dominates: once the
// outer context is done, non-zero exits and broken pipes are consequences
// of the termination fan-out, not independent failures. Otherwise a
// non-zero exit in either stage fails the whole pipeline even if the
// other stage exited cleanly. A copy failure on its own is also fatal:
// the byte stream was severed mid-run, so the output is truncated. A
// stage that died by signal after the copy failed was torn down by the
// runner itself and never masks the root cause.
func verdict(ctx context.Context, runs []*stageRun, copyErr error) error {
	if ctx.Err() != nil {
		return cancelError(ctx, "")
	}
	for _, sr := range runs {
		if sr.waitErr == nil {
			continue
		}
		if copyErr != nil && signalDeath(sr.waitErr) {
			continue
		}
		return &Error{
			Reason: ReasonStageFailed,
			Stage:  sr.def.Name,
			Msg:    fmt.Sprintf("%s: %v", sr.def.Command, sr.waitErr),
			Detail: sr.tail.String(),
			Err:    sr.waitErr,
		}
	}
	if copyErr != nil {
		if isBrokenPipe(copyErr) {
			return &Error{Reason: ReasonStreamCopy, Msg: "encoder stopped consuming the stream before the producer finished", Err: copyErr}
		}
		return &Error{Reason: ReasonStreamCopy, Msg: fmt.Sprintf("producer to encoder stream copy failed: %v", copyErr), Err: copyErr}
	}
	return nil
}

// signalDeath reports whether a stage exited because of a signal rather
// than its own exit call.
func signalDeath(err error) bool {
	var ee *exec.ExitError
	return errors.As(err, &ee) && ee.ExitCode() == -1
}

func cancelError(ctx context.Context, stage string) error {
	cause := context.Cause(ctx)
	return &Error{Reason: ReasonCancelled, Stage: stage, Msg: "pipeline cancelled", Err: cause}
}

// classifyLaunch maps spawn-time errors onto the failure taxonomy.
func classifyLaunch(err error, stage string) *Error {
	if errors.Is(err, exec.ErrNotFound) {
		return &Error{Reason: ReasonToolNotFound, Stage: stage, Msg: fmt.Sprintf("required binary not found: %v", err), Err: err}
	}
	return nil
}

// isBrokenPipe reports whether err is the expected result of the encoder
// exiting (or being terminated) while the producer still had bytes to
// write.
func isBrokenPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, fs.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}

// ── cleanup ──

func (r *Runner) cleanup(def *Definition) {
	for _, path := range def.TempFiles {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			r.logger.Warn("temp artifact not removed", slog.String("path", path), slog.Any("error", err))
		}
	}
}

// ── diagnostics ──

// scanLinesOrCR is a bufio.SplitFunc treating "\n", "\r\n" and a bare
// "\r" as line terminators.
func scanLinesOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			return i + 2, data[:i], nil
		}
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// tailBuffer keeps the last max lines written to it.
type tailBuffer struct {
	mu    sync.Mutex
	lines []string
	max   int
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, line)
	if len(b.lines) > b.max {
		b.lines = b.lines[len(b.lines)-b.max:]
	}
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.lines, "\n")
}

func tailOf(out []byte, max int) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) > max {
		lines = lines[len(lines)-max:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
