package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"
)

func requireSh(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests drive synthetic stages through /bin/sh")
	}
}

func shStage(name, script string, parse func(string) (int64, int64, bool)) Stage {
	return Stage{
		Name:          name,
		Command:       "/bin/sh",
		Args:          []string{"-c", script},
		ParseProgress: parse,
		GracePeriod:   5 * time.Second,
	}
}

// progressSink collects progress reports in order.
type progressSink struct {
	mu      sync.Mutex
	reports []Progress
}

func (s *progressSink) record(p Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, p)
}

func (s *progressSink) all() []Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Progress(nil), s.reports...)
}

func TestRunTwoStageSuccess(t *testing.T) {
	requireSh(t)

	sink := &progressSink{}
	def := &Definition{
		Stages: []Stage{
			shStage("producer",
				`printf 'payload'; printf 'Frame: 250/1000\nFrame: 1000/1000\n' >&2`,
				FrameProgress),
			shStage("encoder", `cat > /dev/null`, nil),
		},
	}

	err := NewRunner().Run(context.Background(), def, sink.record)
	if err != nil {
		t.Fatalf("Run() = %v, want nil", err)
	}

	reports := sink.all()
	if len(reports) != 2 {
		t.Fatalf("got %d progress reports, want 2", len(reports))
	}
	if reports[0].Percent != 25.0 {
		t.Errorf("first report = %v%%, want 25.0", reports[0].Percent)
	}
	if reports[0].CurrentFrame != 250 || reports[0].TotalFrames != 1000 {
		t.Errorf("first report frames = %d/%d, want 250/1000", reports[0].CurrentFrame, reports[0].TotalFrames)
	}
	if reports[1].Percent != 100.0 {
		t.Errorf("second report = %v%%, want 100.0", reports[1].Percent)
	}
}

func TestRunEncoderFailureFailsPipeline(t *testing.T) {
	requireSh(t)

	def := &Definition{
		Stages: []Stage{
			shStage("producer", `printf 'payload'`, nil),
			shStage("encoder", `echo 'codec blew up' >&2; exit 1`, nil),
		},
	}

	err := NewRunner().Run(context.Background(), def, nil)
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("Run() = %v, want *Error", err)
	}
	if perr.Reason != ReasonStageFailed {
		t.Fatalf("reason = %q, want %q", perr.Reason, ReasonStageFailed)
	}
	if perr.Stage != "encoder" {
		t.Errorf("stage = %q, want encoder", perr.Stage)
	}
	if !strings.Contains(perr.Detail, "codec blew up") {
		t.Errorf("detail %q does not carry the stage diagnostics", perr.Detail)
	}
}

func TestRunProducerFailureFailsPipeline(t *testing.T) {
	requireSh(t)

	def := &Definition{
		Stages: []Stage{
			shStage("producer", `echo 'model load failed' >&2; exit 3`, nil),
			shStage("encoder", `cat > /dev/null`, nil),
		},
	}

	err := NewRunner().Run(context.Background(), def, nil)
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("Run() = %v, want *Error", err)
	}
	if perr.Reason != ReasonStageFailed {
		t.Fatalf("reason = %q, want %q", perr.Reason, ReasonStageFailed)
	}
	if perr.Stage != "producer" {
		t.Errorf("stage = %q, want producer", perr.Stage)
	}
}

func TestRunEncoderEarlyExitTerminatesProducer(t *testing.T) {
	requireSh(t)

	// The producer streams indefinitely and only stops when told to; the
	// encoder dies immediately. The run must unwind within the producer's
	// grace period instead of blocking on the dead pipe.
	def := &Definition{
		Stages: []Stage{
			shStage("producer",
				`trap 'exit 0' TERM; while :; do printf '%08192d' 0; sleep 0.01; done`,
				nil),
			shStage("encoder", `echo 'cannot parse stream' >&2; exit 1`, nil),
		},
	}

	done := make(chan error, 1)
	go func() {
		done <- NewRunner().Run(context.Background(), def, nil)
	}()

	select {
	case err := <-done:
		var perr *Error
		if !errors.As(err, &perr) {
			t.Fatalf("Run() = %v, want *Error", err)
		}
		if perr.Reason != ReasonStageFailed {
			t.Fatalf("reason = %q, want %q", perr.Reason, ReasonStageFailed)
		}
		if perr.Stage != "encoder" {
			t.Errorf("stage = %q, want encoder (the stage that actually failed)", perr.Stage)
		}
		if !strings.Contains(perr.Detail, "cannot parse stream") {
			t.Errorf("detail %q does not carry the encoder diagnostics", perr.Detail)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("pipeline never unwound after the encoder exited")
	}
}

func TestRunEncoderEarlyCleanExitFailsAsTruncation(t *testing.T) {
	requireSh(t)

	// An encoder that exits zero without consuming the whole stream still
	// produced a truncated output; the run must fail, not hang and not pass.
	def := &Definition{
		Stages: []Stage{
			shStage("producer",
				`trap 'exit 0' TERM; while :; do printf '%08192d' 0; sleep 0.01; done`,
				nil),
			shStage("encoder", `head -c 100 > /dev/null; exit 0`, nil),
		},
	}

	done := make(chan error, 1)
	go func() {
		done <- NewRunner().Run(context.Background(), def, nil)
	}()

	select {
	case err := <-done:
		var perr *Error
		if !errors.As(err, &perr) {
			t.Fatalf("Run() = %v, want *Error", err)
		}
		if perr.Reason != ReasonStreamCopy {
			t.Fatalf("reason = %q, want %q", perr.Reason, ReasonStreamCopy)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("pipeline never unwound after the encoder stopped reading")
	}
}

func TestRunSingleStage(t *testing.T) {
	requireSh(t)

	def := &Definition{
		Stages: []Stage{
			shStage("encoder", `printf 'Frame: 10/10\n' >&2`, FrameProgress),
		},
	}
	sink := &progressSink{}
	if err := NewRunner().Run(context.Background(), def, sink.record); err != nil {
		t.Fatalf("Run() = %v, want nil", err)
	}
	reports := sink.all()
	if len(reports) != 1 || reports[0].Percent != 100.0 {
		t.Fatalf("reports = %+v, want one at 100%%", reports)
	}
}

func TestRunCancelTerminatesStages(t *testing.T) {
	requireSh(t)

	started := make(chan struct{}, 1)
	def := &Definition{
		Stages: []Stage{
			{
				Name:    "producer",
				Command: "/bin/sh",
				Args:    []string{"-c", `echo started >&2; trap 'exit 0' TERM; while :; do sleep 0.1; done`},
				ParseProgress: func(line string) (int64, int64, bool) {
					if line == "started" {
						select {
						case started <- struct{}{}:
						default:
						}
					}
					return 0, 0, false
				},
				GracePeriod: 2 * time.Second,
			},
			shStage("encoder", `cat > /dev/null`, nil),
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- NewRunner().Run(ctx, def, func(Progress) {})
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("producer never reported startup")
	}
	cancel()

	select {
	case err := <-done:
		var perr *Error
		if !errors.As(err, &perr) {
			t.Fatalf("Run() = %v, want *Error", err)
		}
		if perr.Reason != ReasonCancelled {
			t.Fatalf("reason = %q, want %q", perr.Reason, ReasonCancelled)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not stop within the grace window")
	}
}

func TestRunCancelSurfacesCause(t *testing.T) {
	requireSh(t)

	cause := errors.New("operator pressed stop")
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(cause)

	def := &Definition{
		Stages: []Stage{shStage("producer", `sleep 10`, nil)},
	}
	err := NewRunner().Run(ctx, def, nil)
	if !errors.Is(err, cause) {
		t.Fatalf("Run() = %v, want cause %v", err, cause)
	}
}

func TestRunInputMissing(t *testing.T) {
	requireSh(t)

	def := &Definition{
		InputPath: filepath.Join(t.TempDir(), "no-such-file.mkv"),
		Stages:    []Stage{shStage("producer", `true`, nil)},
	}
	err := NewRunner().Run(context.Background(), def, nil)
	var perr *Error
	if !errors.As(err, &perr) || perr.Reason != ReasonInputMissing {
		t.Fatalf("Run() = %v, want input_missing", err)
	}
}

func TestRunToolNotFound(t *testing.T) {
	def := &Definition{
		Stages: []Stage{{Name: "producer", Command: "definitely-not-a-real-binary-4c1b"}},
	}
	err := NewRunner().Run(context.Background(), def, nil)
	var perr *Error
	if !errors.As(err, &perr) || perr.Reason != ReasonToolNotFound {
		t.Fatalf("Run() = %v, want tool_not_found", err)
	}
}

func TestRunBadDefinition(t *testing.T) {
	err := NewRunner().Run(context.Background(), &Definition{}, nil)
	var perr *Error
	if !errors.As(err, &perr) || perr.Reason != ReasonBadDefinition {
		t.Fatalf("Run() = %v, want bad_definition", err)
	}
}

func TestPreflightFailure(t *testing.T) {
	requireSh(t)

	def := &Definition{
		Preflight: &Preflight{
			Command: "/bin/sh",
			Args:    []string{"-c", `echo 'unsupported model' >&2; exit 2`},
			Timeout: 10 * time.Second,
		},
		Stages: []Stage{shStage("producer", `true`, nil)},
	}
	err := NewRunner().Run(context.Background(), def, nil)
	var perr *Error
	if !errors.As(err, &perr) || perr.Reason != ReasonPreflightFailed {
		t.Fatalf("Run() = %v, want preflight_failed", err)
	}
	if !strings.Contains(perr.Detail, "unsupported model") {
		t.Errorf("detail %q does not carry preflight output", perr.Detail)
	}
}

func TestPreflightTimeout(t *testing.T) {
	requireSh(t)

	def := &Definition{
		Preflight: &Preflight{
			Command: "/bin/sh",
			Args:    []string{"-c", `sleep 10`},
			Timeout: 200 * time.Millisecond,
		},
		Stages: []Stage{shStage("producer", `true`, nil)},
	}
	err := NewRunner().Run(context.Background(), def, nil)
	var perr *Error
	if !errors.As(err, &perr) || perr.Reason != ReasonPreflightTimeout {
		t.Fatalf("Run() = %v, want preflight_timeout", err)
	}
}

func TestCleanupRemovesTempFiles(t *testing.T) {
	requireSh(t)

	tmp := filepath.Join(t.TempDir(), "concat-list.txt")
	if err := os.WriteFile(tmp, []byte("file 'a.mkv'\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	def := &Definition{
		Stages:    []Stage{shStage("encoder", `exit 1`, nil)},
		TempFiles: []string{tmp, filepath.Join(t.TempDir(), "never-created.txt")},
	}
	if err := NewRunner().Run(context.Background(), def, nil); err == nil {
		t.Fatal("Run() = nil, want stage failure")
	}
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Fatalf("temp artifact still present after failed run: %v", err)
	}
}

func TestScanLinesOrCR(t *testing.T) {
	in := "plain line\nFrame: 1/10\rFrame: 2/10\r\nlast"
	scannerLines := scanAll(t, in)
	want := []string{"plain line", "Frame: 1/10", "Frame: 2/10", "last"}
	if len(scannerLines) != len(want) {
		t.Fatalf("got %d lines %q, want %d", len(scannerLines), scannerLines, len(want))
	}
	for i := range want {
		if scannerLines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, scannerLines[i], want[i])
		}
	}
}

func scanAll(t *testing.T, in string) []string {
	t.Helper()
	var out []string
	data := []byte(in)
	for {
		advance, token, err := scanLinesOrCR(data, true)
		if err != nil {
			t.Fatal(err)
		}
		if advance == 0 && token == nil {
			return out
		}
		out = append(out, string(token))
		data = data[advance:]
	}
}
