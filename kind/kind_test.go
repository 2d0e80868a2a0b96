package kind

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	upscaler "github.com/CheapNud/CheapUpscaler-sub000"
	"github.com/CheapNud/CheapUpscaler-sub000/id"
	"github.com/CheapNud/CheapUpscaler-sub000/job"
	"github.com/CheapNud/CheapUpscaler-sub000/pipeline"
)

// fakeLocator pins every known tool to a harmless path so plugin tests
// never depend on the host's PATH.
func fakeLocator(t *testing.T) *Locator {
	t.Helper()
	return NewLocator(
		WithToolPath(ToolFFmpeg, "/opt/tools/ffmpeg"),
		WithToolPath(ToolFFprobe, "/opt/tools/ffprobe"),
		WithToolPath(ToolRife, "/opt/tools/rife-ncnn-vulkan"),
		WithToolPath(ToolRealESRGAN, "/opt/tools/realesrgan-ncnn-vulkan"),
	)
}

func testJob(t *testing.T, v job.SettingsVariant) *job.Job {
	t.Helper()
	settings, err := job.NewSettings(v)
	if err != nil {
		t.Fatal(err)
	}
	return &job.Job{
		ID:         id.NewJobID(),
		SourcePath: "/media/in/source.mkv",
		OutputPath: "/media/out/result.mkv",
		Kind:       v.SettingsKind(),
		Settings:   settings,
	}
}

func TestRegistryUnknownKind(t *testing.T) {
	r := NewRegistry()
	j := testJob(t, job.ScaleSettings{Width: 1920, Height: -1})
	_, err := r.Build(context.Background(), j)
	if !errors.Is(err, upscaler.ErrKindNotRegistered) {
		t.Fatalf("Build() = %v, want ErrKindNotRegistered", err)
	}
}

func TestDefaultRegistryCoversAllKinds(t *testing.T) {
	r := DefaultRegistry(fakeLocator(t), DefaultPhaseWeights())
	for _, k := range []job.Kind{job.KindInterpolate, job.KindUpscaleGAN, job.KindUpscaleCompact, job.KindScale} {
		if _, ok := r.Get(k); !ok {
			t.Errorf("no plugin registered for %q", k)
		}
	}
	if got := len(r.Kinds()); got != 4 {
		t.Errorf("Kinds() has %d entries, want 4", got)
	}
}

func TestInterpolateBuild(t *testing.T) {
	p := NewInterpolatePlugin(fakeLocator(t), DefaultPhaseWeights())
	j := testJob(t, job.InterpolateSettings{Model: "rife-v4.6", TargetFPS: 60, GPU: 1, UHD: true})

	def, err := p.Build(context.Background(), j)
	if err != nil {
		t.Fatalf("Build() = %v", err)
	}
	if len(def.Stages) != 2 {
		t.Fatalf("got %d stages, want 2", len(def.Stages))
	}
	producer, encoder := def.Stages[0], def.Stages[1]
	if producer.Command != "/opt/tools/rife-ncnn-vulkan" {
		t.Errorf("producer command = %q", producer.Command)
	}
	if producer.ParseProgress == nil {
		t.Error("producer has no progress parser")
	}
	args := strings.Join(producer.Args, " ")
	for _, want := range []string{"-m rife-v4.6", "-f 60", "-g 1", "-u", "-o -"} {
		if !strings.Contains(args, want) {
			t.Errorf("producer args %q missing %q", args, want)
		}
	}
	if encoder.Command != "/opt/tools/ffmpeg" {
		t.Errorf("encoder command = %q", encoder.Command)
	}
	encArgs := strings.Join(encoder.Args, " ")
	if !strings.Contains(encArgs, "-i pipe:0") {
		t.Errorf("encoder args %q do not read stdin", encArgs)
	}
	if !strings.Contains(encArgs, j.OutputPath) {
		t.Errorf("encoder args %q missing output path", encArgs)
	}
	if def.Preflight == nil {
		t.Fatal("interpolate pipeline has no preflight")
	}
	if !strings.Contains(strings.Join(def.Preflight.Args, " "), os.DevNull) {
		t.Error("preflight writes real output")
	}
	if len(def.Phases) == 0 {
		t.Error("no phase weights applied")
	}
}

func TestInterpolateBuildRejectsMissingModel(t *testing.T) {
	p := NewInterpolatePlugin(fakeLocator(t), DefaultPhaseWeights())
	j := testJob(t, job.InterpolateSettings{})
	_, err := p.Build(context.Background(), j)
	var perr *pipeline.Error
	if !errors.As(err, &perr) || perr.Reason != pipeline.ReasonBadDefinition {
		t.Fatalf("Build() = %v, want bad_definition", err)
	}
}

func TestInterpolateBuildRejectsKindMismatch(t *testing.T) {
	p := NewInterpolatePlugin(fakeLocator(t), DefaultPhaseWeights())
	j := testJob(t, job.ScaleSettings{Width: 1280, Height: 720})
	j.Kind = job.KindInterpolate
	_, err := p.Build(context.Background(), j)
	var perr *pipeline.Error
	if !errors.As(err, &perr) || perr.Reason != pipeline.ReasonBadDefinition {
		t.Fatalf("Build() = %v, want bad_definition", err)
	}
}

func TestInterpolateBuildMissingTool(t *testing.T) {
	loc := NewLocator(
		WithToolPath(ToolRife, ""),
		WithToolPath(ToolFFmpeg, "/opt/tools/ffmpeg"),
	)
	p := NewInterpolatePlugin(loc, DefaultPhaseWeights())
	j := testJob(t, job.InterpolateSettings{Model: "rife-v4.6"})
	_, err := p.Build(context.Background(), j)
	var perr *pipeline.Error
	if !errors.As(err, &perr) || perr.Reason != pipeline.ReasonToolNotFound {
		t.Fatalf("Build() = %v, want tool_not_found", err)
	}
}

func TestUpscaleBuildVariants(t *testing.T) {
	weights := DefaultPhaseWeights()
	loc := fakeLocator(t)

	gan := NewUpscaleGANPlugin(loc, weights)
	def, err := gan.Build(context.Background(), testJob(t, job.UpscaleGANSettings{
		UpscaleParams: job.UpscaleParams{Model: "realesrgan-x4plus", Scale: 4, TileSize: 256},
	}))
	if err != nil {
		t.Fatalf("gan Build() = %v", err)
	}
	args := strings.Join(def.Stages[0].Args, " ")
	for _, want := range []string{"-n realesrgan-x4plus", "-s 4", "-t 256"} {
		if !strings.Contains(args, want) {
			t.Errorf("gan producer args %q missing %q", args, want)
		}
	}
	if strings.Contains(args, "-dn") {
		t.Errorf("gan producer args %q carry a denoise flag", args)
	}

	compact := NewUpscaleCompactPlugin(loc, weights)
	def, err = compact.Build(context.Background(), testJob(t, job.UpscaleCompactSettings{
		UpscaleParams: job.UpscaleParams{Model: "realesr-general-x4v3", Scale: 2, DenoiseStrength: 0.5},
	}))
	if err != nil {
		t.Fatalf("compact Build() = %v", err)
	}
	args = strings.Join(def.Stages[0].Args, " ")
	if !strings.Contains(args, "-dn 0.5") {
		t.Errorf("compact producer args %q missing denoise strength", args)
	}
}

func TestUpscaleBuildValidation(t *testing.T) {
	p := NewUpscaleGANPlugin(fakeLocator(t), DefaultPhaseWeights())
	tests := []struct {
		name   string
		params job.UpscaleParams
	}{
		{"missing model", job.UpscaleParams{Scale: 4}},
		{"bad scale", job.UpscaleParams{Model: "realesrgan-x4plus", Scale: 5}},
		{"denoise out of range", job.UpscaleParams{Model: "realesrgan-x4plus", Scale: 2, DenoiseStrength: 1.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := testJob(t, job.UpscaleGANSettings{UpscaleParams: tt.params})
			_, err := p.Build(context.Background(), j)
			var perr *pipeline.Error
			if !errors.As(err, &perr) || perr.Reason != pipeline.ReasonBadDefinition {
				t.Fatalf("Build() = %v, want bad_definition", err)
			}
		})
	}
}

func TestScaleBuild(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test stubs ffprobe with a shell script")
	}
	dir := t.TempDir()
	ffprobe := filepath.Join(dir, "ffprobe")
	if err := os.WriteFile(ffprobe, []byte("#!/bin/sh\necho 1500\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	loc := NewLocator(
		WithToolPath(ToolFFmpeg, "/opt/tools/ffmpeg"),
		WithToolPath(ToolFFprobe, ffprobe),
	)
	p := NewScalePlugin(loc)
	j := testJob(t, job.ScaleSettings{Width: 1920, Height: -1, CRF: 20})

	def, err := p.Build(context.Background(), j)
	if err != nil {
		t.Fatalf("Build() = %v", err)
	}
	if len(def.Stages) != 1 {
		t.Fatalf("got %d stages, want 1", len(def.Stages))
	}
	args := strings.Join(def.Stages[0].Args, " ")
	if !strings.Contains(args, "scale=1920:-1:flags=lanczos") {
		t.Errorf("args %q missing scale filter", args)
	}
	if !strings.Contains(args, "-crf 20") {
		t.Errorf("args %q missing crf", args)
	}
	parse := def.Stages[0].ParseProgress
	if parse == nil {
		t.Fatal("scale stage has no progress parser despite a probed frame count")
	}
	current, total, ok := parse("frame=  750 fps= 48 q=28.0 size=  102400KiB")
	if !ok || current != 750 || total != 1500 {
		t.Fatalf("parse = (%d, %d, %v), want (750, 1500, true)", current, total, ok)
	}
}

func TestScaleBuildRejectsZeroDimensions(t *testing.T) {
	p := NewScalePlugin(fakeLocator(t))
	j := testJob(t, job.ScaleSettings{Width: 0, Height: 720})
	_, err := p.Build(context.Background(), j)
	var perr *pipeline.Error
	if !errors.As(err, &perr) || perr.Reason != pipeline.ReasonBadDefinition {
		t.Fatalf("Build() = %v, want bad_definition", err)
	}
}

func TestLocatorReport(t *testing.T) {
	loc := NewLocator(
		WithToolPath(ToolFFmpeg, "/opt/tools/ffmpeg"),
		WithToolPath(ToolFFprobe, ""),
		WithToolPath(ToolRife, ""),
		WithToolPath(ToolRealESRGAN, ""),
	)
	report := loc.Report()
	if len(report) != 4 {
		t.Fatalf("report has %d entries, want 4", len(report))
	}
	byName := make(map[string]Dependency, len(report))
	for _, d := range report {
		byName[d.Name] = d
	}
	if d := byName[ToolFFmpeg]; !d.Found || d.Path != "/opt/tools/ffmpeg" {
		t.Errorf("ffmpeg status = %+v, want found at override path", d)
	}
	if d := byName[ToolRife]; d.Found {
		t.Errorf("rife status = %+v, want not found", d)
	}
}

func TestFfmpegProgressUnknownTotal(t *testing.T) {
	if parse := ffmpegProgress(0); parse != nil {
		t.Fatal("ffmpegProgress(0) != nil, want no parser for unknown totals")
	}
}
