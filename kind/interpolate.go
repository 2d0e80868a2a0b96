package kind

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/CheapNud/CheapUpscaler-sub000/job"
	"github.com/CheapNud/CheapUpscaler-sub000/pipeline"
)

// InterpolatePlugin builds RIFE-style frame interpolation pipelines: the
// interpolation backend streams frames on stdout while reporting
// "Frame: N/M" on stderr, and ffmpeg encodes the stream while carrying
// audio and subtitles over from the source.
type InterpolatePlugin struct {
	tools  *Locator
	phases []pipeline.Phase
}

// NewInterpolatePlugin builds the plugin.
func NewInterpolatePlugin(tools *Locator, weights PhaseWeights) *InterpolatePlugin {
	return &InterpolatePlugin{tools: tools, phases: weights.phasesFor(job.KindInterpolate)}
}

// Kind implements Plugin.
func (p *InterpolatePlugin) Kind() job.Kind { return job.KindInterpolate }

// Build implements Plugin.
func (p *InterpolatePlugin) Build(_ context.Context, j *job.Job) (*pipeline.Definition, error) {
	settings, err := job.DecodeSettings[job.InterpolateSettings](j.Settings)
	if err != nil {
		return nil, badSettings(job.KindInterpolate, err)
	}
	if settings.Model == "" {
		return nil, badSettings(job.KindInterpolate, errors.New("model is required"))
	}
	if settings.TargetFPS < 0 {
		return nil, badSettings(job.KindInterpolate, fmt.Errorf("target fps %v is negative", settings.TargetFPS))
	}

	rife, err := p.tools.require(ToolRife)
	if err != nil {
		return nil, err
	}
	ffmpeg, err := p.tools.require(ToolFFmpeg)
	if err != nil {
		return nil, err
	}

	producerArgs := []string{
		"-i", j.SourcePath,
		"-o", "-",
		"-m", settings.Model,
		"-g", strconv.Itoa(settings.GPU),
	}
	if settings.TargetFPS > 0 {
		producerArgs = append(producerArgs, "-f", strconv.FormatFloat(settings.TargetFPS, 'f', -1, 64))
	}
	if settings.UHD {
		producerArgs = append(producerArgs, "-u")
	}
	if settings.TTA {
		producerArgs = append(producerArgs, "-x")
	}

	// First use of a model can trigger a multi-minute shader compilation.
	// A single-frame dry run pays that cost under a bounded timeout
	// instead of looking like a hung encode.
	preflightArgs := []string{
		"-i", j.SourcePath,
		"-o", os.DevNull,
		"-m", settings.Model,
		"-g", strconv.Itoa(settings.GPU),
		"-n", "1",
	}

	return &pipeline.Definition{
		InputPath: j.SourcePath,
		Preflight: &pipeline.Preflight{
			Command: rife,
			Args:    preflightArgs,
		},
		Stages: []pipeline.Stage{
			{
				Name:          "producer",
				Command:       rife,
				Args:          producerArgs,
				ParseProgress: pipeline.FrameProgress,
			},
			muxEncoderStage(ffmpeg, j.SourcePath, j.OutputPath, []string{
				"-c:v", "libx264", "-preset", "slow", "-crf", "17",
			}),
		},
		Phases: p.phases,
	}, nil
}
