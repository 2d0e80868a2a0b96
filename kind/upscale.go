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

// upscalePlugin covers both super-resolution variants. They share the
// backend binary and argument shape; the compact variant additionally
// supports a denoise strength.
type upscalePlugin struct {
	kind    job.Kind
	tools   *Locator
	phases  []pipeline.Phase
	denoise bool
}

// NewUpscaleGANPlugin builds the GAN super-resolution plugin.
func NewUpscaleGANPlugin(tools *Locator, weights PhaseWeights) Plugin {
	return &upscalePlugin{
		kind:   job.KindUpscaleGAN,
		tools:  tools,
		phases: weights.phasesFor(job.KindUpscaleGAN),
	}
}

// NewUpscaleCompactPlugin builds the compact super-resolution plugin.
func NewUpscaleCompactPlugin(tools *Locator, weights PhaseWeights) Plugin {
	return &upscalePlugin{
		kind:    job.KindUpscaleCompact,
		tools:   tools,
		phases:  weights.phasesFor(job.KindUpscaleCompact),
		denoise: true,
	}
}

// Kind implements Plugin.
func (p *upscalePlugin) Kind() job.Kind { return p.kind }

// Build implements Plugin.
func (p *upscalePlugin) Build(_ context.Context, j *job.Job) (*pipeline.Definition, error) {
	params, err := p.decode(j)
	if err != nil {
		return nil, err
	}
	if params.Model == "" {
		return nil, badSettings(p.kind, errors.New("model is required"))
	}
	switch params.Scale {
	case 2, 3, 4:
	default:
		return nil, badSettings(p.kind, fmt.Errorf("scale %d is not 2, 3 or 4", params.Scale))
	}
	if params.DenoiseStrength < 0 || params.DenoiseStrength > 1 {
		return nil, badSettings(p.kind, fmt.Errorf("denoise strength %v is outside 0–1", params.DenoiseStrength))
	}

	backend, err := p.tools.require(ToolRealESRGAN)
	if err != nil {
		return nil, err
	}
	ffmpeg, err := p.tools.require(ToolFFmpeg)
	if err != nil {
		return nil, err
	}

	base := []string{
		"-n", params.Model,
		"-s", strconv.Itoa(params.Scale),
		"-g", strconv.Itoa(params.GPU),
	}
	if params.TileSize > 0 {
		base = append(base, "-t", strconv.Itoa(params.TileSize))
	}
	if p.denoise && params.DenoiseStrength > 0 {
		base = append(base, "-dn", strconv.FormatFloat(params.DenoiseStrength, 'f', -1, 64))
	}

	producerArgs := append([]string{"-i", j.SourcePath, "-o", "-"}, base...)
	preflightArgs := append([]string{"-i", j.SourcePath, "-o", os.DevNull, "--frames", "1"}, base...)

	return &pipeline.Definition{
		InputPath: j.SourcePath,
		Preflight: &pipeline.Preflight{
			Command: backend,
			Args:    preflightArgs,
		},
		Stages: []pipeline.Stage{
			{
				Name:          "producer",
				Command:       backend,
				Args:          producerArgs,
				ParseProgress: pipeline.FrameProgress,
			},
			muxEncoderStage(ffmpeg, j.SourcePath, j.OutputPath, []string{
				"-c:v", "libx264", "-preset", "slow", "-crf", "16",
			}),
		},
		Phases: p.phases,
	}, nil
}

func (p *upscalePlugin) decode(j *job.Job) (job.UpscaleParams, error) {
	switch p.kind {
	case job.KindUpscaleGAN:
		s, err := job.DecodeSettings[job.UpscaleGANSettings](j.Settings)
		if err != nil {
			return job.UpscaleParams{}, badSettings(p.kind, err)
		}
		return s.UpscaleParams, nil
	default:
		s, err := job.DecodeSettings[job.UpscaleCompactSettings](j.Settings)
		if err != nil {
			return job.UpscaleParams{}, badSettings(p.kind, err)
		}
		return s.UpscaleParams, nil
	}
}
