package kind

import (
	"context"
	"fmt"

	"github.com/CheapNud/CheapUpscaler-sub000/job"
	"github.com/CheapNud/CheapUpscaler-sub000/pipeline"
)

// ScalePlugin builds plain non-AI scaling pipelines: a single ffmpeg
// stage with a scale filter, no producer process. The source is probed
// for its frame count up front so ffmpeg's "frame=" status lines can be
// turned into a percentage.
type ScalePlugin struct {
	tools *Locator
}

// NewScalePlugin builds the plugin.
func NewScalePlugin(tools *Locator) *ScalePlugin {
	return &ScalePlugin{tools: tools}
}

// Kind implements Plugin.
func (p *ScalePlugin) Kind() job.Kind { return job.KindScale }

// Build implements Plugin.
func (p *ScalePlugin) Build(ctx context.Context, j *job.Job) (*pipeline.Definition, error) {
	settings, err := job.DecodeSettings[job.ScaleSettings](j.Settings)
	if err != nil {
		return nil, badSettings(job.KindScale, err)
	}
	if settings.Width == 0 || settings.Height == 0 {
		return nil, badSettings(job.KindScale, fmt.Errorf("output dimensions %dx%d are invalid", settings.Width, settings.Height))
	}
	if settings.Width < -1 || settings.Height < -1 {
		return nil, badSettings(job.KindScale, fmt.Errorf("output dimensions %dx%d are invalid", settings.Width, settings.Height))
	}

	ffmpeg, err := p.tools.require(ToolFFmpeg)
	if err != nil {
		return nil, err
	}
	ffprobe, err := p.tools.require(ToolFFprobe)
	if err != nil {
		return nil, err
	}

	// Best effort; some containers do not record a frame count, in which
	// case the job simply shows no percentage while it runs.
	totalFrames, err := probeFrameCount(ctx, ffprobe, j.SourcePath)
	if err != nil {
		totalFrames = 0
	}

	filter := settings.Filter
	if filter == "" {
		filter = "lanczos"
	}
	crf := settings.CRF
	if crf <= 0 {
		crf = 18
	}
	preset := settings.Preset
	if preset == "" {
		preset = "medium"
	}

	args := []string{
		"-y", "-hide_banner",
		"-i", j.SourcePath,
		"-vf", fmt.Sprintf("scale=%d:%d:flags=%s", settings.Width, settings.Height, filter),
		"-c:v", "libx264", "-preset", preset, "-crf", fmt.Sprint(crf),
		"-c:a", "copy", "-c:s", "copy",
		"-map", "0",
		j.OutputPath,
	}

	return &pipeline.Definition{
		InputPath: j.SourcePath,
		Stages: []pipeline.Stage{
			{
				Name:          "encoder",
				Command:       ffmpeg,
				Args:          args,
				ParseProgress: ffmpegProgress(totalFrames),
			},
		},
	}, nil
}
