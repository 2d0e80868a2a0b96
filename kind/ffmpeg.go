package kind

import (
	"context"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/CheapNud/CheapUpscaler-sub000/pipeline"
)

// muxEncoderStage builds the common downstream ffmpeg stage: video read
// from stdin, audio and subtitles mapped through from the source file so
// streams the producer cannot carry survive the transcode.
func muxEncoderStage(ffmpeg, sourcePath, outputPath string, videoArgs []string) pipeline.Stage {
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-i", sourcePath,
		"-map", "0:v:0",
		"-map", "1:a?",
		"-map", "1:s?",
	}
	args = append(args, videoArgs...)
	args = append(args, "-c:a", "copy", "-c:s", "copy", outputPath)
	return pipeline.Stage{
		Name:    "encoder",
		Command: ffmpeg,
		Args:    args,
	}
}

// ffmpegFrameRe matches ffmpeg's status lines, e.g. "frame=  123 fps=...".
var ffmpegFrameRe = regexp.MustCompile(`frame=\s*(\d+)`)

// ffmpegProgress builds a progress parser for a bare ffmpeg stage. ffmpeg
// reports only the current frame, so the total comes from probing the
// source up front; with an unknown total the stage reports no progress.
func ffmpegProgress(totalFrames int64) func(string) (int64, int64, bool) {
	if totalFrames <= 0 {
		return nil
	}
	return func(line string) (int64, int64, bool) {
		m := ffmpegFrameRe.FindStringSubmatch(line)
		if m == nil {
			return 0, 0, false
		}
		current, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, 0, false
		}
		if current > totalFrames {
			current = totalFrames
		}
		return current, totalFrames, true
	}
}

// probeFrameCount asks ffprobe for the source's video frame count. Zero
// with a nil error means the container does not record one.
func probeFrameCount(ctx context.Context, ffprobe, sourcePath string) (int64, error) {
	probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-count_packets",
		"-show_entries", "stream=nb_read_packets",
		"-of", "default=nokey=1:noprint_wrappers=1",
		sourcePath,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, err
	}
	raw := strings.TrimSpace(string(out))
	if raw == "" || raw == "N/A" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, nil
	}
	return n, nil
}
