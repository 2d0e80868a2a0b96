package kind

import (
	"github.com/CheapNud/CheapUpscaler-sub000/job"
	"github.com/CheapNud/CheapUpscaler-sub000/pipeline"
)

// PhaseWeights maps each processing kind to its weighted progress phases.
// The weights are heuristic tuning, not a contract; override per
// deployment if the defaults misrepresent where time actually goes.
type PhaseWeights map[job.Kind][]pipeline.Phase

// DefaultPhaseWeights reserves a small slice of the bar for the encoder
// flushing and finalizing the container after the producer's frame stream
// ends.
func DefaultPhaseWeights() PhaseWeights {
	return PhaseWeights{
		job.KindInterpolate: {
			{Name: "interpolate", Weight: 95},
			{Name: "finalize", Weight: 5},
		},
		job.KindUpscaleGAN: {
			{Name: "upscale", Weight: 95},
			{Name: "finalize", Weight: 5},
		},
		job.KindUpscaleCompact: {
			{Name: "upscale", Weight: 95},
			{Name: "finalize", Weight: 5},
		},
		job.KindScale: {
			{Name: "scale", Weight: 100},
		},
	}
}

func (w PhaseWeights) phasesFor(k job.Kind) []pipeline.Phase {
	if w == nil {
		return DefaultPhaseWeights()[k]
	}
	return w[k]
}
