package kind

import (
	"context"
	"fmt"
	"sync"

	upscaler "github.com/CheapNud/CheapUpscaler-sub000"
	"github.com/CheapNud/CheapUpscaler-sub000/job"
	"github.com/CheapNud/CheapUpscaler-sub000/pipeline"
)

// Plugin builds a pipeline definition for one processing kind. Build
// fails with a descriptive error when the settings payload cannot yield
// valid stage arguments.
type Plugin interface {
	// Kind returns the processing kind this plugin serves.
	Kind() job.Kind

	// Build turns the job's settings into concrete pipeline stages.
	Build(ctx context.Context, j *job.Job) (*pipeline.Definition, error)
}

// Registry holds one plugin per processing kind.
type Registry struct {
	mu      sync.RWMutex
	plugins map[job.Kind]Plugin
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[job.Kind]Plugin)}
}

// DefaultRegistry builds a registry with all built-in plugins wired to
// the given tools and phase weights.
func DefaultRegistry(tools *Locator, weights PhaseWeights) *Registry {
	r := NewRegistry()
	r.Register(NewInterpolatePlugin(tools, weights))
	r.Register(NewUpscaleGANPlugin(tools, weights))
	r.Register(NewUpscaleCompactPlugin(tools, weights))
	r.Register(NewScalePlugin(tools))
	return r
}

// Register adds or replaces the plugin for its kind.
func (r *Registry) Register(p Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[p.Kind()] = p
}

// Get returns the plugin for a kind.
func (r *Registry) Get(k job.Kind) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[k]
	return p, ok
}

// Kinds lists the registered kinds.
func (r *Registry) Kinds() []job.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]job.Kind, 0, len(r.plugins))
	for k := range r.plugins {
		out = append(out, k)
	}
	return out
}

// Build resolves the job's kind and builds its pipeline definition.
func (r *Registry) Build(ctx context.Context, j *job.Job) (*pipeline.Definition, error) {
	p, ok := r.Get(j.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", upscaler.ErrKindNotRegistered, j.Kind)
	}
	return p.Build(ctx, j)
}

// badSettings wraps settings decode/validation problems in the pipeline
// failure taxonomy so operators see them classified alongside runtime
// failures.
func badSettings(k job.Kind, err error) error {
	return &pipeline.Error{
		Reason: pipeline.ReasonBadDefinition,
		Msg:    fmt.Sprintf("invalid %s settings: %v", k, err),
		Err:    err,
	}
}
