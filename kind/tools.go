package kind

import (
	"fmt"
	"os/exec"
	"sort"
	"sync"

	"github.com/CheapNud/CheapUpscaler-sub000/pipeline"
)

// External binaries the built-in plugins invoke.
const (
	ToolFFmpeg     = "ffmpeg"
	ToolFFprobe    = "ffprobe"
	ToolRife       = "rife-ncnn-vulkan"
	ToolRealESRGAN = "realesrgan-ncnn-vulkan"
)

// Dependency is the discovery status of one external binary.
type Dependency struct {
	Name  string `json:"name"`
	Path  string `json:"path,omitempty"`
	Found bool   `json:"found"`
}

// Locator resolves external binaries. Lookups go through the PATH unless
// an explicit override is configured, and absence is reported as status
// rather than an error so callers can decide whether the tool is required
// for the job at hand.
type Locator struct {
	mu        sync.Mutex
	overrides map[string]string
	cache     map[string]string
}

// LocatorOption configures a Locator.
type LocatorOption func(*Locator)

// WithToolPath pins a tool name to an explicit path, bypassing PATH
// lookup. Useful for bundled binaries or test doubles.
func WithToolPath(name, path string) LocatorOption {
	return func(l *Locator) {
		l.overrides[name] = path
	}
}

// NewLocator builds a Locator.
func NewLocator(opts ...LocatorOption) *Locator {
	l := &Locator{
		overrides: make(map[string]string),
		cache:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Resolve returns the path of a tool and whether it was found.
func (l *Locator) Resolve(name string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if path, ok := l.overrides[name]; ok {
		return path, path != ""
	}
	if path, ok := l.cache[name]; ok {
		return path, path != ""
	}
	path, err := exec.LookPath(name)
	if err != nil {
		path = ""
	}
	l.cache[name] = path
	return path, path != ""
}

// require resolves a tool or fails with the pipeline's tool-not-found
// classification.
func (l *Locator) require(name string) (string, error) {
	path, ok := l.Resolve(name)
	if !ok {
		return "", &pipeline.Error{
			Reason: pipeline.ReasonToolNotFound,
			Msg:    fmt.Sprintf("required binary %q not found in PATH", name),
		}
	}
	return path, nil
}

// Report checks every known tool and returns their statuses sorted by
// name.
func (l *Locator) Report() []Dependency {
	names := []string{ToolFFmpeg, ToolFFprobe, ToolRife, ToolRealESRGAN}
	sort.Strings(names)
	out := make([]Dependency, 0, len(names))
	for _, name := range names {
		path, found := l.Resolve(name)
		out = append(out, Dependency{Name: name, Path: path, Found: found})
	}
	return out
}
