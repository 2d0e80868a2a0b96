package pipeline

import (
	"regexp"
	"sync"
	"time"
)

// frameRe matches the producer's progress lines, e.g. "Frame: 250/1000".
var frameRe = regexp.MustCompile(`Frame:\s*(\d+)/(\d+)`)

// FrameProgress parses a "Frame: N/M" diagnostic line. It returns ok=false
// for lines that carry no progress, and ignores reports with a zero total.
func FrameProgress(line string) (current, total int64, ok bool) {
	m := frameRe.FindStringSubmatch(line)
	if m == nil {
		return 0, 0, false
	}
	current = parseInt(m[1])
	total = parseInt(m[2])
	if total <= 0 {
		return 0, 0, false
	}
	return current, total, true
}

func parseInt(s string) int64 {
	var n int64
	for _, c := range s {
		n = n*10 + int64(c-'0')
	}
	return n
}

// Phase is one weighted segment of a job's overall progress bar.
type Phase struct {
	Name   string
	Weight float64
}

// PhaseTracker maps per-phase frame progress onto a single monotonic
// 0–100 scale. Multi-phase jobs (interpolate then upscale, for example)
// weight each phase so the bar does not reset between phases, and a
// phase that under-reports near its end never moves the bar backwards.
type PhaseTracker struct {
	mu      sync.Mutex
	phases  []Phase
	total   float64
	current int
	best    float64
}

// NewPhaseTracker builds a tracker over the given phases. With no phases
// the tracker behaves as a single unweighted phase.
func NewPhaseTracker(phases []Phase) *PhaseTracker {
	if len(phases) == 0 {
		phases = []Phase{{Name: "process", Weight: 1}}
	}
	var total float64
	for _, p := range phases {
		total += p.Weight
	}
	if total <= 0 {
		total = 1
	}
	return &PhaseTracker{phases: phases, total: total}
}

// Advance moves the tracker to the next phase, keeping progress already
// banked from completed phases. It reports whether a later phase existed.
func (t *PhaseTracker) Advance() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current >= len(t.phases)-1 {
		return false
	}
	t.current++
	return true
}

// Phase returns the name of the active phase.
func (t *PhaseTracker) Phase() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phases[t.current].Name
}

// Update records frame progress within the active phase and returns the
// overall percentage. The result never decreases for the lifetime of the
// tracker.
func (t *PhaseTracker) Update(current, total int64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	frac := 0.0
	if total > 0 {
		frac = float64(current) / float64(total)
		if frac > 1 {
			frac = 1
		}
	}
	var done float64
	for i := 0; i < t.current; i++ {
		done += t.phases[i].Weight
	}
	pct := (done + frac*t.phases[t.current].Weight) / t.total * 100
	if pct > t.best {
		t.best = pct
	}
	return t.best
}

// Percent returns the best overall percentage seen so far.
func (t *PhaseTracker) Percent() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.best
}

// EstimateRemaining projects time left from elapsed time and completed
// percentage. It returns nil until enough progress exists for the
// projection to mean anything.
func EstimateRemaining(startedAt time.Time, percent float64) *time.Duration {
	if percent <= 0.5 || percent > 100 {
		return nil
	}
	elapsed := time.Since(startedAt)
	if elapsed <= 0 {
		return nil
	}
	rem := time.Duration(float64(elapsed) * (100 - percent) / percent)
	return &rem
}
