package queue

import "context"

// Gate is the counting semaphore bounding simultaneously running jobs.
// It is the sole mechanism limiting parallelism; the dispatch loop
// itself issues work sequentially.
type Gate struct {
	slots chan struct{}
}

// NewGate creates a gate with n slots. n < 1 is treated as 1.
func NewGate(n int) *Gate {
	if n < 1 {
		n = 1
	}
	return &Gate{slots: make(chan struct{}, n)}
}

// Acquire blocks until a slot is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case g.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes a slot without blocking.
func (g *Gate) TryAcquire() bool {
	select {
	case g.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees a slot. Releasing more than was acquired panics; that is
// a bug in the caller, not a runtime condition.
func (g *Gate) Release() {
	select {
	case <-g.slots:
	default:
		panic("queue: gate released more times than acquired")
	}
}

// InUse returns the number of held slots.
func (g *Gate) InUse() int { return len(g.slots) }

// Cap returns the gate's capacity.
func (g *Gate) Cap() int { return cap(g.slots) }
