package queue

import (
	"sync"

	"github.com/CheapNud/CheapUpscaler-sub000/id"
)

// fifo is the unbounded work list the dispatch loop drains. Submission
// must never block, so items accumulate without backpressure; the
// concurrency gate, not this list, bounds resource use.
type fifo struct {
	mu     sync.Mutex
	items  []id.JobID
	notify chan struct{}
}

func newFIFO() *fifo {
	return &fifo{notify: make(chan struct{}, 1)}
}

// push appends a job id and wakes the dispatch loop.
func (f *fifo) push(jobID id.JobID) {
	f.mu.Lock()
	f.items = append(f.items, jobID)
	f.mu.Unlock()
	select {
	case f.notify <- struct{}{}:
	default:
	}
}

// pop removes and returns the oldest item.
func (f *fifo) pop() (id.JobID, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.items) == 0 {
		return id.JobID{}, false
	}
	jobID := f.items[0]
	f.items = f.items[1:]
	return jobID, true
}

// wake returns a channel that receives after a push.
func (f *fifo) wake() <-chan struct{} { return f.notify }

// len returns the number of queued items.
func (f *fifo) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}
