package queue

import (
	"context"
	"testing"
	"time"

	"github.com/CheapNud/CheapUpscaler-sub000/id"
)

func TestGateBounds(t *testing.T) {
	g := NewGate(2)
	if g.Cap() != 2 {
		t.Fatalf("Cap() = %d, want 2", g.Cap())
	}
	if !g.TryAcquire() || !g.TryAcquire() {
		t.Fatal("could not take the free slots")
	}
	if g.TryAcquire() {
		t.Fatal("took a third slot from a gate of two")
	}
	if g.InUse() != 2 {
		t.Fatalf("InUse() = %d, want 2", g.InUse())
	}
	g.Release()
	if !g.TryAcquire() {
		t.Fatal("released slot not reusable")
	}
}

func TestGateAcquireBlocksUntilRelease(t *testing.T) {
	g := NewGate(1)
	if err := g.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}

	acquired := make(chan error, 1)
	go func() {
		acquired <- g.Acquire(context.Background())
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire returned while the slot was held")
	case <-time.After(50 * time.Millisecond):
	}

	g.Release()
	select {
	case err := <-acquired:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("Acquire did not wake after Release")
	}
}

func TestGateAcquireHonorsContext(t *testing.T) {
	g := NewGate(1)
	if err := g.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := g.Acquire(ctx); err == nil {
		t.Fatal("Acquire() = nil on a done context")
	}
}

func TestGateMinimumOneSlot(t *testing.T) {
	g := NewGate(0)
	if g.Cap() != 1 {
		t.Fatalf("Cap() = %d, want 1", g.Cap())
	}
}

func TestFIFOOrder(t *testing.T) {
	f := newFIFO()
	ids := []id.JobID{id.NewJobID(), id.NewJobID(), id.NewJobID()}
	for _, jobID := range ids {
		f.push(jobID)
	}
	if f.len() != 3 {
		t.Fatalf("len() = %d, want 3", f.len())
	}
	for i, want := range ids {
		got, ok := f.pop()
		if !ok || got != want {
			t.Fatalf("pop %d = (%v, %v), want %v", i, got, ok, want)
		}
	}
	if _, ok := f.pop(); ok {
		t.Fatal("pop on empty fifo returned an item")
	}
}

func TestFIFOWake(t *testing.T) {
	f := newFIFO()
	select {
	case <-f.wake():
		t.Fatal("wake fired before any push")
	default:
	}
	f.push(id.NewJobID())
	select {
	case <-f.wake():
	case <-time.After(time.Second):
		t.Fatal("wake did not fire after push")
	}
}
