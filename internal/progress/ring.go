package progress

import (
	"context"
	"sync"
)

// DefaultRingCapacity bounds the in-memory event history.
const DefaultRingCapacity = 1024

// Ring is a fixed-capacity sink keeping the most recent events for operator
// queries. Older events are overwritten once the ring is full.
type Ring struct {
	mu       sync.RWMutex
	events   []Event
	capacity int
	next     int
	full     bool
}

// NewRing creates a Ring. Non-positive capacity selects the default.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &Ring{
		events:   make([]Event, capacity),
		capacity: capacity,
	}
}

var _ Sink = (*Ring)(nil)

// Consume appends the batch, overwriting the oldest events when full.
func (r *Ring) Consume(_ context.Context, batch []Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, evt := range batch {
		r.events[r.next] = evt
		r.next++
		if r.next == r.capacity {
			r.next = 0
			r.full = true
		}
	}
	return nil
}

// Close is a no-op; the ring has no external resources.
func (r *Ring) Close(context.Context) error {
	return nil
}

// Recent returns up to n events, newest first. A non-positive n returns
// everything retained.
func (r *Ring) Recent(n int) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	size := r.next
	if r.full {
		size = r.capacity
	}
	if n <= 0 || n > size {
		n = size
	}

	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		idx := r.next - 1 - i
		if idx < 0 {
			idx += r.capacity
		}
		out = append(out, r.events[idx])
	}
	return out
}
