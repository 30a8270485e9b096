package feed

import (
	"sync"
)

// Ring is a thread-safe fixed-capacity buffer that keeps the most recent
// items. When full, Push overwrites the oldest item.
type Ring[T any] struct {
	mu       sync.RWMutex
	buf      []T
	head     int // oldest item
	count    int
	capacity int

	// Stats
	totalReceived int64
	totalEvicted  int64
}

// NewRing creates a ring holding at most capacity items.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{
		buf:      make([]T, capacity),
		capacity: capacity,
	}
}

// Push appends an item, evicting the oldest one when the ring is full.
// Returns true if an item was evicted.
func (r *Ring[T]) Push(item T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.totalReceived++

	if r.count < r.capacity {
		r.buf[(r.head+r.count)%r.capacity] = item
		r.count++
		return false
	}

	// Full: the slot at head holds the oldest item.
	r.buf[r.head] = item
	r.head = (r.head + 1) % r.capacity
	r.totalEvicted++
	return true
}

// Snapshot returns a copy of all items, oldest first.
func (r *Ring[T]) Snapshot() []T {
	return r.Last(0)
}

// Last returns a copy of the newest n items, oldest first.
// n <= 0 returns everything.
func (r *Ring[T]) Last(n int) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 || n > r.count {
		n = r.count
	}

	out := make([]T, n)
	start := r.head + r.count - n
	for i := 0; i < n; i++ {
		out[i] = r.buf[(start+i)%r.capacity]
	}
	return out
}

// Reset drops all items. Stats are kept.
func (r *Ring[T]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	for i := range r.buf {
		r.buf[i] = zero // Clear references for GC
	}
	r.head = 0
	r.count = 0
}

// Len returns the current number of items.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int {
	return r.capacity
}

// Stats returns ring statistics.
func (r *Ring[T]) Stats() RingStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RingStats{
		Count:         r.count,
		Capacity:      r.capacity,
		TotalReceived: r.totalReceived,
		TotalEvicted:  r.totalEvicted,
	}
}

// RingStats contains ring statistics.
type RingStats struct {
	Count         int   `json:"count"`
	Capacity      int   `json:"capacity"`
	TotalReceived int64 `json:"total_received"`
	TotalEvicted  int64 `json:"total_evicted"`
}
