// Package dedupe tracks submission IDs so a retried contribution is
// acknowledged instead of double-counted.
package dedupe

import (
	"context"
	"sync"
)

// Deduper records seen submission IDs to ensure at-most-once application.
type Deduper interface {
	// SeenAndRecord atomically checks whether id was seen and records it
	// if not. Returns true if id was already seen.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord removes an ID from the seen set. Used when a submission was
	// marked as seen but its transaction failed, so the caller may retry
	// with the same ID.
	Unrecord(ctx context.Context, id string)

	// Size returns the number of IDs currently tracked.
	Size() int64
}

// slot is one ring entry. The generation ties the slot to a specific
// recording of its ID: an ID that was unrecorded and recorded again lives
// in a newer slot under a newer generation, and the stale slot must not
// evict it when the ring wraps around.
type slot struct {
	id  string
	gen uint64
}

// inMemoryDeduper implements Deduper with a map guarded by a mutex.
// In bounded mode (maxSize > 0) a fixed ring of insertion order backs
// FIFO eviction, so the memory footprint stays flat under sustained
// traffic. With maxSize <= 0 the set grows without bound.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]uint64
	ring    []slot
	next    int
	gen     uint64
	maxSize int
}

// NewInMemory creates a deduper with configuration options.
func NewInMemory(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: 50000,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]uint64)
	if d.maxSize > 0 {
		d.ring = make([]slot, d.maxSize)
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}

	d.gen++
	if d.maxSize > 0 {
		// Evict the slot's previous occupant, but only if the map still
		// holds that exact recording. A mismatched generation means the ID
		// was unrecorded and re-recorded since; the live entry stays.
		if prev := d.ring[d.next]; prev.id != "" {
			if g, ok := d.seen[prev.id]; ok && g == prev.gen {
				delete(d.seen, prev.id)
			}
		}
		d.ring[d.next] = slot{id: id, gen: d.gen}
		d.next = (d.next + 1) % d.maxSize
	}
	d.seen[id] = d.gen
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
}

func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}
