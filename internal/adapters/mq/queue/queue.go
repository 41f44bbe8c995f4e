// Package queue buffers activity-log entries between the ledger and the
// workers that persist them. Appends are fire-and-forget: a full queue
// drops the entry rather than stalling or failing a contribution.
package queue

import (
	"context"
	"sync"

	"github.com/aurelian-hq/missiond/internal/domain/mission"
	"github.com/aurelian-hq/missiond/pkg/metrics"
)

const defaultCapacity = 10000

// Entry is the payload type flowing through the queue.
type Entry = mission.ActivityEntry

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an entry. Returns false if the queue is full or closed.
	Enqueue(ctx context.Context, e Entry) bool

	// Dequeue returns a channel that receives entries as they arrive.
	// The channel closes when the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Entry

	// Len returns the current number of queued entries.
	Len(ctx context.Context) int

	// Close stops new enqueues; queued entries remain consumable.
	Close() error
}

// InMemoryQueue implements Queue on a buffered channel.
type InMemoryQueue struct {
	entries  chan Entry
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemory creates a queue with configuration options.
func NewInMemory(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.entries = make(chan Entry, q.capacity)

	metrics.UpdateActivityQueueCapacity(q.capacity)
	metrics.UpdateActivityQueueSize(0)
	return q
}

// Enqueue implements Queue.Enqueue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e Entry) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordActivityDropped("closed")
		return false
	}

	select {
	case q.entries <- e:
		metrics.UpdateActivityQueueSize(len(q.entries))
		return true
	case <-ctx.Done():
		metrics.RecordActivityDropped("cancelled")
		return false
	default:
		metrics.RecordActivityDropped("full")
		return false
	}
}

// Dequeue implements Queue.Dequeue.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Entry {
	out := make(chan Entry)
	go func() {
		defer close(out)
		for e := range q.entries {
			select {
			case out <- e:
				metrics.UpdateActivityQueueSize(len(q.entries))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len implements Queue.Len.
func (q *InMemoryQueue) Len(ctx context.Context) int {
	return len(q.entries)
}

// Close implements Queue.Close.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.entries)
	q.closed = true
	return nil
}

var _ Queue = (*InMemoryQueue)(nil)
