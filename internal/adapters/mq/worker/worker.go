// Package worker drains the activity queue into the repository. Appends
// are best-effort: a failed write is counted and logged, never retried
// into the contribution path.
package worker

import (
	"context"
	"strconv"
	"time"

	"github.com/aurelian-hq/missiond/internal/adapters/mq/queue"
	"github.com/aurelian-hq/missiond/internal/domain/mission"
	"github.com/aurelian-hq/missiond/pkg/logger"
	"github.com/aurelian-hq/missiond/pkg/metrics"
)

const poolShutdownTimeout = 10 * time.Second

// Appender persists activity entries.
type Appender interface {
	AppendActivity(ctx context.Context, e *mission.ActivityEntry) error
}

// Queue defines how workers receive entries.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Entry
}

// Worker consumes activity entries until its queue drains or the context
// is cancelled.
type Worker struct {
	queue    queue.Queue
	appender Appender
	name     string
	done     chan struct{}
	logger   logger.Logger
}

// New creates a worker with configuration options.
func New(q queue.Queue, appender Appender, opts ...Option) *Worker {
	w := &Worker{
		queue:    q,
		appender: appender,
		name:     "activity-worker",
		done:     make(chan struct{}),
		logger:   logger.Get().Named("activity-worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run starts the consume loop. It returns when the queue closes and
// drains, or when ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	ch := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			w.append(ctx, e)
		}
	}
}

func (w *Worker) append(ctx context.Context, e queue.Entry) {
	start := time.Now()
	err := w.appender.AppendActivity(ctx, &e)
	metrics.RecordActivityAppendLatency(float64(time.Since(start).Microseconds()) / 1000)

	if err != nil {
		metrics.RecordActivityAppendError()
		w.logger.Error(ctx, "activity append failed",
			logger.String("entryID", e.ID),
			logger.String("missionID", e.MissionID),
			logger.Err(err),
		)
		return
	}
	metrics.RecordActivityAppend()
}

// Pool runs a fixed set of workers over one queue.
type Pool struct {
	workers []*Worker
	logger  logger.Logger
}

// NewPool creates count workers sharing q and appender.
func NewPool(count int, q queue.Queue, appender Appender) *Pool {
	if count < 1 {
		count = 1
	}
	p := &Pool{
		workers: make([]*Worker, count),
		logger:  logger.Get().Named("activity-pool"),
	}
	for i := range p.workers {
		p.workers[i] = New(q, appender, WithName("activity-worker-"+strconv.Itoa(i)))
	}
	return p
}

// Start launches all workers.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown waits for every worker to finish draining, up to a timeout.
// The queue must be closed first so the workers can observe the drain.
func (p *Pool) Shutdown(ctx context.Context) error {
	deadline := time.NewTimer(poolShutdownTimeout)
	defer deadline.Stop()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker", i))
			return ErrShutdownTimeout
		}
	}
	return nil
}
