// Package worker moves events from the intake queue to the per-window
// mutators. Workers are stateless; all ordering guarantees come from the
// single mutator per window downstream.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/okian/puzzlerank/internal/domain/model"
	"github.com/okian/puzzlerank/internal/domain/window"
	"github.com/okian/puzzlerank/pkg/logger"
	"github.com/okian/puzzlerank/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 4 // multiplier for runtime.NumCPU()
	defaultBatchSize        = 64
	defaultBatchTimeout     = 250 * time.Millisecond
	routeRetryBase          = 5 * time.Millisecond
	routeRetryMax           = 5
	workerShutdownTimeout   = 5 * time.Second
	poolShutdownTimeout     = 30 * time.Second
)

// Event abstracts what workers read off the queue.
type Event = model.ScoreEvent

// Queue defines how workers receive events.
type Queue interface {
	DequeueBatch(ctx context.Context, max int, timeout time.Duration) []Event
	IsClosed() bool
	Len(ctx context.Context) int
}

// Router delivers an event to its window's mutator.
type Router interface {
	Route(ctx context.Context, ev model.ScoreEvent) (bool, error)
}

// Worker drains the queue and routes events until stopped.
type Worker struct {
	queue  Queue
	router Router
	name   string

	batchSize    int
	batchTimeout time.Duration

	shutdown chan struct{}
	done     chan struct{}

	log logger.Logger
}

// NewWorker creates a worker with configuration options.
func NewWorker(queue Queue, router Router, opts ...Option) *Worker {
	w := &Worker{
		queue:        queue,
		router:       router,
		name:         "worker",
		batchSize:    defaultBatchSize,
		batchTimeout: defaultBatchTimeout,
		shutdown:     make(chan struct{}),
		done:         make(chan struct{}),
		log:          logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.log = w.log.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		default:
		}

		batch := w.queue.DequeueBatch(ctx, w.batchSize, w.batchTimeout)
		if batch == nil {
			if w.queue.IsClosed() && w.queue.Len(ctx) == 0 {
				return
			}
			continue
		}
		for i := range batch {
			if err := w.routeEvent(ctx, batch[i]); err != nil {
				w.log.Error(ctx, "error routing event", logger.Error(err))
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *Worker) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.log.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// routeEvent hands one event to its window mutator, retrying briefly when
// the mutator's buffer is full.
func (w *Worker) routeEvent(ctx context.Context, ev model.ScoreEvent) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	for attempt := 0; ; attempt++ {
		ok, err := w.router.Route(ctx, ev)
		if err != nil {
			// The window vanished or froze after ingestion accepted the
			// event. Not a worker failure: drop and account for it.
			if errors.Is(err, window.ErrUnknownWindow) || errors.Is(err, window.ErrWindowClosed) {
				metrics.RecordEventRejected(ev.WindowID)
				w.log.Debug(ctx, "event dropped, window unavailable",
					logger.String("eventID", ev.EventID),
					logger.String("window", ev.WindowID),
					logger.Error(err),
				)
				return nil
			}
			return fmt.Errorf("route event %s: %w", ev.EventID, err)
		}
		if ok {
			return nil
		}
		if attempt >= routeRetryMax {
			metrics.RecordWorkerError()
			return fmt.Errorf("mutator backpressure, dropped event %s after %d attempts", ev.EventID, attempt)
		}

		backoff := routeRetryBase << attempt
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Pool manages multiple workers.
type Pool struct {
	workers []*Worker
	queue   Queue
	router  Router

	shutdown chan struct{}
	log      logger.Logger
}

// NewPool creates a worker pool.
func NewPool(workerCount int, queue Queue, router Router) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers:  make([]*Worker, workerCount),
		queue:    queue,
		router:   router,
		shutdown: make(chan struct{}),
		log:      logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewWorker(queue, router, WithName("worker-"+strconv.Itoa(i)))
	}

	metrics.UpdateWorkerCount(workerCount)
	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, worker := range p.workers {
		go worker.Run(ctx)
	}
}

// Stop stops all workers, waiting briefly for each.
func (p *Pool) Stop() {
	close(p.shutdown)
	for _, worker := range p.workers {
		close(worker.shutdown)
	}
	for _, worker := range p.workers {
		select {
		case <-worker.done:
		case <-time.After(workerShutdownTimeout):
		}
	}
}

// Shutdown gracefully shuts down the pool, draining queued events first.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.log.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, worker := range p.workers {
		select {
		case <-worker.done:
		case <-shutdownCtx.Done():
			p.log.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	return nil
}
