// Package queue provides the bounded intake buffer decoupling score-event
// producers from the per-window mutators. Enqueue is non-blocking; FIFO
// order is preserved per producer goroutine, and correctness downstream
// depends only on every event being applied exactly once, not on global
// arrival order.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/puzzlerank/internal/domain/model"
	"github.com/okian/puzzlerank/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultCapacity = 100_000
)

// Event is the payload type flowing through the queue.
type Event = model.ScoreEvent

// Queue provides non-blocking enqueue and channel or batch dequeue.
type Queue interface {
	// Enqueue adds an event to the queue.
	// Returns false if the queue is full or closed.
	Enqueue(ctx context.Context, e Event) bool

	// Dequeue returns a channel that receives events as they become
	// available. The channel closes when the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Event

	// DequeueBatch returns up to max events, blocking up to timeout while
	// the queue is empty. Returns nil when the timeout elapses with no
	// events or the queue is closed and drained.
	DequeueBatch(ctx context.Context, max int, timeout time.Duration) []Event

	// Len returns the current number of queued events.
	Len(ctx context.Context) int

	// Close shuts down the queue. No new events are accepted; consumers
	// drain what remains.
	Close() error

	// IsClosed reports whether the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	events   chan Event
	capacity int

	mu     sync.RWMutex
	closed bool
}

// New creates an in-memory queue with configuration options.
func New(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.events = make(chan Event, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue adds an event to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e Event) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError("closed")
		return false
	}

	select {
	case q.events <- e:
		metrics.RecordQueueEnqueue()
		q.updateGauges()
		return true
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError("context_cancelled")
		return false
	default:
		metrics.RecordQueueEnqueueError("queue_full")
		return false
	}
}

// Dequeue returns a channel that receives events as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		for event := range q.events {
			select {
			case out <- event:
				metrics.RecordQueueDequeue()
				q.updateGauges()
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// DequeueBatch drains up to max events, waiting up to timeout for the
// first one. Once an event arrives the rest of the batch is collected
// without further blocking.
func (q *InMemoryQueue) DequeueBatch(ctx context.Context, max int, timeout time.Duration) []Event {
	if max < 1 {
		return nil
	}

	var first Event
	var ok bool
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case first, ok = <-q.events:
		if !ok {
			return nil
		}
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return nil
	}

	batch := make([]Event, 0, max)
	batch = append(batch, first)
	for len(batch) < max {
		select {
		case e, more := <-q.events:
			if !more {
				q.updateGauges()
				return batch
			}
			batch = append(batch, e)
		default:
			q.updateGauges()
			return batch
		}
	}
	q.updateGauges()
	return batch
}

// Len returns the current number of queued events.
func (q *InMemoryQueue) Len(ctx context.Context) int {
	return len(q.events)
}

// Close shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.events)
	q.closed = true
	return nil
}

// IsClosed reports whether the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func (q *InMemoryQueue) updateGauges() {
	size := len(q.events)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}
