// Package dedupe provides the idempotency ledger used to reject duplicate
// score events. The ledger is bounded: once full, the oldest recorded keys
// are evicted first, so duplicates older than the retention window fall
// through to the ranking store's own applied-key ledger.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Deduper records seen idempotency keys to ensure at-most-once processing.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord removes an id from the ledger, allowing it to be retried.
	// Used when an event was recorded but failed to enqueue (backpressure).
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// node is one entry in the FIFO eviction list. A node whose id is empty is
// a tombstone left behind by Unrecord and is skipped during eviction.
type node struct {
	id   string
	next *node
}

func (n *node) reset() {
	n.id = ""
	n.next = nil
}

// ledger implements Deduper with a map for lookup and a singly linked list
// in insertion order for oldest-first eviction. maxSize <= 0 disables
// eviction entirely (unbounded mode).
type ledger struct {
	mu      sync.Mutex
	seen    map[string]*node
	head    *node // oldest recorded key
	tail    *node // newest recorded key
	maxSize int
	size    atomic.Int64

	nodePool sync.Pool
}

// New creates a deduper with configuration options.
func New(opts ...Option) Deduper {
	d := &ledger{
		maxSize: 50_000,
	}
	for _, opt := range opts {
		opt(d)
	}

	d.seen = make(map[string]*node)
	if d.maxSize > 0 {
		d.nodePool = sync.Pool{
			New: func() interface{} { return &node{} },
		}
	}
	return d
}

// SeenAndRecord atomically checks if id was seen and records it if not.
func (d *ledger) SeenAndRecord(ctx context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[id]; exists {
		return true
	}

	if d.maxSize > 0 {
		if len(d.seen) >= d.maxSize {
			d.evictOldest()
		}
		n := d.nodePool.Get().(*node)
		n.id = id
		n.next = nil
		if d.tail == nil {
			d.head = n
		} else {
			d.tail.next = n
		}
		d.tail = n
		d.seen[id] = n
	} else {
		d.seen[id] = nil
	}
	d.size.Add(1)
	return false
}

// Unrecord removes an id from the ledger. The list node becomes a tombstone
// and is reclaimed lazily when eviction reaches it.
func (d *ledger) Unrecord(ctx context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, exists := d.seen[id]
	if !exists {
		return
	}
	delete(d.seen, id)
	d.size.Add(-1)
	if n != nil {
		n.id = ""
	}
}

// evictOldest removes recorded keys from the head of the list until one
// live entry has been evicted. Must be called with d.mu held.
func (d *ledger) evictOldest() {
	for d.head != nil {
		n := d.head
		d.head = n.next
		if d.head == nil {
			d.tail = nil
		}

		live := n.id != ""
		if live {
			delete(d.seen, n.id)
			d.size.Add(-1)
		}
		n.reset()
		d.nodePool.Put(n)
		if live {
			return
		}
	}
}

// Size returns the current number of recorded keys.
func (d *ledger) Size() int64 {
	return d.size.Load()
}
