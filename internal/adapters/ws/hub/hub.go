// Package hub fans leaderboard snapshots and deltas out to WebSocket
// subscribers. Each subscriber holds a bounded buffer; the hub never
// blocks on a slow consumer, it evicts them.
package hub

import (
	"context"
	"sync"

	"github.com/okian/puzzlerank/internal/adapters/repository"
	"github.com/okian/puzzlerank/internal/domain/model"
	"github.com/okian/puzzlerank/pkg/logger"
	"github.com/okian/puzzlerank/pkg/metrics"
)

// Default hub configuration constants.
const (
	defaultSubscriberBuffer = 64
	defaultTopN             = 100
)

// Hub routes ranking updates to the subscribers of each window.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*Subscriber]struct{}
	closed bool

	bufferSize int
	topN       int

	log logger.Logger
}

// New creates a hub with configuration options.
func New(opts ...Option) *Hub {
	h := &Hub{
		subs:       make(map[string]map[*Subscriber]struct{}),
		bufferSize: defaultSubscriberBuffer,
		topN:       defaultTopN,
		log:        logger.Get().Named("hub"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// DefaultTopN returns the top-N used when a subscriber gives no filter.
func (h *Hub) DefaultTopN() int {
	return h.topN
}

// Subscribe registers a new subscriber for a window. The subscriber is
// catching up until SendSnapshot delivers its first full view.
func (h *Hub) Subscribe(windowID string, f Filter) (*Subscriber, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}

	sub := newSubscriber(windowID, f, h.bufferSize)
	byWindow, ok := h.subs[windowID]
	if !ok {
		byWindow = make(map[*Subscriber]struct{})
		h.subs[windowID] = byWindow
	}
	byWindow[sub] = struct{}{}

	metrics.UpdateSubscriberCount(h.countLocked())
	return sub, nil
}

// Unsubscribe removes a subscriber and closes its stream.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	h.removeLocked(sub)
	h.mu.Unlock()
}

// SendSnapshot delivers the initial full view and moves the subscriber
// to the live state. Later deltas build on this version.
func (h *Hub) SendSnapshot(sub *Subscriber, snap *repository.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub.state == StateDisconnected {
		return
	}

	frame := SnapshotFrame{
		Type:     FrameSnapshot,
		WindowID: sub.WindowID,
		Version:  snap.Version,
		Entries:  sub.Filter.view(snap),
	}
	if !sub.enqueueJSON(frame) {
		h.evictLocked(sub)
		return
	}
	sub.state = StateLive
	sub.lastVersion = snap.Version
	metrics.RecordSnapshotSent()
}

// Broadcast pushes one version transition to every live subscriber of a
// window. Subscribers whose last seen version does not match the
// transition's base get a full resync instead of a delta. Changes that
// fall entirely outside a subscriber's filtered view advance its version
// without a frame.
func (h *Hub) Broadcast(windowID string, fromVersion uint64, snap *repository.Snapshot, changes []model.RankChange) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs[windowID] {
		if sub.state != StateLive {
			continue
		}
		if sub.lastVersion == snap.Version {
			continue
		}
		if sub.lastVersion != fromVersion {
			h.resyncLocked(sub, snap)
			continue
		}

		narrowed := sub.Filter.narrow(snap, changes)
		if len(narrowed) == 0 {
			sub.lastVersion = snap.Version
			continue
		}

		frame := DeltaFrame{
			Type:        FrameDelta,
			WindowID:    windowID,
			FromVersion: fromVersion,
			Version:     snap.Version,
			Changes:     narrowed,
		}
		if !sub.enqueueJSON(frame) {
			h.evictLocked(sub)
			continue
		}
		sub.lastVersion = snap.Version
		metrics.RecordDeltaBroadcast()
	}
}

// SubscriberCount returns the number of registered subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.countLocked()
}

// Shutdown closes every subscriber stream and rejects new subscriptions.
func (h *Hub) Shutdown(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, byWindow := range h.subs {
		for sub := range byWindow {
			sub.state = StateDisconnected
			sub.close()
		}
	}
	h.subs = make(map[string]map[*Subscriber]struct{})
	metrics.UpdateSubscriberCount(0)
	h.log.Info(ctx, "hub shut down")
}

func (h *Hub) resyncLocked(sub *Subscriber, snap *repository.Snapshot) {
	frame := SnapshotFrame{
		Type:     FrameResync,
		WindowID: sub.WindowID,
		Version:  snap.Version,
		Entries:  sub.Filter.view(snap),
	}
	if !sub.enqueueJSON(frame) {
		h.evictLocked(sub)
		return
	}
	sub.lastVersion = snap.Version
	metrics.RecordResync()
}

func (h *Hub) evictLocked(sub *Subscriber) {
	metrics.RecordSlowConsumerEviction()
	h.log.Warn(context.Background(), "evicting slow subscriber",
		logger.String("subscriberID", sub.ID),
		logger.String("window", sub.WindowID),
	)
	h.removeLocked(sub)
}

func (h *Hub) removeLocked(sub *Subscriber) {
	sub.state = StateDisconnected
	sub.close()
	if byWindow, ok := h.subs[sub.WindowID]; ok {
		delete(byWindow, sub)
		if len(byWindow) == 0 {
			delete(h.subs, sub.WindowID)
		}
	}
	metrics.UpdateSubscriberCount(h.countLocked())
}

func (h *Hub) countLocked() int {
	n := 0
	for _, byWindow := range h.subs {
		n += len(byWindow)
	}
	return n
}
