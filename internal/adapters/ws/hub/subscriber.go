package hub

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// State tracks a subscriber's position in its lifecycle.
type State int32

// Subscriber lifecycle states.
const (
	StateConnected State = iota
	StateCatchingUp
	StateLive
	StateDisconnected
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateCatchingUp:
		return "catching_up"
	case StateLive:
		return "live"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Subscriber is one leaderboard stream consumer. Frames are pushed into
// a bounded send channel; a consumer that cannot keep up is evicted
// rather than allowed to stall the broadcast path.
type Subscriber struct {
	ID       string
	WindowID string
	Filter   Filter

	// Guarded by the hub's mutex.
	state       State
	lastVersion uint64

	send chan []byte
	done chan struct{}
	once sync.Once
}

func newSubscriber(windowID string, f Filter, buffer int) *Subscriber {
	return &Subscriber{
		ID:       uuid.NewString(),
		WindowID: windowID,
		Filter:   f,
		state:    StateCatchingUp,
		send:     make(chan []byte, buffer),
		done:     make(chan struct{}),
	}
}

// Frames exposes the outbound frame stream for transports and tests.
func (s *Subscriber) Frames() <-chan []byte {
	return s.send
}

// Done is closed when the subscriber is evicted or unsubscribed.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

func (s *Subscriber) close() {
	s.once.Do(func() {
		close(s.done)
		close(s.send)
	})
}

// enqueue pushes an encoded frame without blocking. A full buffer or a
// finished subscriber yields false.
func (s *Subscriber) enqueue(b []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- b:
		return true
	default:
		return false
	}
}

func (s *Subscriber) enqueueJSON(v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return s.enqueue(b)
}
