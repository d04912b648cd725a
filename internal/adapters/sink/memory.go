package sink

import (
	"context"
	"sync"

	"github.com/okian/puzzlerank/internal/domain/model"
)

// MemorySink keeps mirrored events in memory. It backs tests and
// deployments that run without a database.
type MemorySink struct {
	mu      sync.RWMutex
	events  map[string]map[uint64]model.AppliedEvent
	cursors map[string]uint64
	closed  bool
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{
		events:  make(map[string]map[uint64]model.AppliedEvent),
		cursors: make(map[string]uint64),
	}
}

// Write stores one applied event, ignoring (window, seq) duplicates.
func (s *MemorySink) Write(_ context.Context, ev model.AppliedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	byWindow, ok := s.events[ev.WindowID]
	if !ok {
		byWindow = make(map[uint64]model.AppliedEvent)
		s.events[ev.WindowID] = byWindow
	}
	if _, dup := byWindow[ev.Seq]; dup {
		return nil
	}
	byWindow[ev.Seq] = ev
	if ev.Seq > s.cursors[ev.WindowID] {
		s.cursors[ev.WindowID] = ev.Seq
	}
	return nil
}

// Cursor returns the highest persisted sequence for a window.
func (s *MemorySink) Cursor(_ context.Context, windowID string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	return s.cursors[windowID], nil
}

// Events returns a copy of everything persisted for a window, for inspection.
func (s *MemorySink) Events(windowID string) []model.AppliedEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.AppliedEvent, 0, len(s.events[windowID]))
	for _, ev := range s.events[windowID] {
		out = append(out, ev)
	}
	return out
}

// Close marks the sink closed.
func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
