package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/puzzlerank/internal/domain/model"
	"github.com/okian/puzzlerank/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func appliedEvent(windowID string, seq uint64) model.AppliedEvent {
	return model.AppliedEvent{
		ScoreEvent: model.ScoreEvent{
			EventID:  fmt.Sprintf("%s-%d", windowID, seq),
			PlayerID: "p1",
			WindowID: windowID,
			Kind:     model.KindDelta,
			Points:   10,
			TS:       time.Now(),
		},
		Seq:      seq,
		Version:  seq,
		NewScore: int64(seq) * 10,
	}
}

func TestMemorySink_WriteAndCursor(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySink()

	for seq := uint64(1); seq <= 3; seq++ {
		if err := s.Write(ctx, appliedEvent("daily", seq)); err != nil {
			t.Fatalf("write seq %d: %v", seq, err)
		}
	}

	cursor, err := s.Cursor(ctx, "daily")
	if err != nil {
		t.Fatalf("cursor: %v", err)
	}
	if cursor != 3 {
		t.Errorf("expected cursor 3, got %d", cursor)
	}

	// Unknown window starts at zero.
	cursor, err = s.Cursor(ctx, "weekly")
	if err != nil {
		t.Fatalf("cursor: %v", err)
	}
	if cursor != 0 {
		t.Errorf("expected cursor 0 for unknown window, got %d", cursor)
	}
}

func TestMemorySink_ReplayedSeqIsNoop(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySink()

	first := appliedEvent("daily", 1)
	replay := appliedEvent("daily", 1)
	replay.NewScore = 999

	if err := s.Write(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(ctx, replay); err != nil {
		t.Fatal(err)
	}

	events := s.Events("daily")
	if len(events) != 1 {
		t.Fatalf("expected 1 event after replay, got %d", len(events))
	}
	if events[0].NewScore != first.NewScore {
		t.Errorf("replay overwrote the original event")
	}
}

func TestMemorySink_Closed(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySink()
	_ = s.Close()

	if err := s.Write(ctx, appliedEvent("daily", 1)); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, err := s.Cursor(ctx, "daily"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

// flakySink fails the first failN writes, then delegates to a MemorySink.
type flakySink struct {
	*MemorySink
	mu       sync.Mutex
	failN    int
	attempts int
}

func (f *flakySink) Write(ctx context.Context, ev model.AppliedEvent) error {
	f.mu.Lock()
	f.attempts++
	fail := f.attempts <= f.failN
	f.mu.Unlock()
	if fail {
		return errors.New("transient write failure")
	}
	return f.MemorySink.Write(ctx, ev)
}

func TestMirror_DrainsStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := make(chan model.AppliedEvent, 16)
	s := NewMemorySink()
	m := NewMirror(stream, s)
	go m.Run(ctx)

	const total = 10
	for seq := uint64(1); seq <= total; seq++ {
		stream <- appliedEvent("daily", seq)
	}
	close(stream)

	select {
	case <-m.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("mirror did not drain in time")
	}

	cursor, err := s.Cursor(ctx, "daily")
	if err != nil {
		t.Fatal(err)
	}
	if cursor != total {
		t.Errorf("expected cursor %d, got %d", total, cursor)
	}
	if got := len(s.Events("daily")); got != total {
		t.Errorf("expected %d events mirrored, got %d", total, got)
	}
}

func TestMirror_RetriesTransientFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := make(chan model.AppliedEvent, 1)
	s := &flakySink{MemorySink: NewMemorySink(), failN: 2}
	m := NewMirror(stream, s, WithRetry(5, time.Millisecond))
	go m.Run(ctx)

	stream <- appliedEvent("daily", 1)
	close(stream)

	select {
	case <-m.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("mirror did not finish in time")
	}

	cursor, err := s.Cursor(ctx, "daily")
	if err != nil {
		t.Fatal(err)
	}
	if cursor != 1 {
		t.Errorf("expected event persisted after retries, cursor %d", cursor)
	}
	if s.attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", s.attempts)
	}
}

func TestMirror_SkipsPoisonEvent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := make(chan model.AppliedEvent, 2)
	// Fails more times than the retry budget for the first event only.
	s := &flakySink{MemorySink: NewMemorySink(), failN: 3}
	m := NewMirror(stream, s, WithRetry(2, time.Millisecond))
	go m.Run(ctx)

	stream <- appliedEvent("daily", 1)
	stream <- appliedEvent("daily", 2)
	close(stream)

	select {
	case <-m.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("mirror did not finish in time")
	}

	// First event exhausted its budget and was skipped; the second landed.
	events := s.Events("daily")
	if len(events) != 1 || events[0].Seq != 2 {
		t.Errorf("expected only seq 2 persisted, got %+v", events)
	}
}
