package window

import (
	"context"
	"errors"
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

func scoreEvent(id, player, windowID string, points int64) model.ScoreEvent {
	return model.ScoreEvent{
		EventID:  id,
		PlayerID: player,
		WindowID: windowID,
		PuzzleID: "p1",
		Kind:     model.KindDelta,
		Points:   points,
		TS:       time.Now(),
	}
}

func waitForCount(t *testing.T, w *Window, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if w.Store().Count(context.Background()) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d players, have %d", want, w.Store().Count(context.Background()))
}

func TestRegistry_OpenRouteApply(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := NewRegistry()

	w, err := r.Open(ctx, "daily", time.Now(), time.Now().Add(24*time.Hour))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	ok, err := r.Route(ctx, scoreEvent("e1", "alice", "daily", 100))
	if err != nil || !ok {
		t.Fatalf("route failed: ok=%v err=%v", ok, err)
	}
	waitForCount(t, w, 1)

	applied := <-r.Applied()
	if applied.PlayerID != "alice" || applied.Seq != 1 || applied.NewScore != 100 {
		t.Errorf("unexpected applied event: %+v", applied)
	}
}

func TestRegistry_MutatorOutlivesOpenContext(t *testing.T) {
	r := NewRegistry()

	// Windows opened by HTTP handlers come in on request-scoped contexts
	// that are canceled as soon as the handler returns.
	reqCtx, cancel := context.WithCancel(context.Background())
	w, err := r.Open(reqCtx, "daily", time.Now(), time.Time{})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	cancel()

	ctx := context.Background()
	ok, err := r.Route(ctx, scoreEvent("e1", "alice", "daily", 100))
	if err != nil || !ok {
		t.Fatalf("route failed: ok=%v err=%v", ok, err)
	}
	waitForCount(t, w, 1)

	entry, err := w.Store().RankOf(ctx, "alice")
	if err != nil {
		t.Fatalf("rank lookup failed: %v", err)
	}
	if entry.Score != 100 {
		t.Errorf("score = %d, want 100", entry.Score)
	}
}

func TestRegistry_OpenDuplicateWindow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := NewRegistry()

	if _, err := r.Open(ctx, "daily", time.Now(), time.Time{}); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if _, err := r.Open(ctx, "daily", time.Now(), time.Time{}); !errors.Is(err, ErrWindowExists) {
		t.Errorf("expected ErrWindowExists, got %v", err)
	}
}

func TestRegistry_RouteUnknownWindow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := NewRegistry()

	if _, err := r.Route(ctx, scoreEvent("e1", "alice", "nope", 10)); !errors.Is(err, ErrUnknownWindow) {
		t.Errorf("expected ErrUnknownWindow, got %v", err)
	}
}

func TestRegistry_CloseFreezesWindow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := NewRegistry()

	w, _ := r.Open(ctx, "daily", time.Now(), time.Time{})
	ok, err := r.Route(ctx, scoreEvent("e1", "alice", "daily", 42))
	if err != nil || !ok {
		t.Fatalf("route failed: ok=%v err=%v", ok, err)
	}

	if err := r.Close(ctx, "daily"); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	// Queued event was drained before the freeze.
	entry, err := w.Store().RankOf(ctx, "alice")
	if err != nil || entry.Score != 42 {
		t.Errorf("expected alice at 42 after drain, got %+v err=%v", entry, err)
	}

	// The archival copy rejects further routing and stays readable.
	if _, err := r.Route(ctx, scoreEvent("e2", "bob", "daily", 10)); !errors.Is(err, ErrWindowClosed) {
		t.Errorf("expected ErrWindowClosed, got %v", err)
	}
	if snap := w.Store().CurrentSnapshot(); snap == nil {
		t.Error("expected a final snapshot after close")
	}
	if err := r.Close(ctx, "daily"); !errors.Is(err, ErrWindowClosed) {
		t.Errorf("expected second close to report ErrWindowClosed, got %v", err)
	}
}

func TestRegistry_CloseExpired(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := NewRegistry()

	now := time.Now()
	r.Open(ctx, "past", now.Add(-2*time.Hour), now.Add(-time.Hour))
	r.Open(ctx, "future", now, now.Add(time.Hour))
	r.Open(ctx, "endless", now, time.Time{})

	expired := r.CloseExpired(ctx, now)
	if len(expired) != 1 || expired[0] != "past" {
		t.Fatalf("expected [past], got %v", expired)
	}

	infos := r.List(ctx)
	for _, info := range infos {
		wantClosed := info.ID == "past"
		if info.Closed != wantClosed {
			t.Errorf("window %s: closed=%v, want %v", info.ID, info.Closed, wantClosed)
		}
	}
}

func TestRegistry_WindowsAreIndependent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := NewRegistry()

	daily, _ := r.Open(ctx, "daily", time.Now(), time.Time{})
	alltime, _ := r.Open(ctx, "all-time", time.Now(), time.Time{})

	r.Route(ctx, scoreEvent("e1", "alice", "daily", 10))
	r.Route(ctx, scoreEvent("e2", "alice", "all-time", 99))
	waitForCount(t, daily, 1)
	waitForCount(t, alltime, 1)

	d, _ := daily.Store().RankOf(ctx, "alice")
	a, _ := alltime.Store().RankOf(ctx, "alice")
	if d.Score != 10 || a.Score != 99 {
		t.Errorf("expected independent scores 10/99, got %d/%d", d.Score, a.Score)
	}
}

func TestRegistry_Shutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := NewRegistry()

	r.Open(ctx, "daily", time.Now(), time.Time{})
	r.Route(ctx, scoreEvent("e1", "alice", "daily", 10))

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelShutdown()
	r.Shutdown(shutdownCtx)

	// The applied stream closes once every mutator drained.
	var got int
	for range r.Applied() {
		got++
	}
	if got != 1 {
		t.Errorf("expected 1 applied event before close, got %d", got)
	}
}
