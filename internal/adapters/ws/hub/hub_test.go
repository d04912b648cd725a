package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/okian/puzzlerank/internal/adapters/repository"
	"github.com/okian/puzzlerank/internal/domain/model"
	"github.com/okian/puzzlerank/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func snapshotOf(version uint64, players ...string) *repository.Snapshot {
	entries := make([]repository.Entry, len(players))
	for i, p := range players {
		entries[i] = repository.Entry{
			Rank:     i + 1,
			PlayerID: p,
			Score:    int64((len(players) - i) * 100),
		}
	}
	return repository.NewSnapshotForTest(version, entries)
}

func nextFrame(t *testing.T, sub *Subscriber) map[string]any {
	t.Helper()
	select {
	case b, ok := <-sub.Frames():
		if !ok {
			t.Fatal("frame stream closed")
		}
		var frame map[string]any
		if err := json.Unmarshal(b, &frame); err != nil {
			t.Fatalf("bad frame: %v", err)
		}
		return frame
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func noFrame(t *testing.T, sub *Subscriber) {
	t.Helper()
	select {
	case b := <-sub.Frames():
		t.Fatalf("unexpected frame: %s", b)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_SnapshotThenDelta(t *testing.T) {
	h := New()
	f, err := ParseFilter("top:10", h.DefaultTopN())
	if err != nil {
		t.Fatal(err)
	}
	sub, err := h.Subscribe("daily", f)
	if err != nil {
		t.Fatal(err)
	}

	snap1 := snapshotOf(1, "alice", "bob")
	h.SendSnapshot(sub, snap1)

	frame := nextFrame(t, sub)
	if frame["type"] != FrameSnapshot {
		t.Fatalf("expected snapshot frame, got %v", frame["type"])
	}
	if frame["version"] != float64(1) {
		t.Errorf("expected version 1, got %v", frame["version"])
	}

	snap2 := snapshotOf(2, "bob", "alice")
	changes := []model.RankChange{
		{PlayerID: "bob", OldRank: 2, NewRank: 1, OldScore: 100, NewScore: 250},
		{PlayerID: "alice", OldRank: 1, NewRank: 2, OldScore: 200, NewScore: 200},
	}
	h.Broadcast("daily", 1, snap2, changes)

	frame = nextFrame(t, sub)
	if frame["type"] != FrameDelta {
		t.Fatalf("expected delta frame, got %v", frame["type"])
	}
	if frame["fromVersion"] != float64(1) || frame["version"] != float64(2) {
		t.Errorf("unexpected versions in delta: %v -> %v", frame["fromVersion"], frame["version"])
	}
}

func TestHub_CatchingUpSubscriberGetsNoDeltas(t *testing.T) {
	h := New()
	sub, err := h.Subscribe("daily", Filter{Kind: FilterTop, N: 10})
	if err != nil {
		t.Fatal(err)
	}

	// No snapshot delivered yet; broadcasts must not reach this subscriber.
	h.Broadcast("daily", 1, snapshotOf(2, "alice"), []model.RankChange{
		{PlayerID: "alice", OldRank: 0, NewRank: 1, NewScore: 100},
	})
	noFrame(t, sub)
}

func TestHub_VersionGapTriggersResync(t *testing.T) {
	h := New()
	sub, err := h.Subscribe("daily", Filter{Kind: FilterTop, N: 10})
	if err != nil {
		t.Fatal(err)
	}
	h.SendSnapshot(sub, snapshotOf(1, "alice"))
	nextFrame(t, sub)

	// Subscriber saw version 1, but this transition starts at 4.
	snap5 := snapshotOf(5, "bob", "alice")
	h.Broadcast("daily", 4, snap5, []model.RankChange{
		{PlayerID: "bob", OldRank: 2, NewRank: 1, NewScore: 300},
	})

	frame := nextFrame(t, sub)
	if frame["type"] != FrameResync {
		t.Fatalf("expected resync frame, got %v", frame["type"])
	}
	if frame["version"] != float64(5) {
		t.Errorf("expected resync at version 5, got %v", frame["version"])
	}

	// Back in step: the next contiguous delta flows normally.
	h.Broadcast("daily", 5, snapshotOf(6, "alice", "bob"), []model.RankChange{
		{PlayerID: "alice", OldRank: 2, NewRank: 1, NewScore: 400},
		{PlayerID: "bob", OldRank: 1, NewRank: 2, NewScore: 300},
	})
	if frame := nextFrame(t, sub); frame["type"] != FrameDelta {
		t.Errorf("expected delta after resync, got %v", frame["type"])
	}
}

func TestHub_FilteredOutChangesAdvanceVersionSilently(t *testing.T) {
	h := New()
	sub, err := h.Subscribe("daily", Filter{Kind: FilterTop, N: 2})
	if err != nil {
		t.Fatal(err)
	}
	h.SendSnapshot(sub, snapshotOf(1, "a", "b", "c", "d"))
	nextFrame(t, sub)

	// Churn below the subscribed prefix only.
	h.Broadcast("daily", 1, snapshotOf(2, "a", "b", "d", "c"), []model.RankChange{
		{PlayerID: "d", OldRank: 4, NewRank: 3, NewScore: 150},
		{PlayerID: "c", OldRank: 3, NewRank: 4, NewScore: 140},
	})
	noFrame(t, sub)

	// The silent version advance keeps the next delta contiguous.
	h.Broadcast("daily", 2, snapshotOf(3, "b", "a", "d", "c"), []model.RankChange{
		{PlayerID: "b", OldRank: 2, NewRank: 1, NewScore: 500},
		{PlayerID: "a", OldRank: 1, NewRank: 2, NewScore: 400},
	})
	if frame := nextFrame(t, sub); frame["type"] != FrameDelta {
		t.Errorf("expected delta, got resync: %v", frame["type"])
	}
}

func TestHub_AroundFilter(t *testing.T) {
	h := New()
	sub, err := h.Subscribe("daily", Filter{Kind: FilterAround, PlayerID: "c", Radius: 1})
	if err != nil {
		t.Fatal(err)
	}

	snap := snapshotOf(1, "a", "b", "c", "d", "e")
	h.SendSnapshot(sub, snap)
	frame := nextFrame(t, sub)

	entries := frame["entries"].([]any)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries around c, got %d", len(entries))
	}
	first := entries[0].(map[string]any)
	if first["player_id"] != "b" {
		t.Errorf("expected neighborhood to start at b, got %v", first["player_id"])
	}

	// Churn far away from c is filtered out.
	h.Broadcast("daily", 1, snapshotOf(2, "a", "b", "c", "d", "e"), []model.RankChange{
		{PlayerID: "a", OldRank: 1, NewRank: 1, OldScore: 500, NewScore: 600},
	})
	noFrame(t, sub)
}

func TestHub_SlowConsumerEvicted(t *testing.T) {
	h := New(WithSubscriberBuffer(1))
	sub, err := h.Subscribe("daily", Filter{Kind: FilterTop, N: 10})
	if err != nil {
		t.Fatal(err)
	}
	h.SendSnapshot(sub, snapshotOf(1, "alice"))
	// The snapshot fills the single-slot buffer; nothing drains it.

	for v := uint64(2); v <= 4; v++ {
		h.Broadcast("daily", v-1, snapshotOf(v, "alice"), []model.RankChange{
			{PlayerID: "alice", OldRank: 1, NewRank: 1, NewScore: int64(v * 100)},
		})
	}

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("expected slow subscriber to be evicted")
	}
	if got := h.SubscriberCount(); got != 0 {
		t.Errorf("expected 0 subscribers after eviction, got %d", got)
	}
}

func TestHub_ShutdownClosesSubscribers(t *testing.T) {
	h := New()
	sub, err := h.Subscribe("daily", Filter{Kind: FilterTop, N: 10})
	if err != nil {
		t.Fatal(err)
	}

	h.Shutdown(context.Background())

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("expected subscriber closed on shutdown")
	}
	if _, err := h.Subscribe("daily", Filter{Kind: FilterTop, N: 10}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after shutdown, got %v", err)
	}
}

func TestHub_IndependentWindows(t *testing.T) {
	h := New()
	daily, _ := h.Subscribe("daily", Filter{Kind: FilterTop, N: 10})
	weekly, _ := h.Subscribe("weekly", Filter{Kind: FilterTop, N: 10})

	h.SendSnapshot(daily, snapshotOf(1, "alice"))
	h.SendSnapshot(weekly, snapshotOf(1, "bob"))
	nextFrame(t, daily)
	nextFrame(t, weekly)

	h.Broadcast("daily", 1, snapshotOf(2, "alice"), []model.RankChange{
		{PlayerID: "alice", OldRank: 1, NewRank: 1, NewScore: 900},
	})

	nextFrame(t, daily)
	noFrame(t, weekly)
}

func TestParseFilter(t *testing.T) {
	cases := []struct {
		expr    string
		want    Filter
		wantErr bool
	}{
		{expr: "", want: Filter{Kind: FilterTop, N: 100}},
		{expr: "top:25", want: Filter{Kind: FilterTop, N: 25}},
		{expr: "around:alice:5", want: Filter{Kind: FilterAround, PlayerID: "alice", Radius: 5}},
		{expr: "top:0", wantErr: true},
		{expr: "top:abc", wantErr: true},
		{expr: "around:alice", wantErr: true},
		{expr: "around::5", wantErr: true},
		{expr: "bottom:5", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("expr=%q", tc.expr), func(t *testing.T) {
			got, err := ParseFilter(tc.expr, 100)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidFilter) {
					t.Fatalf("expected ErrInvalidFilter, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Errorf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}
