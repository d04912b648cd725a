// Package repository implements the per-window ranking store: the ordered,
// rank-queryable structure holding the authoritative in-memory scores.
package repository

import (
	"context"
	"time"

	"github.com/okian/puzzlerank/internal/domain/model"
)

// Entry represents one ranked row.
type Entry struct {
	Rank         int    `json:"rank"`
	PlayerID     string `json:"player_id"`
	Score        int64  `json:"score"`
	AchievedAtMs int64  `json:"achieved_at_ms"`
}

// Snapshot is an immutable, versioned view of a window's full ranking.
// Entries are in rank order with dense unique ranks 1..N. Snapshots are
// never mutated after publication; readers may hold them indefinitely.
type Snapshot struct {
	Version uint64
	TakenAt time.Time
	Entries []Entry

	// rankByPlayer maps player id to 1-based rank within Entries.
	rankByPlayer map[string]int
}

// EntryOf returns the snapshot's entry for a player, if present.
func (s *Snapshot) EntryOf(playerID string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	r, ok := s.rankByPlayer[playerID]
	if !ok {
		return Entry{}, false
	}
	return s.Entries[r-1], true
}

// RankOf returns a player's 1-based rank within the snapshot, or 0.
func (s *Snapshot) RankOf(playerID string) int {
	if s == nil {
		return 0
	}
	return s.rankByPlayer[playerID]
}

// Store provides read/write access to one window's ranking state.
// Apply is invoked by a single mutator goroutine per window; reads are safe
// from any goroutine and never block on the mutator for snapshot access.
type Store interface {
	// Apply commits one score event, assigning its per-window sequence
	// number and bumping the store version atomically with the mutation.
	// Returns ErrDuplicateKey for an already-applied idempotency key and
	// ErrWindowClosed after Freeze.
	Apply(ctx context.Context, ev model.ScoreEvent) (model.AppliedEvent, error)

	// RankOf returns the current entry for a player.
	// Returns ErrNotFound if the player has no score in this window.
	RankOf(ctx context.Context, playerID string) (Entry, error)

	// TopN returns the best n entries in rank order.
	TopN(ctx context.Context, n int) ([]Entry, error)

	// Around returns the entries ranked within radius positions of the
	// player, centered on the player, in rank order.
	Around(ctx context.Context, playerID string, radius int) ([]Entry, error)

	// Count returns the number of players tracked in this window.
	Count(ctx context.Context) int

	// Version returns the store's current committed version.
	Version() uint64

	// Capture publishes and returns a snapshot of the current state.
	// If the version has not advanced since the last capture, the existing
	// snapshot is returned unchanged.
	Capture(ctx context.Context) *Snapshot

	// CurrentSnapshot returns the latest published snapshot without
	// touching the writer lock. May be nil before the first capture.
	CurrentSnapshot() *Snapshot

	// Freeze makes the store a read-only archival copy. Subsequent Apply
	// calls return ErrWindowClosed.
	Freeze(ctx context.Context)
}
