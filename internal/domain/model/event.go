// Package model contains domain records passed between layers.
package model

import "time"

// EventKind selects how a score event mutates a player's score.
type EventKind string

const (
	// KindDelta adds Points to the player's current score.
	KindDelta EventKind = "delta"
	// KindAbsolute sets the player's score to Points.
	KindAbsolute EventKind = "absolute"
)

// ScoreEvent is one "puzzle solved" score mutation. Immutable once created.
// EventID is the idempotency key, unique per (player, puzzle, attempt).
type ScoreEvent struct {
	EventID  string
	PlayerID string
	WindowID string
	PuzzleID string
	Kind     EventKind
	Points   int64
	TS       time.Time
}

// AppliedEvent is a ScoreEvent after the mutator committed it, as emitted
// toward the persistence sink. Seq is the per-window sequence number and is
// monotonically increasing; Version is the store version the apply produced.
type AppliedEvent struct {
	ScoreEvent
	Seq      uint64
	Version  uint64
	NewScore int64
}

// RankChange describes one player's movement between two snapshots.
// OldRank or NewRank is zero when the player was absent on that side.
type RankChange struct {
	PlayerID string `json:"player_id"`
	OldRank  int    `json:"old_rank,omitempty"`
	NewRank  int    `json:"new_rank,omitempty"`
	OldScore int64  `json:"old_score,omitempty"`
	NewScore int64  `json:"new_score,omitempty"`
}
