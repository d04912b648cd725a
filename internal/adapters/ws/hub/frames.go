package hub

import (
	"github.com/okian/puzzlerank/internal/adapters/repository"
	"github.com/okian/puzzlerank/internal/domain/model"
)

// Frame type discriminators.
const (
	FrameSnapshot = "snapshot"
	FrameDelta    = "delta"
	FrameResync   = "resync"
)

// SnapshotFrame carries a full filtered view of the leaderboard. It is
// sent once after subscribing and again as a resync whenever a
// subscriber's version falls out of step.
type SnapshotFrame struct {
	Type     string             `json:"type"`
	WindowID string             `json:"windowId"`
	Version  uint64             `json:"version"`
	Entries  []repository.Entry `json:"entries"`
}

// DeltaFrame carries only the rank changes between two consecutive
// versions, filtered to the subscriber's view.
type DeltaFrame struct {
	Type        string             `json:"type"`
	WindowID    string             `json:"windowId"`
	FromVersion uint64             `json:"fromVersion"`
	Version     uint64             `json:"version"`
	Changes     []model.RankChange `json:"changes"`
}
