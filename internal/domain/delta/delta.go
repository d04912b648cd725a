// Package delta computes minimal rank-change sets between two consecutive
// leaderboard snapshots so the broadcast hub can push increments instead of
// retransmitting full boards.
package delta

import (
	"sort"

	"github.com/okian/puzzlerank/internal/adapters/repository"
	"github.com/okian/puzzlerank/internal/domain/model"
)

// Diff returns the players whose rank or score differ between prev and
// next, including joins (OldRank == 0) and departures (NewRank == 0).
// Changes are ordered by new rank ascending, departures last by old rank.
// Cost is O(n) over the union of both snapshots; snapshots are throttled,
// so this never runs per-event.
func Diff(prev, next *repository.Snapshot) []model.RankChange {
	var changes []model.RankChange

	if next != nil {
		for _, e := range next.Entries {
			old, existed := prev.EntryOf(e.PlayerID)
			if existed && old.Rank == e.Rank && old.Score == e.Score {
				continue
			}
			c := model.RankChange{
				PlayerID: e.PlayerID,
				NewRank:  e.Rank,
				NewScore: e.Score,
			}
			if existed {
				c.OldRank = old.Rank
				c.OldScore = old.Score
			}
			changes = append(changes, c)
		}
	}

	if prev != nil {
		var departed []model.RankChange
		for _, e := range prev.Entries {
			if _, stays := next.EntryOf(e.PlayerID); stays {
				continue
			}
			departed = append(departed, model.RankChange{
				PlayerID: e.PlayerID,
				OldRank:  e.Rank,
				OldScore: e.Score,
			})
		}
		sort.Slice(departed, func(i, j int) bool { return departed[i].OldRank < departed[j].OldRank })
		changes = append(changes, departed...)
	}

	return changes
}

// Apply replays a change set onto base, producing the entry list the
// changes describe. It is the inverse of Diff: Apply(a, Diff(a, b))
// reproduces b's entries. Used by tests and by catch-up verification.
func Apply(base *repository.Snapshot, changes []model.RankChange) []repository.Entry {
	byPlayer := make(map[string]repository.Entry)
	if base != nil {
		for _, e := range base.Entries {
			byPlayer[e.PlayerID] = e
		}
	}
	for _, c := range changes {
		if c.NewRank == 0 {
			delete(byPlayer, c.PlayerID)
			continue
		}
		e := byPlayer[c.PlayerID]
		e.PlayerID = c.PlayerID
		e.Rank = c.NewRank
		e.Score = c.NewScore
		byPlayer[c.PlayerID] = e
	}

	out := make([]repository.Entry, 0, len(byPlayer))
	for _, e := range byPlayer {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}
