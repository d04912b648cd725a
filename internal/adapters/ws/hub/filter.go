package hub

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/okian/puzzlerank/internal/adapters/repository"
	"github.com/okian/puzzlerank/internal/domain/model"
)

// FilterKind selects the subscriber's view of the leaderboard.
type FilterKind string

// Supported filter kinds.
const (
	FilterTop    FilterKind = "top"
	FilterAround FilterKind = "around"
)

// Filter narrows what a subscriber receives. Top subscribers follow the
// first N ranks; around subscribers follow a radius around one player.
type Filter struct {
	Kind     FilterKind
	N        int
	PlayerID string
	Radius   int
}

// ParseFilter parses a filter expression of the form "top:N" or
// "around:player:radius". An empty expression falls back to the default
// top-N view.
func ParseFilter(expr string, defaultTopN int) (Filter, error) {
	if expr == "" {
		return Filter{Kind: FilterTop, N: defaultTopN}, nil
	}

	parts := strings.Split(expr, ":")
	switch parts[0] {
	case string(FilterTop):
		if len(parts) != 2 {
			return Filter{}, fmt.Errorf("%w: %q", ErrInvalidFilter, expr)
		}
		n, err := strconv.Atoi(parts[1])
		if err != nil || n < 1 {
			return Filter{}, fmt.Errorf("%w: %q", ErrInvalidFilter, expr)
		}
		return Filter{Kind: FilterTop, N: n}, nil
	case string(FilterAround):
		if len(parts) != 3 {
			return Filter{}, fmt.Errorf("%w: %q", ErrInvalidFilter, expr)
		}
		radius, err := strconv.Atoi(parts[2])
		if err != nil || radius < 0 || parts[1] == "" {
			return Filter{}, fmt.Errorf("%w: %q", ErrInvalidFilter, expr)
		}
		return Filter{Kind: FilterAround, PlayerID: parts[1], Radius: radius}, nil
	default:
		return Filter{}, fmt.Errorf("%w: %q", ErrInvalidFilter, expr)
	}
}

// view returns the filtered slice of snapshot entries.
func (f Filter) view(snap *repository.Snapshot) []repository.Entry {
	switch f.Kind {
	case FilterAround:
		center := snap.RankOf(f.PlayerID)
		if center == 0 {
			return []repository.Entry{}
		}
		lo := center - f.Radius
		if lo < 1 {
			lo = 1
		}
		hi := center + f.Radius
		if hi > len(snap.Entries) {
			hi = len(snap.Entries)
		}
		out := make([]repository.Entry, hi-lo+1)
		copy(out, snap.Entries[lo-1:hi])
		return out
	default:
		n := f.N
		if n > len(snap.Entries) {
			n = len(snap.Entries)
		}
		out := make([]repository.Entry, n)
		copy(out, snap.Entries[:n])
		return out
	}
}

// relevant reports whether a rank change intersects the filtered view.
// The around window is anchored at the tracked player's rank in the new
// snapshot.
func (f Filter) relevant(snap *repository.Snapshot, ch model.RankChange) bool {
	switch f.Kind {
	case FilterAround:
		center := snap.RankOf(f.PlayerID)
		if center == 0 {
			return false
		}
		lo := center - f.Radius
		hi := center + f.Radius
		inWindow := func(rank int) bool { return rank >= lo && rank <= hi }
		return (ch.OldRank > 0 && inWindow(ch.OldRank)) || (ch.NewRank > 0 && inWindow(ch.NewRank))
	default:
		return (ch.OldRank > 0 && ch.OldRank <= f.N) || (ch.NewRank > 0 && ch.NewRank <= f.N)
	}
}

// narrow keeps only the changes that intersect the filtered view.
func (f Filter) narrow(snap *repository.Snapshot, changes []model.RankChange) []model.RankChange {
	out := make([]model.RankChange, 0, len(changes))
	for _, ch := range changes {
		if f.relevant(snap, ch) {
			out = append(out, ch)
		}
	}
	return out
}
