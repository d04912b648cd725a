// Package ordering defines the deterministic total order used by the
// ranking store: score descending, then the earliest achieving timestamp
// ascending, then player id ascending. The first player to reach a score
// ranks ahead of later players with the same score, and the player id
// guarantees no two entries ever compare equal.
package ordering

// Key is the composite ordering key a ranking entry is indexed by.
// AchievedAtMs is the unix-millisecond timestamp of the event that set the
// player's current score.
type Key struct {
	Score        int64
	AchievedAtMs int64
	PlayerID     string
}

// Less reports whether a ranks strictly earlier than b.
func Less(a, b Key) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.AchievedAtMs != b.AchievedAtMs {
		return a.AchievedAtMs < b.AchievedAtMs
	}
	return a.PlayerID < b.PlayerID
}

// Compare returns -1, 0 or +1 following the same order as Less.
// Zero only occurs for identical keys, i.e. the same player.
func Compare(a, b Key) int {
	switch {
	case Less(a, b):
		return -1
	case Less(b, a):
		return 1
	default:
		return 0
	}
}
