// Package types contains common types shared across the application.
package types

// Entry represents one leaderboard row as exposed to clients.
type Entry struct {
	Rank       int    `json:"rank"`
	PlayerID   string `json:"player_id"`
	Score      int64  `json:"score"`
	AchievedAt int64  `json:"achieved_at_ms"`
}
