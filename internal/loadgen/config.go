package loadgen

import "time"

// Config holds configuration for a load run
type Config struct {
	BaseURL    string        // Base URL of the service
	WindowID   string        // Ranking window to target
	NumPlayers int           // Number of distinct players
	NumEvents  int           // Number of score events to generate
	TopN       int           // Number of top entries to fetch
	Workers    int           // Number of concurrent workers
	Timeout    time.Duration // HTTP request timeout
	OutputFile string        // Output file for events
	LogFile    string        // Log file for run output
	Verbose    bool          // Enable verbose logging
}

// Event represents a score event to be submitted
type Event struct {
	EventID  string `json:"event_id"`
	PlayerID string `json:"player_id"`
	WindowID string `json:"window_id"`
	PuzzleID string `json:"puzzle_id"`
	Kind     string `json:"kind"`
	Points   int64  `json:"points"`
	TS       string `json:"ts"`
}

// Entry represents a leaderboard entry
type Entry struct {
	Rank         int    `json:"rank"`
	PlayerID     string `json:"player_id"`
	Score        int64  `json:"score"`
	AchievedAtMS int64  `json:"achieved_at_ms"`
}

// AckResponse represents the response from score submission
type AckResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// Stats holds run statistics
type Stats struct {
	EventsGenerated    int
	EventsSubmitted    int
	EventsSuccessful   int
	EventsDuplicate    int
	EventsFailed       int
	RankingsRetrieved  int
	LeaderboardEntries int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
