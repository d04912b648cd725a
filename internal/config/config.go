// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load(ctx) layers file and environment overrides on top.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"runtime"
)

// WindowConfig describes a ranking window opened at startup. Times are
// RFC3339; an empty ends_at keeps the window open until closed via the API.
type WindowConfig struct {
	ID       string `koanf:"id"`
	StartsAt string `koanf:"starts_at"`
	EndsAt   string `koanf:"ends_at"`
}

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// EventQueueSize bounds the in-memory intake queue.
	EventQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of routing workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the idempotency ledger.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// SnapshotIntervalMS sets the snapshot and broadcast cadence.
	SnapshotIntervalMS int `koanf:"snapshot_interval_ms"`

	// SubscriberBuffer sets the per-subscriber frame buffer size.
	SubscriberBuffer int `koanf:"subscriber_buffer"`

	// DefaultTopN is the view size for subscribers without a filter.
	DefaultTopN int `koanf:"default_top_n"`

	// SinkDSN is the Postgres DSN for the durable event mirror. Empty
	// keeps the mirror in memory.
	SinkDSN string `koanf:"sink_dsn"`

	// SinkRetryMax bounds retries for failed sink writes.
	SinkRetryMax int `koanf:"sink_retry_max"`

	// Windows are the ranking windows opened at startup.
	Windows []WindowConfig `koanf:"windows"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		Addr:                ":9080",
		EventQueueSize:      100_000,
		WorkerCount:         runtime.NumCPU() * 4,
		DedupeSize:          500_000,
		MaxLeaderboardLimit: 1000,
		SnapshotIntervalMS:  250,
		SubscriberBuffer:    64,
		DefaultTopN:         100,
		SinkDSN:             "",
		SinkRetryMax:        5,
		Windows: []WindowConfig{
			{ID: "global"},
		},
	}
}
