package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):.
//  1. defaults (New())
//  2. file (YAML) if PUZZLERANK_CONFIG is set
//  3. env (prefix PUZZLERANK_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	// Load from file if provided
	if path := os.Getenv("PUZZLERANK_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: PUZZLERANK_ADDR, PUZZLERANK_QUEUE_SIZE, ...
	// Map env keys like PUZZLERANK_QUEUE_SIZE -> queue_size (flat keys)
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("PUZZLERANK_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "puzzlerank_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	// Unmarshal into a copy
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.SnapshotIntervalMS < 1 {
		return fmt.Errorf("%w: snapshot_interval_ms must be positive", ErrInvalidConfig)
	}
	if c.MaxLeaderboardLimit < 1 {
		return fmt.Errorf("%w: max_leaderboard_limit must be positive", ErrInvalidConfig)
	}

	seen := make(map[string]struct{}, len(c.Windows))
	for _, w := range c.Windows {
		if w.ID == "" {
			return fmt.Errorf("%w: window id must not be empty", ErrInvalidConfig)
		}
		if _, dup := seen[w.ID]; dup {
			return fmt.Errorf("%w: duplicate window id %q", ErrInvalidConfig, w.ID)
		}
		seen[w.ID] = struct{}{}
		if _, _, err := w.Bounds(); err != nil {
			return err
		}
	}
	return nil
}

// Bounds parses the window's start and end times. A missing starts_at
// means now; a missing ends_at means no expiry.
func (w WindowConfig) Bounds() (time.Time, time.Time, error) {
	startsAt := time.Now()
	if w.StartsAt != "" {
		t, err := time.Parse(time.RFC3339, w.StartsAt)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: window %q starts_at: %w", ErrInvalidConfig, w.ID, err)
		}
		startsAt = t
	}
	var endsAt time.Time
	if w.EndsAt != "" {
		t, err := time.Parse(time.RFC3339, w.EndsAt)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: window %q ends_at: %w", ErrInvalidConfig, w.ID, err)
		}
		endsAt = t
	}
	return startsAt, endsAt, nil
}

// SnapshotInterval returns the snapshot cadence as a duration.
func (c *Config) SnapshotInterval() time.Duration {
	return time.Duration(c.SnapshotIntervalMS) * time.Millisecond
}
