package sink

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver
	"github.com/okian/puzzlerank/internal/domain/model"
)

// Default connection pool settings.
const (
	defaultMaxOpenConns    = 5
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute
)

// PostgresSink mirrors applied events into a Postgres table. The
// (window_id, seq) primary key makes replays after a restart harmless.
type PostgresSink struct {
	db *sql.DB
}

// NewPostgresSink opens a connection pool, verifies it, and ensures the
// schema exists.
func NewPostgresSink(ctx context.Context, dsn string, opts ...PostgresOption) (*PostgresSink, error) {
	cfg := postgresConfig{
		maxOpenConns:    defaultMaxOpenConns,
		maxIdleConns:    defaultMaxIdleConns,
		connMaxLifetime: defaultConnMaxLifetime,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.maxOpenConns)
	db.SetMaxIdleConns(cfg.maxIdleConns)
	db.SetConnMaxLifetime(cfg.connMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PostgresSink{db: db}, nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS score_events (
			window_id   TEXT        NOT NULL,
			seq         BIGINT      NOT NULL,
			event_id    TEXT        NOT NULL,
			player_id   TEXT        NOT NULL,
			puzzle_id   TEXT        NOT NULL,
			kind        TEXT        NOT NULL,
			points      BIGINT      NOT NULL,
			new_score   BIGINT      NOT NULL,
			version     BIGINT      NOT NULL,
			achieved_at TIMESTAMPTZ NOT NULL,
			synced_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (window_id, seq)
		)
	`)
	return err
}

// Write inserts one applied event; replayed sequences are ignored.
func (s *PostgresSink) Write(ctx context.Context, ev model.AppliedEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO score_events
			(window_id, seq, event_id, player_id, puzzle_id, kind, points, new_score, version, achieved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (window_id, seq) DO NOTHING
	`, ev.WindowID, ev.Seq, ev.EventID, ev.PlayerID, ev.PuzzleID, string(ev.Kind), ev.Points, ev.NewScore, ev.Version, ev.TS)
	if err != nil {
		return fmt.Errorf("insert score event: %w", err)
	}
	return nil
}

// Cursor returns the highest persisted sequence for a window.
func (s *PostgresSink) Cursor(ctx context.Context, windowID string) (uint64, error) {
	var cursor uint64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM score_events WHERE window_id = $1
	`, windowID).Scan(&cursor)
	if err != nil {
		return 0, fmt.Errorf("query cursor: %w", err)
	}
	return cursor, nil
}

// Close closes the connection pool.
func (s *PostgresSink) Close() error {
	return s.db.Close()
}
