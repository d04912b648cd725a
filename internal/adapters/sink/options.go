package sink

import (
	"time"

	"github.com/okian/puzzlerank/pkg/logger"
)

type postgresConfig struct {
	maxOpenConns    int
	maxIdleConns    int
	connMaxLifetime time.Duration
}

// PostgresOption applies a configuration option to the Postgres sink.
type PostgresOption func(*postgresConfig)

// WithMaxOpenConns sets the connection pool's open connection limit.
func WithMaxOpenConns(n int) PostgresOption {
	return func(c *postgresConfig) {
		if n > 0 {
			c.maxOpenConns = n
		}
	}
}

// WithMaxIdleConns sets the connection pool's idle connection limit.
func WithMaxIdleConns(n int) PostgresOption {
	return func(c *postgresConfig) {
		if n > 0 {
			c.maxIdleConns = n
		}
	}
}

// WithConnMaxLifetime sets the maximum lifetime of pooled connections.
func WithConnMaxLifetime(d time.Duration) PostgresOption {
	return func(c *postgresConfig) {
		if d > 0 {
			c.connMaxLifetime = d
		}
	}
}

// MirrorOption applies a configuration option to the Mirror.
type MirrorOption func(*Mirror)

// WithRetry sets the retry budget and base backoff for failed writes.
func WithRetry(max int, base time.Duration) MirrorOption {
	return func(m *Mirror) {
		if max >= 0 {
			m.retryMax = max
		}
		if base > 0 {
			m.retryBase = base
		}
	}
}

// WithMirrorLogger sets a custom logger for the mirror.
func WithMirrorLogger(log logger.Logger) MirrorOption {
	return func(m *Mirror) {
		if log != nil {
			m.log = log
		}
	}
}
