package repository

import "errors"

// Sentinel kinds for ranking store errors.
var (
	ErrNotFound     = errors.New("player not found")
	ErrInvalidLimit = errors.New("invalid leaderboard limit")
	ErrDuplicateKey = errors.New("duplicate idempotency key")
	ErrWindowClosed = errors.New("window closed")
)
