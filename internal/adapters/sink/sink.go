// Package sink mirrors applied score events to durable storage. The mirror
// trails the in-memory ranking state; it never sits on the apply path.
package sink

import (
	"context"

	"github.com/okian/puzzlerank/internal/domain/model"
)

// Sink persists applied events and tracks a per-window sync cursor.
type Sink interface {
	// Write persists one applied event. Writing the same (window, seq)
	// twice is a no-op.
	Write(ctx context.Context, ev model.AppliedEvent) error

	// Cursor returns the highest sequence number persisted for a window,
	// or zero when nothing has been written yet.
	Cursor(ctx context.Context, windowID string) (uint64, error)

	// Close releases the underlying resources.
	Close() error
}
