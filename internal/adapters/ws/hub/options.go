package hub

import (
	"github.com/okian/puzzlerank/pkg/logger"
)

// Option applies a configuration option to the Hub.
type Option func(*Hub)

// WithSubscriberBuffer sets the per-subscriber send buffer size.
func WithSubscriberBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.bufferSize = size
		}
	}
}

// WithDefaultTopN sets the top-N used when no filter is given.
func WithDefaultTopN(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.topN = n
		}
	}
}

// WithLogger sets a custom logger for the hub.
func WithLogger(log logger.Logger) Option {
	return func(h *Hub) {
		if log != nil {
			h.log = log
		}
	}
}
