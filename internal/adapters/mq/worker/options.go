package worker

import (
	"time"

	"github.com/okian/puzzlerank/pkg/logger"
)

// Option applies a configuration option to the Worker.
type Option func(*Worker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *Worker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithBatch sets the dequeue batch size and empty-queue wait timeout.
func WithBatch(size int, timeout time.Duration) Option {
	return func(w *Worker) {
		if size > 0 {
			w.batchSize = size
		}
		if timeout > 0 {
			w.batchTimeout = timeout
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(log logger.Logger) Option {
	return func(w *Worker) {
		if log != nil {
			w.log = log
		}
	}
}
