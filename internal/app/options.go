package service

import (
	"time"

	"github.com/okian/puzzlerank/internal/adapters/sink"
	"github.com/okian/puzzlerank/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of routing workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the intake queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the idempotency ledger.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithSnapshotInterval sets the snapshot and broadcast cadence.
func WithSnapshotInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.snapshotInterval = interval
		}
	}
}

// WithSubscriberBuffer sets the per-subscriber frame buffer size.
func WithSubscriberBuffer(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.subscriberBuffer = size
		}
	}
}

// WithDefaultTopN sets the top-N for subscribers without a filter.
func WithDefaultTopN(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.defaultTopN = n
		}
	}
}

// WithSink sets the durable sink applied events are mirrored into. The
// caller keeps ownership and closes it after Stop.
func WithSink(sk sink.Sink) Option {
	return func(s *Service) {
		if sk != nil {
			s.eventSink = sk
			s.ownSink = false
		}
	}
}

// WithSinkRetryMax bounds retries for failed sink writes.
func WithSinkRetryMax(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.sinkRetryMax = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}
