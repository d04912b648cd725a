package sink

import (
	"context"
	"time"

	"github.com/okian/puzzlerank/internal/domain/model"
	"github.com/okian/puzzlerank/pkg/logger"
	"github.com/okian/puzzlerank/pkg/metrics"
)

// Default mirror configuration constants.
const (
	defaultRetryMax  = 5
	defaultRetryBase = 50 * time.Millisecond
)

// Mirror consumes the applied-event stream and writes each event to the
// sink with bounded retries. A write that keeps failing is logged and
// skipped so the mirror never wedges the stream.
type Mirror struct {
	stream <-chan model.AppliedEvent
	sink   Sink

	retryMax  int
	retryBase time.Duration

	synced map[string]uint64
	done   chan struct{}
	log    logger.Logger
}

// NewMirror creates a mirror over an applied-event stream.
func NewMirror(stream <-chan model.AppliedEvent, s Sink, opts ...MirrorOption) *Mirror {
	m := &Mirror{
		stream:    stream,
		sink:      s,
		retryMax:  defaultRetryMax,
		retryBase: defaultRetryBase,
		synced:    make(map[string]uint64),
		done:      make(chan struct{}),
		log:       logger.Get().Named("sink-mirror"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run drains the stream until it is closed or the context is canceled.
// Call it in its own goroutine.
func (m *Mirror) Run(ctx context.Context) {
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-m.stream:
			if !ok {
				return
			}
			m.mirror(ctx, ev)
		}
	}
}

// Done is closed once the stream has been fully drained.
func (m *Mirror) Done() <-chan struct{} {
	return m.done
}

func (m *Mirror) mirror(ctx context.Context, ev model.AppliedEvent) {
	if prev := m.synced[ev.WindowID]; ev.Seq > prev {
		metrics.UpdateSinkLag(ev.WindowID, ev.Seq-prev)
	}

	for attempt := 0; ; attempt++ {
		err := m.sink.Write(ctx, ev)
		if err == nil {
			m.synced[ev.WindowID] = ev.Seq
			metrics.RecordSinkSynced()
			metrics.UpdateSinkLag(ev.WindowID, 0)
			return
		}
		if attempt >= m.retryMax {
			metrics.RecordErrorByComponent("sink", "write_failed")
			m.log.Error(ctx, "giving up on sink write",
				logger.String("eventID", ev.EventID),
				logger.String("window", ev.WindowID),
				logger.Uint64("seq", ev.Seq),
				logger.Error(err),
			)
			return
		}

		metrics.RecordSinkRetry()
		backoff := m.retryBase << attempt
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
	}
}
