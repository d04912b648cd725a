// Package service wires the ranking engine together: intake queue,
// routing workers, per-window stores, the broadcast hub, and the
// durable sink mirror. It implements the dependencies required by the
// HTTP API.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	eventqueue "github.com/okian/puzzlerank/internal/adapters/mq/queue"
	workerpool "github.com/okian/puzzlerank/internal/adapters/mq/worker"
	"github.com/okian/puzzlerank/internal/adapters/repository"
	"github.com/okian/puzzlerank/internal/adapters/sink"
	"github.com/okian/puzzlerank/internal/adapters/ws/hub"
	"github.com/okian/puzzlerank/internal/domain/dedupe"
	"github.com/okian/puzzlerank/internal/domain/delta"
	"github.com/okian/puzzlerank/internal/domain/model"
	"github.com/okian/puzzlerank/internal/domain/types"
	"github.com/okian/puzzlerank/internal/domain/window"
	"github.com/okian/puzzlerank/pkg/logger"
	"github.com/okian/puzzlerank/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultQueueSize        = 100_000
	defaultDedupeSize       = 50_000
	defaultSnapshotInterval = 250 * time.Millisecond
	defaultSinkRetryMax     = 5
	mirrorDrainTimeout      = 10 * time.Second
)

// Service implements the API dependencies for the ranking engine.
type Service struct {
	mu sync.RWMutex

	// Core components
	registry   *window.Registry
	deduper    dedupe.Deduper
	eventQueue *eventqueue.InMemoryQueue
	workerPool *workerpool.Pool
	hub        *hub.Hub
	eventSink  sink.Sink
	mirror     *sink.Mirror

	// Configuration
	workerCount      int
	queueSize        int
	dedupeSize       int
	snapshotInterval time.Duration
	subscriberBuffer int
	defaultTopN      int
	sinkRetryMax     int
	ownSink          bool

	// State
	started bool
	stopCh  chan struct{}
	loopWG  sync.WaitGroup

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:      runtime.NumCPU() * 2,
		queueSize:        defaultQueueSize,
		dedupeSize:       defaultDedupeSize,
		snapshotInterval: defaultSnapshotInterval,
		sinkRetryMax:     defaultSinkRetryMax,
		stopCh:           make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting ranking engine...")

	// Stop closes stopCh; a restart needs a fresh one or the snapshot
	// loop exits immediately.
	s.stopCh = make(chan struct{})

	s.registry = window.NewRegistry(
		window.WithAppliedLedgerSize(s.dedupeSize),
	)
	s.deduper = dedupe.New(
		dedupe.WithMaxSize(s.dedupeSize),
	)
	s.eventQueue = eventqueue.New(
		eventqueue.WithCapacity(s.queueSize),
	)

	hubOpts := []hub.Option{}
	if s.subscriberBuffer > 0 {
		hubOpts = append(hubOpts, hub.WithSubscriberBuffer(s.subscriberBuffer))
	}
	if s.defaultTopN > 0 {
		hubOpts = append(hubOpts, hub.WithDefaultTopN(s.defaultTopN))
	}
	s.hub = hub.New(hubOpts...)

	if s.eventSink == nil {
		s.eventSink = sink.NewMemorySink()
		s.ownSink = true
		s.logger.Info(ctx, "no durable sink configured, mirroring in memory")
	}
	s.mirror = sink.NewMirror(s.registry.Applied(), s.eventSink,
		sink.WithRetry(s.sinkRetryMax, 0),
	)
	go s.mirror.Run(ctx)

	s.workerPool = workerpool.NewPool(s.workerCount, s.eventQueue, s.registry)
	s.workerPool.Start(ctx)

	s.loopWG.Add(1)
	go s.snapshotLoop(ctx)

	s.started = true
	s.logger.Info(ctx, "ranking engine started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Any("snapshotInterval", s.snapshotInterval),
	)

	return nil
}

// Stop gracefully shuts down the service. Queued events are drained
// into the stores and the sink mirror before anything is torn down.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping ranking engine...")

	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	s.loopWG.Wait()

	// Drain the intake queue through the workers, then the mutators
	// through the applied stream into the mirror.
	if s.workerPool != nil {
		_ = s.workerPool.Shutdown(ctx)
	}
	if s.registry != nil {
		s.registry.Shutdown(ctx)
	}
	if s.mirror != nil {
		select {
		case <-s.mirror.Done():
		case <-time.After(mirrorDrainTimeout):
			s.logger.Warn(ctx, "sink mirror drain timed out")
		}
	}
	if s.hub != nil {
		s.hub.Shutdown(ctx)
	}
	if s.ownSink && s.eventSink != nil {
		_ = s.eventSink.Close()
		// A restart must not mirror into a closed sink.
		s.eventSink = nil
	}

	s.started = false
	s.logger.Info(ctx, "ranking engine stopped")
}

// SubmitScore validates a score event and hands it to the intake queue.
// Duplicate event ids and full queues are rejected synchronously; the
// ranking mutation itself happens asynchronously.
func (s *Service) SubmitScore(ctx context.Context, ev model.ScoreEvent) error {
	w, ok := s.registry.Get(ev.WindowID)
	if !ok {
		return fmt.Errorf("window %q: %w", ev.WindowID, window.ErrUnknownWindow)
	}
	if w.Closed() {
		return fmt.Errorf("window %q: %w", ev.WindowID, window.ErrWindowClosed)
	}

	if s.deduper.SeenAndRecord(ctx, ev.EventID) {
		metrics.RecordEventDuplicate()
		s.logger.Debug(ctx, "duplicate event rejected",
			logger.String("eventID", ev.EventID),
			logger.String("playerID", ev.PlayerID),
		)
		return fmt.Errorf("event %q: %w", ev.EventID, ErrDuplicateEvent)
	}

	if !s.eventQueue.Enqueue(ctx, ev) {
		// Give the producer a clean retry path.
		s.deduper.Unrecord(ctx, ev.EventID)
		return fmt.Errorf("event %q: %w", ev.EventID, ErrBusy)
	}
	return nil
}

// TopN returns the first n entries of a window's leaderboard.
func (s *Service) TopN(ctx context.Context, windowID string, n int) ([]types.Entry, error) {
	w, ok := s.registry.Get(windowID)
	if !ok {
		return nil, fmt.Errorf("window %q: %w", windowID, window.ErrUnknownWindow)
	}
	entries, err := w.Store().TopN(ctx, n)
	if err != nil {
		return nil, err
	}
	return toAPIEntries(entries), nil
}

// Rank returns the entry for one player in a window.
func (s *Service) Rank(ctx context.Context, windowID, playerID string) (types.Entry, error) {
	w, ok := s.registry.Get(windowID)
	if !ok {
		return types.Entry{}, fmt.Errorf("window %q: %w", windowID, window.ErrUnknownWindow)
	}
	entry, err := w.Store().RankOf(ctx, playerID)
	if err != nil {
		return types.Entry{}, err
	}
	return toAPIEntry(entry), nil
}

// Around returns the neighborhood of a player: radius entries on each
// side, clipped at the leaderboard's edges.
func (s *Service) Around(ctx context.Context, windowID, playerID string, radius int) ([]types.Entry, error) {
	w, ok := s.registry.Get(windowID)
	if !ok {
		return nil, fmt.Errorf("window %q: %w", windowID, window.ErrUnknownWindow)
	}
	entries, err := w.Store().Around(ctx, playerID, radius)
	if err != nil {
		return nil, err
	}
	return toAPIEntries(entries), nil
}

// OpenWindow registers a new ranking window.
func (s *Service) OpenWindow(ctx context.Context, id string, startsAt, endsAt time.Time) error {
	_, err := s.registry.Open(ctx, id, startsAt, endsAt)
	return err
}

// CloseWindow freezes a window after draining its pending events.
func (s *Service) CloseWindow(ctx context.Context, id string) error {
	return s.registry.Close(ctx, id)
}

// Windows lists all registered windows.
func (s *Service) Windows(ctx context.Context) []window.Info {
	return s.registry.List(ctx)
}

// Subscribe registers a live leaderboard subscriber and delivers its
// initial snapshot. filterExpr is "top:N", "around:player:radius", or
// empty for the default top-N view.
func (s *Service) Subscribe(ctx context.Context, windowID, filterExpr string) (*hub.Subscriber, error) {
	w, ok := s.registry.Get(windowID)
	if !ok {
		return nil, fmt.Errorf("window %q: %w", windowID, window.ErrUnknownWindow)
	}

	f, err := hub.ParseFilter(filterExpr, s.hub.DefaultTopN())
	if err != nil {
		return nil, err
	}

	sub, err := s.hub.Subscribe(windowID, f)
	if err != nil {
		return nil, err
	}

	snap := w.Store().CurrentSnapshot()
	if snap == nil {
		snap = w.Store().Capture(ctx)
	}
	s.hub.SendSnapshot(sub, snap)
	return sub, nil
}

// Unsubscribe drops a subscriber.
func (s *Service) Unsubscribe(sub *hub.Subscriber) {
	s.hub.Unsubscribe(sub)
}

// ServeConn pumps a subscriber's frames over a WebSocket connection.
func (s *Service) ServeConn(ctx context.Context, conn hub.Conn, sub *hub.Subscriber) {
	s.hub.ServeConn(ctx, conn, sub)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}

	if s.started {
		ctx := context.Background()
		queueLen := s.eventQueue.Len(ctx)
		windows := s.registry.List(ctx)

		versions := make(map[string]uint64, len(windows))
		players := make(map[string]int, len(windows))
		s.registry.Each(func(w *window.Window) {
			versions[w.ID] = w.Store().Version()
			players[w.ID] = w.Store().Count(ctx)
		})

		stats["queueLength"] = queueLen
		stats["windows"] = len(windows)
		stats["subscribers"] = s.hub.SubscriberCount()
		stats["versions"] = versions
		stats["players"] = players

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWindowCount(len(windows))
		metrics.UpdateWorkerCount(s.workerCount)
	}

	return stats
}

// Size returns the current number of entries in the deduper.
func (s *Service) Size() int64 {
	if s.deduper == nil {
		return 0
	}
	return s.deduper.Size()
}

// snapshotLoop periodically captures per-window snapshots and fans the
// resulting deltas out to subscribers. A window whose version has not
// moved since the last tick produces neither a rebuild nor a broadcast.
func (s *Service) snapshotLoop(ctx context.Context) {
	defer s.loopWG.Done()

	ticker := time.NewTicker(s.snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			for _, id := range s.registry.CloseExpired(ctx, time.Now()) {
				s.logger.Info(ctx, "window expired", logger.String("window", id))
			}
			s.broadcastTick(ctx)
		}
	}
}

func (s *Service) broadcastTick(ctx context.Context) {
	s.registry.Each(func(w *window.Window) {
		store := w.Store()
		prev := store.CurrentSnapshot()
		if prev != nil && store.Version() == prev.Version {
			return
		}

		next := store.Capture(ctx)
		if next == nil || (prev != nil && next.Version == prev.Version) {
			return
		}

		var fromVersion uint64
		if prev != nil {
			fromVersion = prev.Version
		}
		changes := delta.Diff(prev, next)
		s.hub.Broadcast(w.ID, fromVersion, next, changes)

		metrics.UpdateStoreVersion(w.ID, next.Version)
		metrics.UpdateStoreRecords(w.ID, len(next.Entries))
	})
}

func toAPIEntry(e repository.Entry) types.Entry {
	return types.Entry{
		Rank:       e.Rank,
		PlayerID:   e.PlayerID,
		Score:      e.Score,
		AchievedAt: e.AchievedAtMs,
	}
}

func toAPIEntries(entries []repository.Entry) []types.Entry {
	out := make([]types.Entry, len(entries))
	for i, e := range entries {
		out[i] = toAPIEntry(e)
	}
	return out
}
