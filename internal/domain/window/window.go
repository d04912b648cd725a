// Package window manages leaderboard windows: named ranking scopes with an
// open/frozen lifecycle, each owning an independent ranking store and a
// single mutator goroutine. Windows run fully independently; no operation
// takes a cross-window lock.
package window

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/okian/puzzlerank/internal/adapters/repository"
	"github.com/okian/puzzlerank/internal/domain/model"
	"github.com/okian/puzzlerank/pkg/logger"
	"github.com/okian/puzzlerank/pkg/metrics"
)

// Sentinel kinds for window errors.
var (
	ErrUnknownWindow = errors.New("unknown window")
	ErrWindowExists  = errors.New("window already exists")
	ErrWindowClosed  = errors.New("window closed")
)

const defaultMutatorBuffer = 4096

// Window is one ranking scope. All score mutations for the window flow
// through its events channel into the single mutator goroutine, which owns
// the store's write path exclusively.
type Window struct {
	ID       string
	StartsAt time.Time
	EndsAt   time.Time

	store  *repository.TreapStore
	events chan model.ScoreEvent

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// Store exposes the window's ranking store for reads.
func (w *Window) Store() repository.Store {
	return w.store
}

// Closed reports whether the window has been frozen.
func (w *Window) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Info is the read-only description of a window.
type Info struct {
	ID       string    `json:"id"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	Closed   bool      `json:"closed"`
	Players  int       `json:"players"`
	Version  uint64    `json:"version"`
}

// Registry owns all windows and the shared applied-event stream consumed
// by the persistence synchronizer.
type Registry struct {
	mu      sync.RWMutex
	windows map[string]*Window

	applied       chan model.AppliedEvent
	mutatorBuffer int
	appliedBuffer int
	ledgerSize    int

	// Mutators live for the registry's lifetime, not the lifetime of
	// whatever request happened to open their window.
	lifeCtx context.Context
	cancel  context.CancelFunc

	wg  sync.WaitGroup
	log logger.Logger
}

// RegistryOption applies a configuration option to the Registry.
type RegistryOption func(*Registry)

// WithMutatorBuffer sets the per-window mutator channel capacity.
func WithMutatorBuffer(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.mutatorBuffer = n
		}
	}
}

// WithAppliedBuffer sets the capacity of the applied-event stream toward
// the persistence synchronizer.
func WithAppliedBuffer(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.appliedBuffer = n
		}
	}
}

// WithAppliedLedgerSize sets each window store's applied-key ledger size.
func WithAppliedLedgerSize(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.ledgerSize = n
		}
	}
}

// NewRegistry creates an empty window registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		windows:       make(map[string]*Window),
		mutatorBuffer: defaultMutatorBuffer,
		appliedBuffer: 65536,
		log:           logger.Get().Named("windows"),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.applied = make(chan model.AppliedEvent, r.appliedBuffer)
	r.lifeCtx, r.cancel = context.WithCancel(context.Background())
	return r
}

// Applied returns the ordered stream of committed events. Per window, the
// stream carries monotonically increasing sequence numbers; consumption is
// at-least-once and consumers must be idempotent on replay.
func (r *Registry) Applied() <-chan model.AppliedEvent {
	return r.applied
}

// Open creates a window and starts its mutator. ctx governs only the call
// itself; the mutator runs until the window is closed or the registry shuts
// down.
func (r *Registry) Open(ctx context.Context, id string, startsAt, endsAt time.Time) (*Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.windows[id]; exists {
		return nil, ErrWindowExists
	}

	var storeOpts []repository.Option
	if r.ledgerSize > 0 {
		storeOpts = append(storeOpts, repository.WithAppliedLedgerSize(r.ledgerSize))
	}
	w := &Window{
		ID:       id,
		StartsAt: startsAt,
		EndsAt:   endsAt,
		store:    repository.NewTreapStore(r.lifeCtx, id, storeOpts...),
		events:   make(chan model.ScoreEvent, r.mutatorBuffer),
		done:     make(chan struct{}),
	}
	r.windows[id] = w
	metrics.UpdateWindowCount(len(r.windows))

	r.wg.Add(1)
	go r.runMutator(r.lifeCtx, w)

	r.log.Info(ctx, "window opened",
		logger.String("window", id),
		logger.Any("ends_at", endsAt),
	)
	return w, nil
}

// runMutator is the single writer for one window's store.
func (r *Registry) runMutator(ctx context.Context, w *Window) {
	defer r.wg.Done()
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.events:
			if !ok {
				return
			}
			applied, err := w.store.Apply(ctx, ev)
			if err != nil {
				// Duplicates older than the ingestion cache land here:
				// dropped and acknowledged, never an error upstream.
				if errors.Is(err, repository.ErrDuplicateKey) {
					r.log.Debug(ctx, "duplicate event dropped by store ledger",
						logger.String("window", w.ID),
						logger.String("eventID", ev.EventID),
					)
					continue
				}
				r.log.Warn(ctx, "event rejected by store",
					logger.String("window", w.ID),
					logger.String("eventID", ev.EventID),
					logger.Error(err),
				)
				continue
			}
			metrics.RecordEventApplied()

			// The durability mirror must never block score application.
			select {
			case r.applied <- applied:
			default:
				metrics.RecordSinkOverflow()
				r.log.Warn(ctx, "applied-event stream full, durability lagging",
					logger.String("window", w.ID),
					logger.String("eventID", ev.EventID),
				)
			}
		}
	}
}

// Get returns a window by id.
func (r *Registry) Get(id string) (*Window, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.windows[id]
	return w, ok
}

// Route hands an event to its window's mutator. Returns ErrUnknownWindow
// or ErrWindowClosed synchronously; false/full routing backpressure is
// reported as ok=false so the caller can retry or drop.
func (r *Registry) Route(ctx context.Context, ev model.ScoreEvent) (bool, error) {
	w, ok := r.Get(ev.WindowID)
	if !ok {
		return false, ErrUnknownWindow
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false, ErrWindowClosed
	}
	select {
	case w.events <- ev:
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	default:
		return false, nil
	}
}

// Close freezes a window: the mutator drains and stops, the store becomes
// a read-only archival copy.
func (r *Registry) Close(ctx context.Context, id string) error {
	w, ok := r.Get(id)
	if !ok {
		return ErrUnknownWindow
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWindowClosed
	}
	w.closed = true
	close(w.events)
	w.mu.Unlock()

	// Let the mutator finish queued events before freezing.
	select {
	case <-w.done:
	case <-ctx.Done():
	}
	w.store.Freeze(ctx)

	r.log.Info(ctx, "window closed", logger.String("window", id))
	return nil
}

// CloseExpired freezes every open window whose end boundary has passed.
func (r *Registry) CloseExpired(ctx context.Context, now time.Time) []string {
	r.mu.RLock()
	var expired []string
	for id, w := range r.windows {
		if !w.EndsAt.IsZero() && !now.Before(w.EndsAt) && !w.Closed() {
			expired = append(expired, id)
		}
	}
	r.mu.RUnlock()

	sort.Strings(expired)
	for _, id := range expired {
		if err := r.Close(ctx, id); err != nil && !errors.Is(err, ErrWindowClosed) {
			r.log.Warn(ctx, "failed to close expired window",
				logger.String("window", id),
				logger.Error(err),
			)
		}
	}
	return expired
}

// List returns window descriptions sorted by id.
func (r *Registry) List(ctx context.Context) []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info, 0, len(r.windows))
	for _, w := range r.windows {
		out = append(out, Info{
			ID:       w.ID,
			StartsAt: w.StartsAt,
			EndsAt:   w.EndsAt,
			Closed:   w.Closed(),
			Players:  w.store.Count(ctx),
			Version:  w.store.Version(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Each calls fn for every window. Used by the snapshot loop.
func (r *Registry) Each(fn func(*Window)) {
	r.mu.RLock()
	windows := make([]*Window, 0, len(r.windows))
	for _, w := range r.windows {
		windows = append(windows, w)
	}
	r.mu.RUnlock()

	for _, w := range windows {
		fn(w)
	}
}

// Shutdown stops all mutators and waits for them to drain.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	for _, w := range r.windows {
		w.mu.Lock()
		if !w.closed {
			w.closed = true
			close(w.events)
		}
		w.mu.Unlock()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		// Safe only once every mutator has stopped writing.
		close(r.applied)
		r.cancel()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
