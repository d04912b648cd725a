package repository

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/puzzlerank/internal/domain/dedupe"
	"github.com/okian/puzzlerank/internal/domain/model"
	"github.com/okian/puzzlerank/internal/domain/ordering"
	"github.com/okian/puzzlerank/pkg/metrics"
)

// Treap-based, in-memory Store implementation.
//
// Ordering: the total order from internal/domain/ordering: score DESC,
// achieved-at ASC, player id ASC. "Less" means ranks earlier, so in-order
// traversal produces the leaderboard from best to worst. Subtree sizes give
// O(log n) rank lookup and O(log n + k) range scans.

// record holds the score state backing a player's treap node.
type record struct {
	score        int64
	achievedAtMs int64
}

func (r record) key(playerID string) ordering.Key {
	return ordering.Key{Score: r.score, AchievedAtMs: r.achievedAtMs, PlayerID: playerID}
}

// treap node
type node struct {
	id           string
	score        int64
	achievedAtMs int64
	prio         uint64
	left         *node
	right        *node
	size         int
}

func (n *node) key() ordering.Key {
	return ordering.Key{Score: n.score, AchievedAtMs: n.achievedAtMs, PlayerID: n.id}
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// priorityFor derives a treap priority from the player id. Hash-derived
// priorities keep the tree balanced in expectation and make the shape a
// pure function of the applied event set, preserving replay determinism.
func priorityFor(playerID string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(playerID))
	return h.Sum64()
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, score, achievedAtMs int64) *node {
	if n == nil {
		return &node{id: id, score: score, achievedAtMs: achievedAtMs, prio: priorityFor(id), size: 1}
	}
	k := ordering.Key{Score: score, AchievedAtMs: achievedAtMs, PlayerID: id}
	if ordering.Less(k, n.key()) {
		n.left = insert(n.left, id, score, achievedAtMs)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, score, achievedAtMs)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, k ordering.Key) *node {
	if n == nil {
		return nil
	}
	switch ordering.Compare(k, n.key()) {
	case 0:
		// Merge children by rotating the higher priority up until leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, k)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, k)
		}
	case -1:
		n.left = deleteNode(n.left, k)
	default:
		n.right = deleteNode(n.right, k)
	}
	fix(n)
	return n
}

// rankOfKey returns the 1-based in-order position of k, assuming k exists.
func rankOfKey(n *node, k ordering.Key) int {
	rank := 1
	for n != nil {
		switch ordering.Compare(k, n.key()) {
		case -1:
			n = n.left
		case 0:
			return rank + nsize(n.left)
		default:
			rank += nsize(n.left) + 1
			n = n.right
		}
	}
	return 0
}

// collectRange appends the entries occupying in-order positions [lo, hi]
// (1-based, inclusive), assigning their ranks.
func collectRange(n *node, lo, hi, offset int, out *[]Entry) {
	if n == nil || lo > hi {
		return
	}
	pos := offset + nsize(n.left) + 1
	if lo < pos {
		collectRange(n.left, lo, hi, offset, out)
	}
	if lo <= pos && pos <= hi {
		*out = append(*out, Entry{
			Rank:         pos,
			PlayerID:     n.id,
			Score:        n.score,
			AchievedAtMs: n.achievedAtMs,
		})
	}
	if pos < hi {
		collectRange(n.right, lo, hi, pos, out)
	}
}

// collectAll appends every entry in rank order with dense ranks from
// startRank onward.
func collectAll(n *node, next *int, out *[]Entry) {
	if n == nil {
		return
	}
	collectAll(n.left, next, out)
	*out = append(*out, Entry{
		Rank:         *next,
		PlayerID:     n.id,
		Score:        n.score,
		AchievedAtMs: n.achievedAtMs,
	})
	*next++
	collectAll(n.right, next, out)
}

// TreapStore is the Store implementation for one leaderboard window.
// Writes are serialized by the window's single mutator; the internal
// RWMutex additionally protects ad-hoc reads of the live tree. Snapshot
// consumers only ever touch the atomic snapshot pointer.
type TreapStore struct {
	mu       sync.RWMutex
	windowID string
	root     *node
	byID     map[string]record
	version  uint64
	seq      uint64
	frozen   bool

	// applied is the bounded ledger of already-applied idempotency keys,
	// evicted oldest-first. appliedSize is only read at construction.
	applied     dedupe.Deduper
	appliedSize int

	snapshot atomic.Pointer[Snapshot]
}

// NewTreapStore constructs a treap store for one window.
func NewTreapStore(ctx context.Context, windowID string, opts ...Option) *TreapStore {
	s := &TreapStore{
		windowID:    windowID,
		byID:        make(map[string]record),
		appliedSize: defaultAppliedLedgerSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.applied = dedupe.New(dedupe.WithMaxSize(s.appliedSize))
	return s
}

// Apply implements Store.Apply with O(log n) expected time.
func (s *TreapStore) Apply(ctx context.Context, ev model.ScoreEvent) (model.AppliedEvent, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreApplyLatency(float64(time.Since(start).Milliseconds()))
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		metrics.RecordErrorByComponent("repository", "window_closed")
		return model.AppliedEvent{}, ErrWindowClosed
	}
	if s.applied.SeenAndRecord(ctx, ev.EventID) {
		metrics.RecordEventDuplicate()
		return model.AppliedEvent{}, ErrDuplicateKey
	}

	old, exists := s.byID[ev.PlayerID]
	var newScore int64
	switch ev.Kind {
	case model.KindAbsolute:
		newScore = ev.Points
	default:
		newScore = old.score + ev.Points
	}

	rec := record{score: newScore, achievedAtMs: old.achievedAtMs}
	if !exists || newScore != old.score {
		rec.achievedAtMs = ev.TS.UnixMilli()
	}

	// Remove-and-reinsert under the new key; never an in-place mutation.
	if exists {
		s.root = deleteNode(s.root, old.key(ev.PlayerID))
	}
	s.byID[ev.PlayerID] = rec
	s.root = insert(s.root, ev.PlayerID, rec.score, rec.achievedAtMs)

	s.seq++
	s.version++
	metrics.UpdateStoreVersion(s.windowID, s.version)
	metrics.UpdateStoreRecords(s.windowID, len(s.byID))

	return model.AppliedEvent{
		ScoreEvent: ev,
		Seq:        s.seq,
		Version:    s.version,
		NewScore:   newScore,
	}, nil
}

// RankOf returns the current entry for a player in O(log n).
func (s *TreapStore) RankOf(ctx context.Context, playerID string) (Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[playerID]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return Entry{}, ErrNotFound
	}
	return Entry{
		Rank:         rankOfKey(s.root, rec.key(playerID)),
		PlayerID:     playerID,
		Score:        rec.score,
		AchievedAtMs: rec.achievedAtMs,
	}, nil
}

// TopN returns the best n entries in rank order.
func (s *TreapStore) TopN(ctx context.Context, n int) ([]Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, n)
	collectRange(s.root, 1, n, 0, &out)
	return out, nil
}

// Around returns the entries ranked within radius positions of the player.
func (s *TreapStore) Around(ctx context.Context, playerID string, radius int) ([]Entry, error) {
	if radius < 0 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[playerID]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return nil, ErrNotFound
	}
	r := rankOfKey(s.root, rec.key(playerID))
	lo := r - radius
	if lo < 1 {
		lo = 1
	}
	hi := r + radius
	if hi > nsize(s.root) {
		hi = nsize(s.root)
	}

	out := make([]Entry, 0, hi-lo+1)
	collectRange(s.root, lo, hi, 0, &out)
	return out, nil
}

// Count returns the number of players tracked.
func (s *TreapStore) Count(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Version returns the current committed version.
func (s *TreapStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Capture publishes a snapshot tagged with the current version. Callers
// throttle capture frequency; an unchanged version returns the published
// snapshot without rebuilding.
func (s *TreapStore) Capture(ctx context.Context) *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if cur := s.snapshot.Load(); cur != nil && cur.Version == s.version {
		return cur
	}

	start := time.Now()
	entries := make([]Entry, 0, len(s.byID))
	next := 1
	collectAll(s.root, &next, &entries)

	rankByPlayer := make(map[string]int, len(entries))
	for _, e := range entries {
		rankByPlayer[e.PlayerID] = e.Rank
	}

	snap := &Snapshot{
		Version:      s.version,
		TakenAt:      time.Now(),
		Entries:      entries,
		rankByPlayer: rankByPlayer,
	}
	s.snapshot.Store(snap)

	ms := float64(time.Since(start).Milliseconds())
	metrics.RecordSnapshotCaptureDuration(ms)
	metrics.UpdateSnapshotLastUnix(snap.TakenAt.Unix())
	metrics.IncrementSnapshotCount()
	return snap
}

// CurrentSnapshot returns the latest published snapshot, which may be nil
// before the first capture.
func (s *TreapStore) CurrentSnapshot() *Snapshot {
	return s.snapshot.Load()
}

// Freeze makes the store a read-only archival copy and publishes the final
// snapshot.
func (s *TreapStore) Freeze(ctx context.Context) {
	s.mu.Lock()
	s.frozen = true
	s.mu.Unlock()
	s.Capture(ctx)
}

// NewSnapshotForTest builds a standalone snapshot from entries. Intended
// for delta and hub tests that need snapshots without a live store.
func NewSnapshotForTest(version uint64, entries []Entry) *Snapshot {
	rankByPlayer := make(map[string]int, len(entries))
	for _, e := range entries {
		rankByPlayer[e.PlayerID] = e.Rank
	}
	return &Snapshot{
		Version:      version,
		TakenAt:      time.Now(),
		Entries:      entries,
		rankByPlayer: rankByPlayer,
	}
}
