package repository

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/pkg/metrics"
)

// Treap-based, in-memory Store implementation.
//
// Ordering: score ASC, then seq ASC (arrival order). "less" means ranks
// earlier, so in-order traversal yields the leaderboard from best to worst.
// Subtree sizes make Rank O(log n).

type node struct {
	id    string
	score int64
	seq   int64
	prio  uint64
	left  *node
	right *node
	size  int
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

func less(aScore, aSeq, bScore, bSeq int64) bool {
	if aScore != bScore {
		return aScore < bScore
	}
	return aSeq < bSeq
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, score, seq int64, prio uint64) *node {
	if n == nil {
		return &node{id: id, score: score, seq: seq, prio: prio, size: 1}
	}
	if less(score, seq, n.score, n.seq) {
		n.left = insert(n.left, id, score, seq, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, score, seq, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, score, seq int64) *node {
	if n == nil {
		return nil
	}
	switch {
	case score == n.score && seq == n.seq:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, score, seq)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, score, seq)
		}
	case less(score, seq, n.score, n.seq):
		n.left = deleteNode(n.left, score, seq)
	default:
		n.right = deleteNode(n.right, score, seq)
	}
	fix(n)
	return n
}

// rankOf counts nodes ranking before (score, seq), plus one.
func rankOf(n *node, score, seq int64) int {
	r := 1
	for n != nil {
		if less(n.score, n.seq, score, seq) {
			r += nsize(n.left) + 1
			n = n.right
		} else {
			n = n.left
		}
	}
	return r
}

// collectTopN appends up to limit ids in rank order.
func collectTopN(n *node, limit int, out *[]string) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, n.id)
	}
	collectTopN(n.right, limit, out)
}

// TreapStore keeps the roster in memory.
type TreapStore struct {
	mu      sync.RWMutex
	root    *node
	byID    map[string]model.Participant
	nextSeq int64
	now     func() time.Time
	newID   func() string

	// notifyMu is taken before mu is released so listeners see mutations
	// in order.
	notifyMu  sync.Mutex
	listeners map[int]Listener
	nextSub   int
}

// NewTreapStore constructs an empty treap store.
func NewTreapStore(opts ...Option) *TreapStore {
	cfg := settings{now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &TreapStore{
		byID:      make(map[string]model.Participant),
		now:       cfg.now,
		newID:     cfg.newID,
		listeners: make(map[int]Listener),
	}
}

// Add implements Store.Add in O(log n) expected time.
func (s *TreapStore) Add(_ context.Context, p model.Participant) (model.Participant, error) {
	defer observeLatency("add", time.Now())
	if p.Score < 0 {
		return model.Participant{}, ErrInvalidScore
	}
	if p.ID == "" {
		p.ID = s.newID()
	}

	s.mu.Lock()
	if _, exists := s.byID[p.ID]; exists {
		s.mu.Unlock()
		return model.Participant{}, fmt.Errorf("%w: %s", ErrDuplicate, p.ID)
	}
	s.nextSeq++
	now := s.now().UTC()
	p.Seq = s.nextSeq
	p.Attempts = 1
	p.CreatedAt, p.UpdatedAt = now, now
	s.byID[p.ID] = p
	s.root = insert(s.root, p.ID, p.Score, p.Seq, rand.Uint64())
	s.publishLocked("add")
	return p, nil
}

// UpdateBest implements Store.UpdateBest.
func (s *TreapStore) UpdateBest(_ context.Context, id string, score int64) (model.Participant, bool, error) {
	defer observeLatency("update", time.Now())
	if score < 0 {
		return model.Participant{}, false, ErrInvalidScore
	}

	s.mu.Lock()
	p, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.Participant{}, false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	improved := score < p.Score
	if improved {
		s.root = deleteNode(s.root, p.Score, p.Seq)
		p.Score = score
		s.root = insert(s.root, p.ID, p.Score, p.Seq, rand.Uint64())
	}
	p.Attempts++
	p.UpdatedAt = s.now().UTC()
	s.byID[id] = p
	s.publishLocked("update")
	return p, improved, nil
}

// Delete implements Store.Delete.
func (s *TreapStore) Delete(_ context.Context, id string) error {
	defer observeLatency("delete", time.Now())
	s.mu.Lock()
	p, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.root = deleteNode(s.root, p.Score, p.Seq)
	delete(s.byID, id)
	s.publishLocked("delete")
	return nil
}

// Get implements Store.Get.
func (s *TreapStore) Get(_ context.Context, id string) (model.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return model.Participant{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, nil
}

// Rank implements Store.Rank in O(log n).
func (s *TreapStore) Rank(_ context.Context, id string) (int, model.Participant, error) {
	defer observeLatency("rank", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return 0, model.Participant{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rankOf(s.root, p.Score, p.Seq), p, nil
}

// TopN implements Store.TopN.
func (s *TreapStore) TopN(_ context.Context, n int) ([]model.Participant, error) {
	defer observeLatency("top_n", time.Now())
	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.topLocked(n), nil
}

// Ranked implements Store.Ranked.
func (s *TreapStore) Ranked(_ context.Context) ([]model.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.topLocked(len(s.byID)), nil
}

// Count implements Store.Count.
func (s *TreapStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Subscribe implements Store.Subscribe.
func (s *TreapStore) Subscribe(ctx context.Context, fn Listener) (func(), error) {
	s.mu.RLock()
	roster := s.topLocked(len(s.byID))
	s.notifyMu.Lock()
	s.mu.RUnlock()

	id := s.nextSub
	s.nextSub++
	s.listeners[id] = fn
	fn(roster)
	s.notifyMu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			s.notifyMu.Lock()
			delete(s.listeners, id)
			s.notifyMu.Unlock()
		})
	}
	context.AfterFunc(ctx, unsubscribe)
	return unsubscribe, nil
}

// Close implements Store.Close.
func (s *TreapStore) Close() error {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	clear(s.listeners)
	return nil
}

// publishLocked emits the roster to listeners. It must be called with s.mu
// held for writing and releases it.
func (s *TreapStore) publishLocked(op string) {
	size := len(s.byID)
	var roster []model.Participant
	s.notifyMu.Lock()
	if len(s.listeners) > 0 {
		roster = s.topLocked(size)
	}
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	metrics.RecordRosterMutation(op)
	metrics.UpdateRosterSize(size)
	for _, fn := range s.listeners {
		fn(roster)
	}
}

func (s *TreapStore) topLocked(n int) []model.Participant {
	ids := make([]string, 0, min(n, len(s.byID)))
	collectTopN(s.root, n, &ids)
	out := make([]model.Participant, len(ids))
	for i, id := range ids {
		out[i] = s.byID[id]
	}
	return out
}

func observeLatency(op string, start time.Time) {
	metrics.RecordRepositoryLatency(op, float64(time.Since(start).Microseconds())/1000)
}

var _ Store = (*TreapStore)(nil)
