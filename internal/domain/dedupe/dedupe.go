// Package dedupe tracks which delivery keys have already been attempted so a
// notification is sent at most once.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Deduper records seen delivery keys.
type Deduper interface {
	// SeenAndRecord atomically checks if key was seen and records it if not.
	// Returns true if key was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, key string) bool

	Size() int64
}

// node is one entry in the insertion-ordered list.
type node struct {
	key        string
	prev, next *node
}

func (n *node) reset() {
	n.key = ""
	n.prev = nil
	n.next = nil
}

// inMemoryDeduper keeps keys in a map plus a doubly linked list ordered by
// insertion. Bounded mode (maxSize > 0) evicts the oldest key; unbounded mode
// keeps everything.
type inMemoryDeduper struct {
	mu       sync.Mutex
	seen     map[string]*node
	head     *node // newest
	tail     *node // oldest
	maxSize  int
	size     atomic.Int64
	nodePool sync.Pool
}

// NewInMemoryDeduper creates a process-local deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	return newInMemory(opts...)
}

func newInMemory(opts ...Option) *inMemoryDeduper {
	cfg := defaultSettings()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &inMemoryDeduper{
		seen:     make(map[string]*node),
		maxSize:  cfg.maxSize,
		nodePool: sync.Pool{New: func() any { return &node{} }},
	}
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[key]; exists {
		return true
	}
	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		d.unlink(d.tail)
	}

	n, _ := d.nodePool.Get().(*node)
	n.key = key
	n.next = d.head
	if d.head != nil {
		d.head.prev = n
	}
	d.head = n
	if d.tail == nil {
		d.tail = n
	}
	d.seen[key] = n
	d.size.Add(1)
	return false
}

// unlink removes n from the list and map. Must be called with d.mu held.
func (d *inMemoryDeduper) unlink(n *node) {
	if n == nil {
		return
	}
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		d.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		d.tail = n.prev
	}
	delete(d.seen, n.key)
	n.reset()
	d.nodePool.Put(n)
	d.size.Add(-1)
}

func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
