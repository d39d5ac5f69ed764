package deliverylog

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemorySink keeps records in process memory.
type MemorySink struct {
	mu       sync.RWMutex
	records  []Record
	byID     map[string]int
	keys     map[string]int
	activity []Activity
	now      func() time.Time
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{
		byID: make(map[string]int),
		keys: make(map[string]int),
		now:  time.Now,
	}
}

func (m *MemorySink) Append(_ context.Context, r Record) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if _, dup := m.byID[r.ID]; dup {
		return "", fmt.Errorf("delivery record %s already exists", r.ID)
	}
	now := m.now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = r.CreatedAt
	r.Payload = maps.Clone(r.Payload)

	m.byID[r.ID] = len(m.records)
	m.keys[r.DedupeKey]++
	m.records = append(m.records, r)
	return r.ID, nil
}

func (m *MemorySink) Update(_ context.Context, id string, u Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	u.Apply(&m.records[i], m.now().UTC())
	return nil
}

func (m *MemorySink) AppendActivity(_ context.Context, a Activity) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = m.now().UTC()
	}
	m.activity = append(m.activity, a)
	return a.ID, nil
}

func (m *MemorySink) List(_ context.Context, limit int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := newestFirst(m.records, limit)
	for i := range out {
		out[i].Payload = maps.Clone(out[i].Payload)
	}
	return out, nil
}

func (m *MemorySink) ListActivity(_ context.Context, limit int) ([]Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return newestFirst(m.activity, limit), nil
}

func (m *MemorySink) HasKey(_ context.Context, dedupeKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.keys[dedupeKey] > 0, nil
}

func (m *MemorySink) Purge(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := int64(len(m.records))
	m.records = nil
	m.byID = make(map[string]int)
	m.keys = make(map[string]int)
	return n, nil
}

func (m *MemorySink) Close(context.Context) error { return nil }

func newestFirst[T any](items []T, limit int) []T {
	n := len(items)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]T, 0, n)
	for i := len(items) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, items[i])
	}
	return out
}

var _ Sink = (*MemorySink)(nil)
