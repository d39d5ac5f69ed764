package dedupe

import (
	"context"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/okian/podium/pkg/logger"
)

// KeyStore answers whether a delivery key was already logged durably.
type KeyStore interface {
	HasKey(ctx context.Context, key string) (bool, error)
}

// DurableDeduper layers a bloom filter and a durable key lookup under the
// in-memory deduper. The filter only skips lookups for keys that were
// certainly never recorded; a positive answer is confirmed against the store.
type DurableDeduper struct {
	local *inMemoryDeduper
	store KeyStore
	log   logger.Logger

	mu     sync.Mutex
	filter *bloom.BloomFilter
}

// NewDurableDeduper creates a deduper backed by store.
func NewDurableDeduper(store KeyStore, opts ...Option) *DurableDeduper {
	cfg := defaultSettings()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &DurableDeduper{
		local:  newInMemory(opts...),
		store:  store,
		log:    cfg.log,
		filter: bloom.NewWithEstimates(cfg.bloomCapacity, cfg.bloomFalsePositive),
	}
}

// Warm adds keys already present in the store, e.g. loaded at startup.
func (d *DurableDeduper) Warm(keys ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, k := range keys {
		d.filter.AddString(k)
	}
}

// SeenAndRecord reports true when key was recorded in this process or is
// already in the store. A store error is logged and treated as unseen.
func (d *DurableDeduper) SeenAndRecord(ctx context.Context, key string) bool {
	if d.local.SeenAndRecord(ctx, key) {
		return true
	}

	d.mu.Lock()
	maybe := d.filter.TestString(key)
	d.filter.AddString(key)
	d.mu.Unlock()

	if !maybe || d.store == nil {
		return false
	}
	found, err := d.store.HasKey(ctx, key)
	if err != nil {
		if d.log != nil {
			d.log.Warn(ctx, "durable dedupe lookup failed, treating key as new",
				logger.String("key", key), logger.Error(err))
		}
		return false
	}
	return found
}

// Size returns the number of keys held in memory.
func (d *DurableDeduper) Size() int64 {
	return d.local.Size()
}
