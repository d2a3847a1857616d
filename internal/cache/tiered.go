package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"technical-analyst/observability"
	"technical-analyst/repository"
)

const (
	tierMemory = "memory"
	tierStore  = "store"
)

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Backend        string `json:"backend"`
	MemoryEntries  int    `json:"memoryEntries"`
	MemoryCapacity int    `json:"memoryCapacity"`
	MemoryHits     int64  `json:"memoryHits"`
	StoreHits      int64  `json:"storeHits"`
	Misses         int64  `json:"misses"`
	StoreErrors    int64  `json:"storeErrors"`
}

// Tiered checks the memory tier first and falls back to a persistent store.
// Store failures are logged and treated as misses so a broken backend never
// blocks a page.
type Tiered struct {
	memory  *Memory[[]byte]
	store   repository.CacheStore
	metrics *observability.Metrics

	memoryHits  atomic.Int64
	storeHits   atomic.Int64
	misses      atomic.Int64
	storeErrors atomic.Int64
}

// NewTiered builds a tiered cache. store and metrics may be nil.
func NewTiered(memory *Memory[[]byte], store repository.CacheStore, metrics *observability.Metrics) *Tiered {
	if memory == nil {
		memory = NewMemory[[]byte](DefaultCapacity)
	}
	return &Tiered{memory: memory, store: store, metrics: metrics}
}

func memoryKey(symbol, dataType string) string {
	return symbol + "|" + dataType
}

// Get returns raw cached bytes for symbol and dataType.
func (t *Tiered) Get(ctx context.Context, symbol, dataType string) ([]byte, bool) {
	key := memoryKey(symbol, dataType)
	if data, ok := t.memory.Get(key); ok {
		t.memoryHits.Add(1)
		t.hit(tierMemory)
		return data, true
	}
	t.miss(tierMemory)

	if t.store == nil {
		t.misses.Add(1)
		return nil, false
	}

	data, expires, err := t.store.GetCache(ctx, symbol, dataType)
	if err != nil {
		t.storeErrors.Add(1)
		observability.WithContext(ctx).Warn("cache store read failed",
			"backend", t.store.Name(), "symbol", symbol, "data_type", dataType, "error", err)
	}
	if err != nil || data == nil {
		t.misses.Add(1)
		t.miss(tierStore)
		return nil, false
	}

	t.storeHits.Add(1)
	t.hit(tierStore)
	t.memory.Set(key, data, time.Until(expires))
	return data, true
}

// Set writes data to both tiers.
func (t *Tiered) Set(ctx context.Context, symbol, dataType string, data []byte, ttl time.Duration) {
	t.memory.Set(memoryKey(symbol, dataType), data, ttl)
	if t.store == nil {
		return
	}
	if err := t.store.SetCache(ctx, symbol, dataType, data, ttl); err != nil {
		t.storeErrors.Add(1)
		observability.WithContext(ctx).Warn("cache store write failed",
			"backend", t.store.Name(), "symbol", symbol, "data_type", dataType, "error", err)
	}
}

// InvalidateSymbol drops every entry for symbol from both tiers.
func (t *Tiered) InvalidateSymbol(ctx context.Context, symbol string) error {
	t.memory.DeletePrefix(symbol + "|")
	if t.store == nil {
		return nil
	}
	return t.store.InvalidateAllCacheForSymbol(ctx, symbol)
}

// Clear empties both tiers and returns how many entries were removed.
func (t *Tiered) Clear(ctx context.Context) (int64, error) {
	n := int64(t.memory.Clear())
	if t.store == nil {
		return n, nil
	}
	removed, err := t.store.ClearCache(ctx)
	if err != nil {
		return n, fmt.Errorf("clear %s cache: %w", t.store.Name(), err)
	}
	return n + removed, nil
}

// PurgeExpired drops expired entries from both tiers.
func (t *Tiered) PurgeExpired(ctx context.Context) (int64, error) {
	n := int64(t.memory.PurgeExpired())
	if t.store == nil {
		return n, nil
	}
	removed, err := t.store.CleanExpiredCache(ctx)
	if err != nil {
		return n, fmt.Errorf("purge %s cache: %w", t.store.Name(), err)
	}
	return n + removed, nil
}

// Health reports the persistent store health; a memory-only cache is always healthy.
func (t *Tiered) Health(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	return t.store.Health(ctx)
}

// Backend names the persistent tier, or "memory" when there is none.
func (t *Tiered) Backend() string {
	if t.store == nil {
		return tierMemory
	}
	return t.store.Name()
}

// Stats returns hit and miss counters.
func (t *Tiered) Stats() Stats {
	return Stats{
		Backend:        t.Backend(),
		MemoryEntries:  t.memory.Len(),
		MemoryCapacity: t.memory.Capacity(),
		MemoryHits:     t.memoryHits.Load(),
		StoreHits:      t.storeHits.Load(),
		Misses:         t.misses.Load(),
		StoreErrors:    t.storeErrors.Load(),
	}
}

func (t *Tiered) hit(tier string) {
	if t.metrics != nil {
		t.metrics.RecordCacheHit(tier)
	}
}

func (t *Tiered) miss(tier string) {
	if t.metrics != nil {
		t.metrics.RecordCacheMiss(tier)
	}
}

// GetJSON decodes a cached entry into T. Undecodable entries are treated as misses.
func GetJSON[T any](ctx context.Context, t *Tiered, symbol, dataType string) (T, bool) {
	var v T
	data, ok := t.Get(ctx, symbol, dataType)
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(data, &v); err != nil {
		observability.WithContext(ctx).Warn("discarding undecodable cache entry",
			"symbol", symbol, "data_type", dataType, "error", err)
		return v, false
	}
	return v, true
}

// SetJSON encodes v and stores it in both tiers.
func SetJSON[T any](ctx context.Context, t *Tiered, symbol, dataType string, v T, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}
	t.Set(ctx, symbol, dataType, data, ttl)
	return nil
}
