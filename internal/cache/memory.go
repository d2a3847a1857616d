// Package cache provides the in-process LRU cache and the tiered cache that
// fronts a persistent repository.CacheStore.
package cache

import (
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity bounds the memory tier.
const DefaultCapacity = 100

type entry[V any] struct {
	value   V
	expires time.Time
}

// Memory is a size-bounded LRU cache with per-entry expiry. It is safe for
// concurrent use.
type Memory[V any] struct {
	lru      *lru.Cache[string, entry[V]]
	capacity int
	now      func() time.Time
}

// NewMemory creates a cache holding at most capacity entries.
func NewMemory[V any](capacity int) *Memory[V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	// only fails for a non-positive size
	c, _ := lru.New[string, entry[V]](capacity)
	return &Memory[V]{
		lru:      c,
		capacity: capacity,
		now:      time.Now,
	}
}

// Get returns the value for key. Expired entries are dropped and reported as misses.
func (m *Memory[V]) Get(key string) (V, bool) {
	var zero V
	e, ok := m.lru.Get(key)
	if !ok {
		return zero, false
	}
	if !m.now().Before(e.expires) {
		m.lru.Remove(key)
		return zero, false
	}
	return e.value, true
}

// Set stores value under key for ttl, evicting the least recently used entry when full.
func (m *Memory[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	m.lru.Add(key, entry[V]{value: value, expires: m.now().Add(ttl)})
}

// Delete removes key.
func (m *Memory[V]) Delete(key string) {
	m.lru.Remove(key)
}

// DeletePrefix removes every key starting with prefix and returns how many were removed.
func (m *Memory[V]) DeletePrefix(prefix string) int {
	n := 0
	for _, key := range m.lru.Keys() {
		if strings.HasPrefix(key, prefix) && m.lru.Remove(key) {
			n++
		}
	}
	return n
}

// Clear empties the cache and returns the number of entries dropped.
func (m *Memory[V]) Clear() int {
	n := m.lru.Len()
	m.lru.Purge()
	return n
}

// PurgeExpired drops expired entries.
func (m *Memory[V]) PurgeExpired() int {
	now := m.now()
	n := 0
	for _, key := range m.lru.Keys() {
		// Peek keeps the recency order of live entries
		if e, ok := m.lru.Peek(key); ok && !now.Before(e.expires) && m.lru.Remove(key) {
			n++
		}
	}
	return n
}

// Len returns the number of entries, including ones not yet purged.
func (m *Memory[V]) Len() int {
	return m.lru.Len()
}

// Capacity returns the configured bound.
func (m *Memory[V]) Capacity() int {
	return m.capacity
}
