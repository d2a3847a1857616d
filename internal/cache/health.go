package cache

import (
	"context"
	"sync"
	"time"
)

// DefaultHealthTTL is how long a store probe result is reused
const DefaultHealthTTL = 30 * time.Second

// HealthCache remembers the outcome of a persistent-store probe so frequent
// health requests do not ping Redis or Postgres every time.
// A TTL of 0 disables caching.
type HealthCache struct {
	mu        sync.Mutex
	err       error
	checkedAt time.Time
	ttl       time.Duration
	now       func() time.Time
}

// NewHealthCache creates a HealthCache with the given TTL
func NewHealthCache(ttl time.Duration) *HealthCache {
	return &HealthCache{ttl: ttl, now: time.Now}
}

// Check returns the cached probe result, running probe when the last one has
// expired. Concurrent callers share one probe.
func (c *HealthCache) Check(ctx context.Context, probe func(context.Context) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.checkedAt.IsZero() && c.now().Sub(c.checkedAt) < c.ttl {
		return c.err
	}

	err := probe(ctx)
	if ctx.Err() != nil {
		// a cancelled caller says nothing about the store
		return err
	}
	c.err = err
	c.checkedAt = c.now()
	return err
}

// Invalidate forces the next Check to probe
func (c *HealthCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkedAt = time.Time{}
}

// TTL returns the cache's time-to-live
func (c *HealthCache) TTL() time.Duration {
	return c.ttl
}
