package repository

import (
	"context"
	"time"
)

// CacheStore is a persistent market data cache keyed by symbol and data type.
// GetCache returns a nil slice, without error, when the entry is absent or expired.
type CacheStore interface {
	Name() string
	Health(ctx context.Context) error
	Close()

	GetCache(ctx context.Context, symbol, dataType string) ([]byte, time.Time, error)
	SetCache(ctx context.Context, symbol, dataType string, data []byte, ttl time.Duration) error
	InvalidateCache(ctx context.Context, symbol, dataType string) error
	InvalidateAllCacheForSymbol(ctx context.Context, symbol string) error
	ClearCache(ctx context.Context) (int64, error)
	CleanExpiredCache(ctx context.Context) (int64, error)
}

// Compile-time interface verification
var (
	_ CacheStore = (*Repository)(nil)
	_ CacheStore = (*SQLiteStore)(nil)
	_ CacheStore = (*RedisStore)(nil)
)
