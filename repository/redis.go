package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"technical-analyst/observability"
)

const redisKeyPrefix = "ta:cache:"

// RedisStore keeps the market data cache in Redis, relying on key expiry for TTLs.
type RedisStore struct {
	client *goredis.Client
}

// NewRedisStore parses a redis:// URL, connects and pings the server.
func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	observability.Info("redis cache connected", "addr", opts.Addr, "db", opts.DB)
	return &RedisStore{client: client}, nil
}

func redisKey(symbol, dataType string) string {
	return redisKeyPrefix + symbol + ":" + dataType
}

// Name identifies the backend in health output
func (s *RedisStore) Name() string { return "redis" }

// Health pings the server
func (s *RedisStore) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client
func (s *RedisStore) Close() {
	if err := s.client.Close(); err != nil {
		observability.Warn("redis close failed", "error", err)
	}
}

// GetCache reads an entry and its remaining TTL in one round trip
func (s *RedisStore) GetCache(ctx context.Context, symbol, dataType string) ([]byte, time.Time, error) {
	key := redisKey(symbol, dataType)
	pipe := s.client.Pipeline()
	get := pipe.Get(ctx, key)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return nil, time.Time{}, fmt.Errorf("redis get %s: %w", key, err)
	}

	data, err := get.Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis get %s: %w", key, err)
	}

	remaining := ttl.Val()
	if remaining <= 0 {
		// Persistent keys are not written by SetCache; treat them as short lived.
		remaining = time.Minute
	}
	return data, time.Now().Add(remaining), nil
}

// SetCache writes an entry with a TTL
func (s *RedisStore) SetCache(ctx context.Context, symbol, dataType string, data []byte, ttl time.Duration) error {
	key := redisKey(symbol, dataType)
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// InvalidateCache deletes one entry
func (s *RedisStore) InvalidateCache(ctx context.Context, symbol, dataType string) error {
	if err := s.client.Del(ctx, redisKey(symbol, dataType)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// InvalidateAllCacheForSymbol deletes every entry for symbol
func (s *RedisStore) InvalidateAllCacheForSymbol(ctx context.Context, symbol string) error {
	_, err := s.deleteMatching(ctx, redisKeyPrefix+symbol+":*")
	return err
}

// ClearCache deletes every cache key
func (s *RedisStore) ClearCache(ctx context.Context) (int64, error) {
	return s.deleteMatching(ctx, redisKeyPrefix+"*")
}

// CleanExpiredCache is a no-op: Redis expires keys itself.
func (s *RedisStore) CleanExpiredCache(ctx context.Context) (int64, error) {
	return 0, nil
}

func (s *RedisStore) deleteMatching(ctx context.Context, pattern string) (int64, error) {
	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("redis scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			n, err := s.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("redis del: %w", err)
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}
