package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// GetCache retrieves unexpired cached data for a symbol and data type
func (r *Repository) GetCache(ctx context.Context, symbol, dataType string) (data []byte, expiresAt time.Time, err error) {
	done := r.observe("select")
	defer func() { done(err) }()

	// Let the database handle expiry check to avoid timezone issues
	err = r.db.QueryRow(ctx, `
		SELECT data, expires_at FROM market_data_cache
		WHERE symbol = $1 AND data_type = $2 AND expires_at > NOW()
	`, symbol, dataType).Scan(&data, &expiresAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to query cache: %w", err)
	}

	return data, expiresAt, nil
}

// SetCache stores JSON data in the cache with a TTL
func (r *Repository) SetCache(ctx context.Context, symbol, dataType string, data []byte, ttl time.Duration) (err error) {
	done := r.observe("upsert")
	defer func() { done(err) }()

	_, err = r.db.Exec(ctx, `
		INSERT INTO market_data_cache (symbol, data_type, data, expires_at)
		VALUES ($1, $2, $3, NOW() + $4::interval)
		ON CONFLICT (symbol, data_type)
		DO UPDATE SET data = EXCLUDED.data, expires_at = NOW() + $4::interval, created_at = NOW()
	`, symbol, dataType, data, ttl.String())

	if err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}

	return nil
}

// InvalidateCache removes cached data for a symbol and data type
func (r *Repository) InvalidateCache(ctx context.Context, symbol, dataType string) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM market_data_cache WHERE symbol = $1 AND data_type = $2
	`, symbol, dataType)

	if err != nil {
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}

	return nil
}

// InvalidateAllCacheForSymbol removes all cached data for a symbol
func (r *Repository) InvalidateAllCacheForSymbol(ctx context.Context, symbol string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM market_data_cache WHERE symbol = $1`, symbol)
	if err != nil {
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}
	return nil
}

// ClearCache removes every cache entry
func (r *Repository) ClearCache(ctx context.Context) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM market_data_cache`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cache: %w", err)
	}
	return result.RowsAffected(), nil
}

// CleanExpiredCache removes all expired cache entries
func (r *Repository) CleanExpiredCache(ctx context.Context) (n int64, err error) {
	done := r.observe("delete")
	defer func() { done(err) }()

	result, err := r.db.Exec(ctx, `DELETE FROM market_data_cache WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to clean expired cache: %w", err)
	}
	return result.RowsAffected(), nil
}
