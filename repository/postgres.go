package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"technical-analyst/observability"
)

// DBTX is an interface that both pgxpool.Pool and pgx.Tx satisfy
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides PostgreSQL access for the market data cache
type Repository struct {
	pool    *pgxpool.Pool
	db      DBTX
	metrics *observability.Metrics
}

const schema = `
CREATE TABLE IF NOT EXISTS market_data_cache (
	symbol     TEXT        NOT NULL,
	data_type  TEXT        NOT NULL,
	data       JSONB       NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (symbol, data_type)
);
CREATE INDEX IF NOT EXISTS idx_market_data_cache_expires ON market_data_cache (expires_at);
`

// NewRepository creates a new Repository with a PostgreSQL connection pool
func NewRepository(ctx context.Context, connString string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	repo := &Repository{pool: pool, db: pool}
	if err := repo.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return repo, nil
}

// WithMetrics records query counts and durations on m
func (r *Repository) WithMetrics(m *observability.Metrics) *Repository {
	r.metrics = m
	return r
}

// EnsureSchema creates the cache table when it does not exist
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create cache schema: %w", err)
	}
	return nil
}

// Name identifies the backend in health output
func (r *Repository) Name() string {
	return "postgres"
}

// Close closes the database connection pool
func (r *Repository) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

// Health checks if the database connection is healthy
func (r *Repository) Health(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Pool returns the underlying connection pool for advanced operations.
// This is primarily intended for testing and cleanup operations.
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

func (r *Repository) observe(operation string) func(err error) {
	if r.metrics == nil {
		return func(error) {}
	}
	timer := r.metrics.NewTimer()
	return func(err error) {
		timer.ObserveDB(operation, "market_data_cache")
		if err != nil {
			r.metrics.RecordDBError(operation, "market_data_cache")
		}
	}
}
