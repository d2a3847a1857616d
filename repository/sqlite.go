package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"technical-analyst/observability"
)

// SQLiteStore persists the market data cache to a local SQLite file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) the SQLite database and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Single writer; WAL keeps readers unblocked.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	observability.Info("sqlite cache opened", "path", dbPath)
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS market_data_cache (
			symbol     TEXT    NOT NULL,
			data_type  TEXT    NOT NULL,
			data       BLOB    NOT NULL,
			expires_at INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (symbol, data_type)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cache_expires ON market_data_cache(expires_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Name identifies the backend in health output
func (s *SQLiteStore) Name() string { return "sqlite" }

// Health pings the database
func (s *SQLiteStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *SQLiteStore) Close() {
	if err := s.db.Close(); err != nil {
		observability.Warn("sqlite close failed", "error", err)
	}
}

// GetCache returns unexpired data for a symbol and data type
func (s *SQLiteStore) GetCache(ctx context.Context, symbol, dataType string) ([]byte, time.Time, error) {
	var (
		data    []byte
		expires int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT data, expires_at FROM market_data_cache
		WHERE symbol = ? AND data_type = ? AND expires_at > ?`,
		symbol, dataType, s.now().UnixNano()).Scan(&data, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("query cache: %w", err)
	}
	return data, time.Unix(0, expires), nil
}

// SetCache upserts data with a TTL
func (s *SQLiteStore) SetCache(ctx context.Context, symbol, dataType string, data []byte, ttl time.Duration) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO market_data_cache (symbol, data_type, data, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (symbol, data_type)
		DO UPDATE SET data = excluded.data, expires_at = excluded.expires_at, created_at = excluded.created_at`,
		symbol, dataType, data, now.Add(ttl).UnixNano(), now.UnixNano())
	if err != nil {
		return fmt.Errorf("set cache: %w", err)
	}
	return nil
}

// InvalidateCache removes one entry
func (s *SQLiteStore) InvalidateCache(ctx context.Context, symbol, dataType string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM market_data_cache WHERE symbol = ? AND data_type = ?`, symbol, dataType); err != nil {
		return fmt.Errorf("invalidate cache: %w", err)
	}
	return nil
}

// InvalidateAllCacheForSymbol removes every entry for symbol
func (s *SQLiteStore) InvalidateAllCacheForSymbol(ctx context.Context, symbol string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM market_data_cache WHERE symbol = ?`, symbol); err != nil {
		return fmt.Errorf("invalidate cache: %w", err)
	}
	return nil
}

// ClearCache removes every entry
func (s *SQLiteStore) ClearCache(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM market_data_cache`)
	if err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}
	return res.RowsAffected()
}

// CleanExpiredCache removes expired entries
func (s *SQLiteStore) CleanExpiredCache(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM market_data_cache WHERE expires_at <= ?`, s.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("clean expired cache: %w", err)
	}
	return res.RowsAffected()
}
