package services

import (
	"context"
	"errors"

	"technical-analyst/models"
)

var (
	// ErrNoData is returned when no source produced usable data
	ErrNoData = errors.New("no data available")
	// ErrTickerNotFound is returned when a source does not know the ticker
	ErrTickerNotFound = errors.New("ticker not found")
	// ErrNotSupported is returned when a source cannot serve a request kind
	ErrNotSupported = errors.New("not supported by source")
	// ErrSourceUnavailable is returned when a source has been disabled after repeated errors
	ErrSourceUnavailable = errors.New("source unavailable")
)

// Source priorities; higher is tried first
const (
	PriorityYahoo  = 4
	PriorityAlpaca = 3
	PriorityMock   = 0
)

// DataSource is one provider of OHLCV history and instrument info
type DataSource interface {
	Name() string
	Priority() int
	History(ctx context.Context, ticker string, period models.Period) (models.Series, error)
	Info(ctx context.Context, ticker string) (*models.StockInfo, error)
}

// MarketData is the read surface the HTTP layer and analyzer depend on
type MarketData interface {
	History(ctx context.Context, ticker, period string) (models.Series, error)
	Info(ctx context.Context, ticker string) (*models.StockInfo, error)
	Quote(ctx context.Context, ticker string) (*models.Quote, error)
	Search(query string, limit int) []models.SuggestionItem
	SourceStats() []models.SourceStatus
	ClearCache(ctx context.Context) (int64, error)
}

// Compile-time interface verification
var (
	_ DataSource = (*YahooSource)(nil)
	_ DataSource = (*AlpacaSource)(nil)
	_ DataSource = (*MockSource)(nil)
	_ MarketData = (*Fetcher)(nil)
)
