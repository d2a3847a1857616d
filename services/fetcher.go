package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"technical-analyst/config"
	"technical-analyst/internal/cache"
	"technical-analyst/models"
	"technical-analyst/observability"
)

// DefaultSearchLimit caps suggestion lists
const DefaultSearchLimit = 10

// quotePeriod is the window a quote is derived from
var quotePeriod = models.Period{Key: "5d", Label: "5 Days", Interval: "1d", Days: 5}

// FetcherConfig holds fetch policy
type FetcherConfig struct {
	Timeout    time.Duration
	MaxErrors  int
	HistoryTTL time.Duration
	InfoTTL    time.Duration
	// RateLimits maps source name to requests per minute; absent means unlimited
	RateLimits map[string]int
}

// DefaultFetcherConfig mirrors config defaults
var DefaultFetcherConfig = FetcherConfig{
	Timeout:    10 * time.Second,
	MaxErrors:  5,
	HistoryTTL: 6 * time.Hour,
	InfoTTL:    24 * time.Hour,
}

// FetcherConfigFrom builds the fetch policy from application config
func FetcherConfigFrom(cfg *config.Config) FetcherConfig {
	return FetcherConfig{
		Timeout:    cfg.SourceTimeout(),
		MaxErrors:  cfg.Sources.MaxErrors,
		HistoryTTL: cfg.Cache.HistoryTTL,
		InfoTTL:    cfg.Cache.InfoTTL,
		RateLimits: map[string]int{
			BreakerYahoo:  cfg.Yahoo.RateLimit,
			BreakerAlpaca: cfg.Alpaca.RateLimit,
		},
	}
}

// sourceState tracks the health of one source
type sourceState struct {
	source  DataSource
	limiter *RateLimiter

	mu        sync.Mutex
	errors    int
	successes int64
	enabled   bool
}

func (s *sourceState) available(maxErrors int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled && s.errors < maxErrors
}

func (s *sourceState) markError(maxErrors int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors++
	if s.errors >= maxErrors && s.enabled {
		s.enabled = false
		observability.WithSource(s.source.Name()).Warn("source disabled after repeated errors", "errors", s.errors)
	}
}

func (s *sourceState) markSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errors > 0 {
		s.errors--
	}
	s.successes++
}

func (s *sourceState) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = 0
	s.enabled = true
}

// Fetcher reads market data from prioritized sources through the tiered cache
type Fetcher struct {
	cfg        FetcherConfig
	sources    []*sourceState
	cache      *cache.Tiered
	portfolios *config.Portfolios
	metrics    *observability.Metrics
}

// NewFetcher creates a fetcher over sources, tried by descending priority.
// A nil cache gets a memory-only one; nil portfolios use the embedded catalogue.
func NewFetcher(cfg FetcherConfig, tiered *cache.Tiered, portfolios *config.Portfolios, metrics *observability.Metrics, sources ...DataSource) *Fetcher {
	if cfg.MaxErrors <= 0 {
		cfg.MaxErrors = DefaultFetcherConfig.MaxErrors
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultFetcherConfig.Timeout
	}
	if tiered == nil {
		tiered = cache.NewTiered(nil, nil, metrics)
	}
	if portfolios == nil {
		portfolios, _ = config.LoadPortfolios("")
	}
	if metrics == nil {
		metrics = observability.GetMetrics()
	}

	states := make([]*sourceState, 0, len(sources))
	for _, src := range sources {
		states = append(states, &sourceState{
			source:  src,
			limiter: NewRateLimiter(cfg.RateLimits[src.Name()]),
			enabled: true,
		})
	}
	sort.SliceStable(states, func(i, j int) bool {
		return states[i].source.Priority() > states[j].source.Priority()
	})

	names := make([]string, len(states))
	for i, s := range states {
		names[i] = s.source.Name()
	}
	observability.Info("fetcher initialized", "sources", names)

	return &Fetcher{
		cfg:        cfg,
		sources:    states,
		cache:      tiered,
		portfolios: portfolios,
		metrics:    metrics,
	}
}

// NormalizeTicker trims and upper-cases a ticker
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// History returns cleaned bars for ticker over the named period
func (f *Fetcher) History(ctx context.Context, ticker, period string) (models.Series, error) {
	ticker = NormalizeTicker(ticker)
	if ticker == "" {
		return nil, fmt.Errorf("empty ticker: %w", ErrTickerNotFound)
	}
	return f.history(ctx, ticker, models.ParsePeriod(period))
}

func (f *Fetcher) history(ctx context.Context, ticker string, period models.Period) (models.Series, error) {
	dataType := "history:" + period.Key + ":" + period.Interval
	if cached, ok := cache.GetJSON[models.Series](ctx, f.cache, ticker, dataType); ok && len(cached) > 0 {
		return cached, nil
	}

	var lastErr error
	for _, st := range f.sources {
		if !st.available(f.cfg.MaxErrors) {
			continue
		}

		var series models.Series
		err := f.call(ctx, st, "history", func(ctx context.Context) error {
			var err error
			series, err = st.source.History(ctx, ticker, period)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		series = CleanSeries(series)
		if len(series) == 0 {
			continue
		}

		if err := cache.SetJSON(ctx, f.cache, ticker, dataType, series, f.cfg.HistoryTTL); err != nil {
			observability.WithTicker(ticker).Warn("failed to cache history", "error", err)
		}
		observability.WithTicker(ticker).Info("history fetched",
			"source", st.source.Name(), "period", period.Key, "bars", len(series))
		return series, nil
	}

	observability.WithTicker(ticker).Warn("all sources failed", "period", period.Key, "last_error", lastErr)
	if lastErr != nil {
		return nil, fmt.Errorf("%s: %w (last error: %v)", ticker, ErrNoData, lastErr)
	}
	return nil, fmt.Errorf("%s: %w", ticker, ErrNoData)
}

// Info returns instrument info from the first source that has it
func (f *Fetcher) Info(ctx context.Context, ticker string) (*models.StockInfo, error) {
	ticker = NormalizeTicker(ticker)
	if ticker == "" {
		return nil, fmt.Errorf("empty ticker: %w", ErrTickerNotFound)
	}

	if cached, ok := cache.GetJSON[models.StockInfo](ctx, f.cache, ticker, "info"); ok && cached.Symbol != "" {
		return &cached, nil
	}

	for _, st := range f.sources {
		if !st.available(f.cfg.MaxErrors) {
			continue
		}

		var info *models.StockInfo
		err := f.call(ctx, st, "info", func(ctx context.Context) error {
			var err error
			info, err = st.source.Info(ctx, ticker)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if info == nil || info.Symbol == "" {
			continue
		}

		if err := cache.SetJSON(ctx, f.cache, ticker, "info", *info, f.cfg.InfoTTL); err != nil {
			observability.WithTicker(ticker).Warn("failed to cache info", "error", err)
		}
		return info, nil
	}

	return nil, fmt.Errorf("info for %s: %w", ticker, ErrNoData)
}

// Quote derives a live quote from the last two daily bars. When no source has
// data it returns a deterministic placeholder flagged with Source "fallback".
func (f *Fetcher) Quote(ctx context.Context, ticker string) (*models.Quote, error) {
	ticker = NormalizeTicker(ticker)
	if ticker == "" {
		return nil, fmt.Errorf("empty ticker: %w", ErrTickerNotFound)
	}

	series, err := f.history(ctx, ticker, quotePeriod)
	if err == nil {
		if q, ok := QuoteFromSeries(ticker, series); ok {
			return q, nil
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	return &models.Quote{
		Symbol:    ticker,
		Price:     MockBasePrice(ticker),
		Volume:    1_000_000,
		Timestamp: time.Now().UTC(),
		Source:    "fallback",
	}, nil
}

// QuoteFromSeries computes price and change from the last two bars
func QuoteFromSeries(ticker string, series models.Series) (*models.Quote, bool) {
	latest, ok := series.Last()
	if !ok {
		return nil, false
	}
	prev := latest
	if len(series) > 1 {
		prev = series[len(series)-2]
	}

	last := decimal.NewFromFloat(latest.Close)
	change := last.Sub(decimal.NewFromFloat(prev.Close))
	pct := decimal.Zero
	if prev.Close != 0 {
		pct = change.Div(decimal.NewFromFloat(prev.Close)).Mul(decimal.NewFromInt(100))
	}

	price, _ := last.Round(4).Float64()
	chg, _ := change.Round(4).Float64()
	pctF, _ := pct.Round(2).Float64()

	return &models.Quote{
		Symbol:        ticker,
		Price:         price,
		Change:        chg,
		ChangePercent: pctF,
		Volume:        latest.Volume,
		Timestamp:     time.Now().UTC(),
	}, true
}

// Search matches query against portfolio tickers and names. Queries shorter
// than two characters return nothing.
func (f *Fetcher) Search(query string, limit int) []models.SuggestionItem {
	q := strings.ToLower(strings.TrimSpace(query))
	if len([]rune(q)) < 2 {
		return []models.SuggestionItem{}
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	var prefix, contains []models.SuggestionItem
	seen := make(map[string]bool)
	for _, market := range f.portfolios.Markets {
		for _, h := range market.Tickers {
			if seen[h.Ticker] {
				continue
			}
			t := strings.ToLower(h.Ticker)
			item := models.SuggestionItem{Ticker: h.Ticker, Name: h.Name, Market: market.Key}
			switch {
			case strings.HasPrefix(t, q):
				prefix = append(prefix, item)
			case strings.Contains(t, q) || strings.Contains(strings.ToLower(h.Name), q):
				contains = append(contains, item)
			default:
				continue
			}
			seen[h.Ticker] = true
		}
	}

	out := append(prefix, contains...)
	if len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []models.SuggestionItem{}
	}
	return out
}

// SourceStats reports per-source health in priority order
func (f *Fetcher) SourceStats() []models.SourceStatus {
	out := make([]models.SourceStatus, 0, len(f.sources))
	for _, st := range f.sources {
		st.mu.Lock()
		out = append(out, models.SourceStatus{
			Name:      st.source.Name(),
			Priority:  st.source.Priority(),
			Enabled:   st.enabled,
			Available: st.enabled && st.errors < f.cfg.MaxErrors,
			Errors:    st.errors,
			Successes: st.successes,
		})
		st.mu.Unlock()
	}
	return out
}

// ClearCache empties both cache tiers and re-enables disabled sources
func (f *Fetcher) ClearCache(ctx context.Context) (int64, error) {
	for _, st := range f.sources {
		st.reset()
	}
	return f.cache.Clear(ctx)
}

// PurgeExpired drops expired cache entries
func (f *Fetcher) PurgeExpired(ctx context.Context) (int64, error) {
	return f.cache.PurgeExpired(ctx)
}

// CacheStats exposes tiered cache counters
func (f *Fetcher) CacheStats() cache.Stats {
	return f.cache.Stats()
}

// CacheHealth reports persistent cache health
func (f *Fetcher) CacheHealth(ctx context.Context) error {
	return f.cache.Health(ctx)
}

// call applies rate limiting, the per-source timeout, metrics and health accounting
func (f *Fetcher) call(ctx context.Context, st *sourceState, operation string, fn func(ctx context.Context) error) error {
	name := st.source.Name()
	if err := st.limiter.Wait(ctx); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	f.metrics.RecordExternalAPIRequest(name, operation)
	timer := f.metrics.NewTimer()
	err := fn(callCtx)
	timer.ObserveExternalAPI(name, operation)

	if err == nil {
		st.markSuccess()
		return nil
	}

	errorType := "error"
	switch {
	case errors.Is(err, ErrNotSupported):
		errorType = "not_supported"
	case errors.Is(err, ErrTickerNotFound):
		errorType = "not_found"
	case errors.Is(err, ErrSourceUnavailable):
		errorType = "unavailable"
	case ctx.Err() != nil:
		errorType = "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		errorType = "timeout"
	}
	f.metrics.RecordExternalAPIError(name, operation, errorType)

	switch errorType {
	case "error", "timeout":
		st.markError(f.cfg.MaxErrors)
		observability.WithSource(name).Debug("source call failed", "operation", operation, "error", err)
	}
	return err
}
