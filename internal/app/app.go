// Package app wires market data, analysis, page sessions and preferences
// behind the operations the HTTP layer and the CLI call.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"technical-analyst/chart"
	"technical-analyst/config"
	"technical-analyst/internal/analysis"
	"technical-analyst/internal/cache"
	"technical-analyst/internal/overlay"
	"technical-analyst/internal/render"
	"technical-analyst/internal/session"
	"technical-analyst/internal/settings"
	"technical-analyst/models"
	"technical-analyst/observability"
	"technical-analyst/services"
)

// quoteConcurrency bounds parallel quote fetches for portfolio pages
const quoteConcurrency = 8

// ErrUnknownMarket is returned for a portfolio market that is not in the catalogue
var ErrUnknownMarket = errors.New("unknown market")

// MarketData is what the app needs from the market data layer
type MarketData interface {
	History(ctx context.Context, ticker, period string) (models.Series, error)
	Info(ctx context.Context, ticker string) (*models.StockInfo, error)
	Quote(ctx context.Context, ticker string) (*models.Quote, error)
	Search(query string, limit int) []models.SuggestionItem
	SourceStats() []models.SourceStatus
	ClearCache(ctx context.Context) (int64, error)
	PurgeExpired(ctx context.Context) (int64, error)
	CacheStats() cache.Stats
	CacheHealth(ctx context.Context) error
}

// QuoteRow is one line of a portfolio or dashboard table
type QuoteRow struct {
	Ticker string        `json:"ticker"`
	Name   string        `json:"name"`
	Quote  *models.Quote `json:"quote,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// PortfolioView is a market with its quotes
type PortfolioView struct {
	Market  config.Market `json:"market"`
	Markets []string      `json:"markets"`
	Rows    []QuoteRow    `json:"rows"`
}

// DashboardView lists popular tickers and source health
type DashboardView struct {
	Popular  []QuoteRow                               `json:"popular"`
	Sources  []models.SourceStatus                    `json:"sources"`
	Cache    cache.Stats                              `json:"cache"`
	Breakers map[string]services.CircuitBreakerStatus `json:"circuit_breakers"`
	Sessions int                                      `json:"sessions"`
}

// Health is the /api/system/health document
type Health struct {
	Status    string                                   `json:"status"`
	Services  map[string]string                        `json:"services"`
	Sources   []models.SourceStatus                    `json:"sources"`
	Cache     cache.Stats                              `json:"cache"`
	Breakers  map[string]services.CircuitBreakerStatus `json:"circuit_breakers"`
	Sessions  int                                      `json:"sessions"`
	CheckedAt time.Time                                `json:"checked_at"`
}

// TickerCheck is the /api/test/{ticker} document
type TickerCheck struct {
	Ticker     string            `json:"ticker"`
	OK         bool              `json:"ok"`
	DataPoints int               `json:"data_points"`
	FirstDate  string            `json:"first_date,omitempty"`
	LastDate   string            `json:"last_date,omitempty"`
	Quote      *models.Quote     `json:"quote,omitempty"`
	Info       *models.StockInfo `json:"info,omitempty"`
	Error      string            `json:"error,omitempty"`
	Elapsed    string            `json:"elapsed"`
}

// Options tune an App
type Options struct {
	Breakers *services.CircuitBreakerRegistry
	Exporter render.Exporter
	Metrics  *observability.Metrics
}

// App holds application dependencies using interfaces for testability
type App struct {
	cfg        *config.Config
	market     MarketData
	portfolios *config.Portfolios
	analyzer   *analysis.Analyzer
	sessions   *session.Store
	settings   *settings.Store
	breakers   *services.CircuitBreakerRegistry
	metrics    *observability.Metrics
	health     *cache.HealthCache
	closers    []func()
}

// New creates an App. prefs may be nil for a memory-only preference store.
func New(cfg *config.Config, market MarketData, portfolios *config.Portfolios, prefs *settings.Store, opts Options) *App {
	if opts.Metrics == nil {
		opts.Metrics = observability.GetMetrics()
	}
	if opts.Breakers == nil {
		opts.Breakers = services.GetGlobalRegistry()
	}
	if opts.Exporter == nil {
		opts.Exporter = render.PNGExporter{}
	}
	if prefs == nil {
		prefs = settings.NewMemoryStore()
	}
	if portfolios == nil {
		portfolios, _ = config.LoadPortfolios("")
	}

	analyzer := analysis.NewAnalyzer(market, cfg.Cache.ReportTTL, opts.Metrics)
	a := &App{
		cfg:        cfg,
		market:     market,
		portfolios: portfolios,
		analyzer:   analyzer,
		settings:   prefs,
		breakers:   opts.Breakers,
		metrics:    opts.Metrics,
		health:     cache.NewHealthCache(cache.DefaultHealthTTL),
	}
	a.sessions = session.NewStore(session.Deps{
		Reports:      analyzer,
		Quotes:       market,
		Searcher:     searcher{a},
		Exporter:     opts.Exporter,
		OverlayMode:  overlay.ModeAppend,
		PollInterval: cfg.LivePoll.Interval,
		Debounce:     cfg.Search.Debounce,
		Metrics:      opts.Metrics,
	})
	return a
}

// searcher adapts App.Search to the session search controller
type searcher struct{ a *App }

func (s searcher) Search(ctx context.Context, query string) ([]models.SuggestionItem, error) {
	return s.a.Search(query), ctx.Err()
}

// onShutdown registers cleanup run by Shutdown in reverse order
func (a *App) onShutdown(fn func()) {
	a.closers = append(a.closers, fn)
}

// Shutdown closes every session and releases backing stores
func (a *App) Shutdown(ctx context.Context) {
	a.sessions.CloseAll()
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Config returns the application configuration
func (a *App) Config() *config.Config { return a.cfg }

// Sessions returns the page session store
func (a *App) Sessions() *session.Store { return a.sessions }

// Settings returns the preference store
func (a *App) Settings() *settings.Store { return a.settings }

// Portfolios returns the portfolio catalogue
func (a *App) Portfolios() *config.Portfolios { return a.portfolios }

// Theme returns the chart theme for the persisted preference
func (a *App) Theme() chart.Theme {
	return chart.ThemeFor(a.settings.DarkMode())
}

// Analyze returns the analysis report for ticker over period
func (a *App) Analyze(ctx context.Context, ticker, period string) (*analysis.Report, error) {
	return a.analyzer.Analyze(ctx, ticker, period)
}

// Chart builds one chart for ticker over period in the current theme
func (a *App) Chart(ctx context.Context, ticker, period string, kind chart.Kind) (*chart.Spec, error) {
	report, err := a.analyzer.Analyze(ctx, ticker, period)
	if err != nil {
		return nil, err
	}
	return a.analyzer.Chart(report, kind, chart.Options{Ticker: report.Ticker, Theme: a.Theme()})
}

// Charts builds every chart of report in the current theme
func (a *App) Charts(report *analysis.Report) []analysis.ChartResult {
	return a.analyzer.Charts(report, chart.Options{Ticker: report.Ticker, Theme: a.Theme()})
}

// Quote returns the latest quote for ticker
func (a *App) Quote(ctx context.Context, ticker string) (*models.Quote, error) {
	if strings.TrimSpace(ticker) == "" {
		return nil, fmt.Errorf("ticker is required: %w", services.ErrTickerNotFound)
	}
	return a.market.Quote(ctx, ticker)
}

// Search returns suggestions; queries under two characters return an empty list
func (a *App) Search(query string) []models.SuggestionItem {
	items := a.market.Search(query, a.cfg.Search.Limit)
	outcome := "ok"
	if len([]rune(strings.TrimSpace(query))) < 2 {
		outcome = "skipped"
	}
	a.metrics.RecordSearch("server_" + outcome)
	return items
}

// Portfolio returns the quotes of one market; an empty key selects the first
// market. A failed quote is reported on its row only.
func (a *App) Portfolio(ctx context.Context, marketKey string) (*PortfolioView, error) {
	market := a.portfolios.Default()
	if strings.TrimSpace(marketKey) != "" {
		m, ok := a.portfolios.Market(marketKey)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownMarket, marketKey)
		}
		market = m
	}

	keys := make([]string, len(a.portfolios.Markets))
	for i, m := range a.portfolios.Markets {
		keys[i] = m.Key
	}

	return &PortfolioView{
		Market:  market,
		Markets: keys,
		Rows:    a.quoteRows(ctx, market.Tickers),
	}, nil
}

// Dashboard returns popular tickers with quotes and source health
func (a *App) Dashboard(ctx context.Context) *DashboardView {
	holdings := make([]config.Holding, 0, len(a.portfolios.Popular))
	for _, t := range a.portfolios.Popular {
		h, _, ok := a.portfolios.Lookup(t)
		if !ok {
			h = config.Holding{Ticker: t}
		}
		holdings = append(holdings, h)
	}

	return &DashboardView{
		Popular:  a.quoteRows(ctx, holdings),
		Sources:  a.market.SourceStats(),
		Cache:    a.market.CacheStats(),
		Breakers: a.breakers.Status(),
		Sessions: a.sessions.Len(),
	}
}

// quoteRows fetches quotes concurrently, keeping row order
func (a *App) quoteRows(ctx context.Context, holdings []config.Holding) []QuoteRow {
	rows := make([]QuoteRow, len(holdings))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(quoteConcurrency)
	for i, h := range holdings {
		rows[i] = QuoteRow{Ticker: h.Ticker, Name: h.Name}
		g.Go(func() error {
			q, err := a.market.Quote(gctx, h.Ticker)
			if err != nil {
				observability.WithTicker(h.Ticker).Warn("portfolio quote failed", "error", err)
				rows[i].Error = err.Error()
				return nil
			}
			rows[i].Quote = q
			return nil
		})
	}
	g.Wait()
	return rows
}

// WarmQuotes refreshes cached quotes for the popular tickers and returns how
// many succeeded
func (a *App) WarmQuotes(ctx context.Context) (int, error) {
	rows := a.Dashboard(ctx).Popular
	ok := 0
	for _, r := range rows {
		if r.Quote != nil {
			ok++
		}
	}
	if ok == 0 && len(rows) > 0 {
		return 0, fmt.Errorf("no popular quote could be refreshed")
	}
	return ok, nil
}

// Health reports dependency status; any open breaker or unhealthy store degrades it
func (a *App) Health(ctx context.Context) *Health {
	h := &Health{
		Status:    "ok",
		Services:  map[string]string{},
		Sources:   a.market.SourceStats(),
		Cache:     a.market.CacheStats(),
		Breakers:  a.breakers.Status(),
		Sessions:  a.sessions.Len(),
		CheckedAt: time.Now().UTC(),
	}

	h.Services["cache"] = h.Cache.Backend
	if err := a.health.Check(ctx, a.market.CacheHealth); err != nil {
		h.Services["cache"] = "disconnected"
		h.Status = "degraded"
	}

	available := 0
	for _, s := range h.Sources {
		if s.Available {
			available++
		}
	}
	if available == 0 {
		h.Status = "degraded"
	}

	for _, cb := range h.Breakers {
		if cb.State == "open" {
			h.Status = "degraded"
			break
		}
	}

	if a.settings.Path() == "" {
		h.Services["settings"] = "memory"
	} else {
		h.Services["settings"] = "file"
	}

	return h
}

// TestTicker checks that ticker resolves through the data sources
func (a *App) TestTicker(ctx context.Context, ticker string) *TickerCheck {
	start := time.Now()
	ticker = services.NormalizeTicker(ticker)
	check := &TickerCheck{Ticker: ticker}
	defer func() { check.Elapsed = time.Since(start).Round(time.Millisecond).String() }()

	series, err := a.market.History(ctx, ticker, "1mo")
	if err != nil {
		check.Error = err.Error()
		return check
	}
	check.DataPoints = len(series)
	if len(series) > 0 {
		check.FirstDate = series[0].DateString()
		check.LastDate = series[len(series)-1].DateString()
	}
	check.Quote, _ = services.QuoteFromSeries(ticker, series)
	if info, err := a.market.Info(ctx, ticker); err == nil {
		check.Info = info
	}
	check.OK = len(series) > 0
	return check
}

// ClearCache empties the market data cache and the report cache
func (a *App) ClearCache(ctx context.Context) (int64, error) {
	reports := a.analyzer.Invalidate()
	a.health.Invalidate()
	n, err := a.market.ClearCache(ctx)
	if err != nil {
		return n, fmt.Errorf("failed to clear cache: %w", err)
	}
	observability.Info("cache cleared", "entries", n, "reports", reports)
	return n + int64(reports), nil
}

// PurgeExpired drops expired cache entries and reports
func (a *App) PurgeExpired(ctx context.Context) (int64, error) {
	reports := a.analyzer.PurgeExpired()
	n, err := a.market.PurgeExpired(ctx)
	if err != nil {
		return n, fmt.Errorf("failed to purge cache: %w", err)
	}
	return n + int64(reports), nil
}

// SweepSessions closes idle page sessions
func (a *App) SweepSessions() int {
	return a.sessions.Sweep(a.cfg.Scheduler.SessionIdleTime)
}

// SetDarkMode persists the theme preference and recolours open sessions
func (a *App) SetDarkMode(dark bool) error {
	if err := a.settings.SetDarkMode(dark); err != nil {
		return fmt.Errorf("failed to save preference: %w", err)
	}
	theme := chart.ThemeFor(dark)
	for _, id := range a.sessions.IDs() {
		if s, ok := a.sessions.Get(id); ok {
			s.SetTheme(theme)
		}
	}
	return nil
}
