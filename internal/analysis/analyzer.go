// Package analysis turns fetched market data into the report shown on the
// analysis page: enriched series, headline stats, signals and charts.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"technical-analyst/chart"
	"technical-analyst/indicators"
	"technical-analyst/internal/cache"
	"technical-analyst/models"
	"technical-analyst/observability"
	"technical-analyst/services"
)

// DefaultReportTTL is how long a computed report is reused
const DefaultReportTTL = 5 * time.Minute

// ErrInvalidTicker is returned for a blank ticker
var ErrInvalidTicker = errors.New("ticker is required")

// MarketData is the subset of the fetcher the analyzer reads from
type MarketData interface {
	History(ctx context.Context, ticker, period string) (models.Series, error)
	Info(ctx context.Context, ticker string) (*models.StockInfo, error)
}

// Report is one computed analysis of a ticker over a period
type Report struct {
	Ticker      string            `json:"ticker"`
	Period      models.Period     `json:"period"`
	Series      models.Series     `json:"series"`
	Info        *models.StockInfo `json:"info,omitempty"`
	Stats       models.Stats      `json:"stats"`
	Signals     []models.Signal   `json:"signals"`
	GeneratedAt time.Time         `json:"generatedAt"`
}

// ChartResult is the outcome of building one chart kind
type ChartResult struct {
	Kind chart.Kind
	Spec *chart.Spec
	Err  error
}

// Analyzer computes and caches reports
type Analyzer struct {
	data    MarketData
	reports *cache.Memory[*Report]
	ttl     time.Duration
	metrics *observability.Metrics
	now     func() time.Time
}

// NewAnalyzer creates an analyzer reading from data
func NewAnalyzer(data MarketData, ttl time.Duration, metrics *observability.Metrics) *Analyzer {
	if ttl <= 0 {
		ttl = DefaultReportTTL
	}
	if metrics == nil {
		metrics = observability.GetMetrics()
	}
	return &Analyzer{
		data:    data,
		reports: cache.NewMemory[*Report](cache.DefaultCapacity),
		ttl:     ttl,
		metrics: metrics,
		now:     time.Now,
	}
}

func reportKey(ticker, period string) string {
	return ticker + "_" + period
}

// Analyze fetches history and info concurrently and derives the report.
// Info is optional: a failed info lookup yields a report without it.
func (a *Analyzer) Analyze(ctx context.Context, ticker, period string) (*Report, error) {
	ticker = services.NormalizeTicker(ticker)
	if ticker == "" {
		return nil, ErrInvalidTicker
	}
	p := models.ParsePeriod(period)
	key := reportKey(ticker, p.Key)

	if report, ok := a.reports.Get(key); ok {
		observability.WithTicker(ticker).Debug("analysis served from cache", "period", p.Key)
		return report, nil
	}

	a.metrics.RecordAnalysisRequest(ticker)
	timer := a.metrics.NewTimer()
	log := observability.WithContext(ctx).With("ticker", ticker, "period", p.Key)

	var (
		series models.Series
		info   *models.StockInfo
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := a.data.History(gctx, ticker, p.Key)
		if err != nil {
			return fmt.Errorf("failed to fetch history for %s: %w", ticker, err)
		}
		series = s
		return nil
	})
	g.Go(func() error {
		i, err := a.data.Info(gctx, ticker)
		if err != nil {
			log.Debug("company info unavailable", "error", err)
			return nil
		}
		info = i
		return nil
	})
	if err := g.Wait(); err != nil {
		timer.ObserveAnalysis(ticker, "error")
		a.metrics.RecordAnalysisError(ticker, errorType(err))
		log.Warn("analysis failed", "error", err)
		return nil, err
	}

	if len(series) == 0 {
		timer.ObserveAnalysis(ticker, "error")
		a.metrics.RecordAnalysisError(ticker, "no_data")
		return nil, fmt.Errorf("failed to analyse %s: %w", ticker, services.ErrNoData)
	}

	now := a.now()
	enriched := indicators.Enrich(series)
	report := &Report{
		Ticker:      ticker,
		Period:      p,
		Series:      enriched,
		Info:        info,
		Stats:       indicators.ComputeStats(ticker, enriched, info, now),
		Signals:     indicators.Signals(enriched),
		GeneratedAt: now,
	}

	a.reports.Set(key, report, a.ttl)
	timer.ObserveAnalysis(ticker, "success")
	log.Info("analysis complete", "bars", len(enriched), "signals", len(report.Signals))
	return report, nil
}

func errorType(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, services.ErrTickerNotFound):
		return "not_found"
	case errors.Is(err, services.ErrNoData):
		return "no_data"
	default:
		return "fetch"
	}
}

// Chart builds a single chart kind from the report
func (a *Analyzer) Chart(report *Report, kind chart.Kind, opts chart.Options) (*chart.Spec, error) {
	if opts.Ticker == "" {
		opts.Ticker = report.Ticker
	}
	spec, err := chart.Build(kind, report.Series, opts)
	switch {
	case err == nil:
		a.metrics.RecordChartBuild(string(kind), "ok")
	case errors.Is(err, chart.ErrNoChart):
		a.metrics.RecordChartBuild(string(kind), "no_chart")
	case errors.Is(err, chart.ErrEmptySeries):
		a.metrics.RecordChartBuild(string(kind), "empty")
	default:
		a.metrics.RecordChartBuild(string(kind), "error")
	}
	return spec, err
}

// Charts builds every chart kind in page order
func (a *Analyzer) Charts(report *Report, opts chart.Options) []ChartResult {
	out := make([]ChartResult, 0, len(chart.Kinds))
	for _, kind := range chart.Kinds {
		spec, err := a.Chart(report, kind, opts)
		out = append(out, ChartResult{Kind: kind, Spec: spec, Err: err})
	}
	return out
}

// Invalidate drops every cached report
func (a *Analyzer) Invalidate() int {
	return a.reports.Clear()
}

// PurgeExpired drops expired reports
func (a *Analyzer) PurgeExpired() int {
	return a.reports.PurgeExpired()
}
