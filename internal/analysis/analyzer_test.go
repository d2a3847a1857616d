package analysis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"technical-analyst/chart"
	"technical-analyst/models"
	"technical-analyst/observability"
	"technical-analyst/services"
)

type stubData struct {
	mu           sync.Mutex
	historyCalls int
	infoCalls    int
	historyErr   error
	infoErr      error
	empty        bool
	mock         *services.MockSource
}

func newStubData() *stubData {
	return &stubData{mock: services.NewMockSource()}
}

func (s *stubData) History(ctx context.Context, ticker, period string) (models.Series, error) {
	s.mu.Lock()
	s.historyCalls++
	s.mu.Unlock()
	if s.historyErr != nil {
		return nil, s.historyErr
	}
	if s.empty {
		return models.Series{}, nil
	}
	return s.mock.History(ctx, ticker, models.ParsePeriod(period))
}

func (s *stubData) Info(ctx context.Context, ticker string) (*models.StockInfo, error) {
	s.mu.Lock()
	s.infoCalls++
	s.mu.Unlock()
	if s.infoErr != nil {
		return nil, s.infoErr
	}
	return s.mock.Info(ctx, ticker)
}

func newTestAnalyzer(data MarketData) (*Analyzer, *observability.Metrics) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	a := NewAnalyzer(data, time.Minute, metrics)
	a.now = func() time.Time { return time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC) }
	return a, metrics
}

func TestAnalyze(t *testing.T) {
	data := newStubData()
	a, metrics := newTestAnalyzer(data)

	report, err := a.Analyze(context.Background(), " aapl ", "6mo")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if report.Ticker != "AAPL" {
		t.Errorf("Ticker = %q, want AAPL", report.Ticker)
	}
	if report.Period.Key != "6mo" {
		t.Errorf("Period = %q, want 6mo", report.Period.Key)
	}
	if len(report.Series) != 180 {
		t.Errorf("len(Series) = %d, want 180", len(report.Series))
	}
	if last, _ := report.Series.Last(); last.MA20 == nil || last.RSI == nil {
		t.Error("series was not enriched")
	}
	if report.Info == nil || report.Info.Name == "" {
		t.Error("Info missing")
	}
	if report.Stats.Ticker != "AAPL" || report.Stats.DataPoints != 180 {
		t.Errorf("Stats = %+v", report.Stats)
	}
	if len(report.Signals) == 0 {
		t.Error("expected at least the trend signal")
	}
	if got := testutil.ToFloat64(metrics.AnalysisRequestsTotal.WithLabelValues("AAPL")); got != 1 {
		t.Errorf("analysis requests = %v, want 1", got)
	}
}

func TestAnalyze_CachesReports(t *testing.T) {
	data := newStubData()
	a, _ := newTestAnalyzer(data)
	ctx := context.Background()

	first, err := a.Analyze(ctx, "MSFT", "1y")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	second, err := a.Analyze(ctx, "msft", "1y")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if first != second {
		t.Error("second call should return the cached report")
	}
	if data.historyCalls != 1 {
		t.Errorf("historyCalls = %d, want 1", data.historyCalls)
	}

	if _, err := a.Analyze(ctx, "MSFT", "3mo"); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if data.historyCalls != 2 {
		t.Errorf("a different period must not share the cache entry; historyCalls = %d", data.historyCalls)
	}

	if n := a.Invalidate(); n != 2 {
		t.Errorf("Invalidate() = %d, want 2", n)
	}
	if _, err := a.Analyze(ctx, "MSFT", "1y"); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if data.historyCalls != 3 {
		t.Errorf("historyCalls after Invalidate = %d, want 3", data.historyCalls)
	}
}

func TestAnalyze_UnknownPeriodFallsBack(t *testing.T) {
	a, _ := newTestAnalyzer(newStubData())
	report, err := a.Analyze(context.Background(), "AAPL", "bogus")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if report.Period.Key != models.DefaultPeriod {
		t.Errorf("Period = %q, want %q", report.Period.Key, models.DefaultPeriod)
	}
}

func TestAnalyze_InfoFailureIsTolerated(t *testing.T) {
	data := newStubData()
	data.infoErr = errors.New("info down")
	a, _ := newTestAnalyzer(data)

	report, err := a.Analyze(context.Background(), "AAPL", "6mo")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if report.Info != nil {
		t.Errorf("Info = %+v, want nil", report.Info)
	}
	if report.Stats.High52W == 0 {
		t.Error("52-week high should fall back to the series")
	}
}

func TestAnalyze_Errors(t *testing.T) {
	tests := []struct {
		name      string
		ticker    string
		setup     func(*stubData)
		wantErr   error
		errorType string
	}{
		{
			name:    "blank ticker",
			ticker:  "  ",
			wantErr: ErrInvalidTicker,
		},
		{
			name:      "history not found",
			ticker:    "ZZZZ",
			setup:     func(d *stubData) { d.historyErr = services.ErrTickerNotFound },
			wantErr:   services.ErrTickerNotFound,
			errorType: "not_found",
		},
		{
			name:      "empty history",
			ticker:    "ZZZZ",
			setup:     func(d *stubData) { d.empty = true },
			wantErr:   services.ErrNoData,
			errorType: "no_data",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := newStubData()
			if tt.setup != nil {
				tt.setup(data)
			}
			a, metrics := newTestAnalyzer(data)

			report, err := a.Analyze(context.Background(), tt.ticker, "6mo")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Analyze() error = %v, want %v", err, tt.wantErr)
			}
			if report != nil {
				t.Error("report should be nil on error")
			}
			if tt.errorType != "" {
				if got := testutil.ToFloat64(metrics.AnalysisErrorsTotal.WithLabelValues(tt.ticker, tt.errorType)); got != 1 {
					t.Errorf("analysis errors{%s} = %v, want 1", tt.errorType, got)
				}
			}
		})
	}
}

func TestAnalyze_ErrorsAreNotCached(t *testing.T) {
	data := newStubData()
	data.historyErr = services.ErrSourceUnavailable
	a, _ := newTestAnalyzer(data)
	ctx := context.Background()

	if _, err := a.Analyze(ctx, "AAPL", "6mo"); err == nil {
		t.Fatal("expected error")
	}
	data.historyErr = nil
	if _, err := a.Analyze(ctx, "AAPL", "6mo"); err != nil {
		t.Fatalf("Analyze() after recovery error = %v", err)
	}
}

func TestCharts(t *testing.T) {
	a, metrics := newTestAnalyzer(newStubData())
	report, err := a.Analyze(context.Background(), "AAPL", "6mo")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	results := a.Charts(report, chart.Options{Theme: chart.ThemeLight})
	if len(results) != len(chart.Kinds) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(chart.Kinds))
	}
	for i, r := range results {
		if r.Kind != chart.Kinds[i] {
			t.Errorf("results[%d].Kind = %s, want %s", i, r.Kind, chart.Kinds[i])
		}
		if r.Err != nil {
			t.Errorf("%s chart error = %v", r.Kind, r.Err)
		}
		if r.Spec == nil || len(r.Spec.Traces) == 0 {
			t.Errorf("%s chart has no traces", r.Kind)
		}
	}
	if got := testutil.ToFloat64(metrics.ChartBuildsTotal.WithLabelValues("price", "ok")); got != 1 {
		t.Errorf("price chart builds = %v, want 1", got)
	}
}

func TestCharts_EmptyReport(t *testing.T) {
	a, metrics := newTestAnalyzer(newStubData())
	results := a.Charts(&Report{Ticker: "AAPL"}, chart.Options{})
	for _, r := range results {
		if !errors.Is(r.Err, chart.ErrEmptySeries) {
			t.Errorf("%s chart error = %v, want ErrEmptySeries", r.Kind, r.Err)
		}
	}
	if got := testutil.ToFloat64(metrics.ChartBuildsTotal.WithLabelValues("rsi", "empty")); got != 1 {
		t.Errorf("rsi empty builds = %v, want 1", got)
	}
}
