package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"technical-analyst/chart"
	"technical-analyst/config"
	"technical-analyst/internal/settings"
	"technical-analyst/models"
	"technical-analyst/observability"
	"technical-analyst/services"
)

// failingQuotes wraps a fetcher and fails quotes for selected tickers
type failingQuotes struct {
	*services.Fetcher
	fail map[string]bool
}

func (f *failingQuotes) Quote(ctx context.Context, ticker string) (*models.Quote, error) {
	if f.fail[ticker] {
		return nil, services.ErrSourceUnavailable
	}
	return f.Fetcher.Quote(ctx, ticker)
}

func testMetrics() *observability.Metrics {
	return observability.NewMetrics(prometheus.NewRegistry())
}

func testFetcher(metrics *observability.Metrics) *services.Fetcher {
	return services.NewFetcher(services.DefaultFetcherConfig, nil, nil, metrics, services.NewMockSource())
}

// testApp creates an App over the mock source with test config
func testApp(t *testing.T, market MarketData) *App {
	t.Helper()
	metrics := testMetrics()
	if market == nil {
		market = testFetcher(metrics)
	}
	a := New(config.NewTestConfig(), market, nil, nil, Options{
		Breakers: services.NewCircuitBreakerRegistry(services.DefaultCircuitBreakerConfig),
		Metrics:  metrics,
	})
	t.Cleanup(func() { a.Shutdown(context.Background()) })
	return a
}

func TestAnalyzeAndCharts(t *testing.T) {
	a := testApp(t, nil)

	report, err := a.Analyze(context.Background(), "aapl", "3mo")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if report.Ticker != "AAPL" || report.Period.Key != "3mo" {
		t.Errorf("report = %s/%s", report.Ticker, report.Period.Key)
	}

	results := a.Charts(report)
	if len(results) != len(chart.Kinds) {
		t.Fatalf("len(Charts()) = %d, want %d", len(results), len(chart.Kinds))
	}
	if results[0].Kind != chart.KindPrice || results[0].Spec == nil {
		t.Errorf("first chart = %+v, want price spec", results[0])
	}

	spec, err := a.Chart(context.Background(), "AAPL", "3mo", chart.KindRSI)
	if err != nil {
		t.Fatalf("Chart() error = %v", err)
	}
	if spec.Layout.PaperBG != chart.ThemeLight.Palette().Paper {
		t.Errorf("PaperBG = %q, want light theme", spec.Layout.PaperBG)
	}
}

func TestSetDarkMode(t *testing.T) {
	a := testApp(t, nil)
	s := a.Sessions().Create(a.Theme())
	if _, err := s.Navigate(context.Background(), "AAPL", "6mo"); err != nil {
		t.Fatal(err)
	}

	if err := a.SetDarkMode(true); err != nil {
		t.Fatalf("SetDarkMode() error = %v", err)
	}
	if a.Theme() != chart.ThemeDark {
		t.Errorf("Theme() = %v, want dark", a.Theme())
	}
	if s.Theme() != chart.ThemeDark {
		t.Errorf("open session theme = %v, want dark", s.Theme())
	}

	spec, err := a.Chart(context.Background(), "AAPL", "6mo", chart.KindPrice)
	if err != nil {
		t.Fatal(err)
	}
	if spec.Layout.PaperBG != chart.ThemeDark.Palette().Paper {
		t.Errorf("PaperBG = %q, want dark theme", spec.Layout.PaperBG)
	}
}

func TestQuote(t *testing.T) {
	a := testApp(t, nil)

	q, err := a.Quote(context.Background(), "msft")
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}
	if q.Symbol != "MSFT" || q.Price <= 0 {
		t.Errorf("Quote() = %+v", q)
	}

	if _, err := a.Quote(context.Background(), "  "); !errors.Is(err, services.ErrTickerNotFound) {
		t.Errorf("Quote(blank) error = %v, want ErrTickerNotFound", err)
	}
}

func TestSearch(t *testing.T) {
	a := testApp(t, nil)

	tests := []struct {
		query     string
		wantFirst string
		wantEmpty bool
	}{
		{"a", "", true},
		{"  ", "", true},
		{"aap", "AAPL", false},
		{"apple", "AAPL", false},
		{"zzzzzz", "", true},
	}

	for _, tt := range tests {
		got := a.Search(tt.query)
		if got == nil {
			t.Errorf("Search(%q) = nil, want non-nil list", tt.query)
			continue
		}
		if tt.wantEmpty {
			if len(got) != 0 {
				t.Errorf("Search(%q) = %v, want empty", tt.query, got)
			}
			continue
		}
		if len(got) == 0 || got[0].Ticker != tt.wantFirst {
			t.Errorf("Search(%q) = %v, want first %s", tt.query, got, tt.wantFirst)
		}
	}
}

func TestPortfolio(t *testing.T) {
	metrics := testMetrics()
	market := &failingQuotes{Fetcher: testFetcher(metrics), fail: map[string]bool{"MSFT": true}}
	a := testApp(t, market)

	view, err := a.Portfolio(context.Background(), "us")
	if err != nil {
		t.Fatalf("Portfolio() error = %v", err)
	}
	if view.Market.Key != "US" {
		t.Errorf("Market.Key = %q, want US", view.Market.Key)
	}
	if len(view.Rows) != len(view.Market.Tickers) {
		t.Fatalf("rows = %d, want %d", len(view.Rows), len(view.Market.Tickers))
	}
	for i, row := range view.Rows {
		if row.Ticker != view.Market.Tickers[i].Ticker {
			t.Errorf("row %d ticker = %s, want %s", i, row.Ticker, view.Market.Tickers[i].Ticker)
		}
		switch {
		case row.Ticker == "MSFT":
			if row.Error == "" || row.Quote != nil {
				t.Errorf("MSFT row = %+v, want error only", row)
			}
		case row.Quote == nil:
			t.Errorf("row %s has no quote: %s", row.Ticker, row.Error)
		}
	}

	def, err := a.Portfolio(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if def.Market.Key != a.Portfolios().Default().Key {
		t.Errorf("default market = %s", def.Market.Key)
	}

	if _, err := a.Portfolio(context.Background(), "MARS"); !errors.Is(err, ErrUnknownMarket) {
		t.Errorf("Portfolio(MARS) error = %v, want ErrUnknownMarket", err)
	}
}

func TestDashboardAndWarm(t *testing.T) {
	a := testApp(t, nil)

	d := a.Dashboard(context.Background())
	if len(d.Popular) != len(a.Portfolios().Popular) {
		t.Errorf("popular rows = %d, want %d", len(d.Popular), len(a.Portfolios().Popular))
	}
	if len(d.Sources) != 1 || d.Sources[0].Name != "mock" {
		t.Errorf("sources = %+v", d.Sources)
	}

	n, err := a.WarmQuotes(context.Background())
	if err != nil {
		t.Fatalf("WarmQuotes() error = %v", err)
	}
	if n != len(a.Portfolios().Popular) {
		t.Errorf("WarmQuotes() = %d, want %d", n, len(a.Portfolios().Popular))
	}
}

func TestHealth(t *testing.T) {
	a := testApp(t, nil)

	h := a.Health(context.Background())
	if h.Status != "ok" {
		t.Errorf("Status = %q, want ok", h.Status)
	}
	if h.Services["cache"] != "memory" {
		t.Errorf("cache = %q, want memory", h.Services["cache"])
	}
	if h.Services["settings"] != "memory" {
		t.Errorf("settings = %q, want memory", h.Services["settings"])
	}
}

func TestTestTicker(t *testing.T) {
	a := testApp(t, nil)

	check := a.TestTicker(context.Background(), "nvda")
	if !check.OK || check.Ticker != "NVDA" {
		t.Errorf("TestTicker() = %+v", check)
	}
	if check.DataPoints == 0 || check.FirstDate == "" || check.LastDate < check.FirstDate {
		t.Errorf("data = %d points %s..%s", check.DataPoints, check.FirstDate, check.LastDate)
	}
	if check.Quote == nil {
		t.Error("Quote missing")
	}
}

func TestClearAndPurge(t *testing.T) {
	a := testApp(t, nil)

	if _, err := a.Analyze(context.Background(), "AAPL", "6mo"); err != nil {
		t.Fatal(err)
	}
	n, err := a.ClearCache(context.Background())
	if err != nil {
		t.Fatalf("ClearCache() error = %v", err)
	}
	if n == 0 {
		t.Error("ClearCache() = 0, want cached history and report cleared")
	}
	if _, err := a.PurgeExpired(context.Background()); err != nil {
		t.Errorf("PurgeExpired() error = %v", err)
	}
}

func TestSweepSessions(t *testing.T) {
	a := testApp(t, nil)
	a.Sessions().Create(chart.ThemeLight)
	if n := a.SweepSessions(); n != 0 {
		t.Errorf("SweepSessions() = %d, want 0 for a fresh session", n)
	}
	if a.Sessions().Len() != 1 {
		t.Errorf("Len() = %d, want 1", a.Sessions().Len())
	}
}

func TestShutdown(t *testing.T) {
	a := testApp(t, nil)
	closed := 0
	a.onShutdown(func() { closed++ })
	s := a.Sessions().Create(chart.ThemeLight)

	a.Shutdown(context.Background())
	a.Shutdown(context.Background())

	if closed != 1 {
		t.Errorf("closers ran %d times, want 1", closed)
	}
	if !s.Closed() {
		t.Error("session not closed on shutdown")
	}
}

func TestSources(t *testing.T) {
	breakers := services.NewCircuitBreakerRegistry(services.DefaultCircuitBreakerConfig)

	names := func(srcs []services.DataSource) []string {
		out := make([]string, len(srcs))
		for i, s := range srcs {
			out[i] = s.Name()
		}
		return out
	}

	cfg := config.NewTestConfig()
	if got := names(Sources(cfg, nil, breakers)); len(got) != 1 || got[0] != "mock" {
		t.Errorf("Sources(default) = %v, want [mock]", got)
	}

	cfg.Yahoo.Enabled = true
	cfg.Sources.MockEnabled = false
	prefs := settings.NewMemoryStore()
	if err := prefs.SetCredentials(&settings.Credentials{Service: settings.ServiceAlpaca, APIKey: "k", APISecret: "s"}); err != nil {
		t.Fatal(err)
	}
	got := names(Sources(cfg, prefs, breakers))
	if len(got) != 2 || got[0] != "yahoo" || got[1] != "alpaca" {
		t.Errorf("Sources(yahoo+stored alpaca) = %v", got)
	}

	cfg.Yahoo.Enabled = false
	if got := names(Sources(cfg, nil, breakers)); len(got) != 1 || got[0] != "mock" {
		t.Errorf("Sources(none enabled) = %v, want mock fallback", got)
	}
}

func TestBuild(t *testing.T) {
	cfg := config.NewTestConfig()
	cfg.Settings.DataDir = t.TempDir()
	cfg.Cache.Backend = config.CacheSQLite
	cfg.Cache.SQLitePath = filepath.Join(t.TempDir(), "cache.db")

	a, err := Build(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer a.Shutdown(context.Background())

	if a.Settings().Path() == "" {
		t.Error("settings store is memory-only, want file")
	}
	if h := a.Health(context.Background()); h.Services["cache"] != "sqlite" {
		t.Errorf("cache backend = %q, want sqlite", h.Services["cache"])
	}
	if _, err := a.Analyze(context.Background(), "AAPL", "1mo"); err != nil {
		t.Errorf("Analyze() error = %v", err)
	}
}
