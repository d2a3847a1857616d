//go:build e2e
// +build e2e

package scenarios

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"technical-analyst/e2e"
	"technical-analyst/internal/api"
	"technical-analyst/models"
)

func newHarness(t *testing.T) *e2e.TestHarness {
	t.Helper()

	harness := e2e.NewTestHarness(t)
	if err := harness.Setup(); err != nil {
		t.Fatalf("failed to setup test harness: %v", err)
	}
	t.Cleanup(harness.Teardown)
	return harness
}

func TestAnalysisWorkflow_RendersCharts(t *testing.T) {
	harness := newHarness(t)

	resp := harness.DoRequest(http.MethodGet, "/analyse?ticker=AAPL&period=6mo", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	body := resp.Body.String()
	for _, want := range []string{"Apple Inc.", `id="price-chart"`, `id="rsi-chart"`, `id="macd-chart"`, "price-chart-spec"} {
		if !strings.Contains(body, want) {
			t.Errorf("analyse page missing %q", want)
		}
	}

	if harness.MockServer().CountRequests("/v8/finance/chart/AAPL") == 0 {
		t.Error("expected the chart API to be called for AAPL")
	}
}

func TestAnalysisWorkflow_UnknownTicker(t *testing.T) {
	harness := newHarness(t)

	resp := harness.DoRequest(http.MethodGet, "/analyse?ticker=ZZZZ", "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "Could not analyse ZZZZ") {
		t.Errorf("expected error panel, got %s", resp.Body.String())
	}
}

func TestAnalysisWorkflow_InvalidSymbol(t *testing.T) {
	harness := newHarness(t)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"invalid characters", "/api/chart/AAPL!", http.StatusBadRequest},
		{"too long", "/api/chart/ABCDEFGHIJKLM", http.StatusBadRequest},
		{"unknown kind", "/api/chart/AAPL?kind=volume", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := harness.DoRequest(http.MethodGet, tt.path, "")
			if resp.Code != tt.status {
				t.Errorf("expected status %d, got %d: %s", tt.status, resp.Code, resp.Body.String())
			}
		})
	}
}

func TestAnalysisWorkflow_HistoryIsCached(t *testing.T) {
	harness := newHarness(t)
	mock := harness.MockServer()

	for _, kind := range []string{"price", "rsi", "macd"} {
		resp := harness.DoRequest(http.MethodGet, "/api/chart/MSFT?period=1y&kind="+kind, "")
		if resp.Code != http.StatusOK {
			t.Fatalf("%s chart: expected status 200, got %d: %s", kind, resp.Code, resp.Body.String())
		}
	}

	first := mock.CountRequests("/v8/finance/chart/MSFT")
	resp := harness.DoRequest(http.MethodGet, "/api/chart/MSFT?period=1y&kind=price", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if got := mock.CountRequests("/v8/finance/chart/MSFT"); got != first {
		t.Errorf("expected cached history, chart API calls went from %d to %d", first, got)
	}

	resp = harness.DoRequest(http.MethodPost, "/api/system/clear_cache", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("clear_cache: expected status 200, got %d", resp.Code)
	}
	harness.DoRequest(http.MethodGet, "/api/chart/MSFT?period=1y&kind=price", "")
	if got := mock.CountRequests("/v8/finance/chart/MSFT"); got == first {
		t.Error("expected a fresh fetch after clearing the cache")
	}
}

func TestAnalysisWorkflow_Quote(t *testing.T) {
	harness := newHarness(t)

	resp := harness.DoRequest(http.MethodGet, "/api/quote/MC.PA", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var quote models.Quote
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		t.Fatalf("failed to decode quote: %v", err)
	}
	if quote.Symbol != "MC.PA" || quote.Price <= 0 {
		t.Errorf("unexpected quote %+v", quote)
	}
	if quote.Source == "fallback" {
		t.Error("expected a quote derived from source bars")
	}
}

func TestAnalysisWorkflow_SourceDown(t *testing.T) {
	harness := newHarness(t)
	harness.MockServer().SetYahooError(errors.New("upstream exploded"))

	t.Run("quote falls back", func(t *testing.T) {
		resp := harness.DoRequest(http.MethodGet, "/api/quote/AAPL", "")
		if resp.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
		}
		var quote models.Quote
		if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
			t.Fatalf("failed to decode quote: %v", err)
		}
		if quote.Source != "fallback" {
			t.Errorf("expected fallback quote, got source %q", quote.Source)
		}
	})

	t.Run("analyse reports no data", func(t *testing.T) {
		resp := harness.DoRequest(http.MethodGet, "/analyse?ticker=AAPL", "")
		if resp.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", resp.Code)
		}
	})
}

func TestAnalysisWorkflow_Search(t *testing.T) {
	harness := newHarness(t)

	resp := harness.DoRequest(http.MethodGet, "/api/search?q=apple", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var body api.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode suggestions: %v", err)
	}
	found := false
	for _, it := range body.Suggestions {
		if it.Ticker == "AAPL" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected AAPL in suggestions, got %+v", body.Suggestions)
	}
}
