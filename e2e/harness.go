// Package e2e provides end-to-end testing infrastructure for technical-analyst.
package e2e

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"technical-analyst/config"
	"technical-analyst/e2e/mocks"
	"technical-analyst/internal/api"
	"technical-analyst/internal/app"
	"technical-analyst/internal/cache"
	"technical-analyst/internal/settings"
	"technical-analyst/observability"
	"technical-analyst/services"
)

// TestHarness wires the real application to a mock market data server.
type TestHarness struct {
	t          *testing.T
	ctx        context.Context
	cancel     context.CancelFunc
	mockServer *mocks.MockServer
	app        *app.App
	router     http.Handler
	config     *config.Config
}

// NewTestHarness creates a new test harness.
func NewTestHarness(t *testing.T) *TestHarness {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)

	return &TestHarness{
		t:      t,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Setup starts the mock server and builds the application against it.
func (h *TestHarness) Setup() error {
	h.mockServer = mocks.NewMockServer()
	h.config = h.createTestConfig()

	portfolios, err := config.LoadPortfolios("")
	if err != nil {
		return fmt.Errorf("failed to load portfolios: %w", err)
	}

	prefs, err := settings.NewStore(h.config.Settings.DataDir, h.config.Settings.Passphrase)
	if err != nil {
		return fmt.Errorf("failed to open settings store: %w", err)
	}

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	breakers := services.NewCircuitBreakerRegistry(services.DefaultCircuitBreakerConfig)
	tiered := cache.NewTiered(cache.NewMemory[[]byte](h.config.Cache.MemoryItems), nil, metrics)
	sources := app.Sources(h.config, prefs, breakers)

	fetcher := services.NewFetcher(services.FetcherConfigFrom(h.config), tiered, portfolios, metrics, sources...)
	h.app = app.New(h.config, fetcher, portfolios, prefs, app.Options{Breakers: breakers, Metrics: metrics})

	handler := api.NewHandler(h.app, h.config)
	h.router = api.NewRouter(handler, h.config)

	return nil
}

// Teardown cleans up all test resources.
func (h *TestHarness) Teardown() {
	if h.cancel != nil {
		h.cancel()
	}

	if h.app != nil {
		h.app.Shutdown(context.Background())
	}

	if h.mockServer != nil {
		h.mockServer.Close()
	}
}

// Context returns the test context.
func (h *TestHarness) Context() context.Context {
	return h.ctx
}

// MockServer returns the mock server for configuring responses.
func (h *TestHarness) MockServer() *mocks.MockServer {
	return h.mockServer
}

// App returns the application instance.
func (h *TestHarness) App() *app.App {
	return h.app
}

// Router returns the HTTP router for making requests.
func (h *TestHarness) Router() http.Handler {
	return h.router
}

// Config returns the test configuration.
func (h *TestHarness) Config() *config.Config {
	return h.config
}

// DoRequest performs an HTTP request and returns the response.
func (h *TestHarness) DoRequest(method, path string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

// DoHTMXRequest performs an HTMX request and returns the response.
func (h *TestHarness) DoHTMXRequest(method, path string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("HX-Request", "true")

	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *TestHarness) createTestConfig() *config.Config {
	cfg := config.NewTestConfig()

	// Yahoo is the only source, pointed at the mock server
	cfg.Yahoo.Enabled = true
	cfg.Yahoo.BaseURL = h.mockServer.URL()
	cfg.Sources.MockEnabled = false
	cfg.Sources.TimeoutSeconds = 5
	cfg.Alpaca.APIKey = ""
	cfg.Alpaca.APISecret = ""

	cfg.Settings.DataDir = h.t.TempDir()
	cfg.Settings.Passphrase = "e2e-test-passphrase"

	return cfg
}
