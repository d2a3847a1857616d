// Package main provides a standalone HTTP server for E2E testing.
// It runs the same routes and handlers as the dashboard, but every market
// data request goes to an in-process mock of the chart API, making it
// suitable for Playwright tests.
package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/signal"
	"syscall"
	"time"

	"technical-analyst/config"
	"technical-analyst/e2e/mocks"
	"technical-analyst/internal/api"
	"technical-analyst/internal/app"
	"technical-analyst/internal/cache"
	"technical-analyst/internal/settings"
	"technical-analyst/observability"
	"technical-analyst/services"
)

func main() {
	// Initialize logger in development mode for tests
	observability.InitLogger(false)
	metrics := observability.InitMetrics()

	port := os.Getenv("E2E_SERVER_PORT")
	if port == "" {
		port = "9090"
	}

	market := mocks.NewMockHandler()
	seedInstruments(market)
	marketServer := httptest.NewServer(market)
	defer marketServer.Close()
	observability.Info("mock market data server started", "url", marketServer.URL)

	cfg := config.NewTestConfig()
	cfg.Yahoo.Enabled = true
	cfg.Yahoo.BaseURL = marketServer.URL
	cfg.Sources.MockEnabled = false
	cfg.LivePoll.Interval = 5 * time.Second

	// Initialize Settings Store with test directory
	settingsDir := os.Getenv("E2E_SETTINGS_DIR")
	if settingsDir == "" {
		var err error
		settingsDir, err = os.MkdirTemp("", "technical-analyst-e2e-settings-*")
		if err != nil {
			observability.Fatal("failed to create temp settings dir", "error", err)
		}
		defer os.RemoveAll(settingsDir)
	}
	cfg.Settings.DataDir = settingsDir
	cfg.Settings.Passphrase = "e2e-test-passphrase"

	prefs, err := settings.NewStore(settingsDir, cfg.Settings.Passphrase)
	if err != nil {
		observability.Fatal("failed to initialize settings store", "error", err)
	}
	observability.Info("settings store initialized", "dir", settingsDir)

	portfolios, err := config.LoadPortfolios("")
	if err != nil {
		observability.Fatal("failed to load portfolios", "error", err)
	}

	breakers := services.GetGlobalRegistry()
	tiered := cache.NewTiered(cache.NewMemory[[]byte](cfg.Cache.MemoryItems), nil, metrics)
	fetcher := services.NewFetcher(services.FetcherConfigFrom(cfg), tiered, portfolios, metrics, app.Sources(cfg, prefs, breakers)...)
	application := app.New(cfg, fetcher, portfolios, prefs, app.Options{Breakers: breakers, Metrics: metrics})

	// Create HTTP router
	handler := api.NewHandler(application, cfg)
	router := api.NewRouter(handler, cfg)

	server := &http.Server{
		Addr:        ":" + port,
		Handler:     router,
		ReadTimeout: 30 * time.Second,
	}

	// Start server in goroutine
	go func() {
		observability.Info("starting E2E test server", "port", port, "url", fmt.Sprintf("http://localhost:%s", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			observability.Fatal("server error", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	observability.Info("shutting down E2E test server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		observability.Error("server forced to shutdown", "error", err)
	}

	application.Shutdown(shutdownCtx)
	observability.Info("E2E test server stopped")
}
