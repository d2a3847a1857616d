package app

import (
	"context"
	"fmt"

	"technical-analyst/config"
	"technical-analyst/internal/cache"
	"technical-analyst/internal/settings"
	"technical-analyst/observability"
	"technical-analyst/repository"
	"technical-analyst/services"
)

// Build assembles the application from configuration: persistent cache
// backend, market data sources, fetcher and preference store. Optional
// backends that fail to open are logged and skipped.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	metrics := observability.GetMetrics()
	breakers := services.GetGlobalRegistry()

	portfolios, err := config.LoadPortfolios(cfg.PortfoliosFile)
	if err != nil {
		return nil, err
	}

	prefs, err := settings.NewStore(cfg.Settings.DataDir, cfg.Settings.Passphrase)
	if err != nil {
		observability.Warn("settings store unavailable, preferences will not persist", "error", err)
		prefs = settings.NewMemoryStore()
	}

	store, err := OpenCacheStore(ctx, cfg, metrics)
	if err != nil {
		observability.Warn("persistent cache unavailable, using memory only", "backend", cfg.Cache.Backend, "error", err)
		store = nil
	}

	tiered := cache.NewTiered(cache.NewMemory[[]byte](cfg.Cache.MemoryItems), store, metrics)
	fetcher := services.NewFetcher(services.FetcherConfigFrom(cfg), tiered, portfolios, metrics, Sources(cfg, prefs, breakers)...)

	a := New(cfg, fetcher, portfolios, prefs, Options{Breakers: breakers, Metrics: metrics})
	if store != nil {
		a.onShutdown(store.Close)
	}
	return a, nil
}

// OpenCacheStore opens the persistent cache selected by CACHE_BACKEND; memory
// returns a nil store
func OpenCacheStore(ctx context.Context, cfg *config.Config, metrics *observability.Metrics) (repository.CacheStore, error) {
	switch cfg.Cache.Backend {
	case config.CacheSQLite:
		store, err := repository.NewSQLiteStore(cfg.Cache.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.CacheRedis:
		store, err := repository.NewRedisStore(cfg.Cache.RedisURL)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.CachePostgres:
		repo, err := repository.NewRepository(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		if err := repo.EnsureSchema(ctx); err != nil {
			repo.Close()
			return nil, fmt.Errorf("failed to prepare cache schema: %w", err)
		}
		return repo.WithMetrics(metrics), nil
	}
	return nil, nil
}

// Sources returns the enabled market data sources. Alpaca credentials come
// from the environment, or from the settings store when the environment has none.
func Sources(cfg *config.Config, prefs *settings.Store, breakers *services.CircuitBreakerRegistry) []services.DataSource {
	var sources []services.DataSource

	if cfg.Yahoo.Enabled {
		sources = append(sources, services.NewYahooSource(cfg.Yahoo.BaseURL, cfg.SourceTimeout(), breakers))
	}

	key, secret, dataURL, feed := cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, cfg.Alpaca.Feed
	if !cfg.HasAlpaca() && prefs != nil {
		if c := prefs.Credentials(settings.ServiceAlpaca); c != nil {
			key, secret = c.APIKey, c.APISecret
			if c.BaseURL != "" {
				dataURL = c.BaseURL
			}
			if c.Feed != "" {
				feed = c.Feed
			}
		}
	}
	if key != "" && secret != "" {
		sources = append(sources, services.NewAlpacaSource(key, secret, dataURL, feed, breakers))
	}

	if cfg.Sources.MockEnabled {
		sources = append(sources, services.NewMockSource())
	}

	if len(sources) == 0 {
		observability.Warn("no market data source enabled, falling back to mock data")
		sources = append(sources, services.NewMockSource())
	}
	return sources
}
