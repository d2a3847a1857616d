package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Cache backends
const (
	CacheMemory   = "memory"
	CacheSQLite   = "sqlite"
	CachePostgres = "postgres"
	CacheRedis    = "redis"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Market data sources
	Alpaca  AlpacaConfig
	Yahoo   YahooConfig
	Sources SourcesConfig

	// Caching
	Cache CacheConfig

	// Interactive behaviour
	LivePoll LivePollConfig
	Search   SearchConfig

	// Background jobs
	Scheduler SchedulerConfig

	// Persisted preferences
	Settings SettingsConfig

	// Portfolio catalogue override
	PortfoliosFile string

	// HTTP configuration
	HTTP HTTPConfig
}

// ServerConfig holds listener and logging configuration
type ServerConfig struct {
	Addr            string
	Production      bool
	LogLevel        string
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string
}

// AlpacaConfig holds Alpaca market data configuration
type AlpacaConfig struct {
	APIKey    string
	APISecret string
	DataURL   string
	Feed      string
	RateLimit int
}

// YahooConfig holds Yahoo Finance chart API configuration
type YahooConfig struct {
	Enabled   bool
	BaseURL   string
	RateLimit int
}

// SourcesConfig holds settings shared by every market data source
type SourcesConfig struct {
	TimeoutSeconds int
	MaxErrors      int
	MockEnabled    bool
}

// CacheConfig holds tiered cache configuration
type CacheConfig struct {
	Backend     string
	SQLitePath  string
	RedisURL    string
	MemoryItems int
	HistoryTTL  time.Duration
	InfoTTL     time.Duration
	ReportTTL   time.Duration
}

// LivePollConfig holds the live quote refresh interval
type LivePollConfig struct {
	Interval time.Duration
}

// SearchConfig holds suggestion settings
type SearchConfig struct {
	Debounce time.Duration
	Limit    int
}

// SchedulerConfig holds cron specs for background jobs
type SchedulerConfig struct {
	Enabled         bool
	PurgeSpec       string
	SweepSpec       string
	WarmSpec        string
	SessionIdleTime time.Duration
}

// SettingsConfig holds the encrypted preference store location
type SettingsConfig struct {
	DataDir    string
	Passphrase string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	CORSAllowedOrigins string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnvString("HTTP_ADDR", ":"+getEnvString("PORT", "8080")),
			Production:      getEnvString("APP_ENV", "development") == "production",
			LogLevel:        strings.ToLower(getEnvString("LOG_LEVEL", "info")),
			ShutdownTimeout: time.Duration(getEnvInt("SHUTDOWN_TIMEOUT_SECONDS", 10)) * time.Second,
			RequestTimeout:  time.Duration(getEnvIntRange("REQUEST_TIMEOUT_SECONDS", 60, 1, 600)) * time.Second,
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Alpaca: AlpacaConfig{
			APIKey:    os.Getenv("ALPACA_API_KEY"),
			APISecret: os.Getenv("ALPACA_API_SECRET"),
			DataURL:   getEnvString("ALPACA_DATA_URL", "https://data.alpaca.markets"),
			Feed:      getEnvString("ALPACA_FEED", "iex"),
			RateLimit: getEnvInt("ALPACA_RATE_LIMIT", 200),
		},
		Yahoo: YahooConfig{
			Enabled:   getEnvBool("YAHOO_ENABLED", true),
			BaseURL:   getEnvString("YAHOO_BASE_URL", "https://query1.finance.yahoo.com"),
			RateLimit: getEnvInt("YAHOO_RATE_LIMIT", 30),
		},
		Sources: SourcesConfig{
			TimeoutSeconds: getEnvInt("SOURCE_TIMEOUT_SECONDS", 10),
			MaxErrors:      getEnvInt("SOURCE_MAX_ERRORS", 5),
			MockEnabled:    getEnvBool("MOCK_DATA_ENABLED", true),
		},
		Cache: CacheConfig{
			Backend:     strings.ToLower(getEnvString("CACHE_BACKEND", CacheMemory)),
			SQLitePath:  getEnvString("CACHE_SQLITE_PATH", "cache.db"),
			RedisURL:    getEnvString("REDIS_URL", "redis://localhost:6379/0"),
			MemoryItems: getEnvInt("CACHE_MEMORY_ITEMS", 100),
			HistoryTTL:  time.Duration(getEnvInt("CACHE_HISTORY_TTL_MINUTES", 360)) * time.Minute,
			InfoTTL:     time.Duration(getEnvInt("CACHE_INFO_TTL_MINUTES", 1440)) * time.Minute,
			ReportTTL:   time.Duration(getEnvInt("CACHE_REPORT_TTL_SECONDS", 300)) * time.Second,
		},
		LivePoll: LivePollConfig{
			Interval: time.Duration(getEnvInt("LIVE_POLL_INTERVAL_SECONDS", 30)) * time.Second,
		},
		Search: SearchConfig{
			Debounce: time.Duration(getEnvInt("SEARCH_DEBOUNCE_MS", 300)) * time.Millisecond,
			Limit:    getEnvIntRange("SEARCH_LIMIT", 10, 1, 50),
		},
		Scheduler: SchedulerConfig{
			Enabled:         getEnvBool("SCHEDULER_ENABLED", true),
			PurgeSpec:       getEnvString("SCHEDULER_PURGE_SPEC", "@every 15m"),
			SweepSpec:       getEnvString("SCHEDULER_SWEEP_SPEC", "@every 5m"),
			WarmSpec:        getEnvString("SCHEDULER_WARM_SPEC", "*/10 * * * 1-5"),
			SessionIdleTime: time.Duration(getEnvInt("SESSION_IDLE_MINUTES", 30)) * time.Minute,
		},
		Settings: SettingsConfig{
			DataDir:    os.Getenv("SETTINGS_DIR"),
			Passphrase: os.Getenv("SETTINGS_PASSPHRASE"),
		},
		PortfoliosFile: os.Getenv("PORTFOLIOS_FILE"),
		HTTP: HTTPConfig{
			CORSAllowedOrigins: getEnvString("CORS_ALLOWED_ORIGINS", "*"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case CacheMemory, CacheSQLite, CacheRedis:
	case CachePostgres:
		if !c.HasDatabase() {
			return fmt.Errorf("CACHE_BACKEND=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("CACHE_BACKEND must be one of memory, sqlite, postgres, redis; got %q", c.Cache.Backend)
	}

	if c.Sources.TimeoutSeconds <= 0 {
		return fmt.Errorf("SOURCE_TIMEOUT_SECONDS must be positive, got %d", c.Sources.TimeoutSeconds)
	}
	if c.Sources.MaxErrors <= 0 {
		return fmt.Errorf("SOURCE_MAX_ERRORS must be positive, got %d", c.Sources.MaxErrors)
	}
	if c.LivePoll.Interval <= 0 {
		return fmt.Errorf("LIVE_POLL_INTERVAL_SECONDS must be positive, got %s", c.LivePoll.Interval)
	}
	if c.Search.Debounce <= 0 {
		return fmt.Errorf("SEARCH_DEBOUNCE_MS must be positive, got %s", c.Search.Debounce)
	}

	if !c.Yahoo.Enabled && !c.HasAlpaca() && !c.Sources.MockEnabled {
		return fmt.Errorf("no market data source enabled: set YAHOO_ENABLED, ALPACA_API_KEY/ALPACA_API_SECRET or MOCK_DATA_ENABLED")
	}

	return nil
}

// HasDatabase returns true if database configuration is available
func (c *Config) HasDatabase() bool {
	return c.Database.URL != ""
}

// HasAlpaca returns true if Alpaca configuration is available
func (c *Config) HasAlpaca() bool {
	return c.Alpaca.APIKey != "" && c.Alpaca.APISecret != ""
}

// SourceTimeout returns the per-request timeout for market data sources
func (c *Config) SourceTimeout() time.Duration {
	return time.Duration(c.Sources.TimeoutSeconds) * time.Second
}

func getEnvString(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getEnvIntRange(key string, defaultValue, minVal, maxVal int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed >= minVal && parsed <= maxVal {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// NewTestConfig creates a Config with default values for testing
func NewTestConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":0",
			LogLevel:        "info",
			ShutdownTimeout: 5 * time.Second,
			RequestTimeout:  30 * time.Second,
		},
		Alpaca: AlpacaConfig{
			DataURL:   "https://data.alpaca.markets",
			Feed:      "iex",
			RateLimit: 200,
		},
		Yahoo: YahooConfig{
			Enabled:   false,
			BaseURL:   "https://query1.finance.yahoo.com",
			RateLimit: 30,
		},
		Sources: SourcesConfig{
			TimeoutSeconds: 10,
			MaxErrors:      5,
			MockEnabled:    true,
		},
		Cache: CacheConfig{
			Backend:     CacheMemory,
			MemoryItems: 100,
			HistoryTTL:  6 * time.Hour,
			InfoTTL:     24 * time.Hour,
			ReportTTL:   5 * time.Minute,
		},
		LivePoll: LivePollConfig{
			Interval: 30 * time.Second,
		},
		Search: SearchConfig{
			Debounce: 300 * time.Millisecond,
			Limit:    10,
		},
		Scheduler: SchedulerConfig{
			Enabled:         false,
			PurgeSpec:       "@every 15m",
			SweepSpec:       "@every 5m",
			WarmSpec:        "*/10 * * * 1-5",
			SessionIdleTime: 30 * time.Minute,
		},
		HTTP: HTTPConfig{
			CORSAllowedOrigins: "*",
		},
	}
}
