// Package config provides 12-factor configuration for the jsbench server.
//
// Values come from environment variables with defaults. Each field is read
// from JSBENCH_<SECTION>_<NAME> (for example JSBENCH_HARNESS_POOL_SIZE) and
// falls back to the bare name (POOL_SIZE).
//
// Sections:
//   - Server: HTTP listen address and public base URL for share links
//   - Logging: level and output format
//   - RateLimit: per-IP rate limiting of the HTTP API
//   - Harness: execution context pool and sampling policy
//   - Loader: dependency fetching
//   - Proxy: upstream collaborator endpoints
//   - Preferences: defaults for per-request options
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is the environment variable prefix
const Prefix = "JSBENCH"

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig
	Logging     LogConfig
	RateLimit   RateLimitConfig
	Harness     HarnessConfig
	Loader      LoaderConfig
	Proxy       ProxyConfig
	Preferences PreferencesConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string   `envconfig:"PORT" default:"8080"`
	Host         string   `envconfig:"HOST" default:"0.0.0.0"`
	PublicURL    string   `envconfig:"PUBLIC_URL" default:"http://localhost:8080/"`
	AllowOrigins []string `envconfig:"ALLOW_ORIGINS" default:"*"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
// ProxyRequestsPerSecond caps npm search and publish traffic across all
// clients and applies even when per-IP limiting is disabled.
type RateLimitConfig struct {
	RequestsPerSecond      int  `envconfig:"RATE_LIMIT_RPS" default:"20"`
	Burst                  int  `envconfig:"RATE_LIMIT_BURST" default:"40"`
	Enabled                bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	ProxyRequestsPerSecond int  `envconfig:"RATE_LIMIT_PROXY_RPS" default:"5"`
}

// HarnessConfig holds execution harness configuration.
type HarnessConfig struct {
	PoolSize          int           `envconfig:"POOL_SIZE" default:"4"`
	Timeout           time.Duration `envconfig:"TIMEOUT" default:"60s"`
	MaxCallStackSize  int           `envconfig:"MAX_CALL_STACK" default:"1024"`
	WarmupIterations  int           `envconfig:"WARMUP_ITERATIONS" default:"5"`
	WarmupDuration    time.Duration `envconfig:"WARMUP_DURATION" default:"100ms"`
	MinSampleDuration time.Duration `envconfig:"MIN_SAMPLE_DURATION" default:"500ms"`
	MinBatchDuration  time.Duration `envconfig:"MIN_BATCH_DURATION" default:"10ms"`
	MaxLogEntries     int           `envconfig:"MAX_LOG_ENTRIES" default:"1000"`
}

// LoaderConfig holds dependency fetching configuration.
// AllowedHosts limits which hosts dependencies may be fetched from, matching
// subdomains too; the CDN host is always allowed and "*" allows any host.
type LoaderConfig struct {
	FetchTimeout time.Duration `envconfig:"FETCH_TIMEOUT" default:"15s"`
	FetchRetries int           `envconfig:"FETCH_RETRIES" default:"2"`
	CacheTTL     time.Duration `envconfig:"CACHE_TTL" default:"10m"`
	RateLimit    float64       `envconfig:"FETCH_RATE_LIMIT" default:"20"`
	AllowedHosts []string      `envconfig:"ALLOWED_HOSTS" default:"cdn.jsdelivr.net,esm.sh,unpkg.com,cdnjs.cloudflare.com,ga.jspm.io"`
}

// ProxyConfig holds collaborator endpoints.
type ProxyConfig struct {
	RegistryURL string `envconfig:"REGISTRY_URL" default:"https://registry.npmjs.org"`
	CDNURL      string `envconfig:"CDN_URL" default:"https://cdn.jsdelivr.net/npm"`
	PublishURL  string `envconfig:"PUBLISH_URL"`
}

// PreferencesConfig holds defaults for per-request options.
type PreferencesConfig struct {
	TypeScript bool `envconfig:"TYPESCRIPT" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the engine cannot run with
func (c *Config) Validate() error {
	switch {
	case c.Harness.PoolSize < 1:
		return fmt.Errorf("invalid config: pool size must be at least 1, got %d", c.Harness.PoolSize)
	case c.Harness.Timeout < 0:
		return fmt.Errorf("invalid config: negative harness timeout %s", c.Harness.Timeout)
	case c.Harness.MinSampleDuration <= 0:
		return fmt.Errorf("invalid config: min sample duration must be positive")
	case c.Harness.WarmupIterations < 0:
		return fmt.Errorf("invalid config: negative warmup iterations")
	case c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond < 1:
		return fmt.Errorf("invalid config: rate limit enabled with %d rps", c.RateLimit.RequestsPerSecond)
	case c.Loader.FetchRetries < 0:
		return fmt.Errorf("invalid config: negative fetch retries")
	}
	return nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8080",
			Host:         "0.0.0.0",
			PublicURL:    "http://localhost:8080/",
			AllowOrigins: []string{"*"},
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond:      20,
			Burst:                  40,
			Enabled:                true,
			ProxyRequestsPerSecond: 5,
		},
		Harness: HarnessConfig{
			PoolSize:          4,
			Timeout:           60 * time.Second,
			MaxCallStackSize:  1024,
			WarmupIterations:  5,
			WarmupDuration:    100 * time.Millisecond,
			MinSampleDuration: 500 * time.Millisecond,
			MinBatchDuration:  10 * time.Millisecond,
			MaxLogEntries:     1000,
		},
		Loader: LoaderConfig{
			FetchTimeout: 15 * time.Second,
			FetchRetries: 2,
			CacheTTL:     10 * time.Minute,
			RateLimit:    20,
			AllowedHosts: []string{"cdn.jsdelivr.net", "esm.sh", "unpkg.com", "cdnjs.cloudflare.com", "ga.jspm.io"},
		},
		Proxy: ProxyConfig{
			RegistryURL: "https://registry.npmjs.org",
			CDNURL:      "https://cdn.jsdelivr.net/npm",
		},
	}
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}
