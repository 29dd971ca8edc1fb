// Package config loads the forecast proxy configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/Sternrassler/request-cache/pkg/cache"
	"github.com/Sternrassler/request-cache/pkg/client"
	"github.com/Sternrassler/request-cache/pkg/logging"
	"github.com/Sternrassler/request-cache/pkg/warmup"
)

// Config holds all application configuration.
type Config struct {
	Cache  CacheConfig
	Fetch  FetchConfig
	Server ServerConfig
	Warmup WarmupConfig
	Log    LogConfig
}

// CacheConfig selects the expiration policy and store.
type CacheConfig struct {
	Policy     string `env:"CACHE_POLICY" envDefault:"rolling"`
	TTLSeconds int    `env:"CACHE_TIME" envDefault:"600"`
	ResetHours []int  `env:"CACHE_RESET_HOURS" envSeparator:","`

	// RedisURL enables the shared Redis store when set (host:port).
	RedisURL  string `env:"REDIS_URL"`
	KeyPrefix string `env:"CACHE_KEY_PREFIX" envDefault:"requestcache"`
}

// FetchConfig configures the upstream fetcher and its retry budget.
type FetchConfig struct {
	UserAgent     string        `env:"USER_AGENT" envDefault:"forecast-proxy/0.1.0"`
	Timeout       time.Duration `env:"FETCH_TIMEOUT" envDefault:"30s"`
	RetryAttempts int           `env:"RETRY_ATTEMPTS" envDefault:"3"`
	RetryDelay    time.Duration `env:"RETRY_DELAY" envDefault:"10s"`
	BaseURL       string        `env:"UPSTREAM_BASE_URL" envDefault:"https://servizos.meteogalicia.gal/rss/predicion"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port string `env:"PORT" envDefault:"8080"`
}

// WarmupConfig lists place codes fetched at startup.
type WarmupConfig struct {
	Places      []string      `env:"WARMUP_PLACES" envSeparator:","`
	Concurrency int           `env:"WARMUP_CONCURRENCY" envDefault:"4"`
	Timeout     time.Duration `env:"WARMUP_TIMEOUT" envDefault:"2m"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Pretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom reads configuration from the given variables instead of the
// process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values the parser cannot.
func (c *Config) Validate() error {
	if _, err := c.Policy(); err != nil {
		return fmt.Errorf("invalid cache policy: %w", err)
	}
	if c.Fetch.RetryAttempts < 1 {
		return fmt.Errorf("RETRY_ATTEMPTS must be >= 1, got %d", c.Fetch.RetryAttempts)
	}
	if c.Fetch.RetryDelay < 0 {
		return fmt.Errorf("RETRY_DELAY must not be negative, got %v", c.Fetch.RetryDelay)
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive, got %v", c.Fetch.Timeout)
	}
	if c.Warmup.Concurrency < 1 {
		return fmt.Errorf("WARMUP_CONCURRENCY must be >= 1, got %d", c.Warmup.Concurrency)
	}
	if c.Server.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	return nil
}

// Policy builds the configured expiration policy.
func (c *Config) Policy() (cache.ExpirationPolicy, error) {
	return cache.ParsePolicy(
		c.Cache.Policy,
		time.Duration(c.Cache.TTLSeconds)*time.Second,
		c.Cache.ResetHours,
	)
}

// HTTPFetcherConfig returns the fetcher configuration.
func (c *Config) HTTPFetcherConfig() client.Config {
	return client.Config{
		UserAgent: c.Fetch.UserAgent,
		Timeout:   c.Fetch.Timeout,
	}
}

// RetryConfig returns the retry configuration.
func (c *Config) RetryConfig() client.RetryConfig {
	return client.RetryConfig{
		MaxAttempts: c.Fetch.RetryAttempts,
		Delay:       c.Fetch.RetryDelay,
	}
}

// FlightTimeout bounds one shared cache refresh: every attempt may take the
// full fetch timeout and is followed by a delay, plus one fetch timeout of
// slack.
func (c *Config) FlightTimeout() time.Duration {
	perAttempt := c.Fetch.Timeout + c.Fetch.RetryDelay
	return time.Duration(c.Fetch.RetryAttempts)*perAttempt + c.Fetch.Timeout
}

// WarmupConfig returns the warmer configuration.
func (c *Config) WarmupConfig() warmup.Config {
	return warmup.Config{
		MaxConcurrency: c.Warmup.Concurrency,
		Timeout:        c.Warmup.Timeout,
	}
}

// LoggingConfig returns the logger configuration.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.Log.Level
	cfg.Pretty = c.Log.Pretty
	cfg.Service = "forecast-proxy"
	return cfg
}

// UsesRedis reports whether the shared Redis store is configured.
func (c *Config) UsesRedis() bool {
	return c.Cache.RedisURL != ""
}
