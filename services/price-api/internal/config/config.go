// Package config loads price-api settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"

	"github.com/paaavkata/market-dashboard/shared/pkg/retry"
)

type Config struct {
	Port            string        `envconfig:"PORT" default:"5000"`
	Environment     string        `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	UserAgent       string        `envconfig:"USER_AGENT" default:"market-dashboard/1.0"`
	StaticDir       string        `envconfig:"STATIC_DIR"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	Baha24URL           string        `envconfig:"BAHA24_URL" default:"https://baha24.com"`
	Baha24Timeout       time.Duration `envconfig:"BAHA24_TIMEOUT" default:"10s"`
	Baha24RetryAttempts int           `envconfig:"BAHA24_RETRY_ATTEMPTS" default:"1"`
	Baha24RetryDelay    time.Duration `envconfig:"BAHA24_RETRY_DELAY" default:"1s"`
	PricesCacheTTL      time.Duration `envconfig:"PRICES_CACHE_TTL" default:"5m"`

	NobitexURL           string        `envconfig:"NOBITEX_URL" default:"https://api.nobitex.ir"`
	NobitexTimeout       time.Duration `envconfig:"NOBITEX_TIMEOUT" default:"10s"`
	NobitexRetryAttempts int           `envconfig:"NOBITEX_RETRY_ATTEMPTS" default:"3"`
	NobitexRetryDelay    time.Duration `envconfig:"NOBITEX_RETRY_DELAY" default:"1s"`
	NobitexCacheTTL      time.Duration `envconfig:"NOBITEX_CACHE_TTL" default:"30s"`
	NobitexRateLimit     int           `envconfig:"NOBITEX_RATE_LIMIT" default:"5"`
	NobitexLocalQuote    string        `envconfig:"NOBITEX_LOCAL_QUOTE" default:"IRT"`

	// ServeStaleOnError lets a pipeline answer with an expired cache slot
	// when its refresh fails. Off by default: expired data is never served.
	ServeStaleOnError bool `envconfig:"SERVE_STALE_ON_ERROR" default:"false"`

	WarmerEnabled       bool   `envconfig:"WARMER_ENABLED" default:"true"`
	PricesWarmSchedule  string `envconfig:"PRICES_WARM_SCHEDULE" default:"@every 4m"`
	NobitexWarmSchedule string `envconfig:"NOBITEX_WARM_SCHEDULE" default:"@every 25s"`
}

// Option is a function that modifies Config
type Option func(*Config) error

// WithEnvFile loads variables from a .env file before the environment is
// processed. A missing file is not an error.
func WithEnvFile(path string) Option {
	return func(c *Config) error {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return fmt.Errorf("failed to load env file: %w", err)
		}
		return nil
	}
}

// Load applies options, processes the environment and validates the result.
func Load(opts ...Option) (*Config, error) {
	var cfg Config

	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	cfg.NobitexLocalQuote = strings.ToUpper(cfg.NobitexLocalQuote)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	for name, urlStr := range map[string]string{
		"Baha24":  c.Baha24URL,
		"Nobitex": c.NobitexURL,
	} {
		if urlStr == "" {
			return fmt.Errorf("%s URL is required", name)
		}
		if _, err := url.ParseRequestURI(urlStr); err != nil {
			return fmt.Errorf("invalid %s URL: %s", name, urlStr)
		}
	}

	if c.PricesCacheTTL <= 0 || c.NobitexCacheTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	if c.Baha24Timeout <= 0 || c.NobitexTimeout <= 0 {
		return fmt.Errorf("upstream timeouts must be positive")
	}
	if c.Baha24RetryAttempts < 1 || c.NobitexRetryAttempts < 1 {
		return fmt.Errorf("retry attempts must be at least 1")
	}
	if c.Baha24RetryDelay < 0 || c.NobitexRetryDelay < 0 {
		return fmt.Errorf("retry delays must not be negative")
	}
	if c.NobitexLocalQuote == "" {
		return fmt.Errorf("nobitex local quote is required")
	}

	if c.WarmerEnabled {
		parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		for name, spec := range map[string]string{
			"prices":  c.PricesWarmSchedule,
			"nobitex": c.NobitexWarmSchedule,
		} {
			if _, err := parser.Parse(spec); err != nil {
				return fmt.Errorf("invalid %s warm schedule %q: %w", name, spec, err)
			}
		}
	}

	return nil
}

func (c *Config) PricesRetryPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: c.Baha24RetryAttempts, BaseDelay: c.Baha24RetryDelay}
}

func (c *Config) NobitexRetryPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: c.NobitexRetryAttempts, BaseDelay: c.NobitexRetryDelay}
}
