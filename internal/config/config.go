package config

import (
	"fmt"
	"strings"
	"time"

	pkgconfig "github.com/mmtuentertainment/wvwo-storefront-sub002/pkg/config"
)

// Storage backends.
const (
	StorageRedis  = "redis"
	StorageMemory = "memory"
)

// Config holds all configuration for the cart service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"CART_HTTP_PORT" envDefault:"8003"`

	// Snapshot storage
	StorageBackend string `env:"CART_STORAGE_BACKEND" envDefault:"redis"`
	RedisAddr      string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass      string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB        int    `env:"REDIS_DB" envDefault:"0"`
	RedisSlowMS    int    `env:"REDIS_SLOW_COMMAND_MS" envDefault:"50"`

	// Persistence
	StorageKey         string `env:"CART_STORAGE_KEY" envDefault:"wvwo_cart"`
	ExpiryHours        int    `env:"CART_EXPIRY_HOURS" envDefault:"24"`
	PersistDebounceMS  int    `env:"CART_PERSIST_DEBOUNCE_MS" envDefault:"100"`
	SessionIdleMinutes int    `env:"CART_SESSION_IDLE_MINUTES" envDefault:"30"`

	// Store circuit breaker
	BreakerTimeoutSeconds int     `env:"STORE_BREAKER_TIMEOUT_SECONDS" envDefault:"30"`
	BreakerFailureRatio   float64 `env:"STORE_BREAKER_FAILURE_RATIO" envDefault:"0.5"`
	BreakerMinRequests    uint32  `env:"STORE_BREAKER_MIN_REQUESTS" envDefault:"5"`

	// Analytics
	AnalyticsEnabled bool     `env:"ANALYTICS_ENABLED" envDefault:"false"`
	AnalyticsTopic   string   `env:"ANALYTICS_TOPIC" envDefault:"storefront.cart.analytics"`
	KafkaBrokers     []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Rate limiting
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"40"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load cart config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Expiry is the age after which a stored cart is discarded.
func (c *Config) Expiry() time.Duration {
	return time.Duration(c.ExpiryHours) * time.Hour
}

// Debounce is the quiet period before a snapshot write.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.PersistDebounceMS) * time.Millisecond
}

// SessionIdle is how long an unused session engine stays in memory.
func (c *Config) SessionIdle() time.Duration {
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}

// RedisSlowThreshold is the duration above which Redis commands are logged.
func (c *Config) RedisSlowThreshold() time.Duration {
	return time.Duration(c.RedisSlowMS) * time.Millisecond
}

// BreakerTimeout is how long the store breaker stays open.
func (c *Config) BreakerTimeout() time.Duration {
	return time.Duration(c.BreakerTimeoutSeconds) * time.Second
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	switch c.StorageBackend {
	case StorageRedis, StorageMemory:
	default:
		return fmt.Errorf("CART_STORAGE_BACKEND must be %q or %q, got %q", StorageRedis, StorageMemory, c.StorageBackend)
	}
	if strings.TrimSpace(c.StorageKey) == "" {
		return fmt.Errorf("CART_STORAGE_KEY is required")
	}
	if c.ExpiryHours < 1 {
		return fmt.Errorf("CART_EXPIRY_HOURS must be at least 1, got %d", c.ExpiryHours)
	}
	if c.PersistDebounceMS < 1 {
		return fmt.Errorf("CART_PERSIST_DEBOUNCE_MS must be at least 1, got %d", c.PersistDebounceMS)
	}
	if c.SessionIdleMinutes < 1 {
		return fmt.Errorf("CART_SESSION_IDLE_MINUTES must be at least 1, got %d", c.SessionIdleMinutes)
	}
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		return fmt.Errorf("STORE_BREAKER_FAILURE_RATIO must be in (0, 1], got %v", c.BreakerFailureRatio)
	}
	if c.AnalyticsEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when ANALYTICS_ENABLED is set")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %v", c.OTELSampleRate)
	}
	return nil
}
