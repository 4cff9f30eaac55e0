package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/robfig/cron/v3"

	pkgconfig "github.com/utafrali/storefront/pkg/config"
)

// Storage backends accepted by STORAGE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

var backends = []string{BackendMemory, BackendRedis, BackendPostgres}

// Config holds all configuration for the storefront service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"STOREFRONT_HTTP_PORT" envDefault:"8012"`

	// Durable key-value store
	StorageBackend       string `env:"STORAGE_BACKEND" envDefault:"memory"`
	StorageTTLHours      int    `env:"STORAGE_TTL_HOURS" envDefault:"720"`
	StoragePurgeSchedule string `env:"STORAGE_PURGE_SCHEDULE" envDefault:"@every 1h"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"storefront"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"storefront"`
	PostgresDB   string `env:"STOREFRONT_DB_NAME" envDefault:"storefront_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Remote catalog services
	CatalogBaseURL    string        `env:"CATALOG_BASE_URL" envDefault:"http://localhost:8080"`
	HTTPClientTimeout time.Duration `env:"HTTP_CLIENT_TIMEOUT" envDefault:"10s"`

	// Kafka; no brokers disables event publishing.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// Sessions
	SessionIdleMinutes   int    `env:"SESSION_IDLE_MINUTES" envDefault:"30"`
	SessionSweepSchedule string `env:"SESSION_SWEEP_SCHEDULE" envDefault:"@every 5m"`
	SessionMax           int    `env:"SESSION_MAX" envDefault:"10000"`

	// Location resolution
	GPSPermissionTimeout time.Duration `env:"GPS_PERMISSION_TIMEOUT" envDefault:"15s"`
	GPSFixTimeout        time.Duration `env:"GPS_FIX_TIMEOUT" envDefault:"15s"`

	// Per-device rate limit; RATE_LIMIT_RPS=0 disables it.
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"40"`

	// Per-client-address limit applied before the device id is read.
	IPRateLimitRPS   float64 `env:"RATE_LIMIT_IP_RPS" envDefault:"100"`
	IPRateLimitBurst int     `env:"RATE_LIMIT_IP_BURST" envDefault:"200"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Pprof debug endpoints (IP allowlist in CIDR notation)
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8,::1/128" envSeparator:","`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if !slices.Contains(backends, c.StorageBackend) {
		return fmt.Errorf("STORAGE_BACKEND must be one of %v, got %q", backends, c.StorageBackend)
	}
	if c.StorageTTLHours < 0 {
		return fmt.Errorf("STORAGE_TTL_HOURS must be >= 0, got %d", c.StorageTTLHours)
	}
	switch c.StorageBackend {
	case BackendRedis:
		if c.RedisPort < 1 || c.RedisPort > 65535 {
			return fmt.Errorf("invalid Redis port: %d", c.RedisPort)
		}
	case BackendPostgres:
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required")
		}
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required")
		}
		if _, err := cron.ParseStandard(c.StoragePurgeSchedule); err != nil {
			return fmt.Errorf("invalid STORAGE_PURGE_SCHEDULE %q: %w", c.StoragePurgeSchedule, err)
		}
	}
	if c.CatalogBaseURL == "" {
		return fmt.Errorf("CATALOG_BASE_URL is required")
	}
	if c.HTTPClientTimeout <= 0 {
		return fmt.Errorf("HTTP_CLIENT_TIMEOUT must be > 0, got %s", c.HTTPClientTimeout)
	}
	if c.SessionIdleMinutes < 0 {
		return fmt.Errorf("SESSION_IDLE_MINUTES must be >= 0, got %d", c.SessionIdleMinutes)
	}
	if c.SessionMax < 1 {
		return fmt.Errorf("SESSION_MAX must be >= 1, got %d", c.SessionMax)
	}
	if _, err := cron.ParseStandard(c.SessionSweepSchedule); err != nil {
		return fmt.Errorf("invalid SESSION_SWEEP_SCHEDULE %q: %w", c.SessionSweepSchedule, err)
	}
	if c.GPSPermissionTimeout <= 0 || c.GPSFixTimeout <= 0 {
		return fmt.Errorf("GPS timeouts must be > 0")
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 || c.IPRateLimitRPS < 0 || c.IPRateLimitBurst < 0 {
		return fmt.Errorf("rate limit settings must be >= 0")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}

// StorageTTL is how long persisted device state survives without a write.
func (c *Config) StorageTTL() time.Duration {
	return time.Duration(c.StorageTTLHours) * time.Hour
}

// SessionIdleTTL is how long an untouched session stays in memory.
func (c *Config) SessionIdleTTL() time.Duration {
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}

// EventsEnabled reports whether domain events go to Kafka.
func (c *Config) EventsEnabled() bool {
	return len(c.KafkaBrokers) > 0
}
