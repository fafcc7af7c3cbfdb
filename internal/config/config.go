// Package config loads the engine's configuration from the
// environment, grounded on the teacher's getEnv-with-defaults loader
// shape.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full process configuration.
type Config struct {
	Database    DatabaseConfig
	Redis       RedisConfig
	CRM         CRMConfig
	Coordinator CoordinatorConfig
	Server      ServerConfig
}

// DatabaseConfig is the fast store's Postgres connection.
type DatabaseConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// GetDSN returns a libpq-style connection string, omitting the
// password segment entirely when unset so peer/trust auth still works.
func (c *DatabaseConfig) GetDSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Name, c.SSLMode)
	if c.Password != "" {
		dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}
	return dsn
}

// RedisConfig is the lock manager, counter service and cache layer's
// shared Redis connection.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// CRMConfig is the CRM-of-record HTTP client's connection and
// rate-limiting setup.
type CRMConfig struct {
	BaseURL           string
	APIKey            string
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
}

// CoordinatorConfig carries the recognized coordinator configuration
// options, each corresponding to an environment variable of the same
// name; the durations are given in milliseconds.
type CoordinatorConfig struct {
	SessionLockTTL         time.Duration
	ContactLockTTL         time.Duration
	IdempotencyBucket      time.Duration
	BatchSize              int
	ActivationTick         time.Duration
	ReconcileEveryNTicks   int
	CacheTTLUpcoming       time.Duration
	CacheTTLDefault        time.Duration
	CounterFallbackEnabled bool
}

// ServerConfig is the minimal health/metrics listener; the engine
// itself exposes no bookings HTTP API.
type ServerConfig struct {
	Port string
	Env  string
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Load reads every setting from the environment, falling back to
// development-friendly defaults.
func Load() (*Config, error) {
	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid DB_PORT: %w", err)
	}
	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid REDIS_DB: %w", err)
	}
	crmRPS, err := strconv.ParseFloat(getEnv("CRM_REQUESTS_PER_SECOND", "10"), 64)
	if err != nil {
		return nil, fmt.Errorf("config: invalid CRM_REQUESTS_PER_SECOND: %w", err)
	}
	crmBurst, err := strconv.Atoi(getEnv("CRM_BURST", "20"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid CRM_BURST: %w", err)
	}

	coordinator, err := loadCoordinatorConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			Name:     getEnv("DB_NAME", "examhub"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		CRM: CRMConfig{
			BaseURL:           getEnv("CRM_BASE_URL", ""),
			APIKey:            getEnv("CRM_API_KEY", ""),
			RequestsPerSecond: crmRPS,
			Burst:             crmBurst,
			Timeout:           getEnvDuration("CRM_TIMEOUT_MS", 10*time.Second),
		},
		Coordinator: coordinator,
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Env:  getEnv("ENV", "development"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadCoordinatorConfig() (CoordinatorConfig, error) {
	batchSize, err := strconv.Atoi(getEnv("BATCH_SIZE", "100"))
	if err != nil {
		return CoordinatorConfig{}, fmt.Errorf("config: invalid BATCH_SIZE: %w", err)
	}
	reconcileEvery, err := strconv.Atoi(getEnv("RECONCILE_EVERY_N_TICKS", "30"))
	if err != nil {
		return CoordinatorConfig{}, fmt.Errorf("config: invalid RECONCILE_EVERY_N_TICKS: %w", err)
	}
	return CoordinatorConfig{
		SessionLockTTL:         getEnvDuration("SESSION_LOCK_TTL_MS", 15*time.Second),
		ContactLockTTL:         getEnvDuration("CONTACT_LOCK_TTL_MS", 10*time.Second),
		IdempotencyBucket:      getEnvDuration("IDEMPOTENCY_BUCKET_MS", 5*time.Minute),
		BatchSize:              batchSize,
		ActivationTick:         getEnvDuration("ACTIVATION_TICK_MS", time.Minute),
		ReconcileEveryNTicks:   reconcileEvery,
		CacheTTLUpcoming:       getEnvDuration("CACHE_TTL_UPCOMING_MS", 30*time.Second),
		CacheTTLDefault:        getEnvDuration("CACHE_TTL_DEFAULT_MS", 180*time.Second),
		CounterFallbackEnabled: getEnv("COUNTER_FALLBACK_ENABLED", "true") == "true",
	}, nil
}

// Validate checks that every setting required to reach a live CRM and
// database is present; it does not attempt to connect to either.
func (c *Config) Validate() error {
	var missing []string
	if c.Database.Host == "" {
		missing = append(missing, "DB_HOST")
	}
	if c.CRM.BaseURL == "" {
		missing = append(missing, "CRM_BASE_URL")
	}
	if c.CRM.APIKey == "" {
		missing = append(missing, "CRM_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required settings: %s", strings.Join(missing, ", "))
	}
	if c.Coordinator.BatchSize <= 0 {
		return fmt.Errorf("config: BATCH_SIZE must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return time.Duration(ms) * time.Millisecond
}
