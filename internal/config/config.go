// Package config loads application configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	Auth      AuthConfig
	Scheduler SchedulerConfig
	Sandbox   SandboxConfig
	Catalog   CatalogConfig
	Worker    WorkerConfig
	Tracing   TracingConfig
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string
	Environment string // development, staging, production
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// RedisConfig holds Redis settings.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns the Redis address.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

// AuthConfig holds token signing and API authentication settings.
type AuthConfig struct {
	TokenSecret string
	Issuer      string

	// APIToken authenticates operator clients against the control API.
	// Empty disables the operator surface.
	APIToken string
}

// SchedulerConfig holds schedule evaluator settings.
type SchedulerConfig struct {
	TickInterval  time.Duration // how often enabled schedules are evaluated
	LockTTL       time.Duration // per-schedule advisory lock lifetime
	StaleAfter    time.Duration // running tasks without a heartbeat this old are reclaimed
	SweepInterval time.Duration // how often the stale sweep runs
	DedupWindow   time.Duration // minimum lookback for still-active covered input keys
}

// SandboxConfig holds sandbox runner settings.
type SandboxConfig struct {
	Network     string        // docker network the sandbox attaches to
	ShimVolume  string        // host path or volume name holding the shim binary
	ShimPath    string        // mount point of the shim inside the container
	Timeout     time.Duration // wall-clock limit per run
	TokenGrace  time.Duration // capability token lifetime beyond Timeout
	APIBaseURL  string        // API address as reachable from inside the sandbox
	StderrLines int           // stderr tail lines kept on failure
}

// CatalogConfig holds settings for the object/file catalog API.
type CatalogConfig struct {
	BaseURL      string
	ServiceToken string
	Timeout      time.Duration
}

// WorkerConfig holds task worker pool settings.
type WorkerConfig struct {
	Concurrency       int
	HeartbeatInterval time.Duration
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled  bool
	Endpoint string // OTLP HTTP endpoint
}

// Load reads configuration from environment variables with sane defaults.
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "kat-scheduler"),
			Environment: getEnv("APP_ENV", "development"),
		},
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "kat"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "kat_scheduler"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Auth: AuthConfig{
			TokenSecret: getEnv("AUTH_TOKEN_SECRET", ""),
			Issuer:      getEnv("AUTH_ISSUER", "kat-scheduler"),
			APIToken:    getEnv("AUTH_API_TOKEN", ""),
		},
		Scheduler: SchedulerConfig{
			TickInterval:  getEnvDuration("SCHEDULER_TICK_INTERVAL", time.Minute),
			LockTTL:       getEnvDuration("SCHEDULER_LOCK_TTL", 2*time.Minute),
			StaleAfter:    getEnvDuration("SCHEDULER_STALE_AFTER", 5*time.Minute),
			SweepInterval: getEnvDuration("SCHEDULER_SWEEP_INTERVAL", time.Minute),
			DedupWindow:   getEnvDuration("SCHEDULER_DEDUP_WINDOW", 24*time.Hour),
		},
		Sandbox: SandboxConfig{
			Network:     getEnv("SANDBOX_NETWORK", "kat-sandbox"),
			ShimVolume:  getEnv("SANDBOX_SHIM_VOLUME", "kat-shim"),
			ShimPath:    getEnv("SANDBOX_SHIM_PATH", "/kat/shim"),
			Timeout:     getEnvDuration("SANDBOX_TIMEOUT", 30*time.Minute),
			TokenGrace:  getEnvDuration("SANDBOX_TOKEN_GRACE", 5*time.Minute),
			APIBaseURL:  getEnv("SANDBOX_API_BASE_URL", "http://kat-scheduler:8080"),
			StderrLines: getEnvInt("SANDBOX_STDERR_LINES", 20),
		},
		Catalog: CatalogConfig{
			BaseURL:      getEnv("CATALOG_BASE_URL", "http://localhost:8080"),
			ServiceToken: getEnv("CATALOG_SERVICE_TOKEN", ""),
			Timeout:      getEnvDuration("CATALOG_TIMEOUT", 30*time.Second),
		},
		Worker: WorkerConfig{
			Concurrency:       getEnvInt("WORKER_CONCURRENCY", 10),
			HeartbeatInterval: getEnvDuration("WORKER_HEARTBEAT_INTERVAL", 30*time.Second),
		},
		Tracing: TracingConfig{
			Enabled:  getEnvBool("TRACING_ENABLED", false),
			Endpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Auth.TokenSecret == "" {
		return fmt.Errorf("AUTH_TOKEN_SECRET is required")
	}
	if len(c.Auth.TokenSecret) < 32 {
		return fmt.Errorf("AUTH_TOKEN_SECRET must be at least 32 characters")
	}
	if c.Sandbox.Timeout <= 0 {
		return fmt.Errorf("SANDBOX_TIMEOUT must be positive")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive")
	}
	return nil
}

// IsProduction reports whether the app runs in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
