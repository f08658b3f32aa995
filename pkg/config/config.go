package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/backoffice/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// REST backend the gateway fronts
	Backend BackendConfig

	// Navigation catalog and route tables
	Navigation NavigationConfig

	// Browser sessions and token persistence
	Session SessionConfig

	// Audit trail
	Audit AuditConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	AllowedOrigins []string
	MaxBodyBytes   int64
}

// BackendConfig locates the back-office REST API
type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

// NavigationConfig selects the catalog and sizes the route table cache
type NavigationConfig struct {
	// CatalogPath is a YAML catalog file; empty uses the built-in catalog
	CatalogPath  string
	WatchCatalog bool

	RouteCacheSize int
	RouteCacheTTL  time.Duration
}

// SessionConfig holds gateway session settings
type SessionConfig struct {
	CookieName   string
	CookieSecure bool
	IdleTTL      time.Duration
	MaxSessions  int

	// LoginRateLimit caps login attempts per client IP per minute; 0
	// disables the limit
	LoginRateLimit int

	// Redis keeps bearer tokens across gateway restarts; empty keeps them
	// in memory
	RedisURL      string
	RedisPassword string
	RedisDB       int
}

// AuditConfig selects the audit database and retention
type AuditConfig struct {
	// Driver is "postgres", "sqlite3" or empty to disable the audit table
	Driver string
	DSN    string

	RetentionMaxAge   time.Duration
	RetentionSchedule string

	// Archive pruned rows to S3 when a bucket is set
	ArchiveBucket  string
	ArchivePrefix  string
	S3Region       string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
	OTelSampleRatio    float64
}

// LoadDotEnv loads variables from .env files without overriding the ones
// already set. With no paths it reads ./.env. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Backend:       loadBackendConfig(),
		Navigation:    loadNavigationConfig(),
		Session:       loadSessionConfig(),
		Audit:         loadAuditConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("BACKOFFICE_HOST", "0.0.0.0"),
		Port:            getEnv("BACKOFFICE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("BACKOFFICE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("BACKOFFICE_WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:     getEnvDuration("BACKOFFICE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("BACKOFFICE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("BACKOFFICE_HEALTH_PORT", "9090"),
		AllowedOrigins:  getEnvList("BACKOFFICE_ALLOWED_ORIGINS"),
		MaxBodyBytes:    getEnvInt64("BACKOFFICE_MAX_BODY_BYTES", 1<<20),
	}
}

func loadBackendConfig() BackendConfig {
	return BackendConfig{
		BaseURL: getEnv("BACKOFFICE_BACKEND_URL", ""),
		Timeout: getEnvDuration("BACKOFFICE_BACKEND_TIMEOUT", 15*time.Second),
	}
}

func loadNavigationConfig() NavigationConfig {
	return NavigationConfig{
		CatalogPath:    getEnv("BACKOFFICE_CATALOG_PATH", ""),
		WatchCatalog:   getEnvBool("BACKOFFICE_CATALOG_WATCH", false),
		RouteCacheSize: getEnvInt("BACKOFFICE_ROUTE_CACHE_SIZE", 256),
		RouteCacheTTL:  getEnvDuration("BACKOFFICE_ROUTE_CACHE_TTL", time.Hour),
	}
}

func loadSessionConfig() SessionConfig {
	return SessionConfig{
		CookieName:     getEnv("BACKOFFICE_SESSION_COOKIE", "backoffice_session"),
		CookieSecure:   getEnvBool("BACKOFFICE_SESSION_COOKIE_SECURE", true),
		IdleTTL:        getEnvDuration("BACKOFFICE_SESSION_IDLE_TTL", 30*time.Minute),
		MaxSessions:    getEnvInt("BACKOFFICE_MAX_SESSIONS", 10000),
		LoginRateLimit: getEnvInt("BACKOFFICE_LOGIN_RATE_LIMIT", 10),
		RedisURL:       getEnv("BACKOFFICE_REDIS_URL", ""),
		RedisPassword:  getEnv("BACKOFFICE_REDIS_PASSWORD", ""),
		RedisDB:        getEnvInt("BACKOFFICE_REDIS_DB", 0),
	}
}

func loadAuditConfig() AuditConfig {
	return AuditConfig{
		Driver:            getEnv("BACKOFFICE_AUDIT_DRIVER", ""),
		DSN:               getEnv("BACKOFFICE_AUDIT_DSN", ""),
		RetentionMaxAge:   getEnvDuration("BACKOFFICE_AUDIT_RETENTION", 90*24*time.Hour),
		RetentionSchedule: getEnv("BACKOFFICE_AUDIT_RETENTION_SCHEDULE", "30 3 * * *"),
		ArchiveBucket:     getEnv("BACKOFFICE_AUDIT_ARCHIVE_BUCKET", ""),
		ArchivePrefix:     getEnv("BACKOFFICE_AUDIT_ARCHIVE_PREFIX", "audit"),
		S3Region:          getEnv("BACKOFFICE_S3_REGION", "us-east-1"),
		S3Endpoint:        getEnv("BACKOFFICE_S3_ENDPOINT", ""),
		S3AccessKey:       getEnv("BACKOFFICE_S3_ACCESS_KEY", ""),
		S3SecretKey:       getEnv("BACKOFFICE_S3_SECRET_KEY", ""),
		S3UsePathStyle:    getEnvBool("BACKOFFICE_S3_USE_PATH_STYLE", false),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("BACKOFFICE_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("BACKOFFICE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("BACKOFFICE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("BACKOFFICE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("BACKOFFICE_OTEL_SERVICE_NAME", "backoffice-gateway"),
		OTelServiceVersion: getEnv("BACKOFFICE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("BACKOFFICE_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("BACKOFFICE_OTEL_SAMPLE_RATIO", 1.0),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate backend
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend URL is required")
	}
	if u, err := url.Parse(c.Backend.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid backend URL: %s", c.Backend.BaseURL)
	}

	if c.Navigation.WatchCatalog && c.Navigation.CatalogPath == "" {
		return fmt.Errorf("catalog watch requires a catalog path")
	}

	if c.Session.CookieName == "" {
		return fmt.Errorf("session cookie name is required")
	}
	if c.Session.IdleTTL <= 0 {
		return fmt.Errorf("session idle TTL must be positive")
	}
	if c.Session.LoginRateLimit < 0 {
		return fmt.Errorf("login rate limit cannot be negative")
	}

	// Validate audit config
	switch c.Audit.Driver {
	case "":
	case "postgres", "sqlite3":
		if c.Audit.DSN == "" {
			return fmt.Errorf("audit DSN is required for %s", c.Audit.Driver)
		}
		if c.Audit.RetentionMaxAge <= 0 {
			return fmt.Errorf("audit retention must be positive")
		}
		if _, err := cron.ParseStandard(c.Audit.RetentionSchedule); err != nil {
			return fmt.Errorf("invalid audit retention schedule: %w", err)
		}
	default:
		return fmt.Errorf("invalid audit driver: %s (must be postgres, sqlite3 or empty)", c.Audit.Driver)
	}
	if c.Audit.ArchiveBucket != "" && c.Audit.Driver == "" {
		return fmt.Errorf("audit archive requires an audit driver")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
		if r := c.Observability.OTelSampleRatio; r < 0 || r > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty entries
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
