package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/backoffice/pkg/observability"
)

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TEST_VAR_NOT_SET",
			defaultValue: "default",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}
			assert.Equal(t, tt.want, getEnv(tt.key, tt.defaultValue))
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue bool
		want         bool
	}{
		{name: "true", envValue: "true", want: true},
		{name: "TRUE", envValue: "TRUE", want: true},
		{name: "1", envValue: "1", want: true},
		{name: "false", envValue: "false", defaultValue: true, want: false},
		{name: "anything else", envValue: "yes", defaultValue: true, want: false},
		{name: "unset keeps default", defaultValue: true, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_BOOL", tt.envValue)
			assert.Equal(t, tt.want, getEnvBool("TEST_BOOL", tt.defaultValue))
		})
	}
}

func TestGetEnvNumbers(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_INT_BAD", "forty-two")
	t.Setenv("TEST_INT64", "9000000000")
	t.Setenv("TEST_FLOAT", "0.25")
	t.Setenv("TEST_FLOAT_BAD", "quarter")

	assert.Equal(t, 42, getEnvInt("TEST_INT", 1))
	assert.Equal(t, 1, getEnvInt("TEST_INT_BAD", 1))
	assert.Equal(t, 7, getEnvInt("TEST_INT_UNSET", 7))
	assert.Equal(t, int64(9000000000), getEnvInt64("TEST_INT64", 0))
	assert.Equal(t, 0.25, getEnvFloat("TEST_FLOAT", 1))
	assert.Equal(t, 1.0, getEnvFloat("TEST_FLOAT_BAD", 1))
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "90s")
	t.Setenv("TEST_DURATION_BAD", "soon")

	assert.Equal(t, 90*time.Second, getEnvDuration("TEST_DURATION", time.Minute))
	assert.Equal(t, time.Minute, getEnvDuration("TEST_DURATION_BAD", time.Minute))
	assert.Equal(t, time.Minute, getEnvDuration("TEST_DURATION_UNSET", time.Minute))
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("TEST_LIST", " https://a.example.com, ,https://b.example.com ")
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, getEnvList("TEST_LIST"))
	assert.Nil(t, getEnvList("TEST_LIST_UNSET"))
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("BACKOFFICE_BACKEND_URL", "https://api.example.com")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, int64(1<<20), cfg.Server.MaxBodyBytes)
	assert.Equal(t, 15*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 256, cfg.Navigation.RouteCacheSize)
	assert.Equal(t, "backoffice_session", cfg.Session.CookieName)
	assert.True(t, cfg.Session.CookieSecure)
	assert.Equal(t, 30*time.Minute, cfg.Session.IdleTTL)
	assert.Equal(t, 10, cfg.Session.LoginRateLimit)
	assert.Empty(t, cfg.Audit.Driver)
	assert.Equal(t, "audit", cfg.Audit.ArchivePrefix)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.True(t, cfg.Observability.MetricsEnabled)
	assert.False(t, cfg.Observability.OTelEnabled)
	assert.Equal(t, 1.0, cfg.Observability.OTelSampleRatio)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("BACKOFFICE_BACKEND_URL", "http://backend:8000/v1")
	t.Setenv("BACKOFFICE_PORT", "8000")
	t.Setenv("BACKOFFICE_ALLOWED_ORIGINS", "https://app.example.com")
	t.Setenv("BACKOFFICE_CATALOG_PATH", "/etc/backoffice/catalog.yaml")
	t.Setenv("BACKOFFICE_CATALOG_WATCH", "true")
	t.Setenv("BACKOFFICE_SESSION_IDLE_TTL", "10m")
	t.Setenv("BACKOFFICE_REDIS_URL", "redis://localhost:6379/2")
	t.Setenv("BACKOFFICE_AUDIT_DRIVER", "sqlite3")
	t.Setenv("BACKOFFICE_AUDIT_DSN", "file:audit.db")
	t.Setenv("BACKOFFICE_AUDIT_ARCHIVE_BUCKET", "audit-archive")
	t.Setenv("BACKOFFICE_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.AllowedOrigins)
	assert.True(t, cfg.Navigation.WatchCatalog)
	assert.Equal(t, 10*time.Minute, cfg.Session.IdleTTL)
	assert.Equal(t, "redis://localhost:6379/2", cfg.Session.RedisURL)
	assert.Equal(t, "sqlite3", cfg.Audit.Driver)
	assert.Equal(t, "audit-archive", cfg.Audit.ArchiveBucket)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
}

func TestLoadConfigRequiresBackend(t *testing.T) {
	t.Setenv("BACKOFFICE_BACKEND_URL", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend URL is required")
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080", HealthPort: "9090"},
		Backend: BackendConfig{
			BaseURL: "https://api.example.com",
		},
		Session: SessionConfig{CookieName: "backoffice_session", IdleTTL: time.Minute},
		Audit: AuditConfig{
			RetentionMaxAge:   time.Hour,
			RetentionSchedule: "30 3 * * *",
		},
		Observability: ObservabilityConfig{OTelSampleRatio: 1},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "missing port",
			mutate:  func(c *Config) { c.Server.Port = "" },
			wantErr: "server port is required",
		},
		{
			name:    "same ports",
			mutate:  func(c *Config) { c.Server.HealthPort = "8080" },
			wantErr: "must be different",
		},
		{
			name:    "backend without scheme",
			mutate:  func(c *Config) { c.Backend.BaseURL = "api.example.com" },
			wantErr: "invalid backend URL",
		},
		{
			name:    "backend with ftp scheme",
			mutate:  func(c *Config) { c.Backend.BaseURL = "ftp://api.example.com" },
			wantErr: "invalid backend URL",
		},
		{
			name:    "watch without path",
			mutate:  func(c *Config) { c.Navigation.WatchCatalog = true },
			wantErr: "catalog watch requires a catalog path",
		},
		{
			name:    "non-positive idle TTL",
			mutate:  func(c *Config) { c.Session.IdleTTL = 0 },
			wantErr: "idle TTL must be positive",
		},
		{
			name:    "unknown audit driver",
			mutate:  func(c *Config) { c.Audit.Driver = "mysql" },
			wantErr: "invalid audit driver",
		},
		{
			name:    "audit driver without DSN",
			mutate:  func(c *Config) { c.Audit.Driver = "postgres" },
			wantErr: "audit DSN is required",
		},
		{
			name: "bad retention schedule",
			mutate: func(c *Config) {
				c.Audit.Driver = "sqlite3"
				c.Audit.DSN = "file:audit.db"
				c.Audit.RetentionSchedule = "every night"
			},
			wantErr: "invalid audit retention schedule",
		},
		{
			name:    "archive without audit table",
			mutate:  func(c *Config) { c.Audit.ArchiveBucket = "audit" },
			wantErr: "audit archive requires an audit driver",
		},
		{
			name: "otel sample ratio out of range",
			mutate: func(c *Config) {
				c.Observability.OTelEnabled = true
				c.Observability.OTelEndpoint = "localhost:4317"
				c.Observability.OTelServiceName = "backoffice"
				c.Observability.OTelSampleRatio = 1.5
			},
			wantErr: "sample ratio",
		},
		{
			name: "otel without endpoint",
			mutate: func(c *Config) {
				c.Observability.OTelEnabled = true
				c.Observability.OTelServiceName = "backoffice"
			},
			wantErr: "endpoint is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("BACKOFFICE_DOTENV_ONLY=from-file\nBACKOFFICE_DOTENV_SET=from-file\n"), 0o600))

	t.Setenv("BACKOFFICE_DOTENV_SET", "from-env")
	t.Cleanup(func() { os.Unsetenv("BACKOFFICE_DOTENV_ONLY") })

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("BACKOFFICE_DOTENV_ONLY"))
	assert.Equal(t, "from-env", os.Getenv("BACKOFFICE_DOTENV_SET"))
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")))
}

func TestLoadDotEnvMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("BAD-KEY=value\n"), 0o600))

	assert.Error(t, LoadDotEnv(path))
}
