// Package config loads gateway configuration from environment variables.
//
// # Overview
//
// Every setting has a default except the backend URL. An optional .env file
// is read first; variables already in the environment win over it.
//
// # Configuration Structure
//
// Server settings:
//
//	BACKOFFICE_HOST="0.0.0.0"
//	BACKOFFICE_PORT="8080"
//	BACKOFFICE_HEALTH_PORT="9090"
//	BACKOFFICE_ALLOWED_ORIGINS="https://app.example.com,https://admin.example.com"
//	BACKOFFICE_MAX_BODY_BYTES="1048576"
//
// Backend and navigation:
//
//	BACKOFFICE_BACKEND_URL="https://api.example.com/v1"
//	BACKOFFICE_CATALOG_PATH="/etc/backoffice/catalog.yaml"
//	BACKOFFICE_CATALOG_WATCH="true"
//	BACKOFFICE_ROUTE_CACHE_SIZE="256"
//
// Sessions:
//
//	BACKOFFICE_SESSION_IDLE_TTL="30m"
//	BACKOFFICE_REDIS_URL="redis://localhost:6379/0"
//
// Audit:
//
//	BACKOFFICE_AUDIT_DRIVER="postgres"  # postgres, sqlite3 or empty
//	BACKOFFICE_AUDIT_DSN="postgres://localhost/backoffice?sslmode=disable"
//	BACKOFFICE_AUDIT_RETENTION="2160h"
//	BACKOFFICE_AUDIT_ARCHIVE_BUCKET="backoffice-audit"
//
// Observability settings:
//
//	BACKOFFICE_LOG_LEVEL="info"  # debug, info, warn, error
//	BACKOFFICE_METRICS_ENABLED="true"
//	BACKOFFICE_OTEL_ENABLED="true"
//	BACKOFFICE_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
//	if err := config.LoadDotEnv(); err != nil {
//		log.Fatal(err)
//	}
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("Gateway: %s:%s -> %s\n", cfg.Server.Host, cfg.Server.Port, cfg.Backend.BaseURL)
package config
