// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings. A .env file in the working directory is
// honored during development.
//
// # Configuration Structure
//
// Server settings:
//
//	DUKABOOK_HOST="0.0.0.0"
//	DUKABOOK_PORT="8080"
//	DUKABOOK_HEALTH_PORT="9090"
//	DUKABOOK_READ_TIMEOUT="15s"
//	DUKABOOK_WRITE_TIMEOUT="15s"
//
// Storage settings:
//
//	DUKABOOK_POSTGRES_URL="postgres://localhost/dukabook"
//	DUKABOOK_POSTGRES_MAX_CONNS="20"
//	DUKABOOK_S3_BUCKET="dukabook-attachments"
//	DUKABOOK_S3_REGION="us-east-1"
//
// Cache settings:
//
//	DUKABOOK_CACHE_ENABLED="true"
//	DUKABOOK_REDIS_URL="redis://localhost:6379"
//	DUKABOOK_REDIS_POOL_SIZE="10"
//
// Auth settings:
//
//	DUKABOOK_JWT_SECRET="..."
//	DUKABOOK_TOKEN_LIFETIME="24h"
//
// Observability settings:
//
//	DUKABOOK_LOG_LEVEL="info"  # debug, info, warn, error
//	DUKABOOK_METRICS_ENABLED="true"
//	DUKABOOK_OTEL_ENABLED="true"
//	DUKABOOK_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Related Packages
//
//   - pkg/storage: Uses storage configuration
//   - pkg/observability: Uses observability configuration
package config
