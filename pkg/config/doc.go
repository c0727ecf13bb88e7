// Package config loads agent configuration from environment variables.
//
// # Overview
//
// Every setting has a default; LoadConfig parses PPAC_ prefixed variables
// with caarlos0/env and validates the result.
//
// # Configuration Structure
//
// Server settings:
//
//	PPAC_HOST="127.0.0.1"
//	PPAC_PORT="8080"
//	PPAC_HEALTH_PORT="9090"
//	PPAC_SHUTDOWN_TIMEOUT="30s"
//
// Storage settings (see storage.Config):
//
//	PPAC_STORAGE_TYPE="filesystem"  # memory, filesystem, redis, sql, badger, s3
//	PPAC_STORAGE_FILESYSTEM_ROOT="/var/lib/ppac"
//	PPAC_STORAGE_REDIS_URL="redis://localhost:6379"
//	PPAC_STORAGE_SQL_DRIVER="postgres"
//	PPAC_STORAGE_SQL_DSN="postgres://localhost/ppac"
//	PPAC_STORAGE_S3_BUCKET="ppac-analytics"
//	PPAC_STORAGE_CACHE_SIZE="64"
//
// Submission settings:
//
//	PPAC_SUBMISSION_ENDPOINT="https://ppa.example.org/version/v1/data"
//	PPAC_SUBMISSION_ENCODING="json"  # json, protobuf
//	PPAC_SUBMISSION_SCHEDULE="@every 1h"
//	PPAC_SUBMISSION_DEFERRED_CATEGORIES="exposureWindowsMetadata"
//
// Authentication settings:
//
//	PPAC_AUTH_MODE="oauth2"  # static, oauth2
//	PPAC_AUTH_ISSUER_URL="https://auth.example.org/realms/ppa"
//	PPAC_AUTH_CLIENT_ID="agent"
//	PPAC_AUTH_CLIENT_SECRET="..."
//
// Submission parameters:
//
//	PPAC_APPCONFIG_SOURCE="file"  # static, file
//	PPAC_APPCONFIG_FILE="/etc/ppac/appconfig.yaml"
//	PPAC_APPCONFIG_SUBMISSION_PROBABILITY="0.5"
//
// Observability settings:
//
//	PPAC_LOG_LEVEL="info"  # debug, info, warn, error
//	PPAC_LOG_FORMAT="json"  # json, text
//	PPAC_METRICS_ENABLED="true"
//	PPAC_OTEL_ENABLED="true"
//	PPAC_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
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
