// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	GATEKEEPER_HOST="0.0.0.0"
//	GATEKEEPER_PORT="8080"
//	GATEKEEPER_HEALTH_PORT="9090"
//	GATEKEEPER_READ_TIMEOUT="15s"
//	GATEKEEPER_WRITE_TIMEOUT="15s"
//
// Storage settings:
//
//	GATEKEEPER_POSTGRES_URL="postgres://localhost/gatekeeper"
//	GATEKEEPER_POSTGRES_MAX_CONNS="25"
//	GATEKEEPER_REDIS_URL="redis://localhost:6379/0"
//	GATEKEEPER_REDIS_POOL_SIZE="10"
//
// Provider settings:
//
//	GATEKEEPER_PROVIDER_BASE_URL="https://discord.com/api/v10"
//	GATEKEEPER_BOT_TOKEN="..."
//	GATEKEEPER_PROVIDER_TIMEOUT="500ms"
//
// Gate settings:
//
//	GATEKEEPER_VERIFICATION_TTL="60s"
//	GATEKEEPER_VERIFICATION_RETENTION="10m"
//	GATEKEEPER_CONFIG_CACHE_TTL="30s"
//	GATEKEEPER_SINGLE_FLIGHT="true"
//
// Alerting settings:
//
//	GATEKEEPER_ALERTING_ENABLED="true"
//	GATEKEEPER_ALERTING_SCHEDULE="@every 1m"
//	GATEKEEPER_ALERT_DENIAL_THRESHOLD="50"
//	GATEKEEPER_ALERT_DENIAL_WINDOW="5m"
//
// Observability settings:
//
//	GATEKEEPER_LOG_LEVEL="info"  # debug, info, warn, error
//	GATEKEEPER_METRICS_ENABLED="true"
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
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Log level: %v\n", cfg.Observability.LogLevel)
//
// # Related Packages
//
//   - pkg/gate: Uses gate and provider configuration
//   - pkg/observability: Uses observability configuration
package config
