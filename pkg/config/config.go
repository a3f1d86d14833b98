package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/gatekeeper/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// Provider configuration
	Provider ProviderConfig

	// Gate configuration
	Gate GateConfig

	// Alerting configuration
	Alerting AlertingConfig

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
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds shared verification cache settings
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
}

// ProviderConfig holds platform API client settings
type ProviderConfig struct {
	BaseURL        string
	BotToken       string
	RequestTimeout time.Duration
}

// GateConfig holds access-check tuning
type GateConfig struct {
	VerificationTTL       time.Duration
	VerificationRetention time.Duration
	ConfigCacheTTL        time.Duration
	ConfigCacheSize       int
	SingleFlight          bool
}

// AlertingConfig holds denial-pattern alerting settings
type AlertingConfig struct {
	Enabled              bool
	Schedule             string
	DenialSpikeThreshold int
	DenialSpikeWindow    time.Duration
	UnavailableThreshold int
	UnavailableWindow    time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Provider:      loadProviderConfig(),
		Gate:          loadGateConfig(),
		Alerting:      loadAlertingConfig(),
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
		Host:            getEnv("GATEKEEPER_HOST", "0.0.0.0"),
		Port:            getEnv("GATEKEEPER_PORT", "8080"),
		ReadTimeout:     getEnvDuration("GATEKEEPER_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("GATEKEEPER_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("GATEKEEPER_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("GATEKEEPER_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("GATEKEEPER_HEALTH_PORT", "9090"),
	}
}

// loadDatabaseConfig loads PostgreSQL configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:             getEnv("GATEKEEPER_POSTGRES_URL", ""),
		MaxOpenConns:    getEnvInt("GATEKEEPER_POSTGRES_MAX_CONNS", 25),
		MaxIdleConns:    getEnvInt("GATEKEEPER_POSTGRES_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("GATEKEEPER_POSTGRES_CONN_LIFETIME", 5*time.Minute),
	}
}

// loadRedisConfig loads Redis configuration from environment
func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:        getEnv("GATEKEEPER_REDIS_URL", "redis://localhost:6379/0"),
		Password:   getEnv("GATEKEEPER_REDIS_PASSWORD", ""),
		DB:         getEnvInt("GATEKEEPER_REDIS_DB", 0),
		MaxRetries: getEnvInt("GATEKEEPER_REDIS_MAX_RETRIES", 3),
		PoolSize:   getEnvInt("GATEKEEPER_REDIS_POOL_SIZE", 10),
	}
}

// loadProviderConfig loads platform API client configuration from environment
func loadProviderConfig() ProviderConfig {
	return ProviderConfig{
		BaseURL:        getEnv("GATEKEEPER_PROVIDER_BASE_URL", "https://discord.com/api/v10"),
		BotToken:       getEnv("GATEKEEPER_BOT_TOKEN", ""),
		RequestTimeout: getEnvDuration("GATEKEEPER_PROVIDER_TIMEOUT", 500*time.Millisecond),
	}
}

// loadGateConfig loads access-check tuning from environment
func loadGateConfig() GateConfig {
	return GateConfig{
		VerificationTTL:       getEnvDuration("GATEKEEPER_VERIFICATION_TTL", 60*time.Second),
		VerificationRetention: getEnvDuration("GATEKEEPER_VERIFICATION_RETENTION", 10*time.Minute),
		ConfigCacheTTL:        getEnvDuration("GATEKEEPER_CONFIG_CACHE_TTL", 30*time.Second),
		ConfigCacheSize:       getEnvInt("GATEKEEPER_CONFIG_CACHE_SIZE", 10000),
		SingleFlight:          getEnvBool("GATEKEEPER_SINGLE_FLIGHT", true),
	}
}

// loadAlertingConfig loads alerting configuration from environment
func loadAlertingConfig() AlertingConfig {
	return AlertingConfig{
		Enabled:              getEnvBool("GATEKEEPER_ALERTING_ENABLED", true),
		Schedule:             getEnv("GATEKEEPER_ALERTING_SCHEDULE", "@every 1m"),
		DenialSpikeThreshold: getEnvInt("GATEKEEPER_ALERT_DENIAL_THRESHOLD", 50),
		DenialSpikeWindow:    getEnvDuration("GATEKEEPER_ALERT_DENIAL_WINDOW", 5*time.Minute),
		UnavailableThreshold: getEnvInt("GATEKEEPER_ALERT_UNAVAILABLE_THRESHOLD", 10),
		UnavailableWindow:    getEnvDuration("GATEKEEPER_ALERT_UNAVAILABLE_WINDOW", 5*time.Minute),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       observability.ParseLogLevel(getEnv("GATEKEEPER_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("GATEKEEPER_METRICS_ENABLED", true),
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

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("redis URL is required")
	}
	if c.Provider.BotToken == "" {
		return fmt.Errorf("bot token is required")
	}
	if c.Provider.RequestTimeout <= 0 {
		return fmt.Errorf("provider timeout must be positive")
	}

	if c.Gate.VerificationTTL <= 0 {
		return fmt.Errorf("verification TTL must be positive")
	}
	if c.Gate.VerificationRetention < c.Gate.VerificationTTL {
		return fmt.Errorf("verification retention must be at least the verification TTL")
	}
	if c.Gate.ConfigCacheSize <= 0 {
		return fmt.Errorf("config cache size must be positive")
	}

	if c.Alerting.Enabled {
		if c.Alerting.Schedule == "" {
			return fmt.Errorf("alerting schedule is required when alerting is enabled")
		}
		if c.Alerting.DenialSpikeThreshold <= 0 || c.Alerting.UnavailableThreshold <= 0 {
			return fmt.Errorf("alert thresholds must be positive when alerting is enabled")
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

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
