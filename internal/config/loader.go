package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
)

// Load builds the configuration from defaults overridden by environment
// variables. A .env file in the working directory is loaded first if present;
// real environment variables always win over .env entries.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Server.Host = getEnvStr("HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("PORT", cfg.Server.Port)

	cfg.Database.Path = getEnvStr("DATABASE_PATH", cfg.Database.Path)

	cfg.Auth.AdminUsername = getEnvStr("ADMIN_USERNAME", cfg.Auth.AdminUsername)
	cfg.Auth.AdminPassword = getEnvStr("ADMIN_PASSWORD", cfg.Auth.AdminPassword)
	cfg.Auth.JWTSecret = getEnvStr("JWT_SECRET_KEY", cfg.Auth.JWTSecret)
	if hours := getEnvInt("JWT_TTL_HOURS", 0); hours > 0 {
		cfg.Auth.JWTTTL = time.Duration(hours) * time.Hour
	}

	cfg.Proxy.ChatTimeout = getEnvSeconds("CHAT_TIMEOUT_SECONDS", cfg.Proxy.ChatTimeout)
	cfg.Proxy.EmbeddingsTimeout = getEnvSeconds("EMBEDDINGS_TIMEOUT_SECONDS", cfg.Proxy.EmbeddingsTimeout)
	cfg.Proxy.ImagesTimeout = getEnvSeconds("IMAGES_TIMEOUT_SECONDS", cfg.Proxy.ImagesTimeout)

	cfg.Selector.HealthFilter = getEnvBool("SELECTOR_HEALTH_FILTER", cfg.Selector.HealthFilter)

	cfg.Retention.Days = getEnvInt("RETENTION_DAYS", cfg.Retention.Days)
	cfg.Retention.Schedule = getEnvStr("RETENTION_SCHEDULE", cfg.Retention.Schedule)

	cfg.Metrics.Enabled = getEnvBool("METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.Namespace = getEnvStr("METRICS_NAMESPACE", cfg.Metrics.Namespace)

	cfg.RateLimit.Enabled = getEnvBool("RATE_LIMIT_ENABLED", cfg.RateLimit.Enabled)
	cfg.RateLimit.MaxRequests = getEnvInt("RATE_LIMIT_MAX_REQUESTS", cfg.RateLimit.MaxRequests)
	cfg.RateLimit.WindowSeconds = getEnvInt("RATE_LIMIT_WINDOW_SECONDS", cfg.RateLimit.WindowSeconds)

	cfg.Logging.Level = getEnvStr("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Dir = getEnvStr("LOGS_DIR", cfg.Logging.Dir)

	cfg.LogRotation.MaxSizeMB = getEnvInt("LOG_MAX_SIZE_MB", cfg.LogRotation.MaxSizeMB)
	cfg.LogRotation.MaxBackups = getEnvInt("LOG_MAX_BACKUPS", cfg.LogRotation.MaxBackups)
	cfg.LogRotation.MaxAgeDays = getEnvInt("LOG_MAX_AGE_DAYS", cfg.LogRotation.MaxAgeDays)
	cfg.LogRotation.Compress = getEnvBool("LOG_COMPRESS", cfg.LogRotation.Compress)

	cfg.Bootstrap.File = getEnvStr("BOOTSTRAP_FILE", cfg.Bootstrap.File)
}
