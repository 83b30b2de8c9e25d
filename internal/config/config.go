// Package config provides environment-driven configuration for the gateway.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Auth        AuthConfig
	Proxy       ProxyConfig
	Selector    SelectorConfig
	Retention   RetentionConfig
	Metrics     MetricsConfig
	RateLimit   RateLimitConfig
	Logging     LoggingConfig
	LogRotation LogRotationConfig
	Bootstrap   BootstrapConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string
	Port int
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string
}

// AuthConfig holds admin credentials and JWT settings.
type AuthConfig struct {
	AdminUsername string
	AdminPassword string
	JWTSecret     string
	JWTTTL        time.Duration
}

// ProxyConfig holds per-dialect upstream attempt timeouts.
type ProxyConfig struct {
	ChatTimeout       time.Duration
	EmbeddingsTimeout time.Duration
	ImagesTimeout     time.Duration
}

// SelectorConfig holds provider selection settings.
// HealthFilter gates the recent-failure skip described by the
// failover_threshold_* settings; it ships disabled.
type SelectorConfig struct {
	HealthFilter bool
}

// RetentionConfig holds call-log retention settings. Pruning is off
// unless a cron schedule is configured.
type RetentionConfig struct {
	Days     int
	Schedule string
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled   bool
	Namespace string
}

// RateLimitConfig holds the admin-surface rate limit settings. Inference
// traffic is never rate limited.
type RateLimitConfig struct {
	Enabled       bool
	MaxRequests   int
	WindowSeconds int
}

// LoggingConfig holds log level and destination settings.
type LoggingConfig struct {
	Level string
	Dir   string
}

// LogRotationConfig holds log rotation settings powered by lumberjack.
type LogRotationConfig struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// BootstrapConfig points at an optional declarative seed file.
type BootstrapConfig struct {
	File string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		Database: DatabaseConfig{
			Path: "data/llmrelay.db",
		},
		Auth: AuthConfig{
			AdminUsername: "admin",
			AdminPassword: "password",
			JWTSecret:     "change-this-to-a-random-secret-key",
			JWTTTL:        24 * time.Hour,
		},
		Proxy: ProxyConfig{
			ChatTimeout:       300 * time.Second,
			EmbeddingsTimeout: 60 * time.Second,
			ImagesTimeout:     120 * time.Second,
		},
		Selector: SelectorConfig{
			HealthFilter: false,
		},
		Retention: RetentionConfig{
			Days:     30,
			Schedule: "",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "llmrelay",
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			MaxRequests:   120,
			WindowSeconds: 60,
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "logs",
		},
		LogRotation: LogRotationConfig{
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return &ConfigError{Field: "server.port", Message: "must be between 1 and 65535"}
	}
	if c.Database.Path == "" {
		return &ConfigError{Field: "database.path", Message: "must not be empty"}
	}
	if c.Auth.JWTTTL <= 0 {
		return &ConfigError{Field: "auth.jwt_ttl", Message: "must be positive"}
	}
	if c.Proxy.ChatTimeout <= 0 || c.Proxy.EmbeddingsTimeout <= 0 || c.Proxy.ImagesTimeout <= 0 {
		return &ConfigError{Field: "proxy.timeouts", Message: "must be positive"}
	}
	if c.Retention.Days < 1 {
		return &ConfigError{Field: "retention.days", Message: "must be at least 1"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Field + ": " + e.Message
}

// Helper functions for environment variable parsing.

func getEnvStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	lower := strings.ToLower(v)
	return lower == "true" || lower == "1" || lower == "yes" || lower == "on"
}

func getEnvSeconds(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return time.Duration(n) * time.Second
}
