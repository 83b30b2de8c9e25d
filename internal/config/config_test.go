//go:build !integration && !e2e
// +build !integration,!e2e

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "data/llmrelay.db", cfg.Database.Path)
	assert.Equal(t, 300*time.Second, cfg.Proxy.ChatTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Auth.JWTTTL)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "llmrelay", cfg.Metrics.Namespace)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 120, cfg.RateLimit.MaxRequests)
	assert.False(t, cfg.Selector.HealthFilter)
	assert.Empty(t, cfg.Retention.Schedule)

	require.NoError(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9100")
	t.Setenv("DATABASE_PATH", "/tmp/test.db")
	t.Setenv("ADMIN_PASSWORD", "s3cret")
	t.Setenv("JWT_TTL_HOURS", "2")
	t.Setenv("CHAT_TIMEOUT_SECONDS", "45")
	t.Setenv("SELECTOR_HEALTH_FILTER", "true")
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	t.Setenv("RETENTION_SCHEDULE", "0 3 * * *")
	t.Setenv("METRICS_NAMESPACE", "relay_test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "/tmp/test.db", cfg.Database.Path)
	assert.Equal(t, "s3cret", cfg.Auth.AdminPassword)
	assert.Equal(t, 2*time.Hour, cfg.Auth.JWTTTL)
	assert.Equal(t, 45*time.Second, cfg.Proxy.ChatTimeout)
	assert.Equal(t, 60*time.Second, cfg.Proxy.EmbeddingsTimeout)
	assert.True(t, cfg.Selector.HealthFilter)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, "0 3 * * *", cfg.Retention.Schedule)
	assert.Equal(t, "relay_test", cfg.Metrics.Namespace)
}

func TestLoadIgnoresUnparsableValues(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	t.Setenv("CHAT_TIMEOUT_SECONDS", "-5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 300*time.Second, cfg.Proxy.ChatTimeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"empty db path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"zero jwt ttl", func(c *Config) { c.Auth.JWTTTL = 0 }, "auth.jwt_ttl"},
		{"zero chat timeout", func(c *Config) { c.Proxy.ChatTimeout = 0 }, "proxy.timeouts"},
		{"zero retention", func(c *Config) { c.Retention.Days = 0 }, "retention.days"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			var cerr *ConfigError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.field, cerr.Field)
			assert.Contains(t, err.Error(), "config error: "+tt.field)
		})
	}
}
