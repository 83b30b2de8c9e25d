//go:build !integration && !e2e
// +build !integration,!e2e

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/llmrelay/llmrelay/internal/config"
)

func testRotationConfig() config.LogRotationConfig {
	return config.LogRotationConfig{
		MaxSizeMB:  1,
		MaxBackups: 1,
		MaxAgeDays: 1,
		Compress:   false,
	}
}

func TestNewLogger(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := newLogger("INFO", tmpDir, testRotationConfig())
	require.NoError(t, err)
	require.NotNil(t, logger)

	logger.Info("test message")
	_ = logger.Sync()

	_, err = os.Stat(filepath.Join(tmpDir, "llmrelay.log"))
	require.NoError(t, err)
}

func TestNewLoggerLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		logger, err := newLogger(level, t.TempDir(), testRotationConfig())
		require.NoError(t, err, "level %s", level)
		require.NotNil(t, logger)
	}
}

func TestRunInit(t *testing.T) {
	tmpDir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmpDir))
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	require.NoError(t, runInit())

	data, err := os.ReadFile(".env.example")
	require.NoError(t, err)
	require.Contains(t, string(data), "JWT_SECRET_KEY")
}
