package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathforge/pathforge-api/internal/config"
)

// These tests mutate process env through t.Setenv, so none of them run in
// parallel.

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("PATHFORGE_DATABASE_URL", "postgres://localhost:5432/pathforge")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, "postgres://localhost:5432/pathforge", cfg.Database.URL)

	assert.Empty(t, cfg.Redis.Addr, "cache is off unless an address is configured")
	assert.Equal(t, 300, cfg.Redis.StatusTTLSeconds)

	assert.Empty(t, cfg.LLM.GeminiAPIKey, "LLM backend is off unless a key is configured")
	assert.Equal(t, "gemini-2.0-flash", cfg.LLM.ModelName)
	assert.Equal(t, 3, cfg.LLM.MaxRetries)
	assert.Equal(t, 2, cfg.LLM.RetryDelaySeconds)

	assert.Equal(t, 10, cfg.Generation.DeadlineSeconds)
	assert.Equal(t, 5, cfg.Generation.TopN)
	assert.InDelta(t, 0.5, cfg.Generation.SynthesizeFloor, 0.0001)
	assert.Equal(t, 3, cfg.Generation.KModule)
	assert.Equal(t, 2, cfg.Generation.KTopic)

	assert.Equal(t, 3, cfg.Queue.MaxRetries)
	assert.Equal(t, 10, cfg.Queue.BatchSize)
	assert.Equal(t, 30, cfg.Queue.BackoffSeconds)
	assert.Equal(t, 50, cfg.Queue.StaleAfterSeconds)
	assert.Equal(t, 168, cfg.Queue.GCRetentionHours)

	assert.InDelta(t, 80, cfg.Frontier.AdvanceThreshold, 0.0001)
}

func TestLoadHonorsEnvironmentOverrides(t *testing.T) {
	t.Setenv("PATHFORGE_DATABASE_URL", "postgres://db:5432/app")
	t.Setenv("PATHFORGE_SERVER_PORT", "9090")
	t.Setenv("PATHFORGE_SERVER_LOG_LEVEL", "debug")
	t.Setenv("PATHFORGE_REDIS_ADDR", "redis:6379")
	t.Setenv("PATHFORGE_REDIS_PASSWORD", "secret")
	t.Setenv("PATHFORGE_LLM_GEMINI_API_KEY", "test-key")
	t.Setenv("PATHFORGE_LLM_MODEL_NAME", "gemini-2.5-pro")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "secret", cfg.Redis.Password)
	assert.Equal(t, "test-key", cfg.LLM.GeminiAPIKey)
	assert.Equal(t, "gemini-2.5-pro", cfg.LLM.ModelName)
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("PATHFORGE_DATABASE_URL", "")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestLoadRejectsInvalidLogLevel(t *testing.T) {
	t.Setenv("PATHFORGE_DATABASE_URL", "postgres://localhost:5432/pathforge")
	t.Setenv("PATHFORGE_SERVER_LOG_LEVEL", "verbose")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}
