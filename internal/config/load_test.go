package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithRequiredEnv(t *testing.T) {
	// Viper reads the real environment, so no t.Parallel here.
	t.Setenv("ADSCRIBE_LLM_GEMINI_API_KEY", "test-api-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Task.WorkerCount)
	assert.Equal(t, 3, cfg.Task.MaxAttempts)
	assert.Equal(t, 300, cfg.Task.VisibilityTimeoutSeconds)
	assert.Equal(t, 500, cfg.Stream.PollIntervalMillis)
	assert.Equal(t, 60, cfg.Stream.MaxDurationSeconds)
	assert.Equal(t, 3600, cfg.Retention.RecordTTLSeconds)
	assert.Equal(t, "test-api-key", cfg.LLM.GeminiAPIKey)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ADSCRIBE_LLM_GEMINI_API_KEY", "test-api-key")
	t.Setenv("ADSCRIBE_SERVER_PORT", "9090")
	t.Setenv("ADSCRIBE_SERVER_LOG_LEVEL", "debug")
	t.Setenv("ADSCRIBE_TASK_WORKER_COUNT", "8")
	t.Setenv("ADSCRIBE_REDIS_ADDR", "redis:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, 8, cfg.Task.WorkerCount)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
}

func TestLoad_MissingAPIKeyFailsValidation(t *testing.T) {
	t.Setenv("ADSCRIBE_LLM_GEMINI_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestLoad_InvalidLogLevelFailsValidation(t *testing.T) {
	t.Setenv("ADSCRIBE_LLM_GEMINI_API_KEY", "test-api-key")
	t.Setenv("ADSCRIBE_SERVER_LOG_LEVEL", "verbose")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}
