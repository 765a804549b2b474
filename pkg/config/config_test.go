package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad_ProcessingConfig(t *testing.T) {
	// Setup environment variables
	os.Setenv("AI_DEFAULT_MAX_THREADS", "8")
	os.Setenv("AI_DEFAULT_MAX_RETRIES", "5")
	os.Setenv("AI_REQUEST_TIMEOUT_SECONDS", "30")
	defer func() {
		os.Unsetenv("AI_DEFAULT_MAX_THREADS")
		os.Unsetenv("AI_DEFAULT_MAX_RETRIES")
		os.Unsetenv("AI_REQUEST_TIMEOUT_SECONDS")
	}()

	cfg, err := Load()
	assert.NoError(t, err)

	assert.Equal(t, 8, cfg.Processing.DefaultMaxThreads)
	assert.Equal(t, 5, cfg.Processing.DefaultMaxRetries)
	assert.Equal(t, 30, cfg.Processing.RequestTimeoutSeconds)
}

func TestLoad_Defaults(t *testing.T) {
	os.Unsetenv("AI_DEFAULT_MAX_THREADS")
	os.Unsetenv("AI_DEFAULT_MAX_RETRIES")
	os.Unsetenv("AI_REQUEST_TIMEOUT_SECONDS")
	os.Unsetenv("BATCH_EVENT_CHANNEL_PREFIX")

	cfg, err := Load()
	assert.NoError(t, err)

	assert.Equal(t, 50, cfg.Processing.DefaultMaxThreads)
	assert.Equal(t, 3, cfg.Processing.DefaultMaxRetries)
	assert.Equal(t, 60, cfg.Processing.RequestTimeoutSeconds)
	assert.Equal(t, "batch:", cfg.Processing.EventChannelPrefix)
}

func TestLoad_InvalidProcessingDefaults(t *testing.T) {
	os.Setenv("AI_DEFAULT_MAX_RETRIES", "0")
	defer os.Unsetenv("AI_DEFAULT_MAX_RETRIES")

	_, err := Load()
	assert.Error(t, err)
}
