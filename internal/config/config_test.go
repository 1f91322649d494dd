package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()

	assert.Equal(t, "default", cfg.ProjectID)
	assert.Equal(t, "data/state.json", cfg.StatePath)
	assert.Equal(t, time.Minute, cfg.TickInterval)
	assert.Equal(t, 3, cfg.MaxFailedAttempts)
	assert.False(t, cfg.MockMode)
	assert.Equal(t, 587, cfg.SMTPPort)
}

func TestFromEnvHonorsOverrides(t *testing.T) {
	t.Setenv("CO_PROJECT_ID", "acme")
	t.Setenv("CO_TICK_INTERVAL", "30s")
	t.Setenv("CO_MAX_FAILED_ATTEMPTS", "5")
	t.Setenv("CO_MOCK_MODE", "true")

	cfg := FromEnv()

	assert.Equal(t, "acme", cfg.ProjectID)
	assert.Equal(t, 30*time.Second, cfg.TickInterval)
	assert.Equal(t, 5, cfg.MaxFailedAttempts)
	assert.True(t, cfg.MockMode)
}

func TestFromEnvFallsBackToDefaultOnUnparsableValue(t *testing.T) {
	t.Setenv("CO_MAX_FAILED_ATTEMPTS", "not-a-number")
	t.Setenv("CO_TICK_INTERVAL", "not-a-duration")
	t.Setenv("CO_MOCK_MODE", "not-a-bool")

	cfg := FromEnv()

	assert.Equal(t, 3, cfg.MaxFailedAttempts)
	assert.Equal(t, time.Minute, cfg.TickInterval)
	assert.False(t, cfg.MockMode)
}
