package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, "saga-coordinator", cfg.AppID)
	assert.Equal(t, "saga-pubsub", cfg.PubsubName)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.ReprocessInterval)
	assert.False(t, cfg.UseMemoryStore)
}

func TestLoad_RespectsOverrides(t *testing.T) {
	t.Setenv("DAPR_APP_ID", "custom-app")
	t.Setenv("SAGA_MAX_ATTEMPTS", "7")
	t.Setenv("STORE_BACKEND", "memory")

	cfg := Load()
	assert.Equal(t, "custom-app", cfg.AppID)
	assert.Equal(t, 7, cfg.MaxAttempts)
	assert.True(t, cfg.UseMemoryStore)
}

func TestGetEnvInt_FallsBackOnInvalidValue(t *testing.T) {
	t.Setenv("SAGA_MAX_ATTEMPTS", "not-a-number")
	assert.Equal(t, 3, getEnvInt("SAGA_MAX_ATTEMPTS", 3))
}
