package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoflow/convoflow/checkpoint/postgres"
)

func TestFromEnv_Defaults(t *testing.T) {
	s, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, s.Environment)
	assert.Equal(t, "gpt-5-mini", s.DefaultModel)
	assert.Equal(t, int64(2000), s.MaxTokens)
	assert.Equal(t, 3, s.MaxRetries)
	assert.Equal(t, 2*time.Second, s.RetryMinWait)
	assert.Equal(t, 10*time.Second, s.RetryMaxWait)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("DEFAULT_LLM_MODEL", "gpt-4o")
	t.Setenv("MAX_TOKENS", "512")
	t.Setenv("MAX_LLM_CALL_RETRIES", "5")
	t.Setenv("RETRY_MIN_WAIT_SECONDS", "1")
	t.Setenv("RETRY_MAX_WAIT_SECONDS", "20")

	s, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, EnvProduction, s.Environment)
	assert.Equal(t, "gpt-4o", s.DefaultModel)
	assert.Equal(t, int64(512), s.MaxTokens)
	assert.Equal(t, 5, s.MaxRetries)
	assert.Equal(t, time.Second, s.RetryMinWait)
	assert.Equal(t, 20*time.Second, s.RetryMaxWait)
}

func TestFromEnv_RejectsInvalidValues(t *testing.T) {
	t.Setenv("ENVIRONMENT", "canary")
	_, err := FromEnv()
	assert.Error(t, err)

	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("MAX_TOKENS", "lots")
	_, err = FromEnv()
	assert.Error(t, err)

	t.Setenv("MAX_TOKENS", "2000")
	t.Setenv("RETRY_MIN_WAIT_SECONDS", "30")
	t.Setenv("RETRY_MAX_WAIT_SECONDS", "10")
	_, err = FromEnv()
	assert.Error(t, err, "max wait below min wait must be rejected")
}

func TestCheckpointProfile(t *testing.T) {
	assert.Equal(t, postgres.ProfileLenient, Settings{Environment: EnvProduction}.CheckpointProfile())
	assert.Equal(t, postgres.ProfileStrict, Settings{Environment: EnvStaging}.CheckpointProfile())
	assert.Equal(t, postgres.ProfileStrict, Settings{Environment: EnvDevelopment}.CheckpointProfile())
}
