// Package config loads runtime settings from the environment. Defaults
// favor a developer laptop: reasoning default model, modest token budget and
// three attempts per model before fallback.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/convoflow/convoflow/checkpoint/postgres"
)

// Environment names the deployment tier and drives failure posture:
// production degrades gracefully when the checkpoint database is missing,
// every other tier fails fast so misconfiguration is caught early.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Settings is the full runtime configuration.
type Settings struct {
	Environment Environment

	// LLMAPIKey authenticates against the model provider.
	LLMAPIKey string
	// DefaultModel is the registry entry used until fallback moves on.
	DefaultModel string
	// MaxTokens bounds each model response.
	MaxTokens int64
	// MaxRetries is the per-model attempt cap before circular fallback.
	MaxRetries int
	// RetryMinWait and RetryMaxWait bound the exponential backoff between
	// attempts.
	RetryMinWait time.Duration
	RetryMaxWait time.Duration

	// PostgresURL enables durable checkpointing when set.
	PostgresURL string
}

// FromEnv reads settings from environment variables, applying defaults for
// anything unset.
func FromEnv() (Settings, error) {
	s := Settings{
		Environment:  Environment(envOr("ENVIRONMENT", string(EnvDevelopment))),
		LLMAPIKey:    os.Getenv("LLM_API_KEY"),
		DefaultModel: envOr("DEFAULT_LLM_MODEL", "gpt-5-mini"),
		PostgresURL:  os.Getenv("POSTGRES_URL"),
	}

	switch s.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		return Settings{}, fmt.Errorf("unknown ENVIRONMENT %q", s.Environment)
	}

	maxTokens, err := envInt("MAX_TOKENS", 2000)
	if err != nil {
		return Settings{}, err
	}
	s.MaxTokens = int64(maxTokens)

	s.MaxRetries, err = envInt("MAX_LLM_CALL_RETRIES", 3)
	if err != nil {
		return Settings{}, err
	}

	minWait, err := envInt("RETRY_MIN_WAIT_SECONDS", 2)
	if err != nil {
		return Settings{}, err
	}
	maxWait, err := envInt("RETRY_MAX_WAIT_SECONDS", 10)
	if err != nil {
		return Settings{}, err
	}
	if maxWait < minWait {
		return Settings{}, fmt.Errorf("RETRY_MAX_WAIT_SECONDS (%d) below RETRY_MIN_WAIT_SECONDS (%d)", maxWait, minWait)
	}
	s.RetryMinWait = time.Duration(minWait) * time.Second
	s.RetryMaxWait = time.Duration(maxWait) * time.Second

	return s, nil
}

// CheckpointProfile maps the deployment tier to the checkpoint failure
// posture.
func (s Settings) CheckpointProfile() postgres.Profile {
	if s.Environment == EnvProduction {
		return postgres.ProfileLenient
	}
	return postgres.ProfileStrict
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return n, nil
}
