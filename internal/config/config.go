// Package config loads service configuration from the environment once at
// startup. The resulting Config is treated as immutable and injected into the
// components that need it; nothing reads os.Getenv after boot.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Defaults mirror the hosted deployment: 24 polls at 5s bounds convergence
// waiting to roughly two minutes.
const (
	DefaultPort           = "8080"
	DefaultLLMBaseURL     = "https://aipipe.org/openrouter/v1"
	DefaultLLMModel       = "openai/gpt-4.1-nano"
	DefaultGitHubBaseURL  = "https://api.github.com"
	DefaultPollInterval   = 5 * time.Second
	DefaultPollAttempts   = 24
	DefaultWorkerQueueLen = 16
)

// Config carries all externally sourced settings for one process.
type Config struct {
	Port string

	// Shared secret authorizing inbound tasks. Exactly one of Secret or
	// SecretHash (a bcrypt hash of the secret) must be set.
	Secret     string
	SecretHash string

	// Generative text service.
	LLMAPIKey  string
	LLMBaseURL string
	LLMModel   string

	// Artifact repository service.
	GitHubToken   string
	GitHubOwner   string
	GitHubBaseURL string

	// Optional task-run audit store. Empty disables persistence.
	DatabaseURL string

	// Convergence polling cadence.
	PollInterval time.Duration
	PollAttempts int

	// Background dispatch. When true, /handle_task acknowledges immediately
	// and the result is delivered to evaluation_url only.
	BackgroundDispatch bool
	WorkerQueueLen     int

	// JWT signing key for the operator API.
	JWTSecret string
}

// Load reads configuration from the environment and validates required
// settings.
func Load() (*Config, error) {
	cfg := &Config{
		Port:               envOr("PORT", DefaultPort),
		Secret:             os.Getenv("SECRET"),
		SecretHash:         os.Getenv("SECRET_HASH"),
		LLMAPIKey:          os.Getenv("LLM_API_KEY"),
		LLMBaseURL:         envOr("LLM_BASE_URL", DefaultLLMBaseURL),
		LLMModel:           envOr("LLM_MODEL", DefaultLLMModel),
		GitHubToken:        os.Getenv("GITHUB_TOKEN"),
		GitHubOwner:        os.Getenv("GITHUB_OWNER"),
		GitHubBaseURL:      envOr("GITHUB_BASE_URL", DefaultGitHubBaseURL),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		PollInterval:       DefaultPollInterval,
		PollAttempts:       DefaultPollAttempts,
		BackgroundDispatch: os.Getenv("BACKGROUND_DISPATCH") == "true",
		WorkerQueueLen:     DefaultWorkerQueueLen,
		JWTSecret:          os.Getenv("JWT_SECRET"),
	}

	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid POLL_INTERVAL %q: %w", v, err)
		}
		cfg.PollInterval = d
	}
	if v := os.Getenv("POLL_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid POLL_ATTEMPTS %q", v)
		}
		cfg.PollAttempts = n
	}
	if v := os.Getenv("WORKER_QUEUE_LEN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid WORKER_QUEUE_LEN %q", v)
		}
		cfg.WorkerQueueLen = n
	}

	if cfg.Secret == "" && cfg.SecretHash == "" {
		return nil, fmt.Errorf("SECRET or SECRET_HASH environment variable is required")
	}
	if cfg.LLMAPIKey == "" {
		return nil, fmt.Errorf("LLM_API_KEY environment variable is required")
	}
	if cfg.GitHubToken == "" {
		return nil, fmt.Errorf("GITHUB_TOKEN environment variable is required")
	}
	if cfg.GitHubOwner == "" {
		return nil, fmt.Errorf("GITHUB_OWNER environment variable is required")
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
