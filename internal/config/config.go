package config

import (
	"fmt"
	"strings"
	"time"

	"creative-backend/internal/evaluator"
	"creative-backend/internal/orchestrator"

	"github.com/caarlos0/env/v11"
)

// EvaluationConfig holds the settings shared by every binary that runs
// evaluations.
type EvaluationConfig struct {
	LLMProvider      string `env:"LLM_PROVIDER" envDefault:"openai"`
	LLMModel         string `env:"LLM_MODEL"`
	LLMBaseURL       string `env:"LLM_BASE_URL"`
	OpenAIAPIKey     string `env:"OPENAI_API_KEY"`
	OpenRouterAPIKey string `env:"OPENROUTER_API_KEY"`
	GoogleAPIKey     string `env:"GOOGLE_API_KEY"`

	EvaluationTimeout time.Duration `env:"EVALUATION_TIMEOUT" envDefault:"120s"`
	RoleTimeout       time.Duration `env:"ROLE_TIMEOUT" envDefault:"60s"`
	RetryBackoff      time.Duration `env:"RETRY_BACKOFF" envDefault:"2s"`
	MaxConcurrency    int           `env:"MAX_CONCURRENCY" envDefault:"0"`

	// RolesFile replaces the built in role registry when set.
	RolesFile    string `env:"ROLES_FILE"`
	OtelEndpoint string `env:"OTEL_ENDPOINT"`
}

func (c EvaluationConfig) apiKey() string {
	switch strings.ToLower(c.LLMProvider) {
	case evaluator.ProviderOpenRouter:
		return c.OpenRouterAPIKey
	case evaluator.ProviderGemini:
		return c.GoogleAPIKey
	default:
		return c.OpenAIAPIKey
	}
}

func (c EvaluationConfig) LLM() evaluator.LLMConfig {
	return evaluator.LLMConfig{
		Provider: strings.ToLower(c.LLMProvider),
		Model:    c.LLMModel,
		APIKey:   c.apiKey(),
		BaseURL:  c.LLMBaseURL,
	}
}

func (c EvaluationConfig) Orchestrator() orchestrator.Config {
	return orchestrator.Config{
		RunTimeout:     c.EvaluationTimeout,
		RoleTimeout:    c.RoleTimeout,
		RetryBackoff:   c.RetryBackoff,
		MaxConcurrency: c.MaxConcurrency,
	}
}

type S3Config struct {
	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
	S3Bucket          string `env:"S3_BUCKET" envDefault:"creative-evaluations"`
}

// Parse reads a config struct from the environment.
func Parse[T any]() (T, error) {
	var cfg T
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("error parsing config: %w", err)
	}
	return cfg, nil
}
