package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluationConfigDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Parse[EvaluationConfig]()
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM().Provider)
	assert.Equal(t, "sk-test", cfg.LLM().APIKey)

	orch := cfg.Orchestrator()
	assert.Equal(t, 120*time.Second, orch.RunTimeout)
	assert.Equal(t, 60*time.Second, orch.RoleTimeout)
	assert.Equal(t, 2*time.Second, orch.RetryBackoff)
	assert.Equal(t, 0, orch.MaxConcurrency)
}

func TestEvaluationConfigProviderKeys(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("OPENROUTER_API_KEY", "sk-openrouter")
	t.Setenv("GOOGLE_API_KEY", "google-key")
	t.Setenv("ROLE_TIMEOUT", "5s")

	for provider, key := range map[string]string{
		"OpenRouter": "sk-openrouter",
		"gemini":     "google-key",
		"openai":     "sk-openai",
	} {
		t.Setenv("LLM_PROVIDER", provider)
		cfg, err := Parse[EvaluationConfig]()
		require.NoError(t, err)
		assert.Equal(t, key, cfg.LLM().APIKey, provider)
		assert.Equal(t, 5*time.Second, cfg.Orchestrator().RoleTimeout)
	}
}

func TestParseNestedConfig(t *testing.T) {
	type serverConfig struct {
		Port int `env:"API_PORT" envDefault:"8001"`
		EvaluationConfig
		S3Config
	}

	t.Setenv("S3_BUCKET", "briefs")
	t.Setenv("MAX_CONCURRENCY", "3")

	cfg, err := Parse[serverConfig]()
	require.NoError(t, err)
	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, "briefs", cfg.S3Bucket)
	assert.Equal(t, "us-east-1", cfg.S3Region)
	assert.Equal(t, 3, cfg.MaxConcurrency)

	t.Setenv("EVALUATION_TIMEOUT", "soon")
	_, err = Parse[serverConfig]()
	assert.Error(t, err)
}
