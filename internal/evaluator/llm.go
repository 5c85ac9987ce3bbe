package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"creative-backend/internal/core"
	"creative-backend/pkg/api"
)

// LLM is a single-turn text generation backend.
type LLM interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

const (
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"

	temperature     = 0.7
	maxOutputTokens = 8192
)

type LLMConfig struct {
	Provider string
	Model    string
	APIKey   string
	// BaseURL overrides the provider endpoint, mostly for tests and proxies.
	BaseURL string
}

func NewLLM(cfg LLMConfig) (LLM, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("no api key configured for provider '%s'", cfg.Provider)
	}
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		return NewOpenAILLM(cfg), nil
	case ProviderOpenRouter:
		return NewOpenRouterLLM(cfg)
	case ProviderGemini:
		return NewGeminiLLM(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider '%s'", cfg.Provider)
	}
}

// LLMEvaluator evaluates a role by prompting an LLM with the role persona and
// the framework layers in its remit.
type LLMEvaluator struct {
	llm LLM
}

func NewLLMEvaluator(llm LLM) *LLMEvaluator {
	return &LLMEvaluator{llm: llm}
}

func (e *LLMEvaluator) Evaluate(ctx context.Context, role core.RoleDefinition, req Request) (api.RoleResult, error) {
	start := time.Now()

	content, err := e.llm.Generate(ctx, role.SystemPrompt(), BuildPrompt(role, req))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && err != ctxErr {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		slog.Error("evaluator request failed", "role", role.Name, "brief", summaryInput(req.Input), "error", err)
		return api.RoleResult{}, Classify(err)
	}

	result, err := ParseResponse(role, content)
	if err != nil {
		slog.Error("error parsing evaluator response", "role", role.Name, "error", err)
		return api.RoleResult{}, err
	}

	slog.Info("role evaluated", "role", role.Name, "verdict", result.Verdict, "duration", time.Since(start))
	return result, nil
}
