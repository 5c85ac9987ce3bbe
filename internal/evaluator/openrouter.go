package evaluator

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	openRouterBaseURL      = "https://openrouter.ai/api/v1"
	defaultOpenRouterModel = "anthropic/claude-3.5-sonnet"
)

// OpenRouterLLM talks to OpenRouter through its OpenAI compatible API.
type OpenRouterLLM struct {
	client *openai.LLM
}

func NewOpenRouterLLM(cfg LLMConfig) (*OpenRouterLLM, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openRouterBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenRouterModel
	}

	client, err := openai.New(openai.WithToken(cfg.APIKey), openai.WithModel(model), openai.WithBaseURL(baseURL))
	if err != nil {
		return nil, fmt.Errorf("could not create openrouter client: %w", err)
	}
	return &OpenRouterLLM{client: client}, nil
}

func (o *OpenRouterLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	res, err := o.client.GenerateContent(ctx, messages, llms.WithTemperature(temperature), llms.WithMaxTokens(maxOutputTokens))
	if err != nil {
		return "", fmt.Errorf("openrouter generation failed: %w", err)
	}
	if len(res.Choices) == 0 {
		return "", fmt.Errorf("%w: openrouter returned no choices", ErrEvaluatorMalformedOutput)
	}
	return res.Choices[0].Content, nil
}
