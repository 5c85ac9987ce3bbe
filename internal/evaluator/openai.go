package evaluator

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultOpenAIModel = "gpt-4o"

type OpenAILLM struct {
	client openai.Client
	model  string
}

func NewOpenAILLM(cfg LLMConfig) *OpenAILLM {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAILLM{client: openai.NewClient(opts...), model: model}
}

func (o *OpenAILLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if len(systemPrompt) > 0 {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	messages = append(messages, openai.UserMessage(userPrompt))

	res, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       o.model,
		Temperature: openai.Float(temperature),
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(res.Choices) == 0 {
		return "", fmt.Errorf("%w: openai returned no choices", ErrEvaluatorMalformedOutput)
	}
	return res.Choices[0].Message.Content, nil
}
