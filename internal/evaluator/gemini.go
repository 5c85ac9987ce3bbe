package evaluator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

const (
	geminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel = "gemini-2.0-flash"
)

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// GeminiLLM calls the Gemini generateContent REST endpoint directly.
type GeminiLLM struct {
	client *resty.Client
	model  string
	apiKey string
}

func NewGeminiLLM(cfg LLMConfig) *GeminiLLM {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = geminiBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiLLM{
		client: resty.New().SetBaseURL(baseURL),
		model:  model,
		apiKey: cfg.APIKey,
	}
}

func (g *GeminiLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	body := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: userPrompt}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     temperature,
			TopP:            0.95,
			MaxOutputTokens: maxOutputTokens,
		},
	}
	if systemPrompt != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}}
	}

	var out geminiResponse
	res, err := g.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetQueryParam("key", g.apiKey).
		SetBody(body).
		SetResult(&out).
		Post(fmt.Sprintf("/models/%s:generateContent", g.model))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: gemini request: %w", ErrEvaluatorTimeout, err)
		}
		return "", fmt.Errorf("%w: gemini request: %w", ErrEvaluatorUnavailable, err)
	}
	if !res.IsSuccess() {
		return "", fmt.Errorf("%w: gemini returned status %d: %s", ErrEvaluatorUnavailable, res.StatusCode(), res.String())
	}

	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: gemini returned no candidates", ErrEvaluatorMalformedOutput)
	}
	var text strings.Builder
	for _, part := range out.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	return text.String(), nil
}
