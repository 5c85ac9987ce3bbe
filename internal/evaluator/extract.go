package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"creative-backend/internal/core"
	"creative-backend/internal/core/utils"
	"creative-backend/pkg/api"
)

const (
	MaxExtractChars = 15000

	extractionSystemPrompt = "You are a data extraction specialist. Output only valid JSON."
)

const extractionInstructions = `The document is a marketing brief or creative asset.
Extract the following fields into a JSON object:

- brand_name (String)
- category (String, e.g. "Automotive", "CPG")
- campaign_objective (One of: %s)
- target_audience (String, detailed description)
- brand_status (One of: %s)
- market_context (Object with fields):
    - market_maturity (One of: %s)
    - category_clutter (One of: %s)
    - purchase_frequency (One of: %s)
    - decision_involvement (One of: %s)
- primary_channels (List of strings, e.g. "TV", "Social", "OOH")
- creative_description (String, concise summary of the creative idea or execution if mentioned)

If a field is not explicitly stated, infer it from context.
If you absolutely cannot infer it, leave it as null.

Respond ONLY with valid JSON.`

type extractedMarketContext struct {
	MarketMaturity      *string `json:"market_maturity"`
	CategoryClutter     *string `json:"category_clutter"`
	PurchaseFrequency   *string `json:"purchase_frequency"`
	DecisionInvolvement *string `json:"decision_involvement"`
}

type extractedBrief struct {
	BrandName           *string                 `json:"brand_name"`
	Category            *string                 `json:"category"`
	CampaignObjective   *string                 `json:"campaign_objective"`
	TargetAudience      *string                 `json:"target_audience"`
	BrandStatus         *string                 `json:"brand_status"`
	MarketContext       *extractedMarketContext `json:"market_context"`
	PrimaryChannels     []string                `json:"primary_channels"`
	CreativeDescription *string                 `json:"creative_description"`
}

func quoted(values ...string) string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = fmt.Sprintf("%q", v)
	}
	return strings.Join(out, ", ")
}

func buildExtractionPrompt(text string) string {
	levels := quoted(api.LevelLow, api.LevelMedium, api.LevelHigh)

	var b strings.Builder
	b.WriteString("You are a smart assistant that extracts structured marketing brief data from documents.\n\n")
	b.WriteString("DOCUMENT TEXT:\n")
	b.WriteString(utils.TruncateText(text, MaxExtractChars))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, extractionInstructions,
		quoted(api.ObjectiveLongTerm, api.ObjectiveShortTerm, api.ObjectiveMixed),
		quoted(api.BrandStatusMarketLeader, api.BrandStatusStrongChallenger, api.BrandStatusEmerging, api.BrandStatusGrowthBrand, api.BrandStatusNewOrLowAwareness),
		quoted(api.MaturityMature, api.MaturityGrowing, api.MaturityEmerging),
		levels, levels, levels,
	)
	return b.String()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func (e extractedBrief) toInput() api.EvaluationInput {
	input := api.EvaluationInput{
		BrandName:         deref(e.BrandName),
		Category:          deref(e.Category),
		CampaignObjective: deref(e.CampaignObjective),
		TargetAudience:    deref(e.TargetAudience),
		BrandStatus:       deref(e.BrandStatus),
	}
	for _, channel := range e.PrimaryChannels {
		if channel = strings.TrimSpace(channel); channel != "" {
			input.PrimaryChannels = append(input.PrimaryChannels, channel)
		}
	}
	if mc := e.MarketContext; mc != nil {
		input.MarketContext = &api.MarketContext{
			MarketMaturity:      deref(mc.MarketMaturity),
			CategoryClutter:     deref(mc.CategoryClutter),
			PurchaseFrequency:   deref(mc.PurchaseFrequency),
			DecisionInvolvement: deref(mc.DecisionInvolvement),
		}
	}
	if desc := deref(e.CreativeDescription); desc != "" {
		input.Creative = &api.CreativeAsset{Description: desc}
	}
	return core.NormalizeInput(input)
}

// ExtractBrief asks llm to fill an evaluation form from free text. Fields the
// model cannot infer are left empty so the caller can validate and prompt for
// them.
func ExtractBrief(ctx context.Context, llm LLM, text string) (api.EvaluationInput, error) {
	if strings.TrimSpace(text) == "" {
		return api.EvaluationInput{}, fmt.Errorf("no document text to extract from")
	}

	content, err := llm.Generate(ctx, extractionSystemPrompt, buildExtractionPrompt(text))
	if err != nil {
		slog.Error("brief extraction request failed", "error", err)
		return api.EvaluationInput{}, Classify(err)
	}

	var brief extractedBrief
	body := stripFences(content)
	if err := json.Unmarshal([]byte(body), &brief); err != nil {
		match := jsonObjectRe.FindString(body)
		if match == "" || json.Unmarshal([]byte(match), &brief) != nil {
			slog.Error("error parsing extracted brief", "error", err)
			return api.EvaluationInput{}, fmt.Errorf("%w: extracted brief is not a JSON object: %w", ErrEvaluatorMalformedOutput, err)
		}
	}

	input := brief.toInput()
	slog.Info("extracted brief from document", "brief", summaryInput(input))
	return input, nil
}
