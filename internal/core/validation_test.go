package core

import (
	"strings"
	"testing"

	"creative-backend/pkg/api"

	"github.com/stretchr/testify/assert"
)

func completeInput() api.EvaluationInput {
	return api.EvaluationInput{
		BrandName:         "Acme",
		Category:          "Snacks",
		CampaignObjective: api.ObjectiveMixed,
		PrimaryChannels:   []string{"Social"},
		TargetAudience:    "Students aged 18-24 snacking between lectures and late study sessions",
		BrandStatus:       api.BrandStatusEmerging,
		MarketContext: &api.MarketContext{
			MarketMaturity:      api.MaturityGrowing,
			CategoryClutter:     api.LevelMedium,
			PurchaseFrequency:   api.LevelHigh,
			DecisionInvolvement: api.LevelLow,
		},
		Creative:           &api.CreativeAsset{Description: strings.Repeat("x", MinCreativeDescription)},
		CompetitiveContext: &api.CompetitiveContext{CompetitiveNoise: api.LevelHigh},
		LocalFactors:       &api.LocalFactors{CulturalNotes: "Exam season"},
	}
}

func TestValidateComplete(t *testing.T) {
	result := Validate(completeInput())
	assert.True(t, result.Valid)
	assert.True(t, result.ReadyToEvaluate)
	assert.Empty(t, result.MissingFields)
	assert.Empty(t, result.IncompleteFields)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, "All required inputs provided. Ready to evaluate.", ValidationSummary(result))
}

func TestValidateMissingFields(t *testing.T) {
	result := Validate(api.EvaluationInput{PrimaryChannels: []string{" "}})
	assert.False(t, result.ReadyToEvaluate)
	assert.ElementsMatch(t, []string{
		"brand_name", "category", "campaign_objective", "primary_channels",
		"target_audience", "brand_status", "market_context", "creative",
	}, result.MissingFields)
	assert.Len(t, result.Warnings, 2)
	assert.Contains(t, ValidationSummary(result), "missing required fields: Brand Name, Category")
}

func TestValidateIncompleteFields(t *testing.T) {
	input := completeInput()
	input.Creative.Description = "Too short"
	input.TargetAudience = "Students"
	input.BrandStatus = "Incumbent"
	input.MarketContext.CategoryClutter = ""

	result := Validate(input)
	assert.False(t, result.Valid)
	assert.False(t, result.ReadyToEvaluate)
	assert.Empty(t, result.MissingFields)
	assert.ElementsMatch(t, []string{"creative", "target_audience", "brand_status", "market_context.category_clutter"}, result.IncompleteFields)
	assert.Contains(t, strings.Join(result.Warnings, "\n"), "Invalid value 'Incumbent' for brand_status")
}

func TestValidateCreativeFileSatisfiesDescription(t *testing.T) {
	input := completeInput()
	input.Creative = &api.CreativeAsset{FilePath: "uploads/storyboard.pdf", FileType: "pdf"}
	assert.True(t, Validate(input).ReadyToEvaluate)
}

func TestNormalizeInput(t *testing.T) {
	input := completeInput()
	input.CampaignObjective = "SHORT-TERM ACTIVATION"
	input.BrandStatus = "market leader"
	input.MarketContext.MarketMaturity = " mature "
	input.CompetitiveContext = &api.CompetitiveContext{CompetitorThemes: []string{"value"}}

	out := NormalizeInput(input)
	assert.Equal(t, api.ObjectiveShortTerm, out.CampaignObjective)
	assert.Equal(t, api.BrandStatusMarketLeader, out.BrandStatus)
	assert.Equal(t, api.MaturityMature, out.MarketContext.MarketMaturity)
	assert.Equal(t, api.LevelMedium, out.CompetitiveContext.CompetitiveNoise)
	assert.Equal(t, " mature ", input.MarketContext.MarketMaturity, "input must not be modified")
	assert.True(t, Validate(out).ReadyToEvaluate)
}

func TestBuildContextualBaseline(t *testing.T) {
	input := completeInput()
	input.CompetitiveContext = nil

	baseline := BuildContextualBaseline(input)
	assert.Equal(t, "Medium (assumed)", baseline.CompetitiveNoise)
	assert.Equal(t, api.MaturityGrowing, baseline.MarketMaturity)
	assert.LessOrEqual(t, len(baseline.SummaryBullets), 5)
	assert.Contains(t, baseline.SummaryBullets[0], api.BrandStatusEmerging)

	input.CompetitiveContext = &api.CompetitiveContext{CompetitiveNoise: api.LevelLow}
	assert.Equal(t, api.LevelLow, BuildContextualBaseline(input).CompetitiveNoise)
}
