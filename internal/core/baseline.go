package core

import (
	"fmt"

	"creative-backend/pkg/api"
)

const (
	assumedCompetitiveNoise = "Medium (assumed)"
	maxSummaryBullets       = 5
)

// BuildContextualBaseline locks the market and brand classifications that
// every role scores against. The input must already be validated.
func BuildContextualBaseline(input api.EvaluationInput) api.ContextualBaseline {
	var mc api.MarketContext
	if input.MarketContext != nil {
		mc = *input.MarketContext
	}

	noise := assumedCompetitiveNoise
	if input.CompetitiveContext != nil && input.CompetitiveContext.CompetitiveNoise != "" {
		noise = input.CompetitiveContext.CompetitiveNoise
	}

	bullets := []string{
		fmt.Sprintf("Brand status: %s", input.BrandStatus),
		fmt.Sprintf("Market: %s maturity, %s clutter", mc.MarketMaturity, mc.CategoryClutter),
		fmt.Sprintf("Purchase: %s frequency, %s involvement", mc.PurchaseFrequency, mc.DecisionInvolvement),
		fmt.Sprintf("Competitive noise: %s", noise),
		fmt.Sprintf("Objective: %s", input.CampaignObjective),
	}

	return api.ContextualBaseline{
		BrandStatus:         input.BrandStatus,
		MarketMaturity:      mc.MarketMaturity,
		CategoryClutter:     mc.CategoryClutter,
		PurchaseFrequency:   mc.PurchaseFrequency,
		DecisionInvolvement: mc.DecisionInvolvement,
		CompetitiveNoise:    noise,
		SummaryBullets:      bullets[:min(len(bullets), maxSummaryBullets)],
	}
}
