package core

import (
	"fmt"
	"strings"

	"creative-backend/pkg/api"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	MinCreativeDescription = 100
	MinTargetAudience      = 50
)

var (
	objectives  = []string{api.ObjectiveLongTerm, api.ObjectiveShortTerm, api.ObjectiveMixed}
	brandStatus = []string{api.BrandStatusMarketLeader, api.BrandStatusStrongChallenger, api.BrandStatusEmerging, api.BrandStatusGrowthBrand, api.BrandStatusNewOrLowAwareness}
	maturities  = []string{api.MaturityMature, api.MaturityGrowing, api.MaturityEmerging}
	levels      = []string{api.LevelLow, api.LevelMedium, api.LevelHigh}
)

// canonical returns the allowed value matching v case-insensitively.
func canonical(v string, allowed []string) (string, bool) {
	// Casers carry state and are not safe for concurrent use.
	fold := cases.Fold()
	folded := fold.String(strings.TrimSpace(v))
	for _, a := range allowed {
		if fold.String(a) == folded {
			return a, true
		}
	}
	return v, false
}

// NormalizeInput returns a copy of input with enum values in their canonical
// spelling. Unknown values are left untouched for Validate to report.
func NormalizeInput(input api.EvaluationInput) api.EvaluationInput {
	out := input
	out.CampaignObjective, _ = canonical(input.CampaignObjective, objectives)
	out.BrandStatus, _ = canonical(input.BrandStatus, brandStatus)

	if input.MarketContext != nil {
		mc := *input.MarketContext
		mc.MarketMaturity, _ = canonical(mc.MarketMaturity, maturities)
		mc.CategoryClutter, _ = canonical(mc.CategoryClutter, levels)
		mc.PurchaseFrequency, _ = canonical(mc.PurchaseFrequency, levels)
		mc.DecisionInvolvement, _ = canonical(mc.DecisionInvolvement, levels)
		out.MarketContext = &mc
	}
	if input.CompetitiveContext != nil {
		cc := *input.CompetitiveContext
		if cc.CompetitiveNoise == "" {
			cc.CompetitiveNoise = api.LevelMedium
		}
		cc.CompetitiveNoise, _ = canonical(cc.CompetitiveNoise, levels)
		out.CompetitiveContext = &cc
	}
	return out
}

type validator struct {
	missing    []string
	incomplete []string
	warnings   []string
}

func (v *validator) enum(field, value string, allowed []string) {
	if value == "" {
		return
	}
	if _, ok := canonical(value, allowed); !ok {
		v.incomplete = append(v.incomplete, field)
		v.warnings = append(v.warnings, fmt.Sprintf("Invalid value '%s' for %s. Expected one of: %s.", value, field, strings.Join(allowed, ", ")))
	}
}

func (v *validator) required(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.missing = append(v.missing, field)
	}
}

// Validate checks that a possibly partial brief has everything needed to run
// an evaluation.
func Validate(input api.EvaluationInput) api.ValidationResult {
	v := &validator{missing: []string{}, incomplete: []string{}, warnings: []string{}}

	v.required("brand_name", input.BrandName)
	v.required("category", input.Category)
	v.required("campaign_objective", input.CampaignObjective)
	hasChannel := false
	for _, ch := range input.PrimaryChannels {
		if strings.TrimSpace(ch) != "" {
			hasChannel = true
		}
	}
	if !hasChannel {
		v.missing = append(v.missing, "primary_channels")
	}
	v.required("target_audience", input.TargetAudience)
	v.required("brand_status", input.BrandStatus)
	if input.MarketContext == nil {
		v.missing = append(v.missing, "market_context")
	}

	if input.Creative == nil {
		v.missing = append(v.missing, "creative")
	} else {
		description := strings.TrimSpace(input.Creative.Description)
		hasFile := input.Creative.FilePath != ""
		if !hasFile && len(description) < MinCreativeDescription {
			if description != "" {
				v.incomplete = append(v.incomplete, "creative")
				v.warnings = append(v.warnings, fmt.Sprintf("Creative description too short (%d chars). Need at least %d characters or upload a file.", len(description), MinCreativeDescription))
			} else {
				v.missing = append(v.missing, "creative")
			}
		}
	}

	if audience := strings.TrimSpace(input.TargetAudience); audience != "" && len(audience) < MinTargetAudience {
		v.incomplete = append(v.incomplete, "target_audience")
		v.warnings = append(v.warnings, fmt.Sprintf("Target audience description too short (%d chars). Need at least %d characters for accurate evaluation.", len(audience), MinTargetAudience))
	}

	v.enum("campaign_objective", input.CampaignObjective, objectives)
	v.enum("brand_status", input.BrandStatus, brandStatus)

	if mc := input.MarketContext; mc != nil {
		fields := []struct {
			name    string
			value   string
			allowed []string
		}{
			{"market_maturity", mc.MarketMaturity, maturities},
			{"category_clutter", mc.CategoryClutter, levels},
			{"purchase_frequency", mc.PurchaseFrequency, levels},
			{"decision_involvement", mc.DecisionInvolvement, levels},
		}
		for _, f := range fields {
			name := "market_context." + f.name
			if strings.TrimSpace(f.value) == "" {
				v.incomplete = append(v.incomplete, name)
				continue
			}
			v.enum(name, f.value, f.allowed)
		}
	}

	if input.CompetitiveContext == nil {
		v.warnings = append(v.warnings, "No competitive context provided. Evaluation will assume medium competitive noise.")
	} else {
		v.enum("competitive_context.competitive_noise", input.CompetitiveContext.CompetitiveNoise, levels)
	}
	if input.LocalFactors == nil {
		v.warnings = append(v.warnings, "No local market factors provided. Evaluation will use general market assumptions.")
	}

	valid := len(v.missing) == 0 && len(v.incomplete) == 0
	return api.ValidationResult{
		Valid:            valid,
		MissingFields:    v.missing,
		IncompleteFields: v.incomplete,
		Warnings:         v.warnings,
		ReadyToEvaluate:  valid,
	}
}

// ValidationSummary renders a result as a human readable message.
func ValidationSummary(result api.ValidationResult) string {
	if result.ReadyToEvaluate {
		return "All required inputs provided. Ready to evaluate."
	}

	title := cases.Title(language.English)
	humanize := func(field string) string {
		return title.String(strings.NewReplacer("_", " ", ".", " ").Replace(field))
	}

	var lines []string
	if len(result.MissingFields) > 0 {
		names := make([]string, 0, len(result.MissingFields))
		for _, f := range result.MissingFields {
			names = append(names, humanize(f))
		}
		lines = append(lines, "missing required fields: "+strings.Join(names, ", "))
	}
	if len(result.IncompleteFields) > 0 {
		names := make([]string, 0, len(result.IncompleteFields))
		for _, f := range result.IncompleteFields {
			names = append(names, humanize(f))
		}
		lines = append(lines, "incomplete fields: "+strings.Join(names, ", "))
	}
	return strings.Join(lines, "; ")
}
