package core

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"creative-backend/pkg/api"

	"github.com/google/uuid"
)

const (
	topItems             = 3
	dampenerThreshold    = 0.7
	noStrengthsMessage   = "Insufficient data for strength identification"
	noRisksMessage       = "No material risks identified"
	justificationExcerpt = 240
)

// ReportInput carries everything a report is assembled from.
type ReportInput struct {
	EvaluationId uuid.UUID
	CreatedAt    time.Time
	Input        api.EvaluationInput
	Baseline     api.ContextualBaseline
	Results      []api.RoleResult
}

func excerpt(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= justificationExcerpt {
		return text
	}
	return string(runes[:justificationExcerpt]) + "..."
}

func weighted(r api.RoleResult) float64 {
	return r.ScoreValue() * r.Confidence
}

func topStrengths(ordered []api.RoleResult) []string {
	var candidates []api.RoleResult
	for _, r := range ordered {
		if r.Passed() && r.ScoreValue() >= StrongScoreThreshold {
			candidates = append(candidates, r)
		}
	}
	// Stable sort keeps registry order for ties.
	slices.SortStableFunc(candidates, func(a, b api.RoleResult) int {
		return compareDesc(weighted(a), weighted(b))
	})

	strengths := []string{}
	for _, r := range candidates[:min(len(candidates), topItems)] {
		strengths = append(strengths, fmt.Sprintf("%s: %s", r.RoleName, excerpt(r.Justification)))
	}
	if len(strengths) == 0 {
		strengths = append(strengths, noStrengthsMessage)
	}
	return strengths
}

func topRisks(registry *Registry, ordered []api.RoleResult) []string {
	var candidates []api.RoleResult
	for _, r := range ordered {
		role, _ := registry.Role(r.RoleId)
		if role.IsAdversarial || !r.Passed() || r.ScoreValue() < StrongScoreThreshold {
			candidates = append(candidates, r)
		}
	}
	slices.SortStableFunc(candidates, func(a, b api.RoleResult) int {
		return compareDesc(weighted(b), weighted(a))
	})

	risks := []string{}
	for _, r := range candidates[:min(len(candidates), topItems)] {
		risks = append(risks, fmt.Sprintf("%s: %s", r.RoleName, excerpt(r.Justification)))
	}
	if len(risks) == 0 {
		risks = append(risks, noRisksMessage)
	}
	return risks
}

func compareDesc(a, b float64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	}
	return 0
}

func objectiveRole(objective string) string {
	switch objective {
	case api.ObjectiveShortTerm:
		return api.CommercialRoleActivation
	case api.ObjectiveMixed:
		return api.CommercialRoleBoth
	default:
		return api.CommercialRoleBrandGrowth
	}
}

// PredictCommercialRole reads the objective-alignment sub-score, taking the
// first role in registry order that reported one.
func PredictCommercialRole(objective string, ordered []api.RoleResult) string {
	for _, r := range ordered {
		for _, ls := range r.LayerScores {
			if ls.LayerId != LayerStrategic {
				continue
			}
			switch strings.ToLower(strings.TrimSpace(ls.SubScores[CriterionAlign])) {
			case "clear":
				return objectiveRole(objective)
			case "mixed":
				return api.CommercialRoleBoth
			case "misaligned":
				return api.CommercialRoleNeither
			}
		}
	}
	return objectiveRole(objective)
}

func revisionGuidance(ordered []api.RoleResult) string {
	var weak []string
	var conditions []string
	for _, r := range ordered {
		if !r.Passed() || r.ScoreValue() < StrongScoreThreshold {
			weak = append(weak, r.RoleName)
		}
		for _, ls := range r.LayerScores {
			for _, fc := range ls.FailConditions {
				if !slices.Contains(conditions, fc) {
					conditions = append(conditions, fc)
				}
			}
		}
	}

	var parts []string
	if len(weak) > 0 {
		parts = append(parts, "Focus improvement on: "+strings.Join(weak[:min(len(weak), topItems)], ", ")+".")
	}
	if len(conditions) > 0 {
		parts = append(parts, "Address: "+strings.Join(conditions, "; ")+".")
	}
	if len(parts) == 0 {
		return "Strengthen the weakest layers before resubmitting."
	}
	return strings.Join(parts, " ")
}

func BuildFinalReport(registry *Registry, objective string, ordered []api.RoleResult, agg Aggregation) api.FinalReport {
	report := api.FinalReport{
		Verdict:                 agg.Verdict,
		ConfidenceLevel:         agg.ConfidenceLevel,
		TopStrengths:            topStrengths(ordered),
		TopRisks:                topRisks(registry, ordered),
		PredictedCommercialRole: PredictCommercialRole(objective, ordered),
	}
	if agg.Verdict == api.ReviseVerdict {
		report.RevisionGuidance = revisionGuidance(ordered)
	}
	return report
}

func BuildAppendix(registry *Registry, baseline api.ContextualBaseline, ordered []api.RoleResult, agg Aggregation) api.AnalysisAppendix {
	appendix := api.AnalysisAppendix{
		ContextualBaseline:  baseline,
		LayerMatrices:       map[string][]api.RoleLayerScore{},
		FailRegister:        []string{},
		RiskRegister:        []string{},
		RawScoreSummary:     map[string]*float64{},
		Contributions:       agg.Contributions,
		AdversarialPenalty:  agg.Penalty,
		NormalizedIndex:     agg.NormalizedIndex,
		ConfidenceDampeners: []string{},
		Verdict:             agg.Verdict,
		VerdictTraceability: map[string][]string{},
		RevisionSensitivity: []string{},
	}

	var strengths, risks, all []string
	for _, r := range ordered {
		all = append(all, r.RoleName)
		for _, ls := range r.LayerScores {
			appendix.LayerMatrices[ls.LayerId] = append(appendix.LayerMatrices[ls.LayerId], api.RoleLayerScore{
				RoleId: r.RoleId, RoleName: r.RoleName, Score: ls,
			})
			for _, fc := range ls.FailConditions {
				if !slices.Contains(appendix.RiskRegister, fc) {
					appendix.RiskRegister = append(appendix.RiskRegister, fc)
				}
			}
		}
		if !r.Passed() {
			appendix.FailRegister = append(appendix.FailRegister, fmt.Sprintf("%s: %s", r.RoleName, r.Justification))
		}
		appendix.RawScoreSummary[r.RoleName] = r.Score
		if r.Confidence < dampenerThreshold {
			appendix.ConfidenceDampeners = append(appendix.ConfidenceDampeners, fmt.Sprintf("%s: confidence %.0f%%", r.RoleName, r.Confidence*100))
		}

		role, _ := registry.Role(r.RoleId)
		if r.Passed() && r.ScoreValue() >= StrongScoreThreshold && !role.IsAdversarial {
			strengths = append(strengths, r.RoleName)
		} else {
			risks = append(risks, r.RoleName)
		}

		// A role just under the threshold on a RECOMMEND-relevant layer can flip the verdict.
		if r.Passed() && r.ScoreValue() >= StrongScoreThreshold-1 && r.ScoreValue() < StrongScoreThreshold {
			appendix.RevisionSensitivity = append(appendix.RevisionSensitivity,
				fmt.Sprintf("%s at %.1f is within one point of the %.0f threshold", r.RoleName, r.ScoreValue(), StrongScoreThreshold))
		}
	}
	slices.Sort(appendix.RiskRegister)

	appendix.VerdictTraceability["verdict"] = all
	appendix.VerdictTraceability["strengths"] = strengths
	appendix.VerdictTraceability["risks"] = risks
	appendix.VerdictTraceability["triggers"] = agg.Triggers
	return appendix
}

// BuildResult aggregates a completed run into its final result.
func BuildResult(registry *Registry, in ReportInput) api.EvaluationResult {
	ordered := orderedResults(registry, in.Results)
	agg := Aggregate(registry, ordered)

	return api.EvaluationResult{
		EvaluationId:            in.EvaluationId,
		CreatedAt:               in.CreatedAt,
		InputSummary:            summarize(in.Input),
		RoleResults:             ordered,
		FinalEffectivenessIndex: agg.Index,
		AdversarialPenalty:      agg.Penalty,
		FinalReport:             BuildFinalReport(registry, in.Input.CampaignObjective, ordered, agg),
		Appendix:                BuildAppendix(registry, in.Baseline, ordered, agg),
	}
}

// BuildShortCircuitResult reports a run that a hard gate terminated. Only the
// results gathered before the abort are included and the index is zero.
func BuildShortCircuitResult(registry *Registry, in ReportInput, failedRole string) api.EvaluationResult {
	ordered := orderedResults(registry, in.Results)
	agg := Aggregation{
		Verdict:         api.DoNotRecommendVerdict,
		ConfidenceLevel: ConfidenceLevel(ordered),
		Triggers:        []string{fmt.Sprintf("hard gate failed: %s", failedRole)},
	}

	risks := []string{fmt.Sprintf("HARD GATE FAILED: %s", failedRole)}
	for _, r := range ordered {
		if r.RoleName == failedRole {
			risks = append(risks, fmt.Sprintf("%s: %s", r.RoleName, excerpt(r.Justification)))
		}
	}

	return api.EvaluationResult{
		EvaluationId:       in.EvaluationId,
		CreatedAt:          in.CreatedAt,
		InputSummary:       summarize(in.Input),
		RoleResults:        ordered,
		HardGateFailed:     true,
		FailedHardGateRole: failedRole,
		FinalReport: api.FinalReport{
			Verdict:                 api.DoNotRecommendVerdict,
			ConfidenceLevel:         agg.ConfidenceLevel,
			TopStrengths:            topStrengths(ordered),
			TopRisks:                risks,
			PredictedCommercialRole: PredictCommercialRole(in.Input.CampaignObjective, ordered),
		},
		Appendix: BuildAppendix(registry, in.Baseline, ordered, agg),
	}
}

func summarize(input api.EvaluationInput) api.InputSummary {
	return api.InputSummary{
		Brand:     input.BrandName,
		Category:  input.Category,
		Objective: input.CampaignObjective,
	}
}
