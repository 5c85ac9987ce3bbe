package core

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"creative-backend/pkg/api"
)

const (
	MaxScore             = 10.0
	StrongScoreThreshold = 7.0
)

type Aggregation struct {
	Index           float64
	NormalizedIndex float64
	Penalty         float64
	Contributions   []api.RoleContribution
	Verdict         string
	ConfidenceLevel string
	// Triggers lists the conditions that forced DO_NOT_RECOMMEND, or kept the
	// verdict from RECOMMEND.
	Triggers []string
}

// orderedResults returns the results that belong to the registry, sorted by
// registry position so aggregation never depends on arrival order.
func orderedResults(registry *Registry, results []api.RoleResult) []api.RoleResult {
	ordered := make([]api.RoleResult, 0, len(results))
	for _, r := range results {
		if registry.Position(r.RoleId) >= 0 {
			ordered = append(ordered, r)
		}
	}
	slices.SortStableFunc(ordered, func(a, b api.RoleResult) int {
		return registry.Position(a.RoleId) - registry.Position(b.RoleId)
	})
	return ordered
}

// AdversarialPenalty is subtracted from the index. A failed adversarial role
// applies the maximum penalty for its weight.
func AdversarialPenalty(role RoleDefinition, result api.RoleResult) float64 {
	if !result.Passed() || result.Score == nil {
		return MaxScore * role.Weight
	}
	return (MaxScore - *result.Score) * result.Confidence * role.Weight
}

func Aggregate(registry *Registry, results []api.RoleResult) Aggregation {
	ordered := orderedResults(registry, results)

	var agg Aggregation
	sum, maxPossible := 0.0, 0.0
	for _, role := range registry.Roles() {
		if !role.IsAdversarial {
			maxPossible += MaxScore * role.Weight
		}
	}

	for _, result := range ordered {
		role, _ := registry.Role(result.RoleId)
		if role.IsAdversarial {
			agg.Penalty = AdversarialPenalty(role, result)
			continue
		}
		contribution := 0.0
		if result.Passed() {
			contribution = result.ScoreValue() * result.Confidence * role.Weight
		}
		sum += contribution
		agg.Contributions = append(agg.Contributions, api.RoleContribution{
			RoleId:       role.Id,
			RoleName:     role.Name,
			Weight:       role.Weight,
			Contribution: contribution,
		})
	}

	agg.Index = math.Max(0, sum-agg.Penalty)
	if maxPossible > 0 {
		agg.NormalizedIndex = math.Round(math.Min(100, agg.Index/maxPossible*100)*10) / 10
	}
	agg.Verdict, agg.Triggers = ClassifyVerdict(registry, ordered)
	agg.ConfidenceLevel = ConfidenceLevel(ordered)
	return agg
}

func ConfidenceLevel(results []api.RoleResult) string {
	if len(results) == 0 {
		return api.LevelLow
	}
	lowest := 1.0
	for _, r := range results {
		lowest = math.Min(lowest, r.Confidence)
	}
	switch {
	case lowest < 0.5:
		return api.LevelLow
	case lowest <= 0.8:
		return api.LevelMedium
	default:
		return api.LevelHigh
	}
}

func isHighRisk(value string) bool {
	v := strings.ToLower(strings.TrimSpace(value))
	return v == "high" || v == "material"
}

func mentionsMisattribution(conditions []string) bool {
	for _, c := range conditions {
		c = strings.ToLower(c)
		if strings.Contains(c, "misattribut") || strings.Contains(c, "wrong brand") {
			return true
		}
	}
	return false
}

// blockingFlags returns the conditions that force DO_NOT_RECOMMEND.
func blockingFlags(results []api.RoleResult) []string {
	var flags []string
	for _, r := range results {
		for _, ls := range r.LayerScores {
			switch ls.LayerId {
			case LayerEmotional:
				if ls.Verdict == api.LayerFail || len(ls.FailConditions) > 0 {
					flags = append(flags, fmt.Sprintf("emotional weakness flagged by %s", r.RoleName))
				}
			case LayerBrand:
				if ls.Verdict == api.LayerFail || mentionsMisattribution(ls.FailConditions) {
					flags = append(flags, fmt.Sprintf("brand misattribution risk flagged by %s", r.RoleName))
				}
			case LayerStrategic:
				if ls.Verdict == api.LayerFail || strings.EqualFold(ls.SubScores[CriterionAlign], "misaligned") {
					flags = append(flags, fmt.Sprintf("strategic misalignment flagged by %s", r.RoleName))
				}
			case LayerRisk:
				if strings.TrimSpace(ls.Mitigation) != "" {
					continue
				}
				for _, id := range sortedKeys(ls.SubScores) {
					if isHighRisk(ls.SubScores[id]) {
						flags = append(flags, fmt.Sprintf("%s risk %s without mitigation flagged by %s", id, ls.SubScores[id], r.RoleName))
					}
				}
			}
		}
	}
	return flags
}

// recommendBlockers returns why the results fall short of RECOMMEND.
func recommendBlockers(registry *Registry, results []api.RoleResult) []string {
	var blockers []string
	for _, r := range results {
		role, _ := registry.Role(r.RoleId)
		if !r.Passed() {
			blockers = append(blockers, fmt.Sprintf("%s returned FAIL", r.RoleName))
			continue
		}
		if (role.HasLayer(LayerEmotional) || role.HasLayer(LayerBrand) || role.HasLayer(LayerStrategic)) && r.ScoreValue() < StrongScoreThreshold {
			blockers = append(blockers, fmt.Sprintf("%s scored %.1f, below %.0f", r.RoleName, r.ScoreValue(), StrongScoreThreshold))
		}
		for _, ls := range r.LayerScores {
			for _, fc := range ls.FailConditions {
				blockers = append(blockers, fmt.Sprintf("%s flagged '%s' on layer %s", r.RoleName, fc, ls.LayerId))
			}
			if ls.LayerId != LayerRisk {
				continue
			}
			if ls.Verdict == api.LayerFail {
				blockers = append(blockers, fmt.Sprintf("%s failed the risk layer", r.RoleName))
			}
			for _, id := range sortedKeys(ls.SubScores) {
				if isHighRisk(ls.SubScores[id]) {
					blockers = append(blockers, fmt.Sprintf("%s rated %s risk %s", r.RoleName, id, ls.SubScores[id]))
				}
			}
		}
	}
	return blockers
}

// ClassifyVerdict applies the verdict rules in priority order.
func ClassifyVerdict(registry *Registry, results []api.RoleResult) (string, []string) {
	ordered := orderedResults(registry, results)
	if flags := blockingFlags(ordered); len(flags) > 0 {
		return api.DoNotRecommendVerdict, flags
	}
	if blockers := recommendBlockers(registry, ordered); len(blockers) > 0 {
		return api.ReviseVerdict, blockers
	}
	return api.RecommendVerdict, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
