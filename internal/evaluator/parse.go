package evaluator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"creative-backend/internal/core"
	"creative-backend/pkg/api"
)

var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

type rawLayerScore struct {
	Verdict        string         `json:"verdict"`
	SubScores      map[string]any `json:"sub_scores"`
	FailConditions []string       `json:"fail_conditions"`
	EvidenceNotes  []string       `json:"evidence_notes"`
	Mitigation     string         `json:"mitigation"`
}

type rawRoleResult struct {
	Verdict       string                   `json:"verdict"`
	Result        string                   `json:"result"`
	Score         *float64                 `json:"score"`
	Confidence    *float64                 `json:"confidence"`
	Justification string                   `json:"justification"`
	LayerScores   map[string]rawLayerScore `json:"layer_scores"`
}

// stripFences returns the body of the first fenced code block, if any.
func stripFences(content string) string {
	for _, fence := range []string{"```json", "```"} {
		start := strings.Index(content, fence)
		if start < 0 {
			continue
		}
		start += len(fence)
		end := strings.Index(content[start:], "```")
		if end > 0 {
			return strings.TrimSpace(content[start : start+end])
		}
	}
	return strings.TrimSpace(content)
}

func decode(content string) (rawRoleResult, error) {
	var raw rawRoleResult
	body := stripFences(content)
	err := json.Unmarshal([]byte(body), &raw)
	if err == nil {
		return raw, nil
	}
	if match := jsonObjectRe.FindString(body); match != "" {
		if err2 := json.Unmarshal([]byte(match), &raw); err2 == nil {
			return raw, nil
		}
	}
	return raw, fmt.Errorf("%w: response is not a JSON object: %w", ErrEvaluatorMalformedOutput, err)
}

func canonicalLayerVerdict(v string) (string, bool) {
	switch strings.ToLower(strings.Join(strings.Fields(strings.ReplaceAll(v, "_", " ")), " ")) {
	case "pass":
		return api.LayerPass, true
	case "weak pass":
		return api.LayerWeakPass, true
	case "fail":
		return api.LayerFail, true
	}
	return v, false
}

func parseLayerScores(raw map[string]rawLayerScore) ([]api.LayerScore, error) {
	ids := make([]string, 0, len(raw))
	for id := range raw {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	scores := make([]api.LayerScore, 0, len(ids))
	for _, id := range ids {
		data := raw[id]
		verdict := api.LayerPass
		if data.Verdict != "" {
			var ok bool
			if verdict, ok = canonicalLayerVerdict(data.Verdict); !ok {
				return nil, fmt.Errorf("%w: layer %s has unknown verdict '%s'", ErrEvaluatorMalformedOutput, id, data.Verdict)
			}
		}

		subScores := make(map[string]string, len(data.SubScores))
		for k, v := range data.SubScores {
			if v == nil {
				continue
			}
			subScores[k] = fmt.Sprint(v)
		}
		failConditions := data.FailConditions
		if failConditions == nil {
			failConditions = []string{}
		}

		scores = append(scores, api.LayerScore{
			LayerId:        id,
			LayerName:      core.LayerName(id),
			Verdict:        verdict,
			SubScores:      subScores,
			FailConditions: failConditions,
			EvidenceNotes:  data.EvidenceNotes,
			Mitigation:     strings.TrimSpace(data.Mitigation),
		})
	}
	return scores, nil
}

// ParseResponse converts raw evaluator output into a role result. The role
// identity fields are filled from role, never from the response.
func ParseResponse(role core.RoleDefinition, content string) (api.RoleResult, error) {
	raw, err := decode(content)
	if err != nil {
		return api.RoleResult{}, err
	}

	verdict := raw.Verdict
	if verdict == "" {
		verdict = raw.Result
	}
	verdict = strings.ToUpper(strings.TrimSpace(verdict))
	if verdict != api.VerdictPass && verdict != api.VerdictFail {
		return api.RoleResult{}, fmt.Errorf("%w: verdict must be PASS or FAIL, got '%s'", ErrEvaluatorMalformedOutput, verdict)
	}

	if raw.Confidence == nil {
		return api.RoleResult{}, fmt.Errorf("%w: confidence is missing", ErrEvaluatorMalformedOutput)
	}
	if *raw.Confidence < 0 || *raw.Confidence > 1 {
		return api.RoleResult{}, fmt.Errorf("%w: confidence %v outside [0, 1]", ErrEvaluatorMalformedOutput, *raw.Confidence)
	}

	var score *float64
	if verdict == api.VerdictPass {
		if raw.Score == nil {
			return api.RoleResult{}, fmt.Errorf("%w: PASS verdict without a score", ErrEvaluatorMalformedOutput)
		}
		if *raw.Score < 0 || *raw.Score > core.MaxScore {
			return api.RoleResult{}, fmt.Errorf("%w: score %v outside [0, %v]", ErrEvaluatorMalformedOutput, *raw.Score, core.MaxScore)
		}
		s := *raw.Score
		score = &s
	}

	layers, err := parseLayerScores(raw.LayerScores)
	if err != nil {
		return api.RoleResult{}, err
	}

	justification := strings.TrimSpace(raw.Justification)
	if justification == "" {
		justification = "No justification provided"
	}

	return api.RoleResult{
		RoleId:        role.Id,
		RoleName:      role.Name,
		IsHardGate:    role.IsHardGate,
		Verdict:       verdict,
		Score:         score,
		Confidence:    *raw.Confidence,
		Justification: justification,
		LayerScores:   layers,
	}, nil
}
