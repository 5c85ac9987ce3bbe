package evaluator

import (
	"fmt"
	"strings"

	"creative-backend/internal/core"
	"creative-backend/pkg/api"
)

const scoringInstructions = `## SCORING OUTPUT FORMAT (STRICT)

You must return your evaluation in the following JSON structure:

` + "```json" + `
{
  "verdict": "PASS" or "FAIL",
  "score": 0-10 (only if PASS, null if FAIL),
  "confidence": 0.0-1.0,
  "justification": "KEY DISCOVERIES, STRATEGIC REASONING and EVIDENCE from the creative",
  "layer_scores": {
    "<layer_id>": {
      "verdict": "Pass" or "Weak Pass" or "Fail",
      "sub_scores": {"<criterion_id>": "<score_value>"},
      "fail_conditions": ["any triggered fail conditions"],
      "evidence_notes": ["factual observations only"],
      "mitigation": "required when a risk is rated High or Material"
    }
  }
}
` + "```" + `

RULES:
- Score only the layers within your defined remit
- Lock each score before proceeding to the next
- Explain what you discovered and why it matters
`

// BuildPrompt renders the user prompt for one role. It contains the locked
// baseline, the brief and the role's framework layers, and nothing else.
func BuildPrompt(role core.RoleDefinition, req Request) string {
	input := req.Input

	var b strings.Builder
	b.WriteString("# CREATIVE EFFECTIVENESS EVALUATION\n\n")
	b.WriteString("## CONTEXTUAL BASELINE (LOCKED - DO NOT CONTRADICT)\n")
	for _, bullet := range req.Baseline.SummaryBullets {
		fmt.Fprintf(&b, "- %s\n", bullet)
	}

	b.WriteString("\n## CREATIVE BEING EVALUATED\n")
	fmt.Fprintf(&b, "Brand: %s\n", input.BrandName)
	fmt.Fprintf(&b, "Category: %s\n", input.Category)
	fmt.Fprintf(&b, "Objective: %s\n", input.CampaignObjective)
	fmt.Fprintf(&b, "Channels: %s\n", strings.Join(input.PrimaryChannels, ", "))
	fmt.Fprintf(&b, "Target Audience: %s\n", input.TargetAudience)

	if input.Creative != nil {
		b.WriteString("\nCreative Description:\n")
		b.WriteString(input.Creative.Description)
		if input.Creative.FilePath != "" {
			fmt.Fprintf(&b, "\n[File attached: %s]", input.Creative.FileType)
		}
		b.WriteString("\n")
	}

	if cc := input.CompetitiveContext; cc != nil {
		b.WriteString("\n## COMPETITIVE CONTEXT\n")
		if len(cc.CompetitorThemes) > 0 {
			fmt.Fprintf(&b, "Competitor themes: %s\n", strings.Join(cc.CompetitorThemes, "; "))
		}
		if len(cc.CompetitorAssets) > 0 {
			fmt.Fprintf(&b, "Competitor assets: %s\n", strings.Join(cc.CompetitorAssets, "; "))
		}
	}
	if lf := input.LocalFactors; lf != nil {
		b.WriteString("\n## LOCAL MARKET FACTORS\n")
		for _, line := range [][2]string{
			{"Cultural notes", lf.CulturalNotes},
			{"Media behaviours", lf.MediaBehaviours},
			{"Regulatory constraints", lf.RegulatoryConstraints},
		} {
			if line[1] != "" {
				fmt.Fprintf(&b, "%s: %s\n", line[0], line[1])
			}
		}
	}
	if input.ExistingResearch != "" {
		fmt.Fprintf(&b, "\n## EXISTING RESEARCH\n%s\n", input.ExistingResearch)
	}

	b.WriteString("\n---\n\n## YOUR EVALUATION FRAMEWORK\n\n")
	b.WriteString(core.FrameworkPrompt(core.LayersFor(role)))
	b.WriteString("\n---\n\n")
	b.WriteString(scoringInstructions)
	b.WriteString("\nReturn ONLY the JSON output. No preamble.\n")
	return b.String()
}

// summaryInput strips a brief down to what a prompt needs, used by callers
// that want to log the request without the full creative text.
func summaryInput(input api.EvaluationInput) string {
	return fmt.Sprintf("%s / %s / %s", input.BrandName, input.Category, input.CampaignObjective)
}
