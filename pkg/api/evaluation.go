package api

import (
	"time"

	"github.com/google/uuid"
)

const (
	ObjectiveLongTerm  = "Long-term brand growth"
	ObjectiveShortTerm = "Short-term activation"
	ObjectiveMixed     = "Mixed"
)

const (
	BrandStatusMarketLeader      = "Market Leader"
	BrandStatusStrongChallenger  = "Strong Challenger"
	BrandStatusEmerging          = "Emerging"
	BrandStatusGrowthBrand       = "Growth Brand"
	BrandStatusNewOrLowAwareness = "New or Low-Awareness Brand"
)

const (
	LevelLow    = "Low"
	LevelMedium = "Medium"
	LevelHigh   = "High"

	MaturityMature   = "Mature"
	MaturityGrowing  = "Growing"
	MaturityEmerging = "Emerging"
)

type CreativeAsset struct {
	Description string `json:"description"`
	FilePath    string `json:"file_path,omitempty"`
	FileType    string `json:"file_type,omitempty"`
}

type MarketContext struct {
	MarketMaturity      string `json:"market_maturity"`
	CategoryClutter     string `json:"category_clutter"`
	PurchaseFrequency   string `json:"purchase_frequency"`
	DecisionInvolvement string `json:"decision_involvement"`
}

type CompetitiveContext struct {
	CompetitorThemes []string `json:"competitor_themes,omitempty"`
	CompetitorAssets []string `json:"competitor_assets,omitempty"`
	CompetitiveNoise string   `json:"competitive_noise,omitempty"`
}

type LocalFactors struct {
	CulturalNotes         string `json:"cultural_notes,omitempty"`
	MediaBehaviours       string `json:"media_behaviours,omitempty"`
	RegulatoryConstraints string `json:"regulatory_constraints,omitempty"`
}

// EvaluationInput is the brief submitted for evaluation. Optional sections
// are pointers so a partially filled form can be validated.
type EvaluationInput struct {
	BrandName          string              `json:"brand_name"`
	Category           string              `json:"category"`
	CampaignObjective  string              `json:"campaign_objective"`
	PrimaryChannels    []string            `json:"primary_channels"`
	TargetAudience     string              `json:"target_audience"`
	BrandStatus        string              `json:"brand_status"`
	MarketContext      *MarketContext      `json:"market_context,omitempty"`
	Creative           *CreativeAsset      `json:"creative,omitempty"`
	CompetitiveContext *CompetitiveContext `json:"competitive_context,omitempty"`
	LocalFactors       *LocalFactors       `json:"local_factors,omitempty"`
	ExistingResearch   string              `json:"existing_research,omitempty"`
}

type ValidationResult struct {
	Valid            bool     `json:"valid"`
	MissingFields    []string `json:"missing_fields"`
	IncompleteFields []string `json:"incomplete_fields"`
	Warnings         []string `json:"warnings"`
	ReadyToEvaluate  bool     `json:"ready_to_evaluate"`
}

type ContextualBaseline struct {
	BrandStatus         string   `json:"brand_status"`
	MarketMaturity      string   `json:"market_maturity"`
	CategoryClutter     string   `json:"category_clutter"`
	PurchaseFrequency   string   `json:"purchase_frequency"`
	DecisionInvolvement string   `json:"decision_involvement"`
	CompetitiveNoise    string   `json:"competitive_noise"`
	SummaryBullets      []string `json:"summary_bullets"`
}

const (
	VerdictPass = "PASS"
	VerdictFail = "FAIL"
)

const (
	LayerPass     = "Pass"
	LayerWeakPass = "Weak Pass"
	LayerFail     = "Fail"
)

type LayerScore struct {
	LayerId        string            `json:"layer_id"`
	LayerName      string            `json:"layer_name"`
	Verdict        string            `json:"verdict"`
	SubScores      map[string]string `json:"sub_scores,omitempty"`
	FailConditions []string          `json:"fail_conditions"`
	EvidenceNotes  []string          `json:"evidence_notes,omitempty"`
	Mitigation     string            `json:"mitigation,omitempty"`
}

type RoleResult struct {
	RoleId        int          `json:"role_id"`
	RoleName      string       `json:"role_name"`
	IsHardGate    bool         `json:"is_hard_gate"`
	Verdict       string       `json:"verdict"`
	Score         *float64     `json:"score"`
	Confidence    float64      `json:"confidence"`
	Justification string       `json:"justification"`
	LayerScores   []LayerScore `json:"layer_scores,omitempty"`
}

func (r RoleResult) Passed() bool {
	return r.Verdict == VerdictPass
}

// ScoreValue returns the score, or 0 when the role failed.
func (r RoleResult) ScoreValue() float64 {
	if r.Score == nil || !r.Passed() {
		return 0
	}
	return *r.Score
}

const (
	RecommendVerdict      = "RECOMMEND"
	ReviseVerdict         = "REVISE_BEFORE_RECOMMENDATION"
	DoNotRecommendVerdict = "DO_NOT_RECOMMEND"
)

const (
	CommercialRoleBrandGrowth = "Brand growth"
	CommercialRoleActivation  = "Activation"
	CommercialRoleBoth        = "Both"
	CommercialRoleNeither     = "Neither"
)

type FinalReport struct {
	Verdict                 string   `json:"verdict"`
	ConfidenceLevel         string   `json:"confidence_level"`
	TopStrengths            []string `json:"top_strengths"`
	TopRisks                []string `json:"top_risks"`
	PredictedCommercialRole string   `json:"predicted_commercial_role"`
	RevisionGuidance        string   `json:"revision_guidance,omitempty"`
}

type RoleLayerScore struct {
	RoleId   int        `json:"role_id"`
	RoleName string     `json:"role_name"`
	Score    LayerScore `json:"score"`
}

type RoleContribution struct {
	RoleId       int     `json:"role_id"`
	RoleName     string  `json:"role_name"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}

type AnalysisAppendix struct {
	ContextualBaseline  ContextualBaseline          `json:"contextual_baseline"`
	LayerMatrices       map[string][]RoleLayerScore `json:"layer_matrices"`
	FailRegister        []string                    `json:"fail_register"`
	RiskRegister        []string                    `json:"risk_register"`
	RawScoreSummary     map[string]*float64         `json:"raw_score_summary"`
	Contributions       []RoleContribution          `json:"contributions"`
	AdversarialPenalty  float64                     `json:"adversarial_penalty"`
	NormalizedIndex     float64                     `json:"normalized_index"`
	ConfidenceDampeners []string                    `json:"confidence_dampeners"`
	Verdict             string                      `json:"verdict"`
	VerdictTraceability map[string][]string         `json:"verdict_traceability"`
	RevisionSensitivity []string                    `json:"revision_sensitivity"`
}

type InputSummary struct {
	Brand     string `json:"brand"`
	Category  string `json:"category"`
	Objective string `json:"objective"`
}

type EvaluationResult struct {
	EvaluationId            uuid.UUID        `json:"evaluation_id"`
	CreatedAt               time.Time        `json:"created_at"`
	InputSummary            InputSummary     `json:"input_summary"`
	RoleResults             []RoleResult     `json:"role_results"`
	FinalEffectivenessIndex float64          `json:"final_effectiveness_index"`
	AdversarialPenalty      float64          `json:"adversarial_penalty"`
	HardGateFailed          bool             `json:"hard_gate_failed"`
	FailedHardGateRole      string           `json:"failed_hard_gate_role,omitempty"`
	FinalReport             FinalReport      `json:"final_report"`
	Appendix                AnalysisAppendix `json:"appendix"`
}
