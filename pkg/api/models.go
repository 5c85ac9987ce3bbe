package api

import (
	"time"

	"github.com/google/uuid"
)

type RoleInfo struct {
	Id              int      `json:"id"`
	Name            string   `json:"name"`
	ShortName       string   `json:"short_name"`
	Weight          float64  `json:"weight"`
	IsHardGate      bool     `json:"is_hard_gate"`
	IsAdversarial   bool     `json:"is_adversarial"`
	FrameworkLayers []string `json:"framework_layers"`
}

type SubCriterionInfo struct {
	Id            string `json:"id"`
	Name          string `json:"name"`
	ScoreType     string `json:"score_type"`
	FailCondition string `json:"fail_condition"`
}

type LayerInfo struct {
	Id          string             `json:"id"`
	Name        string             `json:"name"`
	SubCriteria []SubCriterionInfo `json:"sub_criteria"`
}

type ConfigResponse struct {
	Roles     []RoleInfo  `json:"roles"`
	Framework []LayerInfo `json:"framework"`
	Provider  string      `json:"provider"`
	Model     string      `json:"model"`
}

type SubmitEvaluationResponse struct {
	EvaluationId uuid.UUID `json:"evaluation_id"`
}

type Evaluation struct {
	Id                 uuid.UUID         `json:"id"`
	Brand              string            `json:"brand"`
	Category           string            `json:"category"`
	Objective          string            `json:"objective"`
	Status             string            `json:"status"`
	Verdict            string            `json:"verdict,omitempty"`
	Index              *float64          `json:"index,omitempty"`
	ConfidenceLevel    string            `json:"confidence_level,omitempty"`
	HardGateFailed     bool              `json:"hard_gate_failed"`
	FailedHardGateRole string            `json:"failed_hard_gate_role,omitempty"`
	Error              string            `json:"error,omitempty"`
	CreationTime       time.Time         `json:"creation_time"`
	CompletionTime     *time.Time        `json:"completion_time,omitempty"`
	Result             *EvaluationResult `json:"result,omitempty"`
}

type ListEvaluationsParams struct {
	Limit   int    `schema:"limit"`
	Offset  int    `schema:"offset"`
	Verdict string `schema:"verdict"`
	Query   string `schema:"query"`
}

type ExtractRequest struct {
	FileName    string `json:"file_name"`
	FileContent string `json:"file_content"` // base64
}

type ExtractResponse struct {
	Input         EvaluationInput  `json:"input"`
	Validation    ValidationResult `json:"validation"`
	ExtractedText string           `json:"extracted_text"`
}

type PresignedUploadParams struct {
	Filename    string `schema:"filename"`
	ContentType string `schema:"content_type"`
}

type PresignedUploadResponse struct {
	Url       string    `json:"url"`
	Method    string    `json:"method"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
}
