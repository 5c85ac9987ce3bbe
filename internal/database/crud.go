package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"creative-backend/pkg/api"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrEvaluationNotFound = errors.New("evaluation not found")

func CreateEvaluation(ctx context.Context, db *gorm.DB, input api.EvaluationInput) (*Evaluation, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("error serializing evaluation input: %w", err)
	}

	evaluation := Evaluation{
		Id:           uuid.New(),
		Brand:        input.BrandName,
		Category:     input.Category,
		Objective:    input.CampaignObjective,
		Status:       JobQueued,
		Input:        datatypes.JSON(data),
		CreationTime: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(&evaluation).Error; err != nil {
		return nil, fmt.Errorf("error creating evaluation: %w", err)
	}
	return &evaluation, nil
}

func GetEvaluation(ctx context.Context, db *gorm.DB, evaluationId uuid.UUID) (*Evaluation, error) {
	var evaluation Evaluation
	err := db.WithContext(ctx).
		Preload("Roles", func(db *gorm.DB) *gorm.DB { return db.Order("role_id") }).
		First(&evaluation, "id = ?", evaluationId).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEvaluationNotFound
		}
		return nil, fmt.Errorf("error getting evaluation %s: %w", evaluationId, err)
	}
	return &evaluation, nil
}

type ListOptions struct {
	Limit   int
	Offset  int
	Verdict string
	Status  string
}

// ListEvaluations returns evaluations newest first, with their role rows.
func ListEvaluations(ctx context.Context, db *gorm.DB, opts ListOptions) ([]Evaluation, error) {
	query := db.WithContext(ctx).
		Preload("Roles", func(db *gorm.DB) *gorm.DB { return db.Order("role_id") }).
		Order("creation_time DESC")
	if opts.Verdict != "" {
		query = query.Where("verdict = ?", opts.Verdict)
	}
	if opts.Status != "" {
		query = query.Where("status = ?", opts.Status)
	}
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}

	var evaluations []Evaluation
	if err := query.Find(&evaluations).Error; err != nil {
		return nil, fmt.Errorf("error listing evaluations: %w", err)
	}
	return evaluations, nil
}

// QueuedEvaluations returns evaluations that were accepted but never started,
// oldest first.
func QueuedEvaluations(ctx context.Context, db *gorm.DB) ([]Evaluation, error) {
	var evaluations []Evaluation
	if err := db.WithContext(ctx).Where("status = ?", JobQueued).Order("creation_time").Find(&evaluations).Error; err != nil {
		return nil, fmt.Errorf("error listing queued evaluations: %w", err)
	}
	return evaluations, nil
}

func (e *Evaluation) DecodeInput() (api.EvaluationInput, error) {
	var input api.EvaluationInput
	if err := json.Unmarshal(e.Input, &input); err != nil {
		return input, fmt.Errorf("error decoding evaluation input: %w", err)
	}
	return input, nil
}

func (e *Evaluation) DecodeResult() (*api.EvaluationResult, error) {
	if len(e.Result) == 0 {
		return nil, nil
	}
	var result api.EvaluationResult
	if err := json.Unmarshal(e.Result, &result); err != nil {
		return nil, fmt.Errorf("error decoding evaluation result: %w", err)
	}
	return &result, nil
}
