package api

import (
	"log/slog"

	"creative-backend/internal/core"
	"creative-backend/internal/database"
	"creative-backend/pkg/api"
)

func convertEvaluation(e database.Evaluation, withResult bool) api.Evaluation {
	evaluation := api.Evaluation{
		Id:                 e.Id,
		Brand:              e.Brand,
		Category:           e.Category,
		Objective:          e.Objective,
		Status:             e.Status,
		Verdict:            e.Verdict.String,
		ConfidenceLevel:    e.ConfidenceLevel.String,
		HardGateFailed:     e.HardGateFailed,
		FailedHardGateRole: e.FailedHardGateRole.String,
		Error:              e.Error.String,
		CreationTime:       e.CreationTime,
	}
	if e.EffectivenessIndex.Valid {
		index := e.EffectivenessIndex.Float64
		evaluation.Index = &index
	}
	if e.CompletionTime.Valid {
		completion := e.CompletionTime.Time
		evaluation.CompletionTime = &completion
	}

	if withResult {
		result, err := e.DecodeResult()
		if err != nil {
			slog.Error("error decoding stored evaluation result", "evaluation_id", e.Id, "error", err)
		}
		evaluation.Result = result
	}
	return evaluation
}

func convertEvaluations(es []database.Evaluation, withResult bool) []api.Evaluation {
	evaluations := make([]api.Evaluation, 0, len(es))
	for _, e := range es {
		evaluations = append(evaluations, convertEvaluation(e, withResult))
	}
	return evaluations
}

// evaluationRecord flattens a stored evaluation for query filters. Role rows
// must be preloaded for SCORE conditions to match.
func evaluationRecord(e database.Evaluation) core.EvaluationRecord {
	record := core.EvaluationRecord{
		Brand:      e.Brand,
		Category:   e.Category,
		Objective:  e.Objective,
		Status:     e.Status,
		Verdict:    e.Verdict.String,
		Confidence: e.ConfidenceLevel.String,
		HardGate:   e.HardGateFailed,
		Scores:     make(map[string]*float64, len(e.Roles)),
	}
	if e.EffectivenessIndex.Valid {
		index := e.EffectivenessIndex.Float64
		record.Index = &index
	}
	for _, role := range e.Roles {
		var score *float64
		if role.Score.Valid {
			s := role.Score.Float64
			score = &s
		}
		record.Scores[core.ScoreKey(role.ShortName)] = score
	}
	return record
}
