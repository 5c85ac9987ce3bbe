package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"creative-backend/pkg/api"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func isFinished(status string) bool {
	return status == JobCompleted || status == JobShortCircuited || status == JobFailed
}

func UpdateEvaluationStatus(ctx context.Context, txn *gorm.DB, evaluationId uuid.UUID, status string) error {
	updates := map[string]any{"status": status}
	switch {
	case status == JobRunning:
		updates["start_time"] = time.Now().UTC()
	case isFinished(status):
		updates["completion_time"] = time.Now().UTC()
	}

	if err := txn.WithContext(ctx).Model(&Evaluation{Id: evaluationId}).Updates(updates).Error; err != nil {
		slog.Error("error updating evaluation status", "evaluation_id", evaluationId, "status", status, "error", err)
		return err
	}
	return nil
}

func SaveEvaluationError(ctx context.Context, txn *gorm.DB, evaluationId uuid.UUID, errorMessage string) error {
	updates := map[string]any{
		"status":          JobFailed,
		"error":           sql.NullString{String: errorMessage, Valid: true},
		"completion_time": time.Now().UTC(),
	}
	if err := txn.WithContext(ctx).Model(&Evaluation{Id: evaluationId}).Updates(updates).Error; err != nil {
		slog.Error("error saving evaluation error", "evaluation_id", evaluationId, "error", err)
		return err
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func roleRows(evaluationId uuid.UUID, shortNames map[int]string, results []api.RoleResult) ([]RoleEvaluation, error) {
	rows := make([]RoleEvaluation, 0, len(results))
	for _, r := range results {
		layers, err := json.Marshal(r.LayerScores)
		if err != nil {
			return nil, fmt.Errorf("error serializing layer scores for role %d: %w", r.RoleId, err)
		}
		row := RoleEvaluation{
			EvaluationId:  evaluationId,
			RoleId:        r.RoleId,
			RoleName:      r.RoleName,
			ShortName:     shortNames[r.RoleId],
			IsHardGate:    r.IsHardGate,
			Verdict:       r.Verdict,
			Confidence:    r.Confidence,
			Justification: r.Justification,
			LayerScores:   layers,
		}
		if r.Score != nil {
			row.Score = sql.NullFloat64{Float64: *r.Score, Valid: true}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// SaveEvaluationResult stores a finished run: the summary columns, the full
// result document and one row per role, in a single transaction.
func SaveEvaluationResult(ctx context.Context, db *gorm.DB, evaluationId uuid.UUID, shortNames map[int]string, result *api.EvaluationResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("error serializing evaluation result: %w", err)
	}
	rows, err := roleRows(evaluationId, shortNames, result.RoleResults)
	if err != nil {
		return err
	}

	status := JobCompleted
	if result.HardGateFailed {
		status = JobShortCircuited
	}

	return db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		updates := map[string]any{
			"status":                status,
			"verdict":               nullString(result.FinalReport.Verdict),
			"effectiveness_index":   sql.NullFloat64{Float64: result.FinalEffectivenessIndex, Valid: true},
			"confidence_level":      nullString(result.FinalReport.ConfidenceLevel),
			"hard_gate_failed":      result.HardGateFailed,
			"failed_hard_gate_role": nullString(result.FailedHardGateRole),
			"result":                data,
			"completion_time":       time.Now().UTC(),
		}
		if err := txn.Model(&Evaluation{Id: evaluationId}).Updates(updates).Error; err != nil {
			return fmt.Errorf("error updating evaluation: %w", err)
		}

		if err := txn.Where("evaluation_id = ?", evaluationId).Delete(&RoleEvaluation{}).Error; err != nil {
			return fmt.Errorf("error clearing old role results: %w", err)
		}
		if len(rows) > 0 {
			if err := txn.Create(&rows).Error; err != nil {
				return fmt.Errorf("error saving role results: %w", err)
			}
		}
		return nil
	})
}

func SetArchiveKey(ctx context.Context, txn *gorm.DB, evaluationId uuid.UUID, key string) error {
	if err := txn.WithContext(ctx).Model(&Evaluation{Id: evaluationId}).Update("archive_key", nullString(key)).Error; err != nil {
		return fmt.Errorf("error saving archive key: %w", err)
	}
	return nil
}
