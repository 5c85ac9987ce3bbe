package migration_0

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Evaluation struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Brand     string `gorm:"index"`
	Category  string
	Objective string
	Status    string `gorm:"size:20;not null"`

	Input datatypes.JSON `gorm:"type:jsonb;not null"`

	Verdict            sql.NullString `gorm:"size:40"`
	EffectivenessIndex sql.NullFloat64
	ConfidenceLevel    sql.NullString `gorm:"size:10"`
	HardGateFailed     bool           `gorm:"default:false"`
	FailedHardGateRole sql.NullString
	Result             datatypes.JSON `gorm:"type:jsonb"`
	Error              sql.NullString

	CreationTime   time.Time
	StartTime      sql.NullTime
	CompletionTime sql.NullTime

	Roles []RoleEvaluation `gorm:"foreignKey:EvaluationId;constraint:OnDelete:CASCADE"`
}

type RoleEvaluation struct {
	EvaluationId uuid.UUID `gorm:"type:uuid;primaryKey"`
	RoleId       int       `gorm:"primaryKey"`

	RoleName      string
	ShortName     string
	IsHardGate    bool
	Verdict       string `gorm:"size:10;not null"`
	Score         sql.NullFloat64
	Confidence    float64
	Justification string
	LayerScores   datatypes.JSON `gorm:"type:jsonb"`
}

func Migration(db *gorm.DB) error {
	if err := db.AutoMigrate(&Evaluation{}, &RoleEvaluation{}); err != nil {
		return fmt.Errorf("initial migration failed: %w", err)
	}
	return nil
}
