package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	JobQueued         string = "QUEUED"
	JobRunning        string = "RUNNING"
	JobCompleted      string = "COMPLETED"
	JobShortCircuited string = "SHORT_CIRCUITED"
	JobFailed         string = "FAILED"
)

type Evaluation struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Brand     string `gorm:"index"`
	Category  string
	Objective string
	Status    string `gorm:"size:20;not null"`

	Input datatypes.JSON `gorm:"type:jsonb;not null"`

	Verdict            sql.NullString `gorm:"size:40;index"`
	EffectivenessIndex sql.NullFloat64
	ConfidenceLevel    sql.NullString `gorm:"size:10"`
	HardGateFailed     bool           `gorm:"default:false"`
	FailedHardGateRole sql.NullString
	Result             datatypes.JSON `gorm:"type:jsonb"`
	ArchiveKey         sql.NullString
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
