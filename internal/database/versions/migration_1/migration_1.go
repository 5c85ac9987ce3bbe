package migration_1

import (
	"database/sql"
	"fmt"

	"gorm.io/gorm"
)

// Evaluation only declares the fields this migration touches.
type Evaluation struct {
	Verdict    sql.NullString `gorm:"size:40;index"`
	ArchiveKey sql.NullString
}

func Migration(db *gorm.DB) error {
	if err := db.Migrator().AddColumn(&Evaluation{}, "ArchiveKey"); err != nil {
		return fmt.Errorf("error adding archive_key column: %w", err)
	}

	if !db.Migrator().HasIndex(&Evaluation{}, "Verdict") {
		if err := db.Migrator().CreateIndex(&Evaluation{}, "Verdict"); err != nil {
			return fmt.Errorf("error creating verdict index: %w", err)
		}
	}

	return nil
}

func Rollback(db *gorm.DB) error {
	if err := db.Migrator().DropIndex(&Evaluation{}, "Verdict"); err != nil {
		return fmt.Errorf("error dropping verdict index: %w", err)
	}

	if err := db.Migrator().DropColumn(&Evaluation{}, "ArchiveKey"); err != nil {
		return fmt.Errorf("error dropping archive_key column: %w", err)
	}

	return nil
}
