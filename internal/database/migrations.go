package database

import (
	"log"
	"log/slog"

	"creative-backend/internal/database/versions/migration_0"
	"creative-backend/internal/database/versions/migration_1"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func GetMigrator(db *gorm.DB) *gormigrate.Gormigrate {
	migrator := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID:      "0",
			Migrate: migration_0.Migration,
		},
		{
			ID:       "1",
			Migrate:  migration_1.Migration,
			Rollback: migration_1.Rollback,
		},
	})

	migrator.InitSchema(func(txn *gorm.DB) error {
		// This is run by the migrator if no previous migration is detected. It
		// allows it to bypass running all the migrations sequentially and just create
		// the latest database state.

		log.Println("clean database detected, running full schema initialization")

		dbType := db.Dialector.Name()
		if dbType == "sqlite" || dbType == "sqlite3" {
			// Sqlite does not enable foreign key constraints by default, so we need to enable them manually.
			if err := txn.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
				slog.Error("error enabling foreign keys for SQLite", "error", err)
			}
		}

		return db.AutoMigrate(&Evaluation{}, &RoleEvaluation{})
	})

	return migrator
}
