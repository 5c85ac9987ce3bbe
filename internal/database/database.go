package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const SqlitePrefix = "sqlite://"

// NewDatabase opens the database at databaseURL and applies migrations. URLs
// starting with "sqlite://" open a SQLite file, anything else is treated as a
// Postgres DSN.
func NewDatabase(databaseURL string) (*gorm.DB, error) {
	slog.Info("connecting to database")

	var dialector gorm.Dialector
	path, isSqlite := strings.CutPrefix(databaseURL, SqlitePrefix)
	if isSqlite {
		dialector = sqlite.Open(path)
	} else {
		dialector = postgres.Open(databaseURL)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unable to get database handle: %w", err)
	}
	if isSqlite {
		// SQLite allows a single writer.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(10)
	}
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxIdleTime(time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	if err := GetMigrator(db).Migrate(); err != nil {
		return nil, fmt.Errorf("unable to migrate database: %w", err)
	}

	slog.Info("database connection established")
	return db, nil
}
