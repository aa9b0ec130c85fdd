package database

import (
	"fmt"

	"classmirror/internal/config"
	"classmirror/internal/database/migrations"
)

// NewDatabaseFromConfig creates a SQLiteDatabase based on the database
// config type, applying any pending schema migrations.
func NewDatabaseFromConfig(cfg config.DatabaseConfig) (*SQLiteDatabase, error) {
	var path string
	switch cfg.Type {
	case "memory":
		path = ":memory:"
	case "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite database requires path to be set")
		}
		path = cfg.Path
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}

	db, err := NewSQLiteDatabase(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db.db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return db, nil
}
