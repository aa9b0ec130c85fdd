package migrations_test

import (
	"testing"

	"classmirror/internal/database"
	"classmirror/internal/database/migrations"
)

func TestMigrateUp(t *testing.T) {
	db, err := database.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("OpenConnection() error = %v", err)
	}
	defer db.Close()

	// A fresh database is not at the latest version.
	if err := migrations.CheckStatus(db); err == nil {
		t.Error("CheckStatus() on empty database expected error")
	}

	if err := migrations.MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}
	if err := migrations.CheckStatus(db); err != nil {
		t.Errorf("CheckStatus() after migration error = %v", err)
	}

	// Re-running migrations is a no-op.
	if err := migrations.MigrateUp(db); err != nil {
		t.Errorf("second MigrateUp() error = %v", err)
	}

	// The schema is usable.
	if _, err := db.Exec(`INSERT INTO user (login, fullname, avatar_url, role) VALUES ('alice', '', '', 'student')`); err != nil {
		t.Errorf("insert into migrated schema error = %v", err)
	}
}
