package database

import (
	"path/filepath"
	"testing"
)

// setupTestDB opens an in-memory SQLite database with the full schema
// applied. The migrations directory is resolved relative to this package.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewDB(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	migrationsPath := filepath.Join("..", "..", "migrations")
	if err := db.RunMigrations(migrationsPath); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}
