package store

import (
	"os"
	"path/filepath"
	"testing"
)

// tempDBPath returns a path to a temp database file.
func tempDBPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "test.db")
}

// setupTestDB creates a new temporary database for testing.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(tempDBPath(t))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func TestOpen(t *testing.T) {
	path := tempDBPath(t)
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("database file does not exist at %s", path)
	}
}

func TestOpenCreatesParentDirs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "deep", "state.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Dir(path)); os.IsNotExist(err) {
		t.Error("parent directories were not created")
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db := setupTestDB(t)

	// Running migrations twice must be a no-op.
	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}

	var version int
	row := db.QueryRow("SELECT MAX(version) FROM schema_version")
	if err := row.Scan(&version); err != nil {
		t.Fatalf("read schema version: %v", err)
	}
	if version != 4 {
		t.Errorf("schema version = %d, want 4", version)
	}
}
