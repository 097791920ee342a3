// Package testing provides test helpers shared across the graham packages:
// migrated throwaway databases and synthetic market data.
package testing

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/aristath/graham/internal/database"
	_ "github.com/mattn/go-sqlite3"
)

// NewTestDB creates a temporary file database through the production database
// package with the schema for name applied ("history", "ledger"; other names
// get an empty database). The database is closed and removed on test cleanup.
func NewTestDB(t *testing.T, name string) *database.DB {
	t.Helper()

	profile := database.ProfileStandard
	if name == database.NameLedger {
		profile = database.ProfileLedger
	}

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), fmt.Sprintf("test_%s.db", name)),
		Profile: profile,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
	})

	if err := db.Migrate(); err != nil {
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	return db
}

// NewMemoryDB opens an in-memory mattn/go-sqlite3 database with the named
// schema file (e.g. "history_schema.sql") applied.
func NewMemoryDB(t *testing.T, schemaName string) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	// Every connection to ":memory:" is a new database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	schema, err := LoadTestSchema(schemaName)
	if err != nil {
		t.Fatalf("Failed to load schema %s: %v", schemaName, err)
	}
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("Failed to apply schema %s: %v", schemaName, err)
	}

	return db
}

// LoadTestSchema returns the contents of a schema file from internal/database/schemas.
func LoadTestSchema(schemaName string) (string, error) {
	_, currentFile, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to get caller information")
	}

	schemaPath := filepath.Join(filepath.Dir(currentFile), "..", "database", "schemas", schemaName)
	content, err := os.ReadFile(schemaPath)
	if err != nil {
		return "", fmt.Errorf("failed to read schema file %s: %w", schemaPath, err)
	}

	return string(content), nil
}
