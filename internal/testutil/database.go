package testutil

import (
	"testing"

	"gb-go/internal/database"
)

// NewTestRunStore creates a new in-memory run catalog with migrations applied.
// The database is automatically closed when the test completes.
func NewTestRunStore(t *testing.T) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}
