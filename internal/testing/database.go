package testing

import (
	"database/sql"
	"testing"

	"github.com/teranos/lpharvest/db"
)

// CreateTestDB opens an in-memory SQLite database with the harvest schema
// applied. It is closed via t.Cleanup.
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := db.Open(":memory:", nil)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	// every :memory: connection is a separate database
	conn.SetMaxOpenConns(1)

	if err := db.Migrate(conn, nil); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return conn
}
