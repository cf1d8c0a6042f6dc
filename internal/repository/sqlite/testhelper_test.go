package sqlite

import (
	"database/sql"
	"fmt"
	"net/url"
	"testing"
)

// setupTestDB opens a named shared in-memory database with the schema applied.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", url.PathEscape(t.Name())))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
