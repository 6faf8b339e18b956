package tool

import (
	"context"
	"testing"

	"github.com/unroll-ai/unroll/internal/domain/scope"
	"github.com/unroll-ai/unroll/internal/infra/sqldb"
	"github.com/unroll-ai/unroll/internal/infra/sqlite"
)

func openToolTestDB(t *testing.T) *sqldb.DB {
	t.Helper()
	db, err := sqlite.NewMemoryDB(context.Background())
	if err != nil {
		t.Fatalf("sqlite.NewMemoryDB failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func createToolUser(t *testing.T, db *sqldb.DB, email string) int64 {
	t.Helper()
	var id int64
	err := db.QueryRowContext(context.Background(),
		`INSERT INTO users (email, full_name, password_hash, created_at) VALUES (?, ?, ?, ?) RETURNING id`,
		email, "Test User", "x", sqldb.FormatTime(sqldb.Now()),
	).Scan(&id)
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return id
}

// openToolScope opens an owned scope; seed data must be written before,
// because the scope holds the single in-memory connection until cleanup.
func openToolScope(t *testing.T, db *sqldb.DB, userID int64) *scope.Scope {
	t.Helper()
	sc, err := scope.Open(context.Background(), scope.FromDB(db), userID)
	if err != nil {
		t.Fatalf("scope.Open failed: %v", err)
	}
	t.Cleanup(func() { _ = sc.Release(false) })
	return sc
}

func newBuiltinRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	if err := RegisterBuiltins(r); err != nil {
		t.Fatalf("RegisterBuiltins failed: %v", err)
	}
	return r
}
