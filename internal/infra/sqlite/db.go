// Package sqlite opens the default SQLite database.
// Uses modernc.org/sqlite, a pure-Go driver (no CGO required).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/unroll-ai/unroll/internal/infra/sqldb"

	// Register the modernc sqlite driver under the name "sqlite"
	_ "modernc.org/sqlite"
)

// Option configures NewDB.
type Option func(*options)

type options struct {
	busyTimeout time.Duration
}

// WithBusyTimeout sets how long a statement waits for a lock held by another
// connection before failing with SQLITE_BUSY.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) { o.busyTimeout = d }
}

// NewDB opens (or creates) a SQLite database at path and configures it for production use:
//   - WAL journal mode (concurrent reads while a turn holds the write lock)
//   - Foreign key enforcement (SQLite disables FKs by default)
//   - 5-second busy timeout (WithBusyTimeout changes it)
//   - Synchronous=NORMAL (safe + faster than FULL for WAL mode)
//
// Use ":memory:" as path for in-memory databases in tests.
// Returns an error if the parent directory does not exist (will not create it).
func NewDB(path string, opts ...Option) (*sqldb.DB, error) {
	o := options{busyTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return nil, fmt.Errorf("sqlite.NewDB: parent directory %q does not exist", dir)
		}
	}

	dsn := path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(ON)" +
		"&_pragma=busy_timeout(" + strconv.FormatInt(o.busyTimeout.Milliseconds(), 10) + ")" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=cache_size(-64000)" + // 64MB page cache (negative = KB)
		"&_pragma=temp_store(MEMORY)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite.NewDB: open %q: %w", path, err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.NewDB: ping %q: %w", path, err)
	}

	return sqldb.Wrap(db, sqldb.DialectSQLite), nil
}

// NewMemoryDB opens a private in-memory database with all migrations applied.
// It is limited to one connection: every connection to ":memory:" would
// otherwise see its own empty database.
func NewMemoryDB(ctx context.Context) (*sqldb.DB, error) {
	db, err := NewDB(":memory:")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := MigrateUp(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.NewMemoryDB: migrate: %w", err)
	}
	return db, nil
}
