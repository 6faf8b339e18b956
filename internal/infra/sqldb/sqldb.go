// Package sqldb wraps database/sql with the small amount of dialect awareness
// the application needs to run the same SQL on SQLite and PostgreSQL.
//
// All queries in the codebase are written with "?" placeholders. For the
// PostgreSQL dialect they are rebound to "$1, $2, ..." before reaching the driver.
//
// SQLite allows a single writer. Transactions on a SQLite DB therefore pass
// through a FIFO gate: a second Begin waits, honouring its context, until the
// running transaction commits or rolls back, instead of failing with
// SQLITE_BUSY once the busy timeout expires. Writes on SQLite go through Begin.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Dialect identifies the SQL flavour spoken by the underlying driver.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// ParseDialect maps a configured driver name onto a Dialect.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("sqldb: unsupported driver %q", name)
	}
}

// Querier is the statement surface shared by *DB and *Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB is a *sql.DB that rebinds placeholders for its dialect.
type DB struct {
	*sql.DB
	dialect Dialect
	// writers serializes transactions; nil when the engine has row locks.
	writers *semaphore.Weighted
}

// Wrap pairs an open *sql.DB with its dialect.
func Wrap(db *sql.DB, dialect Dialect) *DB {
	d := &DB{DB: db, dialect: dialect}
	if dialect == DialectSQLite {
		d.writers = semaphore.NewWeighted(1)
	}
	return d
}

// Dialect returns the dialect the DB was opened with.
func (d *DB) Dialect() Dialect { return d.dialect }

func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.DB.ExecContext(ctx, Rebind(d.dialect, query), args...)
}

func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.DB.QueryContext(ctx, Rebind(d.dialect, query), args...)
}

func (d *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return d.DB.QueryRowContext(ctx, Rebind(d.dialect, query), args...)
}

// Begin starts a read-write transaction. On SQLite it first waits for the
// running transaction to end, or for ctx to be done.
func (d *DB) Begin(ctx context.Context) (*Tx, error) {
	release := func() {}
	if d.writers != nil {
		if err := d.writers.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("sqldb: begin: waiting for the running transaction: %w", err)
		}
		release = func() { d.writers.Release(1) }
	}

	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		release()
		return nil, fmt.Errorf("sqldb: begin: %w", err)
	}
	t := &Tx{tx: tx, dialect: d.dialect}
	t.release = sync.OnceFunc(release)
	// database/sql rolls the transaction back when ctx is done; the gate
	// opens with it.
	t.stop = context.AfterFunc(ctx, t.release)
	return t, nil
}

// Tx is a *sql.Tx that rebinds placeholders for its dialect.
type Tx struct {
	tx      *sql.Tx
	dialect Dialect
	release func()
	stop    func() bool
}

func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, Rebind(t.dialect, query), args...)
}

func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, Rebind(t.dialect, query), args...)
}

func (t *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, Rebind(t.dialect, query), args...)
}

func (t *Tx) Commit() error {
	defer t.end()
	return t.tx.Commit()
}

func (t *Tx) Rollback() error {
	defer t.end()
	return t.tx.Rollback()
}

func (t *Tx) end() {
	t.stop()
	t.release()
}

// Rebind rewrites "?" placeholders to "$n" for PostgreSQL. Question marks inside
// single-quoted literals are left alone.
func Rebind(dialect Dialect, query string) string {
	if dialect != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
