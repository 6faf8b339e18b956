// Package postgres opens PostgreSQL databases through the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register the pgx PostgreSQL driver as "pgx"

	"github.com/unroll-ai/unroll/internal/infra/sqldb"
)

//go:embed migrations/*.up.sql
var migrations embed.FS

// NewDB opens a connection pool for connStr (a postgres:// URL or key=value DSN)
// and verifies it with a ping.
func NewDB(ctx context.Context, connStr string) (*sqldb.DB, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("postgres.NewDB: open: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres.NewDB: ping: %w", err)
	}

	return sqldb.Wrap(db, sqldb.DialectPostgres), nil
}

// MigrateUp applies all pending PostgreSQL migrations.
func MigrateUp(ctx context.Context, db *sqldb.DB) error {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	return sqldb.Migrate(ctx, db, sub)
}
