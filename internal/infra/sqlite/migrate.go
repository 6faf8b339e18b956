package sqlite

import (
	"context"
	"embed"
	"io/fs"

	"github.com/unroll-ai/unroll/internal/infra/sqldb"
)

//go:embed migrations/*.up.sql
var migrations embed.FS

// MigrateUp applies all pending SQLite migrations. Already-applied migrations are skipped.
func MigrateUp(ctx context.Context, db *sqldb.DB) error {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	return sqldb.Migrate(ctx, db, sub)
}
