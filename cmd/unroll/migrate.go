package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unroll-ai/unroll/internal/infra/config"
	"github.com/unroll-ai/unroll/internal/infra/sqldb"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			db, err := openDB(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			v, err := sqldb.MigrationVersion(cmd.Context(), db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s schema at version %d\n", cfg.Database.Driver, v) //nolint:errcheck
			return nil
		},
	}
	config.AddFlags(cmd, storageFlags...)
	return cmd
}
