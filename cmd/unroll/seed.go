package main

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unroll-ai/unroll/internal/domain/hiring"
	"github.com/unroll-ai/unroll/internal/infra/config"
)

const flagUserID = "user-id"

func newSeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert demo jobs, resumes and analyses for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			userID, err := requireUserID(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			db, err := openDB(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			var one int
			err = db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, userID).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("user %d not found", userID)
			}
			if err != nil {
				return err
			}

			tx, err := db.Begin(ctx)
			if err != nil {
				return err
			}
			sum, err := hiring.SeedDemo(ctx, tx, userID)
			if err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("seed: %w", err)
			}
			if err := tx.Commit(); err != nil {
				return fmt.Errorf("seed: commit: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d jobs, %d resumes, %d analyses for user %d\n", //nolint:errcheck
				sum.Jobs, sum.Resumes, sum.Analyses, userID)
			return nil
		},
	}
	cmd.Flags().Int64(flagUserID, 0, "Owner of the demo records (required)")
	config.AddFlags(cmd, storageFlags...)
	return cmd
}

func requireUserID(cmd *cobra.Command) (int64, error) {
	id, err := cmd.Flags().GetInt64(flagUserID)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, fmt.Errorf("%w: --%s must be a positive user id", errUsage, flagUserID)
	}
	return id, nil
}
