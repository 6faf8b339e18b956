package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unroll-ai/unroll/internal/version"
)

const rootLongDesc = `Unroll is a conversational hiring assistant. It answers questions about
your jobs, resumes and candidate analyses by calling read-only tools.

  unroll serve          Run the HTTP API (chat, conversations, tools, MCP)
  unroll migrate        Apply database migrations
  unroll seed           Insert demo records for a user
  unroll chat           Ask one question from the terminal`

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "unroll",
		Short:         "Unroll - hiring assistant",
		Long:          rootLongDesc,
		Version:       version.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetVersionTemplate(version.String() + "\n")
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", errUsage, err)
	})

	cmd.PersistentFlags().String(flagConfig, "", "Path to a config file (default: ./unroll.yaml when present)")

	cmd.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newSeedCmd(),
		newChatCmd(),
		newVersionCmd(),
	)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String()) //nolint:errcheck
		},
	}
}
