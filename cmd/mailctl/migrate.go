package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mailroute/mailroute/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

func newMigrateCmd(command, short string) *cobra.Command {
	return &cobra.Command{
		Use:   command,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, _, repo, cleanup, err := connect(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			logger := newLogger()
			if command == "status" || command == "version" {
				// goose reports through its logger, so the report must not be filtered.
				logger = slog.New(slog.NewTextHandler(cmd.OutOrStdout(), nil))
			}
			return migrations.Migrate(ctx, repo.Pool(), command, logger)
		},
	}
}

func init() {
	migrateCmd.AddCommand(
		newMigrateCmd("up", "Apply all pending migrations"),
		newMigrateCmd("down", "Roll back the most recent migration"),
		newMigrateCmd("status", "Show applied and pending migrations"),
		newMigrateCmd("version", "Print the current schema version"),
	)
}
