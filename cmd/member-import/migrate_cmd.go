package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iota-uz/member-import/modules/members/infrastructure/persistence"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the member store migrations to Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := connectDB(ctx)
			if err != nil {
				return withCode(exitDB, err)
			}
			defer pool.Close()

			version, err := persistence.Migrate(ctx, pool)
			if err != nil {
				return withCode(exitDB, fmt.Errorf("migrate: %w", err))
			}
			return writeJSONLine(cmd.OutOrStdout(), map[string]any{"status": "ok", "version": version})
		},
	}
}
