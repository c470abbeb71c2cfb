package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iota-uz/member-import/pkg/configuration"
)

func newGroupsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "groups",
		Short: "Manage the group tree",
	}
	cmd.AddCommand(newGroupsSeedCmd())
	return cmd
}

func newGroupsSeedCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the groups of a YAML group tree in Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(path) == "" {
				return withCode(exitUsage, fmt.Errorf("--groups is required"))
			}
			ctx, b, err := openBackend(cmd.Context(), backendPostgres)
			if err != nil {
				return err
			}
			defer b.close()
			if err := seedGroups(ctx, b, path, configuration.Use().Logger()); err != nil {
				return err
			}
			return writeJSONLine(cmd.OutOrStdout(), map[string]any{"status": "ok", "groups": path})
		},
	}
	cmd.Flags().StringVar(&path, "groups", configuration.Use().Import.GroupsFile, "Group tree YAML")
	return cmd
}
