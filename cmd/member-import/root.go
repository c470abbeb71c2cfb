package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	importersvc "github.com/iota-uz/member-import/modules/importer/services"
	"github.com/iota-uz/member-import/modules/netenv/infrastructure/source"
	"github.com/iota-uz/member-import/pkg/configuration"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "member-import",
		Short:         "Import and reconcile a netenv member export",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newGroupsCmd())
	cmd.AddCommand(newMembershipCmd())
	return cmd
}

func Execute() {
	err := newRootCmd().Execute()
	configuration.Use().Unload()
	if err != nil {
		code := exitCode(err)
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(code)
	}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ce *cliError
	switch {
	case errors.As(err, &ce):
		return ce.code
	case errors.Is(err, importersvc.ErrCheckpoint):
		return exitCheckpoint
	case errors.Is(err, source.ErrUnknownFormat):
		return exitInput
	}
	return 1
}
