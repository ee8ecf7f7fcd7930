package main

import (
	"fmt"

	"github.com/seednote/seed-worker/pkg/version"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print seed-worker version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "Seed worker version: %s\n", version.Get())
		return nil
	},
}
