package main

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:          "seed-worker",
	Short:        "Expand pending seeds into sprouts with a language model.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(templatesCmd)
	rootCmd.AddCommand(versionCmd)
}
