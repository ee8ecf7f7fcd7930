package main

import (
	"fmt"

	"github.com/seednote/seed-worker/internal/expansion"
	"github.com/spf13/cobra"
)

var showTemplate string

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List the embedded prompt templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		if showTemplate != "" {
			data, err := expansion.Raw(showTemplate)
			if err != nil {
				return err
			}
			_, err = out.Write(data)
			return err
		}

		for _, name := range expansion.Names() {
			tmpl, err := expansion.LoadTemplate(name)
			if err != nil {
				return err
			}
			marker := " "
			if name == expansion.DefaultTemplate {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %-10s %s\n", marker, tmpl.Name, tmpl.Description)
		}
		return nil
	},
}

func init() {
	templatesCmd.Flags().StringVar(&showTemplate, "show", "", "Print the descriptor of the named template")
}
