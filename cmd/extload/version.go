package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(a.out, "extload %s\n", version)
			fmt.Fprintf(a.out, "Commit: %s\n", commit)
			fmt.Fprintf(a.out, "Built: %s\n", date)
			fmt.Fprintf(a.out, "Host API: %s\n", a.cfg.Host.Version)
			return nil
		},
	}
}
