package main

import (
	"github.com/spf13/cobra"
)

func newConfigCommand(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration after merging defaults, configuration files,
environment variables and flags.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format == formatText {
				format = formatTOML
			}
			if err := checkFormat(format); err != nil {
				return err
			}
			return encode(a.out, format, a.cfg)
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", formatTOML, "Output format (json, yaml, toml)")
	return cmd
}
