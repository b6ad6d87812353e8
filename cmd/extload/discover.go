package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

type discoverReport struct {
	SearchPaths []string        `json:"searchPaths" yaml:"searchPaths" toml:"searchPaths"`
	Extensions  []candidateView `json:"extensions" yaml:"extensions" toml:"extensions"`
}

func newDiscoverCommand(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "discover [path...]",
		Short: "List extensions on the search paths",
		Long: `List every extension directory under the configured search paths, or
under the given paths instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			d := a.discovery(args...)
			found, err := d.Discover()
			if err != nil {
				return err
			}

			report := discoverReport{SearchPaths: d.Paths(), Extensions: []candidateView{}}
			for _, c := range found {
				report.Extensions = append(report.Extensions, viewCandidate(c))
			}
			if format != formatText {
				return encode(a.out, format, report)
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tVERSION\tMAIN\tPATH\tSTATUS")
			for _, v := range report.Extensions {
				status := "ok"
				if v.Error != "" {
					status = v.Error
				}
				version := v.Version
				if version == "" {
					version = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", v.Name, version, v.Main, v.Path, status)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			p := message.NewPrinter(language.English)
			p.Fprintf(a.out, "%d extension(s) found in %d search path(s)\n", len(report.Extensions), len(report.SearchPaths))
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", formatText, "Output format (text, json, yaml, toml)")
	return cmd
}
