package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/extload/internal/modconfig"
)

func newValidateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <dir|name>...",
		Short: "Check extension metadata and module configuration",
		Long: `Validate checks each extension's package.json and requirejs-config.json
without executing any code:

- package.json must name the extension with a valid semver version
- the host version must satisfy engines.extload
- the main module must exist
- requirejs-config.json must match its schema`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			candidates, err := a.resolveTargets(a.discovery(), args)
			if err != nil {
				return err
			}

			st := newStyles(a.out)
			var failed int
			for _, c := range candidates {
				var problems []error
				if c.Err != nil {
					problems = append(problems, c.Err)
				}
				if _, err := modconfig.ReadManifestFromDir(c.Path); err != nil {
					problems = append(problems, err)
				}

				if len(problems) == 0 {
					fmt.Fprintf(a.out, "%s %s %s\n", st.mark(true), c.Descriptor.Name, st.dim.Render(c.Path))
					continue
				}
				failed++
				fmt.Fprintf(a.out, "%s %s %s\n", st.mark(false), c.Descriptor.Name, st.dim.Render(c.Path))
				for _, p := range problems {
					fmt.Fprintf(a.out, "    %v\n", p)
				}
			}
			if failed > 0 {
				return errors.New(plural(failed, "extension", "extensions") + " failed validation")
			}
			return nil
		},
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}
