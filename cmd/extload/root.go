package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/dshills/extload/internal/config"
	"github.com/dshills/extload/internal/logging"
)

// app carries state shared by every subcommand.
type app struct {
	out    io.Writer
	errOut io.Writer

	v          *viper.Viper
	configFile string
	envFile    string

	cfg *config.Config
	log *zap.Logger
}

func newApp(out, errOut io.Writer) *app {
	return &app{out: out, errOut: errOut, v: viper.New()}
}

// setup loads configuration and builds the logger. It runs before every
// subcommand.
func (a *app) setup() error {
	cfg, err := config.Load(config.Options{
		File:    a.configFile,
		EnvFile: a.envFile,
		Viper:   a.v,
	})
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	a.cfg = cfg
	a.log = log
	return nil
}

func (a *app) teardown() {
	if a.log != nil {
		_ = a.log.Sync()
	}
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "extload",
		Short: "Load and supervise Lua extensions",
		Long: `extload loads Lua extensions from their directories, merges each one's
requirejs-config.json into a shared module-resolution table, executes the
main module and supervises its initExtension hook under a timeout.

Every failed load is reported as a single [Extension] diagnostic.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.teardown()
		},
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "Path to configuration file")
	flags.StringVar(&a.envFile, "env-file", "", "Path to a dotenv file (default .env)")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("log-format", "", "Log format (auto, json, console)")
	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("log.format", flags.Lookup("log-format"))

	root.AddCommand(
		newLoadCommand(a),
		newDiscoverCommand(a),
		newValidateCommand(a),
		newConfigCommand(a),
		newVersionCommand(a),
	)
	return root
}
