package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/dshills/extload/internal/extension"
	extlua "github.com/dshills/extload/internal/extension/lua"
	"github.com/dshills/extload/internal/modconfig"
)

// resultView is the printable outcome of one load.
type resultView struct {
	Name      string `json:"name" yaml:"name" toml:"name"`
	BaseURL   string `json:"baseUrl" yaml:"baseUrl" toml:"baseUrl"`
	RequestID string `json:"requestId,omitempty" yaml:"requestId,omitempty" toml:"requestId,omitempty"`
	Status    string `json:"status" yaml:"status" toml:"status"`
	Kind      string `json:"kind,omitempty" yaml:"kind,omitempty" toml:"kind,omitempty"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty" toml:"error,omitempty"`
	Call      any    `json:"call,omitempty" yaml:"call,omitempty" toml:"call,omitempty"`
}

type loadReport struct {
	Extensions []resultView `json:"extensions" yaml:"extensions" toml:"extensions"`
	Resolution any          `json:"resolution,omitempty" yaml:"resolution,omitempty" toml:"resolution,omitempty"`
}

type loadOptions struct {
	format     string
	watch      bool
	call       string
	resolution bool
}

func newLoadCommand(a *app) *cobra.Command {
	var opts loadOptions
	cmd := &cobra.Command{
		Use:   "load [dir|name]...",
		Short: "Load extensions and run their init hooks",
		Long: `Load each extension, run its initExtension hook, and report the outcome.

Arguments are extension directories or names found on the search paths.
With no arguments every discovered extension is loaded.

Examples:
  extload load ./my-extension           Load one directory
  extload load --timeout 2s greeter     Load by name with a 2s init budget
  extload load --watch ./my-extension   Reload on every change
  extload load -o json --resolution     Print outcomes and the module table`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(opts.format); err != nil {
				return err
			}
			return a.runLoad(cmd.Context(), args, opts)
		},
	}

	flags := cmd.Flags()
	flags.Duration("timeout", 0, "Init hook budget (default from config, 10s)")
	flags.String("main", "", "Main module id for extensions without package.json")
	flags.Int("concurrency", 0, "Maximum concurrent loads")
	flags.BoolVarP(&opts.watch, "watch", "w", false, "Reload the extension when its files change")
	flags.StringVar(&opts.call, "call", "", "Call an exported function of each loaded extension")
	flags.BoolVar(&opts.resolution, "resolution", false, "Include the module-resolution table in the report")
	flags.StringVarP(&opts.format, "output", "o", formatText, "Output format (text, json, yaml, toml)")
	_ = a.v.BindPFlag("extensions.init_timeout", flags.Lookup("timeout"))
	_ = a.v.BindPFlag("extensions.main", flags.Lookup("main"))
	_ = a.v.BindPFlag("extensions.concurrency", flags.Lookup("concurrency"))
	return cmd
}

// newLoader wires the Lua runtime and the configured registry into a Loader.
func (a *app) newLoader() *extension.Loader {
	registry := modconfig.NewRegistry(modconfig.WithHostPaths(a.cfg.Extensions.Aliases))
	return extension.NewLoader(
		extlua.NewRuntime(),
		extension.WithRegistry(registry),
		extension.WithLogger(a.log),
		extension.WithSink(extension.NewLogSink(a.log.Named("diagnostics"))),
		extension.WithInitTimeout(a.cfg.Extensions.InitTimeout),
		extension.WithConcurrency(a.cfg.Extensions.Concurrency),
	)
}

func (a *app) runLoad(ctx context.Context, args []string, opts loadOptions) error {
	d := a.discovery()
	var candidates []*extension.Candidate
	var err error
	if len(args) == 0 {
		candidates, err = d.Discover()
	} else {
		candidates, err = a.resolveTargets(d, args)
	}
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return errors.New("no extensions to load")
	}

	loader := a.newLoader()
	defer func() {
		if err := loader.Close(); err != nil {
			a.log.Warn("close loader", zap.Error(err))
		}
	}()

	if opts.watch {
		return a.watch(ctx, loader, candidates, opts)
	}

	report := loadReport{Extensions: make([]resultView, 0, len(candidates))}
	var descs []extension.Descriptor
	for _, c := range candidates {
		if !c.Loadable() && len(args) == 0 {
			a.log.Warn("skipping extension",
				zap.String("extension", c.Descriptor.Name),
				zap.String("path", c.Path),
				zap.Error(c.Err))
			continue
		}
		if !c.Loadable() {
			report.Extensions = append(report.Extensions, resultView{
				Name:    c.Descriptor.Name,
				BaseURL: c.Descriptor.BaseURL,
				Status:  "skipped",
				Error:   c.Err.Error(),
			})
			continue
		}
		descs = append(descs, c.Descriptor)
	}

	for _, res := range loader.LoadAll(ctx, descs) {
		view := viewResult(res)
		if res.Err == nil && opts.call != "" {
			view.Call, view.Error = a.call(ctx, loader, res.Descriptor.Name, opts.call)
		}
		report.Extensions = append(report.Extensions, view)
	}

	if opts.resolution {
		doc, err := loader.Registry().Document()
		if err != nil {
			return fmt.Errorf("render resolution table: %w", err)
		}
		var v map[string]any
		if err := json.Unmarshal(doc, &v); err != nil {
			return err
		}
		report.Resolution = v
	}

	if opts.format == formatText {
		a.printLoadReport(report)
	} else if err := encode(a.out, opts.format, report); err != nil {
		return err
	}

	var failed int
	for _, v := range report.Extensions {
		if v.Status != "ready" {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%s did not load", plural(failed, "extension", "extensions"))
	}
	return nil
}

func (a *app) watch(ctx context.Context, loader *extension.Loader, candidates []*extension.Candidate, opts loadOptions) error {
	if len(candidates) != 1 {
		return errors.New("--watch takes exactly one extension")
	}
	c := candidates[0]
	if !c.Loadable() {
		return fmt.Errorf("%s: %w", c.Descriptor.Name, c.Err)
	}

	st := newStyles(a.out)
	fmt.Fprintf(a.out, "watching %s (Ctrl-C to stop)\n", c.Path)
	return loader.Watch(ctx, c.Descriptor, extension.WatchOptions{
		OnResult: func(res extension.Result) {
			view := viewResult(res)
			if res.Err == nil && opts.call != "" {
				view.Call, view.Error = a.call(ctx, loader, res.Descriptor.Name, opts.call)
			}
			a.printResult(st, view)
		},
	})
}

// call invokes fn on a loaded extension. Only Lua-backed modules export
// callable functions.
func (a *app) call(ctx context.Context, loader *extension.Loader, name, fn string) (any, string) {
	mod, ok := loader.Module(name)
	if !ok {
		return nil, extension.ErrNotLoaded.Error()
	}
	lm, ok := mod.(*extlua.Module)
	if !ok {
		return nil, fmt.Sprintf("%s: module does not export functions", name)
	}
	rets, err := lm.Call(ctx, fn)
	if err != nil {
		return nil, err.Error()
	}
	switch len(rets) {
	case 0:
		return nil, ""
	case 1:
		return rets[0], ""
	default:
		return rets, ""
	}
}

func viewResult(res extension.Result) resultView {
	view := resultView{
		Name:      res.Descriptor.Name,
		BaseURL:   res.Descriptor.BaseURL,
		RequestID: res.RequestID,
		Status:    "ready",
	}
	if res.Err != nil {
		view.Status = "failed"
		view.Error = res.Err.Error()
		if lerr, ok := extension.AsError(res.Err); ok {
			view.Kind = lerr.Kind.String()
		}
	}
	return view
}

func (a *app) printResult(st styles, v resultView) {
	fmt.Fprintf(a.out, "%s %s %s\n", st.mark(v.Status == "ready"), v.Name, st.dim.Render(v.Status))
	if v.Error != "" {
		fmt.Fprintf(a.out, "    %s\n", v.Error)
	}
	if v.Call != nil {
		fmt.Fprintf(a.out, "    => %v\n", v.Call)
	}
}

func (a *app) printLoadReport(r loadReport) {
	st := newStyles(a.out)
	var ready int
	for _, v := range r.Extensions {
		a.printResult(st, v)
		if v.Status == "ready" {
			ready++
		}
	}
	if r.Resolution != nil {
		doc, _ := json.MarshalIndent(r.Resolution, "", "  ")
		fmt.Fprintf(a.out, "\nresolution:\n%s\n", doc)
	}
	p := message.NewPrinter(language.English)
	p.Fprintf(a.out, "%d of %d extension(s) ready\n", ready, len(r.Extensions))
}
