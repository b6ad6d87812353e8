package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dshills/extload/internal/extension"
)

// candidateView is the printable form of a discovered extension.
type candidateView struct {
	Name    string `json:"name" yaml:"name" toml:"name"`
	Version string `json:"version,omitempty" yaml:"version,omitempty" toml:"version,omitempty"`
	Path    string `json:"path" yaml:"path" toml:"path"`
	Main    string `json:"main" yaml:"main" toml:"main"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty" toml:"error,omitempty"`
}

func viewCandidate(c *extension.Candidate) candidateView {
	v := candidateView{
		Name: c.Descriptor.Name,
		Path: c.Path,
		Main: c.Descriptor.MainModule,
	}
	if c.Metadata != nil {
		v.Version = c.Metadata.Version
	}
	if c.Err != nil {
		v.Error = c.Err.Error()
	}
	return v
}

// discovery scans paths, falling back to the configured search paths.
func (a *app) discovery(paths ...string) *extension.Discovery {
	opts := []extension.DiscoveryOption{
		extension.WithHostVersion(a.cfg.HostVersion()),
		extension.WithDefaultMain(a.cfg.Extensions.Main),
	}
	if len(paths) == 0 {
		paths = a.cfg.Extensions.Paths
	}
	if len(paths) > 0 {
		opts = append(opts, extension.WithSearchPaths(paths...))
	}
	return extension.NewDiscovery(opts...)
}

// resolveTargets turns command arguments into candidates. An argument that
// names a directory is inspected directly; anything else is looked up by
// name on the search paths.
func (a *app) resolveTargets(d *extension.Discovery, args []string) ([]*extension.Candidate, error) {
	out := make([]*extension.Candidate, 0, len(args))
	for _, arg := range args {
		if info, err := os.Stat(arg); err == nil && info.IsDir() {
			dir, err := filepath.Abs(arg)
			if err != nil {
				return nil, err
			}
			c := d.Inspect(dir)
			if c == nil {
				return nil, fmt.Errorf("%s: no extension found (missing %s and %s%s)",
					arg, extension.MetadataFile, a.cfg.Extensions.Main, ".lua")
			}
			out = append(out, c)
			continue
		}
		c, err := d.Find(arg)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
