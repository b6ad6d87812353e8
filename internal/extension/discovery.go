package extension

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/Masterminds/semver/v3"

	"github.com/dshills/extload/internal/modconfig"
)

// Candidate is an extension directory found by discovery.
type Candidate struct {
	Descriptor Descriptor
	Path       string
	Metadata   *Metadata
	Err        error
}

// Loadable reports whether the candidate can be handed to a Loader.
func (c *Candidate) Loadable() bool {
	return c.Err == nil
}

// Discovery finds extension directories under a set of search paths.
type Discovery struct {
	paths       []string
	hostVersion *semver.Version
	mainModule  string
}

// DiscoveryOption configures a Discovery.
type DiscoveryOption func(*Discovery)

// WithSearchPaths sets the directories to scan, in priority order.
func WithSearchPaths(paths ...string) DiscoveryOption {
	return func(d *Discovery) {
		d.paths = paths
	}
}

// WithHostVersion enables engine constraint checks against v.
func WithHostVersion(v *semver.Version) DiscoveryOption {
	return func(d *Discovery) {
		d.hostVersion = v
	}
}

// WithDefaultMain sets the main module id for extensions without metadata.
func WithDefaultMain(id string) DiscoveryOption {
	return func(d *Discovery) {
		d.mainModule = id
	}
}

// NewDiscovery creates a discovery over DefaultSearchPaths unless configured.
func NewDiscovery(opts ...DiscoveryOption) *Discovery {
	d := &Discovery{
		paths:      DefaultSearchPaths(),
		mainModule: DefaultMainModule,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DefaultSearchPaths returns the default extension directories.
func DefaultSearchPaths() []string {
	paths := make([]string, 0, 3)

	// User extensions: ~/.config/extload/extensions/
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "extload", "extensions"))
		paths = append(paths, filepath.Join(home, ".local", "share", "extload", "extensions"))
	}

	// Project extensions: .extload/extensions/
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".extload", "extensions"))
	}

	return paths
}

// Paths returns the configured search paths.
func (d *Discovery) Paths() []string {
	return d.paths
}

// Discover scans every search path. When two directories declare the same
// name, the one in the earlier path wins. Results are sorted by name.
func (d *Discovery) Discover() ([]*Candidate, error) {
	found := make(map[string]*Candidate)

	for _, base := range d.paths {
		entries, err := os.ReadDir(base)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("scan %s: %w", base, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			c := d.Inspect(filepath.Join(base, entry.Name()))
			if c == nil {
				continue
			}
			if _, exists := found[c.Descriptor.Name]; !exists {
				found[c.Descriptor.Name] = c
			}
		}
	}

	out := make([]*Candidate, 0, len(found))
	for _, c := range found {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Descriptor.Name < out[j].Descriptor.Name
	})
	return out, nil
}

// Inspect examines one directory. It returns nil when the directory holds
// neither metadata nor a main module.
func (d *Discovery) Inspect(dir string) *Candidate {
	c := &Candidate{
		Path: dir,
		Descriptor: Descriptor{
			Name:       filepath.Base(dir),
			BaseURL:    dir,
			MainModule: d.mainModule,
		},
	}

	meta, err := LoadMetadata(dir)
	switch {
	case err != nil:
		c.Err = err
		return c
	case meta != nil:
		c.Metadata = meta
		c.Descriptor.Name = meta.Name
		if meta.Main != "" {
			c.Descriptor.MainModule = meta.MainModule()
		}
		if err := meta.CheckEngine(d.hostVersion); err != nil {
			c.Err = err
			return c
		}
	}

	mainPath := filepath.Join(dir, filepath.FromSlash(c.Descriptor.MainModule)+modconfig.ModuleExt)
	if _, err := os.Stat(mainPath); err != nil {
		if meta == nil {
			return nil
		}
		c.Err = &ModuleNotFoundError{Module: c.Descriptor.MainModule, Path: mainPath}
	}
	return c
}

// Find returns the first candidate with the given name.
func (d *Discovery) Find(name string) (*Candidate, error) {
	all, err := d.Discover()
	if err != nil {
		return nil, err
	}
	for _, c := range all {
		if c.Descriptor.Name == name {
			return c, nil
		}
	}
	return nil, fmt.Errorf("extension %q: %w", name, os.ErrNotExist)
}
