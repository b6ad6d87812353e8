package modconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tidwall/sjson"
)

// ConflictScope identifies what an extension declaration collided with.
type ConflictScope string

// Conflict scopes.
const (
	ScopeHost      ConflictScope = "host"
	ScopeExtension ConflictScope = "extension"
)

// Conflict is a manifest declaration that was not merged because it would
// have replaced an existing one.
type Conflict struct {
	Extension string
	Kind      string // "path", "shim" or "config"
	Key       string
	Scope     ConflictScope
}

// String returns a human-readable description of the conflict.
func (c Conflict) String() string {
	return fmt.Sprintf("%s %q of %s collides with existing %s declaration", c.Kind, c.Key, c.Extension, c.Scope)
}

// Registry is the host-level module-resolution table, partitioned by
// extension name. It is safe for concurrent use.
type Registry struct {
	mu sync.RWMutex

	host       map[string]PathList
	namespaces map[string]*namespace
}

type namespace struct {
	baseDir string
	paths   map[string]PathList
	shim    map[string]Shim
	config  json.RawMessage
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithHostPaths adds host-level aliases visible to every extension.
// Relative targets are ignored; host aliases must be absolute.
func WithHostPaths(paths map[string]string) RegistryOption {
	return func(r *Registry) {
		for alias, target := range paths {
			if alias != "" && filepath.IsAbs(target) {
				r.host[alias] = PathList{filepath.Clean(target)}
			}
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		host:       make(map[string]PathList),
		namespaces: make(map[string]*namespace),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetHostPath registers a host-level alias. The target must be absolute.
func (r *Registry) SetHostPath(alias, target string) error {
	if alias == "" {
		return fmt.Errorf("host alias must not be empty")
	}
	if !filepath.IsAbs(target) {
		return fmt.Errorf("host alias %q: target %q must be absolute", alias, target)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.host[alias] = PathList{filepath.Clean(target)}
	return nil
}

// Merge adds the manifest's declarations to the namespace of the named
// extension and returns a resolution Context for it. A nil manifest merges
// nothing. Declarations that would replace an existing host or namespace
// entry are skipped and reported as conflicts.
func (r *Registry) Merge(name, baseDir string, m *Manifest) (*Context, []Conflict) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ns, ok := r.namespaces[name]
	if !ok {
		ns = &namespace{
			paths: make(map[string]PathList),
			shim:  make(map[string]Shim),
		}
		r.namespaces[name] = ns
	}
	ns.baseDir = baseDir

	var conflicts []Conflict
	if m != nil {
		for _, alias := range sortedKeys(m.Paths) {
			targets := absolutize(m.Paths[alias], baseDir)
			if _, taken := r.host[alias]; taken {
				conflicts = append(conflicts, Conflict{Extension: name, Kind: "path", Key: alias, Scope: ScopeHost})
				continue
			}
			if existing, taken := ns.paths[alias]; taken && !equalPaths(existing, targets) {
				conflicts = append(conflicts, Conflict{Extension: name, Kind: "path", Key: alias, Scope: ScopeExtension})
				continue
			}
			ns.paths[alias] = targets
		}

		for _, id := range sortedKeys(m.Shim) {
			shim := m.Shim[id]
			if existing, taken := ns.shim[id]; taken && !existing.equal(shim) {
				conflicts = append(conflicts, Conflict{Extension: name, Kind: "shim", Key: id, Scope: ScopeExtension})
				continue
			}
			ns.shim[id] = shim
		}

		if len(m.Config) > 0 {
			switch {
			case len(ns.config) == 0:
				ns.config = append(json.RawMessage(nil), m.Config...)
			case !bytes.Equal(ns.config, m.Config):
				conflicts = append(conflicts, Conflict{Extension: name, Kind: "config", Key: name, Scope: ScopeExtension})
			}
		}
	}

	return r.snapshot(name, ns), conflicts
}

// Release drops the namespace of the named extension.
func (r *Registry) Release(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.namespaces, name)
}

// Namespaces returns the names of all extensions with a namespace, sorted.
func (r *Registry) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.namespaces)
}

// Context returns the current resolution context of the named extension.
func (r *Registry) Context(name string) (*Context, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ns, ok := r.namespaces[name]
	if !ok {
		return nil, false
	}
	return r.snapshot(name, ns), true
}

// Document renders the whole resolution table as JSON:
//
//	{"host":{"paths":{...}},"contexts":{"<name>":{"baseUrl":...,"paths":{...},"shim":{...},"config":{...}}}}
func (r *Registry) Document() ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc := []byte(`{"host":{"paths":{}},"contexts":{}}`)
	var err error
	for _, alias := range sortedKeys(r.host) {
		if doc, err = sjson.SetBytes(doc, "host.paths."+escapeKey(alias), []string(r.host[alias])); err != nil {
			return nil, err
		}
	}

	for _, name := range sortedKeys(r.namespaces) {
		ns := r.namespaces[name]
		prefix := "contexts." + escapeKey(name)
		if doc, err = sjson.SetBytes(doc, prefix+".baseUrl", ns.baseDir); err != nil {
			return nil, err
		}
		if doc, err = sjson.SetRawBytes(doc, prefix+".paths", []byte(`{}`)); err != nil {
			return nil, err
		}
		for _, alias := range sortedKeys(ns.paths) {
			if doc, err = sjson.SetBytes(doc, prefix+".paths."+escapeKey(alias), []string(ns.paths[alias])); err != nil {
				return nil, err
			}
		}
		if len(ns.shim) > 0 {
			for _, id := range sortedKeys(ns.shim) {
				if doc, err = sjson.SetBytes(doc, prefix+".shim."+escapeKey(id), ns.shim[id]); err != nil {
					return nil, err
				}
			}
		}
		if len(ns.config) > 0 {
			if doc, err = sjson.SetRawBytes(doc, prefix+".config", ns.config); err != nil {
				return nil, err
			}
		}
	}
	return doc, nil
}

// snapshot copies the namespace into an immutable Context.
// Must be called with mu held.
func (r *Registry) snapshot(name string, ns *namespace) *Context {
	c := &Context{
		name:    name,
		baseDir: ns.baseDir,
		paths:   make(map[string]PathList, len(ns.paths)),
		host:    make(map[string]PathList, len(r.host)),
		shim:    make(map[string]Shim, len(ns.shim)),
		config:  append(json.RawMessage(nil), ns.config...),
	}
	for k, v := range ns.paths {
		c.paths[k] = v
	}
	for k, v := range r.host {
		c.host[k] = v
	}
	for k, v := range ns.shim {
		c.shim[k] = v
	}
	return c
}

// absolutize resolves relative alias targets against baseDir.
func absolutize(targets PathList, baseDir string) PathList {
	out := make(PathList, 0, len(targets))
	for _, t := range targets {
		t = strings.TrimSuffix(t, ".lua")
		if !filepath.IsAbs(t) {
			t = filepath.Join(baseDir, filepath.FromSlash(t))
		}
		out = append(out, filepath.Clean(t))
	}
	return out
}

func equalPaths(a, b PathList) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// escapeKey makes an arbitrary object key safe for use as one sjson path
// component.
func escapeKey(key string) string {
	var b strings.Builder
	if isDigits(key) {
		b.WriteByte(':')
	}
	for _, r := range key {
		switch r {
		case '.', '*', '?', '\\', '|', '#', '@':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
