package modconfig

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
)

// ModuleExt is the file extension appended to resolved module ids.
const ModuleExt = ".lua"

// Context is an immutable view of one extension's resolution configuration.
type Context struct {
	name    string
	baseDir string
	paths   map[string]PathList
	host    map[string]PathList
	shim    map[string]Shim
	config  json.RawMessage
}

// NewContext returns a Context with no aliases, rooted at baseDir.
func NewContext(name, baseDir string) *Context {
	return &Context{
		name:    name,
		baseDir: baseDir,
		paths:   map[string]PathList{},
		host:    map[string]PathList{},
		shim:    map[string]Shim{},
	}
}

// Name returns the extension name the context belongs to.
func (c *Context) Name() string {
	return c.name
}

// BaseDir returns the extension's base directory.
func (c *Context) BaseDir() string {
	return c.baseDir
}

// Resolve maps a module id to candidate file paths, in the order they should
// be tried. fromDir is the directory of the requiring module; it anchors
// relative ids ("./x", "../x") and defaults to the base directory.
//
// Non-relative ids are matched against the longest extension alias prefix,
// then the longest host alias prefix, and finally resolved under the base
// directory.
func (c *Context) Resolve(id, fromDir string) []string {
	id = strings.TrimSuffix(id, ModuleExt)

	if isRelative(id) {
		if fromDir == "" {
			fromDir = c.baseDir
		}
		return []string{filepath.Join(fromDir, filepath.FromSlash(id)) + ModuleExt}
	}
	if filepath.IsAbs(id) {
		return []string{filepath.Clean(id) + ModuleExt}
	}

	if targets, rest, ok := longestPrefix(c.paths, id); ok {
		return expand(targets, rest)
	}
	if targets, rest, ok := longestPrefix(c.host, id); ok {
		return expand(targets, rest)
	}
	return []string{filepath.Join(c.baseDir, filepath.FromSlash(id)) + ModuleExt}
}

// Shim returns the shim declared for id, if any.
func (c *Context) Shim(id string) (Shim, bool) {
	s, ok := c.shim[strings.TrimSuffix(id, ModuleExt)]
	return s, ok
}

// Config looks up a value in the extension's free-form configuration using a
// gjson path. An empty path returns the whole object.
func (c *Context) Config(path string) gjson.Result {
	if len(c.config) == 0 {
		return gjson.Result{}
	}
	if path == "" {
		return gjson.ParseBytes(c.config)
	}
	return gjson.GetBytes(c.config, path)
}

// Aliases returns the extension-level aliases of this context.
func (c *Context) Aliases() map[string][]string {
	out := make(map[string][]string, len(c.paths))
	for k, v := range c.paths {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func isRelative(id string) bool {
	return strings.HasPrefix(id, "./") || strings.HasPrefix(id, "../")
}

// longestPrefix finds the alias that is id itself or the longest prefix of id
// ending at a path separator.
func longestPrefix(aliases map[string]PathList, id string) (PathList, string, bool) {
	best := ""
	for alias := range aliases {
		if id != alias && !strings.HasPrefix(id, alias+"/") {
			continue
		}
		if len(alias) > len(best) {
			best = alias
		}
	}
	if best == "" {
		return nil, "", false
	}
	return aliases[best], strings.TrimPrefix(id, best), true
}

func expand(targets PathList, rest string) []string {
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		out = append(out, t+filepath.FromSlash(rest)+ModuleExt)
	}
	return out
}
