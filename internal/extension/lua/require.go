package lua

import (
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/extload/internal/extension"
	"github.com/dshills/extload/internal/modconfig"
)

// builtinModules are standard libraries require returns directly.
var builtinModules = []string{"string", "table", "math", "os", "io", "coroutine", "debug", "channel"}

// modules resolves and caches the modules of one extension. Each module
// file executes at most once; later requires return the cached value.
type modules struct {
	resolution *modconfig.Context
	builtins   map[string]lua.LValue
	cache      map[string]lua.LValue
	loading    map[string]bool
	globals    *lua.LTable
}

func newModules(resolution *modconfig.Context) *modules {
	return &modules{
		resolution: resolution,
		builtins:   make(map[string]lua.LValue),
		cache:      make(map[string]lua.LValue),
		loading:    make(map[string]bool),
	}
}

// install captures the standard libraries and the ext table, and replaces
// the global require with one anchored at the base directory.
func (ms *modules) install(L *lua.LState, api *lua.LTable) {
	ms.globals = L.G.Global
	for _, name := range builtinModules {
		if v := L.GetGlobal(name); v != lua.LNil {
			ms.builtins[name] = v
		}
	}
	ms.builtins["ext"] = api
	L.SetGlobal("require", L.NewFunction(ms.requireFrom(ms.resolution.BaseDir())))
}

// requireMain loads the main module in protected mode.
func (ms *modules) requireMain(L *lua.LState, id string) (exports lua.LValue, err error) {
	top := L.GetTop()
	L.Push(L.NewFunction(ms.requireFrom(ms.resolution.BaseDir())))
	L.Push(lua.LString(id))
	if err := L.PCall(1, 1, nil); err != nil {
		L.SetTop(top)
		return nil, convertError(err)
	}
	exports = L.Get(-1)
	L.SetTop(top)
	return exports, nil
}

// requireFrom returns a require function resolving relative ids against dir.
func (ms *modules) requireFrom(dir string) lua.LGFunction {
	return func(L *lua.LState) int {
		id := L.CheckString(1)
		L.Push(ms.load(L, id, dir))
		return 1
	}
}

// load resolves id and executes the module if it has not run yet.
// Failures are raised as Lua errors.
func (ms *modules) load(L *lua.LState, id, fromDir string) lua.LValue {
	if v, ok := ms.builtins[id]; ok {
		return v
	}

	candidates := ms.resolution.Resolve(id, fromDir)
	if len(candidates) == 0 {
		raise(L, &extension.ModuleNotFoundError{Module: id, Path: id})
	}
	path := firstExisting(candidates)
	if path == "" {
		raise(L, &extension.ModuleNotFoundError{Module: id, Path: candidates[0]})
	}

	if v, ok := ms.cache[path]; ok {
		return v
	}
	if ms.loading[path] {
		raise(L, fmt.Errorf("%w: %s", ErrCyclicRequire, id))
	}
	ms.loading[path] = true
	defer delete(ms.loading, path)

	shim, shimmed := ms.resolution.Shim(id)
	if shimmed {
		for _, dep := range shim.Deps {
			ms.load(L, dep, filepath.Dir(path))
		}
	}

	fn, err := L.LoadFile(path)
	if err != nil {
		raise(L, convertError(err))
	}
	fn.Env = ms.env(L, filepath.Dir(path))

	L.Push(fn)
	L.Push(lua.LString(id))
	L.Call(1, 1)
	v := L.Get(-1)
	L.Pop(1)

	if v == lua.LNil && shimmed && shim.Exports != "" {
		v = L.GetField(ms.globals, shim.Exports)
	}
	if v == lua.LNil {
		v = lua.LTrue
	}
	ms.cache[path] = v
	return v
}

// env builds a module environment: its own require bound to dir, with all
// other reads and writes going to the globals.
func (ms *modules) env(L *lua.LState, dir string) *lua.LTable {
	env := L.NewTable()
	env.RawSetString("require", L.NewFunction(ms.requireFrom(dir)))
	mt := L.NewTable()
	mt.RawSetString("__index", ms.globals)
	mt.RawSetString("__newindex", ms.globals)
	L.SetMetatable(env, mt)
	return env
}

// loaded returns the paths of every module executed so far.
func (ms *modules) loaded() []string {
	out := make([]string, 0, len(ms.cache))
	for p := range ms.cache {
		out = append(out, p)
	}
	return out
}

func firstExisting(paths []string) string {
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}
