package lua

import (
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dshills/extload/internal/deferred"
)

// newAPI builds the ext table exposed to extension code.
func (m *Module) newAPI(L *lua.LState) *lua.LTable {
	api := L.NewTable()
	api.RawSetString("name", lua.LString(m.name))
	api.RawSetString("baseUrl", lua.LString(m.baseURL))
	api.RawSetString("baseDir", lua.LString(m.baseDir))

	L.SetFuncs(api, map[string]lua.LGFunction{
		"deferred":     m.apiDeferred,
		"fail":         apiFail,
		"setTimeout":   m.apiSetTimeout,
		"clearTimeout": m.apiClearTimeout,
		"config":       m.apiConfig,
		"log":          m.apiLog(zapcore.InfoLevel),
		"warn":         m.apiLog(zapcore.WarnLevel),
		"error":        m.apiLog(zapcore.ErrorLevel),
	})
	return api
}

// ext.deferred() returns a pending deferred.
func (m *Module) apiDeferred(L *lua.LState) int {
	L.Push(m.newDeferred(L, deferred.New()))
	return 1
}

// ext.fail([reason]) returns an init failure marker.
func apiFail(L *lua.LState) int {
	reason := ""
	if v := L.Get(1); v != lua.LNil {
		reason = text(v)
	}
	L.Push(newFailure(L, reason))
	return 1
}

// ext.setTimeout(fn, ms, ...) runs fn(...) on the loop after ms milliseconds
// and returns a timer id.
func (m *Module) apiSetTimeout(L *lua.LState) int {
	fn := L.CheckFunction(1)
	ms := L.OptNumber(2, 0)
	var args []lua.LValue
	for i := 3; i <= L.GetTop(); i++ {
		args = append(args, L.Get(i))
	}

	id := m.timers.add(time.Duration(float64(ms)*float64(time.Millisecond)), func(id int) {
		_ = m.loop.Post(func(L *lua.LState) error {
			if !m.timers.take(id) {
				return nil
			}
			_, err := m.state.Call(fn, args...)
			return err
		})
	})
	L.Push(lua.LNumber(id))
	return 1
}

// ext.clearTimeout(id) cancels a pending timer.
func (m *Module) apiClearTimeout(L *lua.LState) int {
	L.Push(lua.LBool(m.timers.clear(L.OptInt(1, 0))))
	return 1
}

// ext.config([path]) reads the manifest's config object using a gjson path.
func (m *Module) apiConfig(L *lua.LState) int {
	path := L.OptString(1, "")
	L.Push(NewBridge(L).FromJSON(m.resolution.Config(path)))
	return 1
}

func (m *Module) apiLog(level zapcore.Level) lua.LGFunction {
	return func(L *lua.LState) int {
		m.logger.Log(level, joinArgs(L), zap.String("source", "ext"))
		return 0
	}
}

// print writes its arguments to the extension's logger.
func (m *Module) print(L *lua.LState) int {
	m.logger.Info(joinArgs(L), zap.String("source", "print"))
	return 0
}

func joinArgs(L *lua.LState) string {
	parts := make([]string, 0, L.GetTop())
	for i := 1; i <= L.GetTop(); i++ {
		parts = append(parts, text(L.ToStringMeta(L.Get(i))))
	}
	return strings.Join(parts, " ")
}
