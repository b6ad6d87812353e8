package lua

import (
	"context"
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/dshills/extload/internal/deferred"
	"github.com/dshills/extload/internal/extension"
	"github.com/dshills/extload/internal/modconfig"
)

// InitHookName is the field of the main module's table holding the init hook.
const InitHookName = "initExtension"

// Module is an executed Lua main module together with its runtime.
type Module struct {
	name    string
	baseURL string
	baseDir string

	state      *State
	loop       *Loop
	timers     *timers
	modules    *modules
	resolution *modconfig.Context
	logger     *zap.Logger

	exports lua.LValue
	init    *lua.LFunction

	life      context.Context
	stop      context.CancelFunc
	closeOnce sync.Once
}

func newModule(req extension.FetchRequest, state *State, queueSize int) *Module {
	logger := req.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	resolution := req.Resolution
	if resolution == nil {
		resolution = modconfig.NewContext(req.Name, req.BaseDir)
	}

	m := &Module{
		name:       req.Name,
		baseURL:    req.BaseURL,
		baseDir:    req.BaseDir,
		state:      state,
		timers:     newTimers(),
		modules:    newModules(resolution),
		resolution: resolution,
		logger:     logger,
	}
	m.life, m.stop = context.WithCancel(context.Background())
	m.loop = NewLoop(state.L, queueSize, func(err error) {
		m.logger.Warn("async callback failed", zap.Error(err))
	})
	return m
}

// setup prepares the globals of a fresh state. Runs on the loop.
func (m *Module) setup(L *lua.LState) {
	m.registerDeferredType(L)
	api := m.newAPI(L)
	L.SetGlobal("ext", api)
	L.SetGlobal("print", L.NewFunction(m.print))
	m.modules.install(L, api)
	L.SetContext(m.life)
}

// Name returns the extension name.
func (m *Module) Name() string {
	return m.name
}

// Do runs fn on the module's loop. Lua code run by fn is interrupted when
// ctx ends or the module closes.
func (m *Module) Do(ctx context.Context, fn func(L *lua.LState) error) error {
	return m.loop.Do(ctx, func(L *lua.LState) error {
		jobCtx, cancel := context.WithCancel(ctx)
		stop := context.AfterFunc(m.life, cancel)
		defer func() {
			stop()
			cancel()
			L.SetContext(m.life)
		}()
		L.SetContext(jobCtx)
		return fn(L)
	})
}

// InitHook returns the exported init hook, or nil if there is none.
func (m *Module) InitHook() extension.InitHook {
	if m.init == nil {
		return nil
	}
	return func(ctx context.Context) (any, error) {
		result := make(chan any, 1)
		err := m.Do(ctx, func(L *lua.LState) error {
			rets, err := m.state.Call(m.init)
			if err != nil {
				return err
			}
			result <- hookResult(rets)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return <-result, nil
	}
}

// hookResult maps the values returned by a Lua init hook to what the
// supervisor understands.
func hookResult(rets []lua.LValue) any {
	if len(rets) == 0 {
		return nil
	}
	first := rets[0]
	if ud, ok := first.(*lua.LUserData); ok {
		switch v := ud.Value.(type) {
		case *deferred.Deferred:
			return v
		case extension.Failure:
			return v
		}
		return nil
	}
	if !lua.LVAsBool(first) && len(rets) > 1 && rets[1] != lua.LNil {
		return extension.Fail(text(rets[1]))
	}
	return nil
}

// Call invokes a function exported by the main module and converts its
// results to Go values.
func (m *Module) Call(ctx context.Context, name string, args ...any) ([]any, error) {
	result := make(chan []any, 1)
	err := m.Do(ctx, func(L *lua.LState) error {
		t, ok := m.exports.(*lua.LTable)
		if !ok {
			return fmt.Errorf("%s: main module exports no table", m.name)
		}
		fn, ok := t.RawGetString(name).(*lua.LFunction)
		if !ok {
			return fmt.Errorf("%s: %q is not an exported function", m.name, name)
		}
		b := NewBridge(L)
		largs := make([]lua.LValue, len(args))
		for i, a := range args {
			largs[i] = b.ToLuaValue(a)
		}
		rets, err := m.state.Call(fn, largs...)
		if err != nil {
			return err
		}
		out := make([]any, len(rets))
		for i, r := range rets {
			out[i] = b.ToGoValue(r)
		}
		result <- out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return <-result, nil
}

// PendingTimers returns the number of scheduled timers.
func (m *Module) PendingTimers() int {
	return m.timers.pending()
}

// Close stops timers and the loop, then releases the Lua state. Work still
// queued is abandoned. Close is idempotent.
func (m *Module) Close() error {
	m.closeOnce.Do(func() {
		m.timers.stopAll()
		m.stop()
		m.loop.Close()
		<-m.loop.Exited()
		m.state.Close()
	})
	return nil
}
