package lua

import (
	"context"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/dshills/extload/internal/extension"
)

// Runtime fetches Lua extensions. Each fetched module gets a fresh state.
type Runtime struct {
	stateOpts []StateOption
	queueSize int
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithStateOptions applies opts to every state the runtime creates.
func WithStateOptions(opts ...StateOption) RuntimeOption {
	return func(r *Runtime) {
		r.stateOpts = append(r.stateOpts, opts...)
	}
}

// WithQueueSize sets the loop buffer of each module.
func WithQueueSize(n int) RuntimeOption {
	return func(r *Runtime) {
		r.queueSize = n
	}
}

// NewRuntime creates a Lua runtime.
func NewRuntime(opts ...RuntimeOption) *Runtime {
	r := &Runtime{queueSize: DefaultQueueSize}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fetch executes the main module and its dependencies. A missing module
// yields *extension.ModuleNotFoundError; errors raised while executing
// yield *extension.ThrownError.
func (r *Runtime) Fetch(ctx context.Context, req extension.FetchRequest) (extension.Module, error) {
	m := newModule(req, NewState(r.stateOpts...), r.queueSize)
	go m.loop.Run(context.Background())

	main := req.MainModule
	if main == "" {
		main = extension.DefaultMainModule
	}

	err := m.loop.Do(ctx, func(L *lua.LState) error {
		m.setup(L)
		return nil
	})
	if err == nil {
		err = m.Do(ctx, func(L *lua.LState) error {
			exports, err := m.modules.requireMain(L, main)
			if err != nil {
				return err
			}
			m.exports = exports
			if t, ok := exports.(*lua.LTable); ok {
				if fn, ok := t.RawGetString(InitHookName).(*lua.LFunction); ok {
					m.init = fn
				}
			}
			m.logger.Debug("main module executed",
				zap.String("module", main),
				zap.Int("modules", len(m.modules.loaded())),
			)
			return nil
		})
	}
	if err != nil {
		_ = m.Close()
		return nil, err
	}
	return m, nil
}
