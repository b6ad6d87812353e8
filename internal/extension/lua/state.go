package lua

import (
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// Default limits for a Lua state.
const (
	DefaultCallStackSize = 256
	DefaultRegistrySize  = 256 * 20
)

// State wraps a gopher-lua state for one extension.
//
// gopher-lua's LState is not goroutine-safe. A State is driven by exactly one
// Loop; the mutex only guards the closed flag.
type State struct {
	L *lua.LState

	mu     sync.Mutex
	closed bool

	callStackSize int
	registrySize  int
	goStackTrace  bool
}

// StateOption configures a State.
type StateOption func(*State)

// WithCallStackSize sets the maximum Lua call depth.
func WithCallStackSize(n int) StateOption {
	return func(s *State) {
		s.callStackSize = n
	}
}

// WithRegistrySize sets the initial size of the value registry.
func WithRegistrySize(n int) StateOption {
	return func(s *State) {
		s.registrySize = n
	}
}

// WithGoStackTrace includes Go stack traces in errors caused by Go panics.
func WithGoStackTrace(enabled bool) StateOption {
	return func(s *State) {
		s.goStackTrace = enabled
	}
}

// NewState creates a state with the full standard library open. Extensions
// run with host privileges.
func NewState(opts ...StateOption) *State {
	s := &State{
		callStackSize: DefaultCallStackSize,
		registrySize:  DefaultRegistrySize,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.L = lua.NewState(lua.Options{
		CallStackSize:       s.callStackSize,
		RegistrySize:        s.registrySize,
		IncludeGoStackTrace: s.goStackTrace,
	})
	registerErrorType(s.L)
	return s
}

// Call calls fn in protected mode and returns all of its results.
// Returns an empty slice (not nil) if the function returns no values.
func (s *State) Call(fn *lua.LFunction, args ...lua.LValue) (results []lua.LValue, err error) {
	if s.IsClosed() {
		return nil, ErrStateClosed
	}
	if fn == nil {
		return nil, fmt.Errorf("call: nil function")
	}

	L := s.L
	top := L.GetTop()
	L.Push(fn)
	for _, arg := range args {
		L.Push(arg)
	}

	defer func() {
		if r := recover(); r != nil {
			L.SetTop(top)
			results, err = nil, recovered(r)
		}
	}()
	if err := L.PCall(len(args), lua.MultRet, nil); err != nil {
		return nil, convertError(err)
	}

	n := L.GetTop() - top
	if n <= 0 {
		return []lua.LValue{}, nil
	}
	results = make([]lua.LValue, n)
	for i := 0; i < n; i++ {
		results[i] = L.Get(top + i + 1)
	}
	L.Pop(n)
	return results, nil
}

// IsClosed reports whether Close has been called.
func (s *State) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close releases the state. It must not be called while the owning loop is
// still running.
func (s *State) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.L.Close()
}
