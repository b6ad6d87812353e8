package lua

import (
	"errors"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/extload/internal/extension"
)

// Errors for Lua runtime operations.
var (
	// ErrStateClosed is returned when operating on a closed state.
	ErrStateClosed = errors.New("lua state is closed")

	// ErrLoopClosed is returned when submitting work to a closed loop.
	ErrLoopClosed = errors.New("lua loop is closed")

	// ErrCyclicRequire is raised when a module requires itself, directly
	// or through its dependencies.
	ErrCyclicRequire = errors.New("cyclic require")
)

const errorTypeName = "ext.error"

// raise aborts the running Lua code with err as the error object. The
// original Go error is recovered by convertError.
func raise(L *lua.LState, err error) {
	ud := L.NewUserData()
	ud.Value = err
	L.SetMetatable(ud, L.GetTypeMetatable(errorTypeName))
	L.Error(ud, 1)
}

func registerErrorType(L *lua.LState) {
	mt := L.NewTypeMetatable(errorTypeName)
	L.SetField(mt, "__tostring", L.NewFunction(func(L *lua.LState) int {
		ud := L.CheckUserData(1)
		if err, ok := ud.Value.(error); ok {
			L.Push(lua.LString(err.Error()))
			return 1
		}
		L.Push(lua.LString("error"))
		return 1
	}))
}

// convertError turns a failed protected call into a Go error.
// Errors raised with raise come back unchanged. Error tables with name or
// message fields become "<name>: <message>"; anything else is a RuntimeError.
func convertError(err error) error {
	var apiErr *lua.ApiError
	if !errors.As(err, &apiErr) {
		return err
	}

	switch obj := apiErr.Object.(type) {
	case *lua.LUserData:
		if e, ok := obj.Value.(error); ok {
			return e
		}
	case *lua.LTable:
		name, hasName := obj.RawGetString("name").(lua.LString)
		msg, hasMsg := obj.RawGetString("message").(lua.LString)
		if hasName || hasMsg {
			t := string(name)
			if t == "" {
				t = "Error"
			}
			return &extension.ThrownError{Type: t, Message: string(msg)}
		}
	}

	msg := apiErr.Error()
	if apiErr.Object != nil && apiErr.Object != lua.LNil {
		msg = apiErr.Object.String()
	}
	switch apiErr.Type {
	case lua.ApiErrorPanic:
		return &extension.ThrownError{Type: "GoPanic", Message: msg}
	case lua.ApiErrorSyntax:
		return &extension.ThrownError{Type: "SyntaxError", Message: msg}
	case lua.ApiErrorFile:
		return &extension.ThrownError{Type: "FileError", Message: msg}
	default:
		return &extension.ThrownError{Type: "RuntimeError", Message: msg}
	}
}

// recovered converts a Go panic into an error.
func recovered(r any) error {
	switch v := r.(type) {
	case *lua.ApiError:
		return convertError(v)
	case error:
		return &extension.ThrownError{Type: "GoPanic", Message: v.Error()}
	default:
		return &extension.ThrownError{Type: "GoPanic", Message: fmt.Sprint(v)}
	}
}
