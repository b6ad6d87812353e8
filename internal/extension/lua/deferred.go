package lua

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/dshills/extload/internal/deferred"
	"github.com/dshills/extload/internal/extension"
)

const (
	deferredTypeName = "ext.deferred"
	failureTypeName  = "ext.failure"
)

// rejection carries a Lua rejection value together with its text.
type rejection struct {
	value lua.LValue
	text  string
}

// String returns the reason text reported in diagnostics.
func (r rejection) String() string {
	return r.text
}

// reasonOf builds a rejection from a Lua value. nil means no reason.
func reasonOf(lv lua.LValue) any {
	switch v := lv.(type) {
	case nil, *lua.LNilType:
		return nil
	case *lua.LTable:
		if msg, ok := v.RawGetString("message").(lua.LString); ok {
			return rejection{value: lv, text: string(msg)}
		}
	}
	return rejection{value: lv, text: text(lv)}
}

// registerDeferredType installs the deferred and failure metatables.
// Callbacks registered from Lua are posted back to m's loop.
func (m *Module) registerDeferredType(L *lua.LState) {
	mt := L.NewTypeMetatable(deferredTypeName)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"resolve": m.deferredResolve,
		"reject":  m.deferredReject,
		"state":   deferredState,
		"promise": deferredPromise,
		"done":    m.deferredOn(deferred.Resolved),
		"fail":    m.deferredOn(deferred.Rejected),
		"always":  m.deferredOn(deferred.Pending),
		"next":    m.deferredNext,
	}))
	L.SetField(mt, "__tostring", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString("deferred: " + checkDeferred(L, 1).State().String()))
		return 1
	}))

	failMT := L.NewTypeMetatable(failureTypeName)
	L.SetField(failMT, "__tostring", L.NewFunction(func(L *lua.LState) int {
		ud := L.CheckUserData(1)
		f, _ := ud.Value.(extension.Failure)
		L.Push(lua.LString("failure: " + f.Reason))
		return 1
	}))
}

func (m *Module) newDeferred(L *lua.LState, d *deferred.Deferred) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = d
	L.SetMetatable(ud, L.GetTypeMetatable(deferredTypeName))
	return ud
}

func newFailure(L *lua.LState, reason string) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = extension.Fail(reason)
	L.SetMetatable(ud, L.GetTypeMetatable(failureTypeName))
	return ud
}

func checkDeferred(L *lua.LState, n int) *deferred.Deferred {
	ud := L.CheckUserData(n)
	if d, ok := ud.Value.(*deferred.Deferred); ok {
		return d
	}
	L.ArgError(n, "deferred expected")
	return nil
}

// d:resolve([value]) returns true if this call settled d.
func (m *Module) deferredResolve(L *lua.LState) int {
	d := checkDeferred(L, 1)
	L.Push(lua.LBool(d.Resolve(L.Get(2))))
	return 1
}

// d:reject([reason]) returns true if this call settled d.
func (m *Module) deferredReject(L *lua.LState) int {
	d := checkDeferred(L, 1)
	L.Push(lua.LBool(d.Reject(reasonOf(L.Get(2)))))
	return 1
}

func deferredState(L *lua.LState) int {
	L.Push(lua.LString(checkDeferred(L, 1).State().String()))
	return 1
}

func deferredPromise(L *lua.LState) int {
	checkDeferred(L, 1)
	L.Push(L.Get(1))
	return 1
}

// deferredOn registers a callback run when d settles in state want.
// Pending means either state. Callbacks always run later on the loop,
// even when d is already settled.
func (m *Module) deferredOn(want deferred.State) lua.LGFunction {
	return func(L *lua.LState) int {
		d := checkDeferred(L, 1)
		fn := L.CheckFunction(2)
		self := L.Get(1)
		d.Then(func(d *deferred.Deferred) {
			state := d.State()
			if want != deferred.Pending && state != want {
				return
			}
			m.post(fn, settledValue(d))
		})
		L.Push(self)
		return 1
	}
}

// d:next(onResolved, [onRejected]) returns a new deferred settled with the
// callback's result, or rejected with the error it raises.
func (m *Module) deferredNext(L *lua.LState) int {
	d := checkDeferred(L, 1)
	onResolved, _ := L.Get(2).(*lua.LFunction)
	onRejected, _ := L.Get(3).(*lua.LFunction)
	out := deferred.New()

	d.Then(func(d *deferred.Deferred) {
		_ = m.loop.Post(func(L *lua.LState) error {
			handler := onResolved
			if d.State() == deferred.Rejected {
				handler = onRejected
			}
			if handler == nil {
				if d.State() == deferred.Rejected {
					out.Reject(d.Reason())
				} else {
					out.Resolve(d.Value())
				}
				return nil
			}
			rets, err := m.state.Call(handler, settledValue(d))
			if err != nil {
				out.Reject(rejection{value: lua.LString(err.Error()), text: err.Error()})
				return nil
			}
			if len(rets) > 0 {
				if inner, ok := rets[0].(*lua.LUserData); ok {
					if id, ok := inner.Value.(*deferred.Deferred); ok {
						id.Then(func(id *deferred.Deferred) {
							if id.State() == deferred.Rejected {
								out.Reject(id.Reason())
							} else {
								out.Resolve(id.Value())
							}
						})
						return nil
					}
				}
				out.Resolve(rets[0])
				return nil
			}
			out.Resolve(lua.LNil)
			return nil
		})
	})

	L.Push(m.newDeferred(L, out))
	return 1
}

// settledValue is the Lua value passed to callbacks of a settled deferred.
func settledValue(d *deferred.Deferred) lua.LValue {
	var v any
	if d.State() == deferred.Rejected {
		v = d.Reason()
	} else {
		v = d.Value()
	}
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return val
	case rejection:
		return val.value
	case string:
		return lua.LString(val)
	case error:
		return lua.LString(val.Error())
	default:
		return lua.LNil
	}
}

// post schedules fn(arg) on the loop.
func (m *Module) post(fn *lua.LFunction, arg lua.LValue) {
	err := m.loop.Post(func(L *lua.LState) error {
		_, err := m.state.Call(fn, arg)
		return err
	})
	if err != nil {
		m.logger.Debug("callback dropped", zap.Error(err))
	}
}
