package lua

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/extload/internal/extension"
)

func TestStateCall(t *testing.T) {
	s := NewState()
	defer s.Close()

	require.NoError(t, s.L.DoString(`
		function pair(a) return a, a * 2 end
		function none() end
		function fails() error({ name = "RangeError", message = "too big" }) end
		function fails_plain() error("plain failure", 0) end
	`))

	fn := func(name string) *lua.LFunction {
		f, ok := s.L.GetGlobal(name).(*lua.LFunction)
		require.True(t, ok, name)
		return f
	}

	got, err := s.Call(fn("pair"), lua.LNumber(4))
	require.NoError(t, err)
	assert.Equal(t, []lua.LValue{lua.LNumber(4), lua.LNumber(8)}, got)

	got, err = s.Call(fn("none"))
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)

	_, err = s.Call(fn("fails"))
	var te *extension.ThrownError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "RangeError", te.Type)
	assert.Equal(t, "too big", te.Message)

	_, err = s.Call(fn("fails_plain"))
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "RuntimeError: plain failure", te.Error())

	assert.Equal(t, 0, s.L.GetTop())
}

func TestStateCallGoPanic(t *testing.T) {
	s := NewState()
	defer s.Close()

	fn := s.L.NewFunction(func(L *lua.LState) int {
		panic("go side exploded")
	})
	_, err := s.Call(fn)
	var te *extension.ThrownError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "GoPanic", te.Type)
	assert.Contains(t, te.Message, "go side exploded")
}

func TestStateClosed(t *testing.T) {
	s := NewState()
	s.Close()
	s.Close()

	assert.True(t, s.IsClosed())
	_, err := s.Call(nil)
	assert.ErrorIs(t, err, ErrStateClosed)
}

func TestHookResult(t *testing.T) {
	s := NewState()
	defer s.Close()

	failure := newFailure(s.L, "nope")

	assert.Nil(t, hookResult(nil))
	assert.Nil(t, hookResult([]lua.LValue{lua.LTrue}))
	assert.Nil(t, hookResult([]lua.LValue{lua.LFalse}))
	assert.Equal(t, extension.Fail("nope"), hookResult([]lua.LValue{failure}))
	assert.Equal(t, extension.Fail("why"), hookResult([]lua.LValue{lua.LNil, lua.LString("why")}))
	assert.Equal(t, extension.Fail("7"), hookResult([]lua.LValue{lua.LFalse, lua.LNumber(7)}))
}

func TestTimers(t *testing.T) {
	tm := newTimers()
	fired := make(chan int, 2)

	a := tm.add(0, func(id int) { fired <- id })
	b := tm.add(1e9, func(id int) { fired <- id })
	assert.NotEqual(t, a, b)

	assert.Equal(t, a, <-fired)
	assert.True(t, tm.take(a))
	assert.False(t, tm.take(a))

	assert.True(t, tm.clear(b))
	assert.False(t, tm.clear(b))

	tm.stopAll()
	assert.Equal(t, 0, tm.add(0, func(int) {}))
	assert.Equal(t, 0, tm.pending())
}
