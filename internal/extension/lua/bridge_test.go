package lua

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	lua "github.com/yuin/gopher-lua"
)

func TestBridgeToGoValue(t *testing.T) {
	s := NewState()
	defer s.Close()
	b := NewBridge(s.L)

	require.NoError(t, s.L.DoString(`
		arr = {1, 2, 3}
		obj = {name = "test", value = 1.5}
		cyc = {}
		cyc.self = cyc
	`))

	tests := []struct {
		name string
		in   lua.LValue
		want any
	}{
		{"nil", lua.LNil, nil},
		{"bool", lua.LTrue, true},
		{"int", lua.LNumber(42), int64(42)},
		{"float", lua.LNumber(3.5), 3.5},
		{"string", lua.LString("hello"), "hello"},
		{"array", s.L.GetGlobal("arr"), []any{int64(1), int64(2), int64(3)}},
		{"object", s.L.GetGlobal("obj"), map[string]any{"name": "test", "value": 1.5}},
		{"cycle", s.L.GetGlobal("cyc"), map[string]any{"self": nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, b.ToGoValue(tt.in))
		})
	}
}

func TestBridgeToLuaValue(t *testing.T) {
	s := NewState()
	defer s.Close()
	b := NewBridge(s.L)

	assert.Equal(t, lua.LNil, b.ToLuaValue(nil))
	assert.Equal(t, lua.LNumber(7), b.ToLuaValue(uint16(7)))
	assert.Equal(t, lua.LString("x"), b.ToLuaValue("x"))

	tbl, ok := b.ToLuaValue([]string{"a", "b"}).(*lua.LTable)
	require.True(t, ok)
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, lua.LString("b"), tbl.RawGetInt(2))

	m, ok := b.ToLuaValue(map[string]any{"k": 1}).(*lua.LTable)
	require.True(t, ok)
	assert.Equal(t, lua.LNumber(1), m.RawGetString("k"))
}

func TestBridgeFromJSON(t *testing.T) {
	s := NewState()
	defer s.Close()
	b := NewBridge(s.L)

	doc := `{"name":"ext","n":3,"ok":true,"list":[1,"two"],"nested":{"deep":null}}`

	assert.Equal(t, lua.LString("ext"), b.FromJSON(gjson.Get(doc, "name")))
	assert.Equal(t, lua.LNumber(3), b.FromJSON(gjson.Get(doc, "n")))
	assert.Equal(t, lua.LTrue, b.FromJSON(gjson.Get(doc, "ok")))
	assert.Equal(t, lua.LNil, b.FromJSON(gjson.Get(doc, "missing")))
	assert.Equal(t, lua.LNil, b.FromJSON(gjson.Get(doc, "nested.deep")))

	list, ok := b.FromJSON(gjson.Get(doc, "list")).(*lua.LTable)
	require.True(t, ok)
	assert.Equal(t, []any{int64(1), "two"}, b.ToGoValue(list))

	whole := b.ToGoValue(b.FromJSON(gjson.Parse(doc)))
	assert.Equal(t, map[string]any{
		"name":   "ext",
		"n":      int64(3),
		"ok":     true,
		"list":   []any{int64(1), "two"},
		"nested": map[string]any{},
	}, whole)
}
