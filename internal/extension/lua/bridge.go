package lua

import (
	"reflect"
	"strconv"

	"github.com/tidwall/gjson"
	lua "github.com/yuin/gopher-lua"
)

// Bridge converts values between Go and Lua.
type Bridge struct {
	L *lua.LState
}

// NewBridge creates a new Bridge for the given Lua state.
func NewBridge(L *lua.LState) *Bridge {
	return &Bridge{L: L}
}

// ToGoValue converts a Lua value to a Go value. Tables with contiguous
// integer keys become slices; other tables become maps. Cycles become nil.
func (b *Bridge) ToGoValue(lv lua.LValue) any {
	return b.toGo(lv, make(map[*lua.LTable]bool))
}

func (b *Bridge) toGo(lv lua.LValue, visited map[*lua.LTable]bool) any {
	switch v := lv.(type) {
	case nil, *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		f := float64(v)
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if visited[v] {
			return nil
		}
		visited[v] = true
		defer delete(visited, v)
		return b.tableToGo(v, visited)
	case *lua.LUserData:
		return v.Value
	default:
		return nil
	}
}

func (b *Bridge) tableToGo(t *lua.LTable, visited map[*lua.LTable]bool) any {
	n := t.Len()
	count := 0
	t.ForEach(func(_, _ lua.LValue) { count++ })

	if n > 0 && n == count {
		arr := make([]any, n)
		for i := 1; i <= n; i++ {
			arr[i-1] = b.toGo(t.RawGetInt(i), visited)
		}
		return arr
	}

	m := make(map[string]any, count)
	t.ForEach(func(k, v lua.LValue) {
		var key string
		switch kv := k.(type) {
		case lua.LString:
			key = string(kv)
		case lua.LNumber:
			key = kv.String()
		default:
			key = k.String()
		}
		m[key] = b.toGo(v, visited)
	})
	return m
}

// ToLuaValue converts a Go value to a Lua value.
func (b *Bridge) ToLuaValue(v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return val
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case []byte:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case []any:
		t := b.L.CreateTable(len(val), 0)
		for i, item := range val {
			t.RawSetInt(i+1, b.ToLuaValue(item))
		}
		return t
	case map[string]any:
		t := b.L.CreateTable(0, len(val))
		for k, item := range val {
			t.RawSetString(k, b.ToLuaValue(item))
		}
		return t
	default:
		return b.reflectToLua(v)
	}
}

func (b *Bridge) reflectToLua(v any) lua.LValue {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return lua.LNumber(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return lua.LNumber(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return lua.LNumber(rv.Float())
	case reflect.Pointer:
		if rv.IsNil() {
			return lua.LNil
		}
		return b.reflectToLua(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		t := b.L.CreateTable(rv.Len(), 0)
		for i := 0; i < rv.Len(); i++ {
			t.RawSetInt(i+1, b.ToLuaValue(rv.Index(i).Interface()))
		}
		return t
	case reflect.Map:
		t := b.L.NewTable()
		iter := rv.MapRange()
		for iter.Next() {
			t.RawSet(b.ToLuaValue(iter.Key().Interface()), b.ToLuaValue(iter.Value().Interface()))
		}
		return t
	default:
		ud := b.L.NewUserData()
		ud.Value = v
		return ud
	}
}

// FromJSON converts a gjson result to a Lua value. Missing results are nil.
func (b *Bridge) FromJSON(r gjson.Result) lua.LValue {
	switch r.Type {
	case gjson.Null:
		return lua.LNil
	case gjson.False:
		return lua.LFalse
	case gjson.True:
		return lua.LTrue
	case gjson.Number:
		return lua.LNumber(r.Num)
	case gjson.String:
		return lua.LString(r.Str)
	}

	if r.IsArray() {
		items := r.Array()
		t := b.L.CreateTable(len(items), 0)
		for i, item := range items {
			t.RawSetInt(i+1, b.FromJSON(item))
		}
		return t
	}
	if r.IsObject() {
		t := b.L.NewTable()
		r.ForEach(func(key, value gjson.Result) bool {
			t.RawSetString(key.String(), b.FromJSON(value))
			return true
		})
		return t
	}
	return lua.LNil
}

// text renders a Lua value the way tostring would, without metamethods.
func text(lv lua.LValue) string {
	switch v := lv.(type) {
	case nil, *lua.LNilType:
		return "nil"
	case lua.LString:
		return string(v)
	case lua.LNumber:
		f := float64(v)
		if f == float64(int64(f)) {
			return strconv.FormatInt(int64(f), 10)
		}
		return v.String()
	case *lua.LUserData:
		if err, ok := v.Value.(error); ok {
			return err.Error()
		}
	}
	return lv.String()
}
