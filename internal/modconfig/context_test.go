package modconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextResolve(t *testing.T) {
	r := NewRegistry(WithHostPaths(map[string]string{"host": "/host/lib"}))
	ctx, _ := r.Merge("ext", "/ext", &Manifest{
		Paths: map[string]PathList{
			"vendor":     {"thirdparty"},
			"vendor/foo": {"special/foo"},
			"multi":      {"first/multi", "/abs/multi"},
		},
	})

	tests := []struct {
		name    string
		id      string
		fromDir string
		want    []string
	}{
		{"plain id", "main", "", []string{"/ext/main.lua"}},
		{"nested id", "lib/util", "", []string{"/ext/lib/util.lua"}},
		{"trailing extension", "lib/util.lua", "", []string{"/ext/lib/util.lua"}},
		{"relative", "./helper", "/ext/lib", []string{"/ext/lib/helper.lua"}},
		{"relative parent", "../helper", "/ext/lib", []string{"/ext/helper.lua"}},
		{"relative default dir", "./helper", "", []string{"/ext/helper.lua"}},
		{"absolute", "/other/mod", "", []string{"/other/mod.lua"}},
		{"alias exact", "vendor", "", []string{"/ext/thirdparty.lua"}},
		{"alias prefix", "vendor/bar", "", []string{"/ext/thirdparty/bar.lua"}},
		{"longest alias wins", "vendor/foo/x", "", []string{"/ext/special/foo/x.lua"}},
		{"alias is not a partial segment", "vendorx", "", []string{"/ext/vendorx.lua"}},
		{"fallback paths", "multi", "", []string{"/ext/first/multi.lua", "/abs/multi.lua"}},
		{"host alias", "host/util", "", []string{"/host/lib/util.lua"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ctx.Resolve(tt.id, tt.fromDir))
		})
	}
}

func TestContextConfig(t *testing.T) {
	ctx := NewContext("ext", "/ext")
	assert.False(t, ctx.Config("anything").Exists())

	r := NewRegistry()
	ctx, _ = r.Merge("ext", "/ext", &Manifest{Config: []byte(`{"ui": {"color": "red"}, "n": [1, 2]}`)})
	assert.Equal(t, "red", ctx.Config("ui.color").String())
	assert.Equal(t, int64(2), ctx.Config("n.1").Int())
	assert.True(t, ctx.Config("").IsObject())
	assert.False(t, ctx.Config("missing").Exists())
}

func TestContextShimTrimsExtension(t *testing.T) {
	r := NewRegistry()
	ctx, _ := r.Merge("ext", "/ext", &Manifest{Shim: map[string]Shim{"legacy": {Exports: "Legacy"}}})

	s, ok := ctx.Shim("legacy.lua")
	assert.True(t, ok)
	assert.Equal(t, "Legacy", s.Exports)

	_, ok = ctx.Shim("other")
	assert.False(t, ok)
}
