package modconfig

import (
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"pgregory.net/rapid"
)

func mustParse(t *testing.T, s string) *Manifest {
	t.Helper()
	m, err := ParseManifest([]byte(s))
	require.NoError(t, err)
	return m
}

func TestRegistryMergeNilManifest(t *testing.T) {
	r := NewRegistry()
	ctx, conflicts := r.Merge("ext", "/ext", nil)

	assert.Empty(t, conflicts)
	assert.Equal(t, "ext", ctx.Name())
	assert.Equal(t, "/ext", ctx.BaseDir())
	assert.Equal(t, []string{"/ext/main.lua"}, ctx.Resolve("main", ""))
	assert.Equal(t, []string{"ext"}, r.Namespaces())
}

func TestRegistryMergeAliases(t *testing.T) {
	r := NewRegistry()
	ctx, conflicts := r.Merge("ext", "/ext", mustParse(t, `{"paths": {"bar": "thirdparty/bar", "abs": "/opt/lib"}}`))
	require.Empty(t, conflicts)

	want := map[string][]string{
		"bar": {"/ext/thirdparty/bar"},
		"abs": {"/opt/lib"},
	}
	if diff := cmp.Diff(want, ctx.Aliases()); diff != "" {
		t.Errorf("Aliases() mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistryHostAliasNotOverwritten(t *testing.T) {
	r := NewRegistry(WithHostPaths(map[string]string{"shared": "/host/shared", "rel": "not/absolute"}))
	ctx, conflicts := r.Merge("ext", "/ext", mustParse(t, `{"paths": {"shared": "mine/shared"}}`))

	require.Len(t, conflicts, 1)
	assert.Equal(t, Conflict{Extension: "ext", Kind: "path", Key: "shared", Scope: ScopeHost}, conflicts[0])
	assert.Equal(t, []string{"/host/shared/x.lua"}, ctx.Resolve("shared/x", ""))

	// Relative host targets are dropped.
	assert.Equal(t, []string{"/ext/rel.lua"}, ctx.Resolve("rel", ""))
}

func TestRegistryNamespaceAdditive(t *testing.T) {
	r := NewRegistry()
	_, conflicts := r.Merge("ext", "/ext", mustParse(t, `{"paths": {"bar": "a/bar"}, "shim": {"s": {"exports": "S"}}, "config": {"a": 1}}`))
	require.Empty(t, conflicts)

	// Same declarations again: no conflict.
	_, conflicts = r.Merge("ext", "/ext", mustParse(t, `{"paths": {"bar": "a/bar"}, "config": {"a": 1}}`))
	assert.Empty(t, conflicts)

	ctx, conflicts := r.Merge("ext", "/ext", mustParse(t, `{"paths": {"bar": "b/bar", "new": "n"}, "shim": {"s": {"exports": "T"}}, "config": {"a": 2}}`))
	assert.ElementsMatch(t, []Conflict{
		{Extension: "ext", Kind: "path", Key: "bar", Scope: ScopeExtension},
		{Extension: "ext", Kind: "shim", Key: "s", Scope: ScopeExtension},
		{Extension: "ext", Kind: "config", Key: "ext", Scope: ScopeExtension},
	}, conflicts)

	assert.Equal(t, []string{"/ext/a/bar.lua"}, ctx.Resolve("bar", ""))
	assert.Equal(t, []string{"/ext/n.lua"}, ctx.Resolve("new", ""))
	shim, ok := ctx.Shim("s")
	require.True(t, ok)
	assert.Equal(t, "S", shim.Exports)
	assert.Equal(t, int64(1), ctx.Config("a").Int())
}

func TestRegistryNamespacesArePartitioned(t *testing.T) {
	r := NewRegistry()
	a, conflicts := r.Merge("a", "/a", mustParse(t, `{"paths": {"lib": "lib-a"}}`))
	require.Empty(t, conflicts)
	b, conflicts := r.Merge("b", "/b", mustParse(t, `{"paths": {"lib": "lib-b"}}`))
	require.Empty(t, conflicts)

	assert.Equal(t, []string{"/a/lib-a.lua"}, a.Resolve("lib", ""))
	assert.Equal(t, []string{"/b/lib-b.lua"}, b.Resolve("lib", ""))
}

func TestRegistryRelease(t *testing.T) {
	r := NewRegistry()
	r.Merge("ext", "/ext", mustParse(t, `{"paths": {"bar": "a/bar"}}`))
	r.Release("ext")

	_, ok := r.Context("ext")
	assert.False(t, ok)

	ctx, conflicts := r.Merge("ext", "/ext", mustParse(t, `{"paths": {"bar": "b/bar"}}`))
	assert.Empty(t, conflicts)
	assert.Equal(t, []string{"/ext/b/bar.lua"}, ctx.Resolve("bar", ""))
}

func TestRegistrySetHostPath(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.SetHostPath("", "/x"))
	assert.Error(t, r.SetHostPath("x", "relative"))
	require.NoError(t, r.SetHostPath("x", "/opt/x/"))

	ctx, _ := r.Merge("ext", "/ext", nil)
	assert.Equal(t, []string{"/opt/x/y.lua"}, ctx.Resolve("x/y", ""))
}

func TestRegistryDocument(t *testing.T) {
	r := NewRegistry(WithHostPaths(map[string]string{"shared.lib": "/host/shared"}))
	r.Merge("com.example.ext", "/ext", mustParse(t, `{"paths": {"bar": "tp/bar"}, "shim": {"legacy": ["bar"]}, "config": {"k": "v"}}`))
	r.Merge("42", "/num", nil)

	doc, err := r.Document()
	require.NoError(t, err)
	require.True(t, json.Valid(doc), "document is not valid JSON: %s", doc)

	var got map[string]any
	require.NoError(t, json.Unmarshal(doc, &got))
	want := map[string]any{
		"host": map[string]any{
			"paths": map[string]any{"shared.lib": []any{"/host/shared"}},
		},
		"contexts": map[string]any{
			"com.example.ext": map[string]any{
				"baseUrl": "/ext",
				"paths":   map[string]any{"bar": []any{"/ext/tp/bar"}},
				"shim":    map[string]any{"legacy": map[string]any{"deps": []any{"bar"}}},
				"config":  map[string]any{"k": "v"},
			},
			"42": map[string]any{
				"baseUrl": "/num",
				"paths":   map[string]any{},
			},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Document() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "v", gjson.GetBytes(doc, `contexts.com\.example\.ext.config.k`).String())
}

func TestRegistryConcurrentMerges(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := string(rune('a' + i))
			m := &Manifest{Paths: map[string]PathList{"lib": {"lib"}}}
			_, conflicts := r.Merge(name, "/"+name, m)
			assert.Empty(t, conflicts)
		}(i)
	}
	wg.Wait()
	assert.Len(t, r.Namespaces(), 16)
}

// Merging never changes an alias once it is present in a namespace.
func TestRegistryMergeNeverOverwrites(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := NewRegistry()
		aliases := rapid.SliceOfN(rapid.SampledFrom([]string{"a", "b", "c", "d"}), 1, 12).Draw(t, "aliases")
		targets := rapid.SliceOfN(rapid.SampledFrom([]string{"x", "y", "z"}), len(aliases), len(aliases)).Draw(t, "targets")

		first := make(map[string]string)
		for i, alias := range aliases {
			m := &Manifest{Paths: map[string]PathList{alias: {targets[i]}}}
			ctx, conflicts := r.Merge("ext", "/ext", m)

			if prev, seen := first[alias]; seen {
				if prev != targets[i] {
					assert.Len(t, conflicts, 1)
				} else {
					assert.Empty(t, conflicts)
				}
			} else {
				first[alias] = targets[i]
				assert.Empty(t, conflicts)
			}
			assert.Equal(t, []string{filepath.Join("/ext", first[alias]) + ModuleExt}, ctx.Resolve(alias, ""))
		}
	})
}

func TestEscapeKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"a.b", `a\.b`},
		{"w*?", `w\*\?`},
		{"123", ":123"},
		{"1.2", `1\.2`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, escapeKey(tt.in), "escapeKey(%q)", tt.in)
	}
}
