package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// fixture lays out a search path with one working and one failing extension.
func fixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "greeter", "package.json"),
		`{"name":"greeter","version":"0.3.0","engines":{"extload":">=1.0.0"}}`)
	writeFile(t, filepath.Join(root, "greeter", "requirejs-config.json"),
		`{"paths":{"words":"lib/words"},"config":{"punctuation":"!"}}`)
	writeFile(t, filepath.Join(root, "greeter", "lib", "words.lua"),
		`return { hello = "hello" }`)
	writeFile(t, filepath.Join(root, "greeter", "main.lua"), `
local words = require("words")
return {
    initExtension = function() end,
    greet = function()
        return words.hello .. " from " .. ext.name .. ext.config("punctuation")
    end,
}
`)

	writeFile(t, filepath.Join(root, "broken", "main.lua"), `
return {
    initExtension = function()
        return ext.fail("nope")
    end,
}
`)
	return root
}

// execute runs the command line in an isolated environment.
func execute(t *testing.T, searchPath string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("EXTLOAD_LOG_LEVEL", "error")
	t.Setenv("EXTLOAD_LOG_FORMAT", "json")
	t.Setenv("EXTLOAD_EXTENSIONS_PATHS", searchPath)

	var out, errOut bytes.Buffer
	a := newApp(&out, &errOut)
	a.envFile = filepath.Join(t.TempDir(), "missing.env")
	root := newRootCommand(a)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "extload dev")
	assert.Contains(t, out, "Host API: 1.0.0")
}

func TestConfigCommand(t *testing.T) {
	out, err := execute(t, "/srv/ext", "config", "-o", "json", "--log-format", "console")
	require.NoError(t, err)

	var cfg map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, "console", cfg["log"].(map[string]any)["format"], "flag beats env")
	ext := cfg["extensions"].(map[string]any)
	assert.Equal(t, []any{"/srv/ext"}, ext["paths"])
	assert.Equal(t, "main", ext["main"])
}

func TestConfigCommandTOML(t *testing.T) {
	out, err := execute(t, t.TempDir(), "config")
	require.NoError(t, err)
	assert.Contains(t, out, "[log]")
	assert.Regexp(t, `level = ['"]error['"]`, out)
}

func TestDiscoverCommand(t *testing.T) {
	root := fixture(t)

	out, err := execute(t, root, "discover", "-o", "json")
	require.NoError(t, err)

	var report discoverReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, []string{root}, report.SearchPaths)
	require.Len(t, report.Extensions, 2)
	assert.Equal(t, "broken", report.Extensions[0].Name)
	assert.Equal(t, "greeter", report.Extensions[1].Name)
	assert.Equal(t, "0.3.0", report.Extensions[1].Version)
}

func TestDiscoverCommandText(t *testing.T) {
	out, err := execute(t, fixture(t), "discover")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "greeter")
	assert.Contains(t, out, "2 extension(s) found in 1 search path(s)")
}

func TestDiscoverCommandBadFormat(t *testing.T) {
	_, err := execute(t, t.TempDir(), "discover", "-o", "xml")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestValidateCommand(t *testing.T) {
	root := fixture(t)
	writeFile(t, filepath.Join(root, "badcfg", "main.lua"), "return {}")
	writeFile(t, filepath.Join(root, "badcfg", "requirejs-config.json"), `{"paths": 7}`)

	out, err := execute(t, root, "validate", "greeter", filepath.Join(root, "broken"))
	require.NoError(t, err)
	assert.Contains(t, out, "greeter")
	assert.Contains(t, out, "broken")

	out, err = execute(t, root, "validate", filepath.Join(root, "badcfg"))
	assert.ErrorContains(t, err, "1 extension failed validation")
	assert.Contains(t, out, "failed to parse requirejs-config.json")
}

func TestValidateCommandUnknown(t *testing.T) {
	_, err := execute(t, fixture(t), "validate", "nobody")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadCommand(t *testing.T) {
	root := fixture(t)

	out, err := execute(t, root, "load", "greeter", "--call", "greet", "-o", "json", "--resolution")
	require.NoError(t, err)

	var report struct {
		Extensions []resultView    `json:"extensions"`
		Resolution json.RawMessage `json:"resolution"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Extensions, 1)

	got := report.Extensions[0]
	assert.Equal(t, "greeter", got.Name)
	assert.Equal(t, "ready", got.Status)
	assert.NotEmpty(t, got.RequestID)
	assert.Equal(t, "hello from greeter!", got.Call)
	assert.Contains(t, string(report.Resolution), `"greeter"`)
	assert.Contains(t, string(report.Resolution), filepath.Join(root, "greeter", "lib", "words"))
}

func TestLoadCommandFailure(t *testing.T) {
	root := fixture(t)

	out, err := execute(t, root, "load", "-o", "yaml")
	assert.ErrorContains(t, err, "1 extension did not load")

	var report loadReport
	require.NoError(t, yaml.Unmarshal([]byte(out), &report))
	require.Len(t, report.Extensions, 2)

	byName := map[string]resultView{}
	for _, v := range report.Extensions {
		byName[v.Name] = v
	}
	assert.Equal(t, "ready", byName["greeter"].Status)
	broken := byName["broken"]
	assert.Equal(t, "failed", broken.Status)
	assert.Equal(t, "InitFailure/WithReason", broken.Kind)
	assert.Contains(t, broken.Error, "failed initExtension for broken")
	assert.Contains(t, broken.Error, "nope")
}

func TestLoadCommandText(t *testing.T) {
	root := fixture(t)

	out, err := execute(t, root, "load", filepath.Join(root, "greeter"), "--call", "greet")
	require.NoError(t, err)
	assert.Contains(t, out, "greeter")
	assert.Contains(t, out, "=> hello from greeter!")
	assert.True(t, strings.HasSuffix(out, "1 of 1 extension(s) ready\n"))
}

func TestLoadCommandNothing(t *testing.T) {
	_, err := execute(t, t.TempDir(), "load")
	assert.ErrorContains(t, err, "no extensions to load")
}

func TestDiscoverCommandPathArgs(t *testing.T) {
	root := fixture(t)

	out, err := execute(t, t.TempDir(), "discover", root, "-o", "toml")
	require.NoError(t, err)
	assert.Contains(t, out, "[[extensions]]")
	assert.Contains(t, out, "greeter")
}

func TestLoadCommandSkipsIncompatible(t *testing.T) {
	root := fixture(t)
	writeFile(t, filepath.Join(root, "ancient", "package.json"),
		`{"name":"ancient","engines":{"extload":"<1.0.0"}}`)
	writeFile(t, filepath.Join(root, "ancient", "main.lua"), "return {}")
	require.NoError(t, os.RemoveAll(filepath.Join(root, "broken")))

	out, err := execute(t, root, "load", "-o", "json")
	require.NoError(t, err)

	var report loadReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Extensions, 1)
	assert.Equal(t, "greeter", report.Extensions[0].Name)

	_, err = execute(t, root, "load", "ancient")
	assert.ErrorContains(t, err, "1 extension did not load")
}
