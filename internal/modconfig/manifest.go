package modconfig

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ManifestFile is the conventional manifest filename, relative to an
// extension's base directory.
const ManifestFile = "requirejs-config.json"

//go:embed schema/requirejs-config.schema.json
var schemaBytes []byte

var (
	compiledSchema *jsonschema.Schema
	compileOnce    sync.Once
	compileErr     error
	printer        = message.NewPrinter(language.English)
)

// Manifest is a parsed module configuration file.
type Manifest struct {
	Paths  map[string]PathList `json:"paths"`
	Shim   map[string]Shim     `json:"shim"`
	Config json.RawMessage     `json:"config"`

	path string
}

// PathList is one or more candidate locations for an alias, tried in order.
// It decodes from either a string or an array of strings.
type PathList []string

// UnmarshalJSON implements json.Unmarshaler.
func (p *PathList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*p = PathList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*p = many
	return nil
}

// Shim describes a script that publishes a global instead of returning a
// module value.
type Shim struct {
	Deps    []string `json:"deps,omitempty"`
	Exports string   `json:"exports,omitempty"`
}

// UnmarshalJSON accepts both the object form and the bare dependency array.
func (s *Shim) UnmarshalJSON(data []byte) error {
	var deps []string
	if err := json.Unmarshal(data, &deps); err == nil {
		*s = Shim{Deps: deps}
		return nil
	}
	type shimAlias Shim
	var v shimAlias
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = Shim(v)
	return nil
}

func (s Shim) equal(o Shim) bool {
	if s.Exports != o.Exports || len(s.Deps) != len(o.Deps) {
		return false
	}
	for i := range s.Deps {
		if s.Deps[i] != o.Deps[i] {
			return false
		}
	}
	return true
}

// Path returns the file the manifest was read from.
func (m *Manifest) Path() string {
	return m.path
}

// ParseError reports a manifest that exists but cannot be used.
type ParseError struct {
	File   string
	Issues []string
	Err    error
}

// Error implements error.
func (e *ParseError) Error() string {
	msg := "failed to parse " + filepath.Base(e.File)
	if len(e.Issues) > 0 {
		return msg + ": " + strings.Join(e.Issues, "; ")
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// ErrSchemaViolation is wrapped by ParseErrors caused by a well-formed file
// with an unexpected shape.
var ErrSchemaViolation = errors.New("manifest does not match schema")

// ReadManifest reads and validates the manifest at path.
// A missing file is not an error: it returns (nil, nil).
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, &ParseError{File: path, Err: err}
	}

	m, err := ParseManifest(data)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.File = path
		}
		return nil, err
	}
	m.path = path
	return m, nil
}

// ReadManifestFromDir reads ManifestFile from an extension directory.
func ReadManifestFromDir(dir string) (*Manifest, error) {
	return ReadManifest(filepath.Join(dir, ManifestFile))
}

// ParseManifest validates raw manifest bytes and decodes them.
func ParseManifest(data []byte) (*Manifest, error) {
	schema, err := getSchema()
	if err != nil {
		return nil, fmt.Errorf("loading manifest schema: %w", err)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{File: ManifestFile, Err: err}
	}

	if err := schema.Validate(inst); err != nil {
		var ve *jsonschema.ValidationError
		if !errors.As(err, &ve) {
			return nil, &ParseError{File: ManifestFile, Err: err}
		}
		return nil, &ParseError{
			File:   ManifestFile,
			Issues: collectIssues(ve),
			Err:    ErrSchemaViolation,
		}
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &ParseError{File: ManifestFile, Err: err}
	}
	return &m, nil
}

// getSchema compiles the embedded schema once.
func getSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaBytes))
		if err != nil {
			compileErr = fmt.Errorf("unmarshaling schema JSON: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("requirejs-config.schema.json", doc); err != nil {
			compileErr = fmt.Errorf("adding schema resource: %w", err)
			return
		}
		compiledSchema, compileErr = c.Compile("requirejs-config.schema.json")
	})
	return compiledSchema, compileErr
}

// collectIssues flattens a validation error tree into sorted, unique
// "path: message" strings.
func collectIssues(ve *jsonschema.ValidationError) []string {
	seen := make(map[string]bool)
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) > 0 {
			for _, c := range e.Causes {
				walk(c)
			}
			return
		}
		if e.ErrorKind == nil {
			return
		}
		loc := "/" + strings.Join(e.InstanceLocation, "/")
		seen[loc+": "+e.ErrorKind.LocalizedString(printer)] = true
	}
	walk(ve)

	if len(seen) == 0 {
		return []string{ve.Error()}
	}
	issues := make([]string, 0, len(seen))
	for issue := range seen {
		issues = append(issues, issue)
	}
	sort.Strings(issues)
	return issues
}
