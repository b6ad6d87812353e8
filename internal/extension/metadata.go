package extension

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// MetadataFile is the optional descriptive file in an extension directory.
const MetadataFile = "package.json"

// EngineKey is the key under "engines" naming the host version range an
// extension supports.
const EngineKey = "extload"

// Metadata describes an extension. It is informational only: loading
// never requires it.
type Metadata struct {
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Author      string            `json:"author"`
	License     string            `json:"license"`
	Homepage    string            `json:"homepage"`
	Main        string            `json:"main"`
	Engines     map[string]string `json:"engines"`

	path string
}

// Metadata validation errors.
var (
	ErrMissingName        = errors.New("metadata: name is required")
	ErrInvalidName        = errors.New("metadata: name must be lowercase alphanumeric with dots, dashes or underscores")
	ErrInvalidVersion     = errors.New("metadata: version must be valid semver")
	ErrInvalidMain        = errors.New("metadata: main must be a module id, not a file name")
	ErrInvalidEngine      = errors.New("metadata: invalid engine constraint")
	ErrIncompatibleEngine = errors.New("metadata: host version does not satisfy engine constraint")
)

// namePattern validates extension names such as "brackets-foo" or "com.example.tool".
var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// LoadMetadata reads MetadataFile from dir. A missing file returns (nil, nil).
func LoadMetadata(dir string) (*Metadata, error) {
	path := filepath.Join(dir, MetadataFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", MetadataFile, err)
	}

	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", MetadataFile, err)
	}
	m.path = dir

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the metadata fields that discovery relies on.
func (m *Metadata) Validate() error {
	if m.Name == "" {
		return ErrMissingName
	}
	if !namePattern.MatchString(m.Name) {
		return fmt.Errorf("%w: %s", ErrInvalidName, m.Name)
	}
	if m.Version != "" {
		if _, err := semver.StrictNewVersion(strings.TrimPrefix(m.Version, "v")); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidVersion, m.Version)
		}
	}
	if strings.HasSuffix(m.Main, ".js") {
		return fmt.Errorf("%w: %s", ErrInvalidMain, m.Main)
	}
	if c, ok := m.Engines[EngineKey]; ok {
		if _, err := semver.NewConstraint(c); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidEngine, c)
		}
	}
	return nil
}

// Path returns the directory the metadata was read from.
func (m *Metadata) Path() string {
	return m.path
}

// MainModule returns the module id named by "main", or the default.
func (m *Metadata) MainModule() string {
	if m.Main == "" {
		return DefaultMainModule
	}
	return strings.TrimSuffix(m.Main, ".lua")
}

// CheckEngine verifies host satisfies the extension's engine constraint.
// Metadata without a constraint, or a nil host version, is always compatible.
func (m *Metadata) CheckEngine(host *semver.Version) error {
	raw, ok := m.Engines[EngineKey]
	if !ok || host == nil {
		return nil
	}
	c, err := semver.NewConstraint(raw)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidEngine, raw)
	}
	if ok, errs := c.Validate(host); !ok {
		return fmt.Errorf("%w: %s requires %s, host is %s: %w",
			ErrIncompatibleEngine, m.Name, raw, host, errors.Join(errs...))
	}
	return nil
}
