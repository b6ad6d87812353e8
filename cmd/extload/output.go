package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by --output.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
	formatTOML = "toml"
)

func checkFormat(format string) error {
	switch format {
	case formatText, formatJSON, formatYAML, formatTOML:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (must be text, json, yaml or toml)", format)
	}
}

// encode writes v in a structured format. TOML requires v to be a struct or
// map at the top level.
func encode(w io.Writer, format string, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case formatTOML:
		return toml.NewEncoder(w).Encode(v)
	default:
		return fmt.Errorf("format %q is not structured", format)
	}
}
