// Package output renders command results for the terminal.
package output

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Format is a result encoding.
type Format string

const (
	YAML Format = "yaml"
	JSON Format = "json"
)

// Parse validates a format name. An empty name is YAML.
func Parse(s string) (Format, error) {
	switch Format(s) {
	case "", YAML:
		return YAML, nil
	case JSON:
		return JSON, nil
	}
	return YAML, fmt.Errorf("output format must be yaml or json, got %q", s)
}

// Write encodes data to w.
func Write(w io.Writer, format Format, data any) error {
	switch format {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(data)
	case YAML, "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}
