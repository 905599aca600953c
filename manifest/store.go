package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/tsawler/epubkit/internal/atomicfile"
)

// FileName is the manifest's name inside a volume directory.
const FileName = "manifest.json"

// ErrNotFound is returned by Load when no manifest exists.
var ErrNotFound = errors.New("manifest not found")

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	return Decode(data)
}

// Decode parses and validates an encoded manifest.
func Decode(data []byte) (*Manifest, error) {
	if err := CheckSchema(data); err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Encode validates and serializes a manifest.
func Encode(m *Manifest) ([]byte, error) {
	if m.PipelineState == nil {
		m.PipelineState = make(map[string]PhaseState)
	}
	if m.Version == 0 {
		m.Version = Version
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	if err := CheckSchema(data); err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Save writes a manifest atomically: the data goes to a temporary file in
// the same directory, which then replaces path.
func Save(path string, m *Manifest) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}
	return atomicfile.WriteFile(path, data, 0o644)
}
