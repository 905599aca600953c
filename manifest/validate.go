package manifest

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid manifest")

//go:embed schema.json
var schemaJSON []byte

var loadSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("manifest.json", bytes.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return c.Compile("manifest.json")
})

// CheckSchema validates an encoded manifest against the manifest schema.
func CheckSchema(data []byte) error {
	schema, err := loadSchema()
	if err != nil {
		return fmt.Errorf("compiling manifest schema: %w", err)
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Validate checks the manifest invariants: ordinals run 1..n without gaps,
// chapter ids are unique, and every illustration a chapter references is a
// cataloged asset. All violations are reported together.
func (m *Manifest) Validate() error {
	var errs []error
	if m.VolumeID == "" {
		errs = append(errs, errors.New("volume_id is empty"))
	}

	assets := make(map[string]bool)
	if m.Assets.Cover != "" {
		assets[m.Assets.Cover] = true
	}
	for _, p := range m.Assets.ColorPlates {
		assets[p.Filename] = true
	}
	for _, f := range m.Assets.Illustrations {
		assets[f] = true
	}

	ids := make(map[string]bool)
	for i, ch := range m.Chapters {
		if ch.Ordinal != i+1 {
			errs = append(errs, fmt.Errorf("chapter %s: ordinal %d at position %d", ch.ID, ch.Ordinal, i+1))
		}
		if ch.ID == "" {
			errs = append(errs, fmt.Errorf("chapter at position %d has no id", i+1))
		} else if ids[ch.ID] {
			errs = append(errs, fmt.Errorf("chapter %s: duplicate id", ch.ID))
		}
		ids[ch.ID] = true
		for _, f := range ch.Illustrations {
			if !assets[f] {
				errs = append(errs, fmt.Errorf("chapter %s: illustration %s is not an asset", ch.ID, f))
			}
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}
