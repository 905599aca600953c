package profile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

var loadSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	raw, err := embedded.ReadFile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("reading profile schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("profile.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to load profile schema: %w", err)
	}
	schema, err := compiler.Compile("profile.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile profile schema: %w", err)
	}
	return schema, nil
})

// Parse validates a YAML profile document and decodes it. The returned
// profile is compiled.
func Parse(data []byte, source string) (*Profile, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%s: invalid YAML: %w", source, err)
	}

	// Round-trip through JSON so the validator sees JSON types.
	asJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	dec := json.NewDecoder(bytes.NewReader(asJSON))
	dec.UseNumber()
	var jdoc any
	if err := dec.Decode(&jdoc); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(jdoc); err != nil {
		return nil, fmt.Errorf("%s: profile does not match schema: %w", source, err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	if !p.Generic && len(p.Aliases) == 0 {
		return nil, fmt.Errorf("%s: profile %s has no aliases", source, p.Name)
	}
	p.Source = source

	if err := p.Compile(); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	return &p, nil
}
