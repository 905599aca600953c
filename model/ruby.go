package model

import "fmt"

// RubyKind classifies a ruby annotation.
type RubyKind int

const (
	RubyStandard RubyKind = iota
	RubyStylisticGlyph
	RubyForeignName
	RubyFragment
)

func (k RubyKind) String() string {
	switch k {
	case RubyStandard:
		return "standard"
	case RubyStylisticGlyph:
		return "stylistic"
	case RubyForeignName:
		return "foreign_name"
	case RubyFragment:
		return "fragment"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k RubyKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *RubyKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "standard", "":
		*k = RubyStandard
	case "stylistic":
		*k = RubyStylisticGlyph
	case "foreign_name":
		*k = RubyForeignName
	case "fragment":
		*k = RubyFragment
	default:
		return fmt.Errorf("unknown ruby kind %q", string(b))
	}
	return nil
}

// RubyAnnotation is a pronunciation gloss attached to base text.
// Annotations are deduplicated by (BaseText, Reading).
type RubyAnnotation struct {
	BaseText    string   `json:"base" yaml:"base"`
	Reading     string   `json:"reading" yaml:"reading"`
	SourceFile  string   `json:"source_file,omitempty" yaml:"source_file,omitempty"`
	Confidence  float64  `json:"confidence" yaml:"confidence"`
	Kind        RubyKind `json:"kind" yaml:"kind"`
	Occurrences int      `json:"occurrences,omitempty" yaml:"occurrences,omitempty"`
	Signals     []string `json:"signals,omitempty" yaml:"signals,omitempty"`
}

// Key returns the deduplication key of the annotation.
func (r RubyAnnotation) Key() string {
	return r.BaseText + "\x00" + r.Reading
}
