package ruby

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed stylistic.yaml
var stylisticYAML []byte

// Pair is a base text with its reading. An empty Reading stands for any
// reading.
type Pair struct {
	Base    string `yaml:"base" mapstructure:"base"`
	Reading string `yaml:"reading,omitempty" mapstructure:"reading"`
}

// DefaultStylistic returns the built-in exclusion list.
func DefaultStylistic() []Pair {
	var pairs []Pair
	if err := yaml.Unmarshal(stylisticYAML, &pairs); err != nil {
		panic(fmt.Sprintf("ruby: embedded stylistic list: %v", err))
	}
	return pairs
}

// ParseStylistic reads an exclusion list in the embedded format.
func ParseStylistic(data []byte) ([]Pair, error) {
	var pairs []Pair
	if err := yaml.Unmarshal(data, &pairs); err != nil {
		return nil, fmt.Errorf("parsing stylistic list: %w", err)
	}
	return pairs, nil
}

type exclusionList struct {
	pairs map[Pair]bool
	bases map[string]bool
}

func newExclusionList(pairs []Pair) *exclusionList {
	l := &exclusionList{pairs: make(map[Pair]bool), bases: make(map[string]bool)}
	for _, p := range pairs {
		if p.Reading == "" {
			l.bases[p.Base] = true
			continue
		}
		l.pairs[Pair{Base: p.Base, Reading: toKatakana(p.Reading)}] = true
	}
	return l
}

func (l *exclusionList) contains(base, reading string) bool {
	return l.bases[base] || l.pairs[Pair{Base: base, Reading: toKatakana(reading)}]
}

// stylisticReason reports why an annotation is decorative, or "" when it
// is not. A kanji word the dictionary knows, glossed in katakana with a
// reading it does not have, is decorative.
func stylisticReason(base, reading string, list *exclusionList, analyzer Analyzer) string {
	if list.contains(base, reading) {
		return "exclusion_list"
	}
	if analyzer == nil || !allHan(base) || !isKatakana(reading) {
		return ""
	}
	dict, ok := analyzer.DictionaryReading(base)
	if ok && dict != toKatakana(reading) {
		return "dictionary_mismatch"
	}
	return ""
}
