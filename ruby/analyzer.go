package ruby

import (
	"fmt"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
)

// Analyzer supplies morphological facts used by the scorer. A nil Analyzer
// disables the signals that depend on it.
type Analyzer interface {
	// HasVerb reports whether text contains a verb.
	HasVerb(text string) bool

	// DictionaryReading returns the katakana reading of text when text is
	// a single known common word.
	DictionaryReading(text string) (string, bool)

	// IsPersonName reports whether the dictionary tags text as a personal
	// name.
	IsPersonName(text string) bool
}

// KagomeAnalyzer implements Analyzer with the IPA dictionary.
type KagomeAnalyzer struct {
	t *tokenizer.Tokenizer
}

// NewKagomeAnalyzer loads the tokenizer. Loading the dictionary takes a
// noticeable moment; share one analyzer across volumes.
func NewKagomeAnalyzer() (*KagomeAnalyzer, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, fmt.Errorf("creating tokenizer: %w", err)
	}
	return &KagomeAnalyzer{t: t}, nil
}

func (a *KagomeAnalyzer) HasVerb(text string) bool {
	for _, tok := range a.t.Tokenize(text) {
		if pos := tok.POS(); len(pos) > 0 && pos[0] == "動詞" {
			return true
		}
	}
	return false
}

func (a *KagomeAnalyzer) DictionaryReading(text string) (string, bool) {
	toks := a.t.Tokenize(text)
	if len(toks) != 1 || toks[0].Class != tokenizer.KNOWN {
		return "", false
	}
	pos := toks[0].POS()
	if len(pos) < 2 || pos[0] != "名詞" || pos[1] == "固有名詞" {
		return "", false
	}
	reading, ok := toks[0].Reading()
	if !ok || reading == "" || reading == "*" {
		return "", false
	}
	return reading, true
}

func (a *KagomeAnalyzer) IsPersonName(text string) bool {
	toks := a.t.Tokenize(text)
	if len(toks) == 0 {
		return false
	}
	for _, tok := range toks {
		pos := tok.POS()
		if len(pos) < 3 || pos[1] != "固有名詞" || pos[2] != "人名" {
			return false
		}
	}
	return true
}
