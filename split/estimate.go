package split

import (
	"math"
	"strings"
	"unicode"

	"github.com/tsawler/epubkit/markup"
	"github.com/tsawler/epubkit/model"
)

// tokensPerWord holds the per-language estimation constants. A CJK
// character counts as one word.
var tokensPerWord = map[string]float64{
	"ja": 1.0,
	"zh": 1.0,
	"ko": 0.9,
	"en": 1.3,
	"fr": 1.5,
	"de": 1.5,
	"es": 1.5,
}

const defaultTokensPerWord = 1.3

// Estimator approximates the token count of text as word count times a
// fixed per-language constant.
type Estimator struct {
	Language      string
	TokensPerWord float64
}

// NewEstimator returns the estimator for a language tag such as "ja" or
// "en-US". Unknown languages use a generic constant.
func NewEstimator(lang string) Estimator {
	base := strings.ToLower(lang)
	if i := strings.IndexAny(base, "-_"); i >= 0 {
		base = base[:i]
	}
	f, ok := tokensPerWord[base]
	if !ok {
		f = defaultTokensPerWord
	}
	return Estimator{Language: base, TokensPerWord: f}
}

// Text estimates one line of intermediate text. Inline markers are not
// counted.
func (e Estimator) Text(s string) int {
	w := countWords(markup.Plain(s))
	if w == 0 {
		return 0
	}
	return int(math.Ceil(float64(w) * e.TokensPerWord))
}

// Block estimates one block. Blanks, scene breaks and illustrations are
// free.
func (e Estimator) Block(b model.Block) int {
	switch v := b.(type) {
	case model.Paragraph:
		return e.Text(v.Text)
	case model.Heading:
		return e.Text(v.Text)
	}
	return 0
}

// Blocks estimates a block sequence. The estimate is additive.
func (e Estimator) Blocks(blocks []model.Block) int {
	n := 0
	for _, b := range blocks {
		n += e.Block(b)
	}
	return n
}

// Chapter estimates a chapter body plus its title.
func (e Estimator) Chapter(ch model.Chapter) int {
	return e.Text(ch.Title) + e.Blocks(ch.Body)
}

// countWords counts whitespace-separated words, with every CJK character
// counted as a word of its own.
func countWords(text string) int {
	words := 0
	inWord := false
	for _, r := range text {
		switch {
		case isCJK(r):
			words++
			inWord = false
		case unicode.IsSpace(r) || unicode.IsPunct(r) && r > unicode.MaxASCII:
			inWord = false
		case !inWord:
			inWord = true
			words++
		}
	}
	return words
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}
