package markup

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Inline markers carried by model.Paragraph and model.Heading text:
//
//	漢字{かんじ}        ruby; the base is the kanji run before the brace
//	｜Alice{アリス}     ruby with an explicit base start
//	*text*  **text**   emphasis and strong emphasis
//	<br>               line break
//	\*                 literal character
const (
	rubyOpen   = '{'
	rubyClose  = '}'
	rubyStart  = '｜'
	escapeRune = '\\'
	lineBreak  = "<br>"
)

// IsKanji reports whether r can be part of an implicit ruby base.
func IsKanji(r rune) bool {
	return unicode.Is(unicode.Han, r) || r == '々' || r == '〆' || r == 'ヶ' || r == '〇'
}

func allKanji(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !IsKanji(r) {
			return false
		}
	}
	return true
}

// RubyMarker formats a ruby annotation for appending to prev. The explicit
// start mark is used whenever the implicit rule would pick a different base.
func RubyMarker(prev, base, reading string) string {
	base = escapeText(base)
	reading = escapeReading(reading)
	if reading == "" {
		return base
	}
	last, _ := utf8.DecodeLastRuneInString(prev)
	if allKanji(base) && (prev == "" || !IsKanji(last)) {
		return base + string(rubyOpen) + reading + string(rubyClose)
	}
	return string(rubyStart) + base + string(rubyOpen) + reading + string(rubyClose)
}

// escapeText escapes characters with marker meaning.
func escapeText(s string) string {
	if !strings.ContainsAny(s, "\\*{}｜<") {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s) + 4)
	for i, r := range s {
		switch r {
		case '\\', '*', '{', '}', rubyStart:
			sb.WriteRune(escapeRune)
		case '<':
			if strings.HasPrefix(s[i:], "<br") {
				sb.WriteRune(escapeRune)
			}
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func escapeReading(s string) string {
	s = strings.ReplaceAll(s, "}", "")
	return strings.ReplaceAll(s, "{", "")
}

// escapeLineStart escapes a leading character that would make a paragraph
// line read as a heading or illustration.
func escapeLineStart(s string) string {
	if strings.HasPrefix(s, "#") || strings.HasPrefix(s, "![") {
		return string(escapeRune) + s
	}
	return s
}

type tokenKind int

const (
	tokText tokenKind = iota
	tokRuby
	tokEm
	tokStrong
	tokBreak
)

type token struct {
	kind    tokenKind
	text    string // text, or ruby base
	reading string
}

// tokenize splits marked-up text into tokens. Unbalanced emphasis markers
// are returned as text.
func tokenize(s string) []token {
	var toks []token
	var buf strings.Builder

	flush := func() {
		if buf.Len() > 0 {
			toks = append(toks, token{kind: tokText, text: buf.String()})
			buf.Reset()
		}
	}

	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == escapeRune && i+size < len(s):
			next, nsize := utf8.DecodeRuneInString(s[i+size:])
			buf.WriteRune(next)
			i += size + nsize
			continue

		case strings.HasPrefix(s[i:], lineBreak):
			flush()
			toks = append(toks, token{kind: tokBreak})
			i += len(lineBreak)
			continue

		case strings.HasPrefix(s[i:], "<br/>"):
			flush()
			toks = append(toks, token{kind: tokBreak})
			i += len("<br/>")
			continue

		case strings.HasPrefix(s[i:], "**"):
			flush()
			toks = append(toks, token{kind: tokStrong, text: "**"})
			i += 2
			continue

		case r == '*':
			flush()
			toks = append(toks, token{kind: tokEm, text: "*"})
			i += size
			continue

		case r == rubyStart:
			open := strings.IndexRune(s[i+size:], rubyOpen)
			if open >= 0 {
				rest := s[i+size+open+1:]
				if end := strings.IndexRune(rest, rubyClose); end >= 0 {
					flush()
					toks = append(toks, token{
						kind:    tokRuby,
						text:    unescape(s[i+size : i+size+open]),
						reading: rest[:end],
					})
					i = i + size + open + 1 + end + 1
					continue
				}
			}

		case r == rubyOpen:
			if end := strings.IndexRune(s[i+size:], rubyClose); end >= 0 {
				text := buf.String()
				base := implicitBase(text)
				if base != "" {
					buf.Reset()
					buf.WriteString(text[:len(text)-len(base)])
					flush()
					toks = append(toks, token{kind: tokRuby, text: base, reading: s[i+size : i+size+end]})
					i += size + end + 1
					continue
				}
			}
		}

		buf.WriteRune(r)
		i += size
	}
	flush()

	return balance(toks)
}

// implicitBase returns the trailing kanji run of s, or failing that the
// trailing run of letters of one script.
func implicitBase(s string) string {
	end := len(s)
	start := end
	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(s[:start])
		if !IsKanji(r) {
			break
		}
		start -= size
	}
	if start < end {
		return s[start:]
	}

	last, _ := utf8.DecodeLastRuneInString(s)
	if last == utf8.RuneError || !unicode.IsLetter(last) {
		return ""
	}
	class := scriptClass(last)
	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(s[:start])
		if !unicode.IsLetter(r) || scriptClass(r) != class {
			break
		}
		start -= size
	}
	return s[start:]
}

func scriptClass(r rune) int {
	switch {
	case unicode.Is(unicode.Hiragana, r):
		return 1
	case unicode.Is(unicode.Katakana, r) || r == 'ー':
		return 2
	case unicode.Is(unicode.Latin, r):
		return 3
	default:
		return 0
	}
}

// balance turns unpaired emphasis tokens back into text.
func balance(toks []token) []token {
	for _, kind := range []tokenKind{tokStrong, tokEm} {
		var open []int
		paired := make(map[int]bool)
		for i, t := range toks {
			if t.kind != kind {
				continue
			}
			if len(open) > 0 {
				paired[open[len(open)-1]] = true
				paired[i] = true
				open = open[:len(open)-1]
			} else {
				open = append(open, i)
			}
		}
		for i, t := range toks {
			if t.kind == kind && !paired[i] {
				toks[i] = token{kind: tokText, text: t.text}
			}
		}
	}
	return toks
}

func unescape(s string) string {
	if !strings.ContainsRune(s, escapeRune) {
		return s
	}
	var sb strings.Builder
	esc := false
	for _, r := range s {
		if r == escapeRune && !esc {
			esc = true
			continue
		}
		esc = false
		sb.WriteRune(r)
	}
	return sb.String()
}

// Ruby is one ruby annotation located in plain text.
type Ruby struct {
	Base    string
	Reading string
	Offset  int // byte offset of Base in the plain text
}

// Plain strips inline markers, keeping ruby base text and turning line
// breaks into newlines.
func Plain(s string) string {
	plain, _ := PlainWithRuby(s)
	return plain
}

// PlainWithRuby strips inline markers and reports every ruby annotation with
// its position in the returned text.
func PlainWithRuby(s string) (string, []Ruby) {
	var sb strings.Builder
	var rubies []Ruby
	for _, t := range tokenize(s) {
		switch t.kind {
		case tokText:
			sb.WriteString(t.text)
		case tokRuby:
			rubies = append(rubies, Ruby{Base: t.text, Reading: t.reading, Offset: sb.Len()})
			sb.WriteString(t.text)
		case tokBreak:
			sb.WriteByte('\n')
		}
	}
	return sb.String(), rubies
}
