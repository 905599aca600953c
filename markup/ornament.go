package markup

import (
	"strings"
	"unicode/utf8"
)

// GenericSceneBreak is the intermediate-format line for a scene break
// without a distinctive marker.
const GenericSceneBreak = "* * *"

// ornaments are glyphs that, alone or repeated, divide scenes.
var ornaments = map[rune]bool{
	'*': true, '＊': true, '※': true, '⁂': true, '❖': true, '✤': true, '✻': true,
	'◇': true, '◆': true, '□': true, '■': true, '○': true, '●': true, '◎': true,
	'☆': true, '★': true, '♢': true, '♦': true, '◈': true, '✧': true, '✦': true,
	'・': true, '•': true, '·': true, '＝': true, '=': true, '~': true, '〜': true, '～': true,
	'❀': true, '✿': true, '♪': true, '†': true,
}

// rules are glyphs that divide scenes only as a line of three or more.
var rules = map[rune]bool{
	'─': true, '━': true, '―': true, '—': true, '－': true, '-': true, '_': true,
}

// generic glyphs collapse to the canonical marker.
var generic = map[rune]bool{
	'*': true, '＊': true, '◇': true, '◆': true, '⁂': true,
}

func isSpaceRune(r rune) bool {
	return r == ' ' || r == '\t' || r == '　' || r == ' '
}

// SceneBreakMarker reports whether text is a decorative divider. The marker
// is "" for generic dividers and the trimmed text otherwise.
func SceneBreakMarker(text string) (marker string, ok bool) {
	trimmed := strings.TrimFunc(text, isSpaceRune)
	if trimmed == "" {
		return "", false
	}

	var glyphs, ruleGlyphs int
	allGeneric, allDots, spaced := true, true, false
	for _, r := range trimmed {
		if r != '・' && r != '·' && !isSpaceRune(r) {
			allDots = false
		}
		switch {
		case isSpaceRune(r):
			spaced = true
			continue
		case ornaments[r]:
			glyphs++
		case rules[r]:
			ruleGlyphs++
		default:
			return "", false
		}
		if !generic[r] {
			allGeneric = false
		}
	}

	if glyphs == 0 && ruleGlyphs < 3 {
		return "", false
	}
	// An unspaced run of middle dots is a silence line.
	if allDots && !spaced {
		return "", false
	}
	// A lone middle dot or tilde is punctuation, not an ornament.
	if glyphs == 1 && ruleGlyphs == 0 && utf8.RuneCountInString(trimmed) == 1 {
		r, _ := utf8.DecodeRuneInString(trimmed)
		if r == '・' || r == '·' || r == '~' || r == '〜' || r == '～' || r == '=' || r == '＝' {
			return "", false
		}
	}

	if allGeneric {
		return "", true
	}
	return trimmed, true
}

// sceneBreakGlyph is the visible glyph for a generic scene break.
const sceneBreakGlyph = "◇"
