package segment

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/width"

	"github.com/tsawler/epubkit/markup"
)

// Title signal names.
const (
	TitlePattern     = "pattern"
	TitleHeading     = "heading_element"
	TitleShort       = "short_line"
	TitleFirstLine   = "first_line"
	TitleDialogue    = "dialogue"
	TitleSentenceEnd = "sentence_end"
	TitleLong        = "long_line"
)

const (
	titlePatternPoints  = 60
	titleHeadingPoints  = 20
	titleShortPoints    = 10
	titleFirstPoints    = 10
	titleDialoguePoints = -50
	titleSentencePoints = -30
	titleLongPoints     = -40
	titleThreshold      = 60

	titleShortRunes = 30
	titleLongRunes  = 40
)

// TitleScore is the outcome of scoring one line as a chapter title.
type TitleScore struct {
	Points  int
	Signals []string
}

// IsTitle reports whether the score reaches the title threshold.
func (s TitleScore) IsTitle() bool {
	return s.Points >= titleThreshold
}

// TitleLine describes a candidate line.
type TitleLine struct {
	Text      string // plain text
	Heading   bool   // taken from a heading element
	FirstLine bool   // first text line of the document
}

// ScoreTitle scores a line against the title patterns. Full-width digits
// and letters are folded before matching, so "第１２話" and "Ｃｈａｐｔｅｒ ３"
// match patterns written with ASCII.
func ScoreTitle(line TitleLine, patterns []*regexp.Regexp) TitleScore {
	var s TitleScore
	text := strings.TrimSpace(strings.Trim(line.Text, "　"))
	if text == "" {
		return s
	}
	folded := width.Fold.String(text)

	for _, re := range patterns {
		if re.MatchString(folded) {
			s.add(TitlePattern, titlePatternPoints)
			break
		}
	}
	if line.Heading {
		s.add(TitleHeading, titleHeadingPoints)
	}

	n := utf8.RuneCountInString(text)
	if n <= titleShortRunes {
		s.add(TitleShort, titleShortPoints)
	}
	if line.FirstLine {
		s.add(TitleFirstLine, titleFirstPoints)
	}
	if strings.HasPrefix(text, "「") || strings.HasPrefix(text, "『") || strings.HasPrefix(text, "\"") {
		s.add(TitleDialogue, titleDialoguePoints)
	}
	if strings.HasSuffix(text, "。") {
		s.add(TitleSentenceEnd, titleSentencePoints)
	}
	if n > titleLongRunes {
		s.add(TitleLong, titleLongPoints)
	}

	// Only a pattern match makes a title; the other signals adjust it.
	if s.Signals == nil || s.Signals[0] != TitlePattern {
		s.Points = min(s.Points, titleThreshold-1)
	}
	return s
}

func (s *TitleScore) add(signal string, points int) {
	s.Points += points
	s.Signals = append(s.Signals, signal)
}

// MatterKind names a non-chapter page.
type MatterKind string

const (
	MatterNone     MatterKind = ""
	MatterCover    MatterKind = "cover"
	MatterTOC      MatterKind = "toc"
	MatterCredits  MatterKind = "credits"
	MatterColophon MatterKind = "colophon"
	MatterImages   MatterKind = "images"
	MatterText     MatterKind = "text"
)

var matterKeywords = []struct {
	kind  MatterKind
	words []string
}{
	{MatterCover, []string{"表紙", "カバー", "cover"}},
	{MatterTOC, []string{"目次", "もくじ", "contents", "table of contents"}},
	{MatterColophon, []string{"奥付", "colophon", "isbn", "発行所", "発行者", "印刷所", "©", "copyright", "all rights reserved"}},
	{MatterCredits, []string{"credits", "staff", "スタッフ", "イラスト：", "イラスト:", "装丁", "デザイン：", "初出", "本書は"}},
}

// matterMaxRunes bounds the size of a page that keyword detection may
// classify as front matter.
const matterMaxRunes = 1500

// classifyLabel recognizes navigation labels of non-chapter pages.
func classifyLabel(label string) MatterKind {
	key := strings.ToLower(strings.TrimSpace(width.Fold.String(label)))
	if key == "" {
		return MatterNone
	}
	for _, mk := range matterKeywords {
		for _, w := range mk.words {
			if key == w || (utf8.RuneCountInString(key) <= 12 && strings.Contains(key, w)) {
				return mk.kind
			}
		}
	}
	return MatterNone
}

// classifyPage recognizes front and back matter from page content: a
// table of contents by link density, other pages by keywords on short
// pages.
func classifyPage(stats *markup.PageStats, linkDensity float64) MatterKind {
	if stats.InternalLinks >= 2 && stats.LinkDensity() >= linkDensity {
		return MatterTOC
	}
	if stats.TextRunes == 0 || stats.TextRunes > matterMaxRunes {
		return MatterNone
	}

	var texts []string
	texts = append(texts, stats.Headings...)
	if len(stats.Lines) > 0 {
		texts = append(texts, stats.Lines[0])
	}
	for _, t := range texts {
		if k := classifyLabel(t); k != MatterNone {
			return k
		}
	}

	body := strings.ToLower(width.Fold.String(stats.Text))
	for _, mk := range matterKeywords {
		if mk.kind == MatterCover {
			continue
		}
		for _, w := range mk.words {
			if utf8.RuneCountInString(w) >= 3 && strings.Contains(body, w) && !isNarrativeText(stats.Text) {
				return mk.kind
			}
		}
	}
	return MatterNone
}

var firstPerson = regexp.MustCompile(`(俺|僕|私|あたし|わたし|ぼく|おれ|わたくし|\bI\b|\bI'm\b|\bmy\b)`)

// isNarrativeText reports whether text reads like story prose: dialogue,
// a first-person narrator or sustained sentences.
func isNarrativeText(text string) bool {
	return narrativeSignals(text, 0) != nil
}

// narrativeSignals lists the narrative markers in text. minRunes enables
// the length signal when positive.
func narrativeSignals(text string, minRunes int) []string {
	var signals []string
	if strings.Count(text, "「") >= 2 || strings.Count(text, "“") >= 2 {
		signals = append(signals, "dialogue")
	}
	if firstPerson.MatchString(text) {
		signals = append(signals, "first_person")
	}
	if minRunes > 0 && markup.RuneCount(text) >= minRunes {
		signals = append(signals, "length")
	}
	return signals
}

// sameTitle compares a navigation label with a line of content.
func sameTitle(a, b string) bool {
	norm := func(s string) string {
		s = width.Fold.String(s)
		return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
			return r == ' ' || r == '　' || r == '\t'
		}), "")
	}
	na, nb := norm(a), norm(b)
	return na != "" && na == nb
}
