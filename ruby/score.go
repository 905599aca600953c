package ruby

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Signal names reported by Score.
const (
	SignalForeignScript   = "foreign_script"
	SignalHonorific       = "honorific"
	SignalSelfIntro       = "self_introduction"
	SignalParticle        = "particle"
	SignalNameLength      = "name_length"
	SignalPhonetic        = "phonetic_reading"
	SignalParticleLength  = "particle_and_length"
	SignalDictionaryName  = "dictionary_name"
	SignalLongBase        = "long_base"
	SignalVerbContinuance = "verb_continuation"
)

// Weights are in hundredths so that sums compare exactly against the
// threshold.
const (
	promotedPoints      = 95
	particlePoints      = 30
	shortNamePoints     = 35 // two characters
	namePoints          = 30 // three or four characters
	phoneticPoints      = 15
	comboPoints         = 20
	dictionaryPoints    = 15
	longBasePenalty     = -40
	verbPenalty         = -25
	verbWindow          = 15
	longBaseMinRunes    = 5
	fragmentMinRunes    = 2
	fragmentMaxRunes    = 3
	defaultThresholdPts = 70
)

// Candidate is one annotation with its surrounding text.
type Candidate struct {
	Base    string
	Reading string
	Before  string // text of the sentence preceding the base
	After   string // text following the base up to the end of the paragraph
}

// Score is a confidence with the signals that produced it.
type Score struct {
	Points  int
	Signals []string
}

// Confidence returns the score as a value in [0,1].
func (s Score) Confidence() float64 {
	p := s.Points
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return float64(p) / 100
}

var honorifics = []string{
	"さん", "様", "さま", "くん", "君", "ちゃん", "殿", "どの", "先輩", "先生",
	"氏", "嬢", "卿", "姫", "王子", "陛下", "殿下", "たん", "っち", "師匠",
}

var topicParticles = []string{"は", "が", "も"}

var (
	selfIntroAfter  = regexp.MustCompile(`^(と申します|と申す|といいます|と言います|っていいます|って言います|です|だ|でございます)`)
	strongIntro     = regexp.MustCompile(`^(と申します|と申す|といいます|と言います|って言います|っていいます)`)
	selfIntroBefore = regexp.MustCompile(`(私|僕|俺|わたし|あたし|ぼく|おれ|わたくし|拙者|我が名|名前|名)は$`)
)

// ScoreCandidate evaluates one annotation. Promotion signals short-circuit
// to a near-certain score; otherwise additive signals and penalties are
// summed. analyzer may be nil.
func ScoreCandidate(c Candidate, analyzer Analyzer) Score {
	var s Score
	base := c.Base
	n := utf8.RuneCountInString(base)

	if hasForeignScript(base) {
		s.Signals = append(s.Signals, SignalForeignScript)
	}
	if hasAnyPrefix(c.After, honorifics) {
		s.Signals = append(s.Signals, SignalHonorific)
	}
	if isSelfIntroduction(c.Before, c.After) {
		s.Signals = append(s.Signals, SignalSelfIntro)
	}
	if len(s.Signals) > 0 {
		s.Points = promotedPoints + len(s.Signals) - 1
		return s
	}

	particle := hasAnyPrefix(c.After, topicParticles)
	if particle {
		s.add(SignalParticle, particlePoints)
	}

	nameLen := false
	switch {
	case n == 2:
		s.add(SignalNameLength, shortNamePoints)
		nameLen = true
	case n == 3 || n == 4:
		s.add(SignalNameLength, namePoints)
		nameLen = true
	}

	if isPhonetic(c.Reading) {
		s.add(SignalPhonetic, phoneticPoints)
	}
	if particle && nameLen {
		s.add(SignalParticleLength, comboPoints)
	}
	if analyzer != nil && analyzer.IsPersonName(base) {
		s.add(SignalDictionaryName, dictionaryPoints)
	}

	if n >= longBaseMinRunes {
		s.add(SignalLongBase, longBasePenalty)
	}
	if analyzer != nil && analyzer.HasVerb(firstRunes(c.After, verbWindow)) {
		s.add(SignalVerbContinuance, verbPenalty)
	}
	return s
}

func (s *Score) add(signal string, points int) {
	s.Points += points
	s.Signals = append(s.Signals, signal)
}

func hasForeignScript(s string) bool {
	for _, r := range s {
		if r == 'ー' || r == '・' || r == '＝' {
			continue
		}
		if unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Latin, r) {
			return true
		}
	}
	return false
}

func isSelfIntroduction(before, after string) bool {
	if strongIntro.MatchString(after) {
		return true
	}
	before = strings.TrimRight(before, " 　「『")
	return selfIntroBefore.MatchString(before) && selfIntroAfter.MatchString(after)
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// isPhonetic reports whether a reading is written in kana only.
func isPhonetic(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case unicode.Is(unicode.Hiragana, r), unicode.Is(unicode.Katakana, r):
		case r == 'ー' || r == '・' || r == '＝' || r == '　' || r == ' ':
		default:
			return false
		}
	}
	return true
}

// isKatakana reports whether s is written in katakana only.
func isKatakana(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.Is(unicode.Katakana, r) && r != 'ー' && r != '・' {
			return false
		}
	}
	return true
}

func allHan(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.Is(unicode.Han, r) && r != '々' {
			return false
		}
	}
	return true
}

// toKatakana folds hiragana to katakana.
func toKatakana(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'ぁ' && r <= 'ゖ' {
			return r + 0x60
		}
		return r
	}, s)
}

func firstRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
