// Package ruby mines character names from ruby annotations.
//
// Every annotation found in the content is scored by [ScoreCandidate]:
// promotion signals (foreign script, an honorific, a self-introduction)
// make a name near-certain, otherwise additive signals and penalties are
// summed and compared against a threshold. Decorative readings are set
// aside before scoring and never reach the roster. Short annotations that
// fall below the threshold are pooled by reading so that names annotated in
// separate surname and given-name pieces can be assembled by hand.
package ruby

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/tsawler/epubkit/markup"
	"github.com/tsawler/epubkit/model"
)

// Config configures an Extractor.
type Config struct {
	// Threshold is the minimum confidence for the roster. Default 0.70.
	Threshold float64

	// Stylistic extends the built-in exclusion list.
	Stylistic []Pair

	// Analyzer enables morphological signals. May be nil.
	Analyzer Analyzer

	Logger *slog.Logger
}

// Result holds the classified annotations of a volume.
type Result struct {
	// Roster holds annotations at or above the threshold, in order of first
	// occurrence.
	Roster []model.RubyAnnotation `json:"roster"`

	// Stylistic holds decorative annotations.
	Stylistic []model.RubyAnnotation `json:"stylistic,omitempty"`

	// Fragments pools short below-threshold annotations by reading.
	Fragments map[string][]model.RubyAnnotation `json:"fragments,omitempty"`

	// Rejected holds every other below-threshold annotation.
	Rejected []model.RubyAnnotation `json:"rejected,omitempty"`
}

// Names returns the roster as base text to reading.
func (r *Result) Names() map[string]string {
	names := make(map[string]string, len(r.Roster))
	for _, a := range r.Roster {
		names[a.BaseText] = a.Reading
	}
	return names
}

// InRoster reports whether base text is in the roster.
func (r *Result) InRoster(base string) bool {
	for _, a := range r.Roster {
		if a.BaseText == base {
			return true
		}
	}
	return false
}

type entry struct {
	ann       model.RubyAnnotation
	stylistic string
	best      Score
}

// Extractor accumulates annotations across the documents of one volume.
// It is not safe for concurrent use.
type Extractor struct {
	threshold int
	list      *exclusionList
	analyzer  Analyzer
	log       *slog.Logger

	entries map[string]*entry
	order   []string
}

// New creates an Extractor.
func New(cfg Config) *Extractor {
	threshold := defaultThresholdPts
	if cfg.Threshold > 0 {
		threshold = int(math.Round(cfg.Threshold * 100))
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	pairs := append(DefaultStylistic(), cfg.Stylistic...)
	return &Extractor{
		threshold: threshold,
		list:      newExclusionList(pairs),
		analyzer:  cfg.Analyzer,
		log:       cfg.Logger,
		entries:   make(map[string]*entry),
	}
}

// AddDocument scans a content document.
func (e *Extractor) AddDocument(sourceFile string, data []byte) error {
	doc, err := markup.Extract(data, markup.ExtractOptions{DocPath: sourceFile})
	if err != nil {
		return fmt.Errorf("scanning %s: %w", sourceFile, err)
	}
	if doc.Title != "" {
		e.AddText(sourceFile, doc.Title)
	}
	for _, b := range doc.Blocks {
		switch v := b.(type) {
		case model.Paragraph:
			e.AddText(sourceFile, v.Text)
		case model.Heading:
			e.AddText(sourceFile, v.Text)
		}
	}
	return nil
}

// AddText scans one paragraph of intermediate-format text.
func (e *Extractor) AddText(sourceFile, text string) {
	plain, rubies := markup.PlainWithRuby(text)
	for _, r := range rubies {
		if strings.TrimSpace(r.Base) == "" || strings.TrimSpace(r.Reading) == "" {
			continue
		}
		end := r.Offset + len(r.Base)
		e.add(sourceFile, Candidate{
			Base:    r.Base,
			Reading: r.Reading,
			Before:  sentenceBefore(plain[:r.Offset]),
			After:   paragraphAfter(plain[end:]),
		})
	}
}

func (e *Extractor) add(sourceFile string, c Candidate) {
	ann := model.RubyAnnotation{BaseText: c.Base, Reading: c.Reading}
	key := ann.Key()

	en, ok := e.entries[key]
	if !ok {
		ann.SourceFile = sourceFile
		en = &entry{ann: ann, stylistic: stylisticReason(c.Base, c.Reading, e.list, e.analyzer)}
		e.entries[key] = en
		e.order = append(e.order, key)
	}
	en.ann.Occurrences++

	if en.stylistic != "" {
		return
	}
	s := ScoreCandidate(c, e.analyzer)
	if en.ann.Occurrences == 1 || s.Points > en.best.Points {
		en.best = s
	}
}

// Result classifies everything seen so far.
func (e *Extractor) Result() *Result {
	res := &Result{Fragments: make(map[string][]model.RubyAnnotation)}

	for _, key := range e.order {
		en := e.entries[key]
		ann := en.ann

		if en.stylistic != "" {
			ann.Kind = model.RubyStylisticGlyph
			ann.Signals = []string{en.stylistic}
			res.Stylistic = append(res.Stylistic, ann)
			continue
		}

		ann.Confidence = en.best.Confidence()
		ann.Signals = append([]string(nil), en.best.Signals...)
		if hasSignal(en.best.Signals, SignalForeignScript) {
			ann.Kind = model.RubyForeignName
		}

		n := utf8.RuneCountInString(ann.BaseText)
		switch {
		case en.best.Points >= e.threshold:
			res.Roster = append(res.Roster, ann)
		case n >= fragmentMinRunes && n <= fragmentMaxRunes:
			ann.Kind = model.RubyFragment
			reading := toKatakana(ann.Reading)
			res.Fragments[reading] = append(res.Fragments[reading], ann)
		default:
			res.Rejected = append(res.Rejected, ann)
		}
	}

	e.log.Debug("ruby classified",
		"roster", len(res.Roster),
		"stylistic", len(res.Stylistic),
		"fragments", len(res.Fragments),
		"rejected", len(res.Rejected))
	return res
}

// FragmentReadings returns the fragment pool keys in sorted order.
func (r *Result) FragmentReadings() []string {
	keys := make([]string, 0, len(r.Fragments))
	for k := range r.Fragments {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func hasSignal(signals []string, name string) bool {
	for _, s := range signals {
		if s == name {
			return true
		}
	}
	return false
}

// sentenceBefore returns the text after the last sentence boundary.
func sentenceBefore(s string) string {
	cut := strings.LastIndexAny(s, "。！？!?\n")
	if cut < 0 {
		return s
	}
	_, size := utf8.DecodeRuneInString(s[cut:])
	return s[cut+size:]
}

// paragraphAfter strips leading quotes that close a bracketed base.
func paragraphAfter(s string) string {
	return strings.TrimLeft(s, "」』）)")
}
