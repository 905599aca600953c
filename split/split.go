// Package split divides oversized chapters into parts that fit a token
// budget.
//
// Parts are cut at natural break points. Scene breaks are preferred; the
// break stays at the end of the earlier part. Next come runs of three or
// more blank lines, cut at the middle of the run. When neither exists
// within the budget the cut falls on the farthest block boundary that fits.
// Paragraphs too large to ever fit are first broken at sentence ends.
//
// Every part except the last stays between MinTokens and MaxTokens. Parts
// inherit the parent's identity with a part index appended, and each
// illustration goes to the part that holds its block.
package split

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/tsawler/epubkit/model"
)

// ErrBudget reports an unusable token budget.
var ErrBudget = errors.New("invalid token budget")

// minBlankRun is the shortest blank run that marks a break.
const minBlankRun = 3

// Config controls splitting.
type Config struct {
	// MaxTokens is the largest estimate a part may have. Default 6000.
	MaxTokens int

	// MinTokens is the smallest estimate of any part but the last.
	// Default 1500. Must not exceed MaxTokens/2.
	MinTokens int

	// Language selects the estimation constant. Default "ja".
	Language string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MaxTokens <= 0 {
		c.MaxTokens = 6000
	}
	if c.MinTokens <= 0 {
		c.MinTokens = 1500
	}
	if c.Language == "" {
		c.Language = "ja"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

func (c *Config) validate() error {
	if c.MinTokens > c.MaxTokens/2 {
		return fmt.Errorf("%w: min %d exceeds half of max %d", ErrBudget, c.MinTokens, c.MaxTokens)
	}
	return nil
}

// Splitter splits chapters under one configuration.
type Splitter struct {
	cfg Config
	est Estimator
	log *slog.Logger
}

// New returns a Splitter.
func New(cfg Config) (*Splitter, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Splitter{cfg: cfg, est: NewEstimator(cfg.Language), log: cfg.Logger}, nil
}

// Estimator returns the estimator in use.
func (s *Splitter) Estimator() Estimator {
	return s.est
}

// Split returns ch unchanged when it fits the budget, otherwise its parts in
// order. Ordinals are left for the caller to renumber.
func (s *Splitter) Split(ch model.Chapter) []model.Chapter {
	total := s.est.Chapter(ch)
	if total <= s.cfg.MaxTokens {
		return []model.Chapter{ch}
	}

	// Every part carries the title, so every part is charged for it.
	titleTokens := s.est.Text(ch.Title)

	// Oversized paragraphs are broken up first so that every block fits in
	// half of what a part leaves after its title.
	blocks := s.breakParagraphs(ch.Body, max((s.cfg.MaxTokens-titleTokens)/2, 1))
	sizes := make([]int, len(blocks))
	for i, b := range blocks {
		sizes[i] = s.est.Block(b)
	}

	cuts := s.plan(blocks, sizes, titleTokens)
	if len(cuts) == 0 {
		return []model.Chapter{ch}
	}

	base := ch.BaseID
	if base == "" {
		base = ch.ID
	}
	parts := make([]model.Chapter, 0, len(cuts)+1)
	start := 0
	for i, end := range append(cuts, len(blocks)) {
		part := model.Chapter{
			ID:            model.PartID(base, i+1),
			BaseID:        base,
			Part:          i + 1,
			Title:         ch.Title,
			Level:         ch.Level,
			IsFrontMatter: ch.IsFrontMatter,
			SourceFiles:   ch.SourceFiles,
			Body:          blocks[start:end:end],
		}
		part.Illustrations = illustrations(part.Body)
		parts = append(parts, part)
		start = end
	}

	// Illustrations listed on the parent without a block stay with the
	// first part.
	placed := make(map[string]bool)
	for _, p := range parts {
		for _, f := range p.Illustrations {
			placed[f] = true
		}
	}
	for _, f := range ch.Illustrations {
		if !placed[f] {
			parts[0].Illustrations = append(parts[0].Illustrations, f)
			placed[f] = true
		}
	}

	s.log.Info("chapter split",
		"chapter", ch.ID,
		"tokens", total,
		"parts", len(parts),
		"max_tokens", s.cfg.MaxTokens)
	return parts
}

// SplitAll splits every chapter and renumbers the result.
func (s *Splitter) SplitAll(chapters []model.Chapter) []model.Chapter {
	out := make([]model.Chapter, 0, len(chapters))
	for _, ch := range chapters {
		out = append(out, s.Split(ch)...)
	}
	model.Renumber(out)
	return out
}

// plan returns cut positions; a cut at i ends a part before blocks[i].
// Greedily, each part ends at the best boundary that keeps it within
// budget: the best tier first, the farthest position within a tier.
func (s *Splitter) plan(blocks []model.Block, sizes []int, titleTokens int) []int {
	prefix := make([]int, len(sizes)+1)
	for i, n := range sizes {
		prefix[i+1] = prefix[i] + n
	}
	sum := func(from, to int) int { return prefix[to] - prefix[from] }

	tiers := breakTiers(blocks)

	var cuts []int
	start := 0
	for start < len(blocks) {
		if titleTokens+sum(start, len(blocks)) <= s.cfg.MaxTokens {
			break
		}
		cut := s.pick(start, len(blocks), tiers, func(at int) (part, rest int) {
			part = titleTokens + sum(start, at)
			if rest = sum(at, len(blocks)); rest > 0 {
				rest += titleTokens
			}
			return part, rest
		})
		if cut <= start {
			break
		}
		cuts = append(cuts, cut)
		start = cut
	}
	return cuts
}

// pick chooses the end of the part that begins at start.
func (s *Splitter) pick(start, n int, tiers []int, measure func(at int) (int, int)) int {
	fits := func(at int, strictRest bool) bool {
		part, rest := measure(at)
		if part > s.cfg.MaxTokens || part < s.cfg.MinTokens {
			return false
		}
		if strictRest && rest > 0 && rest < s.cfg.MinTokens {
			return false
		}
		return true
	}

	for _, strict := range []bool{true, false} {
		for tier := 0; tier <= 2; tier++ {
			best := -1
			for at := start + 1; at <= n; at++ {
				if tiers[at] > tier {
					continue
				}
				if fits(at, strict) {
					best = at
				}
			}
			if best > 0 {
				return best
			}
		}
	}

	// Nothing reaches the minimum: take the farthest boundary that fits.
	best := start
	for at := start + 1; at <= n; at++ {
		if part, _ := measure(at); part <= s.cfg.MaxTokens {
			best = at
		}
	}
	if best == start && start < n {
		best = start + 1
	}
	return best
}

// breakTiers rates every boundary position 0..len(blocks): 0 after a scene
// break, 1 in the middle of a blank run, 2 anywhere else.
func breakTiers(blocks []model.Block) []int {
	tiers := make([]int, len(blocks)+1)
	for i := range tiers {
		tiers[i] = 2
	}
	for i, b := range blocks {
		if _, ok := b.(model.SceneBreak); ok {
			tiers[i+1] = 0
		}
	}
	for i := 0; i < len(blocks); {
		if _, ok := blocks[i].(model.Blank); !ok {
			i++
			continue
		}
		j := i
		for j < len(blocks) {
			if _, ok := blocks[j].(model.Blank); !ok {
				break
			}
			j++
		}
		if j-i >= minBlankRun {
			mid := i + (j-i)/2
			tiers[mid] = min(tiers[mid], 1)
		}
		i = j
	}
	return tiers
}

func illustrations(blocks []model.Block) []string {
	var out []string
	seen := make(map[string]bool)
	for _, b := range blocks {
		if ill, ok := b.(model.Illustration); ok && !seen[ill.Filename] {
			seen[ill.Filename] = true
			out = append(out, ill.Filename)
		}
	}
	return out
}

// breakParagraphs replaces every paragraph estimated above limit with
// several paragraphs cut at sentence ends, or at character boundaries for
// a single overlong sentence.
func (s *Splitter) breakParagraphs(blocks []model.Block, limit int) []model.Block {
	out := make([]model.Block, 0, len(blocks))
	for _, b := range blocks {
		p, ok := b.(model.Paragraph)
		if !ok || s.est.Text(p.Text) <= limit {
			out = append(out, b)
			continue
		}
		for _, piece := range s.pack(sentences(p.Text), limit) {
			out = append(out, model.Paragraph{Text: piece})
		}
	}
	return out
}

// pack joins consecutive sentences while they fit under limit.
func (s *Splitter) pack(sents []string, limit int) []string {
	var out []string
	var cur strings.Builder
	for _, sent := range sents {
		if s.est.Text(sent) > limit {
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
			out = append(out, s.chop(sent, limit)...)
			continue
		}
		if cur.Len() > 0 && s.est.Text(cur.String()+sent) > limit {
			out = append(out, cur.String())
			cur.Reset()
		}
		cur.WriteString(sent)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// chop cuts text into pieces under limit without breaking a ruby marker
// or an escape.
func (s *Splitter) chop(text string, limit int) []string {
	var out []string
	depth := 0
	start := 0
	escaped := false
	for i, r := range text {
		switch {
		case escaped:
			escaped = false
			continue
		case r == '\\':
			escaped = true
			continue
		case r == '{':
			depth++
		case r == '}' && depth > 0:
			depth--
		}
		if depth > 0 {
			continue
		}
		end := i + utf8.RuneLen(r)
		if s.est.Text(text[start:end]) >= limit {
			out = append(out, text[start:end])
			start = end
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

// sentences cuts text after sentence-ending punctuation, keeping closing
// brackets with their sentence.
func sentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isSentenceEnd(runes[i]) {
			continue
		}
		j := i + 1
		for j < len(runes) && (isSentenceEnd(runes[j]) || isCloser(runes[j])) {
			j++
		}
		if j < len(runes) && runes[i] == '.' && runes[j] != ' ' {
			continue
		}
		out = append(out, string(runes[start:j]))
		start = j
		i = j - 1
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '。', '！', '？', '!', '?', '.', '…':
		return true
	}
	return false
}

func isCloser(r rune) bool {
	switch r {
	case '」', '』', '）', ')', '"', '”', '’':
		return true
	}
	return false
}
