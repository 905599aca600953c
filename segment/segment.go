// Package segment groups spine items into logical chapters.
//
// Two algorithms exist. Standard mode trusts the navigation document: every
// spine item that a navigation entry targets opens a chapter and following
// items join it. Fallback mode, used when navigation is absent or too
// sparse, scans each item's leading lines for a chapter-title pattern and
// opens a chapter on every match.
//
// In both modes illustration-only spine items never contribute prose; their
// images are placed as Illustration blocks at their position in the current
// chapter. Ordinals count the chapters produced, not source file numbers.
package segment

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"

	"github.com/tsawler/epubkit/markup"
	"github.com/tsawler/epubkit/model"
)

// Source is the parsed container. *epubdoc.Reader satisfies it.
type Source interface {
	Spine() []model.SpineItem
	FlatNavigation() []model.NavEntry
	ReadFile(name string) ([]byte, error)
}

// missingSource is implemented by sources that report spine entries
// dropped for a missing file.
type missingSource interface {
	MissingSpine() []model.MissingSpineItem
}

// Mode is the algorithm that produced a segmentation.
type Mode int

const (
	ModeStandard Mode = iota
	ModeFallback
)

func (m Mode) String() string {
	if m == ModeFallback {
		return "fallback"
	}
	return "standard"
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Config controls segmentation.
type Config struct {
	// NavFallbackThreshold is the navigation entry count below which
	// fallback mode is used. Default 3.
	NavFallbackThreshold int

	// TitlePatterns detect chapter titles in fallback mode.
	TitlePatterns []*regexp.Regexp

	// TitleScanLines is how many leading text lines of an item are scanned
	// for a title. Default 3.
	TitleScanLines int

	// HookMinRunes is the text length that alone marks a pre-navigation
	// page as narrative. Default 400.
	HookMinRunes int

	// HookTitle names an opening-hook chapter whose page has no heading.
	// Default "Prologue".
	HookTitle string

	// TOCLinkDensity is the share of linked text above which a page is a
	// table of contents. Default 0.6.
	TOCLinkDensity float64

	// SyntheticTitle formats the title of a chapter created without one.
	// Default "Chapter %d".
	SyntheticTitle string

	// Extract is passed to the markup converter for every content page.
	// DocPath and DropTitle are set per page.
	Extract markup.ExtractOptions

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.NavFallbackThreshold <= 0 {
		c.NavFallbackThreshold = 3
	}
	if c.TitleScanLines <= 0 {
		c.TitleScanLines = 3
	}
	if c.HookMinRunes <= 0 {
		c.HookMinRunes = 400
	}
	if c.HookTitle == "" {
		c.HookTitle = "Prologue"
	}
	if c.TOCLinkDensity <= 0 {
		c.TOCLinkDensity = 0.6
	}
	if c.SyntheticTitle == "" {
		c.SyntheticTitle = "Chapter %d"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Matter is a spine item that did not become chapter content.
type Matter struct {
	Href   string     `json:"href"`
	Kind   MatterKind `json:"kind"`
	Title  string     `json:"title,omitempty"`
	Linear bool       `json:"linear"`
	Images []string   `json:"images,omitempty"`
}

// Result is the outcome of segmentation.
type Result struct {
	Mode     Mode
	Chapters []model.Chapter
	Matter   []Matter
	Warnings []model.Warning
}

// page is one spine item with its parsed content. Pages are loaded once.
type page struct {
	item   model.SpineItem
	stats  *markup.PageStats
	data   []byte
	failed bool
}

func (p *page) hasText() bool {
	return p.stats != nil && p.stats.TextRunes > 0
}

type segmenter struct {
	src   Source
	cfg   Config
	log   *slog.Logger
	pages []*page
	warn  model.Warnings
}

// Segment groups the spine of src into chapters. It checks ctx between
// spine items.
func Segment(ctx context.Context, src Source, cfg Config) (*Result, error) {
	cfg.defaults()
	s := &segmenter{src: src, cfg: cfg, log: cfg.Logger}

	if err := s.load(ctx); err != nil {
		return nil, err
	}

	nav := src.FlatNavigation()
	var res *Result
	var err error
	if len(nav) >= cfg.NavFallbackThreshold {
		res, err = s.standard(ctx, nav)
		if err != nil {
			return nil, err
		}
		if len(res.Chapters) == 0 {
			s.warn.Add(model.KindNavigationAbsent, "", "navigation produced no chapters; scanning content for titles")
			res = nil
		}
	} else {
		s.warn.Add(model.KindNavigationAbsent, "", "%d navigation entries (threshold %d); scanning content for titles",
			len(nav), cfg.NavFallbackThreshold)
	}
	if res == nil {
		res, err = s.fallback(ctx)
		if err != nil {
			return nil, err
		}
	}

	for i := range res.Chapters {
		res.Chapters[i].ID = model.ChapterID(i + 1)
		res.Chapters[i].BaseID = res.Chapters[i].ID
	}
	model.Renumber(res.Chapters)
	res.Warnings = s.warn

	s.log.Info("segmentation complete",
		"mode", res.Mode.String(),
		"chapters", len(res.Chapters),
		"matter", len(res.Matter),
		"warnings", len(res.Warnings))
	return res, nil
}

// load reads and inspects every linear spine item. Linear entries whose
// file is missing keep their place as failed pages.
func (s *segmenter) load(ctx context.Context) error {
	var missing []model.MissingSpineItem
	if ms, ok := s.src.(missingSource); ok {
		missing = ms.MissingSpine()
	}
	placeholders := func(at int) {
		for len(missing) > 0 && missing[0].Index <= at {
			m := missing[0]
			missing = missing[1:]
			if m.Linear {
				s.pages = append(s.pages, &page{item: model.SpineItem{ID: m.ID, Href: m.Href, Linear: true}, failed: true})
			}
		}
	}

	for i, item := range s.src.Spine() {
		if err := ctx.Err(); err != nil {
			return err
		}
		placeholders(i)
		p := &page{item: item}
		s.pages = append(s.pages, p)
		if item.IsIllustrationOnly {
			continue
		}

		data, err := s.src.ReadFile(item.Href)
		if err != nil {
			s.warn.Add(model.KindChapterFileMissing, item.Href, "content file unreadable: %v", err)
			p.failed = true
			continue
		}
		stats, err := markup.Inspect(data, item.Href)
		if err != nil {
			s.warn.Add(model.KindConversion, item.Href, "inspecting page: %v", err)
			p.failed = true
			continue
		}
		p.data = data
		p.stats = stats
	}
	placeholders(math.MaxInt)
	return nil
}

// extract converts one page. A failure is recorded and yields nil.
func (s *segmenter) extract(p *page, dropTitle bool) *markup.Document {
	opts := s.cfg.Extract
	opts.DocPath = p.item.Href
	opts.DropTitle = dropTitle
	doc, err := markup.Extract(p.data, opts)
	if err != nil {
		s.warn.Add(model.KindConversion, p.item.Href, "converting page: %v", err)
		s.log.Warn("page conversion failed", "href", p.item.Href, "error", err)
		return nil
	}
	return doc
}

// appendBlocks adds converted blocks to a chapter and records its
// illustrations.
func appendBlocks(ch *model.Chapter, blocks []model.Block) {
	for _, b := range blocks {
		if ill, ok := b.(model.Illustration); ok {
			ch.Body = append(ch.Body, b)
			ch.Illustrations = appendUnique(ch.Illustrations, ill.Filename)
			continue
		}
		ch.Body = append(ch.Body, b)
	}
}

// appendImages places the images of an illustration page in a chapter.
func appendImages(ch *model.Chapter, images []string) {
	for _, img := range images {
		ch.Body = append(ch.Body, model.Illustration{Filename: img})
		ch.Illustrations = appendUnique(ch.Illustrations, img)
	}
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

func (s *segmenter) matter(p *page, kind MatterKind) Matter {
	m := Matter{Href: p.item.Href, Kind: kind, Linear: p.item.Linear, Images: p.item.Images}
	if p.stats != nil {
		m.Title = p.stats.Title
		if len(p.stats.Headings) > 0 {
			m.Title = p.stats.Headings[0]
		}
		if len(m.Images) == 0 {
			m.Images = p.stats.Images
		}
	}
	return m
}

// pageMatter classifies a page that is not chapter content.
func (s *segmenter) pageMatter(p *page) MatterKind {
	switch {
	case p.item.IsIllustrationOnly:
		return MatterImages
	case p.stats == nil:
		return MatterText
	case !p.hasText() && len(p.stats.Images) > 0:
		return MatterImages
	}
	if k := classifyPage(p.stats, s.cfg.TOCLinkDensity); k != MatterNone {
		return k
	}
	return MatterText
}

func (s *segmenter) syntheticTitle(n int) string {
	return fmt.Sprintf(s.cfg.SyntheticTitle, n)
}
