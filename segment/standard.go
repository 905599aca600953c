package segment

import (
	"context"
	"strings"

	"github.com/tsawler/epubkit/markup"
	"github.com/tsawler/epubkit/model"
)

// builder accumulates one chapter.
type builder struct {
	ch           model.Chapter
	titlePending bool // the next text page may repeat the title
	skipped      bool // the chapter's opening file is missing
}

func (s *segmenter) standard(ctx context.Context, nav []model.NavEntry) (*Result, error) {
	res := &Result{Mode: ModeStandard}

	targets := make(map[string]model.NavEntry)
	for _, e := range nav {
		if e.Href == "" {
			continue
		}
		if _, dup := targets[e.Href]; dup {
			s.log.Debug("navigation entry shares a page with an earlier entry", "label", e.Label, "href", e.Href)
			continue
		}
		targets[e.Href] = e
	}

	first := -1
	for i, p := range s.pages {
		if e, ok := targets[p.item.Href]; ok && p.item.Linear && classifyLabel(e.Label) == MatterNone {
			first = i
			break
		}
	}
	if first < 0 {
		return res, nil
	}
	hook := s.openingHook(first)

	var cur *builder
	flush := func() {
		if cur != nil && !cur.skipped {
			res.Chapters = append(res.Chapters, cur.ch)
		}
		cur = nil
	}

	for i, p := range s.pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !p.item.Linear {
			res.Matter = append(res.Matter, s.matter(p, s.pageMatter(p)))
			continue
		}
		if p.failed {
			// The pages that follow a missing chapter file belong to the
			// skipped chapter, not to the one before it.
			if e, ok := targets[p.item.Href]; ok && classifyLabel(e.Label) == MatterNone {
				flush()
				cur = &builder{ch: model.Chapter{Title: strings.TrimSpace(e.Label)}, skipped: true}
				s.log.Warn("chapter file missing; chapter skipped", "title", cur.ch.Title, "href", p.item.Href)
			}
			continue
		}

		if e, ok := targets[p.item.Href]; ok {
			if kind := classifyLabel(e.Label); kind != MatterNone {
				flush()
				res.Matter = append(res.Matter, s.matter(p, kind))
				continue
			}
			flush()
			level := e.Level
			if level < 1 {
				level = 1
			}
			cur = &builder{
				ch:           model.Chapter{Title: strings.TrimSpace(e.Label), Level: level},
				titlePending: true,
			}
			s.addPage(cur, p)
			continue
		}

		if hook[i] {
			if cur == nil {
				cur = &builder{ch: model.Chapter{Level: 1, IsFrontMatter: true}, titlePending: true}
			}
			s.addPage(cur, p)
			if cur.ch.Title == "" {
				cur.ch.Title = s.cfg.HookTitle
			}
			continue
		}

		if cur == nil {
			res.Matter = append(res.Matter, s.matter(p, s.pageMatter(p)))
			continue
		}

		if p.hasText() {
			if k := classifyPage(p.stats, s.cfg.TOCLinkDensity); k == MatterColophon || k == MatterTOC {
				flush()
				res.Matter = append(res.Matter, s.matter(p, k))
				continue
			}
		}
		if cur.skipped {
			s.log.Debug("page of skipped chapter dropped", "href", p.item.Href, "chapter", cur.ch.Title)
			continue
		}
		s.addPage(cur, p)
	}
	flush()
	return res, nil
}

// addPage appends a page to a chapter. Image pages contribute
// Illustration blocks only. The first text page of a chapter loses its
// title heading, or a leading paragraph repeating the title.
func (s *segmenter) addPage(b *builder, p *page) {
	b.ch.SourceFiles = append(b.ch.SourceFiles, p.item.Href)

	if p.item.IsIllustrationOnly {
		appendImages(&b.ch, p.item.Images)
		return
	}
	if !p.hasText() {
		if p.stats != nil {
			appendImages(&b.ch, p.stats.Images)
		}
		return
	}

	doc := s.extract(p, b.titlePending)
	if doc == nil {
		return
	}
	blocks := doc.Blocks
	if b.titlePending {
		b.titlePending = false
		if doc.Title != "" {
			if b.ch.Title == "" {
				b.ch.Title = markup.Plain(doc.Title)
			}
		} else {
			blocks = dropTitleLines(blocks, b.ch.Title)
		}
	}
	appendBlocks(&b.ch, blocks)
}

// dropTitleLines removes leading paragraphs that spell out the title, on
// one line or split over two.
func dropTitleLines(blocks []model.Block, title string) []model.Block {
	if title == "" {
		return blocks
	}
	var idx []int
	var joined strings.Builder
	for i, b := range blocks {
		if _, ok := b.(model.Blank); ok {
			continue
		}
		para, ok := b.(model.Paragraph)
		if !ok {
			break
		}
		joined.WriteString(markup.Plain(para.Text))
		idx = append(idx, i)
		if sameTitle(joined.String(), title) {
			return blocks[idx[len(idx)-1]+1:]
		}
		if len(idx) == 2 {
			break
		}
	}
	return blocks
}

// hookMinTextRunes is the shortest page that can read as narrative.
const hookMinTextRunes = 50

// openingHook marks the narrative pages directly preceding the first
// chapter page. Every text page of the run must read as narrative and none
// may be recognizable front matter; otherwise no hook is reported.
func (s *segmenter) openingHook(first int) map[int]bool {
	var run []int
	for i := first - 1; i >= 0; i-- {
		p := s.pages[i]
		if !p.item.Linear {
			continue
		}
		if p.failed {
			break
		}
		if p.item.IsIllustrationOnly || (!p.hasText() && p.stats != nil && len(p.stats.Images) > 0) {
			run = append(run, i)
			continue
		}
		if s.pageMatter(p) != MatterText || p.stats.TextRunes < hookMinTextRunes {
			break
		}
		signals := narrativeSignals(p.stats.Text, s.cfg.HookMinRunes)
		if len(signals) == 0 {
			break
		}
		s.log.Debug("opening hook candidate", "href", p.item.Href, "signals", signals)
		run = append(run, i)
	}

	// Image pages at the start of the run belong to the front matter.
	for len(run) > 0 {
		p := s.pages[run[len(run)-1]]
		if p.hasText() {
			break
		}
		run = run[:len(run)-1]
	}

	hook := make(map[int]bool, len(run))
	for _, i := range run {
		hook[i] = true
	}
	return hook
}
