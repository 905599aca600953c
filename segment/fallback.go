package segment

import (
	"context"

	"github.com/tsawler/epubkit/markup"
	"github.com/tsawler/epubkit/model"
)

// fallback walks the spine directly and opens a chapter on every page
// whose leading lines carry a chapter title.
func (s *segmenter) fallback(ctx context.Context) (*Result, error) {
	res, err := s.scan(ctx, false)
	if err != nil {
		return nil, err
	}
	if len(res.Chapters) == 0 && s.hasLinearContent() {
		// Every page looked like front matter. A non-empty spine never
		// yields zero chapters, so take every linear page as content.
		s.log.Warn("no chapter content recognized; treating every page as content")
		return s.scan(ctx, true)
	}
	return res, nil
}

func (s *segmenter) hasLinearContent() bool {
	for _, p := range s.pages {
		if p.item.Linear && !p.failed {
			return true
		}
	}
	return false
}

func (s *segmenter) scan(ctx context.Context, force bool) (*Result, error) {
	res := &Result{Mode: ModeFallback}

	var cur *builder
	// closed is set once closing matter ends an open chapter. Untitled pages
	// after it are matter, not a new synthetic chapter.
	var closed bool
	flush := func() {
		if cur != nil {
			res.Chapters = append(res.Chapters, cur.ch)
			cur = nil
		}
	}
	open := func(title string) {
		flush()
		cur = &builder{ch: model.Chapter{Title: title, Level: 1}}
	}

	for _, p := range s.pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !p.item.Linear {
			res.Matter = append(res.Matter, s.matter(p, s.pageMatter(p)))
			continue
		}
		if p.failed {
			continue
		}

		if !p.hasText() {
			if cur == nil && !force {
				res.Matter = append(res.Matter, s.matter(p, MatterImages))
				continue
			}
			if cur == nil {
				open(s.syntheticTitle(len(res.Chapters) + 1))
			}
			s.addPage(cur, p)
			continue
		}

		if !force {
			kind := classifyPage(p.stats, s.cfg.TOCLinkDensity)
			if cur == nil && kind != MatterNone {
				res.Matter = append(res.Matter, s.matter(p, kind))
				continue
			}
			if cur != nil && (kind == MatterColophon || kind == MatterTOC) {
				flush()
				closed = true
				res.Matter = append(res.Matter, s.matter(p, kind))
				continue
			}
		}

		title, blocks, ok := s.detectTitle(p)
		switch {
		case ok:
			open(title)
			s.log.Debug("chapter title detected", "href", p.item.Href, "title", title)
		case cur == nil && closed:
			res.Matter = append(res.Matter, s.matter(p, MatterText))
			s.log.Debug("untitled page after closing matter", "href", p.item.Href)
			continue
		case cur == nil:
			open(s.syntheticTitle(len(res.Chapters) + 1))
			s.log.Debug("first content page has no title", "href", p.item.Href, "title", cur.ch.Title)
		}
		cur.ch.SourceFiles = append(cur.ch.SourceFiles, p.item.Href)
		appendBlocks(&cur.ch, blocks)
	}
	flush()
	return res, nil
}

// detectTitle converts a page and scans its leading text lines for a
// chapter title. On a match the title line is removed from the returned
// blocks.
func (s *segmenter) detectTitle(p *page) (string, []model.Block, bool) {
	doc := s.extract(p, false)
	if doc == nil {
		return "", nil, false
	}

	scanned := 0
	for i, b := range doc.Blocks {
		var text string
		heading := false
		switch v := b.(type) {
		case model.Paragraph:
			text = v.Text
		case model.Heading:
			text, heading = v.Text, true
		case model.Blank, model.SceneBreak, model.Illustration:
			continue
		}

		line := TitleLine{Text: markup.Plain(text), Heading: heading, FirstLine: scanned == 0}
		score := ScoreTitle(line, s.cfg.TitlePatterns)
		if score.IsTitle() {
			s.log.Debug("title scored", "href", p.item.Href, "line", line.Text, "points", score.Points, "signals", score.Signals)
			if heading && isFirstHeading(doc.Blocks, i) {
				if dropped := s.extract(p, true); dropped != nil && markup.Plain(dropped.Title) == line.Text {
					return line.Text, dropped.Blocks, true
				}
			}
			blocks := make([]model.Block, 0, len(doc.Blocks)-1)
			blocks = append(blocks, doc.Blocks[:i]...)
			blocks = append(blocks, doc.Blocks[i+1:]...)
			return line.Text, blocks, true
		}

		scanned++
		if scanned >= s.cfg.TitleScanLines {
			break
		}
	}
	return "", doc.Blocks, false
}

func isFirstHeading(blocks []model.Block, i int) bool {
	for _, b := range blocks[:i] {
		if _, ok := b.(model.Heading); ok {
			return false
		}
	}
	return true
}
