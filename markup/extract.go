package markup

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/tsawler/epubkit/model"
)

// ExtractOptions controls container-to-block conversion.
type ExtractOptions struct {
	// DocPath is the archive path of the document; image references are
	// resolved against it.
	DocPath string

	// DropTitle removes the first heading and reports it as the title.
	DropTitle bool

	// SmallImageMaxPx is the largest width and height at which an image is
	// taken as a typographic divider. Zero disables the check.
	SmallImageMaxPx int

	// ImageSize probes the pixel size of an archive image. Declared
	// width/height attributes are used when it is nil or fails.
	ImageSize func(archivePath string) (width, height int, ok bool)

	// ImageName maps a resolved archive path to the filename stored in the
	// Illustration block. Defaults to the archive path.
	ImageName func(archivePath string) string
}

// Document is the result of converting one content document.
type Document struct {
	Title  string // dropped title heading, with inline markers
	Blocks []model.Block
}

// Extract converts a content document into an ordered block sequence.
func Extract(data []byte, opts ExtractOptions) (*Document, error) {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing content document: %w", err)
	}

	body := findElement(root, "body")
	if body == nil {
		body = root
	}

	ex := &extractor{opts: opts, titleLevel: 0}
	if opts.DropTitle {
		ex.titleLevel = topHeadingLevel(body)
	}
	ex.block(body)

	return &Document{Title: ex.title, Blocks: ex.blocks}, nil
}

type extractor struct {
	opts       ExtractOptions
	blocks     []model.Block
	title      string
	titleLevel int // 0 when no title is being dropped
	titleDone  bool
}

func (ex *extractor) emit(b model.Block) {
	ex.blocks = append(ex.blocks, b)
}

// block walks block-level structure, emitting one block per leaf. Loose
// text and inline elements between blocks are gathered into one paragraph.
func (ex *extractor) block(n *html.Node) {
	var run []*html.Node
	flush := func() {
		if len(run) > 0 {
			ex.run(run)
			run = nil
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			run = append(run, c)
			continue
		case html.ElementNode:
		default:
			continue
		}

		if shouldSkipElement(c.Data) {
			continue
		}
		if isInlineElement(c.Data) || (c.Data == "br" && len(run) > 0) {
			run = append(run, c)
			continue
		}
		flush()

		switch c.Data {
		case "h1", "h2", "h3", "h4", "h5", "h6":
			ex.heading(c)
		case "hr":
			ex.emit(model.SceneBreak{})
		case "img", "svg", "image":
			ex.image(c)
		case "br":
			// A bare <br> between blocks spaces paragraphs apart.
			ex.emit(model.Blank{})
		case "p", "li", "dt", "dd", "blockquote", "figcaption", "pre", "td", "th":
			if hasBlockChildren(c) {
				ex.block(c)
			} else {
				ex.leaf(c)
			}
		default:
			if hasBlockChildren(c) || !hasInlineContent(c) {
				ex.block(c)
			} else {
				ex.leaf(c)
			}
		}
	}
	flush()
}

// run converts a sequence of sibling inline nodes into a paragraph.
func (ex *extractor) run(nodes []*html.Node) {
	var sb strings.Builder
	var images []*html.Node
	for _, c := range nodes {
		ex.inlineNode(&sb, c, &images)
	}
	text := strings.TrimSpace(collapse(sb.String()))
	if strings.TrimSpace(strings.ReplaceAll(text, lineBreak, "")) != "" {
		ex.paragraph(text, false)
	}
	for _, img := range images {
		ex.image(img)
	}
}

// leaf converts an element holding inline content into a paragraph, blank,
// scene break or illustration.
func (ex *extractor) leaf(n *html.Node) {
	if hasClass(n, "scene-break") || hasClass(n, "scenebreak") {
		marker, _ := SceneBreakMarker(textContent(n))
		ex.emit(model.SceneBreak{Marker: marker})
		return
	}

	var images []*html.Node
	text := ex.inline(n, &images)
	if text != "" || len(images) == 0 {
		ex.paragraph(text, n.Data == "p")
	}

	for _, img := range images {
		ex.image(img)
	}
}

// paragraph emits text as a paragraph, a blank or a scene break. Only
// empty <p> elements or explicit line breaks count as intentional blanks.
func (ex *extractor) paragraph(text string, isP bool) {
	visible := strings.TrimSpace(strings.ReplaceAll(text, lineBreak, ""))
	if strings.Trim(visible, "　") == "" {
		if isP || strings.Contains(text, lineBreak) {
			ex.emit(model.Blank{})
		}
		return
	}

	if marker, ok := SceneBreakMarker(Plain(text)); ok && !strings.Contains(text, string(rubyOpen)) {
		ex.emit(model.SceneBreak{Marker: marker})
		return
	}

	ex.emit(model.Paragraph{Text: escapeLineStart(trimBreaks(text))})
}

func trimBreaks(s string) string {
	for {
		t := strings.TrimSpace(s)
		t = strings.TrimSuffix(t, lineBreak)
		t = strings.TrimPrefix(t, lineBreak)
		if t == s {
			return t
		}
		s = t
	}
}

func (ex *extractor) heading(n *html.Node) {
	level := int(n.Data[1] - '0')
	text := strings.TrimSpace(ex.inline(n, nil))
	if text == "" {
		return
	}

	if ex.titleLevel > 0 && !ex.titleDone && level == ex.titleLevel {
		ex.titleDone = true
		ex.title = text
		return
	}

	if ex.titleLevel > 0 && level <= ex.titleLevel {
		level = ex.titleLevel + 1
	}
	if level > 6 {
		level = 6
	}
	ex.emit(model.Heading{Level: level, Text: text})
}

// image emits an Illustration for genuine art and a SceneBreak for a tiny
// decorative image.
func (ex *extractor) image(n *html.Node) {
	var nodes []*html.Node
	if n.Data == "svg" {
		var find func(*html.Node)
		find = func(m *html.Node) {
			if m.Type == html.ElementNode && (m.Data == "image" || m.Data == "img") {
				nodes = append(nodes, m)
			}
			for c := m.FirstChild; c != nil; c = c.NextSibling {
				find(c)
			}
		}
		find(n)
	} else {
		nodes = []*html.Node{n}
	}

	for _, img := range nodes {
		ref := imageRef(img)
		p := ResolveRef(ex.opts.DocPath, ref)
		if p == "" {
			continue
		}
		if ex.isSmall(img, p) {
			ex.emit(model.SceneBreak{})
			continue
		}
		name := p
		if ex.opts.ImageName != nil {
			name = ex.opts.ImageName(p)
		}
		ex.emit(model.Illustration{Filename: name, Alt: strings.TrimSpace(getAttr(img, "alt"))})
	}
}

func (ex *extractor) isSmall(img *html.Node, archivePath string) bool {
	max := ex.opts.SmallImageMaxPx
	if max <= 0 {
		return false
	}
	if ex.opts.ImageSize != nil {
		if w, h, ok := ex.opts.ImageSize(archivePath); ok {
			return w <= max && h <= max
		}
	}
	w, werr := strconv.Atoi(strings.TrimSuffix(getAttr(img, "width"), "px"))
	h, herr := strconv.Atoi(strings.TrimSuffix(getAttr(img, "height"), "px"))
	return werr == nil && herr == nil && w > 0 && h > 0 && w <= max && h <= max
}

// inline renders inline content with markers. Images that are not inline
// glyphs are collected into images for the caller to place after the text.
func (ex *extractor) inline(n *html.Node, images *[]*html.Node) string {
	var sb strings.Builder
	ex.inlineInto(&sb, n, images)
	return strings.TrimSpace(collapse(sb.String()))
}

func (ex *extractor) inlineInto(sb *strings.Builder, n *html.Node, images *[]*html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		ex.inlineNode(sb, c, images)
	}
}

func (ex *extractor) inlineNode(sb *strings.Builder, c *html.Node, images *[]*html.Node) {
	switch c.Type {
	case html.TextNode:
		sb.WriteString(escapeText(c.Data))
		return
	case html.ElementNode:
	default:
		return
	}

	if shouldSkipElement(c.Data) {
		return
	}

	switch c.Data {
	case "ruby":
		ex.ruby(sb, c)
	case "rt", "rp":
	case "br":
		sb.WriteString(lineBreak)
	case "em", "i", "cite":
		ex.wrap(sb, c, "*", images)
	case "strong", "b":
		ex.wrap(sb, c, "**", images)
	case "span":
		switch {
		case hasClassPrefix(c, "em-") || hasClass(c, "sesame") || hasClass(c, "italic"):
			ex.wrap(sb, c, "*", images)
		case hasClass(c, "bold") || hasClass(c, "gfont"):
			ex.wrap(sb, c, "**", images)
		default:
			ex.inlineInto(sb, c, images)
		}
	case "img", "svg", "image":
		if hasClass(c, "gaiji") || hasClass(c, "gaiji-line") || hasClass(c, "gaiji-wide") {
			sb.WriteString(escapeText(getAttr(c, "alt")))
		} else if images != nil {
			*images = append(*images, c)
		}
	default:
		ex.inlineInto(sb, c, images)
	}
}

func (ex *extractor) wrap(sb *strings.Builder, n *html.Node, marker string, images *[]*html.Node) {
	var inner strings.Builder
	ex.inlineInto(&inner, n, images)
	s := inner.String()
	if strings.TrimSpace(s) == "" {
		sb.WriteString(s)
		return
	}
	sb.WriteString(marker)
	sb.WriteString(s)
	sb.WriteString(marker)
}

// ruby concatenates every base fragment and every reading fragment of one
// annotation group before combining them, so readings split across several
// <rt> or <rb> elements stay attached to the whole base.
func (ex *extractor) ruby(sb *strings.Builder, n *html.Node) {
	var base, reading strings.Builder
	var walk func(*html.Node, bool)
	walk = func(m *html.Node, inRT bool) {
		for c := m.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.TextNode:
				if inRT {
					reading.WriteString(c.Data)
				} else {
					base.WriteString(c.Data)
				}
			case html.ElementNode:
				switch c.Data {
				case "rp":
				case "rt":
					walk(c, true)
				case "img":
					if !inRT {
						base.WriteString(getAttr(c, "alt"))
					}
				default:
					walk(c, inRT)
				}
			}
		}
	}
	walk(n, false)

	b := strings.TrimSpace(collapse(base.String()))
	r := strings.TrimSpace(collapse(reading.String()))
	if b == "" {
		return
	}
	sb.WriteString(RubyMarker(lastRunes(sb.String()), b, r))
}

func lastRunes(s string) string {
	if s == "" {
		return ""
	}
	_, size := utf8.DecodeLastRuneInString(s)
	return s[len(s)-size:]
}

// topHeadingLevel returns the level of the first heading in document order.
func topHeadingLevel(n *html.Node) int {
	if n.Type == html.ElementNode && len(n.Data) == 2 && n.Data[0] == 'h' && n.Data[1] >= '1' && n.Data[1] <= '6' {
		if strings.TrimSpace(textContent(n)) != "" {
			return int(n.Data[1] - '0')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if l := topHeadingLevel(c); l > 0 {
			return l
		}
	}
	return 0
}

// hasBlockChildren reports whether n contains block-level elements.
func hasBlockChildren(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			if isBlockElement(c.Data) && c.Data != "body" {
				return true
			}
			// An image wrapped in a bare container is a block of its own.
			if c.Data == "svg" {
				return true
			}
		}
	}
	return false
}

func isInlineElement(tag string) bool {
	switch tag {
	case "ruby", "span", "a", "em", "strong", "b", "i", "u", "s", "cite", "small",
		"sup", "sub", "rb", "font", "code", "q", "abbr", "time", "mark", "tcy":
		return true
	}
	return false
}

// hasInlineContent reports whether n directly holds text or inline elements.
func hasInlineContent(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			if strings.TrimSpace(c.Data) != "" {
				return true
			}
		case html.ElementNode:
			switch c.Data {
			case "img", "svg", "image":
			default:
				if !isBlockElement(c.Data) {
					return true
				}
			}
		}
	}
	return false
}

func classes(n *html.Node) []string {
	return strings.Fields(getAttr(n, "class"))
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range classes(n) {
		if c == class {
			return true
		}
	}
	return false
}

func hasClassPrefix(n *html.Node, prefix string) bool {
	for _, c := range classes(n) {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}
