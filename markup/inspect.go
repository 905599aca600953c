package markup

import (
	"bytes"
	"fmt"
	"net/url"
	"path"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// PageStats summarizes a content document without converting it.
type PageStats struct {
	Title    string   // <title> text
	Text     string   // visible body text, ruby readings removed
	Lines    []string // non-empty block-level text lines in order
	Headings []string

	// TextRunes counts visible non-space characters in the body.
	TextRunes int
	// LinkRunes counts the visible characters inside anchors.
	LinkRunes     int
	Links         int
	InternalLinks int

	// Images lists referenced image paths resolved against the document
	// path, in document order without duplicates.
	Images []string
}

// LinkDensity returns the share of visible text that sits inside links.
func (s *PageStats) LinkDensity() float64 {
	if s.TextRunes == 0 {
		return 0
	}
	return float64(s.LinkRunes) / float64(s.TextRunes)
}

// Inspect parses a content document and gathers the statistics used for
// illustration-only and front-matter detection. docPath is the archive path
// of the document and anchors relative references.
func Inspect(data []byte, docPath string) (*PageStats, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing content document: %w", err)
	}

	stats := &PageStats{}
	if t := findElement(doc, "title"); t != nil {
		stats.Title = collapse(textContent(t))
	}

	body := findElement(doc, "body")
	if body == nil {
		body = doc
	}

	seen := make(map[string]bool)
	var line strings.Builder
	var text strings.Builder

	endLine := func() {
		if s := collapse(line.String()); s != "" {
			stats.Lines = append(stats.Lines, s)
			if text.Len() > 0 {
				text.WriteByte('\n')
			}
			text.WriteString(s)
		}
		line.Reset()
	}

	var walk func(n *html.Node, inLink bool)
	walk = func(n *html.Node, inLink bool) {
		switch n.Type {
		case html.TextNode:
			line.WriteString(n.Data)
			for _, r := range n.Data {
				if !unicode.IsSpace(r) {
					stats.TextRunes++
					if inLink {
						stats.LinkRunes++
					}
				}
			}
			return
		case html.ElementNode:
		default:
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c, inLink)
			}
			return
		}

		if shouldSkipElement(n.Data) {
			return
		}

		switch n.Data {
		case "rt", "rp":
			return
		case "img", "image":
			if ref := imageRef(n); ref != "" {
				if p := ResolveRef(docPath, ref); p != "" && !seen[p] {
					seen[p] = true
					stats.Images = append(stats.Images, p)
				}
			}
			return
		case "a":
			if href := getAttr(n, "href"); href != "" {
				stats.Links++
				if isInternalRef(href) {
					stats.InternalLinks++
				}
			}
			inLink = true
		case "br":
			endLine()
			return
		case "h1", "h2", "h3", "h4", "h5", "h6":
			if h := collapse(textContent(n)); h != "" {
				stats.Headings = append(stats.Headings, h)
			}
		}

		block := isBlockElement(n.Data)
		if block {
			endLine()
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inLink)
		}
		if block {
			endLine()
		}
	}
	walk(body, false)
	endLine()

	stats.Text = text.String()
	return stats, nil
}

// ResolveRef resolves a reference found in the document at docPath to an
// archive path. External and data references resolve to "".
func ResolveRef(docPath, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "data:") || strings.HasPrefix(ref, "#") {
		return ""
	}
	if i := strings.IndexAny(ref, "#?"); i >= 0 {
		ref = ref[:i]
	}
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" {
		return ""
	}
	if decoded, err := url.PathUnescape(ref); err == nil {
		ref = decoded
	}
	if strings.HasPrefix(ref, "/") {
		return strings.TrimPrefix(path.Clean(ref), "/")
	}
	dir := path.Dir(docPath)
	if dir == "." {
		return path.Clean(ref)
	}
	return path.Join(dir, ref)
}

func isInternalRef(href string) bool {
	if strings.HasPrefix(href, "#") {
		return true
	}
	u, err := url.Parse(href)
	return err == nil && u.Scheme == ""
}

// imageRef returns the source of an img element or an SVG image element.
func imageRef(n *html.Node) string {
	if n.Data == "img" {
		return getAttr(n, "src")
	}
	for _, attr := range n.Attr {
		if attr.Key == "href" || attr.Key == "xlink:href" {
			return attr.Val
		}
	}
	return ""
}

// shouldSkipElement returns true if the element never carries visible text.
func shouldSkipElement(tagName string) bool {
	switch tagName {
	case "head", "script", "style", "noscript", "template", "math", "iframe", "object", "embed":
		return true
	}
	return false
}

func isBlockElement(tag string) bool {
	switch tag {
	case "p", "div", "section", "article", "main", "header", "footer", "aside", "nav",
		"blockquote", "li", "ul", "ol", "dl", "dt", "dd", "table", "tr", "td", "th",
		"h1", "h2", "h3", "h4", "h5", "h6", "figure", "figcaption", "hr", "pre", "body":
		return true
	}
	return false
}

// findElement finds the first element with the given tag name.
func findElement(n *html.Node, tagName string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tagName {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if result := findElement(c, tagName); result != nil {
			return result
		}
	}
	return nil
}

// textContent returns the text of n without ruby readings.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			return
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "rt", "rp", "script", "style":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// getAttr returns the value of an attribute on a node, or empty string if not found.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// collapse folds runs of ASCII whitespace into one space and trims the
// result. Ideographic spaces are kept; they indent Japanese paragraphs.
func collapse(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	space := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f' {
			space = true
			continue
		}
		if space && sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		space = false
		sb.WriteRune(r)
	}
	return sb.String()
}

// RuneCount counts non-space runes.
func RuneCount(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
