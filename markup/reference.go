package markup

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"golang.org/x/net/html"
)

// ReferenceConverter renders front-matter pages (credits, colophon, staff
// lists) as plain CommonMark for translator reference. These pages are
// not chapters and do not round-trip, so their tables and links are kept
// as markdown instead of intermediate blocks.
type ReferenceConverter struct {
	conv *converter.Converter
}

// NewReferenceConverter creates a converter with table support.
func NewReferenceConverter() *ReferenceConverter {
	return &ReferenceConverter{
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Convert renders the body of a content document. Ruby readings are
// written in parentheses after their base.
func (rc *ReferenceConverter) Convert(data []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parsing content document: %w", err)
	}

	body := findElement(doc, "body")
	if body == nil {
		body = doc
	}
	flattenRuby(body)

	var buf bytes.Buffer
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", fmt.Errorf("rendering body: %w", err)
		}
	}

	md, err := rc.conv.ConvertString(buf.String())
	if err != nil {
		return "", fmt.Errorf("converting to markdown: %w", err)
	}
	return strings.TrimSpace(md) + "\n", nil
}

// flattenRuby replaces every ruby element with "base(reading)" text.
func flattenRuby(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode && c.Data == "ruby" {
			var base, reading strings.Builder
			var walk func(*html.Node, bool)
			walk = func(m *html.Node, inRT bool) {
				for k := m.FirstChild; k != nil; k = k.NextSibling {
					switch {
					case k.Type == html.TextNode && inRT:
						reading.WriteString(k.Data)
					case k.Type == html.TextNode:
						base.WriteString(k.Data)
					case k.Type == html.ElementNode && k.Data == "rp":
					case k.Type == html.ElementNode && k.Data == "rt":
						walk(k, true)
					default:
						walk(k, inRT)
					}
				}
			}
			walk(c, false)
			text := strings.TrimSpace(base.String())
			if r := strings.TrimSpace(reading.String()); r != "" {
				text += "(" + r + ")"
			}
			n.InsertBefore(&html.Node{Type: html.TextNode, Data: text}, c)
			n.RemoveChild(c)
		} else {
			flattenRuby(c)
		}
		c = next
	}
}
