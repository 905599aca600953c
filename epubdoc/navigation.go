package epubdoc

import (
	"bytes"
	"encoding/xml"
	"path"
	"strings"

	"golang.org/x/net/html"

	"github.com/tsawler/epubkit/model"
)

// ncxDocument represents an EPUB 2 NCX navigation document.
type ncxDocument struct {
	XMLName xml.Name  `xml:"ncx"`
	Title   string    `xml:"docTitle>text"`
	NavMap  ncxNavMap `xml:"navMap"`
}

type ncxNavMap struct {
	NavPoints []ncxNavPoint `xml:"navPoint"`
}

type ncxNavPoint struct {
	ID        string        `xml:"id,attr"`
	PlayOrder string        `xml:"playOrder,attr"`
	Label     string        `xml:"navLabel>text"`
	Content   ncxContent    `xml:"content"`
	Children  []ncxNavPoint `xml:"navPoint"`
}

type ncxContent struct {
	Src string `xml:"src,attr"`
}

// parseNavigation parses the table of contents from the EPUB 3 nav document
// or, failing that, the EPUB 2 NCX. It returns nil when neither exists or
// neither yields entries.
func (r *Reader) parseNavigation() []model.NavEntry {
	if navItem, ok := r.findNavDocument(); ok {
		content, err := r.ReadFile(navItem.Path)
		if err == nil {
			entries, err := parseNavXHTML(content, path.Dir(navItem.Path))
			if err == nil && len(entries) > 0 {
				r.navSource = navItem.Path
				return entries
			}
			r.log.Debug("nav document unusable", "path", navItem.Path, "error", err)
		} else {
			r.warnings.Add(model.KindChapterFileMissing, navItem.Path, "navigation document listed in manifest is missing")
		}
	}

	if ncxItem, ok := r.findNCX(); ok {
		content, err := r.ReadFile(ncxItem.Path)
		if err == nil {
			entries, err := parseNCX(content, path.Dir(ncxItem.Path))
			if err == nil && len(entries) > 0 {
				r.navSource = ncxItem.Path
				return entries
			}
			r.log.Debug("ncx unusable", "path", ncxItem.Path, "error", err)
		}
	}

	return nil
}

// findNavDocument finds the EPUB 3 nav document in the manifest.
func (r *Reader) findNavDocument() (ManifestItem, bool) {
	for _, id := range r.pkg.ManifestOrder {
		item := r.pkg.Manifest[id]
		if item.HasProperty("nav") {
			return item, true
		}
	}
	return ManifestItem{}, false
}

// findNCX finds the NCX document, preferring the one the spine names.
func (r *Reader) findNCX() (ManifestItem, bool) {
	if r.pkg.SpineTOC != "" {
		if item, ok := r.pkg.Manifest[r.pkg.SpineTOC]; ok {
			return item, true
		}
	}
	for _, id := range r.pkg.ManifestOrder {
		item := r.pkg.Manifest[id]
		if item.MediaType == "application/x-dtbncx+xml" {
			return item, true
		}
	}
	return ManifestItem{}, false
}

// parseNavXHTML parses an EPUB 3 nav document (XHTML with nav element).
// Hrefs are resolved against navDir.
func parseNavXHTML(content []byte, navDir string) ([]model.NavEntry, error) {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	// Find the <nav> element with epub:type="toc"
	var findNav func(*html.Node) *html.Node
	findNav = func(n *html.Node) *html.Node {
		if n.Type == html.ElementNode && n.Data == "nav" {
			for _, attr := range n.Attr {
				if (attr.Key == "epub:type" || attr.Key == "type") && strings.Contains(attr.Val, "toc") {
					return n
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if found := findNav(c); found != nil {
				return found
			}
		}
		return nil
	}

	nav := findNav(doc)
	if nav == nil {
		return nil, ErrMissingContent
	}

	var findOL func(*html.Node) *html.Node
	findOL = func(n *html.Node) *html.Node {
		if n.Type == html.ElementNode && n.Data == "ol" {
			return n
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if found := findOL(c); found != nil {
				return found
			}
		}
		return nil
	}

	ol := findOL(nav)
	if ol == nil {
		return nil, nil
	}
	return parseOLEntries(ol, navDir, 1), nil
}

// parseOLEntries parses TOC entries from an <ol> element.
func parseOLEntries(ol *html.Node, navDir string, level int) []model.NavEntry {
	var entries []model.NavEntry

	for c := ol.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "li" {
			entry := parseLIEntry(c, navDir, level)
			if entry.Label != "" || entry.Href != "" || len(entry.Children) > 0 {
				entries = append(entries, entry)
			}
		}
	}

	return entries
}

// parseLIEntry parses a single TOC entry from an <li> element.
func parseLIEntry(li *html.Node, navDir string, level int) model.NavEntry {
	entry := model.NavEntry{Level: level}

	for c := li.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.Data {
		case "a":
			entry.Label = extractText(c)
			for _, attr := range c.Attr {
				if attr.Key == "href" {
					entry.Href, entry.Fragment = resolveNavHref(navDir, attr.Val)
				}
			}
		case "span":
			if entry.Label == "" {
				entry.Label = extractText(c)
			}
		case "ol":
			entry.Children = parseOLEntries(c, navDir, level+1)
		}
	}

	return entry
}

// parseNCX parses an EPUB 2 NCX document.
func parseNCX(content []byte, ncxDir string) ([]model.NavEntry, error) {
	var ncx ncxDocument
	if err := xml.Unmarshal(content, &ncx); err != nil {
		return nil, err
	}
	return convertNCXNavPoints(ncx.NavMap.NavPoints, ncxDir, 1), nil
}

// convertNCXNavPoints converts NCX navPoints to navigation entries.
func convertNCXNavPoints(points []ncxNavPoint, ncxDir string, level int) []model.NavEntry {
	entries := make([]model.NavEntry, 0, len(points))

	for _, p := range points {
		href, frag := resolveNavHref(ncxDir, p.Content.Src)
		entries = append(entries, model.NavEntry{
			Label:    collapseSpace(p.Label),
			Href:     href,
			Fragment: frag,
			Level:    level,
			Children: convertNCXNavPoints(p.Children, ncxDir, level+1),
		})
	}

	return entries
}

// resolveNavHref splits off the fragment and resolves the document part of a
// navigation href to an archive path.
func resolveNavHref(navDir, href string) (string, string) {
	href = strings.TrimSpace(href)
	var frag string
	if i := strings.IndexByte(href, '#'); i >= 0 {
		href, frag = href[:i], href[i+1:]
	}
	if href == "" {
		return "", frag
	}
	if navDir == "." {
		navDir = ""
	}
	return resolveHref(navDir, href), frag
}

// extractText extracts all text content from an HTML node.
func extractText(n *html.Node) string {
	var text strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			text.WriteString(n.Data)
			return
		}
		// Ruby readings are not part of a label.
		if n.Type == html.ElementNode && (n.Data == "rt" || n.Data == "rp") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return collapseSpace(text.String())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
