// Package epubtest builds small in-memory containers for tests.
package epubtest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"
)

type item struct {
	id, href, mediaType, props string
	data                       []byte
	spine                      bool
	linear                     bool
}

type navPoint struct {
	label, href string
}

// Builder assembles a container. The zero value is not usable; call New.
type Builder struct {
	Title     string
	Creator   string
	Language  string
	Publisher string
	Root      string // content root directory, "" for the archive root

	// NavFormat is "nav" (EPUB 3 navigation document), "ncx" or "" for none.
	NavFormat string

	// OmitContainer drops META-INF/container.xml.
	OmitContainer bool
	// OmitMimetype drops the mimetype member.
	OmitMimetype bool

	CoverMetaID string

	items []item
	nav   []navPoint
	extra []item
}

// New returns a builder for an EPUB 3 container rooted at OEBPS.
func New() *Builder {
	return &Builder{
		Title:     "Test Book",
		Creator:   "Test Author",
		Language:  "ja",
		Publisher: "Test Publisher",
		Root:      "OEBPS",
		NavFormat: "nav",
	}
}

// Page wraps body markup in a minimal XHTML document.
func Page(title, body string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head><title>%s</title></head>
<body>
%s
</body>
</html>`, title, body)
}

// XHTML adds a linear content document to manifest and spine. href is
// relative to the content root.
func (b *Builder) XHTML(id, href, body string) *Builder {
	b.items = append(b.items, item{
		id: id, href: href, mediaType: "application/xhtml+xml",
		data: []byte(Page(id, body)), spine: true, linear: true,
	})
	return b
}

// NonLinear adds a content document marked linear="no".
func (b *Builder) NonLinear(id, href, body string) *Builder {
	b.items = append(b.items, item{
		id: id, href: href, mediaType: "application/xhtml+xml",
		data: []byte(Page(id, body)), spine: true,
	})
	return b
}

// Image adds a PNG of the given size to the manifest only.
func (b *Builder) Image(id, href string, w, h int) *Builder {
	return b.ImageProps(id, href, w, h, "")
}

// ImageProps adds a PNG with manifest properties.
func (b *Builder) ImageProps(id, href string, w, h int, props string) *Builder {
	b.items = append(b.items, item{
		id: id, href: href, mediaType: "image/png", props: props,
		data: PNG(w, h),
	})
	return b
}

// Resource adds an arbitrary manifest item that is not in the spine.
func (b *Builder) Resource(id, href, mediaType string, data []byte) *Builder {
	b.items = append(b.items, item{id: id, href: href, mediaType: mediaType, data: data})
	return b
}

// Missing adds a spine item whose file is absent from the archive.
func (b *Builder) Missing(id, href string) *Builder {
	b.items = append(b.items, item{id: id, href: href, mediaType: "application/xhtml+xml", spine: true, linear: true})
	return b
}

// File adds an archive member outside the manifest. name is a full
// archive path.
func (b *Builder) File(name string, data []byte) *Builder {
	b.extra = append(b.extra, item{href: name, data: data})
	return b
}

// Nav adds a top-level table of contents entry. href is relative to the
// content root.
func (b *Builder) Nav(label, href string) *Builder {
	b.nav = append(b.nav, navPoint{label: label, href: href})
	return b
}

func (b *Builder) member(href string) string {
	if b.Root == "" {
		return href
	}
	return path.Join(b.Root, href)
}

// Bytes renders the container.
func (b *Builder) Bytes(t testing.TB) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	write := func(name string, data []byte, method uint16) {
		fw, err := w.CreateHeader(&zip.FileHeader{Name: name, Method: method})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatal(err)
		}
	}

	if !b.OmitMimetype {
		write("mimetype", []byte("application/epub+zip"), zip.Store)
	}
	opfName := b.member("content.opf")
	if !b.OmitContainer {
		write("META-INF/container.xml", []byte(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="%s" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`, opfName)), zip.Deflate)
	}

	write(opfName, b.opf(), zip.Deflate)

	switch b.NavFormat {
	case "nav":
		write(b.member("nav.xhtml"), b.navDoc(), zip.Deflate)
	case "ncx":
		write(b.member("toc.ncx"), b.ncxDoc(), zip.Deflate)
	}

	for _, it := range b.items {
		if it.data == nil {
			continue
		}
		write(b.member(it.href), it.data, zip.Deflate)
	}
	for _, it := range b.extra {
		write(it.href, it.data, zip.Deflate)
	}

	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// Write renders the container into dir and returns its path.
func (b *Builder) Write(t testing.TB, dir string) string {
	t.Helper()
	p := filepath.Join(dir, "book.epub")
	if err := os.WriteFile(p, b.Bytes(t), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func (b *Builder) opf() []byte {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="bookid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
`)
	fmt.Fprintf(&sb, "    <dc:title>%s</dc:title>\n", b.Title)
	fmt.Fprintf(&sb, "    <dc:creator>%s</dc:creator>\n", b.Creator)
	fmt.Fprintf(&sb, "    <dc:language>%s</dc:language>\n", b.Language)
	fmt.Fprintf(&sb, "    <dc:publisher>%s</dc:publisher>\n", b.Publisher)
	sb.WriteString("    <dc:identifier id=\"bookid\">urn:uuid:00000000-0000-0000-0000-000000000001</dc:identifier>\n")
	sb.WriteString("    <meta property=\"dcterms:modified\">2024-01-02T03:04:05Z</meta>\n")
	if b.CoverMetaID != "" {
		fmt.Fprintf(&sb, "    <meta name=\"cover\" content=\"%s\"/>\n", b.CoverMetaID)
	}
	sb.WriteString("  </metadata>\n  <manifest>\n")
	switch b.NavFormat {
	case "nav":
		sb.WriteString("    <item id=\"nav\" href=\"nav.xhtml\" media-type=\"application/xhtml+xml\" properties=\"nav\"/>\n")
	case "ncx":
		sb.WriteString("    <item id=\"ncx\" href=\"toc.ncx\" media-type=\"application/x-dtbncx+xml\"/>\n")
	}
	for _, it := range b.items {
		props := ""
		if it.props != "" {
			props = fmt.Sprintf(" properties=%q", it.props)
		}
		fmt.Fprintf(&sb, "    <item id=%q href=%q media-type=%q%s/>\n", it.id, it.href, it.mediaType, props)
	}
	sb.WriteString("  </manifest>\n")
	if b.NavFormat == "ncx" {
		sb.WriteString("  <spine toc=\"ncx\">\n")
	} else {
		sb.WriteString("  <spine>\n")
	}
	for _, it := range b.items {
		if !it.spine {
			continue
		}
		if it.linear {
			fmt.Fprintf(&sb, "    <itemref idref=%q/>\n", it.id)
		} else {
			fmt.Fprintf(&sb, "    <itemref idref=%q linear=\"no\"/>\n", it.id)
		}
	}
	sb.WriteString("  </spine>\n</package>\n")
	return []byte(sb.String())
}

func (b *Builder) navDoc() []byte {
	var sb strings.Builder
	sb.WriteString(`<nav epub:type="toc" id="toc"><h1>目次</h1><ol>`)
	for _, n := range b.nav {
		fmt.Fprintf(&sb, "<li><a href=%q>%s</a></li>", n.href, n.label)
	}
	sb.WriteString("</ol></nav>")
	return []byte(Page("Navigation", sb.String()))
}

func (b *Builder) ncxDoc() []byte {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <docTitle><text>` + b.Title + `</text></docTitle>
  <navMap>
`)
	for i, n := range b.nav {
		fmt.Fprintf(&sb, "    <navPoint id=\"np%d\" playOrder=\"%d\"><navLabel><text>%s</text></navLabel><content src=%q/></navPoint>\n",
			i+1, i+1, n.label, n.href)
	}
	sb.WriteString("  </navMap>\n</ncx>\n")
	return []byte(sb.String())
}

// PNG encodes a w x h opaque image.
func PNG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0x80, A: 0xff})
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}
