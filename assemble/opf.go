package assemble

import (
	"fmt"
	stdhtml "html"
	"strings"
	"time"

	"github.com/tsawler/epubkit/markup"
)

// packageDocument renders content.opf: metadata, manifest, spine, and for
// the legacy profile a guide.
func (a *assembler) packageDocument() []byte {
	legacy := a.opts.Profile == markup.Legacy
	esc := stdhtml.EscapeString
	text := func(s string) string { return markup.Escape(markup.Plain(s)) }

	var sb strings.Builder
	sb.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	fmt.Fprintf(&sb, "<package xmlns=\"http://www.idpf.org/2007/opf\" version=\"%s\" unique-identifier=\"bookid\" xml:lang=\"%s\">\n",
		a.opts.Profile.PackageVersion(), esc(a.meta.Language))

	if legacy {
		sb.WriteString("<metadata xmlns:dc=\"http://purl.org/dc/elements/1.1/\" xmlns:opf=\"http://www.idpf.org/2007/opf\">\n")
	} else {
		sb.WriteString("<metadata xmlns:dc=\"http://purl.org/dc/elements/1.1/\">\n")
	}
	fmt.Fprintf(&sb, "<dc:identifier id=\"bookid\">%s</dc:identifier>\n", esc(a.meta.Identifier))
	fmt.Fprintf(&sb, "<dc:title>%s</dc:title>\n", text(a.meta.Title))
	fmt.Fprintf(&sb, "<dc:language>%s</dc:language>\n", esc(a.meta.Language))
	for i, c := range a.meta.Creators {
		if legacy {
			fmt.Fprintf(&sb, "<dc:creator opf:role=\"aut\">%s</dc:creator>\n", text(c))
			continue
		}
		fmt.Fprintf(&sb, "<dc:creator id=\"creator%d\">%s</dc:creator>\n", i+1, text(c))
		fmt.Fprintf(&sb, "<meta refines=\"#creator%d\" property=\"role\" scheme=\"marc:relators\">aut</meta>\n", i+1)
	}
	optional := []struct{ tag, value string }{
		{"publisher", a.meta.Publisher},
		{"date", a.meta.Date},
		{"description", a.meta.Description},
		{"rights", a.meta.Rights},
	}
	for _, o := range optional {
		if o.value != "" {
			fmt.Fprintf(&sb, "<dc:%s>%s</dc:%s>\n", o.tag, text(o.value), o.tag)
		}
	}
	for _, s := range a.meta.Subjects {
		fmt.Fprintf(&sb, "<dc:subject>%s</dc:subject>\n", text(s))
	}
	if !legacy {
		fmt.Fprintf(&sb, "<meta property=\"dcterms:modified\">%s</meta>\n", a.opts.Modified.Format(time.RFC3339))
	}
	if a.cover != nil {
		fmt.Fprintf(&sb, "<meta name=\"cover\" content=\"%s\"/>\n", imageItemID(a.cover.Filename))
	}
	sb.WriteString("</metadata>\n<manifest>\n")

	for _, it := range a.items {
		fmt.Fprintf(&sb, "<item id=\"%s\" href=\"%s\" media-type=\"%s\"", it.id, esc(it.href), it.mediaType)
		if it.properties != "" && !legacy {
			fmt.Fprintf(&sb, " properties=\"%s\"", it.properties)
		}
		sb.WriteString("/>\n")
	}
	sb.WriteString("</manifest>\n")

	sb.WriteString("<spine toc=\"ncx\"")
	if a.opts.Vertical {
		sb.WriteString(" page-progression-direction=\"rtl\"")
	}
	sb.WriteString(">\n")
	for _, p := range a.spine {
		if p.linear {
			fmt.Fprintf(&sb, "<itemref idref=\"%s\"/>\n", p.id)
		} else {
			fmt.Fprintf(&sb, "<itemref idref=\"%s\" linear=\"no\"/>\n", p.id)
		}
	}
	sb.WriteString("</spine>\n")

	if legacy {
		sb.WriteString("<guide>\n")
		if a.cover != nil {
			fmt.Fprintf(&sb, "<reference type=\"cover\" title=\"Cover\" href=\"%s\"/>\n", coverHref)
		}
		fmt.Fprintf(&sb, "<reference type=\"toc\" title=\"%s\" href=\"%s\"/>\n", esc(a.tocTitle()), tocHref)
		fmt.Fprintf(&sb, "<reference type=\"text\" title=\"Start\" href=\"%s\"/>\n", esc(a.bodyStart()))
		sb.WriteString("</guide>\n")
	}

	sb.WriteString("</package>\n")
	return []byte(sb.String())
}
