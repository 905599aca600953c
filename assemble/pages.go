package assemble

import (
	"fmt"
	stdhtml "html"
	"strings"

	"github.com/tsawler/epubkit/markup"
)

func (a *assembler) coverUsesSVG() bool {
	return a.cover != nil && a.cover.Width > 0 && a.cover.Height > 0
}

// coverPage shows the cover image scaled to the viewport. With known
// dimensions the image sits in an SVG wrapper so it keeps its aspect ratio
// on every reader.
func (a *assembler) coverPage() []byte {
	src := stdhtml.EscapeString("../" + imageDir + "/" + a.cover.Filename)
	alt := markup.Escape(a.meta.Title)

	var body string
	if a.coverUsesSVG() {
		body = fmt.Sprintf("<div class=\"cover\">\n%s</div>\n", svgImage(src, a.cover.Width, a.cover.Height))
	} else {
		body = fmt.Sprintf("<div class=\"cover\"><img src=\"%s\" alt=\"%s\"/></div>\n", src, alt)
	}
	return markup.Page(a.build, a.meta.Title, "cover", body)
}

// platePage shows one color plate. Landscape plates get the SVG wrapper so
// they fill a portrait screen without cropping.
func (a *assembler) platePage(img *Image) []byte {
	src := stdhtml.EscapeString("../" + imageDir + "/" + img.Filename)

	var body string
	if img.landscape() && img.Width > 0 {
		body = fmt.Sprintf("<div class=\"plate landscape\">\n%s</div>\n", svgImage(src, img.Width, img.Height))
	} else {
		body = fmt.Sprintf("<div class=\"plate\"><img src=\"%s\" alt=\"\"/></div>\n", src)
	}
	return markup.Page(a.build, stem(img.Filename), "", body)
}

func svgImage(src string, w, h int) string {
	return fmt.Sprintf("<svg xmlns=\"http://www.w3.org/2000/svg\" xmlns:xlink=\"http://www.w3.org/1999/xlink\" version=\"1.1\" "+
		"width=\"100%%\" height=\"100%%\" viewBox=\"0 0 %d %d\" preserveAspectRatio=\"xMidYMid meet\">\n"+
		"<image width=\"%d\" height=\"%d\" xlink:href=\"%s\"/>\n</svg>\n", w, h, w, h, src)
}

// tocPage is the visual table of contents, one link per navigable chapter.
func (a *assembler) tocPage() []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<h1 class=\"toc-title\">%s</h1>\n<ul class=\"toc\">\n", markup.Escape(a.tocTitle()))
	for _, e := range a.navEntries() {
		if e.href == tocHref {
			continue
		}
		fmt.Fprintf(&sb, "<li class=\"toc-level-%d\"><a href=\"../%s\">%s</a></li>\n",
			e.level, stdhtml.EscapeString(e.href), markup.Escape(e.label))
	}
	sb.WriteString("</ul>\n")

	bodyType := ""
	if a.opts.Profile == markup.Modern {
		bodyType = "toc"
	}
	return markup.Page(a.build, a.tocTitle(), bodyType, sb.String())
}
