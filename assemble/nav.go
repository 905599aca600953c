package assemble

import (
	"fmt"
	stdhtml "html"
	"strings"

	"github.com/tsawler/epubkit/markup"
)

type navEntry struct {
	label string
	href  string
	level int
}

type navNode struct {
	navEntry
	children []*navNode
}

// navEntries lists the chapters that get a table of contents entry: every
// chapter except continuation parts.
func (a *assembler) navEntries() []navEntry {
	var out []navEntry
	for i, ch := range a.book.Chapters {
		if ch.Part > 1 {
			continue
		}
		label := strings.TrimSpace(markup.Plain(ch.Title))
		if label == "" {
			label = ch.ID
		}
		out = append(out, navEntry{label: label, href: a.chapters[i].href, level: max(ch.Level, 1)})
	}
	return out
}

// navTree nests entries by level. A level deeper than one below its
// predecessor is clamped, so the tree never skips a level.
func navTree(entries []navEntry) []*navNode {
	var roots []*navNode
	var stack []*navNode // stack[i] is the open node at level i+1
	for _, e := range entries {
		level := min(max(e.level, 1), len(stack)+1)
		n := &navNode{navEntry: e}
		stack = stack[:level-1]
		if level == 1 {
			roots = append(roots, n)
		} else {
			parent := stack[level-2]
			parent.children = append(parent.children, n)
		}
		stack = append(stack, n)
	}
	return roots
}

// bodyStart returns the first page of the main text: the first chapter that
// is not front matter, or the first chapter.
func (a *assembler) bodyStart() string {
	for i, ch := range a.book.Chapters {
		if !ch.IsFrontMatter {
			return a.chapters[i].href
		}
	}
	return a.chapters[0].href
}

func (a *assembler) navDocument() []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<nav epub:type=\"toc\" id=\"toc\">\n<h1>%s</h1>\n", markup.Escape(a.tocTitle()))
	writeNavList(&sb, navTree(a.navEntries()))
	sb.WriteString("</nav>\n")

	sb.WriteString("<nav epub:type=\"landmarks\" id=\"landmarks\" hidden=\"\">\n<ol>\n")
	if a.cover != nil {
		fmt.Fprintf(&sb, "<li><a epub:type=\"cover\" href=\"%s\">Cover</a></li>\n", coverHref)
	}
	fmt.Fprintf(&sb, "<li><a epub:type=\"toc\" href=\"%s\">%s</a></li>\n", tocHref, markup.Escape(a.tocTitle()))
	fmt.Fprintf(&sb, "<li><a epub:type=\"bodymatter\" href=\"%s\">Start</a></li>\n", stdhtml.EscapeString(a.bodyStart()))
	sb.WriteString("</ol>\n</nav>\n")

	opts := a.build
	opts.Stylesheet = styleHref
	return markup.Page(opts, a.tocTitle(), "", sb.String())
}

func writeNavList(sb *strings.Builder, nodes []*navNode) {
	if len(nodes) == 0 {
		return
	}
	sb.WriteString("<ol>\n")
	for _, n := range nodes {
		fmt.Fprintf(sb, "<li><a href=\"%s\">%s</a>", stdhtml.EscapeString(n.href), markup.Escape(n.label))
		if len(n.children) > 0 {
			sb.WriteString("\n")
			writeNavList(sb, n.children)
		}
		sb.WriteString("</li>\n")
	}
	sb.WriteString("</ol>\n")
}

// ncxDocument is the legacy navigation index. Every profile includes it.
func (a *assembler) ncxDocument() []byte {
	tree := navTree(a.navEntries())

	var sb strings.Builder
	sb.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	sb.WriteString("<ncx xmlns=\"http://www.daisy.org/z3986/2005/ncx/\" version=\"2005-1\">\n<head>\n")
	fmt.Fprintf(&sb, "<meta name=\"dtb:uid\" content=\"%s\"/>\n", stdhtml.EscapeString(a.meta.Identifier))
	fmt.Fprintf(&sb, "<meta name=\"dtb:depth\" content=\"%d\"/>\n", max(treeDepth(tree), 1))
	sb.WriteString("<meta name=\"dtb:totalPageCount\" content=\"0\"/>\n<meta name=\"dtb:maxPageNumber\" content=\"0\"/>\n</head>\n")
	fmt.Fprintf(&sb, "<docTitle><text>%s</text></docTitle>\n", markup.Escape(a.meta.Title))
	for _, c := range a.meta.Creators {
		fmt.Fprintf(&sb, "<docAuthor><text>%s</text></docAuthor>\n", markup.Escape(c))
	}
	sb.WriteString("<navMap>\n")
	order := 0
	writeNavPoints(&sb, tree, &order)
	sb.WriteString("</navMap>\n</ncx>\n")
	return []byte(sb.String())
}

func writeNavPoints(sb *strings.Builder, nodes []*navNode, order *int) {
	for _, n := range nodes {
		*order++
		fmt.Fprintf(sb, "<navPoint id=\"navPoint-%d\" playOrder=\"%d\">\n<navLabel><text>%s</text></navLabel>\n<content src=\"%s\"/>\n",
			*order, *order, markup.Escape(n.label), stdhtml.EscapeString(n.href))
		writeNavPoints(sb, n.children, order)
		sb.WriteString("</navPoint>\n")
	}
}

func treeDepth(nodes []*navNode) int {
	d := 0
	for _, n := range nodes {
		d = max(d, 1+treeDepth(n.children))
	}
	return d
}
