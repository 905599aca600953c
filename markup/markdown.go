package markup

import (
	"regexp"
	"strings"

	"github.com/tsawler/epubkit/model"
)

// ImageDir is the directory prefix illustrations carry in the intermediate
// format.
const ImageDir = "images/"

var (
	headingLine      = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	illustrationLine = regexp.MustCompile(`^!\[([^\]]*)\]\(([^)]*)\)$`)
)

// RenderMarkdown writes blocks in the intermediate format, one block per
// line.
func RenderMarkdown(blocks []model.Block) string {
	var sb strings.Builder
	for i, b := range blocks {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(renderLine(b))
	}
	if len(blocks) > 0 {
		sb.WriteByte('\n')
	}
	return sb.String()
}

func renderLine(b model.Block) string {
	switch v := b.(type) {
	case model.Paragraph:
		text := strings.ReplaceAll(v.Text, "\n", lineBreak)
		if _, isBreak := SceneBreakMarker(text); isBreak || strings.TrimSpace(text) == "" {
			return string(escapeRune) + text
		}
		return escapeLineStart(text)
	case model.Blank:
		return ""
	case model.SceneBreak:
		if v.Marker == "" {
			return GenericSceneBreak
		}
		return v.Marker
	case model.Illustration:
		name := v.Filename
		if !strings.Contains(name, "/") {
			name = ImageDir + name
		}
		return "![" + strings.ReplaceAll(v.Alt, "]", "") + "](" + name + ")"
	case model.Heading:
		level := v.Level
		if level < 1 {
			level = 1
		}
		if level > 6 {
			level = 6
		}
		return strings.Repeat("#", level) + " " + strings.ReplaceAll(v.Text, "\n", lineBreak)
	}
	return ""
}

// ParseMarkdown reads the intermediate format. Every line is one block; a
// trailing newline does not produce a final Blank.
func ParseMarkdown(s string) []model.Block {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}

	lines := strings.Split(s, "\n")
	blocks := make([]model.Block, 0, len(lines))
	for _, line := range lines {
		blocks = append(blocks, parseLine(line))
	}
	return blocks
}

func parseLine(line string) model.Block {
	trimmed := strings.TrimRight(line, " \t")
	if strings.TrimSpace(trimmed) == "" {
		return model.Blank{}
	}

	if m := headingLine.FindStringSubmatch(trimmed); m != nil {
		return model.Heading{Level: len(m[1]), Text: strings.TrimSpace(m[2])}
	}

	if m := illustrationLine.FindStringSubmatch(trimmed); m != nil {
		return model.Illustration{Filename: strings.TrimPrefix(m[2], ImageDir), Alt: m[1]}
	}

	if marker, ok := SceneBreakMarker(trimmed); ok {
		return model.SceneBreak{Marker: marker}
	}

	return model.Paragraph{Text: trimmed}
}
