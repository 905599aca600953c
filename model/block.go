package model

import "strings"

// BlockKind identifies the variant of a Block.
type BlockKind int

const (
	BlockParagraph BlockKind = iota
	BlockBlank
	BlockSceneBreak
	BlockIllustration
	BlockHeading
)

func (k BlockKind) String() string {
	switch k {
	case BlockParagraph:
		return "Paragraph"
	case BlockBlank:
		return "Blank"
	case BlockSceneBreak:
		return "SceneBreak"
	case BlockIllustration:
		return "Illustration"
	case BlockHeading:
		return "Heading"
	default:
		return "Unknown"
	}
}

// Block is one unit of chapter content. The set of implementations is closed:
// only the types in this package satisfy it.
type Block interface {
	Kind() BlockKind
	isBlock()
}

// Paragraph is a line of prose. Text may contain inline markers:
// base{reading} for ruby, *x* and **x** for emphasis, <br> for line breaks.
type Paragraph struct {
	Text string
}

func (Paragraph) Kind() BlockKind { return BlockParagraph }
func (Paragraph) isBlock()        {}

// Blank is an intentional empty line between paragraphs.
type Blank struct{}

func (Blank) Kind() BlockKind { return BlockBlank }
func (Blank) isBlock()        {}

// SceneBreak divides scenes. Marker is empty for the generic divider and holds
// the original ornament text otherwise.
type SceneBreak struct {
	Marker string
}

func (SceneBreak) Kind() BlockKind { return BlockSceneBreak }
func (SceneBreak) isBlock()        {}

// Illustration places an image between paragraphs. Filename is an archive
// path during extraction and a normalized asset name after cataloging.
type Illustration struct {
	Filename string
	Alt      string
}

func (Illustration) Kind() BlockKind { return BlockIllustration }
func (Illustration) isBlock()        {}

// Heading is a sub-heading inside a chapter. The chapter title is never a
// Heading block; it is carried by Chapter.Title.
type Heading struct {
	Level int // 1-6
	Text  string
}

func (Heading) Kind() BlockKind { return BlockHeading }
func (Heading) isBlock()        {}

// BlockText returns the visible text of a block, or "" for blocks without text.
func BlockText(b Block) string {
	switch v := b.(type) {
	case Paragraph:
		return v.Text
	case Heading:
		return v.Text
	case SceneBreak:
		return v.Marker
	default:
		return ""
	}
}

// BlocksText joins the text of all blocks with newlines.
func BlocksText(blocks []Block) string {
	var sb strings.Builder
	for _, b := range blocks {
		text := BlockText(b)
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(text)
	}
	return sb.String()
}

// IllustrationFiles returns the filenames of all Illustration blocks in order.
func IllustrationFiles(blocks []Block) []string {
	var files []string
	for _, b := range blocks {
		if ill, ok := b.(Illustration); ok {
			files = append(files, ill.Filename)
		}
	}
	return files
}
