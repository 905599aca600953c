package model

import "fmt"

// Chapter is a logical chapter produced by segmentation.
//
// The content splitter may replace one chapter with several parts sharing
// BaseID; the external rewrite step replaces Body without touching ID or
// Ordinal.
type Chapter struct {
	ID      string
	BaseID  string
	Part    int // 0 when the chapter was not split, 1-based otherwise
	Ordinal int
	Title   string
	Level   int

	Body          []Block
	Illustrations []string

	IsFrontMatter bool

	// SourceFiles lists the spine hrefs the chapter was assembled from.
	SourceFiles []string
}

// ChapterID formats the identifier of the n-th produced chapter.
func ChapterID(n int) string {
	return fmt.Sprintf("chapter_%03d", n)
}

// PartID formats the identifier of part n (1-based) of a split chapter.
func PartID(baseID string, n int) string {
	return fmt.Sprintf("%s_part%02d", baseID, n)
}

// AddIllustration appends an illustration block and records the filename.
func (c *Chapter) AddIllustration(filename string) {
	c.Body = append(c.Body, Illustration{Filename: filename})
	c.Illustrations = append(c.Illustrations, filename)
}

// Renumber assigns contiguous ordinals starting at 1 in slice order.
func Renumber(chapters []Chapter) {
	for i := range chapters {
		chapters[i].Ordinal = i + 1
	}
}

// CheckOrdinals verifies that chapters[i].Ordinal == i+1 for every chapter.
func CheckOrdinals(chapters []Chapter) error {
	for i, ch := range chapters {
		if ch.Ordinal != i+1 {
			return fmt.Errorf("chapter %s: ordinal %d at position %d", ch.ID, ch.Ordinal, i+1)
		}
	}
	return nil
}
