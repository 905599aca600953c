package model

import "time"

// Metadata contains the container's Dublin Core metadata.
type Metadata struct {
	Title       string    `json:"title"`
	Creators    []string  `json:"creators,omitempty"`
	Language    string    `json:"language,omitempty"`
	Identifier  string    `json:"identifier,omitempty"`
	Publisher   string    `json:"publisher,omitempty"`
	Date        string    `json:"date,omitempty"`
	Description string    `json:"description,omitempty"`
	Subjects    []string  `json:"subjects,omitempty"`
	Rights      string    `json:"rights,omitempty"`
	Modified    time.Time `json:"modified,omitempty"`
}

// SpineItem is one entry of the container's authoritative reading order,
// resolved through the manifest to a concrete archive path.
type SpineItem struct {
	ID         string
	Href       string // archive path, resolved against the package document
	MediaType  string
	Linear     bool
	Properties []string
	Size       int64

	// IsIllustrationOnly is inferred from size and content, never declared.
	IsIllustrationOnly bool

	// Images lists the archive paths of images referenced by the item, in
	// document order.
	Images []string
}

// MissingSpineItem is a spine entry whose content file is absent from the
// archive. Index is the position in the loaded spine it would have taken.
type MissingSpineItem struct {
	ID     string
	Href   string
	Linear bool
	Index  int
}

// HasProperty reports whether the spine item or its manifest entry carries
// the given property.
func (s SpineItem) HasProperty(prop string) bool {
	for _, p := range s.Properties {
		if p == prop {
			return true
		}
	}
	return false
}

// NavEntry is a node of the human-authored table of contents.
type NavEntry struct {
	Label    string
	Href     string // archive path, fragment removed
	Fragment string
	Level    int // 1 for top-level entries
	Children []NavEntry
}

// FlattenNav returns the entries of a navigation tree in document order.
// Children are emitted directly after their parent.
func FlattenNav(entries []NavEntry) []NavEntry {
	var flat []NavEntry
	var walk func([]NavEntry)
	walk = func(list []NavEntry) {
		for _, e := range list {
			node := e
			node.Children = nil
			flat = append(flat, node)
			walk(e.Children)
		}
	}
	walk(entries)
	return flat
}
