// Package epubdoc unpacks e-book containers and parses their package
// document: manifest, spine and navigation.
//
// The spine is the authoritative reading order. Spine entries reference
// manifest ids, never paths, and the reader preserves that indirection:
// every [model.SpineItem] is resolved through the manifest to an archive
// path. Navigation is parsed independently, from the modern navigation
// document when present and from the legacy NCX index otherwise, so that
// downstream segmentation can reconcile the two lists.
package epubdoc

import (
	"log/slog"
)

// Package represents the parsed OPF document.
type Package struct {
	Metadata      PackageMetadata
	Manifest      map[string]ManifestItem // keyed by ID
	ManifestOrder []string                // IDs in document order
	Spine         []SpineRef
	SpineTOC      string // NCX manifest id (legacy)
	Version       string // "2.0" or "3.0"
}

// PackageMetadata holds metadata fields that are not part of model.Metadata
// but are needed to interpret the package.
type PackageMetadata struct {
	CoverID string // legacy <meta name="cover" content="id">
}

// ManifestItem represents a file in the container.
type ManifestItem struct {
	ID         string
	Href       string // as written in the package document
	Path       string // archive path resolved against the content root
	MediaType  string
	Properties []string
}

// HasProperty reports whether the item declares the given property.
func (m ManifestItem) HasProperty(prop string) bool {
	for _, p := range m.Properties {
		if p == prop {
			return true
		}
	}
	return false
}

// SpineRef is a raw spine itemref before manifest resolution.
type SpineRef struct {
	IDRef      string
	Linear     bool // true if part of main reading order
	Properties []string
}

// Options configures container parsing.
type Options struct {
	// IllustrationMaxBytes is the size below which a content document is a
	// candidate for illustration-only detection. Default 10240.
	IllustrationMaxBytes int64

	// IllustrationMaxText is the largest number of visible non-space
	// characters an illustration-only page may carry. Default 5.
	IllustrationMaxText int

	// Logger receives debug output. Default slog.Default().
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.IllustrationMaxBytes <= 0 {
		o.IllustrationMaxBytes = 10 * 1024
	}
	if o.IllustrationMaxText == 0 {
		o.IllustrationMaxText = 5
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}
