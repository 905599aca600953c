// Package epubkit provides a fluent API for reading the structure of
// light-novel EPUB containers: chapters, images and character names.
//
// Basic usage:
//
//	chapters, warnings, err := epubkit.Open("volume.epub").Chapters()
//	if err != nil {
//	    // handle error
//	}
//	if len(warnings) > 0 {
//	    log.Println("Warnings:", epubkit.FormatWarnings(warnings))
//	}
//
// With options:
//
//	md, _, err := epubkit.Open("volume.epub").
//	    Profile("kadokawa").
//	    SplitTokens(8000, 2000).
//	    Markdown()
//
// The workspace-based extract and rebuild phases live in the pipeline
// package; the container reader is in epubdoc.
package epubkit

import (
	"github.com/tsawler/epubkit/epubdoc"
	"github.com/tsawler/epubkit/model"
)

// Warning is a non-fatal condition found while reading a container.
type Warning = model.Warning

// FormatWarnings renders warnings one per line.
func FormatWarnings(ws []Warning) string {
	return model.FormatWarnings(ws)
}

// Open returns an Extractor for the container at filename. The container
// is opened by the first terminal operation and closed when it returns.
//
// Example:
//
//	names, _, err := epubkit.Open("volume.epub").Names()
func Open(filename string) *Extractor {
	return &Extractor{
		filename: filename,
		options:  defaultOptions(),
	}
}

// FromReader creates an Extractor over an already-open container. The
// caller is responsible for closing r.
func FromReader(r *epubdoc.Reader) *Extractor {
	return &Extractor{
		reader:       r,
		readerOpened: true,
		options:      defaultOptions(),
	}
}

// Must wraps a call returning (T, error) and panics on error. It is meant
// for scripts and tests.
//
// Example:
//
//	meta := epubkit.Must(epubkit.Open("volume.epub").Metadata())
func Must[T any](val T, err error) T {
	if err != nil {
		panic(err)
	}
	return val
}

// MustText wraps a terminal operation that also returns warnings, panics
// on error and discards the warnings.
//
// Example:
//
//	md := epubkit.MustText(epubkit.Open("volume.epub").Markdown())
func MustText[T any](val T, _ []Warning, err error) T {
	if err != nil {
		panic(err)
	}
	return val
}
