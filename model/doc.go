// Package model provides the intermediate representation shared by every
// stage of the extraction and rebuild pipeline.
//
// The types in this package are plain values. No stage keeps a reference
// into another stage's working state; stages exchange these values only
// through the persisted manifest.
//
// # Blocks
//
// Chapter content is an ordered sequence of [Block] values. Block is a closed
// sum type; the concrete variants are:
//
//   - [Paragraph] - a line of prose with inline ruby/emphasis markers
//   - [Blank] - an intentional empty line
//   - [SceneBreak] - a scene divider, optionally carrying its visual marker
//   - [Illustration] - an image placed between paragraphs
//   - [Heading] - a sub-heading inside a chapter
//
// Code that switches over blocks should handle every variant:
//
//	switch b := block.(type) {
//	case model.Paragraph:
//	case model.Blank:
//	case model.SceneBreak:
//	case model.Illustration:
//	case model.Heading:
//	}
//
// # Structure
//
// [SpineItem] and [NavEntry] mirror the container's reading order and table
// of contents. [ImageRecord] carries the role assigned to an image by the
// publisher profile matcher. [RubyAnnotation] is a pronunciation gloss mined
// from the content. [Chapter] is a logical chapter produced by segmentation.
//
// # Errors and warnings
//
// Fatal conditions are reported as [*Error] values carrying an [ErrorKind].
// Non-fatal conditions are accumulated as [Warning] values and returned next
// to the primary result so callers can assert on them.
package model
