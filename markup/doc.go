// Package markup converts between container markup and content blocks.
//
// The extraction direction walks an XHTML content document and produces an
// ordered []model.Block: ruby becomes an inline base{reading} marker,
// images become Illustration blocks (or SceneBreak blocks when they are
// tiny dividers), ornament runs become SceneBreak blocks, and headings are
// shifted below the chapter title.
//
// The build direction is the inverse: blocks become an XHTML page in either
// the Modern (EPUB 3) or Legacy (EPUB 2) profile, with all text escaped
// exactly once.
//
// Between the two, blocks are stored in a line-oriented intermediate
// format (see RenderMarkdown and ParseMarkdown) that an external rewriting
// step edits.
package markup
