package epubkit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tsawler/epubkit/epubdoc"
	"github.com/tsawler/epubkit/markup"
	"github.com/tsawler/epubkit/model"
	"github.com/tsawler/epubkit/pipeline"
	"github.com/tsawler/epubkit/profile"
)

// Extractor provides a fluent interface for reading a container. Each
// configuration method returns a new Extractor, so a partially configured
// Extractor can be shared.
type Extractor struct {
	filename string

	reader       *epubdoc.Reader
	ownsReader   bool
	readerOpened bool

	options ExtractOptions

	// err is the first configuration error; terminal operations return it.
	err error

	warnings []Warning
}

func (e *Extractor) clone() *Extractor {
	return &Extractor{
		filename:     e.filename,
		reader:       e.reader,
		ownsReader:   e.ownsReader,
		readerOpened: e.readerOpened,
		options:      e.options.clone(),
		err:          e.err,
		warnings:     append([]Warning(nil), e.warnings...),
	}
}

func (e *Extractor) ensureReader() error {
	if e.readerOpened {
		return nil
	}
	if e.filename == "" {
		return fmt.Errorf("no filename specified")
	}
	r, err := epubdoc.Open(e.filename, epubdoc.Options{Logger: e.options.logger})
	if err != nil {
		return err
	}
	e.reader = r
	e.ownsReader = true
	e.readerOpened = true
	return nil
}

// Close releases the container if the Extractor opened it. It is safe to
// call more than once.
func (e *Extractor) Close() error {
	if e.ownsReader && e.reader != nil {
		err := e.reader.Close()
		e.reader = nil
		e.ownsReader = false
		e.readerOpened = false
		return err
	}
	return nil
}

// ============================================================================
// Configuration
// ============================================================================

// Context sets the context terminal operations run under.
func (e *Extractor) Context(ctx context.Context) *Extractor {
	n := e.clone()
	if ctx == nil {
		n.err = fmt.Errorf("nil context")
		return n
	}
	n.options.ctx = ctx
	return n
}

// Logger sets the logger. The default is slog.Default().
func (e *Extractor) Logger(l *slog.Logger) *Extractor {
	n := e.clone()
	n.options.logger = l
	return n
}

// Profiles uses a loaded profile store instead of the embedded profiles.
func (e *Extractor) Profiles(s *profile.Store) *Extractor {
	n := e.clone()
	n.options.profiles = s
	return n
}

// Profile forces a publisher profile by name.
func (e *Extractor) Profile(name string) *Extractor {
	n := e.clone()
	n.options.profile = name
	return n
}

// Only restricts Chapters, Text and Markdown to the given chapter ids. A
// base id selects every part of a split chapter.
func (e *Extractor) Only(ids ...string) *Extractor {
	n := e.clone()
	n.options.chapters = append([]string(nil), ids...)
	return n
}

// SplitTokens sets the split budget.
func (e *Extractor) SplitTokens(maxTokens, minTokens int) *Extractor {
	n := e.clone()
	if maxTokens <= 0 || minTokens < 0 || minTokens*2 > maxTokens {
		n.err = fmt.Errorf("invalid split budget: max %d, min %d", maxTokens, minTokens)
		return n
	}
	n.options.maxTokens = maxTokens
	n.options.minTokens = minTokens
	n.options.noSplit = false
	return n
}

// NoSplit keeps every chapter whole.
func (e *Extractor) NoSplit() *Extractor {
	n := e.clone()
	n.options.noSplit = true
	return n
}

// Morphology enables the dictionary-backed ruby signals. Loading the
// dictionary takes noticeable time and memory.
func (e *Extractor) Morphology() *Extractor {
	n := e.clone()
	n.options.morphology = true
	return n
}

// ============================================================================
// Terminal operations
// ============================================================================

// Metadata returns the package metadata.
func (e *Extractor) Metadata() (model.Metadata, error) {
	if e.err != nil {
		return model.Metadata{}, e.err
	}
	if err := e.ensureReader(); err != nil {
		return model.Metadata{}, err
	}
	defer e.Close()
	return e.reader.Metadata(), nil
}

// Analyze runs the full in-memory analysis.
func (e *Extractor) Analyze() (*pipeline.Analysis, []Warning, error) {
	if e.err != nil {
		return nil, nil, e.err
	}
	if err := e.ensureReader(); err != nil {
		return nil, nil, err
	}
	defer e.Close()

	p, err := pipeline.New(e.options.pipelineConfig())
	if err != nil {
		return nil, e.warnings, err
	}
	an, err := p.Analyze(e.options.ctx, e.reader)
	if err != nil {
		return nil, e.warnings, err
	}
	return an, append(e.warnings, an.Warnings...), nil
}

// Chapters returns the segmented and split chapters.
func (e *Extractor) Chapters() ([]model.Chapter, []Warning, error) {
	an, warnings, err := e.Analyze()
	if err != nil {
		return nil, warnings, err
	}
	return e.selected(an.Chapters), warnings, nil
}

// Markdown returns the chapters in the intermediate markdown format, each
// under a level-one heading with its title.
func (e *Extractor) Markdown() (string, []Warning, error) {
	chapters, warnings, err := e.Chapters()
	if err != nil {
		return "", warnings, err
	}
	var sb strings.Builder
	for i, ch := range chapters {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "# %s\n\n", ch.Title)
		sb.WriteString(markup.RenderMarkdown(ch.Body))
	}
	return sb.String(), warnings, nil
}

// Text returns the chapter text with ruby readings and inline markup
// removed, one paragraph per line.
func (e *Extractor) Text() (string, []Warning, error) {
	chapters, warnings, err := e.Chapters()
	if err != nil {
		return "", warnings, err
	}
	var sb strings.Builder
	for i, ch := range chapters {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(markup.Plain(ch.Title))
		sb.WriteString("\n\n")
		for _, b := range ch.Body {
			switch v := b.(type) {
			case model.Paragraph:
				sb.WriteString(markup.Plain(v.Text))
				sb.WriteString("\n")
			case model.Heading:
				sb.WriteString(markup.Plain(v.Text))
				sb.WriteString("\n")
			}
		}
	}
	return sb.String(), warnings, nil
}

// Names returns the character roster as base text to reading.
func (e *Extractor) Names() (map[string]string, []Warning, error) {
	an, warnings, err := e.Analyze()
	if err != nil {
		return nil, warnings, err
	}
	return an.Ruby.Names(), warnings, nil
}

// Images returns the cataloged cover, color plates and illustrations in
// that order.
func (e *Extractor) Images() ([]model.ImageRecord, []Warning, error) {
	an, warnings, err := e.Analyze()
	if err != nil {
		return nil, warnings, err
	}
	cat := an.Catalog
	var out []model.ImageRecord
	if cat.Cover != nil {
		out = append(out, *cat.Cover)
	}
	out = append(out, cat.ColorPlates...)
	out = append(out, cat.Illustrations...)
	return out, warnings, nil
}

func (e *Extractor) selected(chapters []model.Chapter) []model.Chapter {
	if e.options.chapters == nil {
		return chapters
	}
	keep := make(map[string]bool, len(e.options.chapters))
	for _, id := range e.options.chapters {
		keep[id] = true
	}
	var out []model.Chapter
	for _, ch := range chapters {
		if keep[ch.ID] || keep[ch.BaseID] {
			out = append(out, ch)
		}
	}
	return out
}
