package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/tsawler/epubkit/assemble"
	"github.com/tsawler/epubkit/manifest"
	"github.com/tsawler/epubkit/markup"
	"github.com/tsawler/epubkit/model"
)

// RebuildOptions selects what Rebuild produces.
type RebuildOptions struct {
	// Lang picks translated chapter files and the metadata_<lang> block.
	// Empty rebuilds the source language.
	Lang string

	// Output is the container filename inside the output directory.
	// Default <volume_id>[_<lang>].epub.
	Output string
}

// RebuildResult summarizes a rebuild.
type RebuildResult struct {
	VolumeID   string          `json:"volume_id" yaml:"volume_id"`
	Path       string          `json:"path" yaml:"path"`
	Lang       string          `json:"lang,omitempty" yaml:"lang,omitempty"`
	Bytes      int             `json:"bytes" yaml:"bytes"`
	Chapters   int             `json:"chapters" yaml:"chapters"`
	Translated int             `json:"translated" yaml:"translated"`
	Skipped    []string        `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Images     int             `json:"images" yaml:"images"`
	Cover      string          `json:"cover,omitempty" yaml:"cover,omitempty"`
	Warnings   []model.Warning `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Elapsed    time.Duration   `json:"elapsed" yaml:"elapsed"`
}

// Rebuild assembles a container from a volume's workspace. Chapters use
// their translated file when one exists for opts.Lang and the source file
// otherwise; a chapter with neither is skipped with a warning. When
// assembly or validation fails the manifest is left untouched.
func (p *Pipeline) Rebuild(ctx context.Context, volumeID string, opts RebuildOptions) (*RebuildResult, error) {
	start := time.Now()
	m, err := p.LoadManifest(volumeID)
	if err != nil {
		return nil, err
	}
	dir := p.VolumeDir(volumeID)
	log := p.log.With("volume_id", volumeID, "lang", opts.Lang)

	res := &RebuildResult{VolumeID: volumeID, Lang: opts.Lang}
	var warnings model.Warnings

	book := &assemble.Book{Metadata: m.MetadataFor(opts.Lang)}
	if book.Metadata.Language == "" {
		book.Metadata.Language = opts.Lang
	}
	if book.Metadata.Language == "" {
		book.Metadata.Language = p.cfg.Language
	}
	if strings.HasPrefix(book.Metadata.Language, "ja") {
		book.TOCTitle = "目次"
	}

	for _, ch := range m.Chapters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		body, translated, err := p.chapterBody(dir, ch, opts.Lang)
		if err != nil {
			warnings.Add(model.KindChapterFileMissing, ch.SourceFile, "chapter %s skipped: %v", ch.ID, err)
			log.Warn("chapter skipped", "chapter", ch.ID, "error", err)
			res.Skipped = append(res.Skipped, ch.ID)
			continue
		}
		title := ch.Title
		if translated {
			res.Translated++
			if ch.TranslatedTitle != "" {
				title = ch.TranslatedTitle
			}
		}
		book.Chapters = append(book.Chapters, assemble.Chapter{
			ID:            ch.ID,
			Title:         title,
			Level:         ch.Level,
			Part:          ch.Part,
			Body:          body,
			IsFrontMatter: ch.IsFrontMatter,
		})
	}

	book.Images = p.loadImages(dir, m, &warnings)

	name := opts.Output
	if name == "" {
		name = volumeID
		if opts.Lang != "" {
			name += "_" + opts.Lang
		}
		name += ".epub"
	}
	if filepath.Base(name) != name {
		return nil, fmt.Errorf("output name %q must not contain a directory", name)
	}
	dest := filepath.Join(dir, OutputDir, name)

	buildOpts := p.cfg.Build
	buildOpts.Logger = log
	written, err := assemble.Write(ctx, book, dest, buildOpts)
	if err != nil {
		return nil, err
	}
	warnings.Merge(written.Warnings)

	res.Path = dest
	res.Bytes = written.Size
	res.Chapters = written.Chapters
	res.Images = written.Images
	res.Cover = written.Cover
	res.Warnings = warnings
	res.Elapsed = time.Since(start)

	m.SetPhase(manifest.PhaseRebuild, manifest.StatusDone, map[string]int{
		"chapters":   res.Chapters,
		"translated": res.Translated,
		"skipped":    len(res.Skipped),
		"images":     res.Images,
	}, nil)
	if err := manifest.Save(p.ManifestPath(volumeID), m); err != nil {
		return nil, err
	}

	log.Info("rebuild complete", "path", dest, "chapters", res.Chapters, "translated", res.Translated, "skipped", len(res.Skipped))
	return res, nil
}

// chapterBody reads a chapter's blocks, preferring the translation for lang.
func (p *Pipeline) chapterBody(dir string, ch manifest.Chapter, lang string) ([]model.Block, bool, error) {
	if lang != "" {
		name := ch.TranslatedFile
		if name == "" {
			name = path.Base(ch.SourceFile)
		}
		rel := path.Join(TranslatedDir, lang, path.Base(name))
		data, err := readFile(dir, rel)
		switch {
		case err == nil:
			return markup.ParseMarkdown(string(data)), true, nil
		case !errors.Is(err, os.ErrNotExist):
			return nil, false, err
		}
	}
	data, err := readFile(dir, ch.SourceFile)
	if err != nil {
		return nil, false, err
	}
	return markup.ParseMarkdown(string(data)), false, nil
}

// loadImages reads the cataloged images in package order: cover, color
// plates, illustrations. Missing dimensions are probed from the file.
func (p *Pipeline) loadImages(dir string, m *manifest.Manifest, warnings *model.Warnings) []assemble.Image {
	var recs []model.ImageRecord
	if m.Assets.Cover != "" {
		recs = append(recs, model.ImageRecord{Filename: m.Assets.Cover, Role: model.RoleCover})
	}
	recs = append(recs, m.Assets.ColorPlates...)
	for _, f := range m.Assets.Illustrations {
		recs = append(recs, model.ImageRecord{Filename: f, Role: model.RoleIllustration})
	}

	out := make([]assemble.Image, 0, len(recs))
	for _, r := range recs {
		data, err := readFile(dir, path.Join(ImagesDir, r.Filename))
		if err != nil {
			warnings.Add(model.KindUnmatchedAsset, r.Filename, "image not packaged: %v", err)
			continue
		}
		if r.Width == 0 || r.Height == 0 {
			if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
				r.Width, r.Height = cfg.Width, cfg.Height
			}
		}
		out = append(out, assemble.Image{
			Filename: r.Filename,
			Role:     r.Role,
			Width:    r.Width,
			Height:   r.Height,
			Data:     data,
		})
	}
	return out
}
