package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"time"

	"github.com/tsawler/epubkit/epubdoc"
	"github.com/tsawler/epubkit/images"
	"github.com/tsawler/epubkit/manifest"
	"github.com/tsawler/epubkit/markup"
	"github.com/tsawler/epubkit/model"
	"github.com/tsawler/epubkit/profile"
	"github.com/tsawler/epubkit/ruby"
	"github.com/tsawler/epubkit/segment"
	"github.com/tsawler/epubkit/split"
)

// ExtractResult summarizes an extraction.
type ExtractResult struct {
	VolumeID      string          `json:"volume_id" yaml:"volume_id"`
	Dir           string          `json:"dir" yaml:"dir"`
	Profile       string          `json:"profile" yaml:"profile"`
	Segmentation  string          `json:"segmentation" yaml:"segmentation"`
	Chapters      int             `json:"chapters" yaml:"chapters"`
	Split         int             `json:"split_chapters" yaml:"split_chapters"`
	ColorPlates   int             `json:"color_plates" yaml:"color_plates"`
	Illustrations int             `json:"illustrations" yaml:"illustrations"`
	Excluded      int             `json:"excluded" yaml:"excluded"`
	Unmatched     int             `json:"unmatched" yaml:"unmatched"`
	FrontMatter   int             `json:"front_matter" yaml:"front_matter"`
	RubyNames     int             `json:"ruby_names" yaml:"ruby_names"`
	Warnings      []model.Warning `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Elapsed       time.Duration   `json:"elapsed" yaml:"elapsed"`
}

// Extract reads a source container into the workspace of volumeID. An
// empty volumeID is derived from the container filename. Running it again
// replaces the previous extraction; translation state of chapters whose id
// and title are unchanged is carried over.
func (p *Pipeline) Extract(ctx context.Context, containerPath, volumeID string) (*ExtractResult, error) {
	start := time.Now()
	if volumeID == "" {
		volumeID = VolumeIDFor(containerPath)
	}
	if err := checkVolumeID(volumeID); err != nil {
		return nil, err
	}
	dir := p.VolumeDir(volumeID)
	log := p.log.With("volume_id", volumeID)

	r, err := epubdoc.Open(containerPath, p.containerOptions())
	if err != nil {
		return nil, err
	}
	defer r.Close()

	an, err := p.Analyze(ctx, r)
	if err != nil {
		return nil, err
	}
	warnings := an.Warnings
	meta, det, cat, seg, roster, chapters := an.Metadata, an.Detection, an.Catalog, an.Segmentation, an.Ruby, an.Chapters

	prev, err := manifest.Load(filepath.Join(dir, manifest.FileName))
	if err != nil && !errors.Is(err, manifest.ErrNotFound) {
		log.Warn("previous manifest unreadable, starting fresh", "error", err)
		prev = nil
	}

	m := manifest.New(volumeID)
	m.Metadata = meta
	m.Source = manifest.Source{
		Container:    filepath.Base(containerPath),
		Profile:      det.Profile.Name,
		Segmentation: seg.Mode.String(),
		NavEntries:   len(r.FlatNavigation()),
	}

	for _, ch := range chapters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rel := path.Join(SourceDir, ch.ID+".md")
		if err := writeFile(filepath.Join(dir, filepath.FromSlash(rel)), []byte(markup.RenderMarkdown(ch.Body))); err != nil {
			return nil, fmt.Errorf("writing %s: %w", rel, err)
		}
		m.Chapters = append(m.Chapters, manifest.FromChapter(ch, rel))
	}

	if _, err := cat.Export(ctx, filepath.Join(dir, ImagesDir)); err != nil {
		return nil, fmt.Errorf("exporting images: %w", err)
	}
	m.Assets = assetsOf(cat)

	m.FrontMatter = p.exportFrontMatter(r, seg.Matter, dir, &warnings, log)
	m.RubyNames = roster.Roster
	carryOver(m, prev)

	parts := 0
	for _, ch := range chapters {
		if ch.Part == 1 {
			parts++
		}
	}
	counts := map[string]int{
		"chapters":      len(m.Chapters),
		"split":         parts,
		"color_plates":  len(cat.ColorPlates),
		"illustrations": len(cat.Illustrations),
		"excluded":      len(cat.Excluded),
		"unmatched":     len(cat.Unmatched),
		"ruby_names":    len(m.RubyNames),
		"warnings":      len(warnings),
	}
	m.SetPhase(manifest.PhaseExtract, manifest.StatusDone, counts, nil)

	if err := writeReview(filepath.Join(dir, ReviewFile), m, det, cat, roster, warnings); err != nil {
		return nil, fmt.Errorf("writing review report: %w", err)
	}
	if err := manifest.Save(filepath.Join(dir, manifest.FileName), m); err != nil {
		return nil, err
	}

	res := &ExtractResult{
		VolumeID:      volumeID,
		Dir:           dir,
		Profile:       det.Profile.Name,
		Segmentation:  seg.Mode.String(),
		Chapters:      len(m.Chapters),
		Split:         parts,
		ColorPlates:   len(cat.ColorPlates),
		Illustrations: len(cat.Illustrations),
		Excluded:      len(cat.Excluded),
		Unmatched:     len(cat.Unmatched),
		FrontMatter:   len(m.FrontMatter),
		RubyNames:     len(m.RubyNames),
		Warnings:      warnings,
		Elapsed:       time.Since(start),
	}
	log.Info("extraction complete", "chapters", res.Chapters, "mode", res.Segmentation, "warnings", len(warnings))
	return res, nil
}

// Analysis is the in-memory result of reading a container: everything
// Extract persists.
type Analysis struct {
	Metadata     model.Metadata
	Detection    profile.Detection
	Catalog      *images.Catalog
	Segmentation *segment.Result
	Ruby         *ruby.Result

	// Chapters are split and carry normalized illustration names.
	Chapters []model.Chapter
	Warnings model.Warnings
}

// Analyze runs detection, cataloging, segmentation, ruby scanning and
// splitting over an open container without touching the workspace.
func (p *Pipeline) Analyze(ctx context.Context, r *epubdoc.Reader) (*Analysis, error) {
	log := p.log.With("container", r.PackagePath())
	an := &Analysis{Metadata: r.Metadata()}
	an.Warnings.Merge(r.Warnings())

	if name := p.cfg.Profile; name != "" {
		forced, ok := p.cfg.Profiles.Get(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProfile, name)
		}
		an.Detection = profile.Detection{Profile: forced}
	} else {
		an.Detection = p.cfg.Profiles.Detect(an.Metadata.Publisher)
	}
	prof := an.Detection.Profile
	log.Info("profile selected", "profile", prof.Name, "publisher", an.Metadata.Publisher, "fallback", an.Detection.Fallback)

	cls := profile.NewClassifier(prof)
	cat, err := images.Build(ctx, r, cls, images.Options{ProbeAll: p.cfg.ProbeAll, Logger: log})
	if err != nil {
		return nil, err
	}
	an.Catalog = cat

	seg, err := segment.Segment(ctx, r, p.segmentConfig(prof, cat, log))
	if err != nil {
		return nil, err
	}
	an.Segmentation = seg
	an.Warnings.Merge(seg.Warnings)

	if an.Ruby, err = p.scanRuby(seg.Chapters, log); err != nil {
		return nil, err
	}

	for i := range seg.Chapters {
		cat.Rewrite(&seg.Chapters[i])
	}
	splitter, err := split.New(p.splitConfig(log))
	if err != nil {
		return nil, err
	}
	an.Chapters = splitter.SplitAll(seg.Chapters)
	an.Warnings.Merge(cat.Warnings)
	return an, nil
}

func (p *Pipeline) containerOptions() epubdoc.Options {
	opts := p.cfg.Container
	opts.Logger = p.log
	return opts
}

func (p *Pipeline) segmentConfig(prof *profile.Profile, cat *images.Catalog, log *slog.Logger) segment.Config {
	cfg := p.cfg.Segment
	if n := prof.Content.NavFallbackThreshold; n > 0 {
		cfg.NavFallbackThreshold = n
	}
	if pats := prof.TitlePatterns(); len(pats) > 0 {
		cfg.TitlePatterns = pats
	}
	cfg.Extract.SmallImageMaxPx = p.cfg.SmallImageMaxPx
	cfg.Extract.ImageSize = cat.Size
	cfg.Logger = log
	return cfg
}

func (p *Pipeline) splitConfig(log *slog.Logger) split.Config {
	cfg := p.cfg.Split
	cfg.Logger = log
	return cfg
}

// scanRuby mines the chapter text for character-name annotations.
func (p *Pipeline) scanRuby(chapters []model.Chapter, log *slog.Logger) (*ruby.Result, error) {
	analyzer, err := p.analyzer()
	if err != nil {
		return nil, fmt.Errorf("loading morphological analyzer: %w", err)
	}
	cfg := p.cfg.Ruby
	cfg.Analyzer = analyzer
	cfg.Logger = log
	ext := ruby.New(cfg)

	for _, ch := range chapters {
		src := ch.ID
		if len(ch.SourceFiles) > 0 {
			src = ch.SourceFiles[0]
		}
		ext.AddText(src, ch.Title)
		for _, b := range ch.Body {
			switch v := b.(type) {
			case model.Paragraph:
				ext.AddText(src, v.Text)
			case model.Heading:
				ext.AddText(src, v.Text)
			}
		}
	}
	return ext.Result(), nil
}

func assetsOf(cat *images.Catalog) manifest.Assets {
	a := manifest.Assets{
		ColorPlates:   cat.ColorPlates,
		Illustrations: make([]string, 0, len(cat.Illustrations)),
	}
	if cat.Cover != nil {
		a.Cover = cat.Cover.Filename
	}
	for _, r := range cat.Illustrations {
		a.Illustrations = append(a.Illustrations, r.Filename)
	}
	return a
}

// exportFrontMatter converts the linear non-chapter pages that carry text
// into reference markdown. A page that fails to convert is skipped with a
// warning.
func (p *Pipeline) exportFrontMatter(r *epubdoc.Reader, matter []segment.Matter, dir string, warnings *model.Warnings, log *slog.Logger) []manifest.FrontMatter {
	conv := markup.NewReferenceConverter()
	var out []manifest.FrontMatter
	for _, mt := range matter {
		switch mt.Kind {
		case segment.MatterCover, segment.MatterTOC, segment.MatterImages:
			continue
		}
		if !mt.Linear {
			continue
		}
		data, err := r.ReadFile(mt.Href)
		if err != nil {
			warnings.Add(model.KindChapterFileMissing, mt.Href, "front matter unreadable: %v", err)
			continue
		}
		md, err := conv.Convert(data)
		if err != nil {
			warnings.Add(model.KindConversion, mt.Href, "front matter not converted: %v", err)
			log.Warn("front matter conversion failed", "href", mt.Href, "error", err)
			continue
		}

		kind := string(mt.Kind)
		if kind == "" {
			kind = "page"
		}
		rel := path.Join(FrontMatterDir, fmt.Sprintf("%02d-%s.md", len(out)+1, kind))
		if err := writeFile(filepath.Join(dir, filepath.FromSlash(rel)), []byte(md)); err != nil {
			warnings.Add(model.KindConversion, mt.Href, "front matter not written: %v", err)
			continue
		}
		out = append(out, manifest.FrontMatter{Kind: kind, Title: mt.Title, SourceFile: rel, SpineFile: mt.Href})
	}
	return out
}

// carryOver keeps the translation state a previous extraction recorded.
func carryOver(m, prev *manifest.Manifest) {
	if prev == nil {
		return
	}
	for lang, md := range prev.Translated {
		m.Translated[lang] = md
	}
	for i := range m.Chapters {
		ch := &m.Chapters[i]
		old, ok := prev.Chapter(ch.ID)
		if !ok || old.Title != ch.Title {
			continue
		}
		ch.TranslatedTitle = old.TranslatedTitle
		ch.TranslatedFile = old.TranslatedFile
		ch.TranslationStatus = old.TranslationStatus
		ch.QCStatus = old.QCStatus
	}
	for name, st := range prev.PipelineState {
		if _, ok := m.PipelineState[name]; !ok {
			m.PipelineState[name] = st
		}
	}
}
