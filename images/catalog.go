// Package images catalogs the image assets of a container.
//
// Every image is classified once through the publisher profile, given a
// role-normalized filename (cover.jpg, kuchie-001.jpg, ill-001.jpg) and
// recorded in spine order. The resulting rewrite map turns archive paths in
// chapter bodies into the normalized names.
package images

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/tsawler/epubkit/epubdoc"
	"github.com/tsawler/epubkit/format"
	"github.com/tsawler/epubkit/model"
	"github.com/tsawler/epubkit/profile"
)

// Source is the parsed container. *epubdoc.Reader satisfies it.
type Source interface {
	Spine() []model.SpineItem
	Images() []epubdoc.ManifestItem
	CoverHint() string
	ReadFile(name string) ([]byte, error)
}

// Options controls cataloging.
type Options struct {
	// ProbeAll probes the dimensions of every raster image instead of only
	// the color plates.
	ProbeAll bool

	Logger *slog.Logger
}

// Catalog is the classified image set of one volume.
type Catalog struct {
	Cover         *model.ImageRecord
	ColorPlates   []model.ImageRecord
	Illustrations []model.ImageRecord

	// Excluded lists the archive paths of glyph and decoration files.
	Excluded []string

	// Unmatched lists files no profile pattern matched, with the role they
	// were cataloged under.
	Unmatched []profile.Unmatched

	Warnings []model.Warning

	names map[string]string // archive path -> normalized filename
	src   Source
	log   *slog.Logger

	mu    sync.Mutex
	sizes map[string]size
}

type size struct {
	w, h int
	ok   bool
}

// Build classifies every image of src. It checks ctx between images.
func Build(ctx context.Context, src Source, cls *profile.Classifier, opts Options) (*Catalog, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	c := &Catalog{
		names: make(map[string]string),
		sizes: make(map[string]size),
		src:   src,
		log:   log,
	}
	if hint := src.CoverHint(); hint != "" {
		cls.SetCoverHint(hint)
	}

	var plates, ills int
	for _, p := range spineOrder(src) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		role := cls.Classify(p)
		if role == model.RoleUnknown {
			role = fallbackRole(p)
		}

		ext := extension(src, p)
		rec := model.ImageRecord{Original: p, Role: role}
		switch role {
		case model.RoleExcluded:
			c.Excluded = append(c.Excluded, p)
			log.Debug("image excluded", "path", p)
			continue
		case model.RoleCover:
			if c.Cover == nil {
				rec.Filename = "cover" + ext
				c.Cover = &rec
				c.names[p] = rec.Filename
				continue
			}
			// A second cover is kept as a plate.
			c.Warnings = append(c.Warnings, model.Warning{
				Kind: model.KindUnmatchedAsset, Path: p,
				Message: "more than one cover image; cataloged as color plate",
			})
			rec.Role = model.RoleColorPlate
			fallthrough
		case model.RoleColorPlate:
			plates++
			rec.Filename = fmt.Sprintf("kuchie-%03d%s", plates, ext)
			c.probe(&rec)
			c.ColorPlates = append(c.ColorPlates, rec)
		default:
			ills++
			rec.Role = model.RoleIllustration
			rec.Filename = fmt.Sprintf("ill-%03d%s", ills, ext)
			if opts.ProbeAll {
				c.probe(&rec)
			}
			c.Illustrations = append(c.Illustrations, rec)
		}
		c.names[p] = rec.Filename
	}

	c.Unmatched = cls.Unmatched()
	c.Warnings = append(cls.Warnings(), c.Warnings...)

	log.Info("images cataloged",
		"profile", cls.Profile().Name,
		"cover", c.Cover != nil,
		"color_plates", len(c.ColorPlates),
		"illustrations", len(c.Illustrations),
		"excluded", len(c.Excluded),
		"unmatched", len(c.Unmatched))
	return c, nil
}

// spineOrder lists image paths in the order the spine first references
// them, followed by the remaining manifest images in manifest order.
func spineOrder(src Source) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, item := range src.Spine() {
		for _, p := range item.Images {
			add(p)
		}
	}
	for _, item := range src.Images() {
		add(item.Path)
	}
	return out
}

// fallbackRole catalogs an unmatched file under its suggested role.
// Files without a suggestion are kept as illustrations.
func fallbackRole(p string) model.ImageRole {
	if r := profile.SuggestRole(p); r != model.RoleUnknown {
		return r
	}
	return model.RoleIllustration
}

// extension picks the normalized extension from the file content, falling
// back to the name.
func extension(src Source, p string) string {
	if data, err := src.ReadFile(p); err == nil {
		if f := format.DetectFromMagic(data); f.IsImage() {
			return f.Extension()
		}
	}
	if f := format.Detect(p); f.IsImage() {
		return f.Extension()
	}
	return path.Ext(p)
}

func (c *Catalog) probe(rec *model.ImageRecord) {
	if w, h, ok := c.Size(rec.Original); ok {
		rec.Width, rec.Height = w, h
		rec.Orientation = model.OrientationOf(w, h)
	}
}

// Size returns the pixel dimensions of an archive image, decoding only its
// header. Results are cached.
func (c *Catalog) Size(archivePath string) (int, int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sizes[archivePath]; ok {
		return s.w, s.h, s.ok
	}
	var s size
	if data, err := c.src.ReadFile(archivePath); err == nil {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			s = size{w: cfg.Width, h: cfg.Height, ok: true}
		} else {
			c.log.Debug("image header unreadable", "path", archivePath, "error", err)
		}
	}
	c.sizes[archivePath] = s
	return s.w, s.h, s.ok
}

// Name returns the normalized filename of an archive image, or "" when the
// image is excluded or unknown.
func (c *Catalog) Name(archivePath string) string {
	return c.names[archivePath]
}

// Names returns a copy of the rewrite map.
func (c *Catalog) Names() map[string]string {
	out := make(map[string]string, len(c.names))
	for k, v := range c.names {
		out[k] = v
	}
	return out
}

// Record returns the record of a normalized filename.
func (c *Catalog) Record(filename string) (model.ImageRecord, bool) {
	if c.Cover != nil && c.Cover.Filename == filename {
		return *c.Cover, true
	}
	for _, list := range [][]model.ImageRecord{c.ColorPlates, c.Illustrations} {
		for _, r := range list {
			if r.Filename == filename {
				return r, true
			}
		}
	}
	return model.ImageRecord{}, false
}

// Rewrite replaces archive paths in a chapter with normalized filenames.
// Illustration blocks of excluded images are removed.
func (c *Catalog) Rewrite(ch *model.Chapter) {
	body := ch.Body[:0]
	var ills []string
	seen := make(map[string]bool)
	for _, b := range ch.Body {
		ill, ok := b.(model.Illustration)
		if !ok {
			body = append(body, b)
			continue
		}
		name, known := c.names[ill.Filename]
		switch {
		case known:
			ill.Filename = name
		case c.isNormalized(ill.Filename):
		default:
			continue
		}
		body = append(body, ill)
		if !seen[ill.Filename] {
			seen[ill.Filename] = true
			ills = append(ills, ill.Filename)
		}
	}
	ch.Body = body
	ch.Illustrations = ills
}

func (c *Catalog) isNormalized(name string) bool {
	_, ok := c.Record(name)
	return ok
}

// Export writes every cataloged image into dir under its normalized name.
// It checks ctx between images and returns the number of files written.
func (c *Catalog) Export(ctx context.Context, dir string) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}
	var recs []model.ImageRecord
	if c.Cover != nil {
		recs = append(recs, *c.Cover)
	}
	recs = append(recs, c.ColorPlates...)
	recs = append(recs, c.Illustrations...)

	n := 0
	for _, r := range recs {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		data, err := c.src.ReadFile(r.Original)
		if err != nil {
			c.Warnings = append(c.Warnings, model.Warning{
				Kind: model.KindChapterFileMissing, Path: r.Original,
				Message: fmt.Sprintf("image unreadable: %v", err),
			})
			c.log.Warn("image unreadable", "path", r.Original, "error", err)
			continue
		}
		if err := os.WriteFile(filepath.Join(dir, r.Filename), data, 0o644); err != nil {
			return n, fmt.Errorf("writing %s: %w", r.Filename, err)
		}
		n++
	}
	return n, nil
}
