package epubdoc

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/tsawler/epubkit/format"
	"github.com/tsawler/epubkit/markup"
	"github.com/tsawler/epubkit/model"
)

// Reader-related errors.
var (
	ErrInvalidArchive  = errors.New("epub: invalid or corrupted archive")
	ErrInvalidMimetype = errors.New("epub: invalid mimetype (not an EPUB)")
	ErrMissingContent  = errors.New("epub: referenced content file not found")
)

// Reader provides access to a parsed container. A Reader is not safe for
// concurrent use.
type Reader struct {
	zr    *zip.ReadCloser
	files map[string]*zip.File
	names []string // archive order

	opts Options
	log  *slog.Logger

	pkg         *Package
	meta        model.Metadata
	opfPath     string
	contentRoot string

	spine     []model.SpineItem
	missing   []model.MissingSpineItem
	nav       []model.NavEntry
	navParsed bool
	navSource string

	warnings model.Warnings
}

// Open opens a container from a path.
func Open(filePath string, opts Options) (*Reader, error) {
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, model.NewError(model.KindContainerCorrupt, "open", filePath, fmt.Errorf("%w: %v", ErrInvalidArchive, err))
	}

	r := &Reader{zr: zr, opts: opts}
	if err := r.init(&zr.Reader); err != nil {
		zr.Close()
		return nil, err
	}

	return r, nil
}

// OpenReader opens a container from an io.ReaderAt.
func OpenReader(ra io.ReaderAt, size int64, opts Options) (*Reader, error) {
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, model.NewError(model.KindContainerCorrupt, "open", "", fmt.Errorf("%w: %v", ErrInvalidArchive, err))
	}

	r := &Reader{opts: opts}
	if err := r.init(zr); err != nil {
		return nil, err
	}

	return r, nil
}

// init parses the container structure and resolves the spine.
func (r *Reader) init(zr *zip.Reader) error {
	r.opts.defaults()
	r.log = r.opts.Logger

	r.files = make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		if _, dup := r.files[f.Name]; !dup {
			r.names = append(r.names, f.Name)
		}
		r.files[f.Name] = f
	}

	if err := r.validateMimetype(); err != nil {
		r.warnings.Add(model.KindContainerCorrupt, "mimetype", "%v", err)
	}

	if err := checkForDRM(zr); err != nil {
		return model.NewError(model.KindContainerCorrupt, "open", "META-INF", err)
	}

	opfPath, err := parseContainer(zr)
	if err != nil {
		fallback, ok := findPackageDocument(zr)
		if !ok {
			return model.NewError(model.KindStructureMissing, "container", "META-INF/container.xml", fmt.Errorf("%w: %v", ErrNoOPF, err))
		}
		r.warnings.Add(model.KindStructureMissing, "META-INF/container.xml", "%v; using %s", err, fallback)
		r.log.Warn("container.xml unusable, package document located by scan", "opf", fallback, "error", err)
		opfPath = fallback
	}

	pkg, meta, baseDir, err := parseOPF(zr, opfPath)
	if err != nil {
		return model.NewError(model.KindStructureMissing, "package", opfPath, err)
	}

	r.pkg = pkg
	r.meta = meta
	r.opfPath = opfPath
	r.contentRoot = baseDir

	return r.loadSpine()
}

// validateMimetype checks that the mimetype file is correct.
func (r *Reader) validateMimetype() error {
	data, err := r.ReadFile("mimetype")
	if err != nil {
		return ErrInvalidMimetype
	}
	if strings.TrimSpace(string(data)) != format.EPUB.MediaType() {
		return ErrInvalidMimetype
	}
	return nil
}

// loadSpine resolves every itemref through the manifest. Items whose idref
// is unknown or whose file is absent are skipped with a warning.
func (r *Reader) loadSpine() error {
	r.spine = make([]model.SpineItem, 0, len(r.pkg.Spine))

	for _, ref := range r.pkg.Spine {
		item, ok := r.pkg.Manifest[ref.IDRef]
		if !ok {
			r.warnings.Add(model.KindChapterFileMissing, ref.IDRef, "spine idref not in manifest")
			continue
		}

		f, ok := r.files[item.Path]
		if !ok {
			r.warnings.Add(model.KindChapterFileMissing, item.Path, "spine item %q has no archive member", item.ID)
			r.log.Warn("spine item missing", "id", item.ID, "href", item.Path)
			r.missing = append(r.missing, model.MissingSpineItem{
				ID: item.ID, Href: item.Path, Linear: ref.Linear, Index: len(r.spine),
			})
			continue
		}

		si := model.SpineItem{
			ID:         item.ID,
			Href:       item.Path,
			MediaType:  item.MediaType,
			Linear:     ref.Linear,
			Properties: mergeProperties(ref.Properties, item.Properties),
			Size:       int64(f.UncompressedSize64),
		}

		if format.DetectMediaType(item.MediaType) == format.XHTML || format.Detect(item.Path) == format.XHTML {
			r.inspectItem(&si)
		}

		r.spine = append(r.spine, si)
	}

	if len(r.spine) == 0 {
		return model.NewError(model.KindStructureMissing, "spine", r.opfPath, ErrEmptySpine)
	}

	return nil
}

// inspectItem records referenced images and applies the two-stage
// illustration-only test: a small file whose visible text is empty or nearly
// so once images are stripped.
func (r *Reader) inspectItem(si *model.SpineItem) {
	data, err := r.ReadFile(si.Href)
	if err != nil {
		return
	}
	stats, err := markup.Inspect(data, si.Href)
	if err != nil {
		r.log.Debug("content document unparsable", "href", si.Href, "error", err)
		return
	}
	si.Images = stats.Images

	if si.Size >= r.opts.IllustrationMaxBytes || len(stats.Images) == 0 {
		return
	}
	if stats.TextRunes <= r.opts.IllustrationMaxText {
		si.IsIllustrationOnly = true
	}
}

func mergeProperties(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]bool, len(a)+len(b))
	for _, p := range append(append([]string{}, a...), b...) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// resolveHref resolves a relative href against a base directory.
func resolveHref(baseDir, href string) string {
	if decoded, err := url.PathUnescape(href); err == nil {
		href = decoded
	}
	if baseDir == "" {
		return path.Clean(href)
	}
	return path.Join(baseDir, href)
}

// ReadFile reads an archive member by its full path.
func (r *Reader) ReadFile(name string) ([]byte, error) {
	f, ok := r.files[name]
	if !ok {
		return nil, model.NewError(model.KindChapterFileMissing, "read", name, ErrMissingContent)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, model.NewError(model.KindContainerCorrupt, "read", name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, model.NewError(model.KindContainerCorrupt, "read", name, err)
	}
	return data, nil
}

// Exists reports whether the archive has a member with the given path.
func (r *Reader) Exists(name string) bool {
	_, ok := r.files[name]
	return ok
}

// Files returns all archive member names in archive order.
func (r *Reader) Files() []string {
	return append([]string(nil), r.names...)
}

// Close closes the reader and releases resources.
func (r *Reader) Close() error {
	if r.zr != nil {
		return r.zr.Close()
	}
	return nil
}

// Package returns the parsed package document.
func (r *Reader) Package() *Package {
	return r.pkg
}

// PackagePath returns the archive path of the package document.
func (r *Reader) PackagePath() string {
	return r.opfPath
}

// ContentRoot returns the directory holding the package document, or "" if
// it sits at the archive root.
func (r *Reader) ContentRoot() string {
	return r.contentRoot
}

// Metadata returns the Dublin Core metadata.
func (r *Reader) Metadata() model.Metadata {
	return r.meta
}

// Spine returns the resolved reading order.
func (r *Reader) Spine() []model.SpineItem {
	return r.spine
}

// MissingSpine returns the spine entries dropped because their file is
// absent from the archive.
func (r *Reader) MissingSpine() []model.MissingSpineItem {
	return r.missing
}

// Navigation returns the table of contents tree. The result is empty, with
// a NavigationAbsent warning recorded, when the container carries neither a
// navigation document nor an NCX.
func (r *Reader) Navigation() []model.NavEntry {
	if !r.navParsed {
		r.navParsed = true
		r.nav = r.parseNavigation()
		if len(r.nav) == 0 {
			r.warnings.Add(model.KindNavigationAbsent, r.opfPath, "no table of contents found")
		}
	}
	return r.nav
}

// FlatNavigation returns the navigation entries in document order.
func (r *Reader) FlatNavigation() []model.NavEntry {
	return model.FlattenNav(r.Navigation())
}

// NavigationSource returns the archive path of the document navigation was
// read from, or "".
func (r *Reader) NavigationSource() string {
	r.Navigation()
	return r.navSource
}

// Images returns the manifest's image items in manifest order.
func (r *Reader) Images() []ManifestItem {
	var out []ManifestItem
	for _, id := range r.pkg.ManifestOrder {
		item := r.pkg.Manifest[id]
		f := format.DetectMediaType(item.MediaType)
		if f == format.Unknown {
			f = format.Detect(item.Path)
		}
		if f.IsImage() {
			out = append(out, item)
		}
	}
	return out
}

// CoverHint returns the archive path of the image the package declares as
// its cover, preferring the EPUB 3 cover-image property over the legacy meta.
func (r *Reader) CoverHint() string {
	for _, id := range r.pkg.ManifestOrder {
		if item := r.pkg.Manifest[id]; item.HasProperty("cover-image") {
			return item.Path
		}
	}
	if id := r.pkg.Metadata.CoverID; id != "" {
		if item, ok := r.pkg.Manifest[id]; ok {
			return item.Path
		}
	}
	return ""
}

// Warnings returns the non-fatal conditions recorded while parsing.
func (r *Reader) Warnings() []model.Warning {
	return append([]model.Warning(nil), r.warnings...)
}
