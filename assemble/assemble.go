// Package assemble builds a reflowable container from chapters, images, and
// metadata.
//
// Assembly happens in memory. The archive is validated before anything
// touches the destination path, and the destination is replaced atomically,
// so a failed build never leaves a partial file behind.
package assemble

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tsawler/epubkit/format"
	"github.com/tsawler/epubkit/internal/atomicfile"
	"github.com/tsawler/epubkit/markup"
	"github.com/tsawler/epubkit/model"
)

// ErrNoChapters is returned when a book has nothing to put in the spine.
var ErrNoChapters = errors.New("book has no chapters")

// Book is the input to assembly.
type Book struct {
	Metadata model.Metadata
	Chapters []Chapter
	Images   []Image

	// TOCTitle heads the visual table of contents. Default "Contents".
	TOCTitle string
}

// Chapter is one content page. Parts after the first of a split chapter
// carry no title heading and no navigation entry of their own.
type Chapter struct {
	ID            string
	Title         string
	Level         int
	Part          int
	Body          []model.Block
	IsFrontMatter bool
}

// Image is an image file to package under its normalized name.
type Image struct {
	Filename string
	Role     model.ImageRole
	Width    int
	Height   int
	Data     []byte
}

func (img Image) landscape() bool {
	return model.OrientationOf(img.Width, img.Height) == model.Landscape
}

// Options controls assembly.
type Options struct {
	Profile     markup.Profile
	Vertical    bool
	SmartQuotes bool

	// Stylesheet replaces the default stylesheet when non-empty.
	Stylesheet []byte

	// Modified is written as the package modification time. Default now.
	Modified time.Time

	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Modified.IsZero() {
		o.Modified = time.Now()
	}
	o.Modified = o.Modified.UTC().Truncate(time.Second)
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if len(o.Stylesheet) == 0 {
		o.Stylesheet = defaultStylesheet
	}
}

// File is one archive member.
type File struct {
	Name string
	Data []byte
}

// Package is an assembled, not yet archived, container.
type Package struct {
	Files    []File
	Cover    string // cover image filename, empty if none
	Warnings []model.Warning
}

// Result describes a written container.
type Result struct {
	Path     string
	Size     int
	Chapters int
	Images   int
	Cover    string
	Warnings []model.Warning
}

// Content locations inside the archive.
const (
	oebps     = "OEBPS"
	textDir   = "Text"
	imageDir  = "Images"
	styleDir  = "Styles"
	styleHref = styleDir + "/style.css"
	opfName   = "content.opf"
	navHref   = "nav.xhtml"
	ncxHref   = "toc.ncx"
	coverHref = textDir + "/cover.xhtml"
	tocHref   = textDir + "/toc.xhtml"
)

// Write assembles b, validates the archive, and atomically writes it to
// dest.
func Write(ctx context.Context, b *Book, dest string, opts Options) (*Result, error) {
	opts.defaults()
	pkg, err := Assemble(ctx, b, opts)
	if err != nil {
		return nil, err
	}
	data, err := pkg.Archive()
	if err != nil {
		return nil, model.NewError(model.KindPackagingInvalid, "archive", dest, err)
	}
	if err := Validate(data); err != nil {
		return nil, err
	}
	if err := atomicfile.WriteFile(dest, data, 0o644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", dest, err)
	}

	res := &Result{
		Path:     dest,
		Size:     len(data),
		Chapters: len(b.Chapters),
		Images:   len(b.Images),
		Cover:    pkg.Cover,
		Warnings: pkg.Warnings,
	}
	opts.Logger.Info("container written", "path", dest, "bytes", res.Size, "chapters", res.Chapters, "images", res.Images)
	return res, nil
}

// Assemble renders every document of the container.
func Assemble(ctx context.Context, b *Book, opts Options) (*Package, error) {
	opts.defaults()
	if len(b.Chapters) == 0 {
		return nil, model.NewError(model.KindPackagingInvalid, "assemble", "", ErrNoChapters)
	}

	a := &assembler{
		book: b,
		opts: opts,
		meta: b.Metadata,
		log:  opts.Logger,
	}
	if a.meta.Language == "" {
		a.meta.Language = "en"
	}
	if a.meta.Identifier == "" {
		a.meta.Identifier = Identifier(a.meta)
	}
	a.build = markup.BuildOptions{
		Profile:     opts.Profile,
		Language:    a.meta.Language,
		Stylesheet:  "../" + styleHref,
		SmartQuotes: opts.SmartQuotes,
		Vertical:    opts.Vertical,
		ImagePath: func(filename string) string {
			return "../" + imageDir + "/" + path.Base(filename)
		},
	}

	if err := a.run(ctx); err != nil {
		return nil, err
	}
	return &Package{Files: a.files, Cover: a.coverName(), Warnings: a.warnings}, nil
}

// Identifier derives a stable identifier from the metadata when the source
// had none. The same title, creators, and language always give the same
// identifier.
func Identifier(m model.Metadata) string {
	key := strings.Join([]string{m.Title, strings.Join(m.Creators, ","), m.Language}, "\x1f")
	return "urn:uuid:" + uuid.NewSHA1(uuid.NameSpaceURL, []byte("epubkit:"+key)).String()
}

// item is a manifest entry of the package document.
type item struct {
	id         string
	href       string // relative to the package document
	mediaType  string
	properties string
}

// page is a spine entry.
type page struct {
	item
	title  string
	linear bool
}

type assembler struct {
	book  *Book
	opts  Options
	meta  model.Metadata
	build markup.BuildOptions
	log   *slog.Logger

	cover    *Image
	images   map[string]bool
	items    []item
	spine    []page
	chapters []page // chapter pages, parallel to book.Chapters
	files    []File
	warnings model.Warnings
}

func (a *assembler) coverName() string {
	if a.cover == nil {
		return ""
	}
	return a.cover.Filename
}

func (a *assembler) add(name string, data []byte) {
	a.files = append(a.files, File{Name: oebps + "/" + name, Data: data})
}

func (a *assembler) run(ctx context.Context) error {
	a.add(styleHref, a.opts.Stylesheet)
	a.items = append(a.items, item{id: "style", href: styleHref, mediaType: format.CSS.MediaType()})

	if err := a.addImages(ctx); err != nil {
		return err
	}

	if a.cover != nil {
		a.addPage(page{item: item{id: "cover-page", href: coverHref}, title: a.meta.Title}, a.coverPage(), a.coverUsesSVG())
	}
	for _, img := range a.plates() {
		id := "plate-" + sanitizeID(stem(img.Filename))
		a.addPage(page{item: item{id: id, href: textDir + "/" + stem(img.Filename) + ".xhtml"}, linear: true},
			a.platePage(img), img.landscape() && img.Width > 0)
	}

	// Chapter pages are rendered first so the table of contents can link
	// them, but they go to the spine after it.
	chapterFiles := make([]File, 0, len(a.book.Chapters))
	seen := make(map[string]bool)
	for _, ch := range a.book.Chapters {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := sanitizeID(ch.ID)
		if name == "" || seen[name] {
			return model.NewError(model.KindPackagingInvalid, "assemble", ch.ID, errors.New("chapter id empty or duplicated"))
		}
		seen[name] = true
		a.checkIllustrations(ch)

		title := ch.Title
		if ch.Part > 1 {
			title = ""
		}
		p := page{item: item{id: name, href: textDir + "/" + name + ".xhtml"}, title: ch.Title, linear: true}
		a.chapters = append(a.chapters, p)
		chapterFiles = append(chapterFiles, File{Name: p.href, Data: markup.Build(title, ch.Body, a.build)})
	}

	a.addPage(page{item: item{id: "toc-page", href: tocHref}, title: a.tocTitle(), linear: true}, a.tocPage(), false)
	for i, p := range a.chapters {
		a.addPage(p, chapterFiles[i].Data, false)
	}

	if a.opts.Profile == markup.Modern {
		a.add(navHref, a.navDocument())
		a.items = append(a.items, item{id: "nav", href: navHref, mediaType: format.XHTML.MediaType(), properties: "nav"})
	}
	a.add(ncxHref, a.ncxDocument())
	a.items = append(a.items, item{id: "ncx", href: ncxHref, mediaType: format.NCX.MediaType()})

	a.add(opfName, a.packageDocument())

	a.log.Debug("container assembled", "files", len(a.files), "spine", len(a.spine), "cover", a.coverName())
	return nil
}

// addPage adds an XHTML page to the files, the manifest, and the spine.
func (a *assembler) addPage(p page, data []byte, svg bool) {
	p.mediaType = format.XHTML.MediaType()
	if svg && a.opts.Profile == markup.Modern {
		p.properties = "svg"
	}
	a.add(p.href, data)
	a.items = append(a.items, p.item)
	a.spine = append(a.spine, p)
}

func (a *assembler) addImages(ctx context.Context) error {
	a.images = make(map[string]bool, len(a.book.Images))
	a.cover = SelectCover(a.book.Images)

	for i := range a.book.Images {
		if err := ctx.Err(); err != nil {
			return err
		}
		img := &a.book.Images[i]
		name := path.Base(img.Filename)
		if a.images[name] {
			a.warnings.Add(model.KindUnmatchedAsset, name, "duplicate image filename")
			continue
		}
		a.images[name] = true

		f := format.DetectFromMagic(img.Data)
		if !f.IsImage() {
			f = format.Detect(name)
		}
		if !f.IsImage() {
			a.warnings.Add(model.KindUnmatchedAsset, name, "unrecognized image format")
			f = format.JPEG
		}

		it := item{id: imageItemID(name), href: imageDir + "/" + name, mediaType: f.MediaType()}
		if a.cover == img && a.opts.Profile == markup.Modern {
			it.properties = "cover-image"
		}
		a.items = append(a.items, it)
		a.add(it.href, img.Data)
	}
	return nil
}

// plates returns the color plates in order, leaving out a plate promoted
// to cover.
func (a *assembler) plates() []*Image {
	var out []*Image
	for i := range a.book.Images {
		img := &a.book.Images[i]
		if img.Role == model.RoleColorPlate && img != a.cover {
			out = append(out, img)
		}
	}
	return out
}

func (a *assembler) checkIllustrations(ch Chapter) {
	for _, b := range ch.Body {
		ill, ok := b.(model.Illustration)
		if !ok {
			continue
		}
		if !a.images[path.Base(ill.Filename)] {
			a.warnings.Add(model.KindUnmatchedAsset, ill.Filename, "chapter %s references an image that is not packaged", ch.ID)
		}
	}
}

func (a *assembler) tocTitle() string {
	if a.book.TOCTitle != "" {
		return a.book.TOCTitle
	}
	return "Contents"
}

// imageItemID returns the manifest id of a packaged image.
func imageItemID(filename string) string {
	return "img-" + sanitizeID(stem(path.Base(filename)))
}

func stem(name string) string {
	name = path.Base(name)
	return strings.TrimSuffix(name, path.Ext(name))
}

// sanitizeID makes s usable as an XML id: letters, digits, '-', '_' and
// '.', starting with a letter or underscore.
func sanitizeID(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	out := sb.String()
	if out != "" && !(out[0] >= 'a' && out[0] <= 'z' || out[0] >= 'A' && out[0] <= 'Z' || out[0] == '_') {
		out = "x" + out
	}
	return out
}

// Archive zips the package. The mimetype entry comes first and is stored
// uncompressed; everything else is deflated.
func (p *Package) Archive() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeArchive(&buf, p.Files); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
