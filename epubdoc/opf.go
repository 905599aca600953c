package epubdoc

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"io"
	"path"
	"strings"
	"time"

	"github.com/tsawler/epubkit/model"
)

// OPF-related errors.
var (
	ErrNoOPF      = errors.New("epub: missing package document (OPF)")
	ErrInvalidOPF = errors.New("epub: invalid package document")
	ErrEmptySpine = errors.New("epub: no content in spine")
)

// opfPackage represents the OPF package document.
type opfPackage struct {
	XMLName  xml.Name    `xml:"package"`
	Version  string      `xml:"version,attr"`
	Metadata opfMetadata `xml:"metadata"`
	Manifest opfManifest `xml:"manifest"`
	Spine    opfSpine    `xml:"spine"`
}

type opfMetadata struct {
	Title       []dcElement `xml:"title"`
	Creator     []dcElement `xml:"creator"`
	Language    []dcElement `xml:"language"`
	Identifier  []dcElement `xml:"identifier"`
	Publisher   []dcElement `xml:"publisher"`
	Date        []dcElement `xml:"date"`
	Description []dcElement `xml:"description"`
	Subject     []dcElement `xml:"subject"`
	Rights      []dcElement `xml:"rights"`
	Meta        []opfMeta   `xml:"meta"`
}

type dcElement struct {
	ID      string `xml:"id,attr"`
	Content string `xml:",chardata"`
}

type opfMeta struct {
	Property string `xml:"property,attr"`
	Refines  string `xml:"refines,attr"`
	Name     string `xml:"name,attr"`    // EPUB 2 style
	Content  string `xml:"content,attr"` // EPUB 2 style
	Value    string `xml:",chardata"`    // EPUB 3 style
}

type opfManifest struct {
	Items []opfItem `xml:"item"`
}

type opfItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

type opfSpine struct {
	Toc      string       `xml:"toc,attr"` // NCX ID for EPUB 2
	ItemRefs []opfItemRef `xml:"itemref"`
}

type opfItemRef struct {
	IDRef      string `xml:"idref,attr"`
	Linear     string `xml:"linear,attr"`
	Properties string `xml:"properties,attr"`
}

// parseOPF parses the OPF file and returns the package, its metadata and the
// content root directory.
func parseOPF(zr *zip.Reader, opfPath string) (*Package, model.Metadata, string, error) {
	var opfFile *zip.File
	for _, f := range zr.File {
		if f.Name == opfPath {
			opfFile = f
			break
		}
	}

	if opfFile == nil {
		return nil, model.Metadata{}, "", ErrNoOPF
	}

	// Base directory for resolving relative paths
	baseDir := path.Dir(opfPath)
	if baseDir == "." {
		baseDir = ""
	}

	rc, err := opfFile.Open()
	if err != nil {
		return nil, model.Metadata{}, "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, model.Metadata{}, "", err
	}

	var opf opfPackage
	if err := xml.Unmarshal(data, &opf); err != nil {
		return nil, model.Metadata{}, "", ErrInvalidOPF
	}

	manifest, order := convertManifest(&opf.Manifest, baseDir)
	pkg := &Package{
		Version:       opf.Version,
		Manifest:      manifest,
		ManifestOrder: order,
		Spine:         convertSpine(&opf.Spine),
		SpineTOC:      opf.Spine.Toc,
	}
	for _, mt := range opf.Metadata.Meta {
		if mt.Name == "cover" && mt.Content != "" {
			pkg.Metadata.CoverID = mt.Content
		}
	}

	if len(pkg.Spine) == 0 {
		return nil, model.Metadata{}, "", ErrEmptySpine
	}

	return pkg, convertMetadata(&opf.Metadata), baseDir, nil
}

func firstDC(elems []dcElement) string {
	if len(elems) > 0 {
		return strings.TrimSpace(elems[0].Content)
	}
	return ""
}

func convertMetadata(m *opfMetadata) model.Metadata {
	meta := model.Metadata{
		Title:       firstDC(m.Title),
		Language:    firstDC(m.Language),
		Identifier:  firstDC(m.Identifier),
		Publisher:   firstDC(m.Publisher),
		Date:        firstDC(m.Date),
		Description: firstDC(m.Description),
		Rights:      firstDC(m.Rights),
	}

	for _, c := range m.Creator {
		if s := strings.TrimSpace(c.Content); s != "" {
			meta.Creators = append(meta.Creators, s)
		}
	}

	for _, s := range m.Subject {
		if subj := strings.TrimSpace(s.Content); subj != "" {
			meta.Subjects = append(meta.Subjects, subj)
		}
	}

	// Modified date (EPUB 3)
	for _, mt := range m.Meta {
		if mt.Property == "dcterms:modified" {
			if t, err := time.Parse(time.RFC3339, strings.TrimSpace(mt.Value)); err == nil {
				meta.Modified = t
			}
		}
	}

	return meta
}

func convertManifest(m *opfManifest, baseDir string) (map[string]ManifestItem, []string) {
	manifest := make(map[string]ManifestItem, len(m.Items))
	order := make([]string, 0, len(m.Items))

	for _, item := range m.Items {
		if item.ID == "" {
			continue
		}
		mi := ManifestItem{
			ID:        item.ID,
			Href:      item.Href,
			Path:      resolveHref(baseDir, item.Href),
			MediaType: item.MediaType,
		}
		if item.Properties != "" {
			mi.Properties = strings.Fields(item.Properties)
		}

		if _, dup := manifest[item.ID]; !dup {
			order = append(order, item.ID)
		}
		manifest[item.ID] = mi
	}

	return manifest, order
}

func convertSpine(s *opfSpine) []SpineRef {
	spine := make([]SpineRef, 0, len(s.ItemRefs))

	for _, ref := range s.ItemRefs {
		if ref.IDRef == "" {
			continue
		}
		si := SpineRef{
			IDRef:  ref.IDRef,
			Linear: strings.TrimSpace(ref.Linear) != "no", // Default is true
		}
		if ref.Properties != "" {
			si.Properties = strings.Fields(ref.Properties)
		}
		spine = append(spine, si)
	}

	return spine
}
