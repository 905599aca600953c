package assemble

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tsawler/epubkit/epubdoc"
	"github.com/tsawler/epubkit/format"
	"github.com/tsawler/epubkit/model"
)

const containerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
<rootfiles>
<rootfile full-path="` + oebps + "/" + opfName + `" media-type="application/oebps-package+xml"/>
</rootfiles>
</container>
`

func writeArchive(w io.Writer, files []File) error {
	zw := zip.NewWriter(w)

	mt, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		return err
	}
	if _, err := io.WriteString(mt, format.EPUB.MediaType()); err != nil {
		return err
	}

	all := append([]File{{Name: "META-INF/container.xml", Data: []byte(containerXML)}}, files...)
	for _, f := range all {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: f.Name, Method: zip.Deflate})
		if err != nil {
			return err
		}
		if _, err := fw.Write(f.Data); err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}
	}
	return zw.Close()
}

// Validate checks an archive against the container rules: the mimetype
// entry is first, stored, and exact; the container descriptor and package
// document exist; and the spine holds at least one linear content page.
// Failures are KindPackagingInvalid errors.
func Validate(data []byte) error {
	fail := func(path string, err error) error {
		return model.NewError(model.KindPackagingInvalid, "validate", path, err)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fail("", err)
	}
	if len(zr.File) == 0 {
		return fail("", errors.New("archive is empty"))
	}

	first := zr.File[0]
	if first.Name != "mimetype" {
		return fail(first.Name, errors.New("first entry is not mimetype"))
	}
	if first.Method != zip.Store {
		return fail("mimetype", errors.New("mimetype entry is compressed"))
	}
	rc, err := first.Open()
	if err != nil {
		return fail("mimetype", err)
	}
	mt, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return fail("mimetype", err)
	}
	if string(mt) != format.EPUB.MediaType() {
		return fail("mimetype", fmt.Errorf("content %q", mt))
	}

	var hasContainer bool
	for _, f := range zr.File {
		if f.Name == "META-INF/container.xml" {
			hasContainer = true
			break
		}
	}
	if !hasContainer {
		return fail("META-INF/container.xml", errors.New("container descriptor missing"))
	}

	r, err := epubdoc.OpenReader(bytes.NewReader(data), int64(len(data)), epubdoc.Options{})
	if err != nil {
		return fail("", err)
	}
	defer r.Close()

	for _, si := range r.Spine() {
		if si.Linear && format.DetectMediaType(si.MediaType) == format.XHTML && !strings.HasSuffix(si.Href, "/"+navHref) {
			return nil
		}
	}
	return fail(r.PackagePath(), errors.New("no content page in spine"))
}
