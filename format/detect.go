// Package format provides media-type detection for e-book container members.
package format

import (
	"archive/zip"
	"bytes"
	"io"
	"path"
	"strings"
)

// Format represents a container member format.
type Format int

const (
	// Unknown indicates an unrecognized format.
	Unknown Format = iota
	// XHTML indicates a content document.
	XHTML
	// CSS indicates a stylesheet.
	CSS
	// NCX indicates a legacy navigation index.
	NCX
	// OPF indicates a package document.
	OPF
	// JPEG indicates a JPEG image.
	JPEG
	// PNG indicates a PNG image.
	PNG
	// GIF indicates a GIF image.
	GIF
	// WebP indicates a WebP image.
	WebP
	// SVG indicates an SVG image.
	SVG
	// BMP indicates a BMP image.
	BMP
	// Font indicates an OpenType/TrueType/WOFF font.
	Font
	// EPUB indicates an e-book container archive.
	EPUB
)

// String returns the string representation of the format.
func (f Format) String() string {
	switch f {
	case XHTML:
		return "XHTML"
	case CSS:
		return "CSS"
	case NCX:
		return "NCX"
	case OPF:
		return "OPF"
	case JPEG:
		return "JPEG"
	case PNG:
		return "PNG"
	case GIF:
		return "GIF"
	case WebP:
		return "WebP"
	case SVG:
		return "SVG"
	case BMP:
		return "BMP"
	case Font:
		return "Font"
	case EPUB:
		return "EPUB"
	default:
		return "Unknown"
	}
}

// MediaType returns the media type written into package manifests.
func (f Format) MediaType() string {
	switch f {
	case XHTML:
		return "application/xhtml+xml"
	case CSS:
		return "text/css"
	case NCX:
		return "application/x-dtbncx+xml"
	case OPF:
		return "application/oebps-package+xml"
	case JPEG:
		return "image/jpeg"
	case PNG:
		return "image/png"
	case GIF:
		return "image/gif"
	case WebP:
		return "image/webp"
	case SVG:
		return "image/svg+xml"
	case BMP:
		return "image/bmp"
	case Font:
		return "font/otf"
	case EPUB:
		return "application/epub+zip"
	default:
		return "application/octet-stream"
	}
}

// Extension returns the canonical file extension for the format.
func (f Format) Extension() string {
	switch f {
	case XHTML:
		return ".xhtml"
	case CSS:
		return ".css"
	case NCX:
		return ".ncx"
	case OPF:
		return ".opf"
	case JPEG:
		return ".jpg"
	case PNG:
		return ".png"
	case GIF:
		return ".gif"
	case WebP:
		return ".webp"
	case SVG:
		return ".svg"
	case BMP:
		return ".bmp"
	case Font:
		return ".otf"
	case EPUB:
		return ".epub"
	default:
		return ""
	}
}

// IsImage reports whether the format is a raster or vector image.
func (f Format) IsImage() bool {
	switch f {
	case JPEG, PNG, GIF, WebP, SVG, BMP:
		return true
	}
	return false
}

// IsRaster reports whether the format is a raster image whose dimensions can
// be probed by decoding its header.
func (f Format) IsRaster() bool {
	switch f {
	case JPEG, PNG, GIF, WebP, BMP:
		return true
	}
	return false
}

// Detect determines the format from a filename extension.
func Detect(filename string) Format {
	ext := strings.ToLower(path.Ext(filename))
	switch ext {
	case ".xhtml", ".html", ".htm", ".xml":
		return XHTML
	case ".css":
		return CSS
	case ".ncx":
		return NCX
	case ".opf":
		return OPF
	case ".jpg", ".jpeg", ".jpe":
		return JPEG
	case ".png":
		return PNG
	case ".gif":
		return GIF
	case ".webp":
		return WebP
	case ".svg":
		return SVG
	case ".bmp":
		return BMP
	case ".otf", ".ttf", ".woff", ".woff2":
		return Font
	case ".epub":
		return EPUB
	default:
		return Unknown
	}
}

// DetectMediaType maps a manifest media-type attribute to a Format.
func DetectMediaType(mediaType string) Format {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	switch mt {
	case "application/xhtml+xml", "text/html":
		return XHTML
	case "text/css":
		return CSS
	case "application/x-dtbncx+xml":
		return NCX
	case "application/oebps-package+xml":
		return OPF
	case "image/jpeg", "image/jpg":
		return JPEG
	case "image/png":
		return PNG
	case "image/gif":
		return GIF
	case "image/webp":
		return WebP
	case "image/svg+xml":
		return SVG
	case "image/bmp":
		return BMP
	case "font/otf", "font/ttf", "font/woff", "font/woff2",
		"application/vnd.ms-opentype", "application/font-woff", "application/x-font-ttf":
		return Font
	case "application/epub+zip":
		return EPUB
	default:
		return Unknown
	}
}

// DetectFromMagic checks leading bytes to determine the format.
// Returns Unknown if the format cannot be determined from magic bytes alone.
func DetectFromMagic(data []byte) Format {
	if len(data) < 4 {
		return Unknown
	}

	switch {
	case data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return JPEG
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return PNG
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return GIF
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return WebP
	case data[0] == 'B' && data[1] == 'M':
		return BMP
	case data[0] == 0x50 && data[1] == 0x4B && data[2] == 0x03 && data[3] == 0x04:
		// Any ZIP archive; DetectFromReader distinguishes EPUB.
		return Unknown
	}

	if detectMarkupMagic(data) {
		head := strings.ToLower(string(data[:minInt(512, len(data))]))
		if strings.Contains(head, "<svg") {
			return SVG
		}
		return XHTML
	}

	return Unknown
}

// detectMarkupMagic checks if the data looks like XML or HTML content.
func detectMarkupMagic(data []byte) bool {
	data = bytes.TrimLeft(data, " \t\r\n\xef\xbb\xbf")
	if len(data) == 0 {
		return false
	}

	upper := strings.ToUpper(string(data[:minInt(64, len(data))]))
	return strings.HasPrefix(upper, "<!DOCTYPE") ||
		strings.HasPrefix(upper, "<HTML") ||
		strings.HasPrefix(upper, "<?XML") ||
		strings.HasPrefix(upper, "<SVG")
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// DetectFromReader inspects the content to determine the format. ZIP archives
// are reported as EPUB only when their mimetype member declares it.
func DetectFromReader(r io.ReaderAt, size int64) (Format, error) {
	magic := make([]byte, 512)
	n, err := r.ReadAt(magic, 0)
	if err != nil && err != io.EOF {
		return Unknown, err
	}
	magic = magic[:n]

	if len(magic) >= 4 && magic[0] == 0x50 && magic[1] == 0x4B && magic[2] == 0x03 && magic[3] == 0x04 {
		return detectZIPFormat(r, size)
	}

	return DetectFromMagic(magic), nil
}

// detectZIPFormat inspects a ZIP archive for the EPUB mimetype declaration.
func detectZIPFormat(r io.ReaderAt, size int64) (Format, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return Unknown, err
	}

	for _, f := range zr.File {
		if f.Name != "mimetype" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return Unknown, err
		}
		data := make([]byte, 64)
		n, _ := io.ReadFull(rc, data)
		rc.Close()
		if strings.TrimSpace(string(data[:n])) == "application/epub+zip" {
			return EPUB, nil
		}
		return Unknown, nil
	}

	// Some producers omit the mimetype member; a package document still
	// identifies the archive as a container.
	for _, f := range zr.File {
		if f.Name == "META-INF/container.xml" || strings.HasSuffix(strings.ToLower(f.Name), ".opf") {
			return EPUB, nil
		}
	}

	return Unknown, nil
}
