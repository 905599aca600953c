package format

import (
	"archive/zip"
	"bytes"
	"testing"
)

func TestFormat_String(t *testing.T) {
	tests := []struct {
		format Format
		want   string
	}{
		{XHTML, "XHTML"},
		{JPEG, "JPEG"},
		{WebP, "WebP"},
		{EPUB, "EPUB"},
		{Unknown, "Unknown"},
		{Format(99), "Unknown"},
	}

	for _, tt := range tests {
		if got := tt.format.String(); got != tt.want {
			t.Errorf("Format(%d).String() = %q, want %q", tt.format, got, tt.want)
		}
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		filename string
		want     Format
	}{
		{"OEBPS/Text/p-001.xhtml", XHTML},
		{"item/xhtml/p-cover.html", XHTML},
		{"Images/Cover.JPG", JPEG},
		{"image/i-003.jpeg", JPEG},
		{"image/k-001.png", PNG},
		{"image/gaiji-01.gif", GIF},
		{"image/p000a.webp", WebP},
		{"Styles/style.css", CSS},
		{"toc.ncx", NCX},
		{"standard.opf", OPF},
		{"fonts/a.woff2", Font},
		{"README", Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			if got := Detect(tt.filename); got != tt.want {
				t.Errorf("Detect(%q) = %v, want %v", tt.filename, got, tt.want)
			}
		})
	}
}

func TestDetectMediaType(t *testing.T) {
	tests := []struct {
		mediaType string
		want      Format
	}{
		{"application/xhtml+xml", XHTML},
		{"image/jpeg", JPEG},
		{"IMAGE/PNG", PNG},
		{"image/svg+xml", SVG},
		{"application/x-dtbncx+xml", NCX},
		{"text/css; charset=utf-8", CSS},
		{"application/pdf", Unknown},
	}

	for _, tt := range tests {
		if got := DetectMediaType(tt.mediaType); got != tt.want {
			t.Errorf("DetectMediaType(%q) = %v, want %v", tt.mediaType, got, tt.want)
		}
	}
}

func TestDetectFromMagic(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Format
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0}, JPEG},
		{"png", []byte("\x89PNG\r\n\x1a\n...."), PNG},
		{"gif", []byte("GIF89a...."), GIF},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), WebP},
		{"xhtml", []byte("<?xml version=\"1.0\"?>\n<html>"), XHTML},
		{"svg", []byte("<svg xmlns=\"http://www.w3.org/2000/svg\">"), SVG},
		{"zip", []byte{0x50, 0x4B, 0x03, 0x04}, Unknown},
		{"short", []byte{0xFF}, Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFromMagic(tt.data); got != tt.want {
				t.Errorf("DetectFromMagic() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetectFromReader_EPUB(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	mw, err := w.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		t.Fatal(err)
	}
	mw.Write([]byte("application/epub+zip"))
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	got, err := DetectFromReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	if got != EPUB {
		t.Errorf("DetectFromReader() = %v, want EPUB", got)
	}
}

func TestFormat_MediaTypeRoundTrip(t *testing.T) {
	for _, f := range []Format{XHTML, CSS, NCX, JPEG, PNG, GIF, WebP, SVG} {
		if got := DetectMediaType(f.MediaType()); got != f {
			t.Errorf("DetectMediaType(%q) = %v, want %v", f.MediaType(), got, f)
		}
		if got := Detect("x" + f.Extension()); got != f {
			t.Errorf("Detect(x%s) = %v, want %v", f.Extension(), got, f)
		}
	}
}
