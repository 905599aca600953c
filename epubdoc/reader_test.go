package epubdoc

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/tsawler/epubkit/internal/epubtest"
	"github.com/tsawler/epubkit/model"
)

func openBytes(t *testing.T, data []byte) *Reader {
	t.Helper()
	r, err := OpenReader(bytes.NewReader(data), int64(len(data)), Options{})
	if err != nil {
		t.Fatalf("OpenReader failed: %v", err)
	}
	return r
}

func sampleBook() *epubtest.Builder {
	return epubtest.New().
		XHTML("cover", "Text/cover.xhtml", `<div><img src="../Images/cover.png" alt=""/></div>`).
		XHTML("p1", "Text/p-001.xhtml", `<h1>第一章</h1><p>本文です。`+strings.Repeat("あ", 40)+`</p>`).
		XHTML("p2", "Text/p-002.xhtml", `<h1>第二章</h1><p>続きです。</p>`).
		NonLinear("colophon", "Text/colophon.xhtml", `<p>奥付</p>`).
		ImageProps("img-cover", "Images/cover.png", 30, 40, "cover-image").
		Image("img-k1", "Images/k-001.png", 40, 30).
		Nav("表紙", "Text/cover.xhtml").
		Nav("第一章", "Text/p-001.xhtml").
		Nav("第二章", "Text/p-002.xhtml#sec")
}

// ============================================================================
// Open / structure
// ============================================================================

func TestOpen(t *testing.T) {
	path := sampleBook().Write(t, t.TempDir())

	r, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	if got := len(r.Spine()); got != 4 {
		t.Errorf("len(Spine) = %d, want 4", got)
	}
	if r.ContentRoot() != "OEBPS" {
		t.Errorf("ContentRoot = %q, want OEBPS", r.ContentRoot())
	}
	if r.PackagePath() != "OEBPS/content.opf" {
		t.Errorf("PackagePath = %q", r.PackagePath())
	}
	if len(r.Warnings()) != 0 {
		t.Errorf("unexpected warnings: %v", r.Warnings())
	}
}

func TestMetadata(t *testing.T) {
	r := openBytes(t, sampleBook().Bytes(t))

	meta := r.Metadata()
	if meta.Title != "Test Book" {
		t.Errorf("Title = %q, want %q", meta.Title, "Test Book")
	}
	if len(meta.Creators) != 1 || meta.Creators[0] != "Test Author" {
		t.Errorf("Creators = %v, want [Test Author]", meta.Creators)
	}
	if meta.Language != "ja" {
		t.Errorf("Language = %q, want ja", meta.Language)
	}
	if meta.Publisher != "Test Publisher" {
		t.Errorf("Publisher = %q", meta.Publisher)
	}
	if meta.Modified.IsZero() {
		t.Error("Modified should be parsed from dcterms:modified")
	}
}

func TestSpine_ResolvesThroughManifest(t *testing.T) {
	r := openBytes(t, sampleBook().Bytes(t))
	spine := r.Spine()

	want := []struct {
		id, href string
		linear   bool
	}{
		{"cover", "OEBPS/Text/cover.xhtml", true},
		{"p1", "OEBPS/Text/p-001.xhtml", true},
		{"p2", "OEBPS/Text/p-002.xhtml", true},
		{"colophon", "OEBPS/Text/colophon.xhtml", false},
	}
	for i, w := range want {
		if spine[i].ID != w.id || spine[i].Href != w.href || spine[i].Linear != w.linear {
			t.Errorf("spine[%d] = {%s %s %v}, want {%s %s %v}",
				i, spine[i].ID, spine[i].Href, spine[i].Linear, w.id, w.href, w.linear)
		}
		if spine[i].Size == 0 {
			t.Errorf("spine[%d].Size = 0", i)
		}
	}
}

func TestSpine_IllustrationOnly(t *testing.T) {
	r := openBytes(t, sampleBook().Bytes(t))
	spine := r.Spine()

	if !spine[0].IsIllustrationOnly {
		t.Error("cover page should be illustration-only")
	}
	if len(spine[0].Images) != 1 || spine[0].Images[0] != "OEBPS/Images/cover.png" {
		t.Errorf("cover Images = %v", spine[0].Images)
	}
	for _, si := range spine[1:] {
		if si.IsIllustrationOnly {
			t.Errorf("%s should not be illustration-only", si.ID)
		}
	}
}

func TestSpine_IllustrationOnlyRequiresSmallFile(t *testing.T) {
	body := `<img src="../Images/k-001.png"/><!--` + strings.Repeat("x", 12*1024) + `-->`
	data := epubtest.New().
		XHTML("big", "Text/big.xhtml", body).
		Image("k", "Images/k-001.png", 10, 10).
		Bytes(t)

	r := openBytes(t, data)
	if r.Spine()[0].IsIllustrationOnly {
		t.Error("file above the size limit must not be illustration-only")
	}
}

func TestSpine_TextWithImageIsProse(t *testing.T) {
	data := epubtest.New().
		XHTML("p", "Text/p.xhtml", `<img src="../Images/a.png"/><p>彼女は笑った。</p>`).
		Image("a", "Images/a.png", 10, 10).
		Bytes(t)

	r := openBytes(t, data)
	if r.Spine()[0].IsIllustrationOnly {
		t.Error("page with prose must not be illustration-only")
	}
}

func TestSpine_MissingFileWarns(t *testing.T) {
	data := epubtest.New().
		XHTML("p1", "Text/p1.xhtml", "<p>a</p>").
		Missing("gone", "Text/gone.xhtml").
		Bytes(t)

	r := openBytes(t, data)
	if len(r.Spine()) != 1 {
		t.Fatalf("len(Spine) = %d, want 1", len(r.Spine()))
	}
	ws := model.Warnings(r.Warnings())
	if ws.Count(model.KindChapterFileMissing) != 1 {
		t.Errorf("warnings = %v, want one ChapterFileMissing", ws)
	}
	want := []model.MissingSpineItem{{ID: "gone", Href: "OEBPS/Text/gone.xhtml", Linear: true, Index: 1}}
	if got := r.MissingSpine(); !reflect.DeepEqual(got, want) {
		t.Errorf("MissingSpine = %+v, want %+v", got, want)
	}
}

func TestSpine_EmptyIsStructureMissing(t *testing.T) {
	data := epubtest.New().Image("a", "Images/a.png", 4, 4).Bytes(t)

	_, err := OpenReader(bytes.NewReader(data), int64(len(data)), Options{})
	if !errors.Is(err, model.ErrStructureMissing) {
		t.Fatalf("err = %v, want StructureMissing", err)
	}
}

func TestOpen_WithoutContainerXML(t *testing.T) {
	b := sampleBook()
	b.OmitContainer = true

	r := openBytes(t, b.Bytes(t))
	if r.PackagePath() != "OEBPS/content.opf" {
		t.Errorf("PackagePath = %q", r.PackagePath())
	}
	if model.Warnings(r.Warnings()).Count(model.KindStructureMissing) != 1 {
		t.Errorf("expected a warning about container.xml, got %v", r.Warnings())
	}
}

func TestOpen_RootLevelPackage(t *testing.T) {
	b := sampleBook()
	b.Root = ""
	r := openBytes(t, b.Bytes(t))

	if r.ContentRoot() != "" {
		t.Errorf("ContentRoot = %q, want empty", r.ContentRoot())
	}
	if got := r.Spine()[1].Href; got != "Text/p-001.xhtml" {
		t.Errorf("Href = %q", got)
	}
}

func TestOpen_NoPackageDocument(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, _ := w.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	fw.Write([]byte("application/epub+zip"))
	w.Close()

	_, err := OpenReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()), Options{})
	if !errors.Is(err, model.ErrStructureMissing) {
		t.Errorf("err = %v, want StructureMissing", err)
	}
}

func TestInvalidEPUB(t *testing.T) {
	_, err := Open("/nonexistent/file.epub", Options{})
	if err == nil {
		t.Error("Expected error for non-existent file")
	}

	tmpDir := t.TempDir()
	invalidPath := filepath.Join(tmpDir, "invalid.epub")
	os.WriteFile(invalidPath, []byte("not a zip file"), 0644)

	_, err = Open(invalidPath, Options{})
	if !errors.Is(err, ErrInvalidArchive) {
		t.Errorf("Expected ErrInvalidArchive, got: %v", err)
	}
	if model.KindOf(err) != model.KindContainerCorrupt {
		t.Errorf("KindOf = %v, want ContainerCorrupt", model.KindOf(err))
	}
}

func TestMissingMimetypeWarns(t *testing.T) {
	b := sampleBook()
	b.OmitMimetype = true
	r := openBytes(t, b.Bytes(t))

	if len(r.Warnings()) == 0 {
		t.Error("expected mimetype warning")
	}
}

// ============================================================================
// DRM
// ============================================================================

func TestDRMRejection(t *testing.T) {
	tests := []struct {
		name   string
		member string
		body   string
		reject bool
	}{
		{
			name:   "rights",
			member: "META-INF/rights.xml",
			body:   `<rights xmlns="http://ns.adobe.com/adept"><encryptedKey>...</encryptedKey></rights>`,
			reject: true,
		},
		{
			name:   "encrypted content",
			member: "META-INF/encryption.xml",
			body: `<encryption xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <EncryptedData xmlns="http://www.w3.org/2001/04/xmlenc#">
    <EncryptionMethod Algorithm="http://www.w3.org/2001/04/xmlenc#aes256-cbc"/>
    <CipherData><CipherReference URI="OEBPS/Text/p-001.xhtml"/></CipherData>
  </EncryptedData>
</encryption>`,
			reject: true,
		},
		{
			name:   "font obfuscation",
			member: "META-INF/encryption.xml",
			body: `<encryption xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <EncryptedData xmlns="http://www.w3.org/2001/04/xmlenc#">
    <EncryptionMethod Algorithm="http://www.idpf.org/2008/embedding#obfuscation"/>
    <CipherData><CipherReference URI="OEBPS/Fonts/a.otf"/></CipherData>
  </EncryptedData>
</encryption>`,
			reject: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := sampleBook().File(tt.member, []byte(tt.body)).Bytes(t)
			_, err := OpenReader(bytes.NewReader(data), int64(len(data)), Options{})
			if tt.reject {
				if !errors.Is(err, ErrDRMProtected) {
					t.Fatalf("err = %v, want ErrDRMProtected", err)
				}
				if !errors.Is(err, model.ErrContainerCorrupt) {
					t.Errorf("err = %v, want ContainerCorrupt kind", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

// ============================================================================
// Navigation
// ============================================================================

func TestNavigation_NavDocument(t *testing.T) {
	r := openBytes(t, sampleBook().Bytes(t))

	nav := r.FlatNavigation()
	if len(nav) != 3 {
		t.Fatalf("len(nav) = %d, want 3", len(nav))
	}
	if nav[1].Label != "第一章" || nav[1].Href != "OEBPS/Text/p-001.xhtml" || nav[1].Level != 1 {
		t.Errorf("nav[1] = %+v", nav[1])
	}
	if nav[2].Href != "OEBPS/Text/p-002.xhtml" || nav[2].Fragment != "sec" {
		t.Errorf("nav[2] = %+v, want fragment split off", nav[2])
	}
	if r.NavigationSource() != "OEBPS/nav.xhtml" {
		t.Errorf("NavigationSource = %q", r.NavigationSource())
	}
}

func TestNavigation_NCX(t *testing.T) {
	b := sampleBook()
	b.NavFormat = "ncx"
	r := openBytes(t, b.Bytes(t))

	nav := r.FlatNavigation()
	if len(nav) != 3 {
		t.Fatalf("len(nav) = %d, want 3", len(nav))
	}
	if nav[0].Label != "表紙" || nav[0].Href != "OEBPS/Text/cover.xhtml" {
		t.Errorf("nav[0] = %+v", nav[0])
	}
}

func TestNavigation_Absent(t *testing.T) {
	b := sampleBook()
	b.NavFormat = ""
	r := openBytes(t, b.Bytes(t))

	if nav := r.Navigation(); len(nav) != 0 {
		t.Errorf("Navigation = %v, want empty", nav)
	}
	if model.Warnings(r.Warnings()).Count(model.KindNavigationAbsent) != 1 {
		t.Errorf("expected NavigationAbsent warning, got %v", r.Warnings())
	}
}

func TestParseNavXHTML_Nested(t *testing.T) {
	doc := []byte(`<html xmlns:epub="http://www.idpf.org/2007/ops"><body>
<nav epub:type="landmarks"><ol><li><a href="x.xhtml">skip</a></li></ol></nav>
<nav epub:type="toc"><ol>
  <li><a href="../Text/part1.xhtml">第一部</a>
    <ol>
      <li><a href="../Text/c1.xhtml"><ruby>序<rt>じょ</rt></ruby>章</a></li>
      <li><a href="../Text/c2.xhtml#p3">第二章</a></li>
    </ol>
  </li>
  <li><span>あとがき</span></li>
</ol></nav></body></html>`)

	entries, err := parseNavXHTML(doc, "OEBPS/nav")
	if err != nil {
		t.Fatal(err)
	}
	flat := model.FlattenNav(entries)

	want := []model.NavEntry{
		{Label: "第一部", Href: "OEBPS/Text/part1.xhtml", Level: 1},
		{Label: "序章", Href: "OEBPS/Text/c1.xhtml", Level: 2},
		{Label: "第二章", Href: "OEBPS/Text/c2.xhtml", Fragment: "p3", Level: 2},
		{Label: "あとがき", Level: 1},
	}
	if len(flat) != len(want) {
		t.Fatalf("len = %d, want %d: %+v", len(flat), len(want), flat)
	}
	for i := range want {
		if flat[i].Label != want[i].Label || flat[i].Href != want[i].Href ||
			flat[i].Fragment != want[i].Fragment || flat[i].Level != want[i].Level {
			t.Errorf("flat[%d] = %+v, want %+v", i, flat[i], want[i])
		}
	}
}

// ============================================================================
// Images / cover hints
// ============================================================================

func TestImagesAndCoverHint(t *testing.T) {
	r := openBytes(t, sampleBook().Bytes(t))

	imgs := r.Images()
	if len(imgs) != 2 {
		t.Fatalf("len(Images) = %d, want 2", len(imgs))
	}
	if imgs[0].Path != "OEBPS/Images/cover.png" || imgs[1].Path != "OEBPS/Images/k-001.png" {
		t.Errorf("Images order = %s, %s", imgs[0].Path, imgs[1].Path)
	}
	if got := r.CoverHint(); got != "OEBPS/Images/cover.png" {
		t.Errorf("CoverHint = %q", got)
	}
}

func TestCoverHint_LegacyMeta(t *testing.T) {
	b := epubtest.New().
		XHTML("p", "p.xhtml", "<p>x</p>").
		Image("k1", "i/k-001.png", 4, 4).
		Image("c", "i/front.png", 4, 4)
	b.CoverMetaID = "c"
	r := openBytes(t, b.Bytes(t))

	if got := r.CoverHint(); got != "OEBPS/i/front.png" {
		t.Errorf("CoverHint = %q", got)
	}
}

func TestResolveHref(t *testing.T) {
	tests := []struct {
		base, href, want string
	}{
		{"OEBPS", "Text/a.xhtml", "OEBPS/Text/a.xhtml"},
		{"OEBPS/Text", "../Images/a%20b.png", "OEBPS/Images/a b.png"},
		{"", "a.xhtml", "a.xhtml"},
		{"item", "./xhtml/p-001.xhtml", "item/xhtml/p-001.xhtml"},
	}
	for _, tt := range tests {
		if got := resolveHref(tt.base, tt.href); got != tt.want {
			t.Errorf("resolveHref(%q, %q) = %q, want %q", tt.base, tt.href, got, tt.want)
		}
	}
}
