package images

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/tsawler/epubkit/epubdoc"
	"github.com/tsawler/epubkit/internal/epubtest"
	"github.com/tsawler/epubkit/model"
	"github.com/tsawler/epubkit/profile"
)

func open(t *testing.T, b *epubtest.Builder) *epubdoc.Reader {
	t.Helper()
	data := b.Bytes(t)
	r, err := epubdoc.OpenReader(bytes.NewReader(data), int64(len(data)), epubdoc.Options{})
	if err != nil {
		t.Fatalf("OpenReader failed: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func classifier(t *testing.T, name string) *profile.Classifier {
	t.Helper()
	store, err := profile.Load("", nil)
	if err != nil {
		t.Fatalf("profile.Load failed: %v", err)
	}
	p, ok := store.Get(name)
	if !ok {
		t.Fatalf("profile %s not found", name)
	}
	return profile.NewClassifier(p)
}

func imgPage(src string) string {
	return `<div><img src="../Images/` + src + `" alt=""/></div>`
}

// overlapBook lists its images in manifest order that disagrees with both
// spine order and alphabetic order.
func overlapBook() *epubtest.Builder {
	b := epubtest.New()
	b.Image("p017", "Images/P017.png", 40, 60).
		Image("p003", "Images/P003.png", 120, 60).
		Image("photo", "Images/photo.png", 40, 40).
		Image("p000a", "Images/P000a.png", 60, 80).
		Image("cover", "Images/cover.png", 60, 80).
		Image("gaiji", "Images/gaiji-01.png", 16, 16).
		XHTML("c", "Text/cover.xhtml", imgPage("cover.png")).
		XHTML("k1", "Text/k1.xhtml", imgPage("P000a.png")).
		XHTML("k2", "Text/k2.xhtml", imgPage("P003.png")).
		XHTML("t1", "Text/t1.xhtml", `<p>本文<img src="../Images/gaiji-01.png" alt="※"/>です。</p>`).
		XHTML("i1", "Text/i1.xhtml", imgPage("P017.png"))
	return b
}

func filenames(recs []model.ImageRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Original + "=" + r.Filename
	}
	return out
}

// ============================================================================
// Build
// ============================================================================

func TestBuild(t *testing.T) {
	cat, err := Build(context.Background(), open(t, overlapBook()), classifier(t, "overlap"), Options{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if cat.Cover == nil || cat.Cover.Filename != "cover.png" || cat.Cover.Original != "OEBPS/Images/cover.png" {
		t.Errorf("cover = %+v", cat.Cover)
	}

	wantPlates := []string{
		"OEBPS/Images/P000a.png=kuchie-001.png",
		"OEBPS/Images/P003.png=kuchie-002.png",
	}
	if got := filenames(cat.ColorPlates); !reflect.DeepEqual(got, wantPlates) {
		t.Errorf("color plates = %v", got)
	}

	wantIlls := []string{
		"OEBPS/Images/P017.png=ill-001.png",
		"OEBPS/Images/photo.png=ill-002.png",
	}
	if got := filenames(cat.Illustrations); !reflect.DeepEqual(got, wantIlls) {
		t.Errorf("illustrations = %v", got)
	}

	if !reflect.DeepEqual(cat.Excluded, []string{"OEBPS/Images/gaiji-01.png"}) {
		t.Errorf("excluded = %v", cat.Excluded)
	}
	if len(cat.Unmatched) != 1 || cat.Unmatched[0].Filename != "OEBPS/Images/photo.png" {
		t.Errorf("unmatched = %+v", cat.Unmatched)
	}
	if model.Warnings(cat.Warnings).Count(model.KindUnmatchedAsset) != 1 {
		t.Errorf("warnings = %v", cat.Warnings)
	}
}

func TestBuild_PlateDimensions(t *testing.T) {
	cat, err := Build(context.Background(), open(t, overlapBook()), classifier(t, "overlap"), Options{})
	if err != nil {
		t.Fatal(err)
	}

	portrait, landscape := cat.ColorPlates[0], cat.ColorPlates[1]
	if portrait.Width != 60 || portrait.Height != 80 || portrait.Orientation != model.Portrait {
		t.Errorf("P000a = %+v", portrait)
	}
	if landscape.Width != 120 || landscape.Height != 60 || landscape.Orientation != model.Landscape {
		t.Errorf("P003 = %+v", landscape)
	}
	// Illustrations are not probed unless asked.
	if cat.Illustrations[0].HasDimensions() {
		t.Errorf("illustration probed: %+v", cat.Illustrations[0])
	}
}

func TestBuild_SpineOrderNotAlphabetic(t *testing.T) {
	b := epubtest.New()
	b.Image("a", "Images/P001.png", 60, 80).
		Image("b", "Images/P005.png", 60, 80).
		XHTML("k1", "Text/k1.xhtml", imgPage("P005.png")).
		XHTML("k2", "Text/k2.xhtml", imgPage("P001.png"))

	cat, err := Build(context.Background(), open(t, b), classifier(t, "overlap"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"OEBPS/Images/P005.png=kuchie-001.png", "OEBPS/Images/P001.png=kuchie-002.png"}
	if got := filenames(cat.ColorPlates); !reflect.DeepEqual(got, want) {
		t.Errorf("color plates = %v", got)
	}
}

func TestBuild_CoverHint(t *testing.T) {
	b := epubtest.New()
	b.CoverMetaID = "front"
	b.Image("front", "Images/front.png", 60, 80).
		XHTML("c", "Text/c.xhtml", imgPage("front.png"))

	cat, err := Build(context.Background(), open(t, b), classifier(t, "overlap"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if cat.Cover == nil || cat.Cover.Original != "OEBPS/Images/front.png" {
		t.Errorf("cover = %+v", cat.Cover)
	}
	if len(cat.Unmatched) != 0 {
		t.Errorf("unmatched = %+v", cat.Unmatched)
	}
}

func TestBuild_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Build(ctx, open(t, overlapBook()), classifier(t, "overlap"), Options{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

// ============================================================================
// Rewrite and export
// ============================================================================

func TestRewrite(t *testing.T) {
	cat, err := Build(context.Background(), open(t, overlapBook()), classifier(t, "overlap"), Options{})
	if err != nil {
		t.Fatal(err)
	}

	ch := model.Chapter{
		Body: []model.Block{
			model.Illustration{Filename: "OEBPS/Images/P017.png"},
			model.Paragraph{Text: "本文"},
			model.Illustration{Filename: "OEBPS/Images/gaiji-01.png"},
			model.Illustration{Filename: "ill-002.png"},
		},
		Illustrations: []string{"OEBPS/Images/P017.png", "OEBPS/Images/gaiji-01.png"},
	}
	cat.Rewrite(&ch)

	wantBody := []model.Block{
		model.Illustration{Filename: "ill-001.png"},
		model.Paragraph{Text: "本文"},
		model.Illustration{Filename: "ill-002.png"},
	}
	if !reflect.DeepEqual(ch.Body, wantBody) {
		t.Errorf("body = %#v", ch.Body)
	}
	if !reflect.DeepEqual(ch.Illustrations, []string{"ill-001.png", "ill-002.png"}) {
		t.Errorf("illustrations = %v", ch.Illustrations)
	}
	if cat.Name("OEBPS/Images/gaiji-01.png") != "" {
		t.Error("excluded image has a name")
	}
}

func TestExport(t *testing.T) {
	cat, err := Build(context.Background(), open(t, overlapBook()), classifier(t, "overlap"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	dir := filepath.Join(t.TempDir(), "images")
	n, err := cat.Export(context.Background(), dir)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if n != 5 {
		t.Errorf("exported %d files, want 5", n)
	}
	for _, name := range []string{"cover.png", "kuchie-001.png", "kuchie-002.png", "ill-001.png", "ill-002.png"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "gaiji-01.png")); !os.IsNotExist(err) {
		t.Error("excluded image exported")
	}
}
