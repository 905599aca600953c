package epubkit

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tsawler/epubkit/epubdoc"
	"github.com/tsawler/epubkit/internal/epubtest"
	"github.com/tsawler/epubkit/model"
	"github.com/tsawler/epubkit/pipeline"
)

func volume(t *testing.T) string {
	t.Helper()
	prose := "<p>" + strings.Repeat("風が吹いていた。", 30) + "</p>"
	b := epubtest.New()
	b.Title = "風の章"
	b.Publisher = "株式会社KADOKAWA"
	b.ImageProps("cover-img", "Images/cover.png", 60, 80, "cover-image").
		Image("ill", "Images/i-001.png", 60, 80).
		NonLinear("cover", "Text/cover.xhtml", `<div><img src="../Images/cover.png" alt=""/></div>`).
		XHTML("ch1", "Text/ch1.xhtml", `<h1>第一章</h1><p><ruby>拓海<rt>たくみ</rt></ruby>は<em>走った</em>。</p>`+prose).
		XHTML("ill1", "Text/ill1.xhtml", `<div><img src="../Images/i-001.png" alt=""/></div>`).
		XHTML("ch2", "Text/ch2.xhtml", `<h1>第二章</h1>`+prose).
		XHTML("ch3", "Text/ch3.xhtml", `<h1>第三章</h1>`+prose)
	b.Nav("第一章", "Text/ch1.xhtml").
		Nav("第二章", "Text/ch2.xhtml").
		Nav("第三章", "Text/ch3.xhtml")
	return b.Write(t, t.TempDir())
}

func TestOpen(t *testing.T) {
	_, _, err := Open("nonexistent.epub").Chapters()
	if err == nil {
		t.Error("expected error for non-existent file")
	}
	if _, err := Open("").Metadata(); err == nil {
		t.Error("expected error for empty filename")
	}
}

func TestMetadata(t *testing.T) {
	meta, err := Open(volume(t)).Metadata()
	if err != nil {
		t.Fatalf("Metadata failed: %v", err)
	}
	if meta.Title != "風の章" || meta.Language != "ja" {
		t.Errorf("meta = %+v", meta)
	}
}

func TestChapters(t *testing.T) {
	chapters, _, err := Open(volume(t)).Chapters()
	if err != nil {
		t.Fatalf("Chapters failed: %v", err)
	}
	var titles []string
	for _, ch := range chapters {
		titles = append(titles, ch.Title)
	}
	if strings.Join(titles, ",") != "第一章,第二章,第三章" {
		t.Errorf("titles = %v", titles)
	}
	if got := chapters[0].Illustrations; len(got) != 1 || got[0] != "ill-001.png" {
		t.Errorf("illustrations = %v", got)
	}
}

func TestOnly(t *testing.T) {
	ext := Open(volume(t))
	all, _, err := ext.Chapters()
	if err != nil {
		t.Fatal(err)
	}
	some, _, err := ext.Only(all[1].ID).Chapters()
	if err != nil {
		t.Fatal(err)
	}
	if len(some) != 1 || some[0].ID != all[1].ID {
		t.Errorf("Only = %+v", some)
	}
}

func TestMarkdownAndText(t *testing.T) {
	path := volume(t)

	md, _, err := Open(path).Markdown()
	if err != nil {
		t.Fatalf("Markdown failed: %v", err)
	}
	for _, want := range []string{"# 第一章", "拓海{たくみ}は*走った*。", "![](images/ill-001.png)"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}

	text, _, err := Open(path).Text()
	if err != nil {
		t.Fatalf("Text failed: %v", err)
	}
	if !strings.Contains(text, "拓海は走った。") || strings.Contains(text, "{") {
		t.Errorf("text = %q", text)
	}
}

func TestNames(t *testing.T) {
	names, _, err := Open(volume(t)).Names()
	if err != nil {
		t.Fatalf("Names failed: %v", err)
	}
	if names["拓海"] != "たくみ" {
		t.Errorf("names = %v", names)
	}
}

func TestImages(t *testing.T) {
	imgs, _, err := Open(volume(t)).Images()
	if err != nil {
		t.Fatalf("Images failed: %v", err)
	}
	if len(imgs) != 2 || imgs[0].Role != model.RoleCover || imgs[1].Filename != "ill-001.png" {
		t.Errorf("images = %+v", imgs)
	}
}

func TestProfile(t *testing.T) {
	an, _, err := Open(volume(t)).Profile("generic").Analyze()
	if err != nil {
		t.Fatal(err)
	}
	if an.Detection.Profile.Name != "generic" {
		t.Errorf("profile = %s", an.Detection.Profile.Name)
	}

	_, _, err = Open(volume(t)).Profile("nope").Analyze()
	if !errors.Is(err, pipeline.ErrUnknownProfile) {
		t.Errorf("err = %v, want ErrUnknownProfile", err)
	}
}

var nilContext context.Context

func TestConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		ext  *Extractor
	}{
		{"bad budget", Open("x.epub").SplitTokens(100, 80)},
		{"zero budget", Open("x.epub").SplitTokens(0, 0)},
		{"nil context", Open("x.epub").Context(nilContext)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := tt.ext.Chapters(); err == nil {
				t.Error("expected configuration error")
			}
		})
	}
}

func TestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := Open(volume(t)).Context(ctx).Chapters(); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestFromReader(t *testing.T) {
	r, err := epubdoc.Open(volume(t), epubdoc.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	ext := FromReader(r).NoSplit()
	if _, _, err := ext.Chapters(); err != nil {
		t.Fatalf("Chapters failed: %v", err)
	}
	// The caller still owns the reader.
	if _, err := r.ReadFile(r.Spine()[0].Href); err != nil {
		t.Errorf("reader closed by Extractor: %v", err)
	}
}

func TestMust(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	MustText(Open("nonexistent.epub").Markdown())
}
