package markup

import (
	"path"
	"reflect"
	"strings"
	"testing"

	"github.com/tsawler/epubkit/model"
)

func page(body string) []byte {
	return []byte(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml"><head><title>t</title></head>
<body>
` + body + `
</body></html>`)
}

func extract(t *testing.T, body string, opts ExtractOptions) *Document {
	t.Helper()
	if opts.DocPath == "" {
		opts.DocPath = "OEBPS/Text/p-010.xhtml"
	}
	doc, err := Extract(page(body), opts)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	return doc
}

// ============================================================================
// Inspect
// ============================================================================

func TestInspect(t *testing.T) {
	data := []byte(`<html><head><title>目次</title></head><body>
<h1>目次</h1>
<p><a href="p-001.xhtml">第一章</a></p>
<p><a href="p-002.xhtml#x">第二章</a></p>
<p><a href="http://example.com">外部</a></p>
<img src="../Images/a.png"/><img src="../Images/a.png"/>
</body></html>`)

	stats, err := Inspect(data, "OEBPS/Text/toc.xhtml")
	if err != nil {
		t.Fatal(err)
	}

	if stats.Title != "目次" {
		t.Errorf("Title = %q", stats.Title)
	}
	if stats.Links != 3 || stats.InternalLinks != 2 {
		t.Errorf("Links = %d, InternalLinks = %d", stats.Links, stats.InternalLinks)
	}
	if stats.TextRunes != 10 || stats.LinkRunes != 8 {
		t.Errorf("TextRunes = %d, LinkRunes = %d", stats.TextRunes, stats.LinkRunes)
	}
	if d := stats.LinkDensity(); d != 0.8 {
		t.Errorf("LinkDensity = %v, want 0.8", d)
	}
	if !reflect.DeepEqual(stats.Images, []string{"OEBPS/Images/a.png"}) {
		t.Errorf("Images = %v", stats.Images)
	}
	if !reflect.DeepEqual(stats.Lines, []string{"目次", "第一章", "第二章", "外部"}) {
		t.Errorf("Lines = %v", stats.Lines)
	}
	if !reflect.DeepEqual(stats.Headings, []string{"目次"}) {
		t.Errorf("Headings = %v", stats.Headings)
	}
}

func TestInspect_RubyReadingsNotCounted(t *testing.T) {
	stats, err := Inspect(page(`<p><ruby>漢字<rt>かんじ</rt></ruby></p>`), "a.xhtml")
	if err != nil {
		t.Fatal(err)
	}
	if stats.TextRunes != 2 || stats.Text != "漢字" {
		t.Errorf("TextRunes = %d, Text = %q", stats.TextRunes, stats.Text)
	}
}

func TestResolveRef(t *testing.T) {
	tests := []struct {
		doc, ref, want string
	}{
		{"OEBPS/Text/a.xhtml", "../Images/b.png", "OEBPS/Images/b.png"},
		{"a.xhtml", "img/b.png", "img/b.png"},
		{"OEBPS/a.xhtml", "http://x/y.png", ""},
		{"OEBPS/a.xhtml", "data:image/png;base64,xx", ""},
		{"OEBPS/a.xhtml", "b.xhtml#frag", "OEBPS/b.xhtml"},
		{"OEBPS/a.xhtml", "#frag", ""},
		{"OEBPS/a.xhtml", "c%20d.png", "OEBPS/c d.png"},
		{"OEBPS/Text/a.xhtml", "/Images/x.png", "Images/x.png"},
	}
	for _, tt := range tests {
		if got := ResolveRef(tt.doc, tt.ref); got != tt.want {
			t.Errorf("ResolveRef(%q, %q) = %q, want %q", tt.doc, tt.ref, got, tt.want)
		}
	}
}

// ============================================================================
// Inline markers
// ============================================================================

func TestPlainWithRuby(t *testing.T) {
	plain, rubies := PlainWithRuby("彼は東京{とうきょう}に｜Alice{アリス}と*行く*。")

	if plain != "彼は東京にAliceと行く。" {
		t.Errorf("plain = %q", plain)
	}
	want := []Ruby{
		{Base: "東京", Reading: "とうきょう", Offset: len("彼は")},
		{Base: "Alice", Reading: "アリス", Offset: len("彼は東京に")},
	}
	if !reflect.DeepEqual(rubies, want) {
		t.Errorf("rubies = %+v, want %+v", rubies, want)
	}
}

func TestImplicitRubyBase(t *testing.T) {
	tests := []struct {
		text, base string
	}{
		{"名はAlice{アリス}", "Alice"},
		{"それは東京都{とうきょうと}", "東京都"},
		{"あの人々{ひとびと}", "人々"},
		{"ひらがな{ヒラガナ}", "ひらがな"},
	}
	for _, tt := range tests {
		_, rubies := PlainWithRuby(tt.text)
		if len(rubies) != 1 || rubies[0].Base != tt.base {
			t.Errorf("PlainWithRuby(%q) = %+v, want base %q", tt.text, rubies, tt.base)
		}
	}
}

func TestRubyMarker(t *testing.T) {
	tests := []struct {
		prev, base, reading, want string
	}{
		{"", "漢字", "かんじ", "漢字{かんじ}"},
		{"彼の", "名前", "なまえ", "名前{なまえ}"},
		{"東京", "都", "と", "｜都{と}"},
		{"", "Alice", "アリス", "｜Alice{アリス}"},
		{"", "光宙", "", "光宙"},
	}
	for _, tt := range tests {
		if got := RubyMarker(tt.prev, tt.base, tt.reading); got != tt.want {
			t.Errorf("RubyMarker(%q, %q, %q) = %q, want %q", tt.prev, tt.base, tt.reading, got, tt.want)
		}
	}
}

func TestPlain_UnbalancedAndEscaped(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"5 * 3", "5 * 3"},
		{`a \* b`, "a * b"},
		{`\{x\}`, "{x}"},
		{"一<br>二", "一\n二"},
		{"**強調**", "強調"},
	}
	for _, tt := range tests {
		if got := Plain(tt.in); got != tt.want {
			t.Errorf("Plain(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSceneBreakMarker(t *testing.T) {
	tests := []struct {
		text   string
		marker string
		ok     bool
	}{
		{"* * *", "", true},
		{"＊＊＊", "", true},
		{"◇", "", true},
		{"◆◇◆", "", true},
		{"　◇　◇　", "", true},
		{"☆☆☆", "☆☆☆", true},
		{"――――", "――――", true},
		{"・　・　・", "・　・　・", true},
		{"・・・", "", false},
		{"・・・・・・", "", false},
		{"···", "", false},
		{"――", "", false},
		{"……", "", false},
		{"・", "", false},
		{"本文", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		marker, ok := SceneBreakMarker(tt.text)
		if marker != tt.marker || ok != tt.ok {
			t.Errorf("SceneBreakMarker(%q) = (%q, %v), want (%q, %v)", tt.text, marker, ok, tt.marker, tt.ok)
		}
	}
}

// ============================================================================
// Extraction
// ============================================================================

func TestExtract_Ruby(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"split readings", `<p><ruby>東<rt>とう</rt>京<rt>きょう</rt></ruby>へ行く。</p>`, "東京{とうきょう}へ行く。"},
		{"rb fragments", `<p><ruby><rb>小鳥</rb><rb>遊</rb><rt>たかな</rt><rt>し</rt></ruby>さん</p>`, "小鳥遊{たかなし}さん"},
		{"spans in base", `<p><ruby><span>エリ</span><span>ナ</span><rt>Elina</rt></ruby>は笑った</p>`, "｜エリナ{Elina}は笑った"},
		{"rp ignored", `<p><ruby>光宙<rp>(</rp><rt>ピカチュウ</rt><rp>)</rp></ruby></p>`, "光宙{ピカチュウ}"},
		{"after kanji", `<p>東京<ruby>都<rt>と</rt></ruby></p>`, "東京｜都{と}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := extract(t, tt.body, ExtractOptions{})
			want := []model.Block{model.Paragraph{Text: tt.want}}
			if !reflect.DeepEqual(doc.Blocks, want) {
				t.Errorf("Blocks = %#v, want %#v", doc.Blocks, want)
			}
		})
	}
}

func TestExtract_Blocks(t *testing.T) {
	body := `
<h1>第一章　旅立ち</h1>
<p>これは<em>大事</em>な<strong>話</strong>だ。</p>
<p><br/></p>
<p>◇　◇　◇</p>
<p>☆☆☆</p>
<hr/>
<p>……</p>
<div class="illust"><img src="../Images/i-001.jpg" alt="挿絵"/></div>
<p><img src="../Images/deco.png" width="32" height="32"/></p>
<div><svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" viewBox="0 0 100 100"><image width="100" height="100" xlink:href="../Images/k.jpg"/></svg></div>
<h1>幕間</h1>
<h3>小見出し</h3>
<p>一行目<br/>二行目</p>
<p>#タグ</p>
<p>a * b</p>`

	doc := extract(t, body, ExtractOptions{DropTitle: true, SmallImageMaxPx: 64})

	if doc.Title != "第一章　旅立ち" {
		t.Errorf("Title = %q", doc.Title)
	}

	want := []model.Block{
		model.Paragraph{Text: "これは*大事*な**話**だ。"},
		model.Blank{},
		model.SceneBreak{},
		model.SceneBreak{Marker: "☆☆☆"},
		model.SceneBreak{},
		model.Paragraph{Text: "……"},
		model.Illustration{Filename: "OEBPS/Images/i-001.jpg", Alt: "挿絵"},
		model.SceneBreak{},
		model.Illustration{Filename: "OEBPS/Images/k.jpg"},
		model.Heading{Level: 2, Text: "幕間"},
		model.Heading{Level: 3, Text: "小見出し"},
		model.Paragraph{Text: "一行目<br>二行目"},
		model.Paragraph{Text: `\#タグ`},
		model.Paragraph{Text: `a \* b`},
	}
	if len(doc.Blocks) != len(want) {
		t.Fatalf("got %d blocks, want %d:\n%#v", len(doc.Blocks), len(want), doc.Blocks)
	}
	for i := range want {
		if !reflect.DeepEqual(doc.Blocks[i], want[i]) {
			t.Errorf("block %d = %#v, want %#v", i, doc.Blocks[i], want[i])
		}
	}
}

func TestExtract_SmallImageByProbe(t *testing.T) {
	sizes := map[string][2]int{
		"OEBPS/Images/star.png": {24, 24},
		"OEBPS/Images/art.png":  {800, 1200},
	}
	opts := ExtractOptions{
		SmallImageMaxPx: 64,
		ImageSize: func(p string) (int, int, bool) {
			s, ok := sizes[p]
			return s[0], s[1], ok
		},
		ImageName: path.Base,
	}
	doc := extract(t, `<p><img src="../Images/star.png"/></p><p><img src="../Images/art.png"/></p>`, opts)

	want := []model.Block{model.SceneBreak{}, model.Illustration{Filename: "art.png"}}
	if !reflect.DeepEqual(doc.Blocks, want) {
		t.Errorf("Blocks = %#v, want %#v", doc.Blocks, want)
	}
}

func TestExtract_GaijiStaysInline(t *testing.T) {
	doc := extract(t, `<p>彼は<img class="gaiji" src="../Images/g1.png" alt="𠮷"/>野家に行った。</p>`, ExtractOptions{})
	want := []model.Block{model.Paragraph{Text: "彼は𠮷野家に行った。"}}
	if !reflect.DeepEqual(doc.Blocks, want) {
		t.Errorf("Blocks = %#v", doc.Blocks)
	}
}

func TestExtract_LooseInlineContent(t *testing.T) {
	doc := extract(t, `<div class="main"><ruby>魔王<rt>まおう</rt></ruby>が来た。<p>次</p></div>`, ExtractOptions{})
	want := []model.Block{
		model.Paragraph{Text: "魔王{まおう}が来た。"},
		model.Paragraph{Text: "次"},
	}
	if !reflect.DeepEqual(doc.Blocks, want) {
		t.Errorf("Blocks = %#v, want %#v", doc.Blocks, want)
	}
}

// ============================================================================
// Intermediate format
// ============================================================================

func TestMarkdownRoundTrip(t *testing.T) {
	blocks := []model.Block{
		model.Paragraph{Text: "本文{ほんぶん}"},
		model.Blank{},
		model.SceneBreak{},
		model.SceneBreak{Marker: "☆☆☆"},
		model.Illustration{Filename: "ill-001.jpg", Alt: "挿絵"},
		model.Illustration{Filename: "OEBPS/Images/a.png"},
		model.Heading{Level: 2, Text: "見出し"},
		model.Paragraph{Text: `\#ハッシュ`},
		model.Paragraph{Text: "改行<br>あり"},
	}

	md := RenderMarkdown(blocks)
	wantMD := "本文{ほんぶん}\n\n* * *\n☆☆☆\n![挿絵](images/ill-001.jpg)\n![](OEBPS/Images/a.png)\n## 見出し\n\\#ハッシュ\n改行<br>あり\n"
	if md != wantMD {
		t.Errorf("RenderMarkdown =\n%q\nwant\n%q", md, wantMD)
	}

	got := ParseMarkdown(md)
	if !reflect.DeepEqual(got, blocks) {
		t.Errorf("ParseMarkdown round trip:\n got %#v\nwant %#v", got, blocks)
	}
}

func TestParseMarkdown_CRLFAndTrailingSpace(t *testing.T) {
	got := ParseMarkdown("一\r\n\r\n二  \r\n")
	want := []model.Block{model.Paragraph{Text: "一"}, model.Blank{}, model.Paragraph{Text: "二"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseMarkdown = %#v", got)
	}
}

// ============================================================================
// Build
// ============================================================================

func TestBuild_RoundTrip(t *testing.T) {
	blocks := []model.Block{
		model.Paragraph{Text: "東京{とうきょう}へ行く。"},
		model.Paragraph{Text: "彼女は*本当に*｜Alice{アリス}だった。"},
		model.Blank{},
		model.SceneBreak{},
		model.SceneBreak{Marker: "☆☆☆"},
		model.Illustration{Filename: "ill-001.jpg", Alt: "挿絵"},
		model.Heading{Level: 2, Text: "小見出し"},
		model.Paragraph{Text: "改行<br>のある段落"},
		model.Paragraph{Text: `a \* b`},
		model.Paragraph{Text: `Tom & "Jerry" **<3**`},
		model.Paragraph{Text: "<Level Up> was shown. a<b then c"},
	}

	for _, profile := range []Profile{Modern, Legacy} {
		t.Run(profile.String(), func(t *testing.T) {
			data := Build("第一章", blocks, BuildOptions{Profile: profile, Language: "ja"})

			doc, err := Extract(data, ExtractOptions{
				DocPath:   "OEBPS/Text/chapter_001.xhtml",
				DropTitle: true,
				ImageName: path.Base,
			})
			if err != nil {
				t.Fatal(err)
			}
			if doc.Title != "第一章" {
				t.Errorf("Title = %q", doc.Title)
			}
			if !reflect.DeepEqual(doc.Blocks, blocks) {
				t.Errorf("round trip mismatch:\n got %#v\nwant %#v\n%s", doc.Blocks, blocks, data)
			}
		})
	}
}

func TestBuild_Profiles(t *testing.T) {
	blocks := []model.Block{model.Paragraph{Text: "魔王{まおう}"}}

	modern := string(Build("T", blocks, BuildOptions{Profile: Modern}))
	for _, want := range []string{"<!DOCTYPE html>", `xmlns:epub="http://www.idpf.org/2007/ops"`, "<ruby>魔王<rt>まおう</rt></ruby>", `epub:type="chapter"`} {
		if !strings.Contains(modern, want) {
			t.Errorf("modern page missing %q", want)
		}
	}

	legacy := string(Build("T", blocks, BuildOptions{Profile: Legacy}))
	for _, want := range []string{"XHTML 1.1", "<rp>(</rp><rt>まおう</rt><rp>)</rp>"} {
		if !strings.Contains(legacy, want) {
			t.Errorf("legacy page missing %q", want)
		}
	}
	if strings.Contains(legacy, "epub:") {
		t.Error("legacy page must not use the epub namespace")
	}
}

func TestBuild_EscapesOnce(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		smart  bool
		want   string
		reject string
	}{
		{"pre-escaped ampersand", "Tom &amp; Jerry", false, "Tom &amp; Jerry", "&amp;amp;"},
		{"raw ampersand", "Tom & Jerry", false, "Tom &amp; Jerry", "&amp;amp;"},
		{"less than", "1 < 2", false, "1 &lt; 2", "&amp;lt;"},
		{"smart quotes", `"Hi," she said. It's fine.`, true, "“Hi,” she said. It’s fine.", "&#34;"},
		{"pre-escaped quotes", "&quot;Hi&quot;", true, "“Hi”", "&amp;"},
		{"stray markup", "<b>太字</b>です", false, "太字です", "&lt;b&gt;"},
		{"stray markup with attributes", `<span class="x">字</span>`, false, "字", "span"},
		{"bracketed system message", "<Level Up> was shown.", false, "&lt;Level Up&gt; was shown.", "&amp;lt;"},
		{"bare less than before letter", "a<b then c", false, "a&lt;b then c", "&amp;lt;"},
		{"bracketed prose with short word", "<I am here>", false, "&lt;I am here&gt;", "&amp;lt;"},
		{"escaped entity decoded once", "&amp;lt;", false, "&amp;lt;", "&amp;amp;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := string(Build("", []model.Block{model.Paragraph{Text: tt.text}}, BuildOptions{SmartQuotes: tt.smart}))
			if !strings.Contains(out, "<p>"+tt.want+"</p>") {
				t.Errorf("output missing <p>%s</p>:\n%s", tt.want, out)
			}
			if strings.Contains(out, tt.reject) {
				t.Errorf("output contains %q:\n%s", tt.reject, out)
			}
		})
	}
}

func TestBuild_KeepsBracketedText(t *testing.T) {
	doc := extract(t, `<p>&lt;Level Up&gt; was shown. a&lt;b then c</p>`, ExtractOptions{})
	want := []model.Block{model.Paragraph{Text: "<Level Up> was shown. a<b then c"}}
	if !reflect.DeepEqual(doc.Blocks, want) {
		t.Fatalf("Blocks = %#v, want %#v", doc.Blocks, want)
	}

	out := string(Build("", doc.Blocks, BuildOptions{}))
	if !strings.Contains(out, "<p>&lt;Level Up&gt; was shown. a&lt;b then c</p>") {
		t.Errorf("bracketed text lost:\n%s", out)
	}
	if got := Escape("<Level Up>"); got != "&lt;Level Up&gt;" {
		t.Errorf("Escape = %q", got)
	}
}

func TestParseProfile(t *testing.T) {
	for in, want := range map[string]Profile{"": Modern, "epub3": Modern, "EPUB2": Legacy, "legacy": Legacy} {
		got, err := ParseProfile(in)
		if err != nil || got != want {
			t.Errorf("ParseProfile(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseProfile("epub4"); err == nil {
		t.Error("expected error for unknown profile")
	}
}

// ============================================================================
// Reference export
// ============================================================================

func TestReferenceConverter(t *testing.T) {
	rc := NewReferenceConverter()
	md, err := rc.Convert(page(`<h1>スタッフ</h1><p>イラスト：<ruby>山田<rt>やまだ</rt></ruby></p>`))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(md, "# スタッフ") {
		t.Errorf("markdown missing heading:\n%s", md)
	}
	if !strings.Contains(md, "山田") || !strings.Contains(md, "やまだ") {
		t.Errorf("markdown missing flattened ruby:\n%s", md)
	}
}
