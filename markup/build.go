package markup

import (
	"fmt"
	stdhtml "html"
	"path"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/tsawler/epubkit/model"
)

// Profile selects the container markup flavor. One profile applies to every
// document of a build.
type Profile int

const (
	// Modern is EPUB 3 markup: HTML5 doctype and the epub namespace.
	Modern Profile = iota
	// Legacy is EPUB 2 markup: XHTML 1.1 doctype and ruby fallback
	// parentheses.
	Legacy
)

// String returns the profile's configuration name.
func (p Profile) String() string {
	if p == Legacy {
		return "epub2"
	}
	return "epub3"
}

// ParseProfile maps a configuration name to a Profile.
func ParseProfile(s string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "epub3", "3", "modern":
		return Modern, nil
	case "epub2", "2", "legacy":
		return Legacy, nil
	}
	return Modern, fmt.Errorf("unknown markup profile %q", s)
}

// PackageVersion returns the package document version attribute.
func (p Profile) PackageVersion() string {
	if p == Legacy {
		return "2.0"
	}
	return "3.0"
}

// BuildOptions controls block-to-container conversion.
type BuildOptions struct {
	Profile  Profile
	Language string // xml:lang, default "en"

	// Stylesheet is the href of the stylesheet linked from every page.
	Stylesheet string

	// ImagePath maps an illustration filename to the src written into the
	// page. Defaults to ../Images/<base name>.
	ImagePath func(filename string) string

	// SmartQuotes replaces straight quotes with typographic ones.
	SmartQuotes bool

	// Vertical marks the body for vertical writing mode.
	Vertical bool
}

func (o *BuildOptions) defaults() {
	if o.Language == "" {
		o.Language = "en"
	}
	if o.ImagePath == nil {
		o.ImagePath = func(filename string) string {
			return "../Images/" + path.Base(filename)
		}
	}
}

var strict = bluemonday.StrictPolicy()

// htmlTag matches opening, closing and void tags of elements that appear in
// publisher markup. Attributes must carry a value, so bracketed prose such
// as "<I am here>" is left alone.
var htmlTag = regexp.MustCompile(`(?i)</?(?:a|abbr|b|big|blockquote|body|br|code|div|em|font|h[1-6]|head|hr|html|i|img|li|ol|p|pre|rb|rp|rt|ruby|s|section|small|span|strong|sub|sup|u|ul)(?:\s+[\w:-]+\s*=\s*(?:"[^"]*"|'[^']*'|[^\s"'<>]+))*\s*/?>`)

// Escape prepares externally supplied text for markup. Known HTML tags are
// stripped and entities decoded once before escaping, so text that arrives
// already escaped is escaped exactly once. Any other '<' is kept as text.
func Escape(s string) string {
	return stdhtml.EscapeString(clean(s))
}

func clean(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	if strings.Contains(s, "<") {
		s = htmlTag.ReplaceAllStringFunc(s, strict.Sanitize)
	}
	return stdhtml.UnescapeString(s)
}

// Build renders a chapter page. The title becomes the page's only top-level
// heading; Heading blocks render one level below it.
func Build(title string, blocks []model.Block, opts BuildOptions) []byte {
	opts.defaults()

	var body strings.Builder
	if strings.TrimSpace(title) != "" {
		fmt.Fprintf(&body, "<h1 class=\"chapter-title\">%s</h1>\n", renderInline(title, opts))
	}

	for _, b := range blocks {
		switch v := b.(type) {
		case model.Paragraph:
			fmt.Fprintf(&body, "<p>%s</p>\n", renderInline(v.Text, opts))
		case model.Blank:
			body.WriteString("<p><br/></p>\n")
		case model.SceneBreak:
			marker := sceneBreakGlyph
			if v.Marker != "" {
				marker = Escape(v.Marker)
			}
			fmt.Fprintf(&body, "<p class=\"scene-break\">%s</p>\n", marker)
		case model.Illustration:
			fmt.Fprintf(&body, "<div class=\"illustration\"><img src=\"%s\" alt=\"%s\"/></div>\n",
				stdhtml.EscapeString(opts.ImagePath(v.Filename)), Escape(v.Alt))
		case model.Heading:
			level := v.Level
			if level < 2 {
				level = 2
			}
			if level > 6 {
				level = 6
			}
			fmt.Fprintf(&body, "<h%d>%s</h%d>\n", level, renderInline(v.Text, opts), level)
		}
	}

	bodyType := ""
	if opts.Profile == Modern {
		bodyType = "chapter"
	}
	return Page(opts, Plain(title), bodyType, body.String())
}

// Page wraps body markup in the profile's document shell. bodyType is the
// epub:type of the body section and is ignored by the legacy profile.
func Page(opts BuildOptions, title, bodyType, body string) []byte {
	opts.defaults()

	var sb strings.Builder
	sb.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")

	lang := stdhtml.EscapeString(opts.Language)
	bodyClass := "horizontal"
	if opts.Vertical {
		bodyClass = "vertical"
	}

	switch opts.Profile {
	case Legacy:
		sb.WriteString("<!DOCTYPE html PUBLIC \"-//W3C//DTD XHTML 1.1//EN\" \"http://www.w3.org/TR/xhtml11/DTD/xhtml11.dtd\">\n")
		fmt.Fprintf(&sb, "<html xmlns=\"http://www.w3.org/1999/xhtml\" xml:lang=\"%s\">\n<head>\n", lang)
		sb.WriteString("<meta http-equiv=\"Content-Type\" content=\"application/xhtml+xml; charset=utf-8\"/>\n")
	default:
		sb.WriteString("<!DOCTYPE html>\n")
		fmt.Fprintf(&sb, "<html xmlns=\"http://www.w3.org/1999/xhtml\" xmlns:epub=\"http://www.idpf.org/2007/ops\" xml:lang=\"%s\" lang=\"%s\">\n<head>\n", lang, lang)
		sb.WriteString("<meta charset=\"UTF-8\"/>\n")
	}

	fmt.Fprintf(&sb, "<title>%s</title>\n", Escape(title))
	if opts.Stylesheet != "" {
		fmt.Fprintf(&sb, "<link rel=\"stylesheet\" type=\"text/css\" href=\"%s\"/>\n", stdhtml.EscapeString(opts.Stylesheet))
	}
	sb.WriteString("</head>\n")

	if opts.Profile == Modern && bodyType != "" {
		fmt.Fprintf(&sb, "<body class=\"%s\">\n<section epub:type=\"%s\">\n%s</section>\n</body>\n</html>\n", bodyClass, bodyType, body)
	} else {
		fmt.Fprintf(&sb, "<body class=\"%s\">\n<div class=\"main\">\n%s</div>\n</body>\n</html>\n", bodyClass, body)
	}

	return []byte(sb.String())
}

// renderInline converts inline markers to markup.
func renderInline(text string, opts BuildOptions) string {
	var sb strings.Builder
	var em, strong bool
	q := &quoter{}

	esc := func(s string) string {
		s = clean(s)
		if opts.SmartQuotes {
			s = q.apply(s)
		}
		return stdhtml.EscapeString(s)
	}

	for _, t := range tokenize(text) {
		switch t.kind {
		case tokText:
			sb.WriteString(esc(t.text))
		case tokBreak:
			sb.WriteString("<br/>")
		case tokEm:
			if em {
				sb.WriteString("</em>")
			} else {
				sb.WriteString("<em>")
			}
			em = !em
		case tokStrong:
			if strong {
				sb.WriteString("</strong>")
			} else {
				sb.WriteString("<strong>")
			}
			strong = !strong
		case tokRuby:
			sb.WriteString("<ruby>")
			sb.WriteString(esc(t.text))
			if opts.Profile == Legacy {
				sb.WriteString("<rp>(</rp><rt>")
				sb.WriteString(esc(t.reading))
				sb.WriteString("</rt><rp>)</rp>")
			} else {
				sb.WriteString("<rt>")
				sb.WriteString(esc(t.reading))
				sb.WriteString("</rt>")
			}
			sb.WriteString("</ruby>")
		}
	}
	return sb.String()
}

// quoter replaces straight quotes, alternating open and close marks across
// the text segments of one paragraph.
type quoter struct {
	doubleOpen bool
	singleOpen bool
	prev       rune
}

func (q *quoter) apply(s string) string {
	if !strings.ContainsAny(s, "\"'") {
		if r, _ := utf8.DecodeLastRuneInString(s); r != utf8.RuneError {
			q.prev = r
		}
		return s
	}
	var sb strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		switch r {
		case '"':
			if q.doubleOpen {
				sb.WriteRune('”')
			} else {
				sb.WriteRune('“')
			}
			q.doubleOpen = !q.doubleOpen
		case '\'':
			var next rune
			if i+1 < len(runes) {
				next = runes[i+1]
			}
			switch {
			case unicode.IsLetter(q.prev) && unicode.IsLetter(next):
				sb.WriteRune('’') // apostrophe
			case q.singleOpen:
				sb.WriteRune('’')
				q.singleOpen = false
			default:
				sb.WriteRune('‘')
				q.singleOpen = true
			}
		default:
			sb.WriteRune(r)
		}
		q.prev = r
	}
	return sb.String()
}
