package profile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tsawler/epubkit/model"
)

func loadStore(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := Load(dir, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return s
}

func writeProfile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

// ============================================================================
// Loading
// ============================================================================

func TestLoad_Embedded(t *testing.T) {
	s := loadStore(t, "")

	var names []string
	for _, p := range s.Profiles() {
		names = append(names, p.Name)
	}
	if got := strings.Join(names, ","); got != "generic,hobbyjapan,kadokawa,overlap" {
		t.Errorf("profiles = %s", got)
	}
	if s.Generic() == nil || s.Generic().Name != "generic" {
		t.Fatal("generic profile missing")
	}

	// Profiles without their own title patterns inherit the generic list.
	hj, ok := s.Get("hobbyjapan")
	if !ok {
		t.Fatal("hobbyjapan missing")
	}
	if len(hj.TitlePatterns()) == 0 || hj.Content.NavFallbackThreshold != 3 {
		t.Errorf("hobbyjapan did not inherit content settings: %d patterns, threshold %d",
			len(hj.TitlePatterns()), hj.Content.NavFallbackThreshold)
	}
}

func TestLoad_Overlay(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "overlap.yaml", `
name: overlap
aliases: [オーバーラップ]
patterns:
  illustration: ['^ov-\d+']
`)
	writeProfile(t, dir, "newpub.yml", `
name: newpub
aliases: [New Publisher]
patterns:
  cover: ['^front\.']
`)
	writeProfile(t, dir, "notes.txt", "ignored")

	s := loadStore(t, dir)

	ov, _ := s.Get("overlap")
	if got := Classify("ov-12.jpg", ov); got.Role != model.RoleIllustration {
		t.Errorf("overlay overlap: role = %v", got.Role)
	}
	if got := Classify("P003.jpg", ov); got.Matched() {
		t.Errorf("embedded overlap patterns should be replaced, got %v", got.Role)
	}

	d := s.Detect("New Publisher Inc.")
	if d.Fallback || d.Profile.Name != "newpub" {
		t.Errorf("Detect = %+v", d)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"bad regex", "name: x\naliases: [X]\npatterns:\n  cover: ['(unclosed']\n", "cover pattern"},
		{"bad title regex", "name: x\naliases: [X]\npatterns: {}\ncontent:\n  title_patterns: ['[']\n", "title pattern"},
		{"unknown role", "name: x\naliases: [X]\npatterns:\n  poster: ['a']\n", "schema"},
		{"missing patterns", "name: x\naliases: [X]\n", "schema"},
		{"no aliases", "name: x\npatterns: {}\n", "no aliases"},
		{"bad name", "name: X Y\naliases: [X]\npatterns: {}\n", "schema"},
		{"not yaml", "name: [", "invalid YAML"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), "test.yaml")
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoad_InvalidOverlayFails(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "broken.yaml", "name: broken\naliases: [B]\npatterns:\n  cover: ['(']\n")
	if _, err := Load(dir, nil); err == nil {
		t.Fatal("expected error for profile with invalid pattern")
	}
}

func TestLoad_SecondGenericRejected(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "other.yaml", "name: other\ngeneric: true\npatterns: {}\n")
	if _, err := Load(dir, nil); err == nil {
		t.Fatal("expected error for two generic profiles")
	}
}

// ============================================================================
// Detection
// ============================================================================

func TestDetect(t *testing.T) {
	s := loadStore(t, "")

	tests := []struct {
		publisher string
		want      string
		fallback  bool
	}{
		{"株式会社KADOKAWA", "kadokawa", false},
		{"ＫＡＤＯＫＡＷＡ", "kadokawa", false},
		{"kadokawa corporation", "kadokawa", false},
		{"株式会社オーバーラップ", "overlap", false},
		{"ＨＪ文庫", "hobbyjapan", false},
		{"Hobby  Japan", "hobbyjapan", false},
		{"Unknown House", "generic", true},
		{"", "generic", true},
	}
	for _, tt := range tests {
		t.Run(tt.publisher, func(t *testing.T) {
			d := s.Detect(tt.publisher)
			if d.Profile.Name != tt.want || d.Fallback != tt.fallback {
				t.Errorf("Detect(%q) = %s (fallback %v), want %s (fallback %v)",
					tt.publisher, d.Profile.Name, d.Fallback, tt.want, tt.fallback)
			}
		})
	}
}

// ============================================================================
// Classification
// ============================================================================

func TestClassify(t *testing.T) {
	s := loadStore(t, "")
	generic := s.Generic()
	overlap, _ := s.Get("overlap")
	kadokawa, _ := s.Get("kadokawa")

	tests := []struct {
		name     string
		profile  *Profile
		filename string
		want     model.ImageRole
	}{
		{"generic cover", generic, "OEBPS/Images/cover.jpg", model.RoleCover},
		{"generic kuchie", generic, "kuchie-img-001.jpg", model.RoleColorPlate},
		{"generic illustration", generic, "i-012.jpg", model.RoleIllustration},
		{"generic gaiji", generic, "gaiji-0001.png", model.RoleExcluded},
		{"exclusion precedence", generic, "gaiji-illust-001.png", model.RoleExcluded},
		{"overlap plate", overlap, "P000a.jpg", model.RoleColorPlate},
		{"overlap plate numeric", overlap, "P003.jpg", model.RoleColorPlate},
		{"overlap illustration", overlap, "P017.jpg", model.RoleIllustration},
		{"kadokawa glyph", kadokawa, "g001.png", model.RoleExcluded},
		{"kadokawa plate", kadokawa, "k001.jpg", model.RoleColorPlate},
		{"unmatched", generic, "photo.jpg", model.RoleUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.filename, tt.profile); got.Role != tt.want {
				t.Errorf("Classify(%q) = %v (pattern %q), want %v", tt.filename, got.Role, got.Pattern, tt.want)
			}
		})
	}
}

func TestClassify_ExclusionPrecedenceAnyProfile(t *testing.T) {
	p := &Profile{
		Name: "both",
		Patterns: Patterns{
			Illustration: []string{`^art\d+`},
			Excluded:     []string{`^art\d+`},
		},
	}
	if err := p.Compile(); err != nil {
		t.Fatal(err)
	}
	if got := Classify("art01.png", p); got.Role != model.RoleExcluded {
		t.Errorf("role = %v, want excluded", got.Role)
	}
}

func TestSuggestRole(t *testing.T) {
	tests := []struct {
		filename string
		want     model.ImageRole
	}{
		{"front_cover_big.jpg", model.RoleCover},
		{"Color03.png", model.RoleColorPlate},
		{"site-logo.png", model.RoleExcluded},
		{"scan0042.jpg", model.RoleIllustration},
		{"photo.jpg", model.RoleUnknown},
	}
	for _, tt := range tests {
		if got := SuggestRole(tt.filename); got != tt.want {
			t.Errorf("SuggestRole(%q) = %v, want %v", tt.filename, got, tt.want)
		}
	}
}

func TestClassifier(t *testing.T) {
	s := loadStore(t, "")
	c := NewClassifier(s.Generic())
	c.SetCoverHint("OEBPS/Images/front.jpg")

	if got := c.Classify("OEBPS/Images/front.jpg"); got != model.RoleCover {
		t.Errorf("hinted cover = %v", got)
	}
	if got := c.Classify("OEBPS/Images/scan0042.jpg"); got != model.RoleUnknown {
		t.Errorf("scan0042 = %v", got)
	}
	c.Classify("OEBPS/Images/scan0042.jpg")

	un := c.Unmatched()
	if len(un) != 1 || un[0].Filename != "OEBPS/Images/scan0042.jpg" || un[0].Suggested != model.RoleIllustration {
		t.Errorf("Unmatched = %+v", un)
	}
	ws := c.Warnings()
	if len(ws) != 1 || ws[0].Kind != model.KindUnmatchedAsset {
		t.Errorf("Warnings = %+v", ws)
	}
}

func TestClassifier_HintDoesNotOverrideExclusion(t *testing.T) {
	s := loadStore(t, "")
	c := NewClassifier(s.Generic())
	c.SetCoverHint("Images/gaiji-01.png")
	if got := c.Classify("Images/gaiji-01.png"); got != model.RoleExcluded {
		t.Errorf("role = %v, want excluded", got)
	}
}

func TestTitlePatterns(t *testing.T) {
	s := loadStore(t, "")
	titles := s.Generic().TitlePatterns()

	match := func(line string) bool {
		for _, re := range titles {
			if re.MatchString(line) {
				return true
			}
		}
		return false
	}

	for _, line := range []string{"第一章　旅立ち", "第12話 再会", "Chapter 3", "CHAPTER IV", "プロローグ", "Epilogue"} {
		if !match(line) {
			t.Errorf("%q should match a title pattern", line)
		}
	}
	for _, line := range []string{"「第一章って何？」", "彼は章を読んだ。", "chapters are long"} {
		if match(line) {
			t.Errorf("%q should not match a title pattern", line)
		}
	}
}

// ============================================================================
// Hot reload
// ============================================================================

func TestWatch_Reload(t *testing.T) {
	dir := t.TempDir()
	s := loadStore(t, dir)

	reloaded := make(chan struct{}, 8)
	s.OnReload(func(*Store) { reloaded <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Watch(ctx); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	writeProfile(t, dir, "late.yaml", "name: late\naliases: [Late Press]\npatterns:\n  cover: ['^front']\n")

	deadline := time.After(5 * time.Second)
	for {
		if _, ok := s.Get("late"); ok {
			break
		}
		select {
		case <-reloaded:
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatal("profile was not reloaded")
		}
	}

	if d := s.Detect("Late Press"); d.Profile.Name != "late" {
		t.Errorf("Detect after reload = %s", d.Profile.Name)
	}
}

func TestWatch_NoDirectory(t *testing.T) {
	s := loadStore(t, "")
	if err := s.Watch(context.Background()); err == nil {
		t.Error("expected error without a directory")
	}
}
