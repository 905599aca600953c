package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tsawler/epubkit/internal/epubtest"
)

// run executes the root command with a fresh output buffer.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T) (cfg, work string) {
	t.Helper()
	dir := t.TempDir()
	work = filepath.Join(dir, "work")
	cfg = filepath.Join(dir, "epubkit.yaml")
	content := "workdir: " + work + "\nlog:\n  level: error\nruby:\n  morphology: false\n"
	if err := os.WriteFile(cfg, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return cfg, work
}

func book() *epubtest.Builder {
	prose := "<p>" + strings.Repeat("朝の光が差し込んでいた。", 20) + "</p>"
	b := epubtest.New()
	b.Title = "Test Volume"
	b.Publisher = "KADOKAWA"
	b.ImageProps("cover-img", "Images/cover.png", 60, 80, "cover-image").
		NonLinear("cover", "Text/cover.xhtml", `<div><img src="../Images/cover.png" alt=""/></div>`).
		XHTML("ch1", "Text/ch1.xhtml", `<h1>第一章</h1><p><ruby>拓海<rt>たくみ</rt></ruby>は走った。</p>`+prose).
		XHTML("ch2", "Text/ch2.xhtml", `<h1>第二章</h1>`+prose).
		XHTML("ch3", "Text/ch3.xhtml", `<h1>第三章</h1>`+prose)
	b.Nav("第一章", "Text/ch1.xhtml").
		Nav("第二章", "Text/ch2.xhtml").
		Nav("第三章", "Text/ch3.xhtml")
	return b
}

// ============================================================================
// Commands
// ============================================================================

func TestExtractAndRebuild(t *testing.T) {
	cfg, work := writeConfig(t)
	src := book().Write(t, t.TempDir())

	out, err := run(t, "--config", cfg, "-o", "json", "extract", src, "--volume-id", "vol1")
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	var res struct {
		VolumeID string `json:"volume_id"`
		Chapters int    `json:"chapters"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("output is not json: %q", out)
	}
	if res.VolumeID != "vol1" || res.Chapters != 3 {
		t.Errorf("extract result = %+v", res)
	}
	if _, err := os.Stat(filepath.Join(work, "vol1", "manifest.json")); err != nil {
		t.Errorf("manifest not written: %v", err)
	}

	out, err = run(t, "--config", cfg, "-o", "json", "names", "vol1", "--all=false")
	if err != nil {
		t.Fatalf("names failed: %v", err)
	}
	if !strings.Contains(out, "たくみ") {
		t.Errorf("names output = %s", out)
	}

	out, err = run(t, "--config", cfg, "-o", "json", "rebuild", "vol1", "--lang", "", "--output-name", "")
	if err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(work, "vol1", "output", "vol1.epub")); err != nil {
		t.Errorf("container not written: %v\n%s", err, out)
	}
}

func TestExtract_CorruptContainer(t *testing.T) {
	cfg, _ := writeConfig(t)
	src := filepath.Join(t.TempDir(), "broken.epub")
	if err := os.WriteFile(src, []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := run(t, "--config", cfg, "extract", src, "--volume-id", "")
	if err == nil {
		t.Fatal("expected error")
	}
	if exitCode(err) != 1 {
		t.Errorf("exitCode = %d", exitCode(err))
	}
}

func TestProfilesMatch(t *testing.T) {
	cfg, _ := writeConfig(t)
	tests := []struct {
		publisher string
		want      string
		fallback  bool
	}{
		{"株式会社ＫＡＤＯＫＡＷＡ", "kadokawa", false},
		{"Unknown Press", "generic", true},
	}
	for _, tt := range tests {
		t.Run(tt.publisher, func(t *testing.T) {
			out, err := run(t, "--config", cfg, "-o", "json", "profiles", "match", tt.publisher)
			if err != nil {
				t.Fatal(err)
			}
			var d detection
			if err := json.Unmarshal([]byte(out), &d); err != nil {
				t.Fatalf("output is not json: %q", out)
			}
			if d.Profile != tt.want || d.Fallback != tt.fallback {
				t.Errorf("detection = %+v", d)
			}
		})
	}
}

func TestProfilesValidate(t *testing.T) {
	cfg, _ := writeConfig(t)
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(good, []byte("name: press\naliases: [Press]\npatterns:\n  cover: ['^cover\\.']\n"), 0o644)
	os.WriteFile(bad, []byte("name: broken\npatterns:\n  cover: ['[']\n"), 0o644)

	if _, err := run(t, "--config", cfg, "profiles", "validate", good); err != nil {
		t.Errorf("valid profile rejected: %v", err)
	}
	out, err := run(t, "--config", cfg, "-o", "json", "profiles", "validate", good, bad)
	if err == nil {
		t.Fatal("expected error for invalid profile")
	}
	var vs []validation
	if err := json.Unmarshal([]byte(out), &vs); err != nil {
		t.Fatalf("output is not json: %q", out)
	}
	if len(vs) != 2 || vs[0].Name != "press" || vs[1].Error == "" {
		t.Errorf("validations = %+v", vs)
	}
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "epubkit.yaml")
	if _, err := run(t, "config", "init", path, "--force=false"); err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if _, err := run(t, "config", "init", path, "--force=false"); err == nil {
		t.Error("expected error for existing file")
	}
	out, err := run(t, "--config", path, "-o", "yaml", "config", "show")
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	if !strings.Contains(out, "max_tokens: 6000") {
		t.Errorf("config show = %s", out)
	}
}

func TestExitCode(t *testing.T) {
	if got := exitCode(context.Canceled); got != 130 {
		t.Errorf("exitCode(canceled) = %d", got)
	}
	if got := exitCode(errors.New("boom")); got != 1 {
		t.Errorf("exitCode = %d", got)
	}
}
