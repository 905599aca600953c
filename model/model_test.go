package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

// ============================================================================
// Block Tests
// ============================================================================

func TestBlockKinds(t *testing.T) {
	tests := []struct {
		block Block
		want  BlockKind
	}{
		{Paragraph{Text: "a"}, BlockParagraph},
		{Blank{}, BlockBlank},
		{SceneBreak{}, BlockSceneBreak},
		{Illustration{Filename: "x.jpg"}, BlockIllustration},
		{Heading{Level: 2, Text: "h"}, BlockHeading},
	}

	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			if got := tt.block.Kind(); got != tt.want {
				t.Errorf("Kind() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBlocksText(t *testing.T) {
	blocks := []Block{
		Paragraph{Text: "one"},
		Blank{},
		Illustration{Filename: "a.jpg"},
		Heading{Level: 2, Text: "two"},
		SceneBreak{Marker: "◆"},
	}
	if got := BlocksText(blocks); got != "one\ntwo\n◆" {
		t.Errorf("BlocksText() = %q", got)
	}
	if files := IllustrationFiles(blocks); len(files) != 1 || files[0] != "a.jpg" {
		t.Errorf("IllustrationFiles() = %v", files)
	}
}

// ============================================================================
// Chapter Tests
// ============================================================================

func TestRenumber(t *testing.T) {
	chapters := []Chapter{{ID: "a", Ordinal: 4}, {ID: "b", Ordinal: 9}, {ID: "c"}}
	if err := CheckOrdinals(chapters); err == nil {
		t.Fatal("expected ordinal error before renumbering")
	}
	Renumber(chapters)
	if err := CheckOrdinals(chapters); err != nil {
		t.Fatalf("CheckOrdinals() after Renumber: %v", err)
	}
}

func TestChapterIDs(t *testing.T) {
	if got := ChapterID(7); got != "chapter_007" {
		t.Errorf("ChapterID(7) = %q", got)
	}
	if got := PartID("chapter_007", 2); got != "chapter_007_part02" {
		t.Errorf("PartID() = %q", got)
	}
}

func TestFlattenNav(t *testing.T) {
	tree := []NavEntry{
		{Label: "A", Level: 1, Children: []NavEntry{
			{Label: "A.1", Level: 2},
			{Label: "A.2", Level: 2},
		}},
		{Label: "B", Level: 1},
	}
	flat := FlattenNav(tree)
	want := []string{"A", "A.1", "A.2", "B"}
	if len(flat) != len(want) {
		t.Fatalf("len = %d, want %d", len(flat), len(want))
	}
	for i, e := range flat {
		if e.Label != want[i] {
			t.Errorf("flat[%d] = %q, want %q", i, e.Label, want[i])
		}
		if len(e.Children) != 0 {
			t.Errorf("flat[%d] still has children", i)
		}
	}
}

// ============================================================================
// Image Tests
// ============================================================================

func TestParseImageRole(t *testing.T) {
	tests := []struct {
		in   string
		want ImageRole
	}{
		{"cover", RoleCover},
		{"kuchie", RoleColorPlate},
		{"ColorPlate", RoleColorPlate},
		{"illustration", RoleIllustration},
		{"excluded", RoleExcluded},
	}
	for _, tt := range tests {
		got, err := ParseImageRole(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseImageRole(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseImageRole("poster"); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestImageRecordJSON(t *testing.T) {
	rec := ImageRecord{Filename: "kuchie-001.jpg", Role: RoleColorPlate, Width: 2000, Height: 1400, Orientation: Landscape}
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	var back ImageRecord
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back != rec {
		t.Errorf("got %+v, want %+v", back, rec)
	}
}

func TestOrientationOf(t *testing.T) {
	if OrientationOf(2000, 1400) != Landscape {
		t.Error("wide image should be landscape")
	}
	if OrientationOf(1000, 1400) != Portrait {
		t.Error("tall image should be portrait")
	}
	if OrientationOf(0, 10) != OrientationUnknown {
		t.Error("missing dimensions should be unknown")
	}
}

// ============================================================================
// Error Tests
// ============================================================================

func TestErrorIs(t *testing.T) {
	err := fmt.Errorf("extract: %w", NewError(KindStructureMissing, "spine", "OEBPS/content.opf", errors.New("empty")))

	if !errors.Is(err, ErrStructureMissing) {
		t.Error("errors.Is should match the kind sentinel")
	}
	if errors.Is(err, ErrContainerCorrupt) {
		t.Error("errors.Is should not match a different kind")
	}
	if KindOf(err) != KindStructureMissing {
		t.Errorf("KindOf() = %v", KindOf(err))
	}
	if !KindStructureMissing.Fatal() || KindUnmatchedAsset.Fatal() {
		t.Error("unexpected Fatal() classification")
	}
}

func TestWarnings(t *testing.T) {
	var ws Warnings
	ws.Add(KindUnmatchedAsset, "Images/x.png", "no pattern matched")
	ws.Add(KindChapterFileMissing, "Text/p-010.xhtml", "file missing")
	ws.Add(KindUnmatchedAsset, "Images/y.png", "no pattern matched")

	if ws.Count(KindUnmatchedAsset) != 2 {
		t.Errorf("Count() = %d, want 2", ws.Count(KindUnmatchedAsset))
	}
	if got := ws[1].String(); got != "ChapterFileMissing Text/p-010.xhtml: file missing" {
		t.Errorf("String() = %q", got)
	}
}
