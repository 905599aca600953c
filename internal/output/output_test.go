package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"gopkg.in/yaml.v3"
)

type result struct {
	VolumeID string   `json:"volume_id" yaml:"volume_id"`
	Chapters int      `json:"chapters" yaml:"chapters"`
	Names    []string `json:"names" yaml:"names"`
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", YAML, false},
		{"yaml", YAML, false},
		{"json", JSON, false},
		{"toml", YAML, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("Parse(%q) = %v, %v", tt.in, got, err)
			}
		})
	}
}

func TestWrite(t *testing.T) {
	in := result{VolumeID: "vol-1", Chapters: 3, Names: []string{"拓海<たくみ>"}}

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, JSON, in); err != nil {
			t.Fatal(err)
		}
		if !bytes.Contains(buf.Bytes(), []byte(`<`)) {
			t.Errorf("html escaped: %s", buf.String())
		}
		var got result
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil || got.Chapters != 3 {
			t.Errorf("got %+v, %v", got, err)
		}
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, YAML, in); err != nil {
			t.Fatal(err)
		}
		var got result
		if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil || got.VolumeID != "vol-1" {
			t.Errorf("got %+v, %v", got, err)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if err := Write(&bytes.Buffer{}, Format("xml"), in); err == nil {
			t.Error("expected error")
		}
	})
}
