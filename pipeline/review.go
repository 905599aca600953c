package pipeline

import (
	"bytes"

	"gopkg.in/yaml.v3"

	"github.com/tsawler/epubkit/images"
	"github.com/tsawler/epubkit/internal/atomicfile"
	"github.com/tsawler/epubkit/manifest"
	"github.com/tsawler/epubkit/model"
	"github.com/tsawler/epubkit/profile"
	"github.com/tsawler/epubkit/ruby"
)

// Review is the human review report written next to the manifest. It lists
// everything extraction was unsure about.
type Review struct {
	VolumeID        string                            `yaml:"volume_id"`
	Profile         string                            `yaml:"profile"`
	ProfileFallback bool                              `yaml:"profile_fallback,omitempty"`
	Segmentation    string                            `yaml:"segmentation"`
	Unmatched       []profile.Unmatched               `yaml:"unmatched_assets,omitempty"`
	Excluded        []string                          `yaml:"excluded_assets,omitempty"`
	Stylistic       []model.RubyAnnotation            `yaml:"stylistic_ruby,omitempty"`
	Fragments       map[string][]model.RubyAnnotation `yaml:"ruby_fragments,omitempty"`
	Rejected        []model.RubyAnnotation            `yaml:"rejected_ruby,omitempty"`
	Warnings        []model.Warning                   `yaml:"warnings,omitempty"`
}

func writeReview(path string, m *manifest.Manifest, det profile.Detection, cat *images.Catalog, rr *ruby.Result, warnings []model.Warning) error {
	rev := Review{
		VolumeID:        m.VolumeID,
		Profile:         det.Profile.Name,
		ProfileFallback: det.Fallback,
		Segmentation:    m.Source.Segmentation,
		Unmatched:       cat.Unmatched,
		Excluded:        cat.Excluded,
		Stylistic:       rr.Stylistic,
		Fragments:       rr.Fragments,
		Rejected:        rr.Rejected,
		Warnings:        warnings,
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(rev); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return atomicfile.WriteFile(path, buf.Bytes(), 0o644)
}

// LoadReview reads a volume's review report.
func (p *Pipeline) LoadReview(volumeID string) (*Review, error) {
	if err := checkVolumeID(volumeID); err != nil {
		return nil, err
	}
	data, err := readFile(p.VolumeDir(volumeID), ReviewFile)
	if err != nil {
		return nil, err
	}
	var rev Review
	if err := yaml.Unmarshal(data, &rev); err != nil {
		return nil, err
	}
	return &rev, nil
}
