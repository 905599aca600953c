// Package pipeline runs the two phases of a volume: extraction from a
// source container into a workspace, and rebuilding a container from that
// workspace.
//
// Phases share nothing but the persisted manifest. Each phase loads it (or
// creates it), does its work, and saves it before returning.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/tsawler/epubkit/assemble"
	"github.com/tsawler/epubkit/epubdoc"
	"github.com/tsawler/epubkit/manifest"
	"github.com/tsawler/epubkit/profile"
	"github.com/tsawler/epubkit/ruby"
	"github.com/tsawler/epubkit/segment"
	"github.com/tsawler/epubkit/split"
)

// Workspace layout, relative to a volume directory.
const (
	SourceDir      = "source"
	TranslatedDir  = "translated"
	ImagesDir      = "images"
	FrontMatterDir = "frontmatter"
	OutputDir      = "output"
	ReviewFile     = "review.yaml"
)

// ErrVolumeID is returned for a volume id that cannot name a directory.
var ErrVolumeID = errors.New("invalid volume id")

// ErrUnknownProfile is returned when a forced profile is not loaded.
var ErrUnknownProfile = errors.New("unknown profile")

// Config configures a Pipeline.
type Config struct {
	// WorkDir holds one directory per volume. Default ".".
	WorkDir string

	// Container tunes illustration-only page detection.
	Container epubdoc.Options

	// Segment tunes chapter segmentation. Title patterns and the fallback
	// threshold are taken from the detected publisher profile when it
	// sets them.
	Segment segment.Config

	// SmallImageMaxPx is the size at or below which an inline image is a
	// scene-break ornament.
	SmallImageMaxPx int

	// ProbeAll probes every image's dimensions, not only color plates.
	ProbeAll bool

	Ruby ruby.Config

	// Morphology enables the dictionary-backed ruby signals.
	Morphology bool

	Split split.Config

	// Build holds the assembly options used by Rebuild.
	Build assemble.Options

	// Language is written into rebuilt containers whose metadata has none.
	Language string

	// Profile forces a publisher profile by name instead of detecting one
	// from the container's publisher.
	Profile string

	// Profiles is the publisher profile store. Default: embedded profiles.
	Profiles *profile.Store

	Logger *slog.Logger
}

// Pipeline runs extraction and rebuild. It is safe for concurrent use on
// distinct volumes.
type Pipeline struct {
	cfg      Config
	log      *slog.Logger
	analyzer func() (ruby.Analyzer, error)
}

// New creates a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.WorkDir == "" {
		cfg.WorkDir = "."
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Profiles == nil {
		store, err := profile.Load("", cfg.Logger)
		if err != nil {
			return nil, fmt.Errorf("loading profiles: %w", err)
		}
		cfg.Profiles = store
	}
	if _, err := split.New(cfg.Split); err != nil {
		return nil, err
	}

	p := &Pipeline{cfg: cfg, log: cfg.Logger}
	p.analyzer = sync.OnceValues(func() (ruby.Analyzer, error) {
		if cfg.Ruby.Analyzer != nil {
			return cfg.Ruby.Analyzer, nil
		}
		if !cfg.Morphology {
			return nil, nil
		}
		a, err := ruby.NewKagomeAnalyzer()
		if err != nil {
			return nil, err
		}
		return a, nil
	})
	return p, nil
}

// VolumeDir returns the workspace directory of a volume.
func (p *Pipeline) VolumeDir(volumeID string) string {
	return filepath.Join(p.cfg.WorkDir, volumeID)
}

// ManifestPath returns the manifest path of a volume.
func (p *Pipeline) ManifestPath(volumeID string) string {
	return filepath.Join(p.VolumeDir(volumeID), manifest.FileName)
}

// LoadManifest reads a volume's manifest.
func (p *Pipeline) LoadManifest(volumeID string) (*manifest.Manifest, error) {
	if err := checkVolumeID(volumeID); err != nil {
		return nil, err
	}
	return manifest.Load(p.ManifestPath(volumeID))
}

var unsafeID = regexp.MustCompile(`[^\p{L}\p{N}._-]+`)

// VolumeIDFor derives a volume id from a container filename.
func VolumeIDFor(containerPath string) string {
	base := filepath.Base(containerPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	id := strings.Trim(unsafeID.ReplaceAllString(base, "_"), "._")
	if id == "" {
		id = "volume"
	}
	return id
}

func checkVolumeID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q", ErrVolumeID, id)
	}
	return nil
}

// writeFile writes a workspace file, creating its directory.
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// readFile reads a workspace file by its slash-separated relative path.
func readFile(dir, rel string) ([]byte, error) {
	return os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
}
