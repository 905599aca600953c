// Package manifest holds the persisted record of one volume.
//
// The manifest is the only channel between pipeline phases. Each phase
// loads it, does its work, and saves it back atomically before returning,
// so a crash leaves the last completed phase's record intact.
package manifest

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/tsawler/epubkit/model"
)

// Version is the manifest format version written by this package.
const Version = 1

// Translation status values.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// Phase names used in PipelineState.
const (
	PhaseExtract = "extract"
	PhaseRebuild = "rebuild"
)

// Manifest is the aggregate root of a volume.
type Manifest struct {
	Version  int            `json:"version"`
	VolumeID string         `json:"volume_id"`
	Metadata model.Metadata `json:"metadata"`

	// Translated holds one metadata block per target language. It is
	// encoded as top-level metadata_<lang> members.
	Translated map[string]model.Metadata `json:"-"`

	Source        Source                 `json:"source"`
	Chapters      []Chapter              `json:"chapters"`
	Assets        Assets                 `json:"assets"`
	FrontMatter   []FrontMatter          `json:"front_matter,omitempty"`
	PipelineState map[string]PhaseState  `json:"pipeline_state"`
	RubyNames     []model.RubyAnnotation `json:"ruby_names"`
}

// Source records where the volume came from and how it was read.
type Source struct {
	Container    string `json:"container"`
	Profile      string `json:"profile"`
	Segmentation string `json:"segmentation"`
	NavEntries   int    `json:"nav_entries"`
}

// Chapter is the persisted form of a chapter. The body lives in
// SourceFile, relative to the volume directory.
type Chapter struct {
	ID              string   `json:"id"`
	BaseID          string   `json:"base_id,omitempty"`
	Part            int      `json:"part,omitempty"`
	Ordinal         int      `json:"ordinal"`
	Title           string   `json:"title"`
	TranslatedTitle string   `json:"translated_title,omitempty"`
	Level           int      `json:"level"`
	SourceFile      string   `json:"source_file"`
	TranslatedFile  string   `json:"translated_file,omitempty"`
	SpineFiles      []string `json:"spine_files,omitempty"`
	Illustrations   []string `json:"illustrations"`
	IsFrontMatter   bool     `json:"is_front_matter,omitempty"`

	TranslationStatus string `json:"translation_status"`
	QCStatus          string `json:"qc_status,omitempty"`
}

// Assets lists the cataloged images by normalized filename.
type Assets struct {
	Cover         string              `json:"cover"`
	ColorPlates   []model.ImageRecord `json:"color_plates"`
	Illustrations []string            `json:"illustrations"`
}

// FrontMatter is a non-chapter page exported for reference.
type FrontMatter struct {
	Kind       string `json:"kind"`
	Title      string `json:"title,omitempty"`
	SourceFile string `json:"source_file"`
	SpineFile  string `json:"spine_file"`
}

// PhaseState is the outcome of one pipeline phase.
type PhaseState struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Counts    map[string]int `json:"counts,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// New returns an empty manifest for a volume.
func New(volumeID string) *Manifest {
	return &Manifest{
		Version:       Version,
		VolumeID:      volumeID,
		Translated:    make(map[string]model.Metadata),
		PipelineState: make(map[string]PhaseState),
	}
}

// FromChapter converts a segmented chapter. The body is not carried.
func FromChapter(ch model.Chapter, sourceFile string) Chapter {
	ills := ch.Illustrations
	if ills == nil {
		ills = []string{}
	}
	return Chapter{
		ID:                ch.ID,
		BaseID:            ch.BaseID,
		Part:              ch.Part,
		Ordinal:           ch.Ordinal,
		Title:             ch.Title,
		Level:             ch.Level,
		SourceFile:        sourceFile,
		SpineFiles:        ch.SourceFiles,
		Illustrations:     ills,
		IsFrontMatter:     ch.IsFrontMatter,
		TranslationStatus: StatusPending,
	}
}

// Model converts a persisted chapter back, with the given body.
func (c Chapter) Model(body []model.Block) model.Chapter {
	return model.Chapter{
		ID:            c.ID,
		BaseID:        c.BaseID,
		Part:          c.Part,
		Ordinal:       c.Ordinal,
		Title:         c.Title,
		Level:         c.Level,
		Body:          body,
		Illustrations: c.Illustrations,
		IsFrontMatter: c.IsFrontMatter,
		SourceFiles:   c.SpineFiles,
	}
}

// MetadataFor returns the metadata for a language: the translated block
// with empty fields filled from the source, or the source metadata when
// lang is empty or has no block.
func (m *Manifest) MetadataFor(lang string) model.Metadata {
	src := m.Metadata
	t, ok := m.Translated[lang]
	if lang == "" || !ok {
		return src
	}
	if t.Title == "" {
		t.Title = src.Title
	}
	if len(t.Creators) == 0 {
		t.Creators = src.Creators
	}
	if t.Language == "" {
		t.Language = lang
	}
	if t.Identifier == "" {
		t.Identifier = src.Identifier
	}
	if t.Publisher == "" {
		t.Publisher = src.Publisher
	}
	if t.Date == "" {
		t.Date = src.Date
	}
	if t.Description == "" {
		t.Description = src.Description
	}
	if len(t.Subjects) == 0 {
		t.Subjects = src.Subjects
	}
	if t.Rights == "" {
		t.Rights = src.Rights
	}
	return t
}

// Languages returns the target languages with a metadata block, sorted.
func (m *Manifest) Languages() []string {
	out := make([]string, 0, len(m.Translated))
	for l := range m.Translated {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// SetPhase records the outcome of a phase.
func (m *Manifest) SetPhase(name, status string, counts map[string]int, err error) {
	if m.PipelineState == nil {
		m.PipelineState = make(map[string]PhaseState)
	}
	st := PhaseState{Status: status, Timestamp: time.Now().UTC(), Counts: counts}
	if err != nil {
		st.Error = err.Error()
	}
	m.PipelineState[name] = st
}

// Chapter returns the chapter with the given id.
func (m *Manifest) Chapter(id string) (*Chapter, bool) {
	for i := range m.Chapters {
		if m.Chapters[i].ID == id {
			return &m.Chapters[i], true
		}
	}
	return nil, false
}

// Roster returns the character roster as base text to reading.
func (m *Manifest) Roster() map[string]string {
	out := make(map[string]string, len(m.RubyNames))
	for _, r := range m.RubyNames {
		if _, ok := out[r.BaseText]; !ok {
			out[r.BaseText] = r.Reading
		}
	}
	return out
}

const translatedPrefix = "metadata_"

var langTag = regexp.MustCompile(`^[a-z]{2,3}(-[A-Za-z0-9]+)*$`)

// manifestFields is Manifest without custom marshaling.
type manifestFields Manifest

// MarshalJSON writes Translated as metadata_<lang> members.
func (m Manifest) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(manifestFields(m))
	if err != nil {
		return nil, err
	}
	if len(m.Translated) == 0 {
		return base, nil
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(base, &members); err != nil {
		return nil, err
	}
	for lang, md := range m.Translated {
		if !langTag.MatchString(lang) {
			return nil, fmt.Errorf("invalid language tag %q", lang)
		}
		raw, err := json.Marshal(md)
		if err != nil {
			return nil, err
		}
		members[translatedPrefix+lang] = raw
	}
	return json.Marshal(members)
}

// UnmarshalJSON reads metadata_<lang> members into Translated.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	var f manifestFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return err
	}
	f.Translated = make(map[string]model.Metadata)
	for k, raw := range members {
		lang, ok := strings.CutPrefix(k, translatedPrefix)
		if !ok {
			continue
		}
		var md model.Metadata
		if err := json.Unmarshal(raw, &md); err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		f.Translated[lang] = md
	}
	if f.PipelineState == nil {
		f.PipelineState = make(map[string]PhaseState)
	}
	*m = Manifest(f)
	return nil
}
