// Package profile classifies image files by publisher naming convention.
//
// A profile is data: a named set of aliases, ordered filename patterns per
// image role and content-handling parameters. Profiles ship embedded in
// the binary and may be overridden or extended from a directory of YAML
// files at runtime; every file is validated against a JSON schema and every
// pattern is compiled before the profile is trusted.
//
// Matching is a pure function of (filename, profile): [Classify] tests the
// Excluded patterns first, then Cover, ColorPlate and Illustration, and the
// first match wins.
package profile

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/tsawler/epubkit/model"
)

// Patterns holds the ordered filename patterns for each role.
type Patterns struct {
	Excluded     []string `yaml:"excluded,omitempty" json:"excluded,omitempty"`
	Cover        []string `yaml:"cover,omitempty" json:"cover,omitempty"`
	ColorPlate   []string `yaml:"color_plate,omitempty" json:"color_plate,omitempty"`
	Illustration []string `yaml:"illustration,omitempty" json:"illustration,omitempty"`
}

// Content holds the content-handling parameters of a profile.
type Content struct {
	// NavFallbackThreshold is the navigation entry count below which
	// segmentation scans content for chapter titles. Zero inherits the
	// configured default.
	NavFallbackThreshold int `yaml:"nav_fallback_threshold,omitempty" json:"nav_fallback_threshold,omitempty"`

	// TitlePatterns detect chapter titles in content lines. Empty inherits
	// the generic profile's list.
	TitlePatterns []string `yaml:"title_patterns,omitempty" json:"title_patterns,omitempty"`
}

// Profile is one publisher's conventions.
type Profile struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Generic     bool     `yaml:"generic,omitempty" json:"generic,omitempty"`
	Aliases     []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	Patterns    Patterns `yaml:"patterns" json:"patterns"`
	Content     Content  `yaml:"content,omitempty" json:"content,omitempty"`

	// Source is the file the profile was loaded from.
	Source string `yaml:"-" json:"source,omitempty"`

	compiled [4]roleSet
	titles   []*regexp.Regexp
}

type roleSet struct {
	role     model.ImageRole
	patterns []*regexp.Regexp
}

// cascade is the fixed evaluation order.
var cascade = [4]model.ImageRole{
	model.RoleExcluded,
	model.RoleCover,
	model.RoleColorPlate,
	model.RoleIllustration,
}

// Compile compiles every pattern of the profile. A profile must compile
// before it can classify.
func (p *Profile) Compile() error {
	lists := map[model.ImageRole][]string{
		model.RoleExcluded:     p.Patterns.Excluded,
		model.RoleCover:        p.Patterns.Cover,
		model.RoleColorPlate:   p.Patterns.ColorPlate,
		model.RoleIllustration: p.Patterns.Illustration,
	}

	var compiled [4]roleSet
	for i, role := range cascade {
		compiled[i].role = role
		for _, expr := range lists[role] {
			re, err := regexp.Compile(expr)
			if err != nil {
				return fmt.Errorf("profile %s: %s pattern %q: %w", p.Name, role, expr, err)
			}
			compiled[i].patterns = append(compiled[i].patterns, re)
		}
	}

	var titles []*regexp.Regexp
	for _, expr := range p.Content.TitlePatterns {
		re, err := regexp.Compile(expr)
		if err != nil {
			return fmt.Errorf("profile %s: title pattern %q: %w", p.Name, expr, err)
		}
		titles = append(titles, re)
	}

	p.compiled = compiled
	p.titles = titles
	return nil
}

// TitlePatterns returns the compiled chapter-title patterns.
func (p *Profile) TitlePatterns() []*regexp.Regexp {
	return p.titles
}

// Match is the outcome of classifying one filename.
type Match struct {
	Role    model.ImageRole
	Pattern string // the pattern that matched, "" when unmatched
}

// Matched reports whether any pattern matched.
func (m Match) Matched() bool {
	return m.Pattern != ""
}

// Classify assigns a role to a filename. Only the base name is matched.
// Excluded patterns are tested first, so a glyph file that also looks like
// an illustration is always excluded.
func Classify(filename string, p *Profile) Match {
	base := path.Base(filename)
	for _, set := range p.compiled {
		for _, re := range set.patterns {
			if re.MatchString(base) {
				return Match{Role: set.role, Pattern: re.String()}
			}
		}
	}
	return Match{Role: model.RoleUnknown}
}

var (
	trailingNumber = regexp.MustCompile(`\d+[a-z]?$`)
	glyphShape     = regexp.MustCompile(`(?i)(gaiji|glyph|^g\d+$|logo|icon|mark)`)
)

// SuggestRole derives a best-effort role from the generic shape of a
// filename. It is used for review of files no pattern matched.
func SuggestRole(filename string) model.ImageRole {
	base := strings.ToLower(path.Base(filename))
	stem := strings.TrimSuffix(base, path.Ext(base))

	switch {
	case strings.Contains(stem, "cover") || strings.Contains(stem, "hyoushi") || strings.Contains(stem, "表紙"):
		return model.RoleCover
	case strings.Contains(stem, "kuchie") || strings.Contains(stem, "color") ||
		strings.Contains(stem, "colour") || strings.Contains(stem, "口絵"):
		return model.RoleColorPlate
	case glyphShape.MatchString(stem):
		return model.RoleExcluded
	case trailingNumber.MatchString(stem):
		return model.RoleIllustration
	}
	return model.RoleUnknown
}
