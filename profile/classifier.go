package profile

import (
	"github.com/tsawler/epubkit/model"
)

// Unmatched is a file no pattern matched, kept for human review.
type Unmatched struct {
	Filename  string          `json:"filename" yaml:"filename"`
	Suggested model.ImageRole `json:"suggested_role" yaml:"suggested_role"`
}

// Classifier classifies the images of one volume and remembers the files
// it could not match. It is not safe for concurrent use.
type Classifier struct {
	profile   *Profile
	coverHint string
	seen      map[string]model.ImageRole
	unmatched []Unmatched
}

// NewClassifier creates a classifier bound to a compiled profile.
func NewClassifier(p *Profile) *Classifier {
	return &Classifier{profile: p, seen: make(map[string]model.ImageRole)}
}

// Profile returns the profile in use.
func (c *Classifier) Profile() *Profile {
	return c.profile
}

// SetCoverHint records the archive path the package document declares as
// cover image. The hint applies when no pattern matches the file or when
// it only matched as an illustration; an Excluded match still wins.
func (c *Classifier) SetCoverHint(archivePath string) {
	c.coverHint = archivePath
}

// Classify returns the role of a file. Each file is classified once; later
// calls return the first answer.
func (c *Classifier) Classify(filename string) model.ImageRole {
	if role, ok := c.seen[filename]; ok {
		return role
	}

	m := Classify(filename, c.profile)
	role := m.Role
	if filename == c.coverHint && c.coverHint != "" {
		switch role {
		case model.RoleUnknown, model.RoleIllustration:
			role = model.RoleCover
		}
	}

	if role == model.RoleUnknown {
		c.unmatched = append(c.unmatched, Unmatched{
			Filename:  filename,
			Suggested: SuggestRole(filename),
		})
	}
	c.seen[filename] = role
	return role
}

// Unmatched returns the files no pattern matched, in classification order.
func (c *Classifier) Unmatched() []Unmatched {
	out := make([]Unmatched, len(c.unmatched))
	copy(out, c.unmatched)
	return out
}

// Warnings reports every unmatched file as an UnmatchedAsset warning.
func (c *Classifier) Warnings() []model.Warning {
	var ws model.Warnings
	for _, u := range c.unmatched {
		ws.Add(model.KindUnmatchedAsset, u.Filename, "no %s pattern matched; suggested role %s", c.profile.Name, u.Suggested)
	}
	return ws
}
