package model

import (
	"fmt"
	"strings"
)

// ImageRole classifies an image file. Roles are assigned once by the
// publisher profile matcher and never re-derived.
type ImageRole int

const (
	RoleUnknown ImageRole = iota
	RoleCover
	RoleColorPlate
	RoleIllustration
	RoleExcluded
)

func (r ImageRole) String() string {
	switch r {
	case RoleCover:
		return "cover"
	case RoleColorPlate:
		return "color_plate"
	case RoleIllustration:
		return "illustration"
	case RoleExcluded:
		return "excluded"
	default:
		return "unknown"
	}
}

// ParseImageRole converts a role name to an ImageRole. Both snake_case and
// the profile file spellings ("colorplate", "kuchie") are accepted.
func ParseImageRole(s string) (ImageRole, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cover":
		return RoleCover, nil
	case "color_plate", "colorplate", "color-plate", "kuchie":
		return RoleColorPlate, nil
	case "illustration", "illust":
		return RoleIllustration, nil
	case "excluded", "exclude", "glyph":
		return RoleExcluded, nil
	case "unknown", "":
		return RoleUnknown, nil
	}
	return RoleUnknown, fmt.Errorf("unknown image role %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (r ImageRole) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *ImageRole) UnmarshalText(b []byte) error {
	role, err := ParseImageRole(string(b))
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// Orientation of an image, derived from its pixel dimensions.
type Orientation int

const (
	OrientationUnknown Orientation = iota
	Portrait
	Landscape
)

func (o Orientation) String() string {
	switch o {
	case Portrait:
		return "portrait"
	case Landscape:
		return "landscape"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o Orientation) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Orientation) UnmarshalText(b []byte) error {
	switch string(b) {
	case "portrait":
		*o = Portrait
	case "landscape":
		*o = Landscape
	case "unknown", "":
		*o = OrientationUnknown
	default:
		return fmt.Errorf("unknown orientation %q", string(b))
	}
	return nil
}

// OrientationOf returns Landscape when width exceeds height, Portrait
// otherwise. Zero dimensions yield OrientationUnknown.
func OrientationOf(width, height int) Orientation {
	if width <= 0 || height <= 0 {
		return OrientationUnknown
	}
	if width > height {
		return Landscape
	}
	return Portrait
}

// ImageRecord describes a classified image.
type ImageRecord struct {
	Filename    string      `json:"filename"`
	Original    string      `json:"original_filename,omitempty"`
	Role        ImageRole   `json:"role"`
	Width       int         `json:"width,omitempty"`
	Height      int         `json:"height,omitempty"`
	Orientation Orientation `json:"orientation,omitempty"`
}

// HasDimensions reports whether width and height have been probed.
func (r ImageRecord) HasDimensions() bool {
	return r.Width > 0 && r.Height > 0
}
