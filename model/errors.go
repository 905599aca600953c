package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies pipeline failures and warnings.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindContainerCorrupt: the archive cannot be opened. Fatal.
	KindContainerCorrupt
	// KindStructureMissing: no package document or spine. Fatal.
	KindStructureMissing
	// KindNavigationAbsent: no usable table of contents. Triggers fallback.
	KindNavigationAbsent
	// KindUnmatchedAsset: an image matched no profile pattern. Non-fatal.
	KindUnmatchedAsset
	// KindChapterFileMissing: a referenced content file is absent. Non-fatal.
	KindChapterFileMissing
	// KindPackagingInvalid: the rebuilt archive failed validation. Fatal.
	KindPackagingInvalid
	// KindConversion: one chapter failed to convert. Non-fatal.
	KindConversion
)

func (k ErrorKind) String() string {
	switch k {
	case KindContainerCorrupt:
		return "ContainerCorrupt"
	case KindStructureMissing:
		return "StructureMissing"
	case KindNavigationAbsent:
		return "NavigationAbsent"
	case KindUnmatchedAsset:
		return "UnmatchedAsset"
	case KindChapterFileMissing:
		return "ChapterFileMissing"
	case KindPackagingInvalid:
		return "PackagingInvalid"
	case KindConversion:
		return "Conversion"
	default:
		return "Unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ErrorKind) UnmarshalText(b []byte) error {
	for c := KindUnknown; c <= KindConversion; c++ {
		if c.String() == string(b) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown error kind %q", string(b))
}

// Fatal reports whether an error of this kind aborts the current run.
func (k ErrorKind) Fatal() bool {
	switch k {
	case KindContainerCorrupt, KindStructureMissing, KindPackagingInvalid:
		return true
	}
	return false
}

// Kind sentinels for errors.Is.
var (
	ErrContainerCorrupt   = &Error{Kind: KindContainerCorrupt}
	ErrStructureMissing   = &Error{Kind: KindStructureMissing}
	ErrNavigationAbsent   = &Error{Kind: KindNavigationAbsent}
	ErrUnmatchedAsset     = &Error{Kind: KindUnmatchedAsset}
	ErrChapterFileMissing = &Error{Kind: KindChapterFileMissing}
	ErrPackagingInvalid   = &Error{Kind: KindPackagingInvalid}
)

// Error is a classified pipeline error.
type Error struct {
	Kind ErrorKind
	Op   string // operation, e.g. "open", "spine", "validate"
	Path string // archive member or file path, if any
	Err  error
}

// NewError creates a classified error.
func NewError(kind ErrorKind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	if e.Op != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Op)
	}
	if e.Path != "" {
		sb.WriteString(" ")
		sb.WriteString(e.Path)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches kind sentinels: errors.Is(err, model.ErrStructureMissing).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Path == "" && t.Err == nil
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Warning is a non-fatal condition recorded during a run.
type Warning struct {
	Kind    ErrorKind `json:"kind" yaml:"kind"`
	Path    string    `json:"path,omitempty" yaml:"path,omitempty"`
	Message string    `json:"message" yaml:"message"`
}

func (w Warning) String() string {
	if w.Path != "" {
		return fmt.Sprintf("%s %s: %s", w.Kind, w.Path, w.Message)
	}
	return fmt.Sprintf("%s: %s", w.Kind, w.Message)
}

// Warnings accumulates warnings in the order they were raised.
type Warnings []Warning

// Add appends a warning.
func (ws *Warnings) Add(kind ErrorKind, path, format string, args ...any) {
	*ws = append(*ws, Warning{Kind: kind, Path: path, Message: fmt.Sprintf(format, args...)})
}

// Merge appends all warnings from other.
func (ws *Warnings) Merge(other []Warning) {
	*ws = append(*ws, other...)
}

// Count returns the number of warnings of the given kind.
func (ws Warnings) Count(kind ErrorKind) int {
	n := 0
	for _, w := range ws {
		if w.Kind == kind {
			n++
		}
	}
	return n
}

// FormatWarnings renders warnings one per line.
func FormatWarnings(ws []Warning) string {
	lines := make([]string, len(ws))
	for i, w := range ws {
		lines[i] = w.String()
	}
	return strings.Join(lines, "\n")
}
