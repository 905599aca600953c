package assemble

import _ "embed"

//go:embed style.css
var defaultStylesheet []byte

// DefaultStylesheet returns a copy of the stylesheet used when Options
// supplies none.
func DefaultStylesheet() []byte {
	return append([]byte(nil), defaultStylesheet...)
}
