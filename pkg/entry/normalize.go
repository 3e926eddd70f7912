package entry

import (
	"strings"
	"unicode"
)

// NormalizeOptions controls payload normalization before hashing.
type NormalizeOptions struct {
	// CaseInsensitive lowercases the payload so that "Market is UP" and
	// "market is up" collapse to one entry.
	CaseInsensitive bool
}

// Normalize trims the payload and collapses every whitespace run into a
// single space.
func Normalize(payload string, opts NormalizeOptions) string {
	var b strings.Builder
	b.Grow(len(payload))

	space := false
	for _, r := range strings.TrimSpace(payload) {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		if opts.CaseInsensitive {
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}

	return b.String()
}
