// Package slug derives URL-safe post identifiers from titles.
package slug

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slugify converts a title to a URL-safe slug. Accents are folded to their
// base letters, whitespace, hyphens and underscores become single hyphens,
// and every other non-alphanumeric rune is dropped. The result is empty only
// when title has nothing sluggable in it.
func Slugify(title string) string {
	s := strings.ToLower(title)
	// transform.Chain is stateful, so build it per call.
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(fold, s); err == nil {
		s = folded
	}

	var b strings.Builder
	sep := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if sep && b.Len() > 0 {
				b.WriteByte('-')
			}
			sep = false
			b.WriteRune(r)
		case r == '-' || r == '_' || unicode.IsSpace(r):
			sep = true
		}
	}
	return b.String()
}

// Valid reports whether s is already a canonical slug.
func Valid(s string) bool {
	return s != "" && Slugify(s) == s
}

// WithSuffix returns the n-th candidate for base: base itself for n <= 1,
// otherwise base-n.
func WithSuffix(base string, n int) string {
	if n <= 1 {
		return base
	}
	return base + "-" + strconv.Itoa(n)
}
