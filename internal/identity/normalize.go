// Package identity derives the comparison key used to match directory entries
// across exports, URLs and selection sets.
package identity

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes compatibility forms and drops combining marks so
// "Bäyern" and "Bayern" share a key.
var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))

// Normalize standardizes a display name for matching by:
//  1. Decomposing (NFKD) and removing combining diacritical marks
//  2. Replacing everything except ASCII letters, digits and spaces with a space
//  3. Collapsing whitespace runs and trimming
//  4. Lower-casing
//
// Normalize is idempotent.
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	decomposed, _, err := transform.String(stripMarks, s)
	if err != nil {
		decomposed = s
	}

	var b strings.Builder
	b.Grow(len(decomposed))
	space := true // suppresses leading spaces
	for _, r := range decomposed {
		switch {
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
			space = false
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			space = false
		default:
			if !space {
				b.WriteByte(' ')
				space = true
			}
		}
	}

	return strings.TrimRight(b.String(), " ")
}

// Key returns the identity key for name. The empty key is never a valid
// identity.
func Key(name string) string {
	return Normalize(name)
}

// Equal reports whether a and b resolve to the same non-empty identity.
func Equal(a, b string) bool {
	ka := Normalize(a)
	return ka != "" && ka == Normalize(b)
}
