// Package match provides the text and distance primitives shared by the
// artist resolver and the duplicate scorer: canonical name keys,
// normalized edit-distance similarity, and geodesic distance.
package match

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// deaccent decomposes to NFD, drops combining marks, and recomposes,
// so "José" and "Jose" share a canonical key.
var deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// CanonicalKey standardizes a name for lookup equality:
//  1. Strip diacritics
//  2. Lowercase
//  3. Drop punctuation and symbols
//  4. Collapse internal whitespace to single spaces
func CanonicalKey(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	if stripped, _, err := transform.String(deaccent, name); err == nil {
		name = stripped
	}

	var b strings.Builder
	b.Grow(len(name))
	lastSpace := false
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace && b.Len() > 0 {
				b.WriteRune(' ')
			}
			lastSpace = true
		default:
			// Punctuation joins words: "Smith-Jones" -> "smith jones".
			if !lastSpace && b.Len() > 0 {
				b.WriteRune(' ')
			}
			lastSpace = true
		}
	}

	return strings.TrimSpace(b.String())
}
