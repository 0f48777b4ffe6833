// Package slug derives stable URL-safe identifiers from display names and
// film titles. Every store keys records by these identifiers, so the output
// must never change for a given input across runs.
package slug

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var asciiFold = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Make converts a display name to a slug: diacritics stripped, lowercased,
// non-alphanumeric runs collapsed to a single hyphen.
func Make(name string) string {
	folded, _, err := transform.String(asciiFold, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	lastHyphen := true // suppress leading hyphen
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case r > unicode.MaxASCII:
			// Runes the fold could not map to ASCII are dropped, not
			// hyphenated: "8½" decomposes to 8, 1, ⁄, 2 and must stay
			// one run ("812"), not split at the fraction slash.
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// FilmID creates a film identifier from title and year. Films without a
// known year get the bare title slug.
func FilmID(title string, year *int) string {
	s := Make(title)
	if year != nil && *year > 0 {
		return fmt.Sprintf("%s-%d", s, *year)
	}
	return s
}

// Table tracks claimed slugs and disambiguates collisions with a counter
// suffix. Disambiguation is deterministic given a stable claim order.
type Table struct {
	claimed map[string]bool
}

// NewTable creates an empty slug table.
func NewTable() *Table {
	return &Table{claimed: make(map[string]bool)}
}

// Seed marks already-assigned slugs as claimed so existing entities keep
// their identifiers across runs.
func (t *Table) Seed(slugs ...string) {
	for _, s := range slugs {
		if s != "" {
			t.claimed[s] = true
		}
	}
}

// Claim returns a unique slug for the given display name, suffixing -2, -3,
// and so on when the base slug is already taken by a distinct entity.
func (t *Table) Claim(name string) string {
	base := Make(name)
	if base == "" {
		base = "untitled"
	}
	s := base
	for n := 2; t.claimed[s]; n++ {
		s = fmt.Sprintf("%s-%d", base, n)
	}
	t.claimed[s] = true
	return s
}
