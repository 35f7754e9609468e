package ingest

import (
	"html"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var accentStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// ComparisonTitle normalizes a display title into the form used for
// sorting and matching: HTML entities decoded, lowercased, leading
// English articles dropped, accents stripped, non-alphanumerics
// removed. "The Matrix" and "Amélie" become "matrix" and "amelie".
func ComparisonTitle(title string) string {
	t := html.UnescapeString(title)
	t = strings.ToLower(t)

	// Only one leading article is dropped, so "the a team" keeps its
	// second article.
	if strings.HasPrefix(t, "the ") {
		t = strings.TrimPrefix(t, "the ")
	} else if strings.HasPrefix(t, "a ") {
		t = strings.TrimPrefix(t, "a ")
	}

	if stripped, _, err := transform.String(accentStripper, t); err == nil {
		t = stripped
	}

	var b strings.Builder
	b.Grow(len(t))
	for _, r := range t {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	return b.String()
}
