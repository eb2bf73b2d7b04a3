package ingestion

import (
	"html"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// maxSummaryRunes caps a stored summary.
const maxSummaryRunes = 1000

// Normalize applies NFKC, drops control characters and collapses runs of
// whitespace to single spaces.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeSummary strips markup from a feed description, unescapes
// entities, normalizes and caps the length.
func NormalizeSummary(s string) string {
	s = Normalize(html.UnescapeString(stripTags(s)))
	if r := []rune(s); len(r) > maxSummaryRunes {
		s = strings.TrimSpace(string(r[:maxSummaryRunes])) + "…"
	}
	return s
}

// stripTags replaces <...> spans with a space.
func stripTags(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	depth := 0
	for _, r := range s {
		switch {
		case r == '<':
			depth++
		case r == '>' && depth > 0:
			depth--
			b.WriteByte(' ')
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}
