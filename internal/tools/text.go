package tools

import (
	"strings"
	"unicode"
)

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "that": {}, "this": {}, "from": {},
	"are": {}, "was": {}, "has": {}, "have": {}, "will": {}, "its": {}, "into": {},
	"over": {}, "after": {}, "about": {}, "than": {}, "their": {}, "they": {}, "been": {},
	"says": {}, "said": {}, "new": {}, "how": {}, "why": {}, "what": {}, "who": {},
	"but": {}, "not": {}, "you": {}, "can": {}, "more": {}, "amid": {}, "as": {},
}

// tokens returns the lowercase significant words of s as a set.
func tokens(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(w) < 3 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		set[w] = struct{}{}
	}
	return set
}

// jaccard is |a∩b| / |a∪b|, or 0 when both are empty.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

func shared(a, b map[string]struct{}) []string {
	var out []string
	for w := range a {
		if _, ok := b[w]; ok {
			out = append(out, w)
		}
	}
	return out
}

func containsFold(text, needle string) bool {
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(needle))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// keyTerms returns acronyms and capitalized phrases from text, in order of
// first appearance. A lone capitalized word opening a sentence is ignored;
// leading stopwords are trimmed from phrases.
func keyTerms(text string) []string {
	var (
		out           []string
		seen          = make(map[string]bool)
		phrase        []string
		phraseAtStart bool
		sentenceStart = true
	)
	flush := func() {
		words := phrase
		phrase = nil
		if len(words) == 0 {
			return
		}
		if len(words) == 1 && phraseAtStart && !isAcronym(words[0]) {
			return
		}
		for len(words) > 0 {
			if _, stop := stopwords[strings.ToLower(words[0])]; !stop {
				break
			}
			words = words[1:]
		}
		if len(words) == 0 {
			return
		}
		term := strings.Join(words, " ")
		if key := strings.ToLower(term); !seen[key] {
			seen[key] = true
			out = append(out, term)
		}
	}

	for _, raw := range strings.Fields(text) {
		word := strings.TrimFunc(raw, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if word != "" && (isAcronym(word) || isCapitalized(word)) {
			if len(phrase) == 0 {
				phraseAtStart = sentenceStart
			}
			phrase = append(phrase, word)
		} else {
			flush()
		}

		sentenceStart = strings.ContainsAny(raw[len(raw)-1:], ".!?:")
		if sentenceStart || strings.ContainsAny(raw, ",;") {
			flush()
		}
	}
	flush()
	return out
}

func isAcronym(w string) bool {
	if len(w) < 2 || len(w) > 6 {
		return false
	}
	upper := 0
	for _, r := range w {
		switch {
		case unicode.IsUpper(r):
			upper++
		case unicode.IsDigit(r), r == '-', r == '&':
		default:
			return false
		}
	}
	return upper >= 2
}

func isCapitalized(w string) bool {
	for _, r := range w {
		return unicode.IsUpper(r)
	}
	return false
}
