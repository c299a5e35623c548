package search

import (
	"sort"
	"strings"
	"unicode"
)

const (
	// DefaultSnippetLength is the excerpt length used by the search service.
	DefaultSnippetLength = 200

	snippetLeadRunes  = 100
	snippetTrailRunes = 200
	ellipsis          = "..."
)

// Rune-wise lowering keeps indexes aligned with the original text, which
// strings.ToLower does not guarantee.
func lowerRunes(rs []rune) []rune {
	out := make([]rune, len(rs))
	for i, r := range rs {
		out[i] = unicode.ToLower(r)
	}
	return out
}

func indexRunes(haystack, needle []rune) int {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return -1
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j, r := range needle {
			if haystack[i+j] != r {
				continue outer
			}
		}
		return i
	}
	return -1
}

// ExtractSnippet returns an excerpt of content around the first
// case-insensitive occurrence of query: 100 characters before the match to
// 200 after it, with "..." wherever the window stops short of the content's
// start or end. Without a match it returns the first maxLength characters,
// with a trailing "..." when truncated.
func ExtractSnippet(content, query string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = DefaultSnippetLength
	}

	runes := []rune(content)
	q := lowerRunes([]rune(strings.TrimSpace(query)))
	idx := indexRunes(lowerRunes(runes), q)

	if idx < 0 {
		if len(runes) <= maxLength {
			return content
		}
		return string(runes[:maxLength]) + ellipsis
	}

	start := max(0, idx-snippetLeadRunes)
	end := min(len(runes), idx+len(q)+snippetTrailRunes)

	var b strings.Builder
	if start > 0 {
		b.WriteString(ellipsis)
	}
	b.WriteString(string(runes[start:end]))
	if end < len(runes) {
		b.WriteString(ellipsis)
	}
	return b.String()
}

// Highlight wraps every case-insensitive occurrence of any term in text with
// <mark></mark>. Longer terms win where matches overlap.
func Highlight(text string, terms []string) string {
	runes := []rune(text)
	lower := lowerRunes(runes)

	var needles [][]rune
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			needles = append(needles, lowerRunes([]rune(t)))
		}
	}
	if len(needles) == 0 {
		return text
	}
	sort.SliceStable(needles, func(i, j int) bool { return len(needles[i]) > len(needles[j]) })

	var b strings.Builder
	for i := 0; i < len(runes); {
		matched := 0
		for _, n := range needles {
			if i+len(n) <= len(lower) && indexRunes(lower[i:i+len(n)], n) == 0 {
				matched = len(n)
				break
			}
		}
		if matched == 0 {
			b.WriteRune(runes[i])
			i++
			continue
		}
		b.WriteString("<mark>")
		b.WriteString(string(runes[i : i+matched]))
		b.WriteString("</mark>")
		i += matched
	}
	return b.String()
}
