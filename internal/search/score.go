package search

import (
	"math"
	"strings"
	"unicode"

	"github.com/ricesearch/support-context/internal/store"
)

// Score weights, 0..100 scale.
const (
	titleExactPoints  = 50
	titleWordPoints   = 30
	contentPoints     = 20
	keywordPoints     = 5
	keywordCap        = 15
	qualityPoints     = 10
	popularityCap     = 5
	articleConfidence = 100
	minQueryWordRunes = 2
	maxRelevanceScore = 100
)

// queryWords splits q into lowercase words of at least two characters.
func queryWords(q string) []string {
	fields := strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) >= minQueryWordRunes && !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

// queryTerms is the candidate predicate: the whole query plus each word.
func queryTerms(q string) []string {
	q = strings.TrimSpace(q)
	terms := []string{q}
	for _, w := range queryWords(q) {
		if w != strings.ToLower(q) {
			terms = append(terms, w)
		}
	}
	return terms
}

// wordMatchFraction is the share of query words present as whole words in text.
func wordMatchFraction(text string, words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	present := make(map[string]bool)
	for _, w := range queryWords(text) {
		present[w] = true
	}
	matched := 0
	for _, w := range words {
		if present[w] {
			matched++
		}
	}
	return float64(matched) / float64(len(words))
}

// keywordMatches counts keywords found in the query or containing it.
func keywordMatches(keywords []string, query string) int {
	q := strings.ToLower(strings.TrimSpace(query))
	n := 0
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if strings.Contains(q, k) || strings.Contains(k, q) {
			n++
		}
	}
	return n
}

// relevance computes the 0..100 score shared by FAQs and articles.
func relevance(query, title, content string, keywords []string, confidence float64, usage int) float64 {
	q := strings.TrimSpace(query)
	lq := strings.ToLower(q)
	score := 0.0

	if q != "" && strings.Contains(strings.ToLower(title), lq) {
		score += titleExactPoints
	} else {
		score += titleWordPoints * wordMatchFraction(title, queryWords(q))
	}

	if q != "" && strings.Contains(strings.ToLower(content), lq) {
		score += contentPoints
	}

	score += math.Min(keywordCap, float64(keywordPoints*keywordMatches(keywords, q)))
	score += qualityPoints * (confidence / 100)
	score += math.Min(popularityCap, math.Log10(float64(max(usage, 0))+1))

	return math.Max(0, math.Min(maxRelevanceScore, math.Round(score)))
}

func scoreFAQ(query string, f *store.FAQ) float64 {
	return relevance(query, f.Question, f.Answer, f.Keywords, f.Confidence, f.UsageCount)
}

// Articles have no confidence; they are treated as fully confident.
func scoreArticle(query string, a *store.Article) float64 {
	return relevance(query, a.Title, a.Content, a.Tags, articleConfidence, a.ViewCount)
}
