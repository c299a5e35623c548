package chatcontext

import (
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/ricesearch/support-context/internal/store"
)

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func indicator(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}

func contains(haystack, lowerNeedle string) bool {
	return strings.Contains(strings.ToLower(haystack), lowerNeedle)
}

func anyContains(values []string, lowerNeedle string) bool {
	for _, v := range values {
		if contains(v, lowerNeedle) {
			return true
		}
	}
	return false
}

// scoreArticle rates a knowledge-base article against query. The match terms
// add up independently and may exceed 1 before the clamp.
func scoreArticle(query string, a *store.Article) float64 {
	q := strings.ToLower(strings.TrimSpace(query))

	quality := 0.3*math.Min(1, float64(a.ViewCount)/100) +
		0.4*store.HelpfulRatio(a.HelpfulCount, a.NotHelpfulCount, 0.5) +
		0.3*(a.SearchScore/100)

	score := 0.4*indicator(contains(a.Title, q)) +
		0.3*indicator(contains(a.Summary, q)) +
		0.2*indicator(contains(a.Content, q)) +
		0.15*indicator(anyContains(a.Tags, q)) +
		0.1*quality

	return clamp01(score)
}

// scoreFAQ rates an FAQ found by the direct fallback query.
func scoreFAQ(query string, f *store.FAQ) float64 {
	q := strings.ToLower(strings.TrimSpace(query))

	score := 0.5*indicator(contains(f.Question, q)) +
		0.3*indicator(contains(f.Answer, q)) +
		0.2*indicator(anyContains(f.Keywords, q)) +
		0.15*(f.Confidence/100) +
		0.05*math.Min(1, float64(f.UsageCount)/10)

	if f.HelpfulCount+f.NotHelpfulCount > 0 {
		score += 0.05 * store.HelpfulRatio(f.HelpfulCount, f.NotHelpfulCount, 0)
	}

	return clamp01(score)
}

var fileTypeScores = map[string]float64{
	"pdf":  0.9,
	"docx": 0.8,
	"md":   0.8,
	"txt":  0.7,
	"xlsx": 0.6,
}

// documentFileType normalizes the stored type, falling back to the
// filename's extension.
func documentFileType(d *store.SessionDocument) string {
	t := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d.FileType), "."))
	if t == "" {
		t = strings.ToLower(strings.TrimPrefix(filepath.Ext(d.Filename), "."))
	}
	return t
}

func fileTypeScore(fileType string) float64 {
	if s, ok := fileTypeScores[fileType]; ok {
		return s
	}
	return 0.5
}

// scoreDocument rates a session document. Density is matches per thousand
// characters of extracted text.
func scoreDocument(query string, d *store.SessionDocument, now time.Time) float64 {
	q := strings.ToLower(strings.TrimSpace(query))

	var text string
	if d.ExtractedText != nil {
		text = *d.ExtractedText
	}

	density := 0.0
	if n := len([]rune(text)); n > 0 && q != "" {
		occurrences := strings.Count(strings.ToLower(text), q)
		density = float64(occurrences) / (float64(n) / 1000)
	}

	days := now.Sub(d.CreatedAt).Hours() / 24
	recency := clamp01(1 - days/30)

	score := 0.3*indicator(contains(d.Filename, q)) +
		math.Min(0.5, 0.1*density) +
		0.1*fileTypeScore(documentFileType(d)) +
		0.1*recency

	return clamp01(score)
}
