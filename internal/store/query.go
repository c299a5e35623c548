package store

import (
	"sort"
	"strings"
	"time"
)

// ArticleQuery selects articles. Terms match case-insensitively as substrings
// of title, content, summary or any tag; an article matches if any term does.
// Results are ordered by search score, views and helpful votes, descending.
type ArticleQuery struct {
	Terms      []string
	Status     ArticleStatus // empty means any
	Categories []string
	Tags       []string
	DateFrom   *time.Time
	DateTo     *time.Time
	Limit      int // 0 means unlimited
}

// FAQQuery selects FAQs. Terms match question, answer or any keyword.
// Results are ordered by confidence then usage, descending.
type FAQQuery struct {
	Terms         []string
	Statuses      []FAQStatus // empty means any
	Categories    []string
	Tags          []string
	MinConfidence float64
	DateFrom      *time.Time
	DateTo        *time.Time
	Limit         int
}

// DocumentQuery selects completed, extracted documents of one session whose
// text contains Term. Results are newest first, then smallest first.
type DocumentQuery struct {
	SessionID string
	Term      string
	Limit     int
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func anyContainsFold(values []string, needle string) bool {
	for _, v := range values {
		if containsFold(v, needle) {
			return true
		}
	}
	return false
}

func intersectsFold(values, wanted []string) bool {
	for _, w := range wanted {
		for _, v := range values {
			if strings.EqualFold(v, w) {
				return true
			}
		}
	}
	return false
}

func inCategory(category string, categories []string) bool {
	if len(categories) == 0 {
		return true
	}
	for _, c := range categories {
		if strings.EqualFold(c, category) {
			return true
		}
	}
	return false
}

func inRange(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && t.After(*to) {
		return false
	}
	return true
}

func nonEmptyTerms(terms []string) []string {
	out := terms[:0:0]
	for _, t := range terms {
		if strings.TrimSpace(t) != "" {
			out = append(out, t)
		}
	}
	return out
}

// Match reports whether a satisfies the query predicates.
func (q ArticleQuery) Match(a *Article) bool {
	if q.Status != "" && a.Status != q.Status {
		return false
	}
	if !inCategory(a.Category, q.Categories) {
		return false
	}
	if len(q.Tags) > 0 && !intersectsFold(a.Tags, q.Tags) {
		return false
	}
	if !inRange(a.CreatedAt, q.DateFrom, q.DateTo) {
		return false
	}

	terms := nonEmptyTerms(q.Terms)
	if len(terms) == 0 {
		return true
	}
	for _, term := range terms {
		if containsFold(a.Title, term) || containsFold(a.Content, term) ||
			containsFold(a.Summary, term) || anyContainsFold(a.Tags, term) {
			return true
		}
	}
	return false
}

// Match reports whether f satisfies the query predicates.
func (q FAQQuery) Match(f *FAQ) bool {
	if len(q.Statuses) > 0 {
		ok := false
		for _, s := range q.Statuses {
			if f.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.Confidence < q.MinConfidence {
		return false
	}
	if !inCategory(f.Category, q.Categories) {
		return false
	}
	if len(q.Tags) > 0 && !intersectsFold(f.Keywords, q.Tags) {
		return false
	}
	if !inRange(f.CreatedAt, q.DateFrom, q.DateTo) {
		return false
	}

	terms := nonEmptyTerms(q.Terms)
	if len(terms) == 0 {
		return true
	}
	for _, term := range terms {
		if containsFold(f.Question, term) || containsFold(f.Answer, term) ||
			anyContainsFold(f.Keywords, term) {
			return true
		}
	}
	return false
}

// Match reports whether d satisfies the query predicates.
func (q DocumentQuery) Match(d *SessionDocument) bool {
	if d.SessionID != q.SessionID || d.Status != DocumentCompleted || d.ExtractedText == nil {
		return false
	}
	return containsFold(*d.ExtractedText, q.Term)
}

func sortArticles(articles []Article) {
	sort.SliceStable(articles, func(i, j int) bool {
		a, b := articles[i], articles[j]
		if a.SearchScore != b.SearchScore {
			return a.SearchScore > b.SearchScore
		}
		if a.ViewCount != b.ViewCount {
			return a.ViewCount > b.ViewCount
		}
		return a.HelpfulCount > b.HelpfulCount
	})
}

func sortFAQs(faqs []FAQ) {
	sort.SliceStable(faqs, func(i, j int) bool {
		if faqs[i].Confidence != faqs[j].Confidence {
			return faqs[i].Confidence > faqs[j].Confidence
		}
		return faqs[i].UsageCount > faqs[j].UsageCount
	})
}

func sortFAQsByUsage(faqs []FAQ) {
	sort.SliceStable(faqs, func(i, j int) bool {
		return faqs[i].UsageCount > faqs[j].UsageCount
	})
}

func sortDocuments(docs []SessionDocument) {
	sort.SliceStable(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		}
		return docs[i].FileSize < docs[j].FileSize
	})
}

func capLen[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func selectArticles(candidates []Article, q ArticleQuery) []Article {
	out := make([]Article, 0, len(candidates))
	for i := range candidates {
		if q.Match(&candidates[i]) {
			out = append(out, cloneArticle(candidates[i]))
		}
	}
	sortArticles(out)
	return capLen(out, q.Limit)
}

func selectFAQs(candidates []FAQ, q FAQQuery) []FAQ {
	out := make([]FAQ, 0, len(candidates))
	for i := range candidates {
		if q.Match(&candidates[i]) {
			out = append(out, cloneFAQ(candidates[i]))
		}
	}
	sortFAQs(out)
	return capLen(out, q.Limit)
}

func selectDocuments(candidates []SessionDocument, q DocumentQuery) []SessionDocument {
	out := make([]SessionDocument, 0, len(candidates))
	for i := range candidates {
		if q.Match(&candidates[i]) {
			out = append(out, cloneDocument(candidates[i]))
		}
	}
	sortDocuments(out)
	return capLen(out, q.Limit)
}

func selectRelatedFAQs(candidates []FAQ, tags, excludeIDs []string, limit int) []FAQ {
	exclude := make(map[string]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		exclude[id] = true
	}

	out := make([]FAQ, 0)
	for _, f := range candidates {
		if f.Status != FAQPublished || exclude[f.ID] {
			continue
		}
		if intersectsFold(f.Keywords, tags) {
			out = append(out, cloneFAQ(f))
		}
	}
	sortFAQsByUsage(out)
	return capLen(out, limit)
}

func selectPopularFAQs(candidates []FAQ, limit int) []FAQ {
	out := make([]FAQ, 0)
	for _, f := range candidates {
		if f.Status == FAQPublished {
			out = append(out, cloneFAQ(f))
		}
	}
	sortFAQsByUsage(out)
	return capLen(out, limit)
}

func cloneArticle(a Article) Article {
	a.Tags = append([]string(nil), a.Tags...)
	return a
}

func cloneFAQ(f FAQ) FAQ {
	f.Keywords = append([]string(nil), f.Keywords...)
	return f
}

func cloneDocument(d SessionDocument) SessionDocument {
	if d.ExtractedText != nil {
		text := *d.ExtractedText
		d.ExtractedText = &text
	}
	return d
}

func cloneRecord(r ContextRecord) ContextRecord {
	if r.Metadata != nil {
		md := make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			md[k] = v
		}
		r.Metadata = md
	}
	return r
}
