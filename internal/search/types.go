package search

import "time"

// Result types.
const (
	TypeFAQ     = "faq"
	TypeArticle = "article"
)

// SortBy selects the ordering of merged results.
type SortBy string

const (
	SortRelevance  SortBy = "relevance"
	SortConfidence SortBy = "confidence"
	SortPopularity SortBy = "popularity"
	SortDate       SortBy = "date"
)

// SortOrder is ASC or DESC.
type SortOrder string

const (
	SortAsc  SortOrder = "ASC"
	SortDesc SortOrder = "DESC"
)

// Request is a full-text search over FAQs and articles.
type Request struct {
	Query   string  `json:"query"`
	Filters Filters `json:"filters"`
	Options Options `json:"options"`
}

// Filters constrain the candidate set.
type Filters struct {
	Categories []string `json:"categories,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	// MinConfidence applies to FAQs only (0..100).
	MinConfidence float64    `json:"min_confidence,omitempty"`
	DateFrom      *time.Time `json:"date_from,omitempty"`
	DateTo        *time.Time `json:"date_to,omitempty"`
	// Both include flags default to true when unset.
	IncludeFAQs     *bool `json:"include_faqs,omitempty"`
	IncludeArticles *bool `json:"include_articles,omitempty"`
}

// Options control paging, ordering and presentation.
type Options struct {
	Limit     int       `json:"limit,omitempty"`
	Offset    int       `json:"offset,omitempty"`
	SortBy    SortBy    `json:"sort_by,omitempty"`
	SortOrder SortOrder `json:"sort_order,omitempty"`
	// Highlight wraps query matches in the snippet with <mark> tags.
	Highlight bool `json:"highlight,omitempty"`
}

// Result is one scored FAQ or article. RelevanceScore is 0..100.
type Result struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	Title          string         `json:"title"`
	Content        string         `json:"content"`
	Snippet        string         `json:"snippet"`
	RelevanceScore float64        `json:"relevance_score"`
	Confidence     *float64       `json:"confidence,omitempty"`
	Category       string         `json:"category,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
	URL            string         `json:"url,omitempty"`
	Metadata       ResultMetadata `json:"metadata"`
}

// ResultMetadata carries popularity and timestamps.
type ResultMetadata struct {
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	UsageCount   int       `json:"usage_count"`
	HelpfulCount int       `json:"helpful_count"`
}

// RelatedFAQ is a published FAQ sharing tags with the top results.
type RelatedFAQ struct {
	ID         string `json:"id"`
	Question   string `json:"question"`
	Category   string `json:"category,omitempty"`
	UsageCount int    `json:"usage_count"`
}

// Response is a page of results plus suggestions and related FAQs.
type Response struct {
	Results     []Result     `json:"results"`
	Total       int          `json:"total"`
	Page        int          `json:"page"`
	Limit       int          `json:"limit"`
	Suggestions []string     `json:"suggestions"`
	RelatedFAQs []RelatedFAQ `json:"related_faqs"`
	// ProcessingTime is wall-clock milliseconds.
	ProcessingTime float64 `json:"processing_time"`
}

func emptyResponse(limit int) *Response {
	return &Response{
		Results:     []Result{},
		Page:        1,
		Limit:       limit,
		Suggestions: []string{},
		RelatedFAQs: []RelatedFAQ{},
	}
}
