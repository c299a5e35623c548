// Package chatcontext gathers grounding sources for a chat turn from the
// knowledge base, learned FAQs and the session's uploaded documents, ranks
// them with a diversity penalty and records what was used.
package chatcontext

import (
	"strconv"
	"strings"
	"time"
)

// SourceType identifies the corpus a source came from.
type SourceType string

const (
	SourceKnowledgeBase SourceType = "KNOWLEDGE_BASE"
	SourceFAQLearning   SourceType = "FAQ_LEARNING"
	SourceDocument      SourceType = "DOCUMENT"
	SourceURL           SourceType = "URL"
)

// DefaultSnippetLength is the excerpt length of a source's content.
const DefaultSnippetLength = 300

// ContextSource is one ranked piece of evidence. RelevanceScore is in [0,1].
type ContextSource struct {
	ID             string     `json:"id"`
	Type           SourceType `json:"type"`
	Title          string     `json:"title"`
	Content        string     `json:"content"`
	RelevanceScore float64    `json:"relevance_score"`
	Metadata       Metadata   `json:"metadata"`
	URL            string     `json:"url,omitempty"`
	SourceID       string     `json:"source_id,omitempty"`
}

// Metadata describes a source for citation rendering. Fields that do not
// apply to the source's type stay zero.
type Metadata struct {
	Category     string   `json:"category,omitempty"`
	Author       string   `json:"author,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	ViewCount    int      `json:"view_count,omitempty"`
	UsageCount   int      `json:"usage_count,omitempty"`
	HelpfulCount int      `json:"helpful_count,omitempty"`
	// Confidence is the FAQ's 0..100 confidence.
	Confidence float64   `json:"confidence,omitempty"`
	FileType   string    `json:"file_type,omitempty"`
	FileSize   int64     `json:"file_size,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitzero"`
	// FullContent is the untruncated body the snippet came from.
	FullContent string `json:"full_content,omitempty"`
	SearchQuery string `json:"search_query,omitempty"`
	// Extra holds provider specific values.
	Extra map[string]string `json:"extra,omitempty"`
}

// Fields flattens the metadata into the audit row's key/value form.
// FullContent is left out.
func (m Metadata) Fields() map[string]string {
	out := make(map[string]string)
	put := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	putInt := func(k string, v int64) {
		if v != 0 {
			out[k] = strconv.FormatInt(v, 10)
		}
	}

	put("category", m.Category)
	put("author", m.Author)
	put("tags", strings.Join(m.Tags, ","))
	putInt("view_count", int64(m.ViewCount))
	putInt("usage_count", int64(m.UsageCount))
	putInt("helpful_count", int64(m.HelpfulCount))
	if m.Confidence != 0 {
		out["confidence"] = strconv.FormatFloat(m.Confidence, 'f', -1, 64)
	}
	put("file_type", m.FileType)
	putInt("file_size", m.FileSize)
	put("search_query", m.SearchQuery)
	for k, v := range m.Extra {
		put(k, v)
	}
	return out
}

// Options tune one BuildContext call. Zero values take the engine defaults.
type Options struct {
	MaxSources        int      `json:"max_sources,omitempty"`
	MinRelevanceScore *float64 `json:"min_relevance_score,omitempty"`

	IncludeKnowledgeBase *bool `json:"include_knowledge_base,omitempty"`
	IncludeFAQLearning   *bool `json:"include_faq_learning,omitempty"`
	IncludeDocuments     *bool `json:"include_documents,omitempty"`
}

// Request asks for context for a chat turn.
type Request struct {
	Query     string  `json:"query"`
	SessionID string  `json:"session_id,omitempty"`
	Options   Options `json:"options"`
}

// Result is the ranked context. Sources are in citation order: the n-th
// source is cited as [n].
type Result struct {
	Sources []ContextSource `json:"sources"`
	// TotalRelevanceScore is the sum of the source scores.
	TotalRelevanceScore float64 `json:"total_relevance_score"`
	SearchQuery         string  `json:"search_query"`
	// ProcessingTime is wall-clock milliseconds, always positive.
	ProcessingTime float64 `json:"processing_time"`
}

// Query is what an adapter retrieves for.
type Query struct {
	Text      string
	SessionID string
	Limit     int
}
