package chatcontext

import (
	"github.com/ricesearch/support-context/internal/search"
	"github.com/ricesearch/support-context/internal/store"
)

func mapArticle(a *store.Article, query string, score float64, snippetLen int) ContextSource {
	return ContextSource{
		ID:             a.ID,
		Type:           SourceKnowledgeBase,
		Title:          a.Title,
		Content:        search.ExtractSnippet(a.Content, query, snippetLen),
		RelevanceScore: clamp01(score),
		URL:            a.URL,
		SourceID:       a.ID,
		Metadata: Metadata{
			Category:     a.Category,
			Author:       a.Author,
			Tags:         a.Tags,
			ViewCount:    a.ViewCount,
			HelpfulCount: a.HelpfulCount,
			CreatedAt:    a.CreatedAt,
			FullContent:  a.Content,
			SearchQuery:  query,
		},
	}
}

func mapFAQ(f *store.FAQ, query string, score float64, snippetLen int) ContextSource {
	return ContextSource{
		ID:             f.ID,
		Type:           SourceFAQLearning,
		Title:          f.Question,
		Content:        search.ExtractSnippet(f.Answer, query, snippetLen),
		RelevanceScore: clamp01(score),
		SourceID:       f.ID,
		Metadata: Metadata{
			Category:     f.Category,
			Tags:         f.Keywords,
			UsageCount:   f.UsageCount,
			HelpfulCount: f.HelpfulCount,
			Confidence:   f.Confidence,
			CreatedAt:    f.CreatedAt,
			FullContent:  f.Answer,
			SearchQuery:  query,
		},
	}
}

func mapDocument(d *store.SessionDocument, query string, score float64, snippetLen int) ContextSource {
	var text string
	if d.ExtractedText != nil {
		text = *d.ExtractedText
	}
	return ContextSource{
		ID:             d.ID,
		Type:           SourceDocument,
		Title:          d.Filename,
		Content:        search.ExtractSnippet(text, query, snippetLen),
		RelevanceScore: clamp01(score),
		SourceID:       d.ID,
		Metadata: Metadata{
			FileType:    documentFileType(d),
			FileSize:    d.FileSize,
			CreatedAt:   d.CreatedAt,
			FullContent: text,
			SearchQuery: query,
		},
	}
}

// record converts a ranked source into its audit row.
func record(sessionID string, src ContextSource) store.ContextRecord {
	meta := src.Metadata.Fields()
	meta["title"] = src.Title
	if src.URL != "" {
		meta["url"] = src.URL
	}
	return store.ContextRecord{
		SessionID:      sessionID,
		SourceType:     string(src.Type),
		SourceID:       src.ID,
		Content:        src.Content,
		RelevanceScore: src.RelevanceScore,
		Metadata:       meta,
	}
}
