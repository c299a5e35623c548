package chatcontext

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ricesearch/support-context/internal/pkg/logger"
	"github.com/ricesearch/support-context/internal/search"
	"github.com/ricesearch/support-context/internal/store"
)

// Retriever finds scored sources in one corpus. Retrievers never fail: an
// internal error is logged and yields no sources.
type Retriever interface {
	Retrieve(ctx context.Context, q Query) []ContextSource
}

// KnowledgeBaseAdapter retrieves published articles containing the query.
type KnowledgeBaseAdapter struct {
	articles   store.ArticleRepository
	snippetLen int
	log        *logger.Logger
}

// NewKnowledgeBaseAdapter creates a knowledge-base retriever.
func NewKnowledgeBaseAdapter(articles store.ArticleRepository, log *logger.Logger) *KnowledgeBaseAdapter {
	if log == nil {
		log = logger.Discard()
	}
	return &KnowledgeBaseAdapter{
		articles:   articles,
		snippetLen: DefaultSnippetLength,
		log:        log.WithComponent("kb_adapter"),
	}
}

func (a *KnowledgeBaseAdapter) Retrieve(ctx context.Context, q Query) []ContextSource {
	articles, err := a.articles.SearchArticles(ctx, store.ArticleQuery{
		Terms:  []string{q.Text},
		Status: store.ArticlePublished,
		Limit:  q.Limit,
	})
	if err != nil {
		a.log.WithContext(ctx).WithError(err).Warn("Knowledge base retrieval failed", "source", SourceKnowledgeBase)
		return nil
	}

	out := make([]ContextSource, 0, len(articles))
	for i := range articles {
		score := scoreArticle(q.Text, &articles[i])
		out = append(out, mapArticle(&articles[i], q.Text, score, a.snippetLen))
	}
	return out
}

// ScoredFAQ is an FAQ with its 0..1 relevance.
type ScoredFAQ struct {
	FAQ   store.FAQ
	Score float64
}

// FAQStrategy is one way of finding FAQs for a query.
type FAQStrategy interface {
	FindFAQs(ctx context.Context, q Query) ([]ScoredFAQ, error)
}

// Searcher is the search engine entry point used by SearchFAQStrategy.
type Searcher interface {
	Execute(ctx context.Context, req search.Request) (*search.Response, error)
}

// SearchFAQStrategy finds FAQs through the search engine and converts its
// 0..100 scores to 0..1.
type SearchFAQStrategy struct {
	searcher      Searcher
	faqs          store.FAQRepository
	minConfidence float64
}

// NewSearchFAQStrategy creates the primary FAQ strategy.
func NewSearchFAQStrategy(searcher Searcher, faqs store.FAQRepository, minConfidence float64) *SearchFAQStrategy {
	return &SearchFAQStrategy{searcher: searcher, faqs: faqs, minConfidence: minConfidence}
}

func (s *SearchFAQStrategy) FindFAQs(ctx context.Context, q Query) ([]ScoredFAQ, error) {
	yes, no := true, false
	resp, err := s.searcher.Execute(ctx, search.Request{
		Query: q.Text,
		Filters: search.Filters{
			IncludeFAQs:     &yes,
			IncludeArticles: &no,
			MinConfidence:   s.minConfidence,
		},
		Options: search.Options{Limit: q.Limit},
	})
	if err != nil {
		return nil, fmt.Errorf("searching faqs: %w", err)
	}

	out := make([]ScoredFAQ, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.Type != search.TypeFAQ {
			continue
		}
		f, err := s.faqs.GetFAQ(ctx, r.ID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("loading faq %s: %w", r.ID, err)
		}
		out = append(out, ScoredFAQ{FAQ: *f, Score: r.RelevanceScore / 100})
	}
	return out, nil
}

// DirectFAQStrategy queries approved and published FAQs directly and scores
// them locally.
type DirectFAQStrategy struct {
	faqs store.FAQRepository
}

// NewDirectFAQStrategy creates the fallback FAQ strategy.
func NewDirectFAQStrategy(faqs store.FAQRepository) *DirectFAQStrategy {
	return &DirectFAQStrategy{faqs: faqs}
}

func (s *DirectFAQStrategy) FindFAQs(ctx context.Context, q Query) ([]ScoredFAQ, error) {
	faqs, err := s.faqs.SearchFAQs(ctx, store.FAQQuery{
		Terms:    []string{q.Text},
		Statuses: []store.FAQStatus{store.FAQApproved, store.FAQPublished},
		Limit:    q.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("querying faqs: %w", err)
	}

	out := make([]ScoredFAQ, 0, len(faqs))
	for i := range faqs {
		out = append(out, ScoredFAQ{FAQ: faqs[i], Score: scoreFAQ(q.Text, &faqs[i])})
	}
	return out, nil
}

// FAQAdapter uses the primary strategy and switches to the fallback only
// when the primary returns an error.
type FAQAdapter struct {
	primary    FAQStrategy
	fallback   FAQStrategy
	snippetLen int
	log        *logger.Logger
}

// NewFAQAdapter creates an FAQ retriever. fallback may be nil.
func NewFAQAdapter(primary, fallback FAQStrategy, log *logger.Logger) *FAQAdapter {
	if log == nil {
		log = logger.Discard()
	}
	return &FAQAdapter{
		primary:    primary,
		fallback:   fallback,
		snippetLen: DefaultSnippetLength,
		log:        log.WithComponent("faq_adapter"),
	}
}

func (a *FAQAdapter) Retrieve(ctx context.Context, q Query) []ContextSource {
	log := a.log.WithContext(ctx)

	found, err := a.primary.FindFAQs(ctx, q)
	if err != nil && a.fallback != nil {
		log.WithError(err).Warn("FAQ search failed, using direct query", "source", SourceFAQLearning)
		found, err = a.fallback.FindFAQs(ctx, q)
	}
	if err != nil {
		log.WithError(err).Warn("FAQ retrieval failed", "source", SourceFAQLearning)
		return nil
	}

	if q.Limit > 0 && len(found) > q.Limit {
		found = found[:q.Limit]
	}
	out := make([]ContextSource, 0, len(found))
	for i := range found {
		out = append(out, mapFAQ(&found[i].FAQ, q.Text, found[i].Score, a.snippetLen))
	}
	return out
}

// DocumentAdapter retrieves the session's extracted documents containing
// the query.
type DocumentAdapter struct {
	docs       store.DocumentRepository
	snippetLen int
	now        func() time.Time
	log        *logger.Logger
}

// NewDocumentAdapter creates a session document retriever.
func NewDocumentAdapter(docs store.DocumentRepository, log *logger.Logger) *DocumentAdapter {
	if log == nil {
		log = logger.Discard()
	}
	return &DocumentAdapter{
		docs:       docs,
		snippetLen: DefaultSnippetLength,
		now:        time.Now,
		log:        log.WithComponent("document_adapter"),
	}
}

func (a *DocumentAdapter) Retrieve(ctx context.Context, q Query) []ContextSource {
	if q.SessionID == "" || strings.TrimSpace(q.Text) == "" {
		return nil
	}

	docs, err := a.docs.SearchDocuments(ctx, store.DocumentQuery{
		SessionID: q.SessionID,
		Term:      q.Text,
		Limit:     q.Limit,
	})
	if err != nil {
		a.log.WithContext(ctx).WithSession(q.SessionID).WithError(err).
			Warn("Document retrieval failed", "source", SourceDocument)
		return nil
	}

	now := a.now()
	out := make([]ContextSource, 0, len(docs))
	for i := range docs {
		score := scoreDocument(q.Text, &docs[i], now)
		out = append(out, mapDocument(&docs[i], q.Text, score, a.snippetLen))
	}
	return out
}
