package store

import (
	"context"
	"sort"
	"sync"
)

// ArticleRepository reads and writes knowledge-base articles.
type ArticleRepository interface {
	SearchArticles(ctx context.Context, q ArticleQuery) ([]Article, error)
	GetArticle(ctx context.Context, id string) (*Article, error)
	SaveArticle(ctx context.Context, a *Article) error
}

// FAQRepository reads and writes learned FAQs.
type FAQRepository interface {
	SearchFAQs(ctx context.Context, q FAQQuery) ([]FAQ, error)
	GetFAQ(ctx context.Context, id string) (*FAQ, error)
	// PopularFAQs returns published FAQs by usage, descending.
	PopularFAQs(ctx context.Context, limit int) ([]FAQ, error)
	// FAQsByTags returns published FAQs sharing any keyword with tags,
	// skipping excludeIDs, by usage descending.
	FAQsByTags(ctx context.Context, tags, excludeIDs []string, limit int) ([]FAQ, error)
	SaveFAQ(ctx context.Context, f *FAQ) error
}

// DocumentRepository reads and writes session documents.
type DocumentRepository interface {
	SearchDocuments(ctx context.Context, q DocumentQuery) ([]SessionDocument, error)
	SaveDocument(ctx context.Context, d *SessionDocument) error
}

// ContextRepository stores the audit trail of sources used per session.
type ContextRepository interface {
	SaveContextRecords(ctx context.Context, records []ContextRecord) error
	ContextRecords(ctx context.Context, sessionID string) ([]ContextRecord, error)
}

// SearchLogRepository stores search analytics rows.
type SearchLogRepository interface {
	SaveSearchLog(ctx context.Context, log *SearchLog) error
	RecentSearchLogs(ctx context.Context, limit int) ([]SearchLog, error)
}

// Storage is the full persistence surface.
type Storage interface {
	ArticleRepository
	FAQRepository
	DocumentRepository
	ContextRepository
	SearchLogRepository
	Close() error
}

// MemoryStorage keeps everything in maps. Reads return copies.
type MemoryStorage struct {
	mu        sync.RWMutex
	articles  map[string]Article
	faqs      map[string]FAQ
	documents map[string]SessionDocument
	records   []ContextRecord
	logs      []SearchLog
}

var _ Storage = (*MemoryStorage)(nil)

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		articles:  make(map[string]Article),
		faqs:      make(map[string]FAQ),
		documents: make(map[string]SessionDocument),
	}
}

// sortedKeys gives map-backed listings a deterministic (ID) order.
func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *MemoryStorage) articleList() []Article {
	out := make([]Article, 0, len(m.articles))
	for _, id := range sortedKeys(m.articles) {
		out = append(out, m.articles[id])
	}
	return out
}

func (m *MemoryStorage) faqList() []FAQ {
	out := make([]FAQ, 0, len(m.faqs))
	for _, id := range sortedKeys(m.faqs) {
		out = append(out, m.faqs[id])
	}
	return out
}

func (m *MemoryStorage) SearchArticles(ctx context.Context, q ArticleQuery) ([]Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return selectArticles(m.articleList(), q), nil
}

func (m *MemoryStorage) GetArticle(ctx context.Context, id string) (*Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.articles[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := cloneArticle(a)
	return &c, nil
}

func (m *MemoryStorage) SaveArticle(ctx context.Context, a *Article) error {
	if err := a.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.articles[a.ID] = cloneArticle(*a)
	return nil
}

func (m *MemoryStorage) SearchFAQs(ctx context.Context, q FAQQuery) ([]FAQ, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return selectFAQs(m.faqList(), q), nil
}

func (m *MemoryStorage) GetFAQ(ctx context.Context, id string) (*FAQ, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.faqs[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := cloneFAQ(f)
	return &c, nil
}

func (m *MemoryStorage) PopularFAQs(ctx context.Context, limit int) ([]FAQ, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return selectPopularFAQs(m.faqList(), limit), nil
}

func (m *MemoryStorage) FAQsByTags(ctx context.Context, tags, excludeIDs []string, limit int) ([]FAQ, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return selectRelatedFAQs(m.faqList(), tags, excludeIDs, limit), nil
}

func (m *MemoryStorage) SaveFAQ(ctx context.Context, f *FAQ) error {
	if err := f.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faqs[f.ID] = cloneFAQ(*f)
	return nil
}

func (m *MemoryStorage) SearchDocuments(ctx context.Context, q DocumentQuery) ([]SessionDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	docs := make([]SessionDocument, 0, len(m.documents))
	for _, id := range sortedKeys(m.documents) {
		docs = append(docs, m.documents[id])
	}
	return selectDocuments(docs, q), nil
}

func (m *MemoryStorage) SaveDocument(ctx context.Context, d *SessionDocument) error {
	if err := d.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents[d.ID] = cloneDocument(*d)
	return nil
}

func (m *MemoryStorage) SaveContextRecords(ctx context.Context, records []ContextRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.records = append(m.records, cloneRecord(r))
	}
	return nil
}

func (m *MemoryStorage) ContextRecords(ctx context.Context, sessionID string) ([]ContextRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ContextRecord
	for _, r := range m.records {
		if r.SessionID == sessionID {
			out = append(out, cloneRecord(r))
		}
	}
	return out, nil
}

func (m *MemoryStorage) SaveSearchLog(ctx context.Context, log *SearchLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, *log)
	return nil
}

// RecentSearchLogs returns the newest logs first.
func (m *MemoryStorage) RecentSearchLogs(ctx context.Context, limit int) ([]SearchLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]SearchLog, 0, len(m.logs))
	for i := len(m.logs) - 1; i >= 0; i-- {
		out = append(out, m.logs[i])
	}
	return capLen(out, limit), nil
}

func (m *MemoryStorage) Close() error {
	return nil
}
