package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ricesearch/support-context/internal/bus"
	apperrors "github.com/ricesearch/support-context/internal/pkg/errors"
	"github.com/ricesearch/support-context/internal/store"
)

// countingStorage counts corpus queries.
type countingStorage struct {
	*store.MemoryStorage
	faqSearches     atomic.Int32
	articleSearches atomic.Int32
	faqErr          error
}

func (c *countingStorage) SearchFAQs(ctx context.Context, q store.FAQQuery) ([]store.FAQ, error) {
	c.faqSearches.Add(1)
	if c.faqErr != nil {
		return nil, c.faqErr
	}
	return c.MemoryStorage.SearchFAQs(ctx, q)
}

func (c *countingStorage) SearchArticles(ctx context.Context, q store.ArticleQuery) ([]store.Article, error) {
	c.articleSearches.Add(1)
	return c.MemoryStorage.SearchArticles(ctx, q)
}

func seedCorpus(t *testing.T) *countingStorage {
	t.Helper()
	ctx := context.Background()
	ms := store.NewMemoryStorage()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	faqs := []store.FAQ{
		{ID: "f1", Question: "How do I reset my password?", Answer: "Open settings and choose reset password.",
			Keywords: []string{"password", "account"}, Status: store.FAQPublished, Confidence: 90, UsageCount: 50,
			CreatedAt: base, UpdatedAt: base.Add(48 * time.Hour)},
		{ID: "f2", Question: "How do I change my email?", Answer: "Go to profile settings.",
			Keywords: []string{"email", "account"}, Status: store.FAQPublished, Confidence: 80, UsageCount: 120,
			CreatedAt: base, UpdatedAt: base.Add(24 * time.Hour)},
		{ID: "f3", Question: "Why was my card declined?", Answer: "Check billing details.",
			Keywords: []string{"billing"}, Status: store.FAQPublished, Confidence: 70, UsageCount: 10,
			CreatedAt: base, UpdatedAt: base},
		{ID: "f4", Question: "reset password (draft)", Answer: "pending review",
			Keywords: []string{"password"}, Status: store.FAQPending, Confidence: 99, UsageCount: 500,
			CreatedAt: base, UpdatedAt: base},
	}
	for i := range faqs {
		if err := ms.SaveFAQ(ctx, &faqs[i]); err != nil {
			t.Fatalf("SaveFAQ() error = %v", err)
		}
	}

	articles := []store.Article{
		{ID: "a1", Title: "Password Reset Guide", Content: "Steps to reset your password safely.",
			Tags: []string{"password", "security"}, Status: store.ArticlePublished, ViewCount: 300,
			CreatedAt: base, UpdatedAt: base},
		{ID: "a2", Title: "Billing overview", Content: "Invoices and cards.",
			Tags: []string{"billing"}, Status: store.ArticlePublished, CreatedAt: base, UpdatedAt: base},
	}
	for i := range articles {
		if err := ms.SaveArticle(ctx, &articles[i]); err != nil {
			t.Fatalf("SaveArticle() error = %v", err)
		}
	}

	return &countingStorage{MemoryStorage: ms}
}

func newTestService(st *countingStorage, cache Cache, b bus.Bus) *Service {
	return NewService(Deps{
		FAQs:     st,
		Articles: st,
		Logs:     st,
		Cache:    cache,
		Bus:      b,
	}, Config{})
}

func resultIDs(results []Result) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	return ids
}

func TestService_Execute(t *testing.T) {
	st := seedCorpus(t)
	svc := newTestService(st, nil, nil)

	resp, err := svc.Execute(context.Background(), Request{Query: "reset password"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	svc.Wait()

	if got := resultIDs(resp.Results); !reflect.DeepEqual(got, []string{"f1", "a1"}) {
		t.Errorf("results = %v, want [f1 a1]", got)
	}
	if resp.Total != 2 || resp.Page != 1 || resp.Limit != 10 {
		t.Errorf("total/page/limit = %d/%d/%d", resp.Total, resp.Page, resp.Limit)
	}
	if resp.Results[0].RelevanceScore != 66 || resp.Results[1].RelevanceScore != 47 {
		t.Errorf("scores = %v, %v", resp.Results[0].RelevanceScore, resp.Results[1].RelevanceScore)
	}
	if resp.Results[0].Confidence == nil || *resp.Results[0].Confidence != 90 {
		t.Error("faq result should carry its confidence")
	}
	if resp.Results[1].Confidence != nil {
		t.Error("article result should have no confidence")
	}

	wantSuggestions := []string{"reset password account", "reset password security"}
	if !reflect.DeepEqual(resp.Suggestions, wantSuggestions) {
		t.Errorf("suggestions = %v, want %v", resp.Suggestions, wantSuggestions)
	}

	if len(resp.RelatedFAQs) != 1 || resp.RelatedFAQs[0].ID != "f2" {
		t.Errorf("related = %+v, want [f2]", resp.RelatedFAQs)
	}
	if resp.ProcessingTime <= 0 {
		t.Error("processing time should be positive")
	}
}

func TestService_CacheHit(t *testing.T) {
	st := seedCorpus(t)
	cache := NewMemoryCache(time.Minute)
	svc := newTestService(st, cache, nil)
	ctx := context.Background()
	req := Request{Query: "reset password", Options: Options{Highlight: true}}

	first, err := svc.Execute(ctx, req)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	second, err := svc.Execute(ctx, req)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	svc.Wait()

	if st.faqSearches.Load() != 1 || st.articleSearches.Load() != 1 {
		t.Errorf("corpus queried %d/%d times, want 1/1", st.faqSearches.Load(), st.articleSearches.Load())
	}

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if !bytes.Equal(a, b) {
		t.Error("cached response differs from the original")
	}

	logs, _ := st.RecentSearchLogs(ctx, 10)
	if len(logs) != 1 {
		t.Errorf("search logs = %d, want 1 (cache hits are not tracked)", len(logs))
	}

	if err := svc.InvalidateCache(ctx); err != nil {
		t.Fatalf("InvalidateCache() error = %v", err)
	}
	if _, err := svc.Execute(ctx, req); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	svc.Wait()
	if st.faqSearches.Load() != 2 {
		t.Errorf("faq searches after invalidate = %d, want 2", st.faqSearches.Load())
	}
}

func TestService_ConcurrentMisses(t *testing.T) {
	st := seedCorpus(t)
	svc := newTestService(st, NewMemoryCache(time.Minute), nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Execute(context.Background(), Request{Query: "settings"}); err != nil {
				t.Errorf("Execute() error = %v", err)
			}
		}()
	}
	wg.Wait()
	svc.Wait()

	if n := st.faqSearches.Load(); n < 1 || n > 8 {
		t.Errorf("faq searches = %d", n)
	}
	resp, _ := svc.Execute(context.Background(), Request{Query: "settings"})
	if resp.Total != 2 {
		t.Errorf("total = %d, want 2", resp.Total)
	}
}

func TestService_SuggestionFallback(t *testing.T) {
	st := seedCorpus(t)
	svc := newTestService(st, nil, nil)

	resp, err := svc.Execute(context.Background(), Request{Query: "zzzz-nothing"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	svc.Wait()

	if resp.Total != 0 || len(resp.Results) != 0 {
		t.Errorf("expected no results, got %d", resp.Total)
	}
	want := []string{"How do I change my email?", "How do I reset my password?", "Why was my card declined?"}
	if !reflect.DeepEqual(resp.Suggestions, want) {
		t.Errorf("suggestions = %v, want %v", resp.Suggestions, want)
	}
	if len(resp.RelatedFAQs) != 0 {
		t.Errorf("related = %v, want none", resp.RelatedFAQs)
	}
}

func TestService_SortAndPaginate(t *testing.T) {
	st := seedCorpus(t)
	svc := newTestService(st, nil, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		opts Options
		want []string
		page int
	}{
		{"popularity desc", Options{SortBy: SortPopularity}, []string{"f2", "f1"}, 1},
		{"popularity asc", Options{SortBy: SortPopularity, SortOrder: "asc"}, []string{"f1", "f2"}, 1},
		{"confidence", Options{SortBy: SortConfidence}, []string{"f1", "f2"}, 1},
		{"date", Options{SortBy: SortDate}, []string{"f1", "f2"}, 1},
		{"second page", Options{SortBy: SortPopularity, Limit: 1, Offset: 1}, []string{"f1"}, 2},
		{"past the end", Options{Limit: 5, Offset: 10}, []string{}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := svc.Execute(ctx, Request{Query: "settings", Options: tt.opts})
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if got := resultIDs(resp.Results); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("results = %v, want %v", got, tt.want)
			}
			if resp.Total != 2 {
				t.Errorf("total = %d, want 2", resp.Total)
			}
			if resp.Page != tt.page {
				t.Errorf("page = %d, want %d", resp.Page, tt.page)
			}
		})
	}
	svc.Wait()
}

func TestService_Filters(t *testing.T) {
	st := seedCorpus(t)
	svc := newTestService(st, nil, nil)
	ctx := context.Background()
	no := false

	resp, err := svc.Execute(ctx, Request{Query: "reset password", Filters: Filters{IncludeArticles: &no}})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := resultIDs(resp.Results); !reflect.DeepEqual(got, []string{"f1"}) {
		t.Errorf("faqs only = %v", got)
	}
	if st.articleSearches.Load() != 0 {
		t.Error("article search should be skipped")
	}

	resp, err = svc.Execute(ctx, Request{Query: "reset password", Filters: Filters{MinConfidence: 95}})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := resultIDs(resp.Results); !reflect.DeepEqual(got, []string{"a1"}) {
		t.Errorf("min confidence = %v, want [a1]", got)
	}
	svc.Wait()
}

func TestService_HighlightSnippet(t *testing.T) {
	st := seedCorpus(t)
	svc := newTestService(st, nil, nil)

	resp, err := svc.Execute(context.Background(), Request{Query: "billing", Options: Options{Highlight: true}})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	svc.Wait()

	for _, r := range resp.Results {
		if r.ID == "f3" && r.Snippet != "Check <mark>billing</mark> details." {
			t.Errorf("snippet = %q", r.Snippet)
		}
	}
}

func TestService_Errors(t *testing.T) {
	st := seedCorpus(t)
	st.faqErr = errors.New("db down")
	svc := newTestService(st, nil, nil)
	ctx := context.Background()

	if _, err := svc.Execute(ctx, Request{Query: "reset"}); err == nil {
		t.Error("Execute() should propagate corpus errors")
	}

	resp := svc.Search(ctx, Request{Query: "reset"})
	if resp.Total != 0 || resp.Results == nil || len(resp.Results) != 0 {
		t.Errorf("Search() should degrade to empty, got %+v", resp)
	}
	if resp.Suggestions == nil || resp.RelatedFAQs == nil || resp.Limit != 10 || resp.Page != 1 {
		t.Errorf("degraded response = %+v", resp)
	}

	_, err := svc.Execute(ctx, Request{Query: "   "})
	if !apperrors.HasCode(err, apperrors.CodeValidation) {
		t.Errorf("empty query error = %v, want validation", err)
	}
}

func TestService_Analytics(t *testing.T) {
	st := seedCorpus(t)
	b := bus.NewMemoryBus(nil)
	defer b.Close()

	events := make(chan bus.SearchPerformed, 1)
	err := b.Subscribe(context.Background(), bus.TopicSearchPerformed, func(ctx context.Context, e bus.Event) error {
		p, err := bus.DecodePayload[bus.SearchPerformed](e)
		if err != nil {
			return err
		}
		events <- p
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	svc := newTestService(st, nil, b)
	ctx, cancel := context.WithCancel(context.Background())
	if _, err := svc.Execute(ctx, Request{Query: "reset password"}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	cancel()
	svc.Wait()

	logs, err := st.RecentSearchLogs(context.Background(), 1)
	if err != nil {
		t.Fatalf("RecentSearchLogs() error = %v", err)
	}
	if len(logs) != 1 || logs[0].Query != "reset password" || logs[0].Total != 2 {
		t.Errorf("logs = %+v", logs)
	}

	select {
	case ev := <-events:
		if ev.Query != "reset password" || ev.Total != 2 {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no search.performed event")
	}
}
