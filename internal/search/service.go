// Package search implements keyword search over published FAQs and
// knowledge-base articles with suggestions, related FAQs and a response cache.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ricesearch/support-context/internal/bus"
	apperrors "github.com/ricesearch/support-context/internal/pkg/errors"
	"github.com/ricesearch/support-context/internal/pkg/hash"
	"github.com/ricesearch/support-context/internal/pkg/logger"
	"github.com/ricesearch/support-context/internal/pkg/security"
	"github.com/ricesearch/support-context/internal/store"
)

// Service runs searches.
type Service struct {
	faqs     store.FAQRepository
	articles store.ArticleRepository
	logs     store.SearchLogRepository
	cache    Cache
	bus      bus.Bus
	log      *logger.Logger
	cfg      Config

	group    singleflight.Group
	tracking sync.WaitGroup
}

// Config configures the search service.
type Config struct {
	// DefaultLimit is the page size when a request sets none.
	DefaultLimit int

	// MaxLimit caps the page size.
	MaxLimit int

	// SnippetLength is the excerpt length for unmatched content.
	SnippetLength int

	// SuggestionCount caps suggestions per response.
	SuggestionCount int

	// RelatedCount caps related FAQs per response.
	RelatedCount int

	// CacheTTL is how long a response stays cached.
	CacheTTL time.Duration

	// TrackTimeout bounds the background analytics write.
	TrackTimeout time.Duration
}

// DefaultConfig returns the search defaults.
func DefaultConfig() Config {
	return Config{
		DefaultLimit:    10,
		MaxLimit:        100,
		SnippetLength:   DefaultSnippetLength,
		SuggestionCount: 3,
		RelatedCount:    3,
		CacheTTL:        5 * time.Minute,
		TrackTimeout:    5 * time.Second,
	}
}

// Deps are the collaborators of a Service. Logs, Cache and Bus are optional.
type Deps struct {
	FAQs     store.FAQRepository
	Articles store.ArticleRepository
	Logs     store.SearchLogRepository
	Cache    Cache
	Bus      bus.Bus
	Log      *logger.Logger
}

// NewService creates a search service. Zero config fields take defaults.
func NewService(deps Deps, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = def.DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = def.MaxLimit
	}
	if cfg.SnippetLength <= 0 {
		cfg.SnippetLength = def.SnippetLength
	}
	if cfg.SuggestionCount <= 0 {
		cfg.SuggestionCount = def.SuggestionCount
	}
	if cfg.RelatedCount <= 0 {
		cfg.RelatedCount = def.RelatedCount
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.TrackTimeout <= 0 {
		cfg.TrackTimeout = def.TrackTimeout
	}

	log := deps.Log
	if log == nil {
		log = logger.Discard()
	}

	return &Service{
		faqs:     deps.FAQs,
		articles: deps.Articles,
		logs:     deps.Logs,
		cache:    deps.Cache,
		bus:      deps.Bus,
		log:      log.WithComponent("search"),
		cfg:      cfg,
	}
}

// Search runs req and never fails: any error yields an empty response.
func (s *Service) Search(ctx context.Context, req Request) *Response {
	resp, err := s.Execute(ctx, req)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Error("Search failed", "query", security.SanitizeForLog(req.Query))
		return emptyResponse(s.normalize(req).Options.Limit)
	}
	return resp
}

// Execute runs req and reports failures. Identical requests within the cache
// TTL return the cached response unchanged.
func (s *Service) Execute(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	req = s.normalize(req)
	if req.Query == "" {
		return nil, apperrors.ValidationError("query is required")
	}

	key, err := hash.StableKey("search:", req)
	if err != nil {
		return nil, apperrors.InternalError("building cache key", err)
	}

	log := s.log.WithContext(ctx)

	if s.cache != nil {
		data, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			log.WithError(err).Warn("Search cache read failed")
		case ok:
			var resp Response
			if err := json.Unmarshal(data, &resp); err == nil {
				log.Debug("Search cache hit", "query", security.SanitizeForLog(req.Query))
				return &resp, nil
			}
			log.Warn("Discarding undecodable cache entry", "key", key)
		}
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		resp, err := s.run(ctx, req, start)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(resp)
		if err != nil {
			return nil, fmt.Errorf("encoding response: %w", err)
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, key, data, s.cfg.CacheTTL); err != nil {
				log.WithError(err).Warn("Search cache write failed")
			}
		}
		s.track(ctx, req.Query, resp)
		return data, nil
	})
	if err != nil {
		return nil, err
	}

	var resp Response
	if err := json.Unmarshal(v.([]byte), &resp); err != nil {
		return nil, apperrors.InternalError("decoding response", err)
	}
	log.Debug("Search cache miss", "query", security.SanitizeForLog(req.Query), "total", resp.Total)
	return &resp, nil
}

// InvalidateCache drops every cached response.
func (s *Service) InvalidateCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Flush(ctx); err != nil {
		return apperrors.Wrap(apperrors.CodeCache, "flushing search cache", err)
	}
	return nil
}

// Wait blocks until background analytics writes finish.
func (s *Service) Wait() {
	s.tracking.Wait()
}

func (s *Service) normalize(req Request) Request {
	req.Query = strings.TrimSpace(req.Query)

	if req.Options.Limit <= 0 {
		req.Options.Limit = s.cfg.DefaultLimit
	}
	if req.Options.Limit > s.cfg.MaxLimit {
		req.Options.Limit = s.cfg.MaxLimit
	}
	if req.Options.Offset < 0 {
		req.Options.Offset = 0
	}
	if req.Options.SortBy == "" {
		req.Options.SortBy = SortRelevance
	}
	req.Options.SortOrder = SortOrder(strings.ToUpper(string(req.Options.SortOrder)))
	if req.Options.SortOrder != SortAsc {
		req.Options.SortOrder = SortDesc
	}
	return req
}

func included(flag *bool) bool {
	return flag == nil || *flag
}

func (s *Service) run(ctx context.Context, req Request, start time.Time) (*Response, error) {
	terms := queryTerms(req.Query)
	f := req.Filters

	var faqs []store.FAQ
	var articles []store.Article

	g, gctx := errgroup.WithContext(ctx)
	if included(f.IncludeFAQs) {
		g.Go(func() error {
			var err error
			faqs, err = s.faqs.SearchFAQs(gctx, store.FAQQuery{
				Terms:         terms,
				Statuses:      []store.FAQStatus{store.FAQPublished},
				Categories:    f.Categories,
				Tags:          f.Tags,
				MinConfidence: f.MinConfidence,
				DateFrom:      f.DateFrom,
				DateTo:        f.DateTo,
			})
			if err != nil {
				return fmt.Errorf("searching faqs: %w", err)
			}
			return nil
		})
	}
	if included(f.IncludeArticles) {
		g.Go(func() error {
			var err error
			articles, err = s.articles.SearchArticles(gctx, store.ArticleQuery{
				Terms:      terms,
				Status:     store.ArticlePublished,
				Categories: f.Categories,
				Tags:       f.Tags,
				DateFrom:   f.DateFrom,
				DateTo:     f.DateTo,
			})
			if err != nil {
				return fmt.Errorf("searching articles: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(faqs)+len(articles))
	for i := range faqs {
		results = append(results, s.faqResult(&faqs[i], req))
	}
	for i := range articles {
		results = append(results, s.articleResult(&articles[i], req))
	}

	sortResults(results, req.Options.SortBy, req.Options.SortOrder)

	page := paginate(results, req.Options.Offset, req.Options.Limit)

	suggestions, err := s.suggestions(ctx, req.Query, results)
	if err != nil {
		return nil, err
	}
	related, err := s.relatedFAQs(ctx, page)
	if err != nil {
		return nil, err
	}

	return &Response{
		Results:        page,
		Total:          len(results),
		Page:           req.Options.Offset/req.Options.Limit + 1,
		Limit:          req.Options.Limit,
		Suggestions:    suggestions,
		RelatedFAQs:    related,
		ProcessingTime: elapsedMillis(start),
	}, nil
}

// elapsedMillis is never zero so callers can rely on a positive duration.
func elapsedMillis(start time.Time) float64 {
	ms := float64(time.Since(start).Nanoseconds()) / 1e6
	if ms <= 0 {
		ms = 0.001
	}
	return ms
}

func (s *Service) snippet(content string, req Request) string {
	snip := ExtractSnippet(content, req.Query, s.cfg.SnippetLength)
	if req.Options.Highlight {
		snip = Highlight(snip, queryTerms(req.Query))
	}
	return snip
}

func (s *Service) faqResult(f *store.FAQ, req Request) Result {
	conf := f.Confidence
	return Result{
		ID:             f.ID,
		Type:           TypeFAQ,
		Title:          f.Question,
		Content:        f.Answer,
		Snippet:        s.snippet(f.Answer, req),
		RelevanceScore: scoreFAQ(req.Query, f),
		Confidence:     &conf,
		Category:       f.Category,
		Tags:           f.Keywords,
		Metadata: ResultMetadata{
			CreatedAt:    f.CreatedAt,
			UpdatedAt:    f.UpdatedAt,
			UsageCount:   f.UsageCount,
			HelpfulCount: f.HelpfulCount,
		},
	}
}

func (s *Service) articleResult(a *store.Article, req Request) Result {
	return Result{
		ID:             a.ID,
		Type:           TypeArticle,
		Title:          a.Title,
		Content:        a.Content,
		Snippet:        s.snippet(a.Content, req),
		RelevanceScore: scoreArticle(req.Query, a),
		Category:       a.Category,
		Tags:           a.Tags,
		URL:            a.URL,
		Metadata: ResultMetadata{
			CreatedAt:    a.CreatedAt,
			UpdatedAt:    a.UpdatedAt,
			UsageCount:   a.ViewCount,
			HelpfulCount: a.HelpfulCount,
		},
	}
}

func resultConfidence(r *Result) float64 {
	if r.Confidence == nil {
		return articleConfidence
	}
	return *r.Confidence
}

func resultDate(r *Result) time.Time {
	if r.Metadata.UpdatedAt.IsZero() {
		return r.Metadata.CreatedAt
	}
	return r.Metadata.UpdatedAt
}

// sortResults orders results by the requested key. Equal keys keep the
// FAQs-then-articles input order.
func sortResults(results []Result, by SortBy, order SortOrder) {
	var less func(a, b *Result) bool
	switch by {
	case SortConfidence:
		less = func(a, b *Result) bool { return resultConfidence(a) < resultConfidence(b) }
	case SortPopularity:
		less = func(a, b *Result) bool { return a.Metadata.UsageCount < b.Metadata.UsageCount }
	case SortDate:
		less = func(a, b *Result) bool { return resultDate(a).Before(resultDate(b)) }
	default:
		less = func(a, b *Result) bool { return a.RelevanceScore < b.RelevanceScore }
	}

	sort.SliceStable(results, func(i, j int) bool {
		if order == SortAsc {
			return less(&results[i], &results[j])
		}
		return less(&results[j], &results[i])
	})
}

func paginate(results []Result, offset, limit int) []Result {
	if offset >= len(results) {
		return []Result{}
	}
	end := min(len(results), offset+limit)
	return results[offset:end]
}

// suggestions proposes alternate queries: popular FAQ questions when nothing
// matched, otherwise the query refined by the commonest tags of the top hits.
func (s *Service) suggestions(ctx context.Context, query string, sorted []Result) ([]string, error) {
	out := []string{}

	if len(sorted) == 0 {
		popular, err := s.faqs.PopularFAQs(ctx, s.cfg.SuggestionCount)
		if err != nil {
			return nil, fmt.Errorf("loading popular faqs: %w", err)
		}
		for _, f := range popular {
			out = append(out, f.Question)
		}
		return out, nil
	}

	counts := make(map[string]int)
	var order []string
	for _, r := range sorted[:min(5, len(sorted))] {
		for _, tag := range r.Tags {
			tag = strings.ToLower(strings.TrimSpace(tag))
			if tag == "" {
				continue
			}
			if counts[tag] == 0 {
				order = append(order, tag)
			}
			counts[tag]++
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })

	lq := strings.ToLower(query)
	for _, tag := range order {
		if len(out) == s.cfg.SuggestionCount {
			break
		}
		if strings.Contains(lq, tag) {
			continue
		}
		out = append(out, query+" "+tag)
	}
	return out, nil
}

// relatedFAQs finds published FAQs sharing tags with the first three results
// of the page, excluding FAQs already on it.
func (s *Service) relatedFAQs(ctx context.Context, page []Result) ([]RelatedFAQ, error) {
	out := []RelatedFAQ{}

	seen := make(map[string]bool)
	var tags []string
	for _, r := range page[:min(3, len(page))] {
		for _, tag := range r.Tags {
			key := strings.ToLower(strings.TrimSpace(tag))
			if key == "" || seen[key] || len(tags) == 10 {
				continue
			}
			seen[key] = true
			tags = append(tags, tag)
		}
	}
	if len(tags) == 0 {
		return out, nil
	}

	var exclude []string
	for _, r := range page {
		if r.Type == TypeFAQ {
			exclude = append(exclude, r.ID)
		}
	}

	faqs, err := s.faqs.FAQsByTags(ctx, tags, exclude, s.cfg.RelatedCount)
	if err != nil {
		return nil, fmt.Errorf("loading related faqs: %w", err)
	}
	for _, f := range faqs {
		out = append(out, RelatedFAQ{
			ID:         f.ID,
			Question:   f.Question,
			Category:   f.Category,
			UsageCount: f.UsageCount,
		})
	}
	return out, nil
}

// track records the search in the background. Failures are logged only.
func (s *Service) track(ctx context.Context, query string, resp *Response) {
	if s.logs == nil && s.bus == nil {
		return
	}

	entry := store.SearchLog{
		ID:               uuid.New().String(),
		Query:            query,
		Total:            resp.Total,
		ProcessingTimeMs: resp.ProcessingTime,
		CreatedAt:        time.Now().UTC(),
	}
	log := s.log.WithContext(ctx)

	s.tracking.Add(1)
	go func() {
		defer s.tracking.Done()

		tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.TrackTimeout)
		defer cancel()

		if s.logs != nil {
			if err := s.logs.SaveSearchLog(tctx, &entry); err != nil {
				log.WithError(err).Warn("Failed to save search log")
			}
		}
		if s.bus != nil {
			event := bus.NewEvent(bus.TopicSearchPerformed, "search", bus.SearchPerformed{
				Query:            entry.Query,
				Total:            entry.Total,
				ProcessingTimeMs: entry.ProcessingTimeMs,
			})
			if err := s.bus.Publish(tctx, bus.TopicSearchPerformed, event); err != nil {
				log.WithError(err).Warn("Failed to publish search event")
			}
		}
	}()
}
