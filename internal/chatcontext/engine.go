package chatcontext

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/ricesearch/support-context/internal/fusion"
	apperrors "github.com/ricesearch/support-context/internal/pkg/errors"
	"github.com/ricesearch/support-context/internal/pkg/logger"
	"github.com/ricesearch/support-context/internal/pkg/security"
)

// Config holds the engine defaults applied when a request leaves an option unset.
type Config struct {
	MaxSources        int
	MinRelevanceScore float64

	IncludeKnowledgeBase bool
	IncludeFAQLearning   bool
	IncludeDocuments     bool

	// Shares split MaxSources between the corpora, rounded up.
	KnowledgeBaseShare float64
	FAQShare           float64
	DocumentShare      float64
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		MaxSources:           fusion.DefaultMaxSources,
		MinRelevanceScore:    fusion.DefaultMinRelevance,
		IncludeKnowledgeBase: true,
		IncludeFAQLearning:   true,
		IncludeDocuments:     true,
		KnowledgeBaseShare:   0.4,
		FAQShare:             0.4,
		DocumentShare:        0.2,
	}
}

// Deps are the engine's collaborators. Any retriever may be nil, which
// disables that corpus. Recorder may be nil.
type Deps struct {
	KnowledgeBase Retriever
	FAQs          Retriever
	Documents     Retriever
	Recorder      *Recorder
	Log           *logger.Logger
}

// Engine builds ranked context for chat turns.
type Engine struct {
	kb       Retriever
	faqs     Retriever
	docs     Retriever
	recorder *Recorder
	log      *logger.Logger
	cfg      Config
}

// NewEngine creates an engine.
func NewEngine(deps Deps, cfg Config) *Engine {
	if cfg.MaxSources <= 0 {
		cfg.MaxSources = fusion.DefaultMaxSources
	}
	if cfg.KnowledgeBaseShare+cfg.FAQShare+cfg.DocumentShare <= 0 {
		def := DefaultConfig()
		cfg.KnowledgeBaseShare, cfg.FAQShare, cfg.DocumentShare = def.KnowledgeBaseShare, def.FAQShare, def.DocumentShare
	}
	log := deps.Log
	if log == nil {
		log = logger.Discard()
	}
	return &Engine{
		kb:       deps.KnowledgeBase,
		faqs:     deps.FAQs,
		docs:     deps.Documents,
		recorder: deps.Recorder,
		log:      log.WithComponent("chatcontext"),
		cfg:      cfg,
	}
}

type lane struct {
	retriever Retriever
	share     float64
	enabled   bool
}

func pick(flag *bool, def bool) bool {
	if flag == nil {
		return def
	}
	return *flag
}

// budget is the per-corpus cap: share of max, rounded up.
func budget(maxSources int, share float64) int {
	if share <= 0 {
		return 0
	}
	return int(math.Ceil(float64(maxSources)*share - 1e-9))
}

// elapsedMillis is never zero so callers can rely on a positive duration.
func elapsedMillis(start time.Time) float64 {
	ms := float64(time.Since(start).Nanoseconds()) / 1e6
	if ms <= 0 {
		ms = 0.001
	}
	return ms
}

// BuildContext retrieves sources from every enabled corpus concurrently,
// ranks them and returns at most MaxSources of them. A failing corpus
// contributes nothing; a ranking failure fails the call.
func (e *Engine) BuildContext(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, apperrors.ValidationError("query is required")
	}

	maxSources := e.cfg.MaxSources
	if req.Options.MaxSources > 0 {
		maxSources = req.Options.MaxSources
	}
	minScore := e.cfg.MinRelevanceScore
	if req.Options.MinRelevanceScore != nil {
		minScore = *req.Options.MinRelevanceScore
	}

	lanes := []lane{
		{e.kb, e.cfg.KnowledgeBaseShare, pick(req.Options.IncludeKnowledgeBase, e.cfg.IncludeKnowledgeBase)},
		{e.faqs, e.cfg.FAQShare, pick(req.Options.IncludeFAQLearning, e.cfg.IncludeFAQLearning)},
		{e.docs, e.cfg.DocumentShare, pick(req.Options.IncludeDocuments, e.cfg.IncludeDocuments)},
	}

	pools := make([][]ContextSource, len(lanes))
	var wg sync.WaitGroup
	for i, l := range lanes {
		limit := budget(maxSources, l.share)
		if !l.enabled || l.retriever == nil || limit == 0 {
			continue
		}
		wg.Go(func() {
			pools[i] = l.retriever.Retrieve(ctx, Query{Text: query, SessionID: req.SessionID, Limit: limit})
		})
	}
	wg.Wait()

	var pooled []ContextSource
	for _, p := range pools {
		pooled = append(pooled, p...)
	}

	candidates := make([]fusion.Candidate, len(pooled))
	for i, src := range pooled {
		candidates[i] = fusion.Candidate{Type: string(src.Type), Key: src.ID, Score: src.RelevanceScore}
	}

	ranked, err := fusion.Rank(candidates, fusion.Options{MaxSources: maxSources, MinRelevance: minScore})
	if err != nil {
		return nil, apperrors.RankingError("ranking context sources", err)
	}

	result := &Result{
		Sources:     make([]ContextSource, 0, len(ranked)),
		SearchQuery: query,
	}
	for _, r := range ranked {
		src := pooled[r.Index]
		src.RelevanceScore = r.Score
		result.Sources = append(result.Sources, src)
		result.TotalRelevanceScore += r.Score
	}
	result.ProcessingTime = elapsedMillis(start)

	e.log.WithContext(ctx).WithSession(req.SessionID).Debug("Context built",
		"query", security.SanitizeForLog(query),
		"candidates", len(pooled),
		"sources", len(result.Sources),
		"ms", result.ProcessingTime,
	)

	e.recorder.Record(ctx, req.SessionID, result)
	return result, nil
}

// Wait blocks until background recording finishes.
func (e *Engine) Wait() {
	e.recorder.Wait()
}
