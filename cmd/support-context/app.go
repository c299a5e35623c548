package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/ricesearch/support-context/internal/assistant"
	"github.com/ricesearch/support-context/internal/bus"
	"github.com/ricesearch/support-context/internal/chatcontext"
	"github.com/ricesearch/support-context/internal/config"
	"github.com/ricesearch/support-context/internal/metrics"
	"github.com/ricesearch/support-context/internal/pkg/logger"
	"github.com/ricesearch/support-context/internal/search"
	"github.com/ricesearch/support-context/internal/store"
	"github.com/ricesearch/support-context/internal/watch"
)

// loadConfig reads --config and --verbose and builds a logger writing to w.
func loadConfig(cmd *cobra.Command, w io.Writer) (*config.Config, *logger.Logger, error) {
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, logger.NewWithWriter(w, cfg.Log.Level, cfg.Log.Format), nil
}

// app holds every service built from one configuration.
type app struct {
	cfg *config.Config
	log *logger.Logger

	storage   store.Storage
	store     *store.Service
	cache     search.Cache
	metrics   *metrics.Metrics
	bus       bus.Bus
	search    *search.Service
	engine    *chatcontext.Engine
	assistant *assistant.Service

	closers []func() error
}

func newApp(cfg *config.Config, log *logger.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	storage, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, err
	}
	a.storage = storage
	a.store = store.NewService(storage, log)
	a.closers = append(a.closers, storage.Close)

	a.metrics = metrics.NewFromConfig(cfg.Metrics, log)
	a.closers = append(a.closers, a.metrics.Close)

	a.cache = a.openCache()

	innerBus, err := bus.NewBus(cfg.Bus, log)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create event bus: %w", err)
	}
	a.bus = bus.NewInstrumentedBus(innerBus, a.metrics)
	a.closers = append(a.closers, a.bus.Close)

	a.search = search.NewService(search.Deps{
		FAQs:     storage,
		Articles: storage,
		Logs:     storage,
		Cache:    a.cache,
		Bus:      a.bus,
		Log:      log,
	}, search.Config{
		DefaultLimit:    cfg.Search.DefaultLimit,
		SnippetLength:   cfg.Search.SnippetLength,
		SuggestionCount: cfg.Search.SuggestionCount,
		RelatedCount:    cfg.Search.RelatedCount,
		CacheTTL:        cfg.CacheTTL(),
	})

	recorder := chatcontext.NewRecorder(storage, a.bus,
		time.Duration(cfg.Context.PersistTimeoutMs)*time.Millisecond, log)
	faqs := chatcontext.NewFAQAdapter(
		chatcontext.NewSearchFAQStrategy(a.search, storage, cfg.Context.FAQMinConfidence),
		chatcontext.NewDirectFAQStrategy(storage),
		log,
	)
	a.engine = chatcontext.NewEngine(chatcontext.Deps{
		KnowledgeBase: chatcontext.NewKnowledgeBaseAdapter(storage, log),
		FAQs:          faqs,
		Documents:     chatcontext.NewDocumentAdapter(storage, log),
		Recorder:      recorder,
		Log:           log,
	}, chatcontext.Config{
		MaxSources:           cfg.Context.MaxSources,
		MinRelevanceScore:    cfg.Context.MinRelevanceScore,
		IncludeKnowledgeBase: cfg.Context.IncludeKnowledgeBase,
		IncludeFAQLearning:   cfg.Context.IncludeFAQLearning,
		IncludeDocuments:     cfg.Context.IncludeDocuments,
		KnowledgeBaseShare:   cfg.Context.KnowledgeBaseShare,
		FAQShare:             cfg.Context.FAQShare,
		DocumentShare:        cfg.Context.DocumentShare,
	})

	failover, sessions, err := assistant.NewFromConfig(cfg.Assistant, log)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to configure assistant: %w", err)
	}
	// A nil *Failover stored in the interface would not compare equal to nil.
	var generator assistant.Generator
	if failover != nil {
		generator = failover
	}
	a.assistant = assistant.NewService(a.engine, generator, sessions, log)

	return a, nil
}

func openStorage(cfg config.StorageConfig) (store.Storage, error) {
	switch cfg.Type {
	case "sqlite":
		s, err := store.NewSQLiteStorage(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite storage: %w", err)
		}
		return s, nil
	default:
		return store.NewMemoryStorage(), nil
	}
}

// openCache falls back to the in-process cache when Redis is unreachable.
func (a *app) openCache() search.Cache {
	var inner search.Cache = search.NewMemoryCache(a.cfg.CacheTTL())
	name := "memory"

	if a.cfg.Cache.Type == "redis" {
		rc, err := search.NewRedisCache(a.cfg.Cache.RedisURL)
		if err != nil {
			a.log.WithError(err).Warn("Search cache falling back to memory")
		} else {
			inner, name = rc, "redis"
			a.closers = append(a.closers, rc.Close)
		}
	}
	return search.NewObservedCache(inner, name, a.metrics)
}

// importCorpus loads path into storage and announces the reload like the
// watcher does.
func (a *app) importCorpus(ctx context.Context, path string) (store.ImportStats, error) {
	stats, err := a.store.ImportPath(ctx, path)
	if err != nil {
		return stats, err
	}
	if err := a.search.InvalidateCache(ctx); err != nil {
		a.log.WithError(err).Warn("Search cache invalidation failed")
	}
	event := bus.NewEvent(bus.TopicCorpusReloaded, "import", bus.CorpusReloaded{
		Path:      path,
		Articles:  stats.Articles,
		FAQs:      stats.FAQs,
		Documents: stats.Documents,
	})
	if err := a.bus.Publish(ctx, bus.TopicCorpusReloaded, event); err != nil {
		a.log.WithError(err).Warn("Publishing corpus reload failed")
	}
	return stats, nil
}

func (a *app) newWatcher(dir string) (*watch.Watcher, error) {
	return watch.NewWatcher(watch.Config{
		Dir:      dir,
		Debounce: a.cfg.Debounce(),
		Importer: a.store,
		Cache:    a.search,
		Bus:      a.bus,
		Log:      a.log,
	})
}

// close waits for background writes, then releases resources in reverse
// order of creation.
func (a *app) close() error {
	if a.search != nil {
		a.search.Wait()
	}
	if a.engine != nil {
		a.engine.Wait()
	}

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
