package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/ricesearch/support-context/internal/metrics"
	"github.com/ricesearch/support-context/internal/pkg/middleware"
	"github.com/ricesearch/support-context/internal/server"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the HTTP API:
  POST /v1/search                   search FAQs and articles
  POST /v1/search/cache/invalidate  drop cached search responses
  POST /v1/context                  build ranked chat context
  POST /v1/answer                   answer a question from built context
  GET  /healthz, /metrics, /metrics/history

With --corpus the directory is imported on start; add --watch to re-import
changed files while serving.`,
		RunE: runServe,
	}

	cmd.Flags().IntP("port", "p", 8080, "HTTP server port")
	cmd.Flags().String("host", "0.0.0.0", "HTTP server host")
	cmd.Flags().String("corpus", "", "corpus file or directory to import on start")
	cmd.Flags().Bool("watch", false, "re-import the corpus directory when it changes")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig(cmd, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("port") {
		cfg.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("host") {
		cfg.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("corpus") {
		cfg.Corpus.Path, _ = cmd.Flags().GetString("corpus")
	}
	if cmd.Flags().Changed("watch") {
		cfg.Corpus.Watch, _ = cmd.Flags().GetBool("watch")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log.Info("Starting Support Context server",
		"version", version,
		"addr", cfg.Address(),
		"storage", cfg.Storage.Type,
		"cache", cfg.Cache.Type,
		"bus", cfg.Bus.Type,
	)

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals...)
	defer stop()

	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			log.WithError(err).Warn("Error closing services")
		}
	}()

	if err := metrics.NewEventSubscriber(a.metrics, a.bus, log).SubscribeToEvents(ctx); err != nil {
		return fmt.Errorf("failed to subscribe metrics to events: %w", err)
	}
	go metrics.NewCollector(a.metrics, 15*time.Second).Run(ctx)

	if err := startCorpus(ctx, a); err != nil {
		return err
	}

	var rateLimiter *middleware.RateLimiter
	if cfg.Security.RateLimit > 0 {
		rateLimiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
			RequestsPerSecond: cfg.Security.RateLimit,
			Burst:             cfg.Security.Burst,
			CleanupInterval:   time.Minute,
		})
		defer rateLimiter.Stop()
		log.Info("Rate limiting enabled", "requests_per_second", cfg.Security.RateLimit)
	}

	srv, err := server.New(server.Config{
		Host:    cfg.Host,
		Port:    cfg.Port,
		Version: version,
	}, server.Services{
		Search:      a.search,
		Context:     a.engine,
		Assistant:   a.assistant,
		Metrics:     a.metrics,
		RateLimiter: rateLimiter,
	}, log)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("Shutdown signal received")

	return srv.Stop(context.Background())
}

// startCorpus imports the configured corpus, or hands it to a watcher that
// imports it and keeps it current until ctx ends.
func startCorpus(ctx context.Context, a *app) error {
	path := a.cfg.Corpus.Path
	if path == "" {
		return nil
	}

	if !a.cfg.Corpus.Watch {
		stats, err := a.importCorpus(ctx, path)
		if err != nil {
			return fmt.Errorf("failed to import corpus: %w", err)
		}
		a.log.Info("Corpus imported",
			"path", path,
			"files", stats.Files,
			"articles", stats.Articles,
			"faqs", stats.FAQs,
			"documents", stats.Documents,
		)
		return nil
	}

	w, err := a.newWatcher(path)
	if err != nil {
		return err
	}
	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(ctx) }()

	select {
	case <-w.Ready():
	case err := <-errCh:
		return fmt.Errorf("corpus watcher: %w", err)
	}

	go func() {
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			a.log.WithError(err).Error("Corpus watcher stopped")
		}
	}()
	return nil
}
