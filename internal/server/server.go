// Package server exposes search, context building and answers over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ricesearch/support-context/internal/assistant"
	"github.com/ricesearch/support-context/internal/chatcontext"
	"github.com/ricesearch/support-context/internal/metrics"
	"github.com/ricesearch/support-context/internal/pkg/logger"
	"github.com/ricesearch/support-context/internal/pkg/middleware"
	"github.com/ricesearch/support-context/internal/search"
)

// Server serves the HTTP API.
type Server struct {
	cfg        Config
	svc        Services
	log        *logger.Logger
	httpServer *http.Server
	startedAt  time.Time

	mu      sync.RWMutex
	started bool
}

// Config configures the server.
type Config struct {
	// Host is the address to bind to.
	Host string

	// Port is the HTTP port.
	Port int

	// Version is reported by /healthz.
	Version string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns sensible server defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		Version:         "dev",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Services are the handlers' backends. Search and Context are required;
// the rest switch their routes or middleware off when nil.
type Services struct {
	Search      *search.Service
	Context     *chatcontext.Engine
	Assistant   *assistant.Service
	Metrics     *metrics.Metrics
	RateLimiter *middleware.RateLimiter
}

// New creates a server.
func New(cfg Config, svc Services, log *logger.Logger) (*Server, error) {
	if svc.Search == nil || svc.Context == nil {
		return nil, errors.New("server: search and context services are required")
	}
	def := DefaultConfig()
	if cfg.Port == 0 {
		cfg.Port = def.Port
	}
	if cfg.Version == "" {
		cfg.Version = def.Version
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if log == nil {
		log = logger.Discard()
	}

	return &Server{
		cfg:       cfg,
		svc:       svc,
		log:       log.WithComponent("server"),
		startedAt: time.Now(),
	}, nil
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := s.setupRoutes()

	var h http.Handler = mux
	if s.svc.RateLimiter != nil {
		h = limitAPI(s.svc.RateLimiter, h)
	}
	if s.svc.Metrics != nil {
		h = metrics.HTTPMiddleware(s.svc.Metrics, h)
	}
	h = withLogging(s.log, h)
	h = withRecovery(s.log, h)
	return withRequestID(h)
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.Addr(), err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Stop. It returns nil after a graceful stop.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		_ = ln.Close()
		return errors.New("server already started")
	}
	s.started = true
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.log.Info("Starting HTTP server", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the HTTP server down gracefully. Background work of the
// services is left to their owners.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		s.log.WithError(err).Error("HTTP shutdown error")
	}

	s.started = false
	s.log.Info("Server stopped")
	return err
}

// Health reports whether the server is serving.
func (s *Server) Health() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	searchHandler := search.NewHandler(s.svc.Search)
	mux.HandleFunc("/v1/search", searchHandler.HandleSearch)
	mux.HandleFunc("POST /v1/search/cache/invalidate", searchHandler.HandleInvalidate)

	mux.HandleFunc("/v1/context", chatcontext.NewHandler(s.svc.Context).HandleBuildContext)

	if s.svc.Assistant != nil {
		mux.HandleFunc("/v1/answer", assistant.NewHandler(s.svc.Assistant).HandleAnswer)
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)

	if s.svc.Metrics != nil {
		mux.Handle("/metrics", s.svc.Metrics.Handler())
		mux.Handle("GET /metrics/history", s.svc.Metrics.HistoryHandler())
	}

	return mux
}

type healthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(healthResponse{
		Status:        "ok",
		Version:       s.cfg.Version,
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
	})
}
