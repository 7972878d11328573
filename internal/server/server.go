// Package server provides the HTTP API for rootcause.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/hyperjump/rootcause/internal/config"
	"github.com/hyperjump/rootcause/internal/ingest"
	"github.com/hyperjump/rootcause/internal/metrics"
	"github.com/hyperjump/rootcause/internal/narrow"
	"github.com/hyperjump/rootcause/internal/search"
	"github.com/hyperjump/rootcause/internal/storage"
)

// WatchService lists the directories being watched for new fault files.
type WatchService interface {
	Directories() []string
}

// Server is the HTTP server for the rootcause API.
type Server struct {
	engine    *search.Engine
	ingester  *ingest.Ingester
	catalog   storage.Catalog
	proposer  narrow.QuestionProposer
	dialogues *narrow.Registry
	watch     WatchService
	cfg       *config.Config
	logger    *zap.Logger
	server    *http.Server
}

// Option configures optional server dependencies.
type Option func(*Server)

// WithCatalog serves component and model listings from the catalog and reports its size.
func WithCatalog(c storage.Catalog) Option {
	return func(s *Server) { s.catalog = c }
}

// WithNarrowing enables the narrowing endpoints.
func WithNarrowing(p narrow.QuestionProposer, dialogues *narrow.Registry) Option {
	return func(s *Server) {
		s.proposer = p
		s.dialogues = dialogues
	}
}

// WithWatch exposes the watched directories.
func WithWatch(w WatchService) Option {
	return func(s *Server) { s.watch = w }
}

// NewServer creates a server with the given dependencies.
func NewServer(engine *search.Engine, ing *ingest.Ingester, cfg *config.Config, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine:   engine,
		ingester: ing,
		cfg:      cfg,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed HTTP handler with middleware and CORS applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/components", s.handleComponents)
		r.Get("/models", s.handleModels)
		r.Post("/diagnose", s.handleDiagnose)
		r.Post("/ingest", s.handleIngest)
		r.Get("/records/search", s.handleRecordSearch)
		r.Get("/watch/directories", s.handleWatchDirectories)

		r.Post("/narrow/propose", s.handleNarrowPropose)
		r.Post("/narrow/apply", s.handleNarrowApply)
		r.Post("/dialogues", s.handleDialogueStart)
		r.Get("/dialogues/{id}", s.handleDialogueGet)
		r.Post("/dialogues/{id}/answer", s.handleDialogueAnswer)
		r.Post("/dialogues/{id}/next", s.handleDialogueNext)
		r.Delete("/dialogues/{id}", s.handleDialogueDelete)
	})

	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(r)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
