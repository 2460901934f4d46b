// Package server exposes an embedfall engine as an HTTP embedding service.
// The service implements the same contract the engine's remote backend
// consumes (GET /health, POST / with {"text"} returning {"embedding"}), so a
// constrained client can chain to a fully capable sidecar, plus a status
// endpoint and a websocket stream of degradation events.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/helmavik/embedfall"
	"github.com/helmavik/embedfall/config"
)

// Server serves embedding requests over HTTP.
type Server struct {
	cfg        config.ServerConfig
	engine     *embedfall.Engine
	hub        *Hub
	logger     *zap.Logger
	httpServer *http.Server
	limiters   *limiterRegistry
}

// New wires the router. The hub may be nil when no event stream is wanted.
func New(cfg config.ServerConfig, engine *embedfall.Engine, hub *Hub, logger *zap.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		engine: engine,
		hub:    hub,
		logger: logger,
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/batch", s.handleEmbedBatch).Methods(http.MethodPost)
	router.HandleFunc("/", s.handleEmbed).Methods(http.MethodPost)
	if hub != nil {
		router.HandleFunc("/ws", hub.ServeWS).Methods(http.MethodGet)
	}

	var handler http.Handler = router
	if cfg.RateLimit.Enabled {
		s.limiters = newLimiterRegistry(cfg.RateLimit, logger)
		handler = s.limiters.middleware(handler)
	}
	handler = loggingMiddleware(logger)(handler)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler returns the configured HTTP handler, for tests and embedding into
// other servers.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start initializes the engine and serves until Stop.
func (s *Server) Start() error {
	status := s.engine.Initialize(context.Background())
	s.logger.Info("embedding engine initialized",
		zap.String("active", status.Active.String()),
		zap.Int("available", len(status.Available)),
		zap.Int("probe_errors", len(status.Errors)))
	return s.httpServer.ListenAndServe()
}

// Stop shuts the HTTP server down gracefully, closes the event hub, and
// ends the rate limiter's eviction loop.
func (s *Server) Stop(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	if s.limiters != nil {
		s.limiters.Stop()
	}
	return s.httpServer.Shutdown(ctx)
}
