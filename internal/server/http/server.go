// Package httpserver provides the inspection HTTP server: read-only
// visibility into workflow checkpoints, the adjudication queue, and the
// run's metrics.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/reviewkit/reviewkit/internal/observability"
)

// Config holds the inspection server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Server serves workflow state from the checkpoint root. It never mutates
// checkpoints.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	root       string
	obs        *observability.Observer
	logger     zerolog.Logger
}

// New creates the inspection server over the given checkpoint root.
func New(cfg Config, checkpointRoot string, obs *observability.Observer) *Server {
	if obs == nil {
		obs = observability.Nop()
	}
	s := &Server{
		root:   checkpointRoot,
		obs:    obs,
		logger: obs.Logger.With().Str("component", "http-server").Logger(),
	}

	s.router = s.buildRouter()
	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Router returns the configured router, for tests and embedding.
func (s *Server) Router() chi.Router { return s.router }

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthHandler)
	r.Get("/workflows", s.listWorkflows)
	r.Get("/workflows/{workflowDir}", s.getWorkflow)
	r.Get("/workflows/{workflowDir}/adjudication", s.getAdjudication)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(
		s.obs.Metrics.Registry(),
		promhttp.HandlerOpts{},
	))

	return r
}

// Start listens and serves until Shutdown.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("inspection server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on inspection address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers already sent; nothing left to report to the client.
		_ = err
	}
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
