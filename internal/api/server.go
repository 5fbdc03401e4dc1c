package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"skipper/internal/config"
)

// Server wires the handlers into an http.Server with the cross-cutting
// middleware chain and graceful shutdown.
type Server struct {
	cfg    config.ServerConfig
	logger *slog.Logger
	router *chi.Mux
	srv    *http.Server
}

// ServerDeps holds the handler dependencies for building the router.
type ServerDeps struct {
	Practices PracticeGetter
	Evaluator PracticeEvaluator
	Narrative NarrativeGenerator
	Proposals ProposalReader
	Decider   ProposalDecider
	DB        Pinger
}

// NewServer builds the router and prepares the server for Start.
func NewServer(cfg config.ServerConfig, deps ServerDeps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(recoverer(logger))
	r.Use(requestIDMiddleware)
	r.Use(requestLogger(logger))
	if cfg.RateLimit > 0 {
		r.Use(httprate.LimitByIP(cfg.RateLimit, time.Minute))
	}

	r.Get("/healthz", healthHandler(deps.DB))

	practiceHandler := NewPracticeHandler(deps.Practices, deps.Evaluator, deps.Narrative, logger)
	proposalHandler := NewProposalHandler(deps.Proposals, deps.Decider, logger)
	r.Route("/v1", func(r chi.Router) {
		practiceHandler.RegisterRoutes(r)
		proposalHandler.RegisterRoutes(r)
	})

	return &Server{
		cfg:    cfg,
		logger: logger,
		router: r,
		srv: &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
}

// Handler returns the router, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until the context is cancelled, then drains in-flight
// requests within the configured shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoContext(ctx, "api server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("api server shutting down")
	return s.srv.Shutdown(shutdownCtx)
}
