package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/config"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/logger"
)

// Server wraps the HTTP server lifecycle.
type Server struct {
	httpServer *http.Server
	cfg        *config.Config
	logger     *logger.Logger
}

// NewServer creates the control API server over the given handler.
func NewServer(cfg *config.Config, h http.Handler, log *logger.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: log,
		httpServer: &http.Server{
			Addr:         cfg.Server.Addr(),
			Handler:      h,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  time.Minute,
		},
	}
}

// Start starts listening. It blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.cfg.Server.Addr())
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
