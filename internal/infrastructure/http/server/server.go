package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	fiscalhttp "gestaofiscal/ms_nfe_core/internal/adapters/http/fiscal"
	healthhttp "gestaofiscal/ms_nfe_core/internal/adapters/http/health"
	"gestaofiscal/ms_nfe_core/internal/infrastructure/config"
	"gestaofiscal/ms_nfe_core/internal/infrastructure/http/middleware"
)

// Server owns the HTTP listener and its routing tree.
type Server struct {
	log        *slog.Logger
	cfg        config.HTTPSettings
	httpServer *http.Server
}

// Options carries everything the server mounts.
type Options struct {
	Config config.HTTPSettings
	Logger *slog.Logger
	Health *healthhttp.Handler
	Fiscal *fiscalhttp.Handler
}

// New builds the routing tree and the underlying http.Server.
func New(opts Options) (*Server, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Health == nil || opts.Fiscal == nil {
		return nil, errors.New("health and fiscal handlers are required")
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(opts.Logger))

	r.Get("/health", opts.Health.Status)
	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/certificado", opts.Health.Certificate)
		opts.Fiscal.Routes(api)
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Config.Port),
		Handler:      r,
		ReadTimeout:  opts.Config.ReadTimeout,
		WriteTimeout: opts.Config.WriteTimeout,
		IdleTimeout:  opts.Config.IdleTimeout,
	}

	return &Server{log: opts.Logger, cfg: opts.Config, httpServer: srv}, nil
}

// Handler exposes the routing tree, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until the context is cancelled, then shuts down gracefully
// within the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server started", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down: %w", err)
		}
		s.log.Info("HTTP server stopped")
		return nil
	case err := <-errCh:
		return err
	}
}
