// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

/*
Package api exposes the diagnostics HTTP surface: liveness and readiness
probes plus the Prometheus metrics endpoint.

Architecture:

  - The synchronization engine has no inbound API; this server exists purely
    for container orchestration and observability.
  - Only this package and cmd/skymirror are allowed to import net/http
    server primitives.
*/
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/haianhng/skymirror/internal/platform/constants"
	"github.com/haianhng/skymirror/internal/platform/metrics"
	"github.com/haianhng/skymirror/internal/platform/middleware"
)

// # Server Definitions

// Server wraps the chi router and the [http.Server].
//
// It is constructed once in main.go with all dependencies injected.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	log        *slog.Logger
}

// # Server Initialization

// NewServer constructs the chi router with the middleware chain and the
// diagnostics endpoints.
func NewServer(port string, log *slog.Logger, deps HealthDependencies) *Server {
	r := chi.NewRouter()

	// # Middleware Chain
	// Global middleware applied in order of execution.
	r.Use(middleware.RequestID())
	r.Use(middleware.StructuredLogger(log))
	r.Use(chimw.Timeout(constants.GlobalRequestTimeout))
	r.Use(middleware.PanicRecovery(log))
	r.Use(chimw.CleanPath)

	// # Infrastructure Endpoints
	liveness, readiness := NewHealthHandlers(deps, log)
	r.Get("/health", liveness)
	r.Get("/ready", readiness)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return &Server{
		router: r,
		log:    log,
		httpServer: &http.Server{
			Addr:              ":" + port,
			Handler:           r,
			ReadTimeout:       constants.DefaultReadTimeout,
			WriteTimeout:      constants.DefaultWriteTimeout,
			IdleTimeout:       constants.DefaultIdleTimeout,
			ReadHeaderTimeout: constants.DefaultReadHeaderTimeout,
		},
	}
}

// # Server Lifecycle

// ListenAndServe starts the HTTP server.
//
// It blocks until the server is closed or an error occurs.
func (s *Server) ListenAndServe() error {
	s.log.Info("diagnostics server starting", slog.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	context, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(context)
}
