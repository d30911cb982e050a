// Copyright (c) 2025, the danmusync contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/danmusync/danmusync/internal/api/handlers"
	"github.com/danmusync/danmusync/internal/config"
	"github.com/danmusync/danmusync/internal/metrics"
	"github.com/danmusync/danmusync/internal/services/fetch"
	"github.com/danmusync/danmusync/internal/watcher"
)

// Dependencies carries everything the HTTP layer needs.
type Dependencies struct {
	Config         *config.AppConfig
	FetchService   *fetch.Service
	WatcherService *watcher.Service
	Metrics        *metrics.Manager
}

type Server struct {
	deps *Dependencies
	srv  *http.Server
}

func NewServer(deps *Dependencies) *Server {
	return &Server{deps: deps}
}

// Handler builds the chi router with all API routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	pipelineHandler := handlers.NewPipelineHandler(s.deps.FetchService, s.deps.WatcherService)
	configHandler := handlers.NewConfigHandler(s.deps.Config)
	libraryHandler := handlers.NewLibraryHandler(s.deps.FetchService)
	versionHandler := handlers.NewVersionHandler()

	r.Route("/api", func(r chi.Router) {
		pipelineHandler.Routes(r)
		configHandler.Routes(r)
		libraryHandler.Routes(r)
		versionHandler.Routes(r)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			handlers.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	})

	if s.deps.Metrics != nil {
		metricsHandler := promhttp.HandlerFor(
			s.deps.Metrics.GetRegistry(),
			promhttp.HandlerOpts{EnableOpenMetrics: true},
		)
		// Checked per request so a config update toggles the endpoint
		// without a restart.
		r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
			if !s.deps.Config.Snapshot().MetricsEnabled {
				http.NotFound(w, req)
				return
			}
			metricsHandler.ServeHTTP(w, req)
		})
	}

	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.deps.Config.Snapshot()
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("api: listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("api: request")
	})
}
