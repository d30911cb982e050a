// Copyright (c) 2025, the danmusync contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danmusync/danmusync/internal/catalog"
	"github.com/danmusync/danmusync/internal/config"
	"github.com/danmusync/danmusync/internal/metrics"
	"github.com/danmusync/danmusync/internal/services/fetch"
	"github.com/danmusync/danmusync/internal/watcher"
)

func newTestServer(t *testing.T) (*Server, *config.AppConfig) {
	t.Helper()

	appConfig, err := config.New(t.TempDir())
	require.NoError(t, err)

	cfg := appConfig.Snapshot()
	client := catalog.NewClient(catalog.Config{BaseURL: "http://127.0.0.1:0"})
	m := metrics.NewManager()
	fetchSvc := fetch.NewService(cfg, client, m)
	watcherSvc := watcher.NewService(cfg, fetchSvc, m)
	t.Cleanup(func() {
		watcherSvc.Stop()
		fetchSvc.Stop()
	})

	return NewServer(&Dependencies{
		Config:         appConfig,
		FetchService:   fetchSvc,
		WatcherService: watcherSvc,
		Metrics:        m,
	}), appConfig
}

func TestHandlerMountsExpectedRoutes(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.Handler()

	expected := map[string]bool{
		"POST /api/watcher/start":   false,
		"POST /api/watcher/stop":    false,
		"GET /api/status":           false,
		"POST /api/scan":            false,
		"POST /api/cache/clear":     false,
		"POST /api/processed/clear": false,
		"GET /api/config":           false,
		"PUT /api/config":           false,
		"GET /api/library/search":   false,
		"GET /api/version":          false,
		"GET /api/health":           false,
	}

	err := chi.Walk(router.(chi.Router), func(method, path string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		key := method + " " + path
		if _, ok := expected[key]; ok {
			expected[key] = true
		}
		return nil
	})
	require.NoError(t, err)

	for route, seen := range expected {
		assert.True(t, seen, "route %s not mounted", route)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpointGating(t *testing.T) {
	server, appConfig := newTestServer(t)
	handler := server.Handler()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Enabling metrics through a config update takes effect on the same
	// handler without a restart.
	next := *appConfig.Snapshot()
	next.MetricsEnabled = true
	require.NoError(t, appConfig.Update(next))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "danmusync_files_processed_total")

	// And disabling hides it again.
	next.MetricsEnabled = false
	require.NoError(t, appConfig.Update(next))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
