// Copyright (c) 2025, the danmusync contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danmusync/danmusync/internal/config"
	"github.com/danmusync/danmusync/internal/domain"
)

func newConfigRouter(t *testing.T) (chi.Router, *config.AppConfig) {
	t.Helper()

	appConfig, err := config.New(t.TempDir())
	require.NoError(t, err)

	r := chi.NewRouter()
	NewConfigHandler(appConfig).Routes(r)
	return r, appConfig
}

func TestConfigGetStripsAPIKey(t *testing.T) {
	r, appConfig := newConfigRouter(t)

	next := *appConfig.Snapshot()
	next.DanmuAPIKey = "secret-key"
	require.NoError(t, appConfig.Update(next))

	req := httptest.NewRequest(http.MethodGet, "/config", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret-key")

	var resp domain.Config
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Empty(t, resp.DanmuAPIKey)
	assert.Equal(t, appConfig.Snapshot().Port, resp.Port)
}

func TestConfigUpdatePreservesUnsetAPIKey(t *testing.T) {
	r, appConfig := newConfigRouter(t)

	next := *appConfig.Snapshot()
	next.DanmuAPIKey = "secret-key"
	require.NoError(t, appConfig.Update(next))

	next.DanmuAPIKey = ""
	next.MaxWorkers = 8
	body, err := json.Marshal(next)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/config", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "secret-key", appConfig.Snapshot().DanmuAPIKey)
	assert.Equal(t, 8, appConfig.Snapshot().MaxWorkers)
}

func TestConfigUpdateRejectsInvalid(t *testing.T) {
	r, appConfig := newConfigRouter(t)

	next := *appConfig.Snapshot()
	next.MaxWorkers = -1
	body, err := json.Marshal(next)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/config", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEqual(t, -1, appConfig.Snapshot().MaxWorkers)
}
