// Copyright (c) 2025, the danmusync contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/danmusync/danmusync/internal/services/fetch"
	"github.com/danmusync/danmusync/internal/watcher"
)

// PipelineHandler exposes the pipeline's operational entry points.
type PipelineHandler struct {
	fetchService   *fetch.Service
	watcherService *watcher.Service
}

func NewPipelineHandler(fetchService *fetch.Service, watcherService *watcher.Service) *PipelineHandler {
	return &PipelineHandler{
		fetchService:   fetchService,
		watcherService: watcherService,
	}
}

func (h *PipelineHandler) Routes(r chi.Router) {
	r.Post("/watcher/start", h.StartWatcher)
	r.Post("/watcher/stop", h.StopWatcher)
	r.Get("/status", h.Status)
	r.Post("/scan", h.Scan)
	r.Post("/cache/clear", h.ClearCache)
	r.Post("/processed/clear", h.ClearProcessed)
}

func (h *PipelineHandler) StartWatcher(w http.ResponseWriter, r *http.Request) {
	// The watch outlives the request, so it must not inherit its context.
	if err := h.watcherService.Start(context.Background()); err != nil {
		log.Error().Err(err).Msg("api: failed to start watcher")
		RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	RespondJSON(w, http.StatusOK, map[string]bool{"running": true})
}

func (h *PipelineHandler) StopWatcher(w http.ResponseWriter, r *http.Request) {
	h.watcherService.Stop()
	RespondJSON(w, http.StatusOK, map[string]bool{"running": false})
}

type statusResponse struct {
	Watching bool         `json:"watching"`
	Pipeline fetch.Status `json:"pipeline"`
}

func (h *PipelineHandler) Status(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, statusResponse{
		Watching: h.watcherService.Running(),
		Pipeline: h.fetchService.Status(),
	})
}

type scanRequest struct {
	Dir string `json:"dir"`
}

// Scan submits a directory for processing. Without an explicit dir, every
// configured watch directory is scanned.
func (h *PipelineHandler) Scan(w http.ResponseWriter, r *http.Request) {
	// An empty body means "scan everything".
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	dirs := []string{req.Dir}
	if req.Dir == "" {
		dirs = h.fetchService.Config().WatchDirs
	}

	total := 0
	for _, dir := range dirs {
		submitted, err := h.fetchService.ScanDirectory(dir)
		total += submitted
		if err != nil {
			log.Error().Err(err).Str("dir", dir).Msg("api: directory scan failed")
			RespondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	RespondJSON(w, http.StatusOK, map[string]int{"submitted": total})
}

func (h *PipelineHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.fetchService.FlushCaches()
	RespondJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}

func (h *PipelineHandler) ClearProcessed(w http.ResponseWriter, r *http.Request) {
	cleared := h.fetchService.ClearProcessed()
	RespondJSON(w, http.StatusOK, map[string]int{"cleared": cleared})
}
