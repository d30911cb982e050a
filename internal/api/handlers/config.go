// Copyright (c) 2025, the danmusync contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/danmusync/danmusync/internal/config"
	"github.com/danmusync/danmusync/internal/domain"
)

type ConfigHandler struct {
	appConfig *config.AppConfig
}

func NewConfigHandler(appConfig *config.AppConfig) *ConfigHandler {
	return &ConfigHandler{appConfig: appConfig}
}

func (h *ConfigHandler) Routes(r chi.Router) {
	r.Get("/config", h.Get)
	r.Put("/config", h.Update)
}

func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	cfg := *h.appConfig.Snapshot()
	// The key never leaves the process.
	cfg.DanmuAPIKey = ""
	RespondJSON(w, http.StatusOK, cfg)
}

// Update replaces the configuration wholesale. The request carries the full
// desired config; missing fields fall back to their zero values and fail
// validation rather than silently merging.
func (h *ConfigHandler) Update(w http.ResponseWriter, r *http.Request) {
	var next domain.Config
	if !DecodeJSON(w, r, &next) {
		return
	}

	if next.DanmuAPIKey == "" {
		next.DanmuAPIKey = h.appConfig.Snapshot().DanmuAPIKey
	}

	if err := h.appConfig.Update(next); err != nil {
		log.Warn().Err(err).Msg("api: config update rejected")
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	RespondJSON(w, http.StatusOK, map[string]bool{"updated": true})
}
