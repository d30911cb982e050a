// Copyright (c) 2025, the danmusync contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/danmusync/danmusync/internal/buildinfo"
)

type VersionHandler struct{}

func NewVersionHandler() *VersionHandler {
	return &VersionHandler{}
}

func (h *VersionHandler) Routes(r chi.Router) {
	r.Get("/version", h.Get)
}

func (h *VersionHandler) Get(w http.ResponseWriter, r *http.Request) {
	data, err := buildinfo.JSON()
	if err != nil {
		RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
