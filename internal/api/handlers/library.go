// Copyright (c) 2025, the danmusync contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/rs/zerolog/log"

	"github.com/danmusync/danmusync/internal/catalog"
	"github.com/danmusync/danmusync/internal/services/fetch"
)

type LibraryHandler struct {
	fetchService *fetch.Service
}

func NewLibraryHandler(fetchService *fetch.Service) *LibraryHandler {
	return &LibraryHandler{fetchService: fetchService}
}

func (h *LibraryHandler) Routes(r chi.Router) {
	r.Get("/library/search", h.Search)
}

type librarySearchResponse struct {
	Query   string                 `json:"query"`
	Results []catalog.CatalogEntry `json:"results"`
}

// Search fuzzy-matches the query against the cached catalog library.
func (h *LibraryHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		RespondError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}

	entries, err := h.fetchService.Library(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("api: library fetch failed")
		RespondError(w, http.StatusBadGateway, err.Error())
		return
	}

	titles := make([]string, len(entries))
	byTitle := make(map[string][]catalog.CatalogEntry, len(entries))
	for i, entry := range entries {
		titles[i] = entry.Title
		byTitle[entry.Title] = append(byTitle[entry.Title], entry)
	}

	ranks := fuzzy.RankFindNormalizedFold(query, titles)
	sort.Sort(ranks)

	results := make([]catalog.CatalogEntry, 0, len(ranks))
	seen := make(map[string]bool)
	for _, rank := range ranks {
		if seen[rank.Target] {
			continue
		}
		seen[rank.Target] = true
		results = append(results, byTitle[rank.Target]...)
	}

	RespondJSON(w, http.StatusOK, librarySearchResponse{Query: query, Results: results})
}
