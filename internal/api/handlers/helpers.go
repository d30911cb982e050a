// Copyright (c) 2025, the danmusync contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package handlers implements the administrative HTTP surface.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RespondJSON sends a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Error().Err(err).Msg("api: failed to encode JSON response")
		}
	}
}

// RespondError sends an error response.
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorResponse{Error: message})
}

// DecodeJSON decodes the request body into dest. Returns false if decoding
// fails (error already sent to the client).
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request, dest *T) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}
