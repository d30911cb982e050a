// Copyright (c) 2025, the danmusync contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package httphelpers contains small helpers shared by HTTP clients.
package httphelpers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// DrainAndClose consumes the remaining response body and closes it to allow
// connection reuse.
func DrainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// ReadBody reads the full response body without closing it.
func ReadBody(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}

// DecodeJSON decodes a JSON response body into v and drains the remainder.
func DecodeJSON(resp *http.Response, v any) error {
	defer DrainAndClose(resp)

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}
