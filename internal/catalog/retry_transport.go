// Copyright (c) 2025, the danmusync contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package catalog

import (
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	transportMaxRetries   = 2
	transportInitialWait  = 50 * time.Millisecond
	transportMaxRetryWait = 500 * time.Millisecond
)

// retryTransport wraps an http.RoundTripper with short retries for transient
// connection errors. Application-level retries (scheduler requeues) stay on
// top of this; the transport only smooths over stale pooled connections.
type retryTransport struct {
	base http.RoundTripper
}

func newRetryTransport(base http.RoundTripper) *retryTransport {
	return &retryTransport{base: base}
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= transportMaxRetries; attempt++ {
		resp, err := t.base.RoundTrip(req.Clone(req.Context()))
		if err == nil {
			if attempt > 0 {
				log.Debug().
					Str("url", req.URL.String()).
					Int("attempt", attempt+1).
					Msg("catalog: request succeeded after retry")
			}
			return resp, nil
		}

		lastErr = err

		// Catalog requests are all GET, so replay is always safe.
		if !isTransientNetError(err) || attempt >= transportMaxRetries {
			return nil, err
		}

		t.closeIdleConnections()

		backoff := transportBackoff(attempt)
		log.Debug().
			Err(err).
			Str("url", req.URL.String()).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Msg("catalog: transient network error, retrying")

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(backoff):
		}
	}

	return nil, lastErr
}

// closeIdleConnections clears potentially stale connections from the pool
// after a network error.
func (t *retryTransport) closeIdleConnections() {
	type closeIdler interface {
		CloseIdleConnections()
	}
	if tr, ok := t.base.(closeIdler); ok {
		tr.CloseIdleConnections()
	}
}

func isTransientNetError(err error) bool {
	if err == nil {
		return false
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return isTransientNetError(urlErr.Err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		// Timeouts may be legitimate slow responses, leave them to the
		// scheduler-level retry.
		return false
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" || opErr.Op == "read" {
			return true
		}
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.EOF) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "broken pipe")
}

func transportBackoff(attempt int) time.Duration {
	backoff := transportInitialWait
	for i := 0; i < attempt; i++ {
		backoff *= 2
		if backoff > transportMaxRetryWait {
			return transportMaxRetryWait
		}
	}
	return backoff
}
