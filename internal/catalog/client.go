// Copyright (c) 2025, the danmusync contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/rs/zerolog/log"

	"github.com/danmusync/danmusync/internal/buildinfo"
	"github.com/danmusync/danmusync/pkg/httphelpers"
)

const (
	libraryPath  = "/api/control/library"
	sourcesPath  = "/api/control/library/anime/%d/sources"
	episodesPath = "/api/control/source/%d/episodes"
	commentPath  = "/comment/%d"

	libraryTTL  = 5 * time.Minute
	sourcesTTL  = 10 * time.Minute
	episodesTTL = 10 * time.Minute

	// Single-slot key for the library cache.
	libraryCacheKey = "library"

	defaultTimeout = 30 * time.Second
)

// Config holds the connection settings for the remote catalog. Zero TTLs
// fall back to the stage defaults.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	LibraryTTL  time.Duration
	SourcesTTL  time.Duration
	EpisodesTTL time.Duration
}

// Client wraps the four chained catalog read operations with independent
// TTL caches. Caches are best-effort concurrent: racing misses may fetch the
// same value twice, which the service tolerates.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client

	// cacheMu guards replacement of the cache handles on flush; the caches
	// themselves are safe for concurrent use.
	cacheMu  sync.RWMutex
	library  *ttlcache.Cache[string, []CatalogEntry]
	sources  *ttlcache.Cache[int64, []SourceEntry]
	episodes *ttlcache.Cache[int64, []EpisodeEntry]

	libraryTTL  time.Duration
	sourcesTTL  time.Duration
	episodesTTL time.Duration
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	c := &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http: &http.Client{
			Timeout:   timeout,
			Transport: newRetryTransport(http.DefaultTransport),
		},
		libraryTTL:  orDefault(cfg.LibraryTTL, libraryTTL),
		sourcesTTL:  orDefault(cfg.SourcesTTL, sourcesTTL),
		episodesTTL: orDefault(cfg.EpisodesTTL, episodesTTL),
	}
	c.library, c.sources, c.episodes = c.newCaches()
	return c
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

func (c *Client) newCaches() (*ttlcache.Cache[string, []CatalogEntry], *ttlcache.Cache[int64, []SourceEntry], *ttlcache.Cache[int64, []EpisodeEntry]) {
	return ttlcache.New(ttlcache.Options[string, []CatalogEntry]{}.
			SetDefaultTTL(c.libraryTTL)),
		ttlcache.New(ttlcache.Options[int64, []SourceEntry]{}.
			SetDefaultTTL(c.sourcesTTL)),
		ttlcache.New(ttlcache.Options[int64, []EpisodeEntry]{}.
			SetDefaultTTL(c.episodesTTL))
}

func (c *Client) libraryCache() *ttlcache.Cache[string, []CatalogEntry] {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	return c.library
}

func (c *Client) sourcesCache() *ttlcache.Cache[int64, []SourceEntry] {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	return c.sources
}

func (c *Client) episodesCache() *ttlcache.Cache[int64, []EpisodeEntry] {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	return c.episodes
}

// Library returns every title in the remote library, cached for 5 minutes.
func (c *Client) Library(ctx context.Context) ([]CatalogEntry, error) {
	cache := c.libraryCache()
	if cached, ok := cache.Get(libraryCacheKey); ok {
		return cached, nil
	}

	var envelope libraryEnvelope
	if err := c.getJSON(ctx, libraryPath, &envelope); err != nil {
		return nil, err
	}
	if !envelope.Success {
		return nil, &TransportError{Op: "library", Err: apiError(envelope.ErrorMessage)}
	}

	cache.Set(libraryCacheKey, envelope.Animes, ttlcache.DefaultTTL)
	log.Debug().Int("titles", len(envelope.Animes)).Msg("catalog: refreshed library list")

	return envelope.Animes, nil
}

// Sources lists the comment-track providers for a title, cached per title id
// for 10 minutes.
func (c *Client) Sources(ctx context.Context, animeID int64) ([]SourceEntry, error) {
	cache := c.sourcesCache()
	if cached, ok := cache.Get(animeID); ok {
		return cached, nil
	}

	var envelope sourcesEnvelope
	if err := c.getJSON(ctx, fmt.Sprintf(sourcesPath, animeID), &envelope); err != nil {
		return nil, err
	}
	if !envelope.Success {
		return nil, &TransportError{Op: "sources", Err: apiError(envelope.ErrorMessage)}
	}

	cache.Set(animeID, envelope.Sources, ttlcache.DefaultTTL)

	return envelope.Sources, nil
}

// Episodes lists the episodes within a source, cached per source id for
// 10 minutes.
func (c *Client) Episodes(ctx context.Context, sourceID int64) ([]EpisodeEntry, error) {
	cache := c.episodesCache()
	if cached, ok := cache.Get(sourceID); ok {
		return cached, nil
	}

	var envelope episodesEnvelope
	if err := c.getJSON(ctx, fmt.Sprintf(episodesPath, sourceID), &envelope); err != nil {
		return nil, err
	}
	if !envelope.Success {
		return nil, &TransportError{Op: "episodes", Err: apiError(envelope.ErrorMessage)}
	}

	cache.Set(sourceID, envelope.Episodes, ttlcache.DefaultTTL)

	return envelope.Episodes, nil
}

// Comments fetches the comment batch for an episode. Never cached; comment
// tracks grow over time and stale data defeats the point of re-fetching.
func (c *Client) Comments(ctx context.Context, episodeID int64) (*CommentPayload, error) {
	body, err := c.getRaw(ctx, fmt.Sprintf(commentPath, episodeID))
	if err != nil {
		return nil, err
	}

	// The comment endpoint returns either {count, comments: [...]} or a
	// bare JSON array depending on the upstream provider.
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var comments []json.RawMessage
		if err := json.Unmarshal(trimmed, &comments); err != nil {
			return nil, &TransportError{Op: "comments", Err: err}
		}
		return &CommentPayload{Count: len(comments), Comments: comments}, nil
	}

	var payload CommentPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &TransportError{Op: "comments", Err: err}
	}
	if payload.Count == 0 {
		payload.Count = len(payload.Comments)
	}

	return &payload, nil
}

// FlushCaches drops every cached entry. Invoked from the administrative
// surface; in-flight reads racing the flush may still serve the old value.
func (c *Client) FlushCaches() {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	// Keyed caches are rebuilt rather than walked; the cache type has no
	// enumeration API.
	c.library, c.sources, c.episodes = c.newCaches()
	log.Info().Msg("catalog: caches flushed")
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	body, err := c.getRaw(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &TransportError{Op: path, Err: err}
	}
	return nil
}

func (c *Client) getRaw(ctx context.Context, path string) ([]byte, error) {
	if c.baseURL == "" {
		return nil, &TransportError{Op: path, Err: errors.New("base url not configured")}
	}

	reqURL := c.baseURL + path
	if c.apiKey != "" {
		reqURL += "?api_key=" + url.QueryEscape(c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &TransportError{Op: path, Err: err}
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: path, Err: err}
	}
	defer httphelpers.DrainAndClose(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{Op: path, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	body, err := httphelpers.ReadBody(resp)
	if err != nil {
		return nil, &TransportError{Op: path, Err: err}
	}

	return body, nil
}

func apiError(message string) error {
	if message == "" {
		message = "unknown error"
	}
	return errors.New(message)
}
