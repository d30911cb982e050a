// Copyright (c) 2025, the danmusync contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package catalog implements the remote danmu catalog client: four chained
// read operations with independent TTL caching, plus the title and episode
// matching used to resolve a parsed video against the catalog.
package catalog

import "encoding/json"

// CatalogEntry is one title in the remote library.
type CatalogEntry struct {
	AnimeID int64  `json:"animeId"`
	Title   string `json:"title"`
	Season  int    `json:"season"`
	Type    string `json:"type,omitempty"`
}

// SourceEntry is one provider-contributed comment track for a title.
type SourceEntry struct {
	SourceID     int64  `json:"sourceId"`
	ProviderName string `json:"providerName"`
}

// EpisodeEntry is one episode within a source's track.
type EpisodeEntry struct {
	EpisodeID    int64  `json:"episodeId"`
	EpisodeTitle string `json:"episodeTitle"`
	EpisodeIndex int    `json:"episodeIndex"`
}

// CommentPayload is the raw comment batch for an episode. Individual comment
// shapes vary by provider, so entries stay opaque until normalization.
type CommentPayload struct {
	Count    int               `json:"count"`
	Comments []json.RawMessage `json:"comments"`
}

type libraryEnvelope struct {
	Success      bool           `json:"success"`
	ErrorMessage string         `json:"errorMessage"`
	Animes       []CatalogEntry `json:"animes"`
}

type sourcesEnvelope struct {
	Success      bool          `json:"success"`
	ErrorMessage string        `json:"errorMessage"`
	Sources      []SourceEntry `json:"sources"`
}

type episodesEnvelope struct {
	Success      bool           `json:"success"`
	ErrorMessage string         `json:"errorMessage"`
	Episodes     []EpisodeEntry `json:"episodes"`
}
