// Copyright (c) 2025, the danmusync contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchTitle(t *testing.T) {
	entries := []CatalogEntry{
		{AnimeID: 1, Title: "剧名", Season: 1},
		{AnimeID: 2, Title: "剧名", Season: 2},
		{AnimeID: 3, Title: "Another Show", Season: 1},
	}

	t.Run("season preference", func(t *testing.T) {
		entry, err := MatchTitle(entries, "剧名", 2)
		require.NoError(t, err)
		assert.Equal(t, int64(2), entry.AnimeID)
	})

	t.Run("first match without season hint", func(t *testing.T) {
		entry, err := MatchTitle(entries, "剧名", 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), entry.AnimeID)
	})

	t.Run("missing season falls back to first match", func(t *testing.T) {
		entry, err := MatchTitle(entries, "剧名", 5)
		require.NoError(t, err)
		assert.Equal(t, int64(1), entry.AnimeID)
	})

	t.Run("substring in either direction", func(t *testing.T) {
		entry, err := MatchTitle(entries, "another show extended cut", 0)
		require.NoError(t, err)
		assert.Equal(t, int64(3), entry.AnimeID)

		entry, err = MatchTitle(entries, "Another", 0)
		require.NoError(t, err)
		assert.Equal(t, int64(3), entry.AnimeID)
	})

	t.Run("normalized folding", func(t *testing.T) {
		folded := []CatalogEntry{{AnimeID: 9, Title: "Amélie: The Series", Season: 1}}
		entry, err := MatchTitle(folded, "Amelie The Series", 0)
		require.NoError(t, err)
		assert.Equal(t, int64(9), entry.AnimeID)
	})

	t.Run("no match", func(t *testing.T) {
		_, err := MatchTitle(entries, "unrelated", 0)
		assert.True(t, IsNotFound(err))
	})
}

func TestMatchEpisode(t *testing.T) {
	episodes := []EpisodeEntry{
		{EpisodeID: 10, EpisodeTitle: "第 1 集"},
		{EpisodeID: 11, EpisodeTitle: "第 2 集"},
		{EpisodeID: 12, EpisodeTitle: "EP03"},
	}

	t.Run("cjk literal", func(t *testing.T) {
		ep, err := MatchEpisode(episodes, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(11), ep.EpisodeID)
	})

	t.Run("ep prefix literal", func(t *testing.T) {
		ep, err := MatchEpisode(episodes, 3)
		require.NoError(t, err)
		assert.Equal(t, int64(12), ep.EpisodeID)
	})

	t.Run("positional fallback", func(t *testing.T) {
		untitled := []EpisodeEntry{
			{EpisodeID: 20, EpisodeTitle: "开篇"},
			{EpisodeID: 21, EpisodeTitle: "决战"},
		}
		ep, err := MatchEpisode(untitled, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(21), ep.EpisodeID)
	})

	t.Run("out of range", func(t *testing.T) {
		_, err := MatchEpisode(episodes, 9)
		assert.True(t, IsNotFound(err))
	})
}
