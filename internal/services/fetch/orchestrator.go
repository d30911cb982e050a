// Copyright (c) 2025, the danmusync contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package fetch

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/danmusync/danmusync/internal/catalog"
	"github.com/danmusync/danmusync/internal/danmuxml"
	"github.com/danmusync/danmusync/internal/domain"
	"github.com/danmusync/danmusync/internal/mediainfo"
)

// ProcessingResult aggregates one pipeline run over every provider source.
type ProcessingResult struct {
	Success      bool
	Message      string
	Artifacts    []string
	SeriesName   string
	Episode      int
	CommentCount int
}

// processFile runs the full resolution pipeline for one video path: parse,
// resolve the title, then fetch and serialize a comment track for every
// provider source. Success means at least one source produced an artifact.
func (s *Service) processFile(ctx context.Context, cfg *domain.Config, path string) *ProcessingResult {
	info, err := s.parser.Parse(path)
	if err != nil {
		return &ProcessingResult{Message: fmt.Sprintf("unparsable file name: %v", err)}
	}

	logger := log.With().
		Str("file", path).
		Str("series", info.SeriesName).
		Int("episode", info.Episode).
		Logger()

	// Existing artifacts are overwritten to pick up provider-side track
	// updates; the check is informational only.
	defaultArtifact := mediainfo.ArtifactPath(info, "", cfg.OutputDir)
	if _, statErr := os.Stat(defaultArtifact); statErr == nil {
		logger.Info().Str("artifact", defaultArtifact).Msg("fetch: artifact exists, overwriting")
	}

	client := s.client.Load()

	entries, err := client.Library(ctx)
	if err != nil {
		return &ProcessingResult{
			Message:    fmt.Sprintf("library fetch failed: %v", err),
			SeriesName: info.SeriesName,
			Episode:    info.Episode,
		}
	}

	title, err := catalog.MatchTitle(entries, info.SeriesName, info.Season)
	if err != nil {
		return &ProcessingResult{
			Message:    fmt.Sprintf("no catalog match for %q season %d", info.SeriesName, info.Season),
			SeriesName: info.SeriesName,
			Episode:    info.Episode,
		}
	}

	sources, err := client.Sources(ctx, title.AnimeID)
	if err != nil {
		return &ProcessingResult{
			Message:    fmt.Sprintf("source lookup failed: %v", err),
			SeriesName: info.SeriesName,
			Episode:    info.Episode,
		}
	}
	if len(sources) == 0 {
		return &ProcessingResult{
			Message:    fmt.Sprintf("no comment sources for %q", title.Title),
			SeriesName: info.SeriesName,
			Episode:    info.Episode,
		}
	}

	result := &ProcessingResult{
		SeriesName: info.SeriesName,
		Episode:    info.Episode,
	}
	var failed []string

	for _, source := range sources {
		artifact, count, err := s.processSource(ctx, client, cfg, info, source)
		if err != nil {
			logger.Warn().Err(err).Str("provider", source.ProviderName).Msg("fetch: source failed")
			failed = append(failed, fmt.Sprintf("%s: %v", source.ProviderName, err))
			continue
		}

		result.Artifacts = append(result.Artifacts, artifact)
		result.CommentCount += count
		s.metrics.ArtifactsWritten.WithLabelValues(source.ProviderName).Inc()
		s.metrics.CommentsFetched.Add(float64(count))
		logger.Info().
			Str("provider", source.ProviderName).
			Str("artifact", artifact).
			Int("comments", count).
			Msg("fetch: artifact written")
	}

	if len(result.Artifacts) > 0 {
		result.Success = true
		result.Message = fmt.Sprintf("downloaded %d comment tracks", len(result.Artifacts))
		if len(failed) > 0 {
			result.Message += fmt.Sprintf(", %d sources failed: %s", len(failed), strings.Join(failed, "; "))
		}
	} else {
		result.Message = fmt.Sprintf("all sources failed: %s", strings.Join(failed, "; "))
	}

	return result
}

// processSource resolves and writes one provider's comment track.
func (s *Service) processSource(ctx context.Context, client *catalog.Client, cfg *domain.Config, info *mediainfo.ParsedVideoInfo, source catalog.SourceEntry) (string, int, error) {
	episodes, err := client.Episodes(ctx, source.SourceID)
	if err != nil {
		return "", 0, err
	}

	episode, err := catalog.MatchEpisode(episodes, info.Episode)
	if err != nil {
		return "", 0, err
	}

	payload, err := client.Comments(ctx, episode.EpisodeID)
	if err != nil {
		return "", 0, err
	}

	records := danmuxml.Normalize(payload.Comments)
	document, err := danmuxml.Generate(records, mediainfo.ProviderSuffix(source.ProviderName), episode.EpisodeID)
	if err != nil {
		return "", 0, err
	}

	artifact := mediainfo.ArtifactPath(info, source.ProviderName, cfg.OutputDir)
	if err := danmuxml.Save(artifact, document); err != nil {
		return "", 0, err
	}

	return artifact, len(records), nil
}
