// Copyright (c) 2025, the danmusync contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package catalog

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/danmusync/danmusync/pkg/stringutils"
)

// MatchTitle finds the library entry for a parsed series name. Both sides are
// run through normalized folding, then matched as a substring check in both
// directions. With a season hint, exact season equality wins among the
// matches; otherwise the first match is taken and the fallback is logged.
func MatchTitle(entries []CatalogEntry, name string, season int) (*CatalogEntry, error) {
	needle := stringutils.NormalizeTitle(name)
	if needle == "" {
		return nil, &NotFoundError{Kind: "title", Query: name}
	}

	var matches []CatalogEntry
	for _, entry := range entries {
		title := stringutils.NormalizeTitle(entry.Title)
		if title == "" {
			continue
		}
		if strings.Contains(title, needle) || strings.Contains(needle, title) {
			matches = append(matches, entry)
		}
	}

	if len(matches) == 0 {
		return nil, &NotFoundError{Kind: "title", Query: name}
	}

	if season > 0 {
		for i := range matches {
			if matches[i].Season == season {
				return &matches[i], nil
			}
		}
		log.Warn().
			Str("title", name).
			Int("season", season).
			Str("selected", matches[0].Title).
			Msg("catalog: no entry for requested season, using first title match")
	}

	return &matches[0], nil
}

// MatchEpisode finds the target episode within a source's episode list.
// Literal patterns against episode titles are tried first; when none match,
// a 1-indexed positional lookup assumes stable provider ordering.
func MatchEpisode(episodes []EpisodeEntry, target int) (*EpisodeEntry, error) {
	if target > 0 {
		patterns := episodeTitlePatterns(target)
		for i := range episodes {
			title := episodes[i].EpisodeTitle
			if title == "" {
				continue
			}
			for _, re := range patterns {
				if re.MatchString(title) {
					return &episodes[i], nil
				}
			}
		}

		if target <= len(episodes) {
			log.Debug().
				Int("episode", target).
				Str("title", episodes[target-1].EpisodeTitle).
				Msg("catalog: episode matched by position")
			return &episodes[target-1], nil
		}
	}

	return nil, &NotFoundError{Kind: "episode", Query: fmt.Sprintf("episode %d", target)}
}

func episodeTitlePatterns(target int) []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(fmt.Sprintf(`第\s*%d\s*集`, target)),
		regexp.MustCompile(fmt.Sprintf(`第\s*%02d\s*集`, target)),
		regexp.MustCompile(fmt.Sprintf(`(?i)ep\s*%02d`, target)),
		regexp.MustCompile(fmt.Sprintf(`(?i)ep\s*%d\b`, target)),
		regexp.MustCompile(fmt.Sprintf(`\b%02d\b`, target)),
		regexp.MustCompile(fmt.Sprintf(`\b%d\b`, target)),
	}
}
