// Copyright (c) 2025, the danmusync contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package mediainfo parses video file names into content descriptors used to
// resolve comment tracks against the remote catalog.
package mediainfo

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/moistari/rls"
	"github.com/rs/zerolog/log"
)

// ContentType classifies a parsed file.
type ContentType string

const (
	ContentTypeEpisode ContentType = "tv_series"
	ContentTypeMovie   ContentType = "movie"
)

// ErrUnparsable is returned when neither the episodic nor the movie parser
// can make sense of a file name.
var ErrUnparsable = errors.New("mediainfo: file name not parsable")

// ParsedVideoInfo is the immutable result of parsing a video path.
type ParsedVideoInfo struct {
	SeriesName  string
	MovieName   string
	Season      int // 0 when unknown
	Episode     int
	Year        int // movies only
	ContentType ContentType
	SourceDir   string
	BaseName    string // file name without extension
	Ext         string
}

// Episode extraction patterns in priority order. The bare-number pattern is
// last and only accepted after context validation.
var episodePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)s(\d+)e(\d+)`),
	regexp.MustCompile(`第\s*(\d+)\s*集`),
	regexp.MustCompile(`(?i)ep\s*(\d+)`),
	regexp.MustCompile(`(\d+)\s*集`),
	regexp.MustCompile(`\[(\d+)\]`),
	regexp.MustCompile(`(\d+)\s*话`),
	regexp.MustCompile(`_(\d+)(?:_|$)`),
	regexp.MustCompile(`\b(\d{1,3})\b`),
}

// Tokens that disqualify a bare number from being an episode: resolutions,
// codecs, containers and audio formats commonly embedded in release names.
var bareNumberBlacklist = []string{
	"1080p", "720p", "480p", "4k", "2160p",
	"x264", "x265", "h264", "h265",
	"bluray", "webrip", "hdtv", "dvdrip",
	"aac", "ac3", "dts", "flac",
	"mkv", "mp4", "avi", "mov",
}

var qualityStripPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(1080p|720p|480p|4k|2160p|uhd|hd)\b`),
	regexp.MustCompile(`(?i)\b(x264|x265|h264|h265|hevc)\b`),
	regexp.MustCompile(`(?i)\b(bluray|webrip|hdtv|dvdrip|bdrip|web-dl)\b`),
	regexp.MustCompile(`(?i)\b(aac|ac3|dts|flac|mp3)\b`),
	regexp.MustCompile(`\[[^\]]*\]`),
}

var (
	parenContentRe = regexp.MustCompile(`\([^)]*\)`)
	separatorRunRe = regexp.MustCompile(`[-_\s]+`)

	strictMovieRe = regexp.MustCompile(`^(.+?)\s*\((\d{4})\)\s*-?\s*(.*?)$`)
	looseYearRe   = regexp.MustCompile(`\b(\d{4})\b`)
)

// Content-type detection heuristics, tried movie-first then episodic.
var movieHintPatterns = []*regexp.Regexp{
	regexp.MustCompile(`.+\s*\(\d{4}\)`),
	regexp.MustCompile(`.+\s+\d{4}\s*[-–—]`),
	regexp.MustCompile(`.+\s+\d{4}\s*$`),
}

var episodeHintPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)s\d+e\d+`),
	regexp.MustCompile(`第\s*\d+\s*[集话期]`),
	regexp.MustCompile(`(?i)ep?\s*\d+`),
	regexp.MustCompile(`\s+\d+\s*$`),
	regexp.MustCompile(`[-–—]\s*\d+\s*$`),
}

const (
	minMovieYear = 1900
	maxMovieYear = 2030
)

// Parser turns file paths into ParsedVideoInfo.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Parse classifies and parses a video path. Classification picks which parser
// runs first; on failure the other parser is tried before giving up.
func (p *Parser) Parse(path string) (*ParsedVideoInfo, error) {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	dir := filepath.Dir(path)

	if p.detectContentType(name) == ContentTypeMovie {
		if info := p.parseMovie(name, dir, ext); info != nil {
			return info, nil
		}
		log.Debug().Str("name", name).Msg("mediainfo: movie parse failed, trying episodic")
		if info := p.parseEpisode(name, dir, ext); info != nil {
			return info, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrUnparsable, base)
	}

	if info := p.parseEpisode(name, dir, ext); info != nil {
		return info, nil
	}
	log.Debug().Str("name", name).Msg("mediainfo: episodic parse failed, trying movie")
	if info := p.parseMovie(name, dir, ext); info != nil {
		return info, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnparsable, base)
}

// detectContentType decides which parser to try first. rls gets the first
// word: scene-style movie names with a year classify cleanly there. The
// regex hints cover the CJK forms rls does not model; episodic wins ties.
func (p *Parser) detectContentType(name string) ContentType {
	if r := rls.ParseString(name); r.Type == rls.Movie && r.Year >= minMovieYear && r.Year <= maxMovieYear {
		return ContentTypeMovie
	}

	for _, re := range movieHintPatterns {
		if re.MatchString(name) {
			return ContentTypeMovie
		}
	}
	for _, re := range episodeHintPatterns {
		if re.MatchString(name) {
			return ContentTypeEpisode
		}
	}
	return ContentTypeEpisode
}

func (p *Parser) parseEpisode(name, dir, ext string) *ParsedVideoInfo {
	season, episode, ok := extractEpisode(name)
	if !ok {
		return nil
	}

	series := extractSeriesName(name)
	if series == "" {
		return nil
	}

	return &ParsedVideoInfo{
		SeriesName:  series,
		Season:      season,
		Episode:     episode,
		ContentType: ContentTypeEpisode,
		SourceDir:   dir,
		BaseName:    name,
		Ext:         ext,
	}
}

func (p *Parser) parseMovie(name, dir, ext string) *ParsedVideoInfo {
	if m := strictMovieRe.FindStringSubmatch(name); m != nil {
		year, _ := strconv.Atoi(m[2])
		if year >= minMovieYear && year <= maxMovieYear {
			if clean := cleanName(m[1]); len([]rune(clean)) >= 2 {
				return movieInfo(clean, year, name, dir, ext)
			}
		}
	}

	// Loose fallback: first plausible 4-digit year anywhere in the name.
	for _, m := range looseYearRe.FindAllStringSubmatchIndex(name, -1) {
		year, _ := strconv.Atoi(name[m[2]:m[3]])
		if year < minMovieYear || year > maxMovieYear {
			continue
		}
		if clean := cleanName(name[:m[0]]); len([]rune(clean)) >= 2 {
			return movieInfo(clean, year, name, dir, ext)
		}
	}

	return nil
}

func movieInfo(clean string, year int, name, dir, ext string) *ParsedVideoInfo {
	return &ParsedVideoInfo{
		SeriesName:  clean,
		MovieName:   clean,
		Year:        year,
		Episode:     1, // movies resolve as a single-episode title
		ContentType: ContentTypeMovie,
		SourceDir:   dir,
		BaseName:    name,
		Ext:         ext,
	}
}

// extractEpisode tries each pattern in priority order. The bare-number
// pattern validates every candidate match before accepting it.
func extractEpisode(name string) (season, episode int, ok bool) {
	for i, re := range episodePatterns {
		bare := i == len(episodePatterns)-1

		for _, m := range re.FindAllStringSubmatchIndex(name, -1) {
			if i == 0 {
				s, _ := strconv.Atoi(name[m[2]:m[3]])
				e, _ := strconv.Atoi(name[m[4]:m[5]])
				return s, e, true
			}

			n, _ := strconv.Atoi(name[m[2]:m[3]])
			if bare {
				if validBareEpisode(n, name, m[0], m[1]) {
					return 0, n, true
				}
				continue
			}
			return 0, n, true
		}
	}
	return 0, 0, false
}

// validBareEpisode guards the bare 1-3 digit form against quality tokens and
// other numeric noise. Acceptance requires range 1-999, a clean ±10 char
// context, and either an adjacent episode indicator or a two-digit value.
func validBareEpisode(n int, name string, start, end int) bool {
	if n < 1 || n > 999 {
		return false
	}

	before := strings.ToLower(name[max(0, start-10):start])
	after := strings.ToLower(name[end:min(len(name), end+10)])
	context := before + strings.ToLower(name[start:end]) + after

	for _, token := range bareNumberBlacklist {
		if strings.Contains(context, token) {
			return false
		}
	}

	for _, indicator := range []string{"第", "集", "ep", "e", "话", "-", "_", " "} {
		if strings.Contains(before, indicator) || strings.Contains(after, indicator) {
			return true
		}
	}

	return n >= 10 && n <= 99
}

// extractSeriesName strips episode tokens and release noise from the name.
// When aggressive stripping eats the whole title, a conservative pass keeps
// everything except the explicit episode markers.
func extractSeriesName(name string) string {
	clean := name
	for _, re := range episodePatterns {
		clean = re.ReplaceAllString(clean, "")
	}
	for _, re := range qualityStripPatterns {
		clean = re.ReplaceAllString(clean, "")
	}
	clean = parenContentRe.ReplaceAllString(clean, "")
	clean = collapseSeparators(clean)

	if len([]rune(clean)) < 2 {
		clean = name
		for _, re := range episodePatterns[:3] {
			clean = re.ReplaceAllString(clean, "")
		}
		clean = collapseSeparators(clean)
	}

	return clean
}

// cleanName strips quality, codec and bracketed tokens from a movie title.
func cleanName(name string) string {
	clean := name
	for _, re := range qualityStripPatterns {
		clean = re.ReplaceAllString(clean, "")
	}
	return collapseSeparators(clean)
}

func collapseSeparators(s string) string {
	s = separatorRunRe.ReplaceAllString(s, " ")
	return strings.Trim(s, " -_")
}
