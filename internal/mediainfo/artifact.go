// Copyright (c) 2025, the danmusync contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package mediainfo

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
)

// Known provider slugs and their artifact file name suffixes.
var providerSuffixes = map[string]string{
	"iqiyi":    "IqiyiID",
	"bilibili": "BilibiliID",
	"tencent":  "TencentID",
	"youku":    "YoukuID",
}

// ProviderSuffix maps a catalog provider slug to the suffix embedded in
// artifact file names. Unknown providers get a capitalized "<Provider>ID".
func ProviderSuffix(provider string) string {
	slug := strings.ToLower(strings.TrimSpace(provider))
	if suffix, ok := providerSuffixes[slug]; ok {
		return suffix
	}
	if slug == "" {
		return "DanmuID"
	}
	return capitalize(slug) + "ID"
}

// ArtifactPath returns the destination for a comment XML artifact. Episodic
// content with a known season gets the canonical series layout; everything
// else reuses the source base name with the provider suffix appended.
// outputDir overrides the source directory when non-empty.
func ArtifactPath(info *ParsedVideoInfo, provider, outputDir string) string {
	dir := info.SourceDir
	if outputDir != "" {
		dir = outputDir
	}
	return filepath.Join(dir, artifactFileName(info, ProviderSuffix(provider)))
}

func artifactFileName(info *ParsedVideoInfo, suffix string) string {
	if info.ContentType == ContentTypeEpisode && info.Season > 0 {
		return fmt.Sprintf("%s - S%02dE%d - 第 %d 集_%s.xml",
			info.SeriesName, info.Season, info.Episode, info.Episode, suffix)
	}
	if strings.HasSuffix(info.BaseName, "_"+suffix) {
		return info.BaseName + ".xml"
	}
	return info.BaseName + "_" + suffix + ".xml"
}

func capitalize(s string) string {
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
