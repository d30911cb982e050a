// Copyright (c) 2025, the danmusync contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package danmuxml

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoRecords is returned when normalization leaves nothing to serialize.
var ErrNoRecords = errors.New("danmuxml: no usable comment records")

var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// Generate builds the artifact document: a header carrying the provider name
// and record count, then one d element per record with the packed attribute
// string repaired and everything stripped and escaped for XML 1.0.
func Generate(records []CommentRecord, provider string, episodeID int64) (string, error) {
	if len(records) == 0 {
		return "", ErrNoRecords
	}

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString("<i>\n")
	fmt.Fprintf(&b, "  <chatserver>danmu</chatserver>\n")
	fmt.Fprintf(&b, "  <chatid>%d</chatid>\n", episodeID)
	fmt.Fprintf(&b, "  <mission>0</mission>\n")
	fmt.Fprintf(&b, "  <maxlimit>%d</maxlimit>\n", len(records))
	fmt.Fprintf(&b, "  <source>kuyun</source>\n")
	fmt.Fprintf(&b, "  <sourceprovider>%s</sourceprovider>\n", escape(provider))
	fmt.Fprintf(&b, "  <datasize>%d</datasize>\n", len(records))

	for _, record := range records {
		params := RepairParams(record.PackedParams())
		fmt.Fprintf(&b, "  <d p=\"%s\">%s</d>\n", escape(params), escape(record.Text))
	}

	b.WriteString("</i>")
	return b.String(), nil
}

// RepairParams enforces offset,mode,fontSize,color,... on the packed
// attribute string. Only the fields preceding any bracketed suffix are
// touched: a 3-field core gets the default font size "25" inserted third,
// and a 4-field core with a blank or non-numeric 3rd field gets it
// overwritten with "25".
func RepairParams(params string) string {
	parts := strings.Split(params, ",")

	coreEnd := len(parts)
	for i, part := range parts {
		if strings.Contains(part, "[") && strings.Contains(part, "]") {
			coreEnd = i
			break
		}
	}
	core := parts[:coreEnd:coreEnd]
	optional := parts[coreEnd:]

	switch {
	case len(core) == 3:
		core = []string{core[0], core[1], "25", core[2]}
	case len(core) == 4 && !isDigits(strings.TrimSpace(core[2])):
		core[2] = "25"
	}

	return strings.Join(append(core, optional...), ",")
}

// Save writes the document beside the video, creating the directory first.
func Save(path, document string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create artifact dir: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(document), 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}

func escape(s string) string {
	return escaper.Replace(stripIllegal(s))
}

// stripIllegal removes characters outside the XML 1.0 legal ranges: tab, LF,
// CR, U+0020-U+D7FF, U+E000-U+FFFD, U+10000-U+10FFFF.
func stripIllegal(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == 0x09 || r == 0x0A || r == 0x0D:
			return r
		case r >= 0x20 && r <= 0xD7FF:
			return r
		case r >= 0xE000 && r <= 0xFFFD:
			return r
		case r >= 0x10000 && r <= 0x10FFFF:
			return r
		}
		return -1
	}, s)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
