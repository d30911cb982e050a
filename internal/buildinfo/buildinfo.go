// Copyright (c) 2025, the danmusync contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package buildinfo exposes version metadata stamped in via ldflags.
package buildinfo

import (
	"encoding/json"
	"fmt"
	"runtime"
)

var (
	Version = "dev"
	Commit  = ""
	Date    = ""

	// UserAgent identifies this build in outgoing HTTP requests.
	UserAgent string
)

func init() {
	UserAgent = fmt.Sprintf("danmusync/%s (%s %s)", Version, runtime.GOOS, runtime.GOARCH)
}

// String returns a human-readable multi-line version summary.
func String() string {
	return fmt.Sprintf("Version: %s\nCommit: %s\nBuild date: %s\n", Version, Commit, Date)
}

// JSON returns version metadata for the admin API.
func JSON() ([]byte, error) {
	return json.Marshal(struct {
		Version string `json:"version"`
		Commit  string `json:"commit"`
		Date    string `json:"date"`
	}{
		Version: Version,
		Commit:  Commit,
		Date:    Date,
	})
}
