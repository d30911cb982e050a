// Copyright (c) 2025, the danmusync contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package watcher

import (
	"sync"
	"time"
)

const (
	createWindow = 800 * time.Millisecond
	renameWindow = 2 * time.Second
	pruneAfter   = 5 * time.Second
)

type eventKind string

const (
	kindCreate eventKind = "create"
	kindRename eventKind = "rename"
)

type dedupKey struct {
	path string
	kind eventKind
}

// deduper suppresses repeats of the same (path, kind) within a kind-specific
// window. Stale entries are pruned opportunistically on every evaluation.
type deduper struct {
	mu     sync.Mutex
	recent map[dedupKey]time.Time
}

func newDeduper() *deduper {
	return &deduper{recent: make(map[dedupKey]time.Time)}
}

// shouldProcess reports whether the event is the first of its key within the
// window, recording it if so.
func (d *deduper) shouldProcess(path string, kind eventKind, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key, seen := range d.recent {
		if now.Sub(seen) > pruneAfter {
			delete(d.recent, key)
		}
	}

	key := dedupKey{path: path, kind: kind}
	if seen, ok := d.recent[key]; ok && now.Sub(seen) < windowFor(kind) {
		return false
	}

	d.recent[key] = now
	return true
}

func windowFor(kind eventKind) time.Duration {
	if kind == kindCreate {
		return createWindow
	}
	return renameWindow
}
