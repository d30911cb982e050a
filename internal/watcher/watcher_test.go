// Copyright (c) 2025, the danmusync contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danmusync/danmusync/internal/domain"
	"github.com/danmusync/danmusync/internal/metrics"
)

type recordingSubmitter struct {
	mu    sync.Mutex
	paths []string
}

func (r *recordingSubmitter) Submit(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	return true
}

func (r *recordingSubmitter) count(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.paths {
		if p == path {
			n++
		}
	}
	return n
}

func TestDeduperWindows(t *testing.T) {
	d := newDeduper()
	now := time.Now()

	assert.True(t, d.shouldProcess("/a.mp4", kindCreate, now))
	assert.False(t, d.shouldProcess("/a.mp4", kindCreate, now.Add(500*time.Millisecond)))
	assert.True(t, d.shouldProcess("/a.mp4", kindCreate, now.Add(900*time.Millisecond)))

	// Rename uses the wider window.
	assert.True(t, d.shouldProcess("/b.mp4", kindRename, now))
	assert.False(t, d.shouldProcess("/b.mp4", kindRename, now.Add(1900*time.Millisecond)))

	// Distinct kinds for the same path do not suppress each other.
	assert.True(t, d.shouldProcess("/c.mp4", kindCreate, now))
	assert.True(t, d.shouldProcess("/c.mp4", kindRename, now))
}

func TestDeduperPrunesStaleEntries(t *testing.T) {
	d := newDeduper()
	now := time.Now()

	require.True(t, d.shouldProcess("/a.mp4", kindCreate, now))
	require.True(t, d.shouldProcess("/b.mp4", kindCreate, now))

	// Evaluating any event past the prune horizon clears old entries.
	require.True(t, d.shouldProcess("/c.mp4", kindCreate, now.Add(6*time.Second)))

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.Len(t, d.recent, 1)
}

func TestWatcherSubmitsNewFile(t *testing.T) {
	dir := t.TempDir()

	cfg := domain.DefaultConfig()
	cfg.WatchDirs = []string{dir}
	cfg.SettleDelay = 20 * time.Millisecond

	submitter := &recordingSubmitter{}
	svc := NewService(&cfg, submitter, metrics.NewManager())

	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()
	require.True(t, svc.Running())

	videoPath := filepath.Join(dir, "show - S01E01.mp4")
	require.NoError(t, os.WriteFile(videoPath, []byte("data"), 0o644))

	require.Eventually(t, func() bool {
		return submitter.count(videoPath) == 1
	}, 3*time.Second, 20*time.Millisecond)

	// Disallowed extensions never reach the pipeline.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, submitter.count(videoPath))
	assert.Equal(t, 0, submitter.count(filepath.Join(dir, "notes.txt")))
}

func TestWatcherIdempotentWithinWindow(t *testing.T) {
	dir := t.TempDir()

	cfg := domain.DefaultConfig()
	cfg.WatchDirs = []string{dir}
	cfg.SettleDelay = 20 * time.Millisecond

	submitter := &recordingSubmitter{}
	svc := NewService(&cfg, submitter, metrics.NewManager())

	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	videoPath := filepath.Join(dir, "dup - S01E02.mp4")
	require.NoError(t, os.WriteFile(videoPath, []byte("data"), 0o644))

	// A second create for the same path inside the window must be
	// suppressed; removing and recreating emits a fresh create event.
	require.NoError(t, os.Remove(videoPath))
	require.NoError(t, os.WriteFile(videoPath, []byte("data"), 0o644))

	require.Eventually(t, func() bool {
		return submitter.count(videoPath) >= 1
	}, 3*time.Second, 20*time.Millisecond)

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, submitter.count(videoPath))
}

func TestWatcherRequiresDirs(t *testing.T) {
	cfg := domain.DefaultConfig()
	cfg.WatchDirs = nil

	svc := NewService(&cfg, &recordingSubmitter{}, metrics.NewManager())
	assert.Error(t, svc.Start(context.Background()))
}
