// Copyright (c) 2025, the danmusync contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package watcher turns raw filesystem notifications into debounced,
// deduplicated pipeline submissions.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/danmusync/danmusync/internal/domain"
	"github.com/danmusync/danmusync/internal/metrics"
)

// Submitter accepts debounced file paths for processing.
type Submitter interface {
	Submit(path string) bool
}

// Service owns the recursive fsnotify watch over the configured roots.
type Service struct {
	submitter Submitter
	metrics   *metrics.Manager
	cfg       atomic.Pointer[domain.Config]

	dedup *deduper

	mu      sync.Mutex
	watcher *fsnotify.Watcher

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewService(cfg *domain.Config, submitter Submitter, m *metrics.Manager) *Service {
	s := &Service{
		submitter: submitter,
		metrics:   m,
		dedup:     newDeduper(),
	}
	s.cfg.Store(cfg)
	return s
}

// Start creates the watch and begins forwarding events. Watch roots are read
// from the config snapshot at start time; a config change takes effect on
// the next Stop/Start cycle.
func (s *Service) Start(ctx context.Context) error {
	if s.running.Load() {
		return nil
	}

	cfg := s.cfg.Load()
	if len(cfg.WatchDirs) == 0 {
		return fmt.Errorf("watcher: no watch directories configured")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	for _, dir := range cfg.WatchDirs {
		if err := addRecursive(w, dir); err != nil {
			w.Close()
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()
	s.cancel = cancel

	s.wg.Add(1)
	go s.loop(ctx, w)

	s.running.Store(true)
	log.Info().Strs("dirs", cfg.WatchDirs).Msg("watcher: started")
	return nil
}

// Stop tears down the watch. Already-submitted work is unaffected.
func (s *Service) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}

	if s.cancel != nil {
		s.cancel()
	}

	s.mu.Lock()
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	s.mu.Unlock()

	s.wg.Wait()
	log.Info().Msg("watcher: stopped")
}

// Running reports whether the watch loop is active.
func (s *Service) Running() bool {
	return s.running.Load()
}

// UpdateConfig replaces the config snapshot used for extension checks and
// settle delay. Watch roots require a restart to change.
func (s *Service) UpdateConfig(cfg *domain.Config) {
	s.cfg.Store(cfg)
}

func (s *Service) loop(ctx context.Context, w *fsnotify.Watcher) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			s.handleEvent(w, event)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("watcher: event stream error")
		}
	}
}

// handleEvent filters one raw notification. Only create and rename are
// file-appeared signals; writes are intentionally ignored so a file being
// copied in does not trigger per-chunk submissions.
func (s *Service) handleEvent(w *fsnotify.Watcher, event fsnotify.Event) {
	var kind eventKind
	switch {
	case event.Op.Has(fsnotify.Create):
		kind = kindCreate
	case event.Op.Has(fsnotify.Rename):
		kind = kindRename
	default:
		return
	}

	// New directories join the recursive watch.
	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		if kind == kindCreate {
			if err := addRecursive(w, event.Name); err != nil {
				log.Warn().Err(err).Str("dir", event.Name).Msg("watcher: failed to watch new directory")
			}
		}
		return
	}

	cfg := s.cfg.Load()
	if !cfg.AllowsExtension(strings.ToLower(filepath.Ext(event.Name))) {
		return
	}

	if !s.dedup.shouldProcess(event.Name, kind, time.Now()) {
		s.metrics.EventsSuppressed.Inc()
		log.Debug().Str("file", event.Name).Str("kind", string(kind)).Msg("watcher: duplicate event suppressed")
		return
	}

	// Settle before submitting so the file has finished being written.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		time.Sleep(cfg.SettleDelay)

		if !readable(event.Name) {
			log.Warn().Str("file", event.Name).Msg("watcher: file unreadable after settle delay")
			return
		}

		log.Info().Str("file", event.Name).Str("kind", string(kind)).Msg("watcher: file appeared")
		s.submitter.Submit(event.Name)
	}()
}

func addRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walk %s: %w", root, err)
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func readable(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}
