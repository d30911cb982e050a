// Copyright (c) 2025, the danmusync contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package fetch runs the comment-track pipeline: a bounded worker pool with
// single-flight per path, a polling retry scheduler, and the per-file
// resolution orchestrator.
package fetch

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmusync/danmusync/internal/catalog"
	"github.com/danmusync/danmusync/internal/domain"
	"github.com/danmusync/danmusync/internal/mediainfo"
	"github.com/danmusync/danmusync/internal/metrics"
)

// retryTick is the retry scheduler polling interval.
const retryTick = time.Second

// stopTimeout bounds how long Stop waits for the scheduler and outstanding
// workers before giving up.
const stopTimeout = 10 * time.Second

// Service owns the pipeline state: pool handle, in-flight set, retry queue
// and processed-file registry. The config snapshot is replaced wholesale on
// updates; a run keeps the snapshot it captured at submission time.
type Service struct {
	cfg     atomic.Pointer[domain.Config]
	client  atomic.Pointer[catalog.Client]
	parser  *mediainfo.Parser
	metrics *metrics.Manager

	// mu guards the pool handle and the in-flight set.
	mu       sync.Mutex
	pool     *workerPool
	inFlight map[string]struct{}

	processedMu sync.Mutex
	processed   map[string]time.Time

	// process runs one pipeline attempt; swapped out in tests.
	process func(ctx context.Context, cfg *domain.Config, path string) *ProcessingResult

	retries *retryQueue

	running         atomic.Bool
	schedulerCtx    context.Context
	schedulerCancel context.CancelFunc
	schedulerWg     sync.WaitGroup
}

// Status is the snapshot reported to the administrative surface.
type Status struct {
	Running        bool `json:"running"`
	Workers        int  `json:"workers"`
	InFlight       int  `json:"inFlight"`
	PendingRetries int  `json:"pendingRetries"`
	ProcessedCount int  `json:"processedCount"`
}

func NewService(cfg *domain.Config, client *catalog.Client, m *metrics.Manager) *Service {
	s := &Service{
		parser:    mediainfo.NewParser(),
		metrics:   m,
		pool:      newWorkerPool(cfg.MaxWorkers),
		inFlight:  make(map[string]struct{}),
		processed: make(map[string]time.Time),
		retries:   newRetryQueue(),
	}
	s.cfg.Store(cfg)
	s.client.Store(client)
	s.process = s.processFile
	return s
}

// Start launches the retry scheduler.
func (s *Service) Start(ctx context.Context) error {
	s.schedulerCtx, s.schedulerCancel = context.WithCancel(ctx)
	s.schedulerWg.Add(1)
	go s.runScheduler()
	s.running.Store(true)
	log.Info().Int("workers", s.currentPool().Size()).Msg("fetch: service started")
	return nil
}

// Stop halts the retry scheduler and drains the pool. In-flight runs are not
// cancellable; the wait is bounded so shutdown cannot hang on a stuck run.
func (s *Service) Stop() {
	s.running.Store(false)
	if s.schedulerCancel != nil {
		s.schedulerCancel()
	}

	done := make(chan struct{})
	go func() {
		s.schedulerWg.Wait()
		s.currentPool().Drain()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("fetch: service stopped")
	case <-time.After(stopTimeout):
		log.Warn().Msg("fetch: shutdown timed out waiting for outstanding work")
	}
}

// Submit queues a first-attempt run for path. Fire and forget: the result is
// observable via logs, metrics and the processed registry. Submitting a path
// already in flight is a silent no-op.
func (s *Service) Submit(path string) bool {
	return s.submit(path, 1)
}

func (s *Service) submit(path string, attempt int) bool {
	for tries := 0; tries < 2; tries++ {
		s.mu.Lock()
		if _, busy := s.inFlight[path]; busy {
			s.mu.Unlock()
			log.Debug().Str("file", path).Msg("fetch: already in flight, ignoring submission")
			return false
		}
		s.inFlight[path] = struct{}{}
		pool := s.pool
		s.mu.Unlock()

		if pool.Submit(func() { s.run(path, attempt) }) {
			return true
		}

		// Lost a race with a pool swap; clear the reservation and retry
		// against the fresh handle.
		s.mu.Lock()
		delete(s.inFlight, path)
		s.mu.Unlock()
	}

	log.Warn().Str("file", path).Msg("fetch: submission rejected, pool draining")
	return false
}

func (s *Service) run(path string, attempt int) {
	cfg := s.cfg.Load()

	s.metrics.InFlight.Inc()
	defer s.metrics.InFlight.Dec()
	defer func() {
		s.mu.Lock()
		delete(s.inFlight, path)
		s.mu.Unlock()
	}()

	log.Info().Str("file", path).Int("attempt", attempt).Msg("fetch: processing file")

	result := s.process(context.Background(), cfg, path)
	if result.Success {
		s.markProcessed(path)
		s.metrics.FilesProcessed.Inc()
		log.Info().
			Str("file", path).
			Str("series", result.SeriesName).
			Int("episode", result.Episode).
			Int("comments", result.CommentCount).
			Strs("artifacts", result.Artifacts).
			Msg("fetch: file processed")
		return
	}

	s.handleFailure(cfg, path, attempt, result.Message)
}

func (s *Service) handleFailure(cfg *domain.Config, path string, attempt int, reason string) {
	next := attempt + 1
	if next > cfg.MaxAttempts {
		s.metrics.FilesFailed.Inc()
		s.metrics.RetriesDropped.Inc()
		log.Error().
			Str("file", path).
			Int("attempts", attempt).
			Str("reason", reason).
			Msg("fetch: giving up after final attempt")
		return
	}

	s.retries.push(RetryTask{
		Path:        path,
		Attempt:     next,
		MaxAttempts: cfg.MaxAttempts,
		NotBefore:   time.Now().Add(cfg.RetryDelay),
		LastError:   reason,
	})
	s.metrics.RetriesScheduled.Inc()
	log.Warn().
		Str("file", path).
		Int("nextAttempt", next).
		Dur("delay", cfg.RetryDelay).
		Str("reason", reason).
		Msg("fetch: attempt failed, retry scheduled")
}

func (s *Service) runScheduler() {
	defer s.schedulerWg.Done()

	ticker := time.NewTicker(retryTick)
	defer ticker.Stop()

	for {
		select {
		case <-s.schedulerCtx.Done():
			return
		case <-ticker.C:
			s.dispatchDueRetries()
		}
	}
}

// dispatchDueRetries resubmits every due task concurrently. Tasks not yet
// due stay queued unchanged.
func (s *Service) dispatchDueRetries() {
	for _, task := range s.retries.popDue(time.Now()) {
		task := task
		go func() {
			log.Info().
				Str("file", task.Path).
				Int("attempt", task.Attempt).
				Msg("fetch: retrying file")
			if !s.submit(task.Path, task.Attempt) {
				// The path is still in flight or the pool was swapping.
				// Keep the task queued so its remaining attempts survive,
				// unless the blocking run already scheduled a newer one.
				if s.retries.pushIfAbsent(task) {
					log.Debug().
						Str("file", task.Path).
						Int("attempt", task.Attempt).
						Msg("fetch: retry deferred, path busy")
				}
			}
		}()
	}
}

// Resize swaps in a pool of the new size. The old pool drains in the
// background while the new one accepts submissions immediately.
func (s *Service) Resize(workers int) {
	s.mu.Lock()
	old := s.pool
	s.pool = newWorkerPool(workers)
	s.mu.Unlock()

	go old.Drain()
	log.Info().Int("workers", workers).Msg("fetch: worker pool resized")
}

// UpdateConfig replaces the config snapshot. The pool is resized and the
// catalog client rebuilt when the relevant settings changed; in-flight runs
// keep the snapshot they captured.
func (s *Service) UpdateConfig(cfg *domain.Config) {
	old := s.cfg.Swap(cfg)

	if old.MaxWorkers != cfg.MaxWorkers {
		s.Resize(cfg.MaxWorkers)
	}
	if old.DanmuBaseURL != cfg.DanmuBaseURL || old.DanmuAPIKey != cfg.DanmuAPIKey {
		s.client.Store(catalog.NewClient(catalog.Config{
			BaseURL: cfg.DanmuBaseURL,
			APIKey:  cfg.DanmuAPIKey,
		}))
		log.Info().Str("baseUrl", cfg.DanmuBaseURL).Msg("fetch: catalog client rebuilt")
	}
}

// ScanDirectory walks dir and submits every file with an allowed extension.
// Returns the number of accepted submissions.
func (s *Service) ScanDirectory(dir string) (int, error) {
	cfg := s.cfg.Load()

	submitted := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !cfg.AllowsExtension(strings.ToLower(filepath.Ext(path))) {
			return nil
		}
		if s.Submit(path) {
			submitted++
		}
		return nil
	})
	if err != nil {
		return submitted, err
	}

	log.Info().Str("dir", dir).Int("submitted", submitted).Msg("fetch: directory scan queued")
	return submitted, nil
}

// Status reports the current pipeline state.
func (s *Service) Status() Status {
	s.mu.Lock()
	workers := s.pool.Size()
	inFlight := len(s.inFlight)
	s.mu.Unlock()

	return Status{
		Running:        s.running.Load(),
		Workers:        workers,
		InFlight:       inFlight,
		PendingRetries: s.retries.len(),
		ProcessedCount: s.processedCount(),
	}
}

// FlushCaches drops the catalog client's cached reads.
func (s *Service) FlushCaches() {
	s.client.Load().FlushCaches()
}

// ClearProcessed empties the processed-file registry.
func (s *Service) ClearProcessed() int {
	s.processedMu.Lock()
	defer s.processedMu.Unlock()
	n := len(s.processed)
	s.processed = make(map[string]time.Time)
	log.Info().Int("cleared", n).Msg("fetch: processed registry cleared")
	return n
}

// Library proxies the catalog library listing for the admin search endpoint.
func (s *Service) Library(ctx context.Context) ([]catalog.CatalogEntry, error) {
	return s.client.Load().Library(ctx)
}

// Config returns the current config snapshot.
func (s *Service) Config() *domain.Config {
	return s.cfg.Load()
}

func (s *Service) currentPool() *workerPool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool
}

func (s *Service) markProcessed(path string) {
	s.processedMu.Lock()
	defer s.processedMu.Unlock()
	s.processed[path] = time.Now()
}

func (s *Service) processedCount() int {
	s.processedMu.Lock()
	defer s.processedMu.Unlock()
	return len(s.processed)
}
