// Copyright (c) 2025, the danmusync contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package fetch

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// workerPool bounds concurrent pipeline runs with a semaphore. A pool is
// immutable after creation; a resize swaps the handle and lets the old pool
// drain in the background.
type workerPool struct {
	size     int
	sem      chan struct{}
	wg       sync.WaitGroup
	draining atomic.Bool
}

func newWorkerPool(size int) *workerPool {
	if size < 1 {
		size = 1
	}
	return &workerPool{
		size: size,
		sem:  make(chan struct{}, size),
	}
}

// Submit runs fn on its own goroutine, gated by the pool semaphore. Returns
// false once the pool is draining.
func (p *workerPool) Submit(fn func()) bool {
	if p.draining.Load() {
		return false
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.sem <- struct{}{}
		defer func() { <-p.sem }()
		fn()
	}()

	return true
}

// Drain rejects new submissions and blocks until outstanding work finishes.
func (p *workerPool) Drain() {
	if !p.draining.CompareAndSwap(false, true) {
		return
	}
	p.wg.Wait()
	log.Debug().Int("size", p.size).Msg("fetch: worker pool drained")
}

func (p *workerPool) Size() int {
	return p.size
}
