// Copyright (c) 2025, the danmusync contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package fetch

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	pool := newWorkerPool(2)

	var active, peak atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		ok := pool.Submit(func() {
			defer wg.Done()
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			active.Add(-1)
		})
		require.True(t, ok)
	}

	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int64(2))
}

func TestWorkerPoolDrain(t *testing.T) {
	pool := newWorkerPool(1)

	var completed atomic.Bool
	require.True(t, pool.Submit(func() {
		time.Sleep(30 * time.Millisecond)
		completed.Store(true)
	}))

	pool.Drain()
	assert.True(t, completed.Load(), "drain must wait for outstanding work")
	assert.False(t, pool.Submit(func() {}), "draining pool rejects submissions")
}

func TestWorkerPoolMinimumSize(t *testing.T) {
	assert.Equal(t, 1, newWorkerPool(0).Size())
	assert.Equal(t, 1, newWorkerPool(-3).Size())
}
