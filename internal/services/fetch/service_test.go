// Copyright (c) 2025, the danmusync contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danmusync/danmusync/internal/catalog"
	"github.com/danmusync/danmusync/internal/domain"
	"github.com/danmusync/danmusync/internal/metrics"
)

func newTestService(t *testing.T, cfg domain.Config) *Service {
	t.Helper()
	client := catalog.NewClient(catalog.Config{BaseURL: cfg.DanmuBaseURL, APIKey: cfg.DanmuAPIKey})
	return NewService(&cfg, client, metrics.NewManager())
}

func TestSubmitSingleFlight(t *testing.T) {
	svc := newTestService(t, domain.DefaultConfig())

	block := make(chan struct{})
	var runs atomic.Int64
	svc.process = func(ctx context.Context, cfg *domain.Config, path string) *ProcessingResult {
		runs.Add(1)
		<-block
		return &ProcessingResult{Success: true}
	}

	require.True(t, svc.Submit("/media/a.mp4"))

	// Every further submission of the same in-flight path is a no-op.
	for i := 0; i < 4; i++ {
		assert.False(t, svc.Submit("/media/a.mp4"))
	}

	// A different path is unaffected.
	require.True(t, svc.Submit("/media/b.mp4"))

	close(block)
	require.Eventually(t, func() bool {
		return svc.processedCount() == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(2), runs.Load())
}

func TestDueRetrySurvivesBusyPath(t *testing.T) {
	cfg := domain.DefaultConfig()
	svc := newTestService(t, cfg)

	block := make(chan struct{})
	var runs atomic.Int64
	svc.process = func(ctx context.Context, c *domain.Config, path string) *ProcessingResult {
		runs.Add(1)
		<-block
		return &ProcessingResult{Success: true}
	}

	const path = "/media/busy.mp4"
	require.True(t, svc.Submit(path))
	require.Eventually(t, func() bool {
		return runs.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// A retry coming due while the path is still in flight must stay queued
	// with its attempt count intact rather than being dropped.
	svc.retries.push(RetryTask{
		Path:        path,
		Attempt:     2,
		MaxAttempts: cfg.MaxAttempts,
		NotBefore:   time.Now().Add(-time.Second),
	})
	svc.dispatchDueRetries()

	require.Eventually(t, func() bool {
		return svc.retries.len() == 1
	}, 2*time.Second, 10*time.Millisecond)
	requeued := svc.retries.popDue(time.Now())
	require.Len(t, requeued, 1)
	assert.Equal(t, 2, requeued[0].Attempt)

	// Once the blocking run finishes, the requeued task dispatches normally.
	svc.retries.push(requeued[0])
	close(block)
	require.Eventually(t, func() bool {
		return svc.Status().InFlight == 0
	}, 2*time.Second, 10*time.Millisecond)
	svc.dispatchDueRetries()
	require.Eventually(t, func() bool {
		return runs.Load() == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRetryPushIfAbsentKeepsNewerTask(t *testing.T) {
	q := newRetryQueue()
	q.push(RetryTask{Path: "/media/a.mp4", Attempt: 3, NotBefore: time.Now()})

	assert.False(t, q.pushIfAbsent(RetryTask{Path: "/media/a.mp4", Attempt: 2, NotBefore: time.Now()}))
	assert.True(t, q.pushIfAbsent(RetryTask{Path: "/media/b.mp4", Attempt: 2, NotBefore: time.Now()}))

	due := q.popDue(time.Now().Add(time.Second))
	require.Len(t, due, 2)
	for _, task := range due {
		if task.Path == "/media/a.mp4" {
			assert.Equal(t, 3, task.Attempt)
		}
	}
}

func TestRetryBound(t *testing.T) {
	cfg := domain.DefaultConfig()
	cfg.MaxAttempts = 3
	cfg.RetryDelay = 10 * time.Millisecond

	svc := newTestService(t, cfg)

	var attempts atomic.Int64
	svc.process = func(ctx context.Context, c *domain.Config, path string) *ProcessingResult {
		attempts.Add(1)
		return &ProcessingResult{Message: "always failing"}
	}

	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	require.True(t, svc.Submit("/media/broken.mp4"))

	// Attempts run at submission plus one per scheduler tick; three total.
	require.Eventually(t, func() bool {
		return attempts.Load() == 3
	}, 5*time.Second, 50*time.Millisecond)

	// No further scheduling after the final attempt.
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, int64(3), attempts.Load())
	assert.Equal(t, 0, svc.retries.len())
}

func TestResizeSwapsPool(t *testing.T) {
	svc := newTestService(t, domain.DefaultConfig())

	var mu sync.Mutex
	var order []string
	release := make(chan struct{})

	svc.process = func(ctx context.Context, cfg *domain.Config, path string) *ProcessingResult {
		if strings.Contains(path, "slow") {
			<-release
		}
		mu.Lock()
		order = append(order, path)
		mu.Unlock()
		return &ProcessingResult{Success: true}
	}

	require.True(t, svc.Submit("/media/slow.mp4"))
	svc.Resize(2)

	// The new pool accepts work while the old pool still holds a run.
	require.True(t, svc.Submit("/media/fast.mp4"))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 1 && order[0] == "/media/fast.mp4"
	}, 2*time.Second, 10*time.Millisecond)

	close(release)
	require.Eventually(t, func() bool {
		return svc.processedCount() == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, svc.Status().Workers)
}

func TestUpdateConfigSnapshot(t *testing.T) {
	svc := newTestService(t, domain.DefaultConfig())

	next := domain.DefaultConfig()
	next.MaxWorkers = 8
	next.DanmuBaseURL = "http://catalog.local"
	svc.UpdateConfig(&next)

	assert.Equal(t, 8, svc.Status().Workers)
	assert.Equal(t, "http://catalog.local", svc.Config().DanmuBaseURL)
}

func TestEndToEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/control/library":
			w.Write([]byte(`{"success":true,"animes":[{"animeId":1,"title":"剧名","season":1}]}`))
		case r.URL.Path == "/api/control/library/anime/1/sources":
			w.Write([]byte(`{"success":true,"sources":[{"sourceId":7,"providerName":"bilibili"}]}`))
		case r.URL.Path == "/api/control/source/7/episodes":
			w.Write([]byte(`{"success":true,"episodes":[{"episodeId":500,"episodeTitle":"第 1 集","episodeIndex":1}]}`))
		case r.URL.Path == "/comment/500":
			w.Write([]byte(`{"count":3,"comments":[` +
				`{"p":"1.0,1,25,16777215,0,0,0,1","m":"第一条"},` +
				`{"p":"2.5,1,25,16777215,0,0,0,2","m":"第二条"},` +
				`{"p":"9.9,4,25,65280,0,0,0,3","m":"第三条"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	dir := t.TempDir()
	cfg := domain.DefaultConfig()
	cfg.DanmuBaseURL = server.URL

	svc := newTestService(t, cfg)
	videoPath := filepath.Join(dir, "剧名 - S01E01 - 第 1 集.mp4")

	require.True(t, svc.Submit(videoPath))
	require.Eventually(t, func() bool {
		return svc.processedCount() == 1
	}, 5*time.Second, 20*time.Millisecond)

	artifact := filepath.Join(dir, "剧名 - S01E1 - 第 1 集_BilibiliID.xml")
	data, err := os.ReadFile(artifact)
	require.NoError(t, err)

	content := string(data)
	assert.Contains(t, content, "<datasize>3</datasize>")
	assert.Contains(t, content, "<sourceprovider>BilibiliID</sourceprovider>")
	assert.Contains(t, content, "第三条")
}

func TestScanDirectory(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.mp4", "b.mkv", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	svc := newTestService(t, domain.DefaultConfig())

	var mu sync.Mutex
	seen := map[string]bool{}
	svc.process = func(ctx context.Context, cfg *domain.Config, path string) *ProcessingResult {
		mu.Lock()
		seen[filepath.Base(path)] = true
		mu.Unlock()
		return &ProcessingResult{Success: true}
	}

	submitted, err := svc.ScanDirectory(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, submitted)

	require.Eventually(t, func() bool {
		return svc.processedCount() == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, seen["a.mp4"])
	assert.True(t, seen["b.mkv"])
	assert.False(t, seen["notes.txt"])
}
