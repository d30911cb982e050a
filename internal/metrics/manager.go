// Copyright (c) 2025, the danmusync contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package metrics exposes pipeline counters over a Prometheus registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
)

type Manager struct {
	registry *prometheus.Registry

	FilesProcessed   prometheus.Counter
	FilesFailed      prometheus.Counter
	RetriesScheduled prometheus.Counter
	RetriesDropped   prometheus.Counter
	EventsSuppressed prometheus.Counter
	ArtifactsWritten *prometheus.CounterVec
	InFlight         prometheus.Gauge
	CommentsFetched  prometheus.Counter
}

func NewManager() *Manager {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Manager{
		registry: registry,
		FilesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "danmusync_files_processed_total",
			Help: "Number of video files processed successfully",
		}),
		FilesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "danmusync_files_failed_total",
			Help: "Number of video files whose processing failed terminally",
		}),
		RetriesScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "danmusync_retries_scheduled_total",
			Help: "Number of retry tasks scheduled after a failed attempt",
		}),
		RetriesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "danmusync_retries_dropped_total",
			Help: "Number of tasks dropped after exhausting the attempt limit",
		}),
		EventsSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "danmusync_events_suppressed_total",
			Help: "Number of filesystem events suppressed by deduplication",
		}),
		ArtifactsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "danmusync_artifacts_written_total",
			Help: "Number of XML artifacts written, by provider",
		}, []string{"provider"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "danmusync_files_in_flight",
			Help: "Number of files currently being processed",
		}),
		CommentsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "danmusync_comments_fetched_total",
			Help: "Number of comment records fetched from the catalog",
		}),
	}

	registry.MustRegister(
		m.FilesProcessed,
		m.FilesFailed,
		m.RetriesScheduled,
		m.RetriesDropped,
		m.EventsSuppressed,
		m.ArtifactsWritten,
		m.InFlight,
		m.CommentsFetched,
	)

	log.Info().Msg("metrics: registry initialized")

	return m
}

func (m *Manager) GetRegistry() *prometheus.Registry {
	return m.registry
}
