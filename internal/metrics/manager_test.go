// Copyright (c) 2025, the danmusync contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerCounters(t *testing.T) {
	m := NewManager()
	require.NotNil(t, m.GetRegistry())

	m.FilesProcessed.Inc()
	m.FilesProcessed.Inc()
	m.ArtifactsWritten.WithLabelValues("bilibili").Inc()
	m.InFlight.Inc()
	m.InFlight.Dec()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.FilesProcessed))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ArtifactsWritten.WithLabelValues("bilibili")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.InFlight))
}
