package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ChunkRead()
	m.CacheLookup(true)
	m.Filtered("deflate", "encode", 10, 5)
	m.FileSpace(1, 2)
	m.GroupTransition("dense")
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg, prometheus.Labels{"container": "test"})
	require.NoError(t, err)

	m.ChunkRead()
	m.ChunkRead()
	m.ChunkWritten()
	m.CacheLookup(true)
	m.CacheLookup(false)
	m.Filtered("deflate", "encode", 100, 40)
	m.GroupTransition("dense")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.chunkReads))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.chunkWrites))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheHits))
	assert.Equal(t, 40.0, testutil.ToFloat64(m.filterBytes.WithLabelValues("deflate", "encode", "out")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.groupChanges.WithLabelValues("dense")))

	// A second container on the same registry needs distinct labels.
	_, err = New(reg, prometheus.Labels{"container": "test"})
	assert.Error(t, err)
	_, err = New(reg, prometheus.Labels{"container": "other"})
	assert.NoError(t, err)
}
