// Package metrics exposes container activity as prometheus collectors.
//
// All methods are safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hstore"

// Metrics holds the collectors of one container.
type Metrics struct {
	chunkReads   prometheus.Counter
	chunkWrites  prometheus.Counter
	cacheHits    prometheus.Counter
	cacheMisses  prometheus.Counter
	filterBytes  *prometheus.CounterVec
	ioBytes      *prometheus.CounterVec
	fileBytes    prometheus.Gauge
	freeBytes    prometheus.Gauge
	reclaimed    prometheus.Counter
	groupChanges *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. Labels in
// constLabels (for example the container path) are attached to every
// series.
func New(reg prometheus.Registerer, constLabels prometheus.Labels) (*Metrics, error) {
	counter := func(subsystem, name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		})
	}
	m := &Metrics{
		chunkReads:  counter("chunk", "reads_total", "Chunks loaded from the file."),
		chunkWrites: counter("chunk", "writes_total", "Chunks stored to the file."),
		cacheHits:   counter("chunk", "cache_hits_total", "Chunk reads served from the decoded-chunk cache."),
		cacheMisses: counter("chunk", "cache_misses_total", "Chunk reads that missed the decoded-chunk cache."),
		filterBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "filter",
			Name:        "bytes_total",
			Help:        "Bytes passed through filters. Broken down by filter, direction and side (in/out).",
			ConstLabels: constLabels,
		}, []string{"filter", "direction", "side"}),
		ioBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "file",
			Name:        "io_bytes_total",
			Help:        "Bytes read from and written to the container file.",
			ConstLabels: constLabels,
		}, []string{"op"}),
		fileBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "file",
			Name:        "size_bytes",
			Help:        "End-of-file address of the container.",
			ConstLabels: constLabels,
		}),
		freeBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "file",
			Name:        "free_bytes",
			Help:        "Bytes on the allocator free list.",
			ConstLabels: constLabels,
		}),
		reclaimed: counter("object", "reclaimed_total", "Objects whose storage was released."),
		groupChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "group",
			Name:        "storage_transitions_total",
			Help:        "Group link storage transitions. Broken down by target state.",
			ConstLabels: constLabels,
		}, []string{"to"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{
			m.chunkReads, m.chunkWrites, m.cacheHits, m.cacheMisses, m.filterBytes,
			m.ioBytes, m.fileBytes, m.freeBytes, m.reclaimed, m.groupChanges,
		} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) ChunkRead() {
	if m != nil {
		m.chunkReads.Inc()
	}
}

func (m *Metrics) ChunkWritten() {
	if m != nil {
		m.chunkWrites.Inc()
	}
}

// CacheLookup records a decoded-chunk cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// Filtered records one filter step over a payload.
func (m *Metrics) Filtered(filter, direction string, in, out int) {
	if m == nil {
		return
	}
	m.filterBytes.WithLabelValues(filter, direction, "in").Add(float64(in))
	m.filterBytes.WithLabelValues(filter, direction, "out").Add(float64(out))
}

func (m *Metrics) BytesRead(n int) {
	if m != nil {
		m.ioBytes.WithLabelValues("read").Add(float64(n))
	}
}

func (m *Metrics) BytesWritten(n int) {
	if m != nil {
		m.ioBytes.WithLabelValues("write").Add(float64(n))
	}
}

// FileSpace updates the end-of-file and free-list gauges.
func (m *Metrics) FileSpace(eof, free uint64) {
	if m == nil {
		return
	}
	m.fileBytes.Set(float64(eof))
	m.freeBytes.Set(float64(free))
}

func (m *Metrics) Reclaimed() {
	if m != nil {
		m.reclaimed.Inc()
	}
}

// GroupTransition records a group switching link storage to state.
func (m *Metrics) GroupTransition(state string) {
	if m != nil {
		m.groupChanges.WithLabelValues(state).Inc()
	}
}
