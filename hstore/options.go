package hstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/robert-malhotra/go-hstore/internal/config"
	"github.com/robert-malhotra/go-hstore/internal/filter"
	"github.com/robert-malhotra/go-hstore/internal/message"
)

// Config holds container settings, usually loaded from YAML with
// LoadConfig.
type Config = config.Config

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config { return config.Default() }

// LoadConfig reads and validates a YAML configuration file.
func LoadConfig(path string) (*Config, error) { return config.LoadFile(path) }

// ContainerOption configures Create and Open.
type ContainerOption func(*containerOptions)

type containerOptions struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry prometheus.Registerer
}

func defaultContainerOptions() *containerOptions {
	return &containerOptions{
		cfg:    config.Default(),
		logger: zap.NewNop(),
	}
}

// WithLogger sets the logger for container events.
func WithLogger(l *zap.Logger) ContainerOption {
	return func(o *containerOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithConfig replaces all settings. Options after it adjust the copy.
func WithConfig(cfg *Config) ContainerOption {
	return func(o *containerOptions) {
		if cfg != nil {
			c := *cfg
			o.cfg = &c
		}
	}
}

// WithGroupThresholds sets the default link storage thresholds of new
// groups: a group turns dense when it holds more than maxCompact links and
// compact again when it falls to minDense. Create and Open fail with
// ErrInvalidConfig unless 0 <= minDense < maxCompact.
func WithGroupThresholds(maxCompact, minDense int) ContainerOption {
	return func(o *containerOptions) {
		o.cfg.Groups.MaxCompact = maxCompact
		o.cfg.Groups.MinDense = minDense
	}
}

// WithChunkCache sets how many decoded chunks are kept in memory. 0
// disables the cache.
func WithChunkCache(chunks int) ContainerOption {
	return func(o *containerOptions) {
		o.cfg.Chunks.CacheSize = chunks
	}
}

// WithConcurrency bounds the goroutines filtering chunks for one call.
func WithConcurrency(n int) ContainerOption {
	return func(o *containerOptions) {
		o.cfg.Chunks.Concurrency = n
	}
}

// WithMetrics registers the container's collectors with reg.
func WithMetrics(reg prometheus.Registerer) ContainerOption {
	return func(o *containerOptions) {
		o.registry = reg
	}
}

// WithStrictClose makes Close fail with ErrHandlesStillOpen while handles
// are open. By default Close invalidates them.
func WithStrictClose() ContainerOption {
	return func(o *containerOptions) {
		o.cfg.File.StrictClose = true
	}
}

// WithOffsetSize sets the width of file addresses (2, 4 or 8 bytes) in a
// new container.
func WithOffsetSize(size int) ContainerOption {
	return func(o *containerOptions) {
		o.cfg.File.OffsetSize = size
	}
}

// LayoutClass selects how dataset raw data is stored.
type LayoutClass = message.LayoutClass

const (
	Compact    = message.LayoutCompact
	Contiguous = message.LayoutContiguous
	Chunked    = message.LayoutChunked
)

// AllocTime selects when dataset storage is allocated.
type AllocTime = message.AllocTime

const (
	AllocLate        = message.AllocLate
	AllocEarly       = message.AllocEarly
	AllocIncremental = message.AllocIncremental
)

// ExternalFile is one segment of a dataset stored outside the container.
type ExternalFile = message.ExternalFile

// DatasetOption configures CreateDataset.
type DatasetOption func(*datasetOptions)

// attrDef holds an attribute definition for creation.
type attrDef struct {
	name  string
	value any
}

type datasetOptions struct {
	layout     LayoutClass
	layoutSet  bool
	chunks     []uint64
	maxDims    []uint64
	fill       any
	allocTime  AllocTime
	allocSet   bool
	filters    []filter.Spec
	external   []ExternalFile
	attributes []attrDef
}

func defaultDatasetOptions() *datasetOptions {
	return &datasetOptions{layout: Contiguous}
}

// WithChunks selects chunked storage with the given chunk shape.
// Required for extendible datasets and filters.
func WithChunks(dims ...uint64) DatasetOption {
	return func(o *datasetOptions) {
		o.chunks = dims
		o.layout = Chunked
		o.layoutSet = true
	}
}

// WithMaxDims sets the maximum extent. Use Unlimited for unbounded growth.
func WithMaxDims(dims ...uint64) DatasetOption {
	return func(o *datasetOptions) {
		o.maxDims = dims
	}
}

// WithLayout selects compact or contiguous storage. Chunked storage is
// selected by WithChunks.
func WithLayout(class LayoutClass) DatasetOption {
	return func(o *datasetOptions) {
		o.layout = class
		o.layoutSet = true
	}
}

// WithFillValue sets the value read from never-written elements. The value
// must encode to exactly one element of the dataset type.
func WithFillValue(v any) DatasetOption {
	return func(o *datasetOptions) {
		o.fill = v
	}
}

// WithAllocTime sets when storage is allocated. The default is AllocLate.
func WithAllocTime(t AllocTime) DatasetOption {
	return func(o *datasetOptions) {
		o.allocTime = t
		o.allocSet = true
	}
}

// WithShuffle appends the byte shuffle filter.
func WithShuffle() DatasetOption {
	return WithFilter(FilterShuffle, false)
}

// WithDeflate appends the deflate filter at level 0-9.
func WithDeflate(level int) DatasetOption {
	return WithFilter(FilterDeflate, false, uint32(level))
}

// WithFletcher32 appends the Fletcher-32 checksum filter.
func WithFletcher32() DatasetOption {
	return WithFilter(FilterFletcher32, false)
}

// WithLZ4 appends an optional LZ4 filter. Chunks that do not compress are
// stored without it.
func WithLZ4() DatasetOption {
	return WithFilter(FilterLZ4, true)
}

// WithZstd appends the Zstandard filter at level 1-22.
func WithZstd(level int) DatasetOption {
	return WithFilter(FilterZstd, false, uint32(level))
}

// WithBlake3 appends the BLAKE3 integrity filter.
func WithBlake3() DatasetOption {
	return WithFilter(FilterBlake3, false)
}

// WithFilter appends a registered filter. Filters run in the order given on
// write and in reverse on read. An optional filter may be skipped for a
// chunk it cannot improve.
func WithFilter(id FilterID, optional bool, params ...uint32) DatasetOption {
	return func(o *datasetOptions) {
		o.filters = append(o.filters, filter.Spec{ID: id, Optional: optional, Params: params})
	}
}

// WithExternal stores the raw data of a contiguous dataset in the given
// files, in order. Relative names resolve against the container's
// directory.
func WithExternal(files ...ExternalFile) DatasetOption {
	return func(o *datasetOptions) {
		o.external = append(o.external, files...)
	}
}

// WithAttribute adds an attribute to the dataset. The type and shape are
// inferred from value as in Object.SetAttr.
func WithAttribute(name string, value any) DatasetOption {
	return func(o *datasetOptions) {
		o.attributes = append(o.attributes, attrDef{name: name, value: value})
	}
}

// GroupOption configures CreateGroup.
type GroupOption func(*groupOptions)

type groupOptions struct {
	intermediates bool
	maxCompact    int
	minDense      int
}

// WithIntermediates creates missing groups along the path.
func WithIntermediates() GroupOption {
	return func(o *groupOptions) {
		o.intermediates = true
	}
}

// WithLinkThresholds overrides the container's compact/dense thresholds for
// the new group.
func WithLinkThresholds(maxCompact, minDense int) GroupOption {
	return func(o *groupOptions) {
		o.maxCompact = maxCompact
		o.minDense = minDense
	}
}
