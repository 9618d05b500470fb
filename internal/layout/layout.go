package layout

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/robert-malhotra/go-hstore/internal/errs"
	"github.com/robert-malhotra/go-hstore/internal/filter"
	"github.com/robert-malhotra/go-hstore/internal/message"
	"github.com/robert-malhotra/go-hstore/internal/metrics"
	"github.com/robert-malhotra/go-hstore/internal/space"
	"github.com/robert-malhotra/go-hstore/internal/storage"
)

// Layout moves raw element bytes between packed buffers and storage. The
// selection must already be validated against dims.
type Layout interface {
	// Class returns the layout class.
	Class() message.LayoutClass

	// Read returns the selected elements packed in selection order.
	Read(sel *space.Space, dims []uint64) ([]byte, error)

	// Write stores the packed elements of data at the selected coordinates.
	Write(sel *space.Space, dims []uint64, data []byte) error

	// Allocate materializes all storage for the given extent.
	Allocate(dims []uint64) error

	// Resize changes the extent from oldDims to newDims.
	Resize(oldDims, newDims []uint64) error

	// Message returns the layout message describing the current state.
	// Call Flush first so index locations are current.
	Message() *message.Layout

	// Flush writes pending index records.
	Flush() error

	// Release frees all file space held by the layout.
	Release()

	// StorageSize returns the bytes of raw data storage in use.
	StorageSize() uint64
}

// Config carries the dataset properties a layout needs.
type Config struct {
	File     *storage.File
	Object   uint64 // owning object, used to key the chunk cache
	ElemSize int
	Fill     []byte // one encoded element; nil means zero bytes

	Pipeline    *filter.Pipeline
	External    []message.ExternalFile
	ExternalDir string // base for relative external file names

	Cache       *Cache
	Concurrency int
	Metrics     *metrics.Metrics
	Logger      *zap.SugaredLogger
}

func (cfg *Config) defaults() error {
	if cfg.Pipeline == nil {
		p, err := filter.NewPipeline(nil, cfg.ElemSize)
		if err != nil {
			return err
		}
		cfg.Pipeline = p
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if len(cfg.Fill) != cfg.ElemSize {
		cfg.Fill = make([]byte, cfg.ElemSize)
	}
	return nil
}

// New creates the layout described by msg for a dataset of extent dims.
func New(msg *message.Layout, cfg Config, dims []uint64) (Layout, error) {
	if msg == nil {
		return nil, fmt.Errorf("nil layout message")
	}
	if cfg.ElemSize <= 0 {
		return nil, fmt.Errorf("element size %d", cfg.ElemSize)
	}
	if err := cfg.defaults(); err != nil {
		return nil, err
	}

	switch msg.Class {
	case message.LayoutCompact:
		return newCompact(msg, cfg, dims)
	case message.LayoutContiguous:
		return newContiguous(msg, cfg, dims)
	case message.LayoutChunked:
		return newChunked(msg, cfg, dims)
	default:
		return nil, fmt.Errorf("unsupported layout class: %d", msg.Class)
	}
}

// product returns the number of elements in an extent.
func product(dims []uint64) uint64 {
	n := uint64(1)
	for _, d := range dims {
		n *= d
	}
	return n
}

// strides returns the row-major element strides of an extent.
func strides(dims []uint64) []uint64 {
	s := make([]uint64, len(dims))
	acc := uint64(1)
	for d := len(dims) - 1; d >= 0; d-- {
		s[d] = acc
		acc *= dims[d]
	}
	return s
}

func linear(coord, strides []uint64) uint64 {
	var off uint64
	for d := range coord {
		off += coord[d] * strides[d]
	}
	return off
}

// fillBuffer returns n elements of fill.
func fillBuffer(fill []byte, n uint64) []byte {
	buf := make([]byte, uint64(len(fill))*n)
	fillInto(buf, fill)
	return buf
}

func fillInto(buf, fill []byte) {
	if len(fill) == 0 {
		return
	}
	zero := true
	for _, b := range fill {
		if b != 0 {
			zero = false
			break
		}
	}
	if zero {
		clear(buf)
		return
	}
	// Double the filled prefix until the buffer is full.
	n := copy(buf, fill)
	for n < len(buf) {
		n += copy(buf[n:], buf[:n])
	}
}

func checkBuffer(sel *space.Space, data []byte, elemSize int) error {
	want := sel.SelectedCount() * uint64(elemSize)
	if uint64(len(data)) != want {
		return errs.New(errs.ErrDimensionMismatch, "buffer holds %d bytes, selection needs %d", len(data), want)
	}
	return nil
}

func sameDims(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func externalPath(dir, name string) string {
	if filepath.IsAbs(name) || dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}

// openFiles caches external file handles for the duration of one call.
type openFiles struct {
	dir      string
	writable bool
	files    map[string]*os.File
}

func (o *openFiles) get(name string) (*os.File, error) {
	if f, ok := o.files[name]; ok {
		return f, nil
	}
	flag := os.O_RDONLY
	if o.writable {
		flag = os.O_RDWR | os.O_CREATE
	}
	f, err := os.OpenFile(externalPath(o.dir, name), flag, 0o644)
	if err != nil {
		return nil, err
	}
	if o.files == nil {
		o.files = make(map[string]*os.File)
	}
	o.files[name] = f
	return f, nil
}

func (o *openFiles) close() error {
	var first error
	for _, f := range o.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
