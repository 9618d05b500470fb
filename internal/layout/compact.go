package layout

import (
	"github.com/robert-malhotra/go-hstore/internal/errs"
	"github.com/robert-malhotra/go-hstore/internal/message"
	"github.com/robert-malhotra/go-hstore/internal/space"
)

// Compact keeps the raw data inside the object header.
type Compact struct {
	cfg     Config
	data    []byte
	strides []uint64
}

func newCompact(msg *message.Layout, cfg Config, dims []uint64) (*Compact, error) {
	size := product(dims) * uint64(cfg.ElemSize)
	if size > message.MaxCompactSize {
		return nil, errs.New(errs.ErrDimensionMismatch, "compact data of %d bytes exceeds %d", size, message.MaxCompactSize)
	}
	data := msg.Data
	switch {
	case data == nil:
		data = fillBuffer(cfg.Fill, product(dims))
	case uint64(len(data)) != size:
		return nil, errs.New(errs.ErrIO, "compact data holds %d bytes, extent needs %d", len(data), size)
	default:
		data = append([]byte(nil), data...)
	}
	return &Compact{cfg: cfg, data: data, strides: strides(dims)}, nil
}

func (c *Compact) Class() message.LayoutClass { return message.LayoutCompact }

func (c *Compact) Read(sel *space.Space, dims []uint64) ([]byte, error) {
	es := uint64(c.cfg.ElemSize)
	out := make([]byte, sel.SelectedCount()*es)
	var pos uint64
	for _, r := range sel.Runs() {
		off := linear(r.Coord, c.strides) * es
		pos += uint64(copy(out[pos:], c.data[off:off+r.Len*es]))
	}
	return out, nil
}

func (c *Compact) Write(sel *space.Space, dims []uint64, data []byte) error {
	if err := checkBuffer(sel, data, c.cfg.ElemSize); err != nil {
		return err
	}
	es := uint64(c.cfg.ElemSize)
	var pos uint64
	for _, r := range sel.Runs() {
		off := linear(r.Coord, c.strides) * es
		n := r.Len * es
		copy(c.data[off:off+n], data[pos:pos+n])
		pos += n
	}
	return nil
}

// Allocate is a no-op: compact storage always exists.
func (c *Compact) Allocate([]uint64) error { return nil }

func (c *Compact) Resize(oldDims, newDims []uint64) error {
	if !sameDims(oldDims, newDims) {
		return errs.New(errs.ErrDimensionMismatch, "compact datasets cannot be resized")
	}
	return nil
}

func (c *Compact) Message() *message.Layout {
	return &message.Layout{Class: message.LayoutCompact, Data: append([]byte(nil), c.data...)}
}

func (c *Compact) Flush() error        { return nil }
func (c *Compact) Release()            {}
func (c *Compact) StorageSize() uint64 { return uint64(len(c.data)) }
