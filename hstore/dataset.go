package hstore

import (
	"fmt"

	"github.com/robert-malhotra/go-hstore/internal/binary"
	"github.com/robert-malhotra/go-hstore/internal/dtype"
	"github.com/robert-malhotra/go-hstore/internal/errs"
	"github.com/robert-malhotra/go-hstore/internal/filter"
	"github.com/robert-malhotra/go-hstore/internal/layout"
	"github.com/robert-malhotra/go-hstore/internal/message"
	"github.com/robert-malhotra/go-hstore/internal/object"
	"github.com/robert-malhotra/go-hstore/internal/space"
)

// Dataset is a handle to a dataset.
type Dataset struct {
	handle
}

// ChunkInfo describes one allocated chunk of a chunked dataset.
type ChunkInfo = layout.ChunkInfo

// datasetState holds the immutable description and the storage of a
// dataset.
type datasetState struct {
	typ      *dtype.Type
	shared   uint64 // committed datatype object, 0 if none
	space    *space.Space
	fill     *message.FillValue
	pipeline *filter.Pipeline
	external []message.ExternalFile
	layout   layout.Layout
}

// all returns a selection of the whole current extent.
func (ds *datasetState) all() *space.Space {
	if ds.space.IsScalar() {
		return space.NewScalar()
	}
	s, _ := space.NewSimple(ds.space.Dims(), nil)
	return s
}

func (ds *datasetState) messages(h *object.Header) {
	h.AddFlagged(&message.Datatype{Datatype: ds.typ}, object.FlagConstant)
	if ds.shared != 0 {
		h.AddFlagged(&message.SharedType{Object: ds.shared}, object.FlagConstant)
	}
	h.Add(&message.Dataspace{Space: ds.space})
	h.AddFlagged(ds.fill, object.FlagConstant)
	if !ds.pipeline.Empty() {
		h.AddFlagged(&message.FilterPipeline{Filters: ds.pipeline.Specs()}, object.FlagConstant)
	}
	if len(ds.external) > 0 {
		h.AddFlagged(&message.External{Files: ds.external}, object.FlagConstant)
	}
	h.Add(ds.layout.Message())
}

func (c *Container) layoutConfig(id uint64, ds *datasetState) layout.Config {
	var fill []byte
	if ds.fill.Defined {
		fill = ds.fill.Value
	}
	return layout.Config{
		File:        c.file,
		Object:      id,
		ElemSize:    ds.typ.Size(),
		Fill:        fill,
		Pipeline:    ds.pipeline,
		External:    ds.external,
		ExternalDir: c.dir,
		Cache:       c.cache,
		Concurrency: c.cfg.Chunks.Concurrency,
		Metrics:     c.metrics,
		Logger:      c.log.With("object", id),
	}
}

func (c *Container) newPipeline(specs []filter.Spec, elemSize int) (*filter.Pipeline, error) {
	p, err := filter.NewPipeline(specs, elemSize)
	if err != nil {
		return nil, err
	}
	p.SetObserver(c.metrics.Filtered)
	return p, nil
}

func (c *Container) loadDataset(n *node, h *object.Header) error {
	dt, ds2, lm := h.Datatype(), h.Dataspace(), h.Layout()
	if dt == nil || ds2 == nil || lm == nil {
		return fmt.Errorf("dataset without datatype, dataspace or layout")
	}
	ds := &datasetState{typ: dt.Datatype, space: ds2.Space, fill: h.FillValue()}
	if st := h.SharedType(); st != nil {
		ds.shared = st.Object
	}
	if ds.fill == nil {
		ds.fill = &message.FillValue{}
	}
	var specs []filter.Spec
	if fp := h.FilterPipeline(); fp != nil {
		specs = fp.Filters
	}
	p, err := c.newPipeline(specs, ds.typ.Size())
	if err != nil {
		return err
	}
	ds.pipeline = p
	if ext := h.External(); ext != nil {
		ds.external = ext.Files
	}
	if ds.layout, err = layout.New(lm, c.layoutConfig(n.id, ds), ds.space.Dims()); err != nil {
		return err
	}
	n.ds = ds
	return nil
}

// CreateDataset creates a dataset of type t and shape sp. name may be a
// path whose groups already exist. A Type obtained from NamedType.Type
// makes the dataset share that committed datatype.
func (g *Group) CreateDataset(name string, t *Type, sp *Space, opts ...DatasetOption) (*Dataset, error) {
	o := defaultDatasetOptions()
	for _, opt := range opts {
		opt(o)
	}
	c := g.c
	unlock, err := g.enter()
	if err != nil {
		return nil, errs.Wrap(err, "create dataset", name)
	}
	defer unlock()
	d, err := c.createDataset(&g.handle, name, t, sp, o)
	if err != nil {
		return nil, errs.Wrap(err, "create dataset", joinPath(g.path, name))
	}
	return d, nil
}

func (c *Container) createDataset(g *handle, name string, t *Type, sp *Space, o *datasetOptions) (*Dataset, error) {
	if err := c.checkWritable(); err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errs.New(errs.ErrTypeMismatch, "nil type")
	}
	if sp == nil {
		return nil, errs.New(errs.ErrDimensionMismatch, "nil space")
	}
	parent, parentPath, base, err := c.parentOf(g, name)
	if err != nil {
		return nil, err
	}
	p := joinPath(parentPath, base)
	if _, ok := parent.grp.lookup(base); ok {
		return nil, errs.New(errs.ErrNameExists, "%s already exists", p)
	}

	ds := &datasetState{typ: t, fill: &message.FillValue{}}
	var sharedNode *node
	if id, ok := c.committed[t]; ok {
		if sharedNode, err = c.node(id); err != nil {
			return nil, err
		}
		ds.shared = id
	} else {
		ds.typ = t.Clone()
		ds.typ.Lock()
	}
	if ds.typ.Size() == 0 {
		return nil, errs.New(errs.ErrTypeMismatch, "type %s has no size", ds.typ)
	}

	// Shape
	if sp.IsScalar() {
		if o.maxDims != nil || o.layout == Chunked {
			return nil, errs.New(errs.ErrDimensionMismatch, "scalar dataset cannot be chunked or extended")
		}
		ds.space = space.NewScalar()
	} else {
		maxdims := sp.MaxDims()
		if o.maxDims != nil {
			maxdims = o.maxDims
		}
		if ds.space, err = space.NewSimple(sp.Dims(), maxdims); err != nil {
			return nil, err
		}
	}

	// Layout constraints
	class := o.layout
	if ds.space.Extendible() && class != Chunked {
		return nil, errs.New(errs.ErrDimensionMismatch, "extendible dataset requires chunked layout")
	}
	if len(o.filters) > 0 && class != Chunked {
		return nil, errs.New(errs.ErrFilterUnavailable, "filters require chunked layout")
	}
	if len(o.external) > 0 && class != Contiguous {
		return nil, errs.New(errs.ErrDimensionMismatch, "external storage requires contiguous layout")
	}
	allocTime := AllocLate
	if class == Compact {
		allocTime = AllocEarly
	}
	if o.allocSet {
		allocTime = o.allocTime
	}

	if o.fill != nil {
		if ds.typ.HasVarLen() {
			return nil, errs.New(errs.ErrTypeMismatch, "variable-length type %s cannot have a fill value", ds.typ)
		}
		v, err := dtype.Encode(ds.typ, o.fill, c.heap)
		if err != nil {
			return nil, err
		}
		if len(v) != ds.typ.Size() {
			return nil, errs.New(errs.ErrDimensionMismatch, "fill value holds %d bytes, element is %d", len(v), ds.typ.Size())
		}
		ds.fill = &message.FillValue{Defined: true, Value: v}
	}

	if ds.pipeline, err = c.newPipeline(o.filters, ds.typ.Size()); err != nil {
		return nil, err
	}
	if err := ds.pipeline.CanEncode(); err != nil {
		return nil, err
	}
	ds.external = o.external

	n := c.newNode(object.KindDataset)
	n.ds = ds
	fail := func(err error) (*Dataset, error) {
		if ds.layout != nil {
			ds.layout.Release()
		}
		n.removed = true
		delete(c.nodes, n.id)
		return nil, err
	}

	msg := &message.Layout{Class: class, AllocTime: allocTime, Chunk: o.chunks}
	if ds.layout, err = layout.New(msg, c.layoutConfig(n.id, ds), ds.space.Dims()); err != nil {
		return fail(err)
	}
	if allocTime == AllocEarly {
		if err := ds.layout.Allocate(ds.space.Dims()); err != nil {
			return fail(err)
		}
		c.log.Debugw("allocated dataset storage", "path", p, "bytes", ds.layout.StorageSize())
	}
	for _, a := range o.attributes {
		if _, err := c.setAttr(n, a.name, a.value); err != nil {
			return fail(err)
		}
	}

	c.linkHard(parent, base, n)
	if sharedNode != nil {
		sharedNode.refs++
		c.touch(sharedNode)
	}
	return &Dataset{handle: c.acquire(n, p)}, nil
}

// selection validates sel against the current extent; nil selects
// everything.
func (d *Dataset) selection(sel *Space) (*space.Space, error) {
	ds := d.n.ds
	if sel == nil {
		return ds.all(), nil
	}
	if err := sel.Validate(ds.space.Dims()); err != nil {
		return nil, err
	}
	return sel, nil
}

// Space returns a copy of the dataset's shape with everything selected.
func (d *Dataset) Space() (*Space, error) {
	unlock, err := d.enter()
	if err != nil {
		return nil, errs.Wrap(err, "space", d.path)
	}
	defer unlock()
	s := d.n.ds.space.Copy()
	s.SelectAll()
	return s, nil
}

// Dims returns the current extent.
func (d *Dataset) Dims() ([]uint64, error) {
	unlock, err := d.enter()
	if err != nil {
		return nil, errs.Wrap(err, "dims", d.path)
	}
	defer unlock()
	return d.n.ds.space.Dims(), nil
}

// Type returns the element type. It is locked against changes.
func (d *Dataset) Type() (*Type, error) {
	unlock, err := d.enter()
	if err != nil {
		return nil, errs.Wrap(err, "type", d.path)
	}
	defer unlock()
	return d.n.ds.typ, nil
}

// SharedType returns the id of the committed datatype the dataset shares,
// or 0.
func (d *Dataset) SharedType() (uint64, error) {
	unlock, err := d.enter()
	if err != nil {
		return 0, errs.Wrap(err, "shared type", d.path)
	}
	defer unlock()
	return d.n.ds.shared, nil
}

// Layout returns the storage layout class.
func (d *Dataset) Layout() (LayoutClass, error) {
	unlock, err := d.enter()
	if err != nil {
		return 0, errs.Wrap(err, "layout", d.path)
	}
	defer unlock()
	return d.n.ds.layout.Class(), nil
}

// Filters returns the filter pipeline in encode order.
func (d *Dataset) Filters() ([]FilterSpec, error) {
	unlock, err := d.enter()
	if err != nil {
		return nil, errs.Wrap(err, "filters", d.path)
	}
	defer unlock()
	return d.n.ds.pipeline.Specs(), nil
}

// FillValue returns the encoded fill element, or nil when the fill is
// all zero bytes by default.
func (d *Dataset) FillValue() ([]byte, error) {
	unlock, err := d.enter()
	if err != nil {
		return nil, errs.Wrap(err, "fill value", d.path)
	}
	defer unlock()
	if !d.n.ds.fill.Defined {
		return nil, nil
	}
	return append([]byte(nil), d.n.ds.fill.Value...), nil
}

// ChunkDims returns the chunk shape, or nil for unchunked datasets.
func (d *Dataset) ChunkDims() ([]uint64, error) {
	unlock, err := d.enter()
	if err != nil {
		return nil, errs.Wrap(err, "chunk dims", d.path)
	}
	defer unlock()
	if ch, ok := d.n.ds.layout.(*layout.Chunked); ok {
		return ch.ChunkDims(), nil
	}
	return nil, nil
}

// ChunkInfo lists the allocated chunks in row-major order. Unchunked
// datasets have none.
func (d *Dataset) ChunkInfo() ([]ChunkInfo, error) {
	unlock, err := d.enter()
	if err != nil {
		return nil, errs.Wrap(err, "chunk info", d.path)
	}
	defer unlock()
	if ch, ok := d.n.ds.layout.(*layout.Chunked); ok {
		return ch.Chunks(), nil
	}
	return nil, nil
}

// StorageSize returns the bytes of raw data storage allocated.
func (d *Dataset) StorageSize() (uint64, error) {
	unlock, err := d.enter()
	if err != nil {
		return 0, errs.Wrap(err, "storage size", d.path)
	}
	defer unlock()
	return d.n.ds.layout.StorageSize(), nil
}

// Write stores a Go value at the selected elements; nil selects the whole
// dataset. The value is a scalar, slice or nested slice whose elements
// match the dataset type, in selection order.
func (d *Dataset) Write(sel *Space, v any) error {
	unlock, err := d.enter()
	if err != nil {
		return errs.Wrap(err, "write", d.path)
	}
	defer unlock()
	return errs.Wrap(d.write(sel, v), "write", d.path)
}

func (d *Dataset) write(sel *Space, v any) error {
	c, ds := d.c, d.n.ds
	if err := c.checkWritable(); err != nil {
		return err
	}
	s, err := d.selection(sel)
	if err != nil {
		return err
	}
	n, err := dtype.Count(ds.typ, v)
	if err != nil {
		return err
	}
	if uint64(n) != s.SelectedCount() {
		return errs.New(errs.ErrDimensionMismatch, "%d values for %d selected elements", n, s.SelectedCount())
	}
	raw, err := dtype.Encode(ds.typ, v, c.heap)
	if err != nil {
		return err
	}
	if err := d.writeRaw(s, raw); err != nil {
		// The payloads just allocated are not referenced by anything.
		if ferr := c.freeVarLen(ds.typ, func() ([]byte, error) { return raw, nil }); ferr != nil {
			c.log.Warnw("releasing unwritten payloads", "path", d.path, "error", ferr)
		}
		return err
	}
	return nil
}

// WriteAs stores data laid out in memory type mem, converting each element
// to the dataset type.
func (d *Dataset) WriteAs(sel *Space, mem *Type, data []byte) error {
	unlock, err := d.enter()
	if err != nil {
		return errs.Wrap(err, "write", d.path)
	}
	defer unlock()
	err = func() error {
		if err := d.c.checkWritable(); err != nil {
			return err
		}
		s, err := d.selection(sel)
		if err != nil {
			return err
		}
		n := s.SelectedCount()
		if uint64(len(data)) != n*uint64(mem.Size()) {
			return errs.New(errs.ErrDimensionMismatch, "buffer holds %d bytes, selection needs %d", len(data), n*uint64(mem.Size()))
		}
		raw, err := dtype.Convert(d.n.ds.typ, mem, data, int(n))
		if err != nil {
			return err
		}
		return d.writeRaw(s, raw)
	}()
	return errs.Wrap(err, "write", d.path)
}

// WriteRaw stores packed elements already in the dataset type.
func (d *Dataset) WriteRaw(sel *Space, data []byte) error {
	unlock, err := d.enter()
	if err != nil {
		return errs.Wrap(err, "write", d.path)
	}
	defer unlock()
	err = func() error {
		if err := d.c.checkWritable(); err != nil {
			return err
		}
		s, err := d.selection(sel)
		if err != nil {
			return err
		}
		return d.writeRaw(s, data)
	}()
	return errs.Wrap(err, "write", d.path)
}

func (d *Dataset) writeRaw(s *space.Space, data []byte) error {
	c, ds := d.c, d.n.ds
	want := s.SelectedCount() * uint64(ds.typ.Size())
	if uint64(len(data)) != want {
		return errs.New(errs.ErrDimensionMismatch, "buffer holds %d bytes, selection needs %d", len(data), want)
	}
	dims := ds.space.Dims()
	// Overwritten variable-length elements release their payloads once the
	// new elements are stored.
	stale, err := varLenAddrs(ds.typ, func() ([]byte, error) { return ds.layout.Read(s, dims) })
	if err != nil {
		return err
	}
	if err := ds.layout.Write(s, dims, data); err != nil {
		return err
	}
	c.touch(d.n)
	if err := c.freeHeap(stale); err != nil {
		c.log.Warnw("releasing overwritten payloads", "path", d.path, "error", err)
	}
	return nil
}

// Read decodes the selected elements into dest, a pointer to a slice, Go
// array or single value; nil selects the whole dataset.
func (d *Dataset) Read(sel *Space, dest any) error {
	unlock, err := d.enter()
	if err != nil {
		return errs.Wrap(err, "read", d.path)
	}
	defer unlock()
	err = func() error {
		raw, n, err := d.readRaw(sel)
		if err != nil {
			return err
		}
		return dtype.Decode(d.n.ds.typ, raw, n, dest, d.c.heap)
	}()
	return errs.Wrap(err, "read", d.path)
}

// ReadAs returns the selected elements converted to memory type mem.
func (d *Dataset) ReadAs(sel *Space, mem *Type) ([]byte, error) {
	unlock, err := d.enter()
	if err != nil {
		return nil, errs.Wrap(err, "read", d.path)
	}
	defer unlock()
	raw, n, err := d.readRaw(sel)
	if err != nil {
		return nil, errs.Wrap(err, "read", d.path)
	}
	out, err := dtype.Convert(mem, d.n.ds.typ, raw, n)
	return out, errs.Wrap(err, "read", d.path)
}

// ReadRaw returns the selected elements packed in the dataset type.
func (d *Dataset) ReadRaw(sel *Space) ([]byte, error) {
	unlock, err := d.enter()
	if err != nil {
		return nil, errs.Wrap(err, "read", d.path)
	}
	defer unlock()
	raw, _, err := d.readRaw(sel)
	return raw, errs.Wrap(err, "read", d.path)
}

// ReadValues returns the selected elements as generic Go values.
func (d *Dataset) ReadValues(sel *Space) ([]any, error) {
	unlock, err := d.enter()
	if err != nil {
		return nil, errs.Wrap(err, "read", d.path)
	}
	defer unlock()
	raw, n, err := d.readRaw(sel)
	if err != nil {
		return nil, errs.Wrap(err, "read", d.path)
	}
	vals, err := dtype.Values(d.n.ds.typ, raw, n, d.c.heap)
	return vals, errs.Wrap(err, "read", d.path)
}

func (d *Dataset) readRaw(sel *Space) ([]byte, int, error) {
	s, err := d.selection(sel)
	if err != nil {
		return nil, 0, err
	}
	raw, err := d.n.ds.layout.Read(s, d.n.ds.space.Dims())
	if err != nil {
		return nil, 0, err
	}
	return raw, int(s.SelectedCount()), nil
}

// Resize changes the current extent. Each dimension may grow up to its
// maximum or shrink. Elements outside a shrunken extent are discarded and
// their storage is released; elements exposed by growth read as the fill
// value.
func (d *Dataset) Resize(dims ...uint64) error {
	unlock, err := d.enter()
	if err != nil {
		return errs.Wrap(err, "resize", d.path)
	}
	defer unlock()
	return errs.Wrap(d.resize(dims), "resize", d.path)
}

func (d *Dataset) resize(dims []uint64) error {
	c, ds := d.c, d.n.ds
	if err := c.checkWritable(); err != nil {
		return err
	}
	old := ds.space.Dims()
	next := ds.space.Copy()
	if err := next.SetExtent(dims); err != nil {
		return err
	}
	dropped, err := varLenAddrs(ds.typ, func() ([]byte, error) {
		s, err := outside(old, dims)
		if err != nil {
			return nil, err
		}
		return ds.layout.Read(s, old)
	})
	if err != nil {
		return err
	}
	if err := ds.layout.Resize(old, dims); err != nil {
		return err
	}
	ds.space = next
	c.touch(d.n)
	c.log.Debugw("resized dataset", "path", d.path, "from", old, "to", dims)
	if err := c.freeHeap(dropped); err != nil {
		c.log.Warnw("releasing truncated payloads", "path", d.path, "error", err)
	}
	return nil
}

// outside selects the elements of extent old that lie beyond extent dims.
func outside(old, dims []uint64) (*space.Space, error) {
	s, err := space.NewSimple(old, nil)
	if err != nil {
		return nil, err
	}
	keep := make([]uint64, len(old))
	for i := range old {
		keep[i] = min(old[i], dims[i])
	}
	if err := s.SelectHyperslab(space.OpNotB, make([]uint64, len(old)), nil, keep, nil); err != nil {
		return nil, err
	}
	return s, nil
}

// RegionRef stores sel and returns a reference to that region of the
// dataset.
func (d *Dataset) RegionRef(sel *Space) (RegionRef, error) {
	unlock, err := d.enter()
	if err != nil {
		return RegionRef{}, errs.Wrap(err, "region reference", d.path)
	}
	defer unlock()
	ref, err := func() (RegionRef, error) {
		if err := d.c.checkWritable(); err != nil {
			return RegionRef{}, err
		}
		s, err := d.selection(sel)
		if err != nil {
			return RegionRef{}, err
		}
		e := binary.NewEncoder(d.c.bcfg)
		s.MarshalSelection(e)
		addr, err := d.c.heap.Put(e.Bytes())
		if err != nil {
			return RegionRef{}, err
		}
		return RegionRef{Object: d.n.id, Selection: addr}, nil
	}()
	return ref, errs.Wrap(err, "region reference", d.path)
}
