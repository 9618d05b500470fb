package hstore

import (
	"fmt"

	"github.com/robert-malhotra/go-hstore/internal/dtype"
	"github.com/robert-malhotra/go-hstore/internal/errs"
	"github.com/robert-malhotra/go-hstore/internal/message"
	"github.com/robert-malhotra/go-hstore/internal/object"
)

// ObjectKind distinguishes groups, datasets and committed datatypes.
type ObjectKind = object.Kind

const (
	KindGroup     = object.KindGroup
	KindDataset   = object.KindDataset
	KindNamedType = object.KindDatatype
)

// node is the in-memory state of one object. Loaded nodes stay cached until
// the object is reclaimed.
type node struct {
	id   uint64
	kind object.Kind

	// refs counts hard links, plus users of a committed datatype.
	refs    uint32
	handles int
	dirty   bool
	removed bool

	attrs    []*message.Attribute // creation order
	nextAttr uint32
	extra    []message.Message // unrecognized messages, kept as read

	grp *groupState
	ds  *datasetState
	dt  *dtype.Type
}

func (c *Container) newNode(kind object.Kind) *node {
	n := &node{id: c.sb.NextID, kind: kind}
	c.sb.NextID++
	c.nodes[n.id] = n
	c.touch(n)
	return n
}

// touch marks n for rewriting on the next flush.
func (c *Container) touch(n *node) {
	n.dirty = true
	c.dirty = true
}

// node returns the cached node for id, loading its header if needed.
func (c *Container) node(id uint64) (*node, error) {
	if n, ok := c.nodes[id]; ok {
		if n.removed {
			return nil, errs.New(errs.ErrPathNotFound, "object %d was deleted", id)
		}
		return n, nil
	}
	e, ok := c.table[id]
	if !ok {
		return nil, errs.New(errs.ErrPathNotFound, "object %d does not exist", id)
	}
	block, err := c.file.ReadAt(e.Addr, e.Size)
	if err != nil {
		return nil, err
	}
	h, err := object.Decode(block, c.bcfg)
	if err != nil {
		return nil, errs.IO(fmt.Errorf("object %d: %w", id, err))
	}

	n := &node{id: id, kind: h.Kind, refs: h.RefCount, attrs: h.Attributes()}
	if info := h.AttributeInfo(); info != nil {
		n.nextAttr = info.NextOrder
	}
	for _, m := range h.Messages {
		if u, ok := m.(*message.Unknown); ok {
			n.extra = append(n.extra, u)
		}
	}

	switch h.Kind {
	case object.KindGroup:
		err = c.loadGroup(n, h)
	case object.KindDataset:
		err = c.loadDataset(n, h)
	case object.KindDatatype:
		m := h.Datatype()
		if m == nil {
			err = fmt.Errorf("committed datatype without a datatype message")
		} else {
			n.dt = m.Datatype
			c.committed[n.dt] = id
		}
	}
	if err != nil {
		return nil, errs.IO(fmt.Errorf("object %d: %w", id, err))
	}
	c.nodes[id] = n
	return n, nil
}

// header builds the object header of n.
func (c *Container) header(n *node) *object.Header {
	h := &object.Header{Kind: n.kind, RefCount: n.refs}
	switch n.kind {
	case object.KindGroup:
		n.grp.messages(h)
	case object.KindDataset:
		n.ds.messages(h)
	case object.KindDatatype:
		h.AddFlagged(&message.Datatype{Datatype: n.dt}, object.FlagConstant)
	}
	h.Add(&message.AttributeInfo{NextOrder: n.nextAttr})
	for _, a := range n.attrs {
		h.Add(a)
	}
	for _, m := range n.extra {
		h.Add(m)
	}
	return h
}

// flushNode writes the index records of n and, if anything changed, a new
// header block in place of the old one.
func (c *Container) flushNode(n *node) (bool, error) {
	if !n.dirty {
		return false, nil
	}
	switch n.kind {
	case object.KindGroup:
		if err := c.flushLinkIndex(n.grp); err != nil {
			return false, err
		}
	case object.KindDataset:
		if err := n.ds.layout.Flush(); err != nil {
			return false, err
		}
	}

	block := c.header(n).Encode(c.bcfg)
	if old, ok := c.table[n.id]; ok {
		c.file.Free(old.Addr, old.Size)
	}
	addr, err := c.file.Put(block, "object-header")
	if err != nil {
		delete(c.table, n.id)
		return false, err
	}
	c.table[n.id] = object.Entry{Addr: addr, Size: uint64(len(block))}
	n.dirty = false
	return true, nil
}

// unref drops one reference to n and reclaims it once nothing refers to it
// and no handle holds it.
func (c *Container) unref(n *node) error {
	if n.removed {
		return nil
	}
	if n.refs > 0 {
		n.refs--
	}
	c.touch(n)
	if n.refs == 0 && n.handles == 0 {
		return c.reclaim(n)
	}
	return nil
}

func (c *Container) unrefID(id uint64) error {
	n, err := c.node(id)
	if err != nil {
		return err
	}
	return c.unref(n)
}

// reclaim releases all storage of n: its raw data, heap payloads, link
// index and header, and drops the references it holds on other objects.
// Children only reachable through n are reclaimed with it.
func (c *Container) reclaim(n *node) error {
	if n.removed || n.id == c.sb.RootID {
		return nil
	}
	n.removed = true
	c.dirty = true

	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	switch n.kind {
	case object.KindGroup:
		for _, l := range n.grp.list(ByCreation, Increasing) {
			if l.Kind == message.LinkHard {
				keep(c.unrefID(l.Object))
			}
		}
		c.releaseLinkIndex(n.grp)
	case object.KindDataset:
		keep(c.freeVarLen(n.ds.typ, func() ([]byte, error) {
			return n.ds.layout.Read(n.ds.all(), n.ds.space.Dims())
		}))
		n.ds.layout.Release()
		if n.ds.shared != 0 {
			keep(c.unrefID(n.ds.shared))
		}
	case object.KindDatatype:
		delete(c.committed, n.dt)
	}
	for _, a := range n.attrs {
		keep(c.releaseAttr(a))
	}

	if e, ok := c.table[n.id]; ok {
		c.file.Free(e.Addr, e.Size)
		delete(c.table, n.id)
	}
	delete(c.nodes, n.id)
	c.metrics.Reclaimed()
	c.log.Debugw("reclaimed object", "id", n.id, "kind", n.kind)
	return first
}

// freeVarLen releases the heap payloads referenced by the elements that
// read returns.
func (c *Container) freeVarLen(t *dtype.Type, read func() ([]byte, error)) error {
	if !t.HasVarLen() {
		return nil
	}
	addrs, err := varLenAddrs(t, read)
	if err != nil {
		return err
	}
	return c.freeHeap(addrs)
}

// varLenAddrs returns the heap addresses referenced by the elements that
// read returns, without releasing them.
func varLenAddrs(t *dtype.Type, read func() ([]byte, error)) ([]uint64, error) {
	if !t.HasVarLen() {
		return nil, nil
	}
	data, err := read()
	if err != nil {
		return nil, err
	}
	return dtype.VarLenAddrs(t, data, len(data)/t.Size()), nil
}

func (c *Container) freeHeap(addrs []uint64) error {
	for _, addr := range addrs {
		if err := c.heap.Free(addr); err != nil {
			return err
		}
	}
	return nil
}

// Object is a handle to a group, dataset or committed datatype.
type Object interface {
	// ID returns the object's stable identifier.
	ID() uint64

	// Path returns the path the object was opened by.
	Path() string

	// Kind returns the object kind.
	Kind() ObjectKind

	// Close releases the handle.
	Close() error

	common() *handle
}

// handle is the part shared by every object handle.
type handle struct {
	c      *Container
	n      *node
	path   string
	closed bool
}

func (c *Container) acquire(n *node, path string) handle {
	c.handles++
	n.handles++
	return handle{c: c, n: n, path: path}
}

// wrap returns a handle of the right type for n.
func (c *Container) wrap(n *node, path string) Object {
	h := c.acquire(n, path)
	switch n.kind {
	case object.KindGroup:
		return &Group{handle: h}
	case object.KindDataset:
		return &Dataset{handle: h}
	default:
		return &NamedType{handle: h}
	}
}

func (h *handle) common() *handle { return h }

// ID returns the object's stable identifier.
func (h *handle) ID() uint64 { return h.n.id }

// Path returns the path the object was opened by.
func (h *handle) Path() string { return h.path }

// Kind returns the object kind.
func (h *handle) Kind() ObjectKind { return h.n.kind }

// Ref returns an object reference to this object.
func (h *handle) Ref() ObjectRef { return ObjectRef(h.n.id) }

// check fails with ErrStaleHandle once the handle or its container is
// closed. Callers hold the container mutex.
func (h *handle) check() error {
	switch {
	case h.c.closed:
		return errs.New(errs.ErrStaleHandle, "container is closed")
	case h.closed:
		return errs.New(errs.ErrStaleHandle, "handle is closed")
	case h.n.removed:
		return errs.New(errs.ErrStaleHandle, "object was deleted")
	}
	return nil
}

// enter locks the container and validates the handle. The returned
// function unlocks.
func (h *handle) enter() (func(), error) {
	h.c.mu.Lock()
	if err := h.check(); err != nil {
		h.c.mu.Unlock()
		return nil, err
	}
	return h.c.mu.Unlock, nil
}

// Close releases the handle. An object whose last link was deleted is
// reclaimed when its last handle closes.
func (h *handle) Close() error {
	c := h.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	if c.closed {
		return nil
	}
	c.handles--
	h.n.handles--
	if h.n.refs == 0 && h.n.handles == 0 && !h.n.removed {
		return errs.Wrap(c.reclaim(h.n), "close", h.path)
	}
	return nil
}

// RefCount returns the number of hard links to the object, plus the number
// of datasets and attributes sharing a committed datatype.
func (h *handle) RefCount() (int, error) {
	unlock, err := h.enter()
	if err != nil {
		return 0, errs.Wrap(err, "ref count", h.path)
	}
	defer unlock()
	return int(h.n.refs), nil
}
