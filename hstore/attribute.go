package hstore

import (
	"reflect"

	"github.com/robert-malhotra/go-hstore/internal/dtype"
	"github.com/robert-malhotra/go-hstore/internal/errs"
	"github.com/robert-malhotra/go-hstore/internal/message"
	"github.com/robert-malhotra/go-hstore/internal/space"
)

// maxAttrSize bounds the raw data of one attribute, which is stored in the
// object header.
const maxAttrSize = message.MaxCompactSize

// Attribute is a handle to a small named value attached to a group, dataset
// or committed datatype. It keeps its object alive until closed.
type Attribute struct {
	obj handle
	a   *message.Attribute
}

func (n *node) attr(name string) (int, *message.Attribute) {
	for i, a := range n.attrs {
		if a.Name == name {
			return i, a
		}
	}
	return -1, nil
}

func validAttrName(name string) error {
	if name == "" {
		return errs.New(errs.ErrPathNotFound, "empty attribute name")
	}
	return nil
}

// newAttr builds an attribute of type t and shape sp with zeroed data.
// A committed Type is shared and gains a reference.
func (c *Container) newAttr(name string, t *dtype.Type, sp *space.Space) (*message.Attribute, error) {
	if err := validAttrName(name); err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errs.New(errs.ErrTypeMismatch, "nil type")
	}
	if sp == nil {
		return nil, errs.New(errs.ErrDimensionMismatch, "nil space")
	}
	a := &message.Attribute{Name: name}
	if sp.IsScalar() {
		a.Space = space.NewScalar()
	} else {
		s, err := space.NewSimple(sp.Dims(), nil)
		if err != nil {
			return nil, err
		}
		a.Space = s
	}
	size := a.Space.NumElements() * uint64(t.Size())
	if size > maxAttrSize {
		return nil, errs.New(errs.ErrDimensionMismatch, "attribute %q needs %d bytes, limit is %d", name, size, maxAttrSize)
	}
	a.Data = make([]byte, size)

	if id, ok := c.committed[t]; ok {
		tn, err := c.node(id)
		if err != nil {
			return nil, err
		}
		a.Datatype, a.SharedType = t, id
		tn.refs++
		c.touch(tn)
	} else {
		a.Datatype = t.Clone()
		a.Datatype.Lock()
	}
	return a, nil
}

// addAttr appends a to n in creation order.
func (c *Container) addAttr(n *node, a *message.Attribute) {
	a.CreationOrder = n.nextAttr
	n.nextAttr++
	n.attrs = append(n.attrs, a)
	c.touch(n)
}

// releaseAttr frees the heap payloads of a and drops its reference to a
// committed type.
func (c *Container) releaseAttr(a *message.Attribute) error {
	if err := c.freeVarLen(a.Datatype, func() ([]byte, error) { return a.Data, nil }); err != nil {
		return err
	}
	if a.SharedType != 0 {
		return c.unrefID(a.SharedType)
	}
	return nil
}

// inferAttr derives a type and shape for a Go value. Slices become
// one-dimensional, everything else scalar.
func inferAttr(value any) (*dtype.Type, *space.Space, error) {
	if value == nil {
		return nil, nil, errs.New(errs.ErrTypeMismatch, "nil attribute value")
	}
	v := reflect.ValueOf(value)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, nil, errs.New(errs.ErrTypeMismatch, "nil attribute value")
		}
		v = v.Elem()
	}
	var t *dtype.Type
	var err error
	if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
		t = dtype.Uint8
	} else if t, err = TypeOf(value); err != nil {
		return nil, nil, err
	}
	if v.Kind() != reflect.Slice {
		return t, space.NewScalar(), nil
	}
	n, err := dtype.Count(t, value)
	if err != nil {
		return nil, nil, err
	}
	sp, err := space.NewSimple([]uint64{uint64(n)}, nil)
	if err != nil {
		return nil, nil, err
	}
	return t, sp, nil
}

// writeAttr replaces the data of a with value, releasing old payloads.
func (c *Container) writeAttr(a *message.Attribute, value any) error {
	n, err := dtype.Count(a.Datatype, value)
	if err != nil {
		return err
	}
	if uint64(n) != a.Space.NumElements() {
		return errs.New(errs.ErrDimensionMismatch, "%d values for attribute %q of %d elements", n, a.Name, a.Space.NumElements())
	}
	raw, err := dtype.Encode(a.Datatype, value, c.heap)
	if err != nil {
		return err
	}
	return c.writeAttrRaw(a, raw)
}

func (c *Container) writeAttrRaw(a *message.Attribute, raw []byte) error {
	if len(raw) != len(a.Data) {
		return errs.New(errs.ErrDimensionMismatch, "buffer holds %d bytes, attribute %q needs %d", len(raw), a.Name, len(a.Data))
	}
	old := a.Data
	if err := c.freeVarLen(a.Datatype, func() ([]byte, error) { return old, nil }); err != nil {
		return err
	}
	a.Data = append([]byte(nil), raw...)
	return nil
}

// setAttr creates or replaces the attribute name of n from a Go value.
// A replaced attribute keeps its creation order.
func (c *Container) setAttr(n *node, name string, value any) (*message.Attribute, error) {
	t, sp, err := inferAttr(value)
	if err != nil {
		return nil, err
	}
	i, old := n.attr(name)
	if old != nil && old.Datatype.Equal(t) && old.Space.SameShape(sp) {
		if err := c.writeAttr(old, value); err != nil {
			return nil, err
		}
		c.touch(n)
		return old, nil
	}
	a, err := c.newAttr(name, t, sp)
	if err != nil {
		return nil, err
	}
	if err := c.writeAttr(a, value); err != nil {
		return nil, err
	}
	if old == nil {
		c.addAttr(n, a)
		return a, nil
	}
	if err := c.releaseAttr(old); err != nil {
		return nil, err
	}
	a.CreationOrder = old.CreationOrder
	n.attrs[i] = a
	c.touch(n)
	return a, nil
}

// CreateAttribute adds an attribute of type t and shape sp to the object.
// Its elements start zeroed.
func (h *handle) CreateAttribute(name string, t *Type, sp *Space) (*Attribute, error) {
	unlock, err := h.enter()
	if err != nil {
		return nil, errs.Wrap(err, "create attribute", JoinAttrPath(h.path, name))
	}
	defer unlock()
	a, err := func() (*Attribute, error) {
		c := h.c
		if err := c.checkWritable(); err != nil {
			return nil, err
		}
		if _, a := h.n.attr(name); a != nil {
			return nil, errs.New(errs.ErrNameExists, "attribute %q already exists", name)
		}
		a, err := c.newAttr(name, t, sp)
		if err != nil {
			return nil, err
		}
		c.addAttr(h.n, a)
		return &Attribute{obj: c.acquire(h.n, h.path), a: a}, nil
	}()
	return a, errs.Wrap(err, "create attribute", JoinAttrPath(h.path, name))
}

// SetAttr creates or overwrites an attribute from a Go value. The type is
// inferred as by TypeOf. Slices store as one-dimensional attributes.
func (h *handle) SetAttr(name string, value any) error {
	unlock, err := h.enter()
	if err != nil {
		return errs.Wrap(err, "set attribute", JoinAttrPath(h.path, name))
	}
	defer unlock()
	err = h.c.checkWritable()
	if err == nil {
		_, err = h.c.setAttr(h.n, name, value)
	}
	return errs.Wrap(err, "set attribute", JoinAttrPath(h.path, name))
}

// OpenAttribute opens an existing attribute.
func (h *handle) OpenAttribute(name string) (*Attribute, error) {
	unlock, err := h.enter()
	if err != nil {
		return nil, errs.Wrap(err, "open attribute", JoinAttrPath(h.path, name))
	}
	defer unlock()
	_, a := h.n.attr(name)
	if a == nil {
		return nil, errs.Wrap(errs.New(errs.ErrPathNotFound, "no attribute %q", name), "open attribute", JoinAttrPath(h.path, name))
	}
	return &Attribute{obj: h.c.acquire(h.n, h.path), a: a}, nil
}

// Attr reads an attribute as generic values. Scalar attributes return the
// value itself, others a []any in row-major order.
func (h *handle) Attr(name string) (any, error) {
	unlock, err := h.enter()
	if err != nil {
		return nil, errs.Wrap(err, "read attribute", JoinAttrPath(h.path, name))
	}
	defer unlock()
	_, a := h.n.attr(name)
	if a == nil {
		return nil, errs.Wrap(errs.New(errs.ErrPathNotFound, "no attribute %q", name), "read attribute", JoinAttrPath(h.path, name))
	}
	v, err := h.c.attrValue(a)
	return v, errs.Wrap(err, "read attribute", JoinAttrPath(h.path, name))
}

func (c *Container) attrValue(a *message.Attribute) (any, error) {
	vals, err := dtype.Values(a.Datatype, a.Data, int(a.Space.NumElements()), c.heap)
	if err != nil {
		return nil, err
	}
	if a.Space.IsScalar() {
		return vals[0], nil
	}
	return vals, nil
}

// DeleteAttribute removes an attribute and releases its storage. Open
// handles to it become stale.
func (h *handle) DeleteAttribute(name string) error {
	unlock, err := h.enter()
	if err != nil {
		return errs.Wrap(err, "delete attribute", JoinAttrPath(h.path, name))
	}
	defer unlock()
	err = func() error {
		c := h.c
		if err := c.checkWritable(); err != nil {
			return err
		}
		i, a := h.n.attr(name)
		if a == nil {
			return errs.New(errs.ErrPathNotFound, "no attribute %q", name)
		}
		h.n.attrs = append(h.n.attrs[:i], h.n.attrs[i+1:]...)
		c.touch(h.n)
		return c.releaseAttr(a)
	}()
	return errs.Wrap(err, "delete attribute", JoinAttrPath(h.path, name))
}

// RenameAttribute changes an attribute's name, keeping its creation order.
func (h *handle) RenameAttribute(oldName, newName string) error {
	unlock, err := h.enter()
	if err != nil {
		return errs.Wrap(err, "rename attribute", JoinAttrPath(h.path, oldName))
	}
	defer unlock()
	err = func() error {
		if err := h.c.checkWritable(); err != nil {
			return err
		}
		if err := validAttrName(newName); err != nil {
			return err
		}
		_, a := h.n.attr(oldName)
		if a == nil {
			return errs.New(errs.ErrPathNotFound, "no attribute %q", oldName)
		}
		if oldName == newName {
			return nil
		}
		if _, dup := h.n.attr(newName); dup != nil {
			return errs.New(errs.ErrNameExists, "attribute %q already exists", newName)
		}
		a.Name = newName
		h.c.touch(h.n)
		return nil
	}()
	return errs.Wrap(err, "rename attribute", JoinAttrPath(h.path, oldName))
}

// Attributes lists attribute names in creation order.
func (h *handle) Attributes() ([]string, error) {
	unlock, err := h.enter()
	if err != nil {
		return nil, errs.Wrap(err, "list attributes", h.path)
	}
	defer unlock()
	names := make([]string, len(h.n.attrs))
	for i, a := range h.n.attrs {
		names[i] = a.Name
	}
	return names, nil
}

// HasAttribute reports whether the object has an attribute called name.
func (h *handle) HasAttribute(name string) (bool, error) {
	unlock, err := h.enter()
	if err != nil {
		return false, errs.Wrap(err, "has attribute", JoinAttrPath(h.path, name))
	}
	defer unlock()
	_, a := h.n.attr(name)
	return a != nil, nil
}

// NumAttributes returns the number of attributes.
func (h *handle) NumAttributes() (int, error) {
	unlock, err := h.enter()
	if err != nil {
		return 0, errs.Wrap(err, "count attributes", h.path)
	}
	defer unlock()
	return len(h.n.attrs), nil
}

// enter locks the container and checks that the attribute still exists.
func (a *Attribute) enter() (func(), error) {
	unlock, err := a.obj.enter()
	if err != nil {
		return nil, err
	}
	if _, cur := a.obj.n.attr(a.a.Name); cur != a.a {
		unlock()
		return nil, errs.New(errs.ErrStaleHandle, "attribute was deleted or replaced")
	}
	return unlock, nil
}

func (a *Attribute) path() string { return JoinAttrPath(a.obj.path, a.a.Name) }

// Name returns the attribute name.
func (a *Attribute) Name() string { return a.a.Name }

// Object returns the path of the object the attribute belongs to.
func (a *Attribute) Object() string { return a.obj.path }

// Type returns the element type.
func (a *Attribute) Type() *Type { return a.a.Datatype }

// Space returns a copy of the attribute's shape.
func (a *Attribute) Space() *Space {
	s := a.a.Space.Copy()
	s.SelectAll()
	return s
}

// CreationOrder returns the attribute's position in creation order.
func (a *Attribute) CreationOrder() uint32 { return a.a.CreationOrder }

// Read decodes all elements into dest, a pointer to a slice, Go array or
// single value.
func (a *Attribute) Read(dest any) error {
	unlock, err := a.enter()
	if err != nil {
		return errs.Wrap(err, "read attribute", a.path())
	}
	defer unlock()
	err = dtype.Decode(a.a.Datatype, a.a.Data, int(a.a.Space.NumElements()), dest, a.obj.c.heap)
	return errs.Wrap(err, "read attribute", a.path())
}

// Value returns the attribute as generic values, like Object.Attr.
func (a *Attribute) Value() (any, error) {
	unlock, err := a.enter()
	if err != nil {
		return nil, errs.Wrap(err, "read attribute", a.path())
	}
	defer unlock()
	v, err := a.obj.c.attrValue(a.a)
	return v, errs.Wrap(err, "read attribute", a.path())
}

// ReadRaw returns the packed elements in the attribute type.
func (a *Attribute) ReadRaw() ([]byte, error) {
	unlock, err := a.enter()
	if err != nil {
		return nil, errs.Wrap(err, "read attribute", a.path())
	}
	defer unlock()
	return append([]byte(nil), a.a.Data...), nil
}

// Write replaces all elements with a Go value holding exactly one value per
// element.
func (a *Attribute) Write(value any) error {
	unlock, err := a.enter()
	if err != nil {
		return errs.Wrap(err, "write attribute", a.path())
	}
	defer unlock()
	c := a.obj.c
	err = c.checkWritable()
	if err == nil {
		err = c.writeAttr(a.a, value)
	}
	if err == nil {
		c.touch(a.obj.n)
	}
	return errs.Wrap(err, "write attribute", a.path())
}

// WriteRaw replaces all elements with packed bytes in the attribute type.
func (a *Attribute) WriteRaw(data []byte) error {
	unlock, err := a.enter()
	if err != nil {
		return errs.Wrap(err, "write attribute", a.path())
	}
	defer unlock()
	c := a.obj.c
	err = c.checkWritable()
	if err == nil {
		err = c.writeAttrRaw(a.a, data)
	}
	if err == nil {
		c.touch(a.obj.n)
	}
	return errs.Wrap(err, "write attribute", a.path())
}

// Close releases the attribute handle.
func (a *Attribute) Close() error {
	return a.obj.Close()
}
