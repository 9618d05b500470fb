package hstore

import (
	"github.com/robert-malhotra/go-hstore/internal/binary"
	"github.com/robert-malhotra/go-hstore/internal/errs"
	"github.com/robert-malhotra/go-hstore/internal/message"
	"github.com/robert-malhotra/go-hstore/internal/object"
	"github.com/robert-malhotra/go-hstore/internal/space"
)

// Dereference opens the object an object reference points to. The handle's
// path is the first path that reaches the object in a breadth-first search
// from the root by name, or empty if no path does.
func (c *Container) Dereference(ref ObjectRef) (Object, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	obj, err := c.dereference(uint64(ref))
	return obj, errs.Wrap(err, "dereference", "")
}

func (c *Container) dereference(id uint64) (Object, error) {
	if err := c.live(); err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, errs.New(errs.ErrPathNotFound, "null reference")
	}
	n, err := c.node(id)
	if err != nil {
		return nil, err
	}
	p, err := c.pathOf(id)
	if err != nil {
		return nil, err
	}
	return c.wrap(n, p), nil
}

// pathOf finds the shortest hard-link path from the root to id.
func (c *Container) pathOf(id uint64) (string, error) {
	if id == c.sb.RootID {
		return "/", nil
	}
	type entry struct {
		id   uint64
		path string
	}
	seen := map[uint64]bool{c.sb.RootID: true}
	queue := []entry{{c.sb.RootID, "/"}}
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]
		n, err := c.node(e.id)
		if err != nil {
			return "", err
		}
		if n.kind != object.KindGroup {
			continue
		}
		for _, l := range n.grp.list(ByName, Increasing) {
			if l.Kind != message.LinkHard || seen[l.Object] {
				continue
			}
			p := joinPath(e.path, l.Name)
			if l.Object == id {
				return p, nil
			}
			seen[l.Object] = true
			queue = append(queue, entry{l.Object, p})
		}
	}
	return "", nil
}

// DereferenceRegion opens the dataset a region reference points to and
// returns the stored selection over the dataset's current extent.
func (c *Container) DereferenceRegion(ref RegionRef) (*Dataset, *Space, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, sel, err := c.dereferenceRegion(ref)
	if err != nil {
		return nil, nil, errs.Wrap(err, "dereference region", "")
	}
	return d, sel, nil
}

func (c *Container) dereferenceRegion(ref RegionRef) (*Dataset, *Space, error) {
	if ref.Selection == 0 {
		return nil, nil, errs.New(errs.ErrPathNotFound, "null region reference")
	}
	obj, err := c.dereference(ref.Object)
	if err != nil {
		return nil, nil, err
	}
	d, ok := obj.(*Dataset)
	if !ok {
		c.release(obj.common())
		return nil, nil, errs.New(errs.ErrTypeMismatch, "region reference to a %s", obj.Kind())
	}
	fail := func(err error) (*Dataset, *Space, error) {
		c.release(&d.handle)
		return nil, nil, err
	}
	blob, err := c.heap.Load(ref.Selection)
	if err != nil {
		return fail(err)
	}
	sel, err := space.ParseSelection(binary.NewDecoder(blob, c.bcfg))
	if err != nil {
		return fail(errs.IO(err))
	}
	if err := sel.Validate(d.n.ds.space.Dims()); err != nil {
		return fail(err)
	}
	return d, sel, nil
}

// release drops a handle acquired while the mutex is held.
func (c *Container) release(h *handle) {
	h.closed = true
	c.handles--
	h.n.handles--
}
