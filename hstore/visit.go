package hstore

import (
	"github.com/robert-malhotra/go-hstore/internal/errs"
	"github.com/robert-malhotra/go-hstore/internal/message"
	"github.com/robert-malhotra/go-hstore/internal/object"
)

// ObjectInfo describes an object reached by Visit.
type ObjectInfo struct {
	ID       uint64
	Kind     ObjectKind
	RefCount int
	NumAttrs int
	NumLinks int // groups only
}

// VisitFunc is called once per object. Returning a non-nil error stops the
// walk; ErrStopWalk stops it without signalling a failure, but Visit still
// returns it unchanged.
type VisitFunc func(path string, info ObjectInfo) error

// Visit walks the objects reachable from obj by hard links, depth first
// with children in name order, calling fn for obj and each descendant.
// Each object is reported once, at the first path that reaches it, so
// cycles formed by hard links end the descent. Soft links are not
// followed. The container is not locked while fn runs; children are listed
// before fn sees them, so an object fn deletes may still be reported.
func Visit(obj Object, fn VisitFunc) error {
	h := obj.common()
	c := h.c
	info, err := c.objectInfo(h)
	if err != nil {
		return errs.Wrap(err, "visit", h.path)
	}
	visited := map[uint64]bool{info.ID: true}
	if err := fn(h.path, info); err != nil {
		return err
	}
	return c.visitChildren(h.n.id, h.path, visited, fn)
}

// visitEntry is one hard-linked child captured under the mutex.
type visitEntry struct {
	path string
	info ObjectInfo
}

func (c *Container) visitChildren(id uint64, path string, visited map[uint64]bool, fn VisitFunc) error {
	children, err := c.hardChildren(id, path)
	if isKind(err, errs.ErrPathNotFound) {
		return nil // removed by an earlier callback
	}
	if err != nil {
		return errs.Wrap(err, "visit", path)
	}
	for _, e := range children {
		if visited[e.info.ID] {
			continue
		}
		visited[e.info.ID] = true
		if err := fn(e.path, e.info); err != nil {
			return err
		}
		if e.info.Kind == object.KindGroup {
			if err := c.visitChildren(e.info.ID, e.path, visited, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// hardChildren lists the hard-linked children of group id in name order.
func (c *Container) hardChildren(id uint64, path string) ([]visitEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.live(); err != nil {
		return nil, err
	}
	n, err := c.node(id)
	if err != nil {
		return nil, err
	}
	if n.kind != object.KindGroup {
		return nil, nil
	}
	var out []visitEntry
	for _, l := range n.grp.list(ByName, Increasing) {
		if l.Kind != message.LinkHard {
			continue
		}
		child, err := c.node(l.Object)
		if err != nil {
			return nil, err
		}
		out = append(out, visitEntry{path: joinPath(path, l.Name), info: infoOf(child)})
	}
	return out, nil
}

func (c *Container) objectInfo(h *handle) (ObjectInfo, error) {
	unlock, err := h.enter()
	if err != nil {
		return ObjectInfo{}, err
	}
	defer unlock()
	return infoOf(h.n), nil
}

func infoOf(n *node) ObjectInfo {
	info := ObjectInfo{ID: n.id, Kind: n.kind, RefCount: int(n.refs), NumAttrs: len(n.attrs)}
	if n.grp != nil {
		info.NumLinks = n.grp.count()
	}
	return info
}

// Info describes the object.
func (h *handle) Info() (ObjectInfo, error) {
	info, err := h.c.objectInfo(h)
	return info, errs.Wrap(err, "info", h.path)
}

// AttrVisitFunc is called once per attribute with the owning object's path.
type AttrVisitFunc func(objectPath string, a *Attribute) error

// VisitAttributes calls fn for each attribute of obj in creation order.
// The attribute handle is closed when fn returns. Errors from fn stop the
// walk and are returned unchanged.
func VisitAttributes(obj Object, fn AttrVisitFunc) error {
	h := obj.common()
	names, err := h.Attributes()
	if err != nil {
		return err
	}
	for _, name := range names {
		a, err := h.OpenAttribute(name)
		if err != nil {
			if isKind(err, errs.ErrPathNotFound) {
				continue // deleted by an earlier callback
			}
			return err
		}
		err = fn(h.path, a)
		a.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
