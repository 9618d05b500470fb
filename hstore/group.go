package hstore

import (
	"encoding/binary"
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/robert-malhotra/go-hstore/internal/btree"
	"github.com/robert-malhotra/go-hstore/internal/errs"
	"github.com/robert-malhotra/go-hstore/internal/message"
	"github.com/robert-malhotra/go-hstore/internal/object"
)

// Group is a handle to a group.
type Group struct {
	handle
}

// StorageState is the link storage form of a group.
type StorageState uint8

const (
	// StateCompact keeps links in the group's header.
	StateCompact StorageState = iota
	// StateDense keeps links in a separate name index.
	StateDense
)

func (s StorageState) String() string {
	if s == StateDense {
		return "DENSE"
	}
	return "COMPACT"
}

// IndexOrder selects the order of link iteration.
type IndexOrder uint8

const (
	// ByName orders links by byte-wise name comparison.
	ByName IndexOrder = iota
	// ByCreation orders links by insertion.
	ByCreation
)

// Direction of link iteration.
type Direction uint8

const (
	Increasing Direction = iota
	Decreasing
)

// LinkType distinguishes hard and soft links.
type LinkType = message.LinkKind

const (
	HardLink = message.LinkHard
	SoftLink = message.LinkSoft
)

// LinkInfo describes one link of a group.
type LinkInfo struct {
	Name          string
	Type          LinkType
	CreationOrder uint64
	Object        uint64 // hard links
	Target        string // soft links
}

func linkInfo(l *message.Link) LinkInfo {
	return LinkInfo{Name: l.Name, Type: l.Kind, CreationOrder: l.CreationOrder, Object: l.Object, Target: l.Target}
}

// groupState holds the links of a group in one of two forms. Compact
// groups keep a creation-ordered slice; dense groups keep B-trees by name
// and by creation order, and persist the name tree as a separate record.
type groupState struct {
	maxCompact int
	minDense   int
	nextOrder  uint64

	dense   bool
	compact []*message.Link
	names   *btree.Tree[*message.Link]
	orders  *btree.Tree[*message.Link]

	indexAddr  uint64
	indexSize  uint64
	indexDirty bool
}

func newGroupState(maxCompact, minDense int) *groupState {
	return &groupState{maxCompact: maxCompact, minDense: minDense}
}

func orderKey(order uint64) string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], order)
	return string(b[:])
}

func (g *groupState) count() int {
	if g.dense {
		return g.names.Len()
	}
	return len(g.compact)
}

func (g *groupState) state() StorageState {
	if g.dense {
		return StateDense
	}
	return StateCompact
}

func (g *groupState) lookup(name string) (*message.Link, bool) {
	if g.dense {
		return g.names.Get(name)
	}
	for _, l := range g.compact {
		if l.Name == name {
			return l, true
		}
	}
	return nil, false
}

// insert adds l and reports whether the group turned dense.
func (g *groupState) insert(l *message.Link) bool {
	l.CreationOrder = g.nextOrder
	g.nextOrder++
	if g.dense {
		g.names.Set(l.Name, l)
		g.orders.Set(orderKey(l.CreationOrder), l)
		g.indexDirty = true
		return false
	}
	g.compact = append(g.compact, l)
	if len(g.compact) <= g.maxCompact {
		return false
	}
	g.names = btree.New[*message.Link](btree.DefaultDegree)
	g.orders = btree.New[*message.Link](btree.DefaultDegree)
	for _, l := range g.compact {
		g.names.Set(l.Name, l)
		g.orders.Set(orderKey(l.CreationOrder), l)
	}
	g.compact = nil
	g.dense = true
	g.indexDirty = true
	return true
}

// remove deletes the link called name and reports whether the group turned
// compact.
func (g *groupState) remove(name string) (*message.Link, bool) {
	if !g.dense {
		for i, l := range g.compact {
			if l.Name == name {
				g.compact = slices.Delete(g.compact, i, i+1)
				return l, false
			}
		}
		return nil, false
	}
	l, ok := g.names.Delete(name)
	if !ok {
		return nil, false
	}
	g.orders.Delete(orderKey(l.CreationOrder))
	g.indexDirty = true
	if g.names.Len() > g.minDense {
		return l, false
	}
	g.compact = g.list(ByCreation, Increasing)
	g.names, g.orders = nil, nil
	g.dense = false
	return l, true
}

// list returns the links in the requested order.
func (g *groupState) list(order IndexOrder, dir Direction) []*message.Link {
	var out []*message.Link
	switch {
	case !g.dense:
		out = slices.Clone(g.compact)
		if order == ByName {
			slices.SortFunc(out, func(a, b *message.Link) int { return strings.Compare(a.Name, b.Name) })
		}
	case order == ByName:
		g.names.Ascend("", func(_ string, l *message.Link) bool {
			out = append(out, l)
			return true
		})
	default:
		g.orders.Ascend("", func(_ string, l *message.Link) bool {
			out = append(out, l)
			return true
		})
	}
	if dir == Decreasing {
		slices.Reverse(out)
	}
	return out
}

func (g *groupState) messages(h *object.Header) {
	h.AddFlagged(&message.GroupInfo{MaxCompact: uint16(g.maxCompact), MinDense: uint16(g.minDense)}, object.FlagConstant)
	h.Add(&message.LinkInfo{NextOrder: g.nextOrder, Dense: g.dense, IndexAddr: g.indexAddr, IndexSize: g.indexSize})
	if !g.dense {
		for _, l := range g.compact {
			h.Add(l)
		}
	}
}

func (c *Container) loadGroup(n *node, h *object.Header) error {
	gi := h.GroupInfo()
	li := h.LinkInfo()
	if gi == nil || li == nil {
		return fmt.Errorf("group without link info")
	}
	g := newGroupState(int(gi.MaxCompact), int(gi.MinDense))
	g.nextOrder = li.NextOrder
	n.grp = g
	if !li.Dense {
		g.compact = h.Links()
		return nil
	}

	block, err := c.file.ReadAt(li.IndexAddr, li.IndexSize)
	if err != nil {
		return err
	}
	names, err := btree.Decode(block, btree.DefaultDegree, func(b []byte) (*message.Link, error) {
		return message.ParseLink(b, c.bcfg)
	})
	if err != nil {
		return fmt.Errorf("link index at %d: %w", li.IndexAddr, err)
	}
	g.dense = true
	g.names = names
	g.orders = btree.New[*message.Link](btree.DefaultDegree)
	names.Ascend("", func(_ string, l *message.Link) bool {
		g.orders.Set(orderKey(l.CreationOrder), l)
		return true
	})
	g.indexAddr, g.indexSize = li.IndexAddr, li.IndexSize
	return nil
}

// flushLinkIndex rewrites the name index record of a dense group.
func (c *Container) flushLinkIndex(g *groupState) error {
	if !g.indexDirty {
		return nil
	}
	c.releaseLinkIndex(g)
	if g.dense {
		block := btree.Encode(g.names, func(l *message.Link) []byte {
			return message.Marshal(l, c.bcfg)
		})
		addr, err := c.file.Put(block, "link-index")
		if err != nil {
			return err
		}
		g.indexAddr, g.indexSize = addr, uint64(len(block))
	}
	g.indexDirty = false
	return nil
}

func (c *Container) releaseLinkIndex(g *groupState) {
	if g.indexAddr != 0 {
		c.file.Free(g.indexAddr, g.indexSize)
		g.indexAddr, g.indexSize = 0, 0
	}
}

// addLink inserts a link into group n, logging storage transitions.
func (c *Container) addLink(n *node, l *message.Link) {
	if n.grp.insert(l) {
		c.metrics.GroupTransition("dense")
		c.log.Debugw("group storage changed", "id", n.id, "state", StateDense, "links", n.grp.count())
	}
	c.touch(n)
}

// removeLink deletes the link called name from group n.
func (c *Container) removeLink(n *node, name string) (*message.Link, bool) {
	l, demoted := n.grp.remove(name)
	if l == nil {
		return nil, false
	}
	if demoted {
		c.metrics.GroupTransition("compact")
		c.log.Debugw("group storage changed", "id", n.id, "state", StateCompact, "links", n.grp.count())
	}
	c.touch(n)
	return l, true
}

func validName(name string) error {
	switch {
	case name == "", name == ".":
		return errs.New(errs.ErrPathNotFound, "invalid link name %q", name)
	case strings.Contains(name, "/"):
		return errs.New(errs.ErrPathNotFound, "link name %q contains '/'", name)
	}
	return nil
}

func validThresholds(maxCompact, minDense int) error {
	if maxCompact < 1 || maxCompact > 65535 || minDense < 0 || minDense >= maxCompact {
		return errs.New(errs.ErrInvalidConfig, "link thresholds max_compact=%d min_dense=%d", maxCompact, minDense)
	}
	return nil
}

// resolve walks path from start, or from the root when path is absolute,
// following soft links. It returns the object and the path it was reached
// by.
func (c *Container) resolve(start *node, base, path string, depth int) (*node, string, error) {
	cur, curPath := start, base
	if strings.HasPrefix(path, "/") {
		root, err := c.node(c.sb.RootID)
		if err != nil {
			return nil, "", err
		}
		cur, curPath = root, "/"
	}
	for _, part := range SplitPath(path) {
		next, nextPath, err := c.child(cur, curPath, part, depth)
		if err != nil {
			return nil, "", err
		}
		cur, curPath = next, nextPath
	}
	return cur, curPath, nil
}

// child resolves one path component inside group n.
func (c *Container) child(n *node, base, name string, depth int) (*node, string, error) {
	if n.kind != object.KindGroup {
		return nil, "", errs.New(errs.ErrTypeMismatch, "%s is a %s, not a group", base, n.kind)
	}
	l, ok := n.grp.lookup(name)
	p := joinPath(base, name)
	if !ok {
		return nil, "", errs.New(errs.ErrPathNotFound, "%s does not exist", p)
	}
	if l.Kind == message.LinkHard {
		target, err := c.node(l.Object)
		return target, p, err
	}
	if depth >= MaxLinkDepth {
		return nil, "", errs.New(errs.ErrPathNotFound, "%s: more than %d soft links", p, MaxLinkDepth)
	}
	target, _, err := c.resolve(n, base, l.Target, depth+1)
	if err != nil {
		if isKind(err, errs.ErrPathNotFound) {
			return nil, "", errs.New(errs.ErrPathNotFound, "soft link %s -> %s is dangling: %v", p, l.Target, err)
		}
		return nil, "", err
	}
	return target, p, nil
}

// parentOf resolves all but the last component of path from g and returns
// the containing group, its path and the final name.
func (c *Container) parentOf(g *handle, path string) (*node, string, string, error) {
	dir, name := splitDir(path)
	if err := validName(name); err != nil {
		return nil, "", "", err
	}
	prefix := strings.Join(dir, "/")
	if strings.HasPrefix(path, "/") {
		prefix = "/" + prefix
	}
	parent, parentPath, err := c.resolve(g.n, g.path, prefix, 0)
	if err != nil {
		return nil, "", "", err
	}
	if parent.kind != object.KindGroup {
		return nil, "", "", errs.New(errs.ErrTypeMismatch, "%s is a %s, not a group", parentPath, parent.kind)
	}
	return parent, parentPath, name, nil
}

// CreateGroup creates a group. name may be a path; with WithIntermediates
// missing groups along it are created too, otherwise they must exist.
func (g *Group) CreateGroup(name string, opts ...GroupOption) (*Group, error) {
	o := &groupOptions{maxCompact: -1}
	for _, opt := range opts {
		opt(o)
	}
	c := g.c
	unlock, err := g.enter()
	if err != nil {
		return nil, errs.Wrap(err, "create group", name)
	}
	defer unlock()

	p := joinPath(g.path, name)
	if strings.HasPrefix(name, "/") {
		p = CleanPath(name)
	}
	grp, err := c.createGroup(&g.handle, name, o)
	if err != nil {
		return nil, errs.Wrap(err, "create group", p)
	}
	return grp, nil
}

func (c *Container) createGroup(g *handle, path string, o *groupOptions) (*Group, error) {
	if err := c.checkWritable(); err != nil {
		return nil, err
	}
	maxCompact, minDense := c.cfg.Groups.MaxCompact, c.cfg.Groups.MinDense
	if o.maxCompact >= 0 {
		maxCompact, minDense = o.maxCompact, o.minDense
	}
	if err := validThresholds(maxCompact, minDense); err != nil {
		return nil, err
	}

	dir, name := splitDir(path)
	if err := validName(name); err != nil {
		return nil, err
	}
	cur, curPath := g.n, g.path
	if strings.HasPrefix(path, "/") {
		root, err := c.node(c.sb.RootID)
		if err != nil {
			return nil, err
		}
		cur, curPath = root, "/"
	}
	for _, part := range dir {
		if cur.kind != object.KindGroup {
			return nil, errs.New(errs.ErrTypeMismatch, "%s is a %s, not a group", curPath, cur.kind)
		}
		if _, ok := cur.grp.lookup(part); !ok && o.intermediates {
			mid := c.newGroupNode(c.cfg.Groups.MaxCompact, c.cfg.Groups.MinDense)
			c.linkHard(cur, part, mid)
			cur, curPath = mid, joinPath(curPath, part)
			continue
		}
		next, nextPath, err := c.child(cur, curPath, part, 0)
		if err != nil {
			return nil, err
		}
		cur, curPath = next, nextPath
	}
	if cur.kind != object.KindGroup {
		return nil, errs.New(errs.ErrTypeMismatch, "%s is a %s, not a group", curPath, cur.kind)
	}
	if _, ok := cur.grp.lookup(name); ok {
		return nil, errs.New(errs.ErrNameExists, "%s already exists", joinPath(curPath, name))
	}
	n := c.newGroupNode(maxCompact, minDense)
	c.linkHard(cur, name, n)
	return &Group{handle: c.acquire(n, joinPath(curPath, name))}, nil
}

func (c *Container) newGroupNode(maxCompact, minDense int) *node {
	n := c.newNode(object.KindGroup)
	n.grp = newGroupState(maxCompact, minDense)
	return n
}

// linkHard adds a hard link to target inside group parent.
func (c *Container) linkHard(parent *node, name string, target *node) {
	c.addLink(parent, &message.Link{Name: name, Kind: message.LinkHard, Object: target.id})
	target.refs++
	c.touch(target)
}

// OpenGroup opens a group by a path relative to g, or absolute.
func (g *Group) OpenGroup(path string) (*Group, error) {
	obj, err := g.open(path, object.KindGroup, "open group")
	if err != nil {
		return nil, err
	}
	return obj.(*Group), nil
}

// OpenDataset opens a dataset by a path relative to g, or absolute.
func (g *Group) OpenDataset(path string) (*Dataset, error) {
	obj, err := g.open(path, object.KindDataset, "open dataset")
	if err != nil {
		return nil, err
	}
	return obj.(*Dataset), nil
}

// OpenType opens a committed datatype by a path relative to g, or absolute.
func (g *Group) OpenType(path string) (*NamedType, error) {
	obj, err := g.open(path, object.KindDatatype, "open type")
	if err != nil {
		return nil, err
	}
	return obj.(*NamedType), nil
}

// OpenObject opens whatever object path names.
func (g *Group) OpenObject(path string) (Object, error) {
	return g.open(path, 0, "open object")
}

func (g *Group) open(path string, kind object.Kind, op string) (Object, error) {
	unlock, err := g.enter()
	if err != nil {
		return nil, errs.Wrap(err, op, path)
	}
	defer unlock()
	obj, err := g.c.openFrom(g.n, g.path, path, kind)
	return obj, errs.Wrap(err, op, path)
}

// Exists reports whether path resolves to an object.
func (g *Group) Exists(path string) (bool, error) {
	unlock, err := g.enter()
	if err != nil {
		return false, errs.Wrap(err, "exists", path)
	}
	defer unlock()
	_, _, err = g.c.resolve(g.n, g.path, path, 0)
	if isKind(err, errs.ErrPathNotFound) {
		return false, nil
	}
	return err == nil, errs.Wrap(err, "exists", path)
}

// DeleteLink removes a link. When it was the last hard link to an object
// that no handle holds, the object's storage is reclaimed, together with
// children reachable only through it.
func (g *Group) DeleteLink(name string) error {
	c := g.c
	unlock, err := g.enter()
	if err != nil {
		return errs.Wrap(err, "delete link", name)
	}
	defer unlock()
	if err := c.checkWritable(); err != nil {
		return errs.Wrap(err, "delete link", name)
	}
	parent, parentPath, base, err := c.parentOf(&g.handle, name)
	if err != nil {
		return errs.Wrap(err, "delete link", name)
	}
	p := joinPath(parentPath, base)
	l, ok := c.removeLink(parent, base)
	if !ok {
		return errs.Wrap(errs.New(errs.ErrPathNotFound, "%s does not exist", p), "delete link", p)
	}
	if l.Kind == message.LinkHard {
		return errs.Wrap(c.unrefID(l.Object), "delete link", p)
	}
	return nil
}

// CreateHardLink adds name as another link to obj, which must belong to
// the same container.
func (g *Group) CreateHardLink(name string, obj Object) error {
	c := g.c
	unlock, err := g.enter()
	if err != nil {
		return errs.Wrap(err, "create hard link", name)
	}
	defer unlock()
	if err := c.checkWritable(); err != nil {
		return errs.Wrap(err, "create hard link", name)
	}
	target := obj.common()
	if target.c != c {
		return errs.Wrap(errs.New(errs.ErrTypeMismatch, "object belongs to another container"), "create hard link", name)
	}
	if err := target.check(); err != nil {
		return errs.Wrap(err, "create hard link", name)
	}
	parent, parentPath, base, err := c.parentOf(&g.handle, name)
	if err != nil {
		return errs.Wrap(err, "create hard link", name)
	}
	if _, ok := parent.grp.lookup(base); ok {
		return errs.Wrap(errs.New(errs.ErrNameExists, "%s already exists", joinPath(parentPath, base)), "create hard link", name)
	}
	c.linkHard(parent, base, target.n)
	return nil
}

// CreateSoftLink adds name as a symbolic link to target, a path resolved
// relative to the group holding the link each time it is followed. The
// target need not exist.
func (g *Group) CreateSoftLink(name, target string) error {
	c := g.c
	unlock, err := g.enter()
	if err != nil {
		return errs.Wrap(err, "create soft link", name)
	}
	defer unlock()
	if err := c.checkWritable(); err != nil {
		return errs.Wrap(err, "create soft link", name)
	}
	if target == "" {
		return errs.Wrap(errs.New(errs.ErrPathNotFound, "empty soft link target"), "create soft link", name)
	}
	parent, parentPath, base, err := c.parentOf(&g.handle, name)
	if err != nil {
		return errs.Wrap(err, "create soft link", name)
	}
	if _, ok := parent.grp.lookup(base); ok {
		return errs.Wrap(errs.New(errs.ErrNameExists, "%s already exists", joinPath(parentPath, base)), "create soft link", name)
	}
	c.addLink(parent, &message.Link{Name: base, Kind: message.LinkSoft, Target: target})
	return nil
}

// Link describes the link called name.
func (g *Group) Link(name string) (LinkInfo, error) {
	unlock, err := g.enter()
	if err != nil {
		return LinkInfo{}, errs.Wrap(err, "link", name)
	}
	defer unlock()
	l, ok := g.n.grp.lookup(name)
	if !ok {
		return LinkInfo{}, errs.Wrap(errs.New(errs.ErrPathNotFound, "%s does not exist", joinPath(g.path, name)), "link", name)
	}
	return linkInfo(l), nil
}

// NumLinks returns the number of links in the group.
func (g *Group) NumLinks() (int, error) {
	unlock, err := g.enter()
	if err != nil {
		return 0, errs.Wrap(err, "num links", g.path)
	}
	defer unlock()
	return g.n.grp.count(), nil
}

// StorageState reports whether the group's links are stored compactly or
// densely.
func (g *Group) StorageState() (StorageState, error) {
	unlock, err := g.enter()
	if err != nil {
		return 0, errs.Wrap(err, "storage state", g.path)
	}
	defer unlock()
	return g.n.grp.state(), nil
}

// Links returns the links in the given order starting at index start. The
// sequence works on a snapshot taken when iteration begins, so links added
// or deleted meanwhile are not seen. It stops silently if the handle goes
// stale before the first pull; use IterateLinks to observe that error.
func (g *Group) Links(order IndexOrder, dir Direction, start int) iter.Seq2[int, LinkInfo] {
	return func(yield func(int, LinkInfo) bool) {
		links, err := g.snapshot(order, dir)
		if err != nil {
			return
		}
		for i := max(start, 0); i < len(links); i++ {
			if !yield(i, links[i]) {
				return
			}
		}
	}
}

// IterateLinks calls fn for each link from index start on, and returns the
// index after the last link visited. An error from fn, including
// ErrStopWalk, stops the iteration and is returned unchanged.
func (g *Group) IterateLinks(order IndexOrder, dir Direction, start int, fn func(i int, l LinkInfo) error) (int, error) {
	links, err := g.snapshot(order, dir)
	if err != nil {
		return start, errs.Wrap(err, "iterate links", g.path)
	}
	i := max(start, 0)
	for ; i < len(links); i++ {
		if err := fn(i, links[i]); err != nil {
			return i + 1, err
		}
	}
	return i, nil
}

func (g *Group) snapshot(order IndexOrder, dir Direction) ([]LinkInfo, error) {
	unlock, err := g.enter()
	if err != nil {
		return nil, err
	}
	defer unlock()
	links := g.n.grp.list(order, dir)
	out := make([]LinkInfo, len(links))
	for i, l := range links {
		out[i] = linkInfo(l)
	}
	return out, nil
}

// CommitType stores t as a named, shareable datatype. Datasets and
// attributes created with the returned handle's Type share it.
func (g *Group) CommitType(name string, t *Type) (*NamedType, error) {
	c := g.c
	unlock, err := g.enter()
	if err != nil {
		return nil, errs.Wrap(err, "commit type", name)
	}
	defer unlock()
	if err := c.checkWritable(); err != nil {
		return nil, errs.Wrap(err, "commit type", name)
	}
	if t == nil {
		return nil, errs.Wrap(errs.New(errs.ErrTypeMismatch, "nil type"), "commit type", name)
	}
	parent, parentPath, base, err := c.parentOf(&g.handle, name)
	if err != nil {
		return nil, errs.Wrap(err, "commit type", name)
	}
	p := joinPath(parentPath, base)
	if _, ok := parent.grp.lookup(base); ok {
		return nil, errs.Wrap(errs.New(errs.ErrNameExists, "%s already exists", p), "commit type", p)
	}

	n := c.newNode(object.KindDatatype)
	n.dt = t.Clone()
	n.dt.Lock()
	c.committed[n.dt] = n.id
	c.linkHard(parent, base, n)
	return &NamedType{handle: c.acquire(n, p)}, nil
}

