package hstore

import (
	"errors"
	"path/filepath"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/robert-malhotra/go-hstore/internal/alloc"
	"github.com/robert-malhotra/go-hstore/internal/binary"
	"github.com/robert-malhotra/go-hstore/internal/config"
	"github.com/robert-malhotra/go-hstore/internal/dtype"
	"github.com/robert-malhotra/go-hstore/internal/errs"
	"github.com/robert-malhotra/go-hstore/internal/heap"
	"github.com/robert-malhotra/go-hstore/internal/layout"
	"github.com/robert-malhotra/go-hstore/internal/metrics"
	"github.com/robert-malhotra/go-hstore/internal/object"
	"github.com/robert-malhotra/go-hstore/internal/storage"
	"github.com/robert-malhotra/go-hstore/internal/superblock"
)

// Container is an open container file. All methods, and the methods of the
// handles derived from it, are safe for concurrent use; they serialize on
// one container-wide mutex.
type Container struct {
	mu sync.Mutex

	path     string
	dir      string
	file     *storage.File
	sb       *superblock.Superblock
	bcfg     binary.Config
	heap     *heap.Heap
	table    object.Table
	nodes    map[uint64]*node
	writable bool

	// committed maps the Type of each loaded committed datatype to its
	// object, so datasets and attributes created with it share it.
	committed map[*dtype.Type]uint64

	cfg     *config.Config
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
	cache   *layout.Cache

	handles int
	dirty   bool
	closed  bool
}

// Stats summarizes a container's file space and objects.
type Stats struct {
	FileSize    uint64 // logical end of file
	FreeBytes   uint64 // reusable space inside the file
	FreeBlocks  int
	Objects     int
	OpenHandles int
	CachedChunk int
	Alloc       alloc.Stats
}

// Create creates a container at path, truncating any existing file.
func Create(path string, opts ...ContainerOption) (*Container, error) {
	o, err := applyOptions(opts)
	if err != nil {
		return nil, errs.Wrap(err, "create", path)
	}

	f, err := storage.Create(path)
	if err != nil {
		return nil, errs.Wrap(err, "create", path)
	}

	bcfg := binary.DefaultConfig()
	bcfg.OffsetSize = o.cfg.File.OffsetSize
	sb := superblock.New(bcfg)
	sb.Flags |= superblock.FlagWriterOpen
	f.SetAllocator(alloc.New(uint64(sb.Size())))

	c, err := newContainer(path, f, sb, object.Table{}, true, o)
	if err != nil {
		f.Close()
		return nil, errs.Wrap(err, "create", path)
	}

	// The root group is the first object and is never unlinked.
	root := c.newNode(object.KindGroup)
	c.sb.RootID = root.id
	root.refs = 1
	root.grp = newGroupState(o.cfg.Groups.MaxCompact, o.cfg.Groups.MinDense)

	if err := c.flush(); err != nil {
		f.Close()
		return nil, errs.Wrap(err, "create", path)
	}
	c.log.Debugw("created container", "id", sb.ID, "offset_size", bcfg.OffsetSize)
	return c, nil
}

// Open opens an existing container read-only.
func Open(path string, opts ...ContainerOption) (*Container, error) {
	return open(path, false, opts)
}

// OpenReadWrite opens an existing container for reading and writing.
func OpenReadWrite(path string, opts ...ContainerOption) (*Container, error) {
	return open(path, true, opts)
}

func open(path string, writable bool, opts []ContainerOption) (*Container, error) {
	o, err := applyOptions(opts)
	if err != nil {
		return nil, errs.Wrap(err, "open", path)
	}

	f, err := storage.Open(path, writable)
	if err != nil {
		return nil, errs.Wrap(err, "open", path)
	}
	c, err := attach(path, f, writable, o)
	if err != nil {
		f.Close()
		return nil, errs.Wrap(err, "open", path)
	}
	return c, nil
}

func attach(path string, f *storage.File, writable bool, o *containerOptions) (*Container, error) {
	sb, err := superblock.Read(f.ReaderAt())
	if err != nil {
		return nil, errs.IO(err)
	}
	bcfg := sb.Config()

	var free []alloc.Block
	if sb.FreeListAddress != 0 {
		block, err := f.ReadAt(sb.FreeListAddress, sb.FreeListSize)
		if err != nil {
			return nil, err
		}
		if free, err = alloc.DecodeFree(block, bcfg); err != nil {
			return nil, errs.IO(err)
		}
	}
	a, err := alloc.Restore(uint64(sb.Size()), sb.EOFAddress, free)
	if err != nil {
		return nil, errs.IO(err)
	}
	f.SetAllocator(a)

	block, err := f.ReadAt(sb.TableAddress, sb.TableSize)
	if err != nil {
		return nil, err
	}
	table, err := object.DecodeTable(block, bcfg)
	if err != nil {
		return nil, errs.IO(err)
	}

	c, err := newContainer(path, f, sb, table, writable, o)
	if err != nil {
		return nil, err
	}
	if _, err := c.node(sb.RootID); err != nil {
		return nil, err
	}

	if writable {
		if sb.Flags&superblock.FlagWriterOpen != 0 {
			c.log.Warnw("container was not closed cleanly or is open elsewhere")
		}
		sb.Flags |= superblock.FlagWriterOpen
		if err := f.WriteAt(0, sb.Encode()); err != nil {
			return nil, err
		}
		if err := f.Sync(); err != nil {
			return nil, err
		}
	}
	c.log.Debugw("opened container", "id", sb.ID, "writable", writable, "objects", len(table))
	return c, nil
}

func applyOptions(opts []ContainerOption) (*containerOptions, error) {
	o := defaultContainerOptions()
	for _, opt := range opts {
		opt(o)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, &errs.Error{Kind: errs.ErrInvalidConfig, Op: "configure", Err: err}
	}
	return o, nil
}

func newContainer(path string, f *storage.File, sb *superblock.Superblock, table object.Table, writable bool, o *containerOptions) (*Container, error) {
	logger := o.logger
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(o.cfg.Log.Level)); err == nil && logger.Core().Enabled(lvl) {
		logger = logger.WithOptions(zap.IncreaseLevel(lvl))
	}

	c := &Container{
		path:      path,
		dir:       filepath.Dir(path),
		file:      f,
		sb:        sb,
		bcfg:      sb.Config(),
		heap:      heap.New(f),
		table:     table,
		nodes:     make(map[uint64]*node),
		committed: make(map[*dtype.Type]uint64),
		writable:  writable,
		cfg:       o.cfg,
		log:       logger.Sugar().With("container", filepath.Base(path)),
		cache:     layout.NewCache(o.cfg.Chunks.CacheSize),
	}
	if o.registry != nil {
		m, err := metrics.New(o.registry, prometheus.Labels{"container": filepath.Base(path)})
		if err != nil {
			return nil, err
		}
		c.metrics = m
		f.SetMetrics(m)
	}
	return c, nil
}

// Path returns the file name the container was opened with.
func (c *Container) Path() string { return c.path }

// ID returns the identifier assigned when the container was created.
func (c *Container) ID() uuid.UUID { return c.sb.ID }

// Writable reports whether the container was opened for writing.
func (c *Container) Writable() bool { return c.writable }

// Root opens the root group.
func (c *Container) Root() (*Group, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.live(); err != nil {
		return nil, errs.Wrap(err, "open root", "/")
	}
	n, err := c.node(c.sb.RootID)
	if err != nil {
		return nil, errs.Wrap(err, "open root", "/")
	}
	return &Group{handle: c.acquire(n, "/")}, nil
}

// OpenGroup opens the group at an absolute path.
func (c *Container) OpenGroup(path string) (*Group, error) {
	obj, err := c.openPath(path, object.KindGroup, "open group")
	if err != nil {
		return nil, err
	}
	return obj.(*Group), nil
}

// OpenDataset opens the dataset at an absolute path.
func (c *Container) OpenDataset(path string) (*Dataset, error) {
	obj, err := c.openPath(path, object.KindDataset, "open dataset")
	if err != nil {
		return nil, err
	}
	return obj.(*Dataset), nil
}

// OpenType opens the committed datatype at an absolute path.
func (c *Container) OpenType(path string) (*NamedType, error) {
	obj, err := c.openPath(path, object.KindDatatype, "open type")
	if err != nil {
		return nil, err
	}
	return obj.(*NamedType), nil
}

// OpenObject opens whatever object is at an absolute path.
func (c *Container) OpenObject(path string) (Object, error) {
	return c.openPath(path, 0, "open object")
}

func (c *Container) openPath(path string, kind object.Kind, op string) (Object, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.live(); err != nil {
		return nil, errs.Wrap(err, op, path)
	}
	root, err := c.node(c.sb.RootID)
	if err != nil {
		return nil, errs.Wrap(err, op, path)
	}
	obj, err := c.openFrom(root, "/", CleanPath(path), kind)
	return obj, errs.Wrap(err, op, path)
}

// GetAttr reads the attribute named by an attribute path such as
// "/data@units". Scalar attributes return a single value, others a []any.
func (c *Container) GetAttr(attrPath string) (any, error) {
	objPath, name, err := ParseAttrPath(attrPath)
	if err != nil {
		return nil, errs.Wrap(errs.New(errs.ErrPathNotFound, "%v", err), "get attribute", attrPath)
	}
	obj, err := c.OpenObject(objPath)
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	v, err := obj.common().Attr(name)
	return v, errs.Wrap(err, "get attribute", attrPath)
}

// Flush writes all pending metadata to the file.
func (c *Container) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.live(); err != nil {
		return errs.Wrap(err, "flush", c.path)
	}
	return errs.Wrap(c.flush(), "flush", c.path)
}

// Close flushes and closes the container. Handles still open become stale,
// or with WithStrictClose, Close fails with ErrHandlesStillOpen and the
// container stays open.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	if c.cfg.File.StrictClose && c.handles > 0 {
		return errs.Wrap(errs.New(errs.ErrHandlesStillOpen, "%d handles open", c.handles), "close", c.path)
	}

	var err error
	if c.writable {
		// Objects unlinked while a handle kept them alive go now.
		for _, n := range c.sortedNodes() {
			if n.refs == 0 && !n.removed {
				if rerr := c.reclaim(n); rerr != nil && err == nil {
					err = rerr
				}
			}
		}
		c.sb.Flags &^= superblock.FlagWriterOpen
		c.dirty = true
		if ferr := c.flush(); ferr != nil && err == nil {
			err = ferr
		}
	}
	c.closed = true
	if cerr := c.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	c.log.Debugw("closed container", "open_handles", c.handles)
	return errs.Wrap(err, "close", c.path)
}

// Stats reports file space and object counts.
func (c *Container) Stats() (Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.live(); err != nil {
		return Stats{}, errs.Wrap(err, "stats", c.path)
	}
	a := c.file.Allocator()
	ids := make(map[uint64]struct{}, len(c.table))
	for id := range c.table {
		ids[id] = struct{}{}
	}
	for id, n := range c.nodes {
		if !n.removed {
			ids[id] = struct{}{}
		}
	}
	st := a.Stats()
	return Stats{
		FileSize:    a.EOFAddr(),
		FreeBytes:   st.FreeBytes,
		FreeBlocks:  len(a.FreeBlocks()),
		Objects:     len(ids),
		OpenHandles: c.handles,
		CachedChunk: c.cache.Len(),
		Alloc:       st,
	}, nil
}

func (c *Container) live() error {
	if c.closed {
		return errs.New(errs.ErrStaleHandle, "container is closed")
	}
	return nil
}

func (c *Container) checkWritable() error {
	if !c.writable {
		return errs.IO(storage.ErrReadOnly)
	}
	return nil
}

func (c *Container) sortedNodes() []*node {
	ids := make([]uint64, 0, len(c.nodes))
	for id := range c.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]*node, len(ids))
	for i, id := range ids {
		out[i] = c.nodes[id]
	}
	return out
}

// flush writes dirty object headers, then the object table, the free-space
// record and finally the superblock.
func (c *Container) flush() error {
	if !c.writable || !c.dirty {
		return nil
	}

	var headers int
	for _, n := range c.sortedNodes() {
		if n.removed {
			continue
		}
		wrote, err := c.flushNode(n)
		if err != nil {
			return err
		}
		if wrote {
			headers++
		}
	}

	if c.sb.TableAddress != 0 {
		c.file.Free(c.sb.TableAddress, c.sb.TableSize)
	}
	block := c.table.Encode(c.bcfg)
	addr, err := c.file.Put(block, "object-table")
	if err != nil {
		return err
	}
	c.sb.TableAddress, c.sb.TableSize = addr, uint64(len(block))

	// The record is sized before its own allocation, which can only merge
	// or consume free blocks.
	if c.sb.FreeListAddress != 0 {
		c.file.Free(c.sb.FreeListAddress, c.sb.FreeListSize)
	}
	a := c.file.Allocator()
	size := alloc.RecordSize(len(a.FreeBlocks()), c.bcfg)
	if addr, err = c.file.Alloc(size, "free-list"); err != nil {
		return err
	}
	if err := c.file.WriteAt(addr, alloc.EncodeFree(a.FreeBlocks(), c.bcfg, size)); err != nil {
		return err
	}
	c.sb.FreeListAddress, c.sb.FreeListSize = addr, size

	c.sb.EOFAddress = a.EOFAddr()
	c.metrics.FileSpace(c.sb.EOFAddress, a.Stats().FreeBytes)
	if err := c.file.WriteAt(0, c.sb.Encode()); err != nil {
		return err
	}
	if err := c.file.Sync(); err != nil {
		return err
	}
	c.dirty = false
	c.log.Debugw("flushed", "headers", headers, "objects", len(c.table), "eof", c.sb.EOFAddress)
	return nil
}

// openFrom resolves path from n and wraps the result in a handle. A zero
// kind accepts any object.
func (c *Container) openFrom(n *node, base, path string, kind object.Kind) (Object, error) {
	target, p, err := c.resolve(n, base, path, 0)
	if err != nil {
		return nil, err
	}
	if kind != 0 && target.kind != kind {
		return nil, errs.New(errs.ErrTypeMismatch, "%s is a %s, not a %s", p, target.kind, kind)
	}
	return c.wrap(target, p), nil
}

func isKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
