package layout

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/robert-malhotra/go-hstore/internal/btree"
	"github.com/robert-malhotra/go-hstore/internal/errs"
	"github.com/robert-malhotra/go-hstore/internal/message"
	"github.com/robert-malhotra/go-hstore/internal/space"
)

// chunkEntry locates one stored chunk.
type chunkEntry struct {
	Addr uint64
	Size uint64
	Mask uint32 // bit i set: filter i was skipped
}

const entrySize = 20

func encodeEntry(e chunkEntry) []byte {
	b := make([]byte, entrySize)
	binary.LittleEndian.PutUint64(b[0:], e.Addr)
	binary.LittleEndian.PutUint64(b[8:], e.Size)
	binary.LittleEndian.PutUint32(b[16:], e.Mask)
	return b
}

func decodeEntry(b []byte) (chunkEntry, error) {
	if len(b) != entrySize {
		return chunkEntry{}, fmt.Errorf("chunk entry of %d bytes", len(b))
	}
	return chunkEntry{
		Addr: binary.LittleEndian.Uint64(b[0:]),
		Size: binary.LittleEndian.Uint64(b[8:]),
		Mask: binary.LittleEndian.Uint32(b[16:]),
	}, nil
}

// chunkKey encodes chunk-grid coordinates so that byte order is row-major
// order.
func chunkKey(grid []uint64) string {
	b := make([]byte, 8*len(grid))
	for i, g := range grid {
		binary.BigEndian.PutUint64(b[8*i:], g)
	}
	return string(b)
}

func parseKey(k string) []uint64 {
	grid := make([]uint64, len(k)/8)
	for i := range grid {
		grid[i] = binary.BigEndian.Uint64([]byte(k[8*i : 8*i+8]))
	}
	return grid
}

// ChunkInfo describes one allocated chunk.
type ChunkInfo struct {
	Offset     []uint64 // element coordinates of the chunk origin
	Addr       uint64
	Size       uint64 // stored (filtered) size
	FilterMask uint32
}

// Chunked stores the element grid as independently filtered chunks.
type Chunked struct {
	cfg        Config
	alloc      message.AllocTime
	chunk      []uint64
	strides    []uint64 // within a chunk
	chunkElems uint64
	chunkBytes uint64

	index     *btree.Tree[chunkEntry]
	indexAddr uint64
	indexSize uint64
	dirty     bool
}

func newChunked(msg *message.Layout, cfg Config, dims []uint64) (*Chunked, error) {
	if len(msg.Chunk) != len(dims) || len(dims) == 0 {
		return nil, errs.New(errs.ErrDimensionMismatch, "chunk rank %d for dataset rank %d", len(msg.Chunk), len(dims))
	}
	for i, c := range msg.Chunk {
		if c == 0 {
			return nil, errs.New(errs.ErrDimensionMismatch, "chunk dimension %d is zero", i)
		}
	}
	c := &Chunked{
		cfg:        cfg,
		alloc:      msg.AllocTime,
		chunk:      append([]uint64(nil), msg.Chunk...),
		strides:    strides(msg.Chunk),
		chunkElems: product(msg.Chunk),
		indexAddr:  msg.IndexAddr,
		indexSize:  msg.IndexSize,
	}
	c.chunkBytes = c.chunkElems * uint64(cfg.ElemSize)
	if c.chunkBytes > 1<<32-1 {
		return nil, errs.New(errs.ErrDimensionMismatch, "chunk of %d bytes exceeds 4 GiB", c.chunkBytes)
	}
	if c.indexAddr == 0 {
		c.index = btree.New[chunkEntry](btree.DefaultDegree)
		return c, nil
	}
	block, err := cfg.File.ReadAt(c.indexAddr, c.indexSize)
	if err != nil {
		return nil, err
	}
	if c.index, err = btree.Decode(block, btree.DefaultDegree, decodeEntry); err != nil {
		return nil, errs.IO(fmt.Errorf("chunk index at %d: %w", c.indexAddr, err))
	}
	return c, nil
}

func (c *Chunked) Class() message.LayoutClass { return message.LayoutChunked }

// ChunkDims returns the chunk shape.
func (c *Chunked) ChunkDims() []uint64 { return append([]uint64(nil), c.chunk...) }

// NumChunks returns the number of allocated chunks.
func (c *Chunked) NumChunks() int { return c.index.Len() }

// piece is a run of elements that stays inside one chunk.
type piece struct {
	off uint64 // element offset inside the chunk
	buf uint64 // element offset inside the packed buffer
	n   uint64
}

// chunkWork collects the pieces of a selection that fall into one chunk.
type chunkWork struct {
	key     string
	grid    []uint64
	pieces  []piece
	covered uint64
}

func (w *chunkWork) origin(chunk []uint64) []uint64 {
	o := make([]uint64, len(w.grid))
	for i := range o {
		o[i] = w.grid[i] * chunk[i]
	}
	return o
}

// partition splits the selection runs at chunk boundaries and groups them
// by chunk, in row-major chunk order.
func (c *Chunked) partition(sel *space.Space) []*chunkWork {
	rank := len(c.chunk)
	last := rank - 1
	byKey := make(map[string]*chunkWork)
	var order []*chunkWork

	grid := make([]uint64, rank)
	in := make([]uint64, rank)
	var pos uint64
	for _, r := range sel.Runs() {
		coord := append([]uint64(nil), r.Coord...)
		for remaining := r.Len; remaining > 0; {
			for d := range coord {
				grid[d] = coord[d] / c.chunk[d]
				in[d] = coord[d] % c.chunk[d]
			}
			n := min(remaining, c.chunk[last]-in[last])
			key := chunkKey(grid)
			w, ok := byKey[key]
			if !ok {
				w = &chunkWork{key: key, grid: append([]uint64(nil), grid...)}
				byKey[key] = w
				order = append(order, w)
			}
			w.pieces = append(w.pieces, piece{off: linear(in, c.strides), buf: pos, n: n})
			w.covered += n
			pos += n
			remaining -= n
			coord[last] += n
		}
	}
	sortWork(order)
	return order
}

func sortWork(ws []*chunkWork) {
	// Insertion sort keeps already ordered input (the common case) linear.
	for i := 1; i < len(ws); i++ {
		for j := i; j > 0 && ws[j].key < ws[j-1].key; j-- {
			ws[j], ws[j-1] = ws[j-1], ws[j]
		}
	}
}

func (c *Chunked) cacheKey(key string) cacheKey {
	return cacheKey{object: c.cfg.Object, chunk: key}
}

// load returns decoded chunks for the given works, indexed like works.
// Works without an index entry get a fill chunk when withFill is set and nil
// otherwise. Cached chunks are returned as is and must not be modified.
func (c *Chunked) load(works []*chunkWork, withFill bool) ([][]byte, error) {
	out := make([][]byte, len(works))
	type pending struct {
		i     int
		entry chunkEntry
		raw   []byte
	}
	var todo []pending
	for i, w := range works {
		e, ok := c.index.Get(w.key)
		if !ok {
			if withFill {
				out[i] = fillBuffer(c.cfg.Fill, c.chunkElems)
			}
			continue
		}
		if b, hit := c.cfg.Cache.get(c.cacheKey(w.key)); hit {
			c.cfg.Metrics.CacheLookup(true)
			out[i] = b
			continue
		}
		c.cfg.Metrics.CacheLookup(false)
		raw, err := c.cfg.File.ReadAt(e.Addr, e.Size)
		if err != nil {
			return nil, withCoords(err, w.origin(c.chunk))
		}
		c.cfg.Metrics.ChunkRead()
		todo = append(todo, pending{i: i, entry: e, raw: raw})
	}

	var g errgroup.Group
	g.SetLimit(c.cfg.Concurrency)
	for _, p := range todo {
		g.Go(func() error {
			w := works[p.i]
			data, err := c.cfg.Pipeline.Decode(p.raw, p.entry.Mask)
			if err != nil {
				return withCoords(err, w.origin(c.chunk))
			}
			if uint64(len(data)) != c.chunkBytes {
				return errs.At(errs.ErrFilterData, w.origin(c.chunk), "chunk decoded to %d bytes, want %d", len(data), c.chunkBytes)
			}
			out[p.i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, p := range todo {
		c.cfg.Cache.add(c.cacheKey(works[p.i].key), out[p.i])
	}
	return out, nil
}

func withCoords(err error, coords []uint64) error {
	if e, ok := err.(*errs.Error); ok && e.Coords == nil {
		out := *e
		out.Coords = coords
		return &out
	}
	return err
}

// store encodes the given chunks in parallel and writes them, replacing
// any previous copy.
func (c *Chunked) store(works []*chunkWork, bufs [][]byte) error {
	if err := c.cfg.Pipeline.CanEncode(); err != nil {
		return err
	}
	encoded := make([][]byte, len(works))
	masks := make([]uint32, len(works))
	var g errgroup.Group
	g.SetLimit(c.cfg.Concurrency)
	for i := range works {
		g.Go(func() error {
			data, mask, err := c.cfg.Pipeline.Encode(bufs[i])
			if err != nil {
				return withCoords(err, works[i].origin(c.chunk))
			}
			encoded[i], masks[i] = data, mask
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, w := range works {
		if masks[i] != 0 {
			c.cfg.Logger.Warnw("optional filter skipped", "object", c.cfg.Object, "chunk", w.grid, "mask", masks[i])
		}
		if err := c.put(w.key, encoded[i], masks[i]); err != nil {
			return withCoords(err, w.origin(c.chunk))
		}
		c.cfg.Cache.add(c.cacheKey(w.key), bufs[i])
	}
	return nil
}

func (c *Chunked) put(key string, data []byte, mask uint32) error {
	if old, ok := c.index.Get(key); ok {
		c.cfg.File.Free(old.Addr, old.Size)
	}
	addr, err := c.cfg.File.Put(data, "chunk")
	if err != nil {
		c.index.Delete(key)
		c.cfg.Cache.remove(c.cacheKey(key))
		c.dirty = true
		return err
	}
	c.index.Set(key, chunkEntry{Addr: addr, Size: uint64(len(data)), Mask: mask})
	c.dirty = true
	c.cfg.Metrics.ChunkWritten()
	return nil
}

func (c *Chunked) drop(key string) {
	if e, ok := c.index.Delete(key); ok {
		c.cfg.File.Free(e.Addr, e.Size)
		c.dirty = true
	}
	c.cfg.Cache.remove(c.cacheKey(key))
}

func (c *Chunked) Read(sel *space.Space, dims []uint64) ([]byte, error) {
	es := uint64(c.cfg.ElemSize)
	out := make([]byte, sel.SelectedCount()*es)
	works := c.partition(sel)
	chunks, err := c.load(works, false)
	if err != nil {
		return nil, err
	}
	for i, w := range works {
		for _, p := range w.pieces {
			dst := out[p.buf*es : (p.buf+p.n)*es]
			if chunks[i] == nil {
				fillInto(dst, c.cfg.Fill)
				continue
			}
			copy(dst, chunks[i][p.off*es:])
		}
	}
	return out, nil
}

func (c *Chunked) Write(sel *space.Space, dims []uint64, data []byte) error {
	if err := checkBuffer(sel, data, c.cfg.ElemSize); err != nil {
		return err
	}
	if err := c.cfg.Pipeline.CanEncode(); err != nil {
		return err
	}
	es := uint64(c.cfg.ElemSize)
	works := c.partition(sel)

	// Chunks the write covers completely need no prior contents.
	var partial []*chunkWork
	var partialIdx []int
	bufs := make([][]byte, len(works))
	for i, w := range works {
		if w.covered == c.chunkElems {
			bufs[i] = make([]byte, c.chunkBytes)
			continue
		}
		partial = append(partial, w)
		partialIdx = append(partialIdx, i)
	}
	loaded, err := c.load(partial, true)
	if err != nil {
		return err
	}
	for j, i := range partialIdx {
		// Cached buffers are shared; modify a copy.
		bufs[i] = append([]byte(nil), loaded[j]...)
	}

	for i, w := range works {
		for _, p := range w.pieces {
			copy(bufs[i][p.off*es:(p.off+p.n)*es], data[p.buf*es:(p.buf+p.n)*es])
		}
	}
	return c.store(works, bufs)
}

// gridExtent returns the number of chunks along each dimension.
func (c *Chunked) gridExtent(dims []uint64) []uint64 {
	g := make([]uint64, len(dims))
	for d := range dims {
		g[d] = (dims[d] + c.chunk[d] - 1) / c.chunk[d]
	}
	return g
}

// Allocate materializes every missing chunk of the extent with the fill
// value.
func (c *Chunked) Allocate(dims []uint64) error {
	ext := c.gridExtent(dims)
	if product(ext) == 0 {
		return nil
	}
	if err := c.cfg.Pipeline.CanEncode(); err != nil {
		return err
	}
	fill := fillBuffer(c.cfg.Fill, c.chunkElems)
	encoded, mask, err := c.cfg.Pipeline.Encode(fill)
	if err != nil {
		return err
	}

	grid := make([]uint64, len(dims))
	count := 0
	for {
		key := chunkKey(grid)
		if _, ok := c.index.Get(key); !ok {
			if err := c.put(key, encoded, mask); err != nil {
				return err
			}
			count++
		}
		// Advance the grid odometer, last dimension fastest.
		d := len(grid) - 1
		for ; d >= 0; d-- {
			grid[d]++
			if grid[d] < ext[d] {
				break
			}
			grid[d] = 0
		}
		if d < 0 {
			break
		}
	}
	if count > 0 {
		c.cfg.Logger.Debugw("allocated chunks", "object", c.cfg.Object, "count", count)
	}
	return nil
}

// Resize drops chunks that lie wholly outside newDims and resets the
// elements of straddling chunks that fall outside newDims to the fill value,
// so a later extension exposes fill rather than stale data.
func (c *Chunked) Resize(oldDims, newDims []uint64) error {
	if len(newDims) != len(c.chunk) {
		return errs.New(errs.ErrDimensionMismatch, "resize to rank %d, dataset rank %d", len(newDims), len(c.chunk))
	}
	var outside []string
	var straddle []*chunkWork
	c.index.Ascend("", func(key string, _ chunkEntry) bool {
		grid := parseKey(key)
		out, cut := false, false
		for d := range grid {
			lo := grid[d] * c.chunk[d]
			if lo >= newDims[d] {
				out = true
				break
			}
			if newDims[d] < min(lo+c.chunk[d], oldDims[d]) {
				cut = true
			}
		}
		switch {
		case out:
			outside = append(outside, key)
		case cut:
			straddle = append(straddle, &chunkWork{key: key, grid: grid})
		}
		return true
	})

	for _, key := range outside {
		c.drop(key)
	}
	if len(outside) > 0 {
		c.cfg.Logger.Debugw("dropped chunks outside extent", "object", c.cfg.Object, "count", len(outside))
	}

	if len(straddle) > 0 {
		loaded, err := c.load(straddle, true)
		if err != nil {
			return err
		}
		bufs := make([][]byte, len(straddle))
		for i, w := range straddle {
			bufs[i] = append([]byte(nil), loaded[i]...)
			c.clearOutside(bufs[i], w.origin(c.chunk), newDims)
		}
		if err := c.store(straddle, bufs); err != nil {
			return err
		}
	}

	if c.alloc == message.AllocEarly {
		return c.Allocate(newDims)
	}
	return nil
}

// clearOutside sets the elements of a chunk buffer that lie at or beyond
// dims to the fill value.
func (c *Chunked) clearOutside(buf []byte, origin, dims []uint64) {
	es := uint64(c.cfg.ElemSize)
	rank := len(c.chunk)
	in := make([]uint64, rank)
	for i := uint64(0); i < c.chunkElems; i++ {
		rem := i
		outside := false
		for d := 0; d < rank; d++ {
			in[d] = rem / c.strides[d]
			rem %= c.strides[d]
			if origin[d]+in[d] >= dims[d] {
				outside = true
			}
		}
		if outside {
			copy(buf[i*es:(i+1)*es], c.cfg.Fill)
		}
	}
}

func (c *Chunked) Message() *message.Layout {
	return &message.Layout{
		Class:     message.LayoutChunked,
		AllocTime: c.alloc,
		Chunk:     append([]uint64(nil), c.chunk...),
		IndexAddr: c.indexAddr,
		IndexSize: c.indexSize,
	}
}

// Flush rewrites the chunk index record if it changed.
func (c *Chunked) Flush() error {
	if !c.dirty {
		return nil
	}
	if c.indexAddr != 0 {
		c.cfg.File.Free(c.indexAddr, c.indexSize)
		c.indexAddr, c.indexSize = 0, 0
	}
	if c.index.Len() > 0 {
		block := btree.Encode(c.index, encodeEntry)
		addr, err := c.cfg.File.Put(block, "chunk-index")
		if err != nil {
			return err
		}
		c.indexAddr, c.indexSize = addr, uint64(len(block))
	}
	c.dirty = false
	return nil
}

// Release frees every chunk and the index record.
func (c *Chunked) Release() {
	var keys []string
	c.index.Ascend("", func(key string, _ chunkEntry) bool {
		keys = append(keys, key)
		return true
	})
	for _, key := range keys {
		c.drop(key)
	}
	if c.indexAddr != 0 {
		c.cfg.File.Free(c.indexAddr, c.indexSize)
		c.indexAddr, c.indexSize = 0, 0
	}
	c.dirty = false
}

func (c *Chunked) StorageSize() uint64 {
	var n uint64
	c.index.Ascend("", func(_ string, e chunkEntry) bool {
		n += e.Size
		return true
	})
	return n
}

// Chunks lists the allocated chunks in row-major order.
func (c *Chunked) Chunks() []ChunkInfo {
	var out []ChunkInfo
	c.index.Ascend("", func(key string, e chunkEntry) bool {
		grid := parseKey(key)
		for d := range grid {
			grid[d] *= c.chunk[d]
		}
		out = append(out, ChunkInfo{Offset: grid, Addr: e.Addr, Size: e.Size, FilterMask: e.Mask})
		return true
	})
	return out
}
