package layout

import (
	"encoding/binary"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/go-hstore/internal/alloc"
	"github.com/robert-malhotra/go-hstore/internal/errs"
	"github.com/robert-malhotra/go-hstore/internal/filter"
	"github.com/robert-malhotra/go-hstore/internal/message"
	"github.com/robert-malhotra/go-hstore/internal/space"
	"github.com/robert-malhotra/go-hstore/internal/storage"
)

func newFile() *storage.File {
	f := storage.New(storage.NewMemory(), true)
	f.SetAllocator(alloc.New(64))
	return f
}

func int32s(vals ...int32) []byte {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(b[4*i:], uint32(v))
	}
	return b
}

func repeat(v int32, n int) []byte {
	vals := make([]int32, n)
	for i := range vals {
		vals[i] = v
	}
	return int32s(vals...)
}

func decode32(b []byte) []int32 {
	out := make([]int32, len(b)/4)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}

func all(t *testing.T, dims []uint64) *space.Space {
	t.Helper()
	s, err := space.NewSimple(dims, nil)
	require.NoError(t, err)
	return s
}

func chunked(t *testing.T, f *storage.File, dims, chunk []uint64, cfg Config) *Chunked {
	t.Helper()
	cfg.File = f
	if cfg.ElemSize == 0 {
		cfg.ElemSize = 4
	}
	l, err := New(&message.Layout{Class: message.LayoutChunked, Chunk: chunk}, cfg, dims)
	require.NoError(t, err)
	return l.(*Chunked)
}

func TestChunkedNotBSelection(t *testing.T) {
	dims := []uint64{6, 8}
	c := chunked(t, newFile(), dims, []uint64{4, 4}, Config{})

	require.NoError(t, c.Write(all(t, dims), dims, repeat(1, 48)))

	sel := all(t, dims)
	start, stride, count := []uint64{0, 0}, []uint64{3, 3}, []uint64{2, 2}
	require.NoError(t, sel.SelectHyperslab(space.OpSet, start, stride, count, []uint64{2, 2}))
	require.NoError(t, sel.SelectHyperslab(space.OpNotB, start, stride, count, []uint64{1, 1}))
	require.Equal(t, uint64(12), sel.SelectedCount())
	require.NoError(t, c.Write(sel, dims, repeat(0, 12)))

	got := decode32(mustRead(t, c, all(t, dims), dims))
	for r := uint64(0); r < 6; r++ {
		for col := uint64(0); col < 8; col++ {
			want := int32(1)
			if sel.Contains([]uint64{r, col}) {
				want = 0
			}
			assert.Equal(t, want, got[r*8+col], "element [%d,%d]", r, col)
		}
	}
	assert.Equal(t, 4, c.NumChunks())
}

func mustRead(t *testing.T, l Layout, sel *space.Space, dims []uint64) []byte {
	t.Helper()
	b, err := l.Read(sel, dims)
	require.NoError(t, err)
	return b
}

func TestChunkedFillValue(t *testing.T) {
	dims := []uint64{10, 10}
	fill := int32s(-1)
	c := chunked(t, newFile(), dims, []uint64{4, 4}, Config{Fill: fill})

	got := decode32(mustRead(t, c, all(t, dims), dims))
	for i, v := range got {
		require.Equal(t, int32(-1), v, "element %d", i)
	}
	assert.Equal(t, 0, c.NumChunks(), "reading must not allocate")

	// One element in chunk [0,0]; the rest of the chunk reads as fill.
	sel := all(t, dims)
	require.NoError(t, sel.SelectElements(space.OpSet, [][]uint64{{1, 2}}))
	require.NoError(t, c.Write(sel, dims, int32s(7)))
	assert.Equal(t, 1, c.NumChunks())

	got = decode32(mustRead(t, c, all(t, dims), dims))
	for i, v := range got {
		if i == 12 {
			assert.Equal(t, int32(7), v)
		} else {
			require.Equal(t, int32(-1), v, "element %d", i)
		}
	}
}

func TestChunkedShuffleDeflate(t *testing.T) {
	dims := []uint64{32, 64}
	specs := []filter.Spec{{ID: filter.IDShuffle}, {ID: filter.IDDeflate, Params: []uint32{9}}}
	p, err := filter.NewPipeline(specs, 4)
	require.NoError(t, err)

	f := newFile()
	cache := NewCache(16)
	c := chunked(t, f, dims, []uint64{8, 16}, Config{Pipeline: p, Cache: cache, Concurrency: 4, Object: 1})

	vals := make([]int32, 32*64)
	for i := range vals {
		vals[i] = int32(i%64) * int32(i/64)
	}
	require.NoError(t, c.Write(all(t, dims), dims, int32s(vals...)))
	assert.Equal(t, 16, c.NumChunks())
	assert.Positive(t, cache.Len())
	assert.Less(t, c.StorageSize(), uint64(len(vals)*4), "deflate should compress the grid")

	assert.Equal(t, vals, decode32(mustRead(t, c, all(t, dims), dims)))

	// Reopen from the flushed message without a cache.
	require.NoError(t, c.Flush())
	msg := c.Message()
	require.NotZero(t, msg.IndexAddr)
	re, err := New(msg, Config{File: f, ElemSize: 4, Pipeline: p, Object: 1}, dims)
	require.NoError(t, err)
	assert.Equal(t, vals, decode32(mustRead(t, re, all(t, dims), dims)))

	infos := re.(*Chunked).Chunks()
	require.Len(t, infos, 16)
	assert.Equal(t, []uint64{0, 0}, infos[0].Offset)
	assert.Equal(t, []uint64{0, 16}, infos[1].Offset)
	assert.Equal(t, uint32(0), infos[0].FilterMask)
}

func TestChunkedOptionalFilterMask(t *testing.T) {
	dims := []uint64{256}
	p, err := filter.NewPipeline([]filter.Spec{{ID: filter.IDLZ4, Optional: true}}, 4)
	require.NoError(t, err)
	c := chunked(t, newFile(), dims, []uint64{256}, Config{Pipeline: p})

	noise := make([]byte, 1024)
	rand.New(rand.NewSource(1)).Read(noise)
	require.NoError(t, c.Write(all(t, dims), dims, noise))

	infos := c.Chunks()
	require.Len(t, infos, 1)
	assert.Equal(t, uint32(1), infos[0].FilterMask)
	assert.Equal(t, noise, mustRead(t, c, all(t, dims), dims))
}

func TestChunkedResize(t *testing.T) {
	f := newFile()
	dims := []uint64{4, 4}
	c := chunked(t, f, dims, []uint64{3, 3}, Config{Fill: int32s(-1)})

	vals := make([]int32, 16)
	for i := range vals {
		vals[i] = int32(i)
	}
	require.NoError(t, c.Write(all(t, dims), dims, int32s(vals...)))

	// Grow: old values unchanged, new elements read as fill.
	grown := []uint64{6, 7}
	require.NoError(t, c.Resize(dims, grown))
	got := decode32(mustRead(t, c, all(t, grown), grown))
	for r := 0; r < 6; r++ {
		for col := 0; col < 7; col++ {
			want := int32(-1)
			if r < 4 && col < 4 {
				want = int32(r*4 + col)
			}
			require.Equal(t, want, got[r*7+col], "element [%d,%d]", r, col)
		}
	}

	// Shrink below the chunk boundary, then grow back.
	small := []uint64{2, 2}
	require.NoError(t, c.Resize(grown, small))
	assert.Equal(t, 1, c.NumChunks(), "chunks wholly outside are dropped")
	require.NoError(t, c.Resize(small, dims))
	got = decode32(mustRead(t, c, all(t, dims), dims))
	for r := 0; r < 4; r++ {
		for col := 0; col < 4; col++ {
			want := int32(-1)
			if r < 2 && col < 2 {
				want = int32(r*4 + col)
			}
			require.Equal(t, want, got[r*4+col], "element [%d,%d]", r, col)
		}
	}
}

func TestChunkedEarlyAllocation(t *testing.T) {
	dims := []uint64{5, 5}
	f := newFile()
	l, err := New(&message.Layout{Class: message.LayoutChunked, AllocTime: message.AllocEarly, Chunk: []uint64{2, 2}},
		Config{File: f, ElemSize: 4, Fill: int32s(3)}, dims)
	require.NoError(t, err)
	c := l.(*Chunked)

	require.NoError(t, c.Allocate(dims))
	assert.Equal(t, 9, c.NumChunks())

	require.NoError(t, c.Resize(dims, []uint64{5, 7}))
	assert.Equal(t, 12, c.NumChunks(), "extension allocates the new chunks")

	got := decode32(mustRead(t, c, all(t, []uint64{5, 7}), []uint64{5, 7}))
	for _, v := range got {
		require.Equal(t, int32(3), v)
	}

	c.Release()
	require.NoError(t, c.Flush())
	assert.Equal(t, 0, c.NumChunks())
	assert.Empty(t, f.Allocator().Allocations())
}

func TestChunkedBufferMismatch(t *testing.T) {
	dims := []uint64{4}
	c := chunked(t, newFile(), dims, []uint64{2}, Config{})
	err := c.Write(all(t, dims), dims, int32s(1, 2, 3))
	assert.ErrorIs(t, err, errs.ErrDimensionMismatch)
}

func TestChunkedUnavailableFilter(t *testing.T) {
	const id filter.ID = 41000
	p, err := filter.NewPipeline([]filter.Spec{{ID: id}}, 4)
	require.NoError(t, err)
	dims := []uint64{4}
	c := chunked(t, newFile(), dims, []uint64{2}, Config{Pipeline: p})

	err = c.Write(all(t, dims), dims, repeat(1, 4))
	assert.ErrorIs(t, err, errs.ErrFilterUnavailable)
	assert.Equal(t, 0, c.NumChunks())
}

func TestContiguous(t *testing.T) {
	f := newFile()
	dims := []uint64{3, 4}
	l, err := New(&message.Layout{Class: message.LayoutContiguous}, Config{File: f, ElemSize: 4, Fill: int32s(9)}, dims)
	require.NoError(t, err)
	assert.Equal(t, message.LayoutContiguous, l.Class())

	got := decode32(mustRead(t, l, all(t, dims), dims))
	assert.Equal(t, []int32{9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9}, got)
	assert.Zero(t, l.StorageSize())

	sel := all(t, dims)
	require.NoError(t, sel.SelectHyperslab(space.OpSet, []uint64{1, 1}, nil, []uint64{2, 2}, nil))
	require.NoError(t, l.Write(sel, dims, int32s(1, 2, 3, 4)))

	got = decode32(mustRead(t, l, all(t, dims), dims))
	assert.Equal(t, []int32{9, 9, 9, 9, 9, 1, 2, 9, 9, 3, 4, 9}, got)
	assert.Equal(t, []int32{1, 2, 3, 4}, decode32(mustRead(t, l, sel, dims)))

	err = l.Resize(dims, []uint64{4, 4})
	assert.ErrorIs(t, err, errs.ErrDimensionMismatch)

	msg := l.Message()
	re, err := New(msg, Config{File: f, ElemSize: 4}, dims)
	require.NoError(t, err)
	assert.Equal(t, got, decode32(mustRead(t, re, all(t, dims), dims)))
}

func TestContiguousExternal(t *testing.T) {
	dir := t.TempDir()
	dims := []uint64{10}
	ext := []message.ExternalFile{
		{Name: "a.raw", Size: 16},
		{Name: "b.raw", Offset: 8, Size: 24},
	}
	l, err := New(&message.Layout{Class: message.LayoutContiguous},
		Config{File: newFile(), ElemSize: 4, External: ext, ExternalDir: dir}, dims)
	require.NoError(t, err)

	vals := []int32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	require.NoError(t, l.Write(all(t, dims), dims, int32s(vals...)))
	assert.Equal(t, vals, decode32(mustRead(t, l, all(t, dims), dims)))

	a, err := os.ReadFile(filepath.Join(dir, "a.raw"))
	require.NoError(t, err)
	assert.Equal(t, int32s(0, 1, 2, 3), a)
	b, err := os.ReadFile(filepath.Join(dir, "b.raw"))
	require.NoError(t, err)
	assert.Equal(t, int32s(4, 5, 6, 7, 8, 9), b[8:])

	_, err = New(&message.Layout{Class: message.LayoutContiguous},
		Config{File: newFile(), ElemSize: 4, External: ext[:1], ExternalDir: dir}, dims)
	assert.ErrorIs(t, err, errs.ErrDimensionMismatch, "external files too small")
}

func TestCompact(t *testing.T) {
	dims := []uint64{2, 3}
	l, err := New(&message.Layout{Class: message.LayoutCompact}, Config{ElemSize: 4}, dims)
	require.NoError(t, err)

	sel := all(t, dims)
	require.NoError(t, sel.SelectElements(space.OpSet, [][]uint64{{1, 2}, {0, 0}}))
	require.NoError(t, l.Write(sel, dims, int32s(5, 6)))
	assert.Equal(t, []int32{6, 0, 0, 0, 0, 5}, decode32(mustRead(t, l, all(t, dims), dims)))
	assert.Equal(t, []int32{5, 6}, decode32(mustRead(t, l, sel, dims)), "points keep listed order")

	re, err := New(l.Message(), Config{ElemSize: 4}, dims)
	require.NoError(t, err)
	assert.Equal(t, uint64(24), re.StorageSize())

	_, err = New(&message.Layout{Class: message.LayoutCompact}, Config{ElemSize: 8}, []uint64{100, 100})
	assert.ErrorIs(t, err, errs.ErrDimensionMismatch)
}

func TestScalarContiguous(t *testing.T) {
	s := space.NewScalar()
	l, err := New(&message.Layout{Class: message.LayoutContiguous}, Config{File: newFile(), ElemSize: 4}, nil)
	require.NoError(t, err)
	require.NoError(t, l.Write(s, nil, int32s(42)))
	assert.Equal(t, []int32{42}, decode32(mustRead(t, l, s, nil)))
}
