package alloc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/go-hstore/internal/binary"
)

func TestAllocatorBasic(t *testing.T) {
	a := New(1024)

	assert.Equal(t, uint64(1024), a.Alloc(100))
	assert.Equal(t, uint64(1124), a.Alloc(200))
	assert.Equal(t, uint64(1324), a.EOFAddr())
}

func TestAllocatorZeroSize(t *testing.T) {
	a := New(100)
	assert.Equal(t, uint64(100), a.Alloc(0))
	assert.Equal(t, uint64(100), a.EOFAddr())
}

func TestAllocatorReusesFreedBlock(t *testing.T) {
	a := New(0)
	first := a.Alloc(100)
	a.Alloc(50)

	a.Free(first, 100)
	assert.Equal(t, []Block{{Addr: 0, Size: 100}}, a.FreeBlocks())

	got := a.Alloc(60)
	assert.Equal(t, first, got)
	assert.Equal(t, []Block{{Addr: 60, Size: 40}}, a.FreeBlocks())
	assert.Equal(t, uint64(150), a.EOFAddr())
	assert.Equal(t, uint64(60), a.Stats().ReusedBytes)
	require.NoError(t, a.Validate())
}

func TestAllocatorCoalesces(t *testing.T) {
	a := New(0)
	b1 := a.Alloc(10)
	b2 := a.Alloc(10)
	b3 := a.Alloc(10)
	a.Alloc(10)

	a.Free(b1, 10)
	a.Free(b3, 10)
	assert.Len(t, a.FreeBlocks(), 2)

	a.Free(b2, 10)
	assert.Equal(t, []Block{{Addr: 0, Size: 30}}, a.FreeBlocks())
	assert.Equal(t, uint64(30), a.Stats().FreeBytes)
}

func TestAllocatorTrimsTail(t *testing.T) {
	a := New(16)
	a.Alloc(10)
	last := a.Alloc(20)
	a.Free(last, 20)

	assert.Equal(t, uint64(26), a.EOFAddr())
	assert.Empty(t, a.FreeBlocks())
}

func TestRestore(t *testing.T) {
	a, err := Restore(8, 200, []Block{{Addr: 50, Size: 10}, {Addr: 60, Size: 5}, {Addr: 100, Size: 20}})
	require.NoError(t, err)
	assert.Equal(t, []Block{{Addr: 50, Size: 15}, {Addr: 100, Size: 20}}, a.FreeBlocks())
	assert.Equal(t, uint64(100), a.Alloc(20))

	_, err = Restore(8, 100, []Block{{Addr: 90, Size: 20}})
	assert.Error(t, err)
}

func TestValidateDetectsOverlap(t *testing.T) {
	a := New(0)
	addr := a.Alloc(40)
	a.Alloc(8)
	// Free only part of a live allocation, then reallocate it: the live
	// map still holds the original 40-byte range.
	a.Free(addr+20, 10)
	a.Alloc(10)
	a.live[addr] = Allocation{Addr: addr, Size: 40}
	assert.Error(t, a.Validate())
}

func TestAllocatorConcurrent(t *testing.T) {
	a := New(0)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				addr := a.Alloc(16)
				if j%2 == 0 {
					a.Free(addr, 16)
				}
			}
		}()
	}
	wg.Wait()
	require.NoError(t, a.Validate())
	assert.Equal(t, uint64(800), a.Stats().TotalAllocations)
}

func TestFreeListRecord(t *testing.T) {
	cfg := binary.DefaultConfig()
	blocks := []Block{{Addr: 100, Size: 20}, {Addr: 400, Size: 8}}

	rec := EncodeFree(blocks, cfg, RecordSize(3, cfg))
	assert.Len(t, rec, int(RecordSize(3, cfg)), "padded to the reserved size")

	got, err := DecodeFree(rec, cfg)
	require.NoError(t, err)
	assert.Equal(t, blocks, got)

	rec[6] ^= 0xff
	_, err = DecodeFree(rec, cfg)
	assert.ErrorIs(t, err, ErrBadFreeList)
}
