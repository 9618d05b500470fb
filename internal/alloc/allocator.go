// Package alloc manages file space inside a container.
package alloc

import (
	"fmt"
	"sort"
	"sync"
)

// Allocator hands out byte ranges of the container file. Freed ranges are
// kept in an address-ordered list, coalesced with their neighbours and
// reused first-fit before the file is grown.
type Allocator struct {
	mu sync.Mutex

	// eofAddr is the current end-of-file address (next append point)
	eofAddr uint64

	// baseAddr is the minimum address that can be allocated
	// (right after the superblock)
	baseAddr uint64

	// live records allocations made by this allocator, keyed by address
	live map[uint64]Allocation

	// free is sorted by address and never holds adjacent blocks
	free []Block

	stats Stats
}

// Allocation represents a single live allocation.
type Allocation struct {
	Addr uint64
	Size uint64
	Tag  string // Optional tag for debugging
}

// Block is a free byte range.
type Block struct {
	Addr uint64
	Size uint64
}

// End returns the first address after the block.
func (b Block) End() uint64 { return b.Addr + b.Size }

// Stats contains allocation statistics.
type Stats struct {
	TotalAllocations uint64 // Number of allocations made
	TotalBytesAlloc  uint64 // Total bytes handed out
	TotalBytesFreed  uint64 // Total bytes returned with Free
	ReusedBytes      uint64 // Bytes satisfied from the free list
	FreeBytes        uint64 // Bytes currently on the free list
	LargestAlloc     uint64 // Largest single allocation
}

// New creates an allocator for an empty file whose first allocatable
// address is baseAddr.
func New(baseAddr uint64) *Allocator {
	return &Allocator{
		eofAddr:  baseAddr,
		baseAddr: baseAddr,
		live:     make(map[uint64]Allocation),
	}
}

// Restore creates an allocator for an existing file with the given end of
// file and persisted free list.
func Restore(baseAddr, eofAddr uint64, free []Block) (*Allocator, error) {
	a := New(baseAddr)
	a.eofAddr = eofAddr
	for _, b := range free {
		if b.Size == 0 {
			continue
		}
		a.insertFree(b)
	}
	if err := a.validateFree(); err != nil {
		return nil, err
	}
	return a, nil
}

// Alloc reserves size bytes and returns their address.
func (a *Allocator) Alloc(size uint64) uint64 {
	return a.AllocTagged(size, "")
}

// AllocTagged allocates a block with an optional tag for debugging.
func (a *Allocator) AllocTagged(size uint64, tag string) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if size == 0 {
		return a.eofAddr
	}

	addr, reused := a.takeFree(size)
	if !reused {
		addr = a.eofAddr
		a.eofAddr += size
	} else {
		a.stats.ReusedBytes += size
	}

	a.live[addr] = Allocation{Addr: addr, Size: size, Tag: tag}
	a.stats.TotalAllocations++
	a.stats.TotalBytesAlloc += size
	if size > a.stats.LargestAlloc {
		a.stats.LargestAlloc = size
	}
	return addr
}

// takeFree carves size bytes out of the first free block large enough.
func (a *Allocator) takeFree(size uint64) (uint64, bool) {
	for i, b := range a.free {
		if b.Size < size {
			continue
		}
		if b.Size == size {
			a.free = append(a.free[:i], a.free[i+1:]...)
		} else {
			a.free[i] = Block{Addr: b.Addr + size, Size: b.Size - size}
		}
		a.stats.FreeBytes -= size
		return b.Addr, true
	}
	return 0, false
}

// Free returns a block to the free list. A block that ends at the current
// end of file shrinks the file instead.
func (a *Allocator) Free(addr, size uint64) {
	if size == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.live, addr)
	a.stats.TotalBytesFreed += size
	a.insertFree(Block{Addr: addr, Size: size})
	a.trimTail()
}

func (a *Allocator) insertFree(b Block) {
	i := sort.Search(len(a.free), func(i int) bool { return a.free[i].Addr >= b.Addr })
	a.free = append(a.free, Block{})
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = b
	a.stats.FreeBytes += b.Size

	// Coalesce with the following block, then the preceding one.
	if i+1 < len(a.free) && a.free[i].End() == a.free[i+1].Addr {
		a.free[i].Size += a.free[i+1].Size
		a.free = append(a.free[:i+1], a.free[i+2:]...)
	}
	if i > 0 && a.free[i-1].End() == a.free[i].Addr {
		a.free[i-1].Size += a.free[i].Size
		a.free = append(a.free[:i], a.free[i+1:]...)
	}
}

func (a *Allocator) trimTail() {
	n := len(a.free)
	if n == 0 || a.free[n-1].End() != a.eofAddr {
		return
	}
	last := a.free[n-1]
	a.free = a.free[:n-1]
	a.stats.FreeBytes -= last.Size
	a.eofAddr = last.Addr
}

// EOFAddr returns the current end-of-file address.
func (a *Allocator) EOFAddr() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.eofAddr
}

// BaseAddr returns the base address (start of allocatable space).
func (a *Allocator) BaseAddr() uint64 {
	return a.baseAddr
}

// Stats returns a copy of the allocation statistics.
func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// Allocations returns the allocations made by this allocator that have not
// been freed, ordered by address.
func (a *Allocator) Allocations() []Allocation {
	a.mu.Lock()
	defer a.mu.Unlock()
	result := make([]Allocation, 0, len(a.live))
	for _, al := range a.live {
		result = append(result, al)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Addr < result[j].Addr })
	return result
}

// FreeBlocks returns a copy of the free list.
func (a *Allocator) FreeBlocks() []Block {
	a.mu.Lock()
	defer a.mu.Unlock()
	result := make([]Block, len(a.free))
	copy(result, a.free)
	return result
}

// Validate checks that the free list is well formed and that no live
// allocation overlaps another or a free block.
func (a *Allocator) Validate() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.validateFree(); err != nil {
		return err
	}

	spans := make([]Block, 0, len(a.live)+len(a.free))
	for _, al := range a.live {
		if al.Addr < a.baseAddr || al.Addr+al.Size > a.eofAddr {
			return fmt.Errorf("allocation at 0x%x size %d outside [0x%x, 0x%x)", al.Addr, al.Size, a.baseAddr, a.eofAddr)
		}
		spans = append(spans, Block{Addr: al.Addr, Size: al.Size})
	}
	spans = append(spans, a.free...)
	sort.Slice(spans, func(i, j int) bool { return spans[i].Addr < spans[j].Addr })
	for i := 1; i < len(spans); i++ {
		if spans[i-1].End() > spans[i].Addr {
			return fmt.Errorf("overlapping ranges: [0x%x, size %d] and [0x%x, size %d]",
				spans[i-1].Addr, spans[i-1].Size, spans[i].Addr, spans[i].Size)
		}
	}
	return nil
}

func (a *Allocator) validateFree() error {
	for i, b := range a.free {
		if b.Addr < a.baseAddr || b.End() > a.eofAddr {
			return fmt.Errorf("free block at 0x%x size %d outside [0x%x, 0x%x)", b.Addr, b.Size, a.baseAddr, a.eofAddr)
		}
		if i > 0 && a.free[i-1].End() > b.Addr {
			return fmt.Errorf("free blocks overlap at 0x%x", b.Addr)
		}
	}
	return nil
}
