// Package alloc provides file-space management for container writing.
//
// Object headers, chunk payloads, heap blobs and the object table must be
// placed at file offsets that never overlap. This package owns those offsets.
//
// # Allocator
//
// The [Allocator] type is safe for concurrent use:
//
//   - Append allocation: when no free block fits, the block is placed at the
//     current end-of-file address, which is then advanced.
//   - First-fit reuse: freed blocks are kept sorted by address, merged with
//     adjacent free blocks and handed out again before the file grows.
//   - Tail trimming: freeing the last block of the file moves the end-of-file
//     address back instead of growing the free list.
//   - Persistence: [Allocator.FreeBlocks] and [Restore] carry the free list
//     across close and reopen.
//
// # Usage
//
//	a := alloc.New(sbSize)
//	addr := a.Alloc(1024)
//	a.Free(addr, 1024)
//	addr2 := a.Alloc(512) // reuses the freed range
package alloc
