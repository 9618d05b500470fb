// Package heap stores variable-length blobs in the container file.
//
// Variable-length string elements and region references hold the address of
// a heap record instead of their payload. Each record is written once, at an
// address handed out by the file allocator, and released when the element
// that owns it is overwritten or its dataset is deleted.
//
// Record layout:
//
//	u32 length | payload | u32 lookup3(length, payload)
//
// The checksum lets a reader tell a dangling or corrupted address from real
// data instead of returning garbage.
package heap
