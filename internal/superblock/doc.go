// Package superblock reads and writes the container superblock.
//
// The superblock is the fixed entry point at address 0. It identifies the
// file, records the offset and length widths used by every other structure,
// and locates the object table, the persisted free list and the root group.
//
// # Consistency Flag
//
// [FlagWriterOpen] is set on disk while a writer has the container open and
// cleared on a clean close. Finding it set on open means the last writer did
// not flush its metadata; the object table then reflects the last successful
// flush.
package superblock
