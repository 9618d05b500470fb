// Package filter implements the chunk filter pipeline.
//
// Filters are reversible byte transforms applied to chunk payloads in list
// order on write and in reverse order on read. Each filter is identified by
// a stable [ID] in a process-wide registry that also records whether the
// filter can encode, decode, or both in the running process.
//
// # Built-in Filters
//
//   - Deflate (ID 1): zlib compression at level 0-9.
//   - Shuffle (ID 2): byte-lane reordering across elements, usually placed
//     before a compressor.
//   - Fletcher32 (ID 3): appends a 32-bit Fletcher checksum.
//   - LZ4 (ID 32004): LZ4 block compression.
//   - Zstd (ID 32015): Zstandard compression.
//   - Blake3 (ID 32768): appends a 32-byte BLAKE3 digest.
//
// # Filter Mask
//
// Each stored chunk carries a mask. If bit i is set, filter i was skipped
// when the chunk was written and is skipped again when it is read. Only
// optional filters are ever skipped: because they are not registered for
// encoding, or because they reported [ErrIncompressible].
//
// # Errors
//
// A direction that needs a filter the process cannot run fails with
// ErrFilterUnavailable; malformed input to a decode step fails with
// ErrFilterData.
package filter
