// Package layout stores and retrieves dataset raw data.
//
// A dataset's elements live in one of three storage layouts. All of them
// satisfy the [Layout] interface, which moves the elements of a selection
// between a packed buffer (selection order) and storage:
//
//   - Compact: the whole raw data is kept in the layout message inside the
//     object header. Limited to [message.MaxCompactSize] bytes. Implemented
//     by [Compact].
//
//   - Contiguous: the raw data is one extent of the container file, or a
//     list of segments in external files. Implemented by [Contiguous].
//
//   - Chunked: the element grid is cut into fixed-shape chunks, each stored
//     independently after passing through the filter pipeline. Required for
//     extendible datasets and for filters. Implemented by [Chunked].
//
// # Fill Values
//
// Elements that were never written read back as the dataset's fill value.
// Chunked storage keeps a sparse index of allocated chunks; a chunk without
// an index entry is all fill. A chunk that is only partly written is first
// materialized with the fill value, so unwritten elements inside an
// allocated chunk also read as fill.
//
// # Allocation Time
//
//   - Late: storage is allocated by the first write.
//   - Early: all storage is allocated, and filled, at creation and whenever
//     the dataset is extended.
//   - Incremental: chunks are allocated one at a time as they are first
//     written. For the non-chunked layouts this behaves like Late.
//
// # Chunk Index
//
// The chunk index is a [btree.Tree] keyed by the big-endian chunk-grid
// coordinates, so iteration order is row-major. It is written to the file
// as one record on Flush.
//
// # Concurrency
//
// A Layout is not safe for concurrent use; the container serializes calls.
// Within one call, the filter work for the chunks touched is spread over a
// bounded number of goroutines.
package layout
