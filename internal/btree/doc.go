// Package btree implements the ordered indexes used for group links and
// chunk storage.
//
// A [Tree] is an in-memory B-tree keyed by byte strings. Containers keep two
// kinds of tree:
//
//   - Dense group link storage, keyed by link name, so that name lookup and
//     alphabetical iteration stay logarithmic for large groups.
//   - Chunk indexes, keyed by the big-endian chunk-grid coordinates, so that
//     ascending key order is row-major chunk order.
//
// # Persistence
//
// Trees are written as a flat, checksummed record block in key order
// (signature "BTRE") and rebuilt on load with [Decode]:
//
//	block := btree.Encode(tree, encodeValue)
//	tree, err := btree.Decode(block, degree, decodeValue)
package btree
