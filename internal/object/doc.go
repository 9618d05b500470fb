// Package object encodes object headers and the object table.
//
// Every object in a container (group, dataset, committed datatype) has an
// object header holding its kind, its reference count and a list of header
// messages. Headers are written as one checksummed block:
//
//	"OHDR" | version | kind | refcount u32 | nmessages u16 |
//	{ type u16 | flags u8 | size u32 | body }* | lookup3 checksum
//
// Objects are addressed by a stable 64-bit identifier. The object table maps
// identifiers to the file address and size of the current header block, so
// a header can be rewritten elsewhere without touching the links that point
// at it:
//
//	"OTAB" | version | count u64 | { id u64 | addr | size }* | checksum
//
// # Usage
//
//	h := &object.Header{Kind: object.KindDataset, RefCount: 1}
//	h.Add(&message.Dataspace{Space: sp})
//	block := h.Encode(cfg)
//
//	h, err := object.Decode(block, cfg)
//	layout := h.Layout()
package object
