// Package message encodes and decodes object header messages.
//
// Every object in a container (group, dataset, committed datatype) is
// described by a header holding a list of messages. Each message has a type,
// flags and a type-specific body. This package owns the body codecs; framing
// and checksums belong to package object.
//
// # Message Types
//
//   - Dataspace (0x0001): current and maximum extents. See [Dataspace].
//   - Link Info (0x0002): creation-order counter and dense index locator.
//     See [LinkInfo].
//   - Datatype (0x0003): element type. See [Datatype].
//   - Fill Value (0x0005): value returned for unwritten elements. See [FillValue].
//   - Link (0x0006): one named link stored inline in a compact group. See [Link].
//   - External Files (0x0007): raw data held outside the container. See [External].
//   - Layout (0x0008): compact, contiguous or chunked storage. See [Layout].
//   - Group Info (0x000A): compact/dense thresholds. See [GroupInfo].
//   - Filter Pipeline (0x000B): ordered chunk filters. See [FilterPipeline].
//   - Attribute (0x000C): one attribute. See [Attribute].
//   - Attribute Info (0x0015): attribute creation-order counter. See [AttributeInfo].
//   - Shared Datatype (0x0020): the committed type an object uses. See [SharedType].
//
// Unrecognized message types are wrapped in [Unknown] and written back
// unchanged.
//
// # Parsing
//
//	msg, err := message.Parse(message.TypeLayout, body, cfg)
//	if l, ok := msg.(*message.Layout); ok {
//	    // use l.Class, l.Chunk, ...
//	}
package message
