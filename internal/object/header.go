package object

import (
	"errors"
	"fmt"

	"github.com/robert-malhotra/go-hstore/internal/binary"
	"github.com/robert-malhotra/go-hstore/internal/message"
)

// Object header signature
var Signature = []byte{'O', 'H', 'D', 'R'}

const headerVersion = 1

// Errors
var (
	ErrInvalidHeader      = errors.New("invalid object header")
	ErrUnsupportedVersion = errors.New("unsupported object header version")
	ErrChecksumMismatch   = errors.New("object header checksum mismatch")
)

// Kind is the class of object a header describes.
type Kind uint8

const (
	KindGroup    Kind = 1
	KindDataset  Kind = 2
	KindDatatype Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindGroup:
		return "group"
	case KindDataset:
		return "dataset"
	case KindDatatype:
		return "datatype"
	}
	return fmt.Sprintf("kind-%d", uint8(k))
}

// Message flags
const (
	// FlagConstant marks messages that never change after creation.
	FlagConstant uint8 = 0x01
)

// Header is a decoded object header.
type Header struct {
	Kind Kind

	// RefCount counts the hard links to the object plus, for committed
	// datatypes, the datasets and attributes that share it.
	RefCount uint32

	Messages []message.Message
	Flags    []uint8 // per message, parallel to Messages
}

// Add appends a message.
func (h *Header) Add(m message.Message) {
	h.AddFlagged(m, 0)
}

// AddFlagged appends a message with flags.
func (h *Header) AddFlagged(m message.Message, flags uint8) {
	h.Messages = append(h.Messages, m)
	h.Flags = append(h.Flags, flags)
}

// Encode writes the header block.
func (h *Header) Encode(cfg binary.Config) []byte {
	e := binary.NewEncoder(cfg)
	e.Raw(Signature)
	e.Uint8(headerVersion)
	e.Uint8(uint8(h.Kind))
	e.Uint32(h.RefCount)
	e.Uint16(uint16(len(h.Messages)))
	for i, m := range h.Messages {
		body := message.Marshal(m, cfg)
		e.Uint16(uint16(m.Type()))
		var flags uint8
		if i < len(h.Flags) {
			flags = h.Flags[i]
		}
		e.Uint8(flags)
		e.Uint32(uint32(len(body)))
		e.Raw(body)
	}
	return binary.AppendChecksum(e.Bytes())
}

// Decode parses a header block written by Encode.
func Decode(block []byte, cfg binary.Config) (*Header, error) {
	body, ok := binary.VerifyChecksum(block)
	if !ok {
		return nil, ErrChecksumMismatch
	}
	d := binary.NewDecoder(body, cfg)
	if sig := d.Raw(4); string(sig) != string(Signature) {
		return nil, fmt.Errorf("%w: bad signature %q", ErrInvalidHeader, sig)
	}
	if v := d.Uint8(); v != headerVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}
	h := &Header{Kind: Kind(d.Uint8()), RefCount: d.Uint32()}
	if h.Kind < KindGroup || h.Kind > KindDatatype {
		return nil, fmt.Errorf("%w: unknown object kind %d", ErrInvalidHeader, h.Kind)
	}
	n := int(d.Uint16())
	for i := 0; i < n; i++ {
		typ := message.Type(d.Uint16())
		flags := d.Uint8()
		size := d.Uint32()
		if d.Err() == nil && int(size) > d.Remaining() {
			return nil, fmt.Errorf("%w: message %d claims %d bytes", ErrInvalidHeader, i, size)
		}
		data := d.Raw(int(size))
		if err := d.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
		}
		m, err := message.Parse(typ, data, cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
		}
		h.AddFlagged(m, flags)
	}
	if d.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidHeader, d.Remaining())
	}
	return h, nil
}

// GetMessage returns the first message of the given type, or nil if not found.
func (h *Header) GetMessage(typ message.Type) message.Message {
	for _, msg := range h.Messages {
		if msg.Type() == typ {
			return msg
		}
	}
	return nil
}

// GetMessages returns all messages of the given type.
func (h *Header) GetMessages(typ message.Type) []message.Message {
	var out []message.Message
	for _, msg := range h.Messages {
		if msg.Type() == typ {
			out = append(out, msg)
		}
	}
	return out
}

// Dataspace returns the dataspace message, or nil.
func (h *Header) Dataspace() *message.Dataspace {
	m, _ := h.GetMessage(message.TypeDataspace).(*message.Dataspace)
	return m
}

// Datatype returns the datatype message, or nil.
func (h *Header) Datatype() *message.Datatype {
	m, _ := h.GetMessage(message.TypeDatatype).(*message.Datatype)
	return m
}

// SharedType returns the shared datatype message, or nil.
func (h *Header) SharedType() *message.SharedType {
	m, _ := h.GetMessage(message.TypeSharedType).(*message.SharedType)
	return m
}

// Layout returns the layout message, or nil.
func (h *Header) Layout() *message.Layout {
	m, _ := h.GetMessage(message.TypeLayout).(*message.Layout)
	return m
}

// FilterPipeline returns the filter pipeline message, or nil.
func (h *Header) FilterPipeline() *message.FilterPipeline {
	m, _ := h.GetMessage(message.TypeFilterPipeline).(*message.FilterPipeline)
	return m
}

// FillValue returns the fill value message, or nil.
func (h *Header) FillValue() *message.FillValue {
	m, _ := h.GetMessage(message.TypeFillValue).(*message.FillValue)
	return m
}

// External returns the external files message, or nil.
func (h *Header) External() *message.External {
	m, _ := h.GetMessage(message.TypeExternal).(*message.External)
	return m
}

// LinkInfo returns the link info message, or nil.
func (h *Header) LinkInfo() *message.LinkInfo {
	m, _ := h.GetMessage(message.TypeLinkInfo).(*message.LinkInfo)
	return m
}

// GroupInfo returns the group info message, or nil.
func (h *Header) GroupInfo() *message.GroupInfo {
	m, _ := h.GetMessage(message.TypeGroupInfo).(*message.GroupInfo)
	return m
}

// AttributeInfo returns the attribute info message, or nil.
func (h *Header) AttributeInfo() *message.AttributeInfo {
	m, _ := h.GetMessage(message.TypeAttributeInfo).(*message.AttributeInfo)
	return m
}

// Links returns the inline link messages in stored order.
func (h *Header) Links() []*message.Link {
	var out []*message.Link
	for _, m := range h.Messages {
		if l, ok := m.(*message.Link); ok {
			out = append(out, l)
		}
	}
	return out
}

// Attributes returns the attribute messages in stored order.
func (h *Header) Attributes() []*message.Attribute {
	var out []*message.Attribute
	for _, m := range h.Messages {
		if a, ok := m.(*message.Attribute); ok {
			out = append(out, a)
		}
	}
	return out
}
