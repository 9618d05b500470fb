package message

import (
	"fmt"

	"github.com/robert-malhotra/go-hstore/internal/binary"
)

// Type identifies a header message.
type Type uint16

// Header message types
const (
	TypeNIL            Type = 0x0000
	TypeDataspace      Type = 0x0001
	TypeLinkInfo       Type = 0x0002
	TypeDatatype       Type = 0x0003
	TypeFillValue      Type = 0x0005
	TypeLink           Type = 0x0006
	TypeExternal       Type = 0x0007
	TypeLayout         Type = 0x0008
	TypeGroupInfo      Type = 0x000A
	TypeFilterPipeline Type = 0x000B
	TypeAttribute      Type = 0x000C
	TypeAttributeInfo  Type = 0x0015
	TypeSharedType     Type = 0x0020
)

var typeNames = map[Type]string{
	TypeNIL:            "nil",
	TypeDataspace:      "dataspace",
	TypeLinkInfo:       "link-info",
	TypeDatatype:       "datatype",
	TypeFillValue:      "fill-value",
	TypeLink:           "link",
	TypeExternal:       "external",
	TypeLayout:         "layout",
	TypeGroupInfo:      "group-info",
	TypeFilterPipeline: "filter-pipeline",
	TypeAttribute:      "attribute",
	TypeAttributeInfo:  "attribute-info",
	TypeSharedType:     "shared-datatype",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("message-0x%04x", uint16(t))
}

// Message is implemented by all header messages.
type Message interface {
	Type() Type
	// Encode appends the message body.
	Encode(e *binary.Encoder)
}

// Parse decodes a message body of the given type.
func Parse(typ Type, data []byte, cfg binary.Config) (Message, error) {
	d := binary.NewDecoder(data, cfg)
	var (
		msg Message
		err error
	)
	switch typ {
	case TypeDataspace:
		msg, err = parseDataspace(d)
	case TypeLinkInfo:
		msg, err = parseLinkInfo(d)
	case TypeDatatype:
		msg, err = parseDatatype(d)
	case TypeFillValue:
		msg, err = parseFillValue(d)
	case TypeLink:
		msg, err = parseLink(d)
	case TypeExternal:
		msg, err = parseExternal(d)
	case TypeLayout:
		msg, err = parseLayout(d)
	case TypeGroupInfo:
		msg, err = parseGroupInfo(d)
	case TypeFilterPipeline:
		msg, err = parseFilterPipeline(d)
	case TypeAttribute:
		msg, err = parseAttribute(d)
	case TypeAttributeInfo:
		msg, err = parseAttributeInfo(d)
	case TypeSharedType:
		msg, err = parseSharedType(d)
	default:
		// Keep unknown messages so they survive a rewrite.
		return &Unknown{typ: typ, data: append([]byte(nil), data...)}, nil
	}
	if err == nil {
		err = d.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s message: %w", typ, err)
	}
	return msg, nil
}

// Marshal returns the encoded body of m.
func Marshal(m Message, cfg binary.Config) []byte {
	e := binary.NewEncoder(cfg)
	m.Encode(e)
	return e.Bytes()
}

// Unknown represents an unrecognized message type.
type Unknown struct {
	typ  Type
	data []byte
}

func (m *Unknown) Type() Type               { return m.typ }
func (m *Unknown) Data() []byte             { return m.data }
func (m *Unknown) Encode(e *binary.Encoder) { e.Raw(m.data) }
