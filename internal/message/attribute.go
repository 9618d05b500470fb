package message

import (
	"fmt"

	"github.com/robert-malhotra/go-hstore/internal/binary"
	"github.com/robert-malhotra/go-hstore/internal/dtype"
	"github.com/robert-malhotra/go-hstore/internal/space"
)

// Attribute is a small named value attached to an object.
type Attribute struct {
	Name          string
	CreationOrder uint32
	Datatype      *dtype.Type
	SharedType    uint64 // committed type object, 0 if none
	Space         *space.Space
	Data          []byte
}

func (m *Attribute) Type() Type { return TypeAttribute }

func (m *Attribute) Encode(e *binary.Encoder) {
	e.String(m.Name)
	e.Uint32(m.CreationOrder)
	e.Uint64(m.SharedType)
	m.Datatype.Serialize(e)
	m.Space.MarshalShape(e)
	e.Blob(m.Data)
}

func parseAttribute(d *binary.Decoder) (*Attribute, error) {
	m := &Attribute{
		Name:          d.String(),
		CreationOrder: d.Uint32(),
		SharedType:    d.Uint64(),
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	if m.Name == "" {
		return nil, fmt.Errorf("attribute with empty name")
	}
	t, err := dtype.Parse(d)
	if err != nil {
		return nil, fmt.Errorf("attribute %q datatype: %w", m.Name, err)
	}
	t.Lock()
	m.Datatype = t
	if m.Space, err = space.ParseShape(d); err != nil {
		return nil, fmt.Errorf("attribute %q dataspace: %w", m.Name, err)
	}
	m.Data = d.Blob()
	if d.Err() == nil {
		want := m.Space.NumElements() * uint64(t.Size())
		if uint64(len(m.Data)) != want {
			return nil, fmt.Errorf("attribute %q holds %d bytes, want %d", m.Name, len(m.Data), want)
		}
	}
	return m, nil
}

// AttributeInfo tracks the next attribute creation order of an object.
type AttributeInfo struct {
	NextOrder uint32
}

func (m *AttributeInfo) Type() Type { return TypeAttributeInfo }

func (m *AttributeInfo) Encode(e *binary.Encoder) { e.Uint32(m.NextOrder) }

func parseAttributeInfo(d *binary.Decoder) (*AttributeInfo, error) {
	return &AttributeInfo{NextOrder: d.Uint32()}, nil
}
