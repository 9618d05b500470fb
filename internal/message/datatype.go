package message

import (
	"fmt"

	"github.com/robert-malhotra/go-hstore/internal/binary"
	"github.com/robert-malhotra/go-hstore/internal/dtype"
)

// Datatype records an element type.
type Datatype struct {
	Datatype *dtype.Type
}

func (m *Datatype) Type() Type { return TypeDatatype }

func (m *Datatype) Encode(e *binary.Encoder) { m.Datatype.Serialize(e) }

func parseDatatype(d *binary.Decoder) (*Datatype, error) {
	t, err := dtype.Parse(d)
	if err != nil {
		return nil, err
	}
	t.Lock()
	return &Datatype{Datatype: t}, nil
}

// SharedType names the committed datatype object whose type a dataset uses.
// The type itself is still stored in the Datatype message; this message
// keeps the committed object alive.
type SharedType struct {
	Object uint64
}

func (m *SharedType) Type() Type { return TypeSharedType }

func (m *SharedType) Encode(e *binary.Encoder) { e.Uint64(m.Object) }

func parseSharedType(d *binary.Decoder) (*SharedType, error) {
	m := &SharedType{Object: d.Uint64()}
	if d.Err() == nil && m.Object == 0 {
		return nil, fmt.Errorf("shared datatype refers to object 0")
	}
	return m, nil
}
