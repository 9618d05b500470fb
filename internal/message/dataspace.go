package message

import (
	"github.com/robert-malhotra/go-hstore/internal/binary"
	"github.com/robert-malhotra/go-hstore/internal/space"
)

// Dataspace records the extents of a dataset or attribute.
type Dataspace struct {
	Space *space.Space
}

func (m *Dataspace) Type() Type { return TypeDataspace }

func (m *Dataspace) Encode(e *binary.Encoder) { m.Space.MarshalShape(e) }

func parseDataspace(d *binary.Decoder) (*Dataspace, error) {
	s, err := space.ParseShape(d)
	if err != nil {
		return nil, err
	}
	return &Dataspace{Space: s}, nil
}
