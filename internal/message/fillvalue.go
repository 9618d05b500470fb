package message

import "github.com/robert-malhotra/go-hstore/internal/binary"

// FillValue holds one encoded element used for unwritten data. An undefined
// fill value reads as zero bytes.
type FillValue struct {
	Defined bool
	Value   []byte
}

func (m *FillValue) Type() Type { return TypeFillValue }

func (m *FillValue) Encode(e *binary.Encoder) {
	e.Uint8(boolByte(m.Defined))
	if m.Defined {
		e.Blob(m.Value)
	}
}

func parseFillValue(d *binary.Decoder) (*FillValue, error) {
	m := &FillValue{Defined: d.Uint8() != 0}
	if m.Defined {
		m.Value = d.Blob()
	}
	return m, nil
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
