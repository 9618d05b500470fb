package dtype

import (
	"fmt"

	"github.com/robert-malhotra/go-hstore/internal/binary"
)

// maxNesting bounds recursion when parsing untrusted type records.
const maxNesting = 32

// Serialize appends the type description to e.
func (t *Type) Serialize(e *binary.Encoder) {
	e.Uint8(uint8(t.class))
	e.Uint32(t.size)
	switch t.class {
	case ClassInteger:
		e.Uint8(uint8(t.order))
		e.Uint8(boolByte(t.signed))
	case ClassFloat, ClassBitfield:
		e.Uint8(uint8(t.order))
	case ClassString:
		e.Uint8(uint8(t.charset))
		e.Uint8(uint8(t.padding))
		e.Uint8(boolByte(t.variable))
	case ClassOpaque:
		e.String(t.tag)
	case ClassCompound:
		e.Uint32(uint32(len(t.members)))
		for _, m := range t.members {
			e.String(m.Name)
			e.Uint32(m.Offset)
			m.Type.Serialize(e)
		}
	case ClassEnum:
		t.base.Serialize(e)
		e.Uint32(uint32(len(t.enums)))
		for _, v := range t.enums {
			e.String(v.Name)
			e.Uint64(uint64(v.Value))
		}
	case ClassArray:
		t.base.Serialize(e)
		e.Uint8(uint8(len(t.dims)))
		for _, d := range t.dims {
			e.Uint32(d)
		}
	case ClassReference:
		e.Uint8(uint8(t.ref))
	}
}

// Parse reads a type description written by Serialize. The result is locked.
func Parse(d *binary.Decoder) (*Type, error) {
	t, err := parse(d, 0)
	if err != nil {
		return nil, err
	}
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("parsing datatype: %w", err)
	}
	return t, nil
}

func parse(d *binary.Decoder, depth int) (*Type, error) {
	if depth > maxNesting {
		return nil, fmt.Errorf("datatype nesting deeper than %d", maxNesting)
	}
	t := &Type{class: Class(d.Uint8()), size: d.Uint32(), locked: true}
	switch t.class {
	case ClassInteger:
		t.order = ByteOrder(d.Uint8())
		t.signed = d.Uint8() != 0
	case ClassFloat, ClassBitfield:
		t.order = ByteOrder(d.Uint8())
	case ClassString:
		t.charset = Charset(d.Uint8())
		t.padding = Padding(d.Uint8())
		t.variable = d.Uint8() != 0
	case ClassOpaque:
		t.tag = d.String()
	case ClassCompound:
		n := d.Uint32()
		for i := uint32(0); i < n && d.Err() == nil; i++ {
			name := d.String()
			off := d.Uint32()
			mt, err := parse(d, depth+1)
			if err != nil {
				return nil, err
			}
			t.members = append(t.members, Member{Name: name, Offset: off, Type: mt})
		}
	case ClassEnum:
		base, err := parse(d, depth+1)
		if err != nil {
			return nil, err
		}
		t.base = base
		n := d.Uint32()
		for i := uint32(0); i < n && d.Err() == nil; i++ {
			t.enums = append(t.enums, EnumValue{Name: d.String(), Value: int64(d.Uint64())})
		}
	case ClassArray:
		base, err := parse(d, depth+1)
		if err != nil {
			return nil, err
		}
		t.base = base
		n := int(d.Uint8())
		for i := 0; i < n; i++ {
			t.dims = append(t.dims, d.Uint32())
		}
	case ClassReference:
		t.ref = RefKind(d.Uint8())
	default:
		return nil, fmt.Errorf("unknown datatype class %d", t.class)
	}
	return t, d.Err()
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
