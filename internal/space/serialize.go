package space

import (
	"fmt"

	"github.com/robert-malhotra/go-hstore/internal/binary"
)

const shapeVersion = 1

// MarshalShape appends the rank and the current and maximum extents.
func (s *Space) MarshalShape(e *binary.Encoder) {
	e.Uint8(shapeVersion)
	e.Uint8(uint8(len(s.dims)))
	for i := range s.dims {
		e.Uint64(s.dims[i])
		e.Uint64(s.maxdims[i])
	}
}

// ParseShape decodes a shape written by MarshalShape. The selection of the
// returned space is "all".
func ParseShape(d *binary.Decoder) (*Space, error) {
	if v := d.Uint8(); d.Err() == nil && v != shapeVersion {
		return nil, fmt.Errorf("unsupported dataspace version %d", v)
	}
	rank := int(d.Uint8())
	if rank > MaxRank {
		return nil, fmt.Errorf("dataspace rank %d exceeds %d", rank, MaxRank)
	}
	if rank == 0 {
		return NewScalar(), d.Err()
	}
	dims := make([]uint64, rank)
	maxdims := make([]uint64, rank)
	for i := 0; i < rank; i++ {
		dims[i] = d.Uint64()
		maxdims[i] = d.Uint64()
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	return NewSimple(dims, maxdims)
}

// MarshalSelection appends the shape followed by the selection, so a region
// can be rebuilt without its dataset.
func (s *Space) MarshalSelection(e *binary.Encoder) {
	s.MarshalShape(e)
	e.Uint8(uint8(s.sel.mode))
	switch s.sel.mode {
	case modeBoxes:
		e.Uint32(uint32(len(s.sel.boxes)))
		for _, b := range s.sel.boxes {
			for i := range b.lo {
				e.Uint64(b.lo[i])
				e.Uint64(b.hi[i])
			}
		}
	case modePoints:
		e.Uint32(uint32(len(s.sel.points)))
		for _, p := range s.sel.points {
			for _, c := range p {
				e.Uint64(c)
			}
		}
	}
}

// ParseSelection decodes a space and selection written by MarshalSelection.
func ParseSelection(d *binary.Decoder) (*Space, error) {
	s, err := ParseShape(d)
	if err != nil {
		return nil, err
	}
	rank := len(s.dims)
	m := mode(d.Uint8())
	switch m {
	case modeNone, modeAll:
		s.sel = selection{mode: m}
	case modeBoxes:
		n := int(d.Uint32())
		if d.Err() == nil && n*rank*16 > d.Remaining() {
			return nil, fmt.Errorf("selection claims %d boxes, %d bytes left", n, d.Remaining())
		}
		bs := make([]box, n)
		for j := range bs {
			bs[j] = box{lo: make([]uint64, rank), hi: make([]uint64, rank)}
			for i := 0; i < rank; i++ {
				bs[j].lo[i] = d.Uint64()
				bs[j].hi[i] = d.Uint64()
			}
		}
		s.sel = selection{mode: modeBoxes, boxes: bs}
	case modePoints:
		n := int(d.Uint32())
		if d.Err() == nil && n*rank*8 > d.Remaining() {
			return nil, fmt.Errorf("selection claims %d points, %d bytes left", n, d.Remaining())
		}
		ps := make([][]uint64, n)
		for j := range ps {
			ps[j] = make([]uint64, rank)
			for i := range ps[j] {
				ps[j][i] = d.Uint64()
			}
		}
		s.sel = selection{mode: modePoints, points: ps}
	default:
		return nil, fmt.Errorf("unknown selection mode %d", m)
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	if err := s.Validate(s.dims); err != nil {
		return nil, err
	}
	return s, nil
}
