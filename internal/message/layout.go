package message

import (
	"fmt"

	"github.com/robert-malhotra/go-hstore/internal/binary"
	"github.com/robert-malhotra/go-hstore/internal/space"
)

// LayoutClass selects how raw data is stored.
type LayoutClass uint8

const (
	LayoutCompact    LayoutClass = 0 // raw data inside the header
	LayoutContiguous LayoutClass = 1 // one extent in the file or external files
	LayoutChunked    LayoutClass = 2 // independently filtered chunks
)

func (c LayoutClass) String() string {
	switch c {
	case LayoutCompact:
		return "compact"
	case LayoutContiguous:
		return "contiguous"
	case LayoutChunked:
		return "chunked"
	}
	return fmt.Sprintf("layout-%d", uint8(c))
}

// AllocTime controls when raw data space is allocated.
type AllocTime uint8

const (
	AllocLate        AllocTime = iota // on first write
	AllocEarly                        // at creation and on extension
	AllocIncremental                  // per chunk, on first write to that chunk
)

func (a AllocTime) String() string {
	switch a {
	case AllocLate:
		return "late"
	case AllocEarly:
		return "early"
	case AllocIncremental:
		return "incremental"
	}
	return fmt.Sprintf("alloc-%d", uint8(a))
}

// MaxCompactSize is the largest raw data a compact layout may hold.
const MaxCompactSize = 64 << 10

// Layout describes dataset storage.
type Layout struct {
	Class     LayoutClass
	AllocTime AllocTime

	// Chunked
	Chunk     []uint64
	IndexAddr uint64 // chunk index record, 0 if no chunk is allocated
	IndexSize uint64

	// Contiguous
	Addr uint64 // 0 if not allocated
	Size uint64

	// Compact
	Data []byte
}

func (m *Layout) Type() Type { return TypeLayout }

func (m *Layout) Encode(e *binary.Encoder) {
	e.Uint8(uint8(m.Class))
	e.Uint8(uint8(m.AllocTime))
	switch m.Class {
	case LayoutChunked:
		e.Uint8(uint8(len(m.Chunk)))
		for _, c := range m.Chunk {
			e.Uint64(c)
		}
		e.Offset(m.IndexAddr)
		e.Length(m.IndexSize)
	case LayoutContiguous:
		e.Offset(m.Addr)
		e.Length(m.Size)
	case LayoutCompact:
		e.Blob(m.Data)
	}
}

func parseLayout(d *binary.Decoder) (*Layout, error) {
	m := &Layout{
		Class:     LayoutClass(d.Uint8()),
		AllocTime: AllocTime(d.Uint8()),
	}
	if m.AllocTime > AllocIncremental {
		return nil, fmt.Errorf("unknown allocation time %d", m.AllocTime)
	}
	switch m.Class {
	case LayoutChunked:
		rank := int(d.Uint8())
		if rank == 0 || rank > space.MaxRank {
			return nil, fmt.Errorf("chunk rank %d", rank)
		}
		m.Chunk = make([]uint64, rank)
		for i := range m.Chunk {
			m.Chunk[i] = d.Uint64()
			if d.Err() == nil && m.Chunk[i] == 0 {
				return nil, fmt.Errorf("chunk dimension %d is zero", i)
			}
		}
		m.IndexAddr = d.Offset()
		m.IndexSize = d.Length()
	case LayoutContiguous:
		m.Addr = d.Offset()
		m.Size = d.Length()
	case LayoutCompact:
		m.Data = d.Blob()
		if len(m.Data) > MaxCompactSize {
			return nil, fmt.Errorf("compact data of %d bytes", len(m.Data))
		}
	default:
		return nil, fmt.Errorf("unsupported layout class: %d", m.Class)
	}
	return m, nil
}

// ExternalFile is one segment of raw data stored outside the container.
// Size space.Unlimited means the segment extends to any length.
type ExternalFile struct {
	Name   string
	Offset uint64
	Size   uint64
}

// External lists the files holding contiguous raw data, in element order.
type External struct {
	Files []ExternalFile
}

func (m *External) Type() Type { return TypeExternal }

func (m *External) Encode(e *binary.Encoder) {
	e.Uint16(uint16(len(m.Files)))
	for _, f := range m.Files {
		e.String(f.Name)
		e.Uint64(f.Offset)
		e.Uint64(f.Size)
	}
}

func parseExternal(d *binary.Decoder) (*External, error) {
	n := int(d.Uint16())
	m := &External{}
	for i := 0; i < n && d.Err() == nil; i++ {
		f := ExternalFile{Name: d.String(), Offset: d.Uint64(), Size: d.Uint64()}
		if d.Err() == nil && f.Name == "" {
			return nil, fmt.Errorf("external file %d has no name", i)
		}
		m.Files = append(m.Files, f)
	}
	return m, nil
}
