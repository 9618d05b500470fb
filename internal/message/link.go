package message

import (
	"fmt"

	"github.com/robert-malhotra/go-hstore/internal/binary"
)

// LinkKind distinguishes hard and soft links.
type LinkKind uint8

const (
	LinkHard LinkKind = 0
	LinkSoft LinkKind = 1
)

func (k LinkKind) String() string {
	if k == LinkSoft {
		return "soft"
	}
	return "hard"
}

// Link is one named entry of a group.
type Link struct {
	Name          string
	CreationOrder uint64
	Kind          LinkKind
	Object        uint64 // hard links
	Target        string // soft links
}

func (m *Link) Type() Type { return TypeLink }

func (m *Link) Encode(e *binary.Encoder) {
	e.String(m.Name)
	e.Uint64(m.CreationOrder)
	e.Uint8(uint8(m.Kind))
	if m.Kind == LinkSoft {
		e.String(m.Target)
	} else {
		e.Uint64(m.Object)
	}
}

func parseLink(d *binary.Decoder) (*Link, error) {
	m := &Link{
		Name:          d.String(),
		CreationOrder: d.Uint64(),
		Kind:          LinkKind(d.Uint8()),
	}
	switch m.Kind {
	case LinkHard:
		m.Object = d.Uint64()
	case LinkSoft:
		m.Target = d.String()
	default:
		return nil, fmt.Errorf("unknown link kind %d", m.Kind)
	}
	if d.Err() == nil && m.Name == "" {
		return nil, fmt.Errorf("link with empty name")
	}
	return m, nil
}

// ParseLink decodes a link body, as stored in dense link indexes.
func ParseLink(data []byte, cfg binary.Config) (*Link, error) {
	d := binary.NewDecoder(data, cfg)
	m, err := parseLink(d)
	if err == nil {
		err = d.Err()
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// LinkInfo carries the group's creation-order counter and, for dense
// groups, the location of the link index.
type LinkInfo struct {
	NextOrder uint64
	Dense     bool
	IndexAddr uint64
	IndexSize uint64
}

func (m *LinkInfo) Type() Type { return TypeLinkInfo }

func (m *LinkInfo) Encode(e *binary.Encoder) {
	e.Uint64(m.NextOrder)
	e.Uint8(boolByte(m.Dense))
	if m.Dense {
		e.Offset(m.IndexAddr)
		e.Length(m.IndexSize)
	}
}

func parseLinkInfo(d *binary.Decoder) (*LinkInfo, error) {
	m := &LinkInfo{NextOrder: d.Uint64(), Dense: d.Uint8() != 0}
	if m.Dense {
		m.IndexAddr = d.Offset()
		m.IndexSize = d.Length()
	}
	return m, nil
}

// GroupInfo holds the compact/dense storage thresholds of a group.
type GroupInfo struct {
	MaxCompact uint16
	MinDense   uint16
}

func (m *GroupInfo) Type() Type { return TypeGroupInfo }

func (m *GroupInfo) Encode(e *binary.Encoder) {
	e.Uint16(m.MaxCompact)
	e.Uint16(m.MinDense)
}

func parseGroupInfo(d *binary.Decoder) (*GroupInfo, error) {
	m := &GroupInfo{MaxCompact: d.Uint16(), MinDense: d.Uint16()}
	if d.Err() == nil && m.MinDense >= m.MaxCompact {
		return nil, fmt.Errorf("min dense %d not below max compact %d", m.MinDense, m.MaxCompact)
	}
	return m, nil
}
