package message

import (
	"fmt"

	"github.com/robert-malhotra/go-hstore/internal/binary"
	"github.com/robert-malhotra/go-hstore/internal/filter"
)

const maxFilters = 32

// FilterPipeline lists the chunk filters in encode order.
type FilterPipeline struct {
	Filters []filter.Spec
}

func (m *FilterPipeline) Type() Type { return TypeFilterPipeline }

func (m *FilterPipeline) Encode(e *binary.Encoder) {
	e.Uint8(uint8(len(m.Filters)))
	for _, f := range m.Filters {
		e.Uint16(uint16(f.ID))
		e.Uint8(boolByte(f.Optional))
		e.String(f.Name)
		e.Uint16(uint16(len(f.Params)))
		for _, p := range f.Params {
			e.Uint32(p)
		}
	}
}

func parseFilterPipeline(d *binary.Decoder) (*FilterPipeline, error) {
	n := int(d.Uint8())
	if n > maxFilters {
		return nil, fmt.Errorf("%d filters exceeds limit %d", n, maxFilters)
	}
	m := &FilterPipeline{Filters: make([]filter.Spec, 0, n)}
	for i := 0; i < n && d.Err() == nil; i++ {
		s := filter.Spec{
			ID:       filter.ID(d.Uint16()),
			Optional: d.Uint8() != 0,
			Name:     d.String(),
		}
		np := int(d.Uint16())
		if np*4 > d.Remaining() {
			return nil, fmt.Errorf("filter %d claims %d parameters", s.ID, np)
		}
		for j := 0; j < np; j++ {
			s.Params = append(s.Params, d.Uint32())
		}
		m.Filters = append(m.Filters, s)
	}
	return m, nil
}
