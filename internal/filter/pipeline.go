package filter

import (
	"errors"
	"fmt"

	"github.com/robert-malhotra/go-hstore/internal/errs"
)

// Spec is one entry of a stored pipeline.
type Spec struct {
	ID       ID
	Name     string
	Optional bool
	Params   []uint32
}

// Pipeline is the ordered filter chain of a dataset.
type Pipeline struct {
	specs   []Spec
	filters []Filter // nil where the filter is not registered
	flags   []Capability
	observe Observer
}

// Observer is told the payload size before and after each filter step.
type Observer func(filter, direction string, in, out int)

// MaxFilters is the longest pipeline; each filter owns one bit of a chunk's
// 32-bit skip mask.
const MaxFilters = 32

// NewPipeline builds a pipeline for elements of elemSize bytes. Filters
// missing from the registry are tolerated here; the direction that needs
// them fails with ErrFilterUnavailable.
func NewPipeline(specs []Spec, elemSize int) (*Pipeline, error) {
	if len(specs) > MaxFilters {
		return nil, errs.New(errs.ErrFilterData, "pipeline has %d filters, at most %d are allowed", len(specs), MaxFilters)
	}
	p := &Pipeline{
		specs:   make([]Spec, len(specs)),
		filters: make([]Filter, len(specs)),
		flags:   make([]Capability, len(specs)),
	}
	for i, s := range specs {
		s.Params = append([]uint32(nil), s.Params...)
		info, ok := Lookup(s.ID)
		if ok {
			if s.Name == "" {
				s.Name = info.Name
			}
			f, err := info.New(s.Params, elemSize)
			if err != nil {
				return nil, dataErr(err, "%s filter parameters", info.Name)
			}
			p.filters[i] = f
			p.flags[i] = info.Flags
		} else if s.Name == "" {
			s.Name = Name(s.ID)
		}
		p.specs[i] = s
	}
	return p, nil
}

// SetObserver installs fn to be called after every filter step. It must be
// set before the pipeline is shared between goroutines.
func (p *Pipeline) SetObserver(fn Observer) { p.observe = fn }

func (p *Pipeline) observed(name, direction string, in, out int) {
	if p.observe != nil {
		p.observe(name, direction, in, out)
	}
}

// Specs returns the filter list in encode order.
func (p *Pipeline) Specs() []Spec {
	out := make([]Spec, len(p.specs))
	copy(out, p.specs)
	return out
}

// Empty reports whether the pipeline has no filters.
func (p *Pipeline) Empty() bool { return p == nil || len(p.specs) == 0 }

// Len returns the number of filters.
func (p *Pipeline) Len() int { return len(p.specs) }

// CanEncode fails with ErrFilterUnavailable when a mandatory filter cannot
// encode in this process.
func (p *Pipeline) CanEncode() error {
	for i, s := range p.specs {
		if p.filters[i] == nil || p.flags[i]&CanEncode == 0 {
			if s.Optional {
				continue
			}
			return errs.New(errs.ErrFilterUnavailable, "%s (id %d) cannot encode", s.Name, s.ID)
		}
	}
	return nil
}

// Encode runs the filters in list order. The returned mask has bit i set for
// each optional filter that was skipped.
func (p *Pipeline) Encode(data []byte) ([]byte, uint32, error) {
	var mask uint32
	for i, s := range p.specs {
		f := p.filters[i]
		if f == nil || p.flags[i]&CanEncode == 0 {
			if s.Optional {
				mask |= 1 << uint(i)
				continue
			}
			return nil, 0, errs.New(errs.ErrFilterUnavailable, "%s (id %d) cannot encode", s.Name, s.ID)
		}
		out, err := f.Encode(data)
		if err != nil {
			if s.Optional {
				mask |= 1 << uint(i)
				continue
			}
			if errors.Is(err, ErrIncompressible) {
				return nil, 0, errs.New(errs.ErrFilterData, "%s: mandatory filter cannot compress chunk", s.Name)
			}
			return nil, 0, dataErr(err, "%s encode", s.Name)
		}
		p.observed(s.Name, "encode", len(data), len(out))
		data = out
	}
	return data, mask, nil
}

// Decode runs the filters in reverse order, skipping those whose bit is set
// in mask.
func (p *Pipeline) Decode(data []byte, mask uint32) ([]byte, error) {
	for i := len(p.specs) - 1; i >= 0; i-- {
		if mask&(1<<uint(i)) != 0 {
			continue
		}
		s := p.specs[i]
		f := p.filters[i]
		if f == nil || p.flags[i]&CanDecode == 0 {
			return nil, errs.New(errs.ErrFilterUnavailable, "%s (id %d) cannot decode", s.Name, s.ID)
		}
		out, err := f.Decode(data)
		if err != nil {
			return nil, dataErr(err, "%s decode", s.Name)
		}
		p.observed(s.Name, "decode", len(data), len(out))
		data = out
	}
	return data, nil
}

func dataErr(cause error, format string, args ...any) error {
	return &errs.Error{Kind: errs.ErrFilterData, Err: fmt.Errorf(format+": %w", append(args, cause)...)}
}
