// Package space describes the shape of a dataset's element grid and
// selections within it.
package space

import (
	"fmt"
	"math"
	"strings"

	"github.com/robert-malhotra/go-hstore/internal/errs"
)

// Unlimited marks a dimension that may grow without bound.
const Unlimited = math.MaxUint64

// MaxRank is the largest supported rank.
const MaxRank = 32

// Space is a dataset shape with a current selection.
//
// A Space is not safe for concurrent modification.
type Space struct {
	dims    []uint64
	maxdims []uint64
	sel     selection
}

// NewSimple returns a space with the given current and maximum dimensions.
// A nil maxdims pins the maximum to dims. The selection starts as "all".
func NewSimple(dims, maxdims []uint64) (*Space, error) {
	if len(dims) == 0 {
		return nil, errs.New(errs.ErrDimensionMismatch, "simple space needs at least one dimension")
	}
	if len(dims) > MaxRank {
		return nil, errs.New(errs.ErrDimensionMismatch, "rank %d exceeds %d", len(dims), MaxRank)
	}
	if maxdims == nil {
		maxdims = dims
	}
	if len(maxdims) != len(dims) {
		return nil, errs.New(errs.ErrDimensionMismatch, "maxdims rank %d, dims rank %d", len(maxdims), len(dims))
	}
	for i := range dims {
		if maxdims[i] != Unlimited && dims[i] > maxdims[i] {
			return nil, errs.New(errs.ErrDimensionMismatch, "dimension %d: extent %d exceeds max %d", i, dims[i], maxdims[i])
		}
	}
	return &Space{
		dims:    clone(dims),
		maxdims: clone(maxdims),
		sel:     selection{mode: modeAll},
	}, nil
}

// NewScalar returns a rank-0 space holding exactly one element.
func NewScalar() *Space {
	return &Space{sel: selection{mode: modeAll}}
}

func clone(v []uint64) []uint64 {
	if v == nil {
		return nil
	}
	return append([]uint64(nil), v...)
}

// Rank returns the number of dimensions. Scalar spaces have rank 0.
func (s *Space) Rank() int { return len(s.dims) }

// IsScalar reports whether s is a rank-0 space.
func (s *Space) IsScalar() bool { return len(s.dims) == 0 }

// Dims returns a copy of the current extents.
func (s *Space) Dims() []uint64 { return clone(s.dims) }

// MaxDims returns a copy of the maximum extents.
func (s *Space) MaxDims() []uint64 { return clone(s.maxdims) }

// NumElements returns the number of elements in the grid.
func (s *Space) NumElements() uint64 {
	return product(s.dims)
}

func product(dims []uint64) uint64 {
	n := uint64(1)
	for _, d := range dims {
		n *= d
	}
	return n
}

// Extendible reports whether any dimension may grow beyond its current
// extent.
func (s *Space) Extendible() bool {
	for i := range s.dims {
		if s.maxdims[i] == Unlimited || s.maxdims[i] > s.dims[i] {
			return true
		}
	}
	return false
}

// SetExtent changes the current extents. The rank is fixed and each extent
// must stay within its maximum. The selection is reset to "all".
func (s *Space) SetExtent(dims []uint64) error {
	if len(dims) != len(s.dims) {
		return errs.New(errs.ErrDimensionMismatch, "new extent has rank %d, space has rank %d", len(dims), len(s.dims))
	}
	for i, d := range dims {
		if s.maxdims[i] != Unlimited && d > s.maxdims[i] {
			return errs.New(errs.ErrDimensionMismatch, "dimension %d: extent %d exceeds max %d", i, d, s.maxdims[i])
		}
	}
	s.dims = clone(dims)
	s.sel = selection{mode: modeAll}
	return nil
}

// Copy returns a deep copy of s including its selection.
func (s *Space) Copy() *Space {
	c := &Space{dims: clone(s.dims), maxdims: clone(s.maxdims)}
	c.sel = s.sel.copy()
	return c
}

// SameShape reports whether s and o have identical current and maximum
// extents.
func (s *Space) SameShape(o *Space) bool {
	if len(s.dims) != len(o.dims) {
		return false
	}
	for i := range s.dims {
		if s.dims[i] != o.dims[i] || s.maxdims[i] != o.maxdims[i] {
			return false
		}
	}
	return true
}

func (s *Space) String() string {
	if s.IsScalar() {
		return "scalar"
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, d := range s.dims {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%d", d)
		if s.maxdims[i] == Unlimited {
			b.WriteString("/inf")
		} else if s.maxdims[i] != d {
			fmt.Fprintf(&b, "/%d", s.maxdims[i])
		}
	}
	b.WriteByte(']')
	return b.String()
}
