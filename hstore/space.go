package hstore

import (
	"github.com/robert-malhotra/go-hstore/internal/space"
)

// Space is a dataset shape with an optional selection.
type Space = space.Space

// Op combines a new selection with the existing one.
type Op = space.Op

// Selection operators.
const (
	OpSet  = space.OpSet
	OpOr   = space.OpOr
	OpAnd  = space.OpAnd
	OpXor  = space.OpXor
	OpNotB = space.OpNotB
	OpNotA = space.OpNotA
)

// Unlimited as a maximum dimension allows unbounded growth.
const Unlimited = space.Unlimited

// NewSimpleSpace returns a space of the given extent. A nil maxdims pins the
// maximum extent to dims. Everything is selected.
func NewSimpleSpace(dims, maxdims []uint64) (*Space, error) {
	return space.NewSimple(dims, maxdims)
}

// NewScalarSpace returns a rank-0 space holding one element.
func NewScalarSpace() *Space {
	return space.NewScalar()
}
