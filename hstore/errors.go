// Package hstore is a self-describing hierarchical object store.
//
// A Container is a single file holding a tree of named groups, typed
// multidimensional datasets and committed datatypes. Datasets are stored
// contiguously, compactly inside their object header, or as independently
// filtered chunks.
package hstore

import (
	"errors"

	"github.com/robert-malhotra/go-hstore/internal/errs"
)

// Failure kinds. Every operation that fails returns an error matching
// exactly one of these with errors.Is.
var (
	ErrNameExists        = errs.ErrNameExists
	ErrPathNotFound      = errs.ErrPathNotFound
	ErrTypeMismatch      = errs.ErrTypeMismatch
	ErrOverlap           = errs.ErrOverlap
	ErrDuplicateName     = errs.ErrDuplicateName
	ErrSelectionBounds   = errs.ErrSelectionBounds
	ErrDimensionMismatch = errs.ErrDimensionMismatch
	ErrConversionRange   = errs.ErrConversionRange
	ErrFilterUnavailable = errs.ErrFilterUnavailable
	ErrFilterData        = errs.ErrFilterData
	ErrIO                = errs.ErrIO
	ErrHandlesStillOpen  = errs.ErrHandlesStillOpen
	ErrStaleHandle       = errs.ErrStaleHandle
	ErrInvalidConfig     = errs.ErrInvalidConfig
)

// Error is a classified failure carrying the operation, object path and
// element coordinates involved. Recover it with errors.As.
type Error = errs.Error

// ErrStopWalk may be returned by a Visit or IterateLinks callback to stop
// early. It is returned unchanged to the caller.
var ErrStopWalk = errors.New("stop walk")

// MaxLinkDepth is the maximum number of soft links followed while resolving
// one path.
const MaxLinkDepth = 100

// KindOf returns the failure kind of err, or nil if err did not come from
// this package.
func KindOf(err error) error {
	return errs.KindOf(err)
}
