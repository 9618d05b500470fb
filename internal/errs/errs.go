// Package errs defines the failure kinds shared by every layer of the store.
//
// A failure is reported as an *Error whose Kind is one of the sentinel values
// below. errors.Is matches the kind; errors.As recovers the operation context.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Failure kinds.
var (
	ErrNameExists        = errors.New("name already exists")
	ErrPathNotFound      = errors.New("path not found")
	ErrTypeMismatch      = errors.New("object type mismatch")
	ErrOverlap           = errors.New("member overlaps existing member")
	ErrDuplicateName     = errors.New("duplicate name")
	ErrSelectionBounds   = errors.New("selection out of bounds")
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrConversionRange   = errors.New("conversion out of range")
	ErrFilterUnavailable = errors.New("filter unavailable")
	ErrFilterData        = errors.New("malformed filter data")
	ErrIO                = errors.New("i/o failure")
	ErrHandlesStillOpen  = errors.New("handles still open")
	ErrStaleHandle       = errors.New("stale handle")
	ErrInvalidConfig     = errors.New("invalid configuration")
)

var kinds = []error{
	ErrNameExists, ErrPathNotFound, ErrTypeMismatch, ErrOverlap, ErrDuplicateName,
	ErrSelectionBounds, ErrDimensionMismatch, ErrConversionRange, ErrFilterUnavailable,
	ErrFilterData, ErrIO, ErrHandlesStillOpen, ErrStaleHandle, ErrInvalidConfig,
}

// Error is a classified failure with the context needed to reproduce it.
type Error struct {
	Kind   error
	Op     string
	Path   string
	Coords []uint64
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(" ")
	}
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(" ")
	}
	if e.Coords != nil {
		fmt.Fprintf(&b, "at %v ", e.Coords)
	}
	b.WriteString(e.Kind.Error())
	if e.Err != nil && e.Err != e.Kind {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil || e.Err == e.Kind {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New returns a failure of the given kind with a formatted detail message.
func New(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// At is New with element coordinates attached.
func At(kind error, coords []uint64, format string, args ...any) *Error {
	e := New(kind, format, args...)
	e.Coords = append([]uint64(nil), coords...)
	return e
}

// IO classifies a storage-medium failure.
func IO(err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != nil {
		return err
	}
	return &Error{Kind: ErrIO, Err: err}
}

// KindOf returns the failure kind of err, or nil if err is unclassified.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Wrap attaches operation context to err. Unclassified errors become ErrIO.
// Existing op and path values are kept so the innermost context wins.
func Wrap(err error, op, path string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		out := *e
		if out.Op == "" {
			out.Op = op
		}
		if out.Path == "" {
			out.Path = path
		}
		return &out
	}
	kind := KindOf(err)
	if kind == nil {
		kind = ErrIO
	}
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}
