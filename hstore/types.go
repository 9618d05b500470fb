package hstore

import (
	"reflect"

	"github.com/robert-malhotra/go-hstore/internal/dtype"
)

// Type describes the byte layout of one dataset or attribute element.
type Type = dtype.Type

// Member is one field of a compound type.
type Member = dtype.Member

// EnumValue is one named constant of an enumeration type.
type EnumValue = dtype.EnumValue

// TypeClass is the class of a Type.
type TypeClass = dtype.Class

// Type classes.
const (
	ClassInteger   = dtype.ClassInteger
	ClassFloat     = dtype.ClassFloat
	ClassString    = dtype.ClassString
	ClassBitfield  = dtype.ClassBitfield
	ClassOpaque    = dtype.ClassOpaque
	ClassCompound  = dtype.ClassCompound
	ClassEnum      = dtype.ClassEnum
	ClassArray     = dtype.ClassArray
	ClassReference = dtype.ClassReference
)

// ByteOrder of numeric types.
type ByteOrder = dtype.ByteOrder

const (
	LittleEndian = dtype.OrderLE
	BigEndian    = dtype.OrderBE
)

// Charset of string types.
type Charset = dtype.Charset

const (
	ASCII = dtype.CharsetASCII
	UTF8  = dtype.CharsetUTF8
)

// Padding of fixed-length strings.
type Padding = dtype.Padding

const (
	NullTerm = dtype.PadNullTerm
	NullPad  = dtype.PadNull
	SpacePad = dtype.PadSpace
)

// RefKind selects object or region references.
type RefKind = dtype.RefKind

const (
	RefObject = dtype.RefObject
	RefRegion = dtype.RefRegion
)

// Variable is the string length of a variable-length string type.
const Variable = dtype.Variable

// ObjectRef refers to a group, dataset or committed type.
type ObjectRef = dtype.ObjectRef

// RegionRef refers to a selection of a dataset.
type RegionRef = dtype.RegionRef

// Predefined little-endian and big-endian scalar types.
var (
	Int8      = dtype.Int8
	Int16     = dtype.Int16
	Int32     = dtype.Int32
	Int64     = dtype.Int64
	Uint8     = dtype.Uint8
	Uint16    = dtype.Uint16
	Uint32    = dtype.Uint32
	Uint64    = dtype.Uint64
	Float32   = dtype.Float32
	Float64   = dtype.Float64
	Int16BE   = dtype.Int16BE
	Int32BE   = dtype.Int32BE
	Int64BE   = dtype.Int64BE
	Float32BE = dtype.Float32BE
	Float64BE = dtype.Float64BE
)

// NewInteger returns an integer type of 1, 2, 4 or 8 bytes.
func NewInteger(size int, signed bool, order ByteOrder) (*Type, error) {
	return dtype.NewInteger(size, signed, order)
}

// NewFloat returns a 4 or 8 byte IEEE float type.
func NewFloat(size int, order ByteOrder) (*Type, error) {
	return dtype.NewFloat(size, order)
}

// NewBitfield returns a bitfield type of 1, 2, 4 or 8 bytes.
func NewBitfield(size int, order ByteOrder) (*Type, error) {
	return dtype.NewBitfield(size, order)
}

// NewString returns a string type of fixed length, or of variable length
// when length is Variable.
func NewString(charset Charset, length int, padding Padding) (*Type, error) {
	return dtype.NewString(charset, length, padding)
}

// NewOpaque returns an uninterpreted blob type with a descriptive tag.
func NewOpaque(size int, tag string) (*Type, error) {
	return dtype.NewOpaque(size, tag)
}

// NewCompound returns an empty compound type of the given total size.
// Add fields with InsertMember.
func NewCompound(size int) (*Type, error) {
	return dtype.NewCompound(size)
}

// NewArray returns a fixed-shape array of base.
func NewArray(base *Type, dims ...uint32) (*Type, error) {
	return dtype.NewArray(base, dims)
}

// NewEnum returns an empty enumeration over an integer base type. Add
// constants with InsertEnum.
func NewEnum(base *Type) (*Type, error) {
	return dtype.NewEnum(base)
}

// NewReference returns an object or region reference type.
func NewReference(kind RefKind) (*Type, error) {
	return dtype.NewReference(kind)
}

// TypeOf infers a type from a Go value: sized numbers, strings (variable
// length UTF-8), arrays, structs and references. Slices describe their
// element type.
func TypeOf(v any) (*Type, error) {
	gt := reflect.TypeOf(v)
	if gt == nil {
		return nil, &Error{Kind: ErrTypeMismatch, Op: "infer type", Err: ErrTypeMismatch}
	}
	for gt.Kind() == reflect.Pointer || (gt.Kind() == reflect.Slice && gt.Elem().Kind() != reflect.Uint8) {
		gt = gt.Elem()
	}
	return dtype.FromGo(gt)
}
