// Package dtype describes the binary layout of dataset and attribute elements.
package dtype

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/robert-malhotra/go-hstore/internal/errs"
)

// Class is the closed set of element type classes.
type Class uint8

const (
	ClassInteger Class = iota
	ClassFloat
	ClassString
	ClassBitfield
	ClassOpaque
	ClassCompound
	ClassEnum
	ClassArray
	ClassReference
)

var classNames = [...]string{
	ClassInteger:   "INTEGER",
	ClassFloat:     "FLOAT",
	ClassString:    "STRING",
	ClassBitfield:  "BITFIELD",
	ClassOpaque:    "OPAQUE",
	ClassCompound:  "COMPOUND",
	ClassEnum:      "ENUM",
	ClassArray:     "ARRAY",
	ClassReference: "REFERENCE",
}

func (c Class) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return fmt.Sprintf("Class(%d)", uint8(c))
}

// ByteOrder of numeric and bitfield types.
type ByteOrder uint8

const (
	OrderLE ByteOrder = iota
	OrderBE
)

func (o ByteOrder) binary() binary.ByteOrder {
	if o == OrderBE {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Charset of string types.
type Charset uint8

const (
	CharsetASCII Charset = iota
	CharsetUTF8
)

// Padding policy of fixed-length strings.
type Padding uint8

const (
	PadNullTerm Padding = iota // NUL terminated, remainder NUL
	PadNull                    // NUL padded, no terminator required
	PadSpace                   // space padded
)

// RefKind distinguishes object and region references.
type RefKind uint8

const (
	RefObject RefKind = iota
	RefRegion
)

// Variable is the string length that selects a variable-length string.
const Variable = -1

// VarLenSize is the stored size of one variable-length string element:
// an 8-byte length followed by an 8-byte heap address.
const VarLenSize = 16

// MaxOpaqueTag is the longest tag an opaque type may carry.
const MaxOpaqueTag = 255

// Member is one field of a compound type.
type Member struct {
	Name   string
	Offset uint32
	Type   *Type
}

// EnumValue is one named constant of an enumeration type.
type EnumValue struct {
	Name  string
	Value int64
}

// Type describes the layout of one element. Types are built with the New*
// constructors; compound and enum types are filled in afterwards and become
// immutable once locked (when committed or attached to a dataset).
type Type struct {
	class    Class
	size     uint32
	order    ByteOrder
	signed   bool
	charset  Charset
	padding  Padding
	variable bool
	tag      string
	members  []Member
	base     *Type
	dims     []uint32
	enums    []EnumValue
	ref      RefKind
	locked   bool
}

// Predefined scalar types.
var (
	Int8    = mustInt(1, true, OrderLE)
	Int16   = mustInt(2, true, OrderLE)
	Int32   = mustInt(4, true, OrderLE)
	Int64   = mustInt(8, true, OrderLE)
	Uint8   = mustInt(1, false, OrderLE)
	Uint16  = mustInt(2, false, OrderLE)
	Uint32  = mustInt(4, false, OrderLE)
	Uint64  = mustInt(8, false, OrderLE)
	Int16BE = mustInt(2, true, OrderBE)
	Int32BE = mustInt(4, true, OrderBE)
	Int64BE = mustInt(8, true, OrderBE)
	Float32 = mustFloat(4, OrderLE)
	Float64 = mustFloat(8, OrderLE)

	Float32BE = mustFloat(4, OrderBE)
	Float64BE = mustFloat(8, OrderBE)
)

func mustInt(size int, signed bool, order ByteOrder) *Type {
	t, err := NewInteger(size, signed, order)
	if err != nil {
		panic(err)
	}
	t.locked = true
	return t
}

func mustFloat(size int, order ByteOrder) *Type {
	t, err := NewFloat(size, order)
	if err != nil {
		panic(err)
	}
	t.locked = true
	return t
}

func invalid(format string, args ...any) error {
	return errs.New(errs.ErrTypeMismatch, format, args...)
}

// NewInteger returns a fixed-width integer type of 1, 2, 4 or 8 bytes.
func NewInteger(size int, signed bool, order ByteOrder) (*Type, error) {
	if !validWidth(size) {
		return nil, invalid("integer size %d not in {1,2,4,8}", size)
	}
	return &Type{class: ClassInteger, size: uint32(size), signed: signed, order: order}, nil
}

// NewFloat returns an IEEE 754 binary32 or binary64 type.
func NewFloat(size int, order ByteOrder) (*Type, error) {
	if size != 4 && size != 8 {
		return nil, invalid("float size %d not in {4,8}", size)
	}
	return &Type{class: ClassFloat, size: uint32(size), order: order}, nil
}

// NewBitfield returns a bit-field type of 1, 2, 4 or 8 bytes.
func NewBitfield(size int, order ByteOrder) (*Type, error) {
	if !validWidth(size) {
		return nil, invalid("bitfield size %d not in {1,2,4,8}", size)
	}
	return &Type{class: ClassBitfield, size: uint32(size), order: order}, nil
}

// NewString returns a fixed-length string of length bytes, or a
// variable-length string when length is Variable.
func NewString(charset Charset, length int, padding Padding) (*Type, error) {
	if charset > CharsetUTF8 {
		return nil, invalid("unknown charset %d", charset)
	}
	if padding > PadSpace {
		return nil, invalid("unknown padding %d", padding)
	}
	t := &Type{class: ClassString, charset: charset, padding: padding}
	switch {
	case length == Variable:
		t.variable = true
		t.size = VarLenSize
	case length > 0:
		t.size = uint32(length)
	default:
		return nil, invalid("string length %d must be positive or Variable", length)
	}
	return t, nil
}

// NewOpaque returns an uninterpreted blob type of size bytes with a
// descriptive tag.
func NewOpaque(size int, tag string) (*Type, error) {
	if size <= 0 {
		return nil, invalid("opaque size %d must be positive", size)
	}
	if len(tag) > MaxOpaqueTag {
		return nil, invalid("opaque tag longer than %d bytes", MaxOpaqueTag)
	}
	return &Type{class: ClassOpaque, size: uint32(size), tag: tag}, nil
}

// NewCompound returns an empty compound type of size bytes. Members are
// added with InsertMember.
func NewCompound(size int) (*Type, error) {
	if size <= 0 {
		return nil, invalid("compound size %d must be positive", size)
	}
	return &Type{class: ClassCompound, size: uint32(size)}, nil
}

// NewArray returns a fixed-count array of base with the given dimensions.
func NewArray(base *Type, dims []uint32) (*Type, error) {
	if base == nil {
		return nil, invalid("array base type is nil")
	}
	if len(dims) == 0 {
		return nil, invalid("array needs at least one dimension")
	}
	n := uint64(1)
	for _, d := range dims {
		if d == 0 {
			return nil, invalid("array dimension must be positive")
		}
		n *= uint64(d)
	}
	size := n * uint64(base.size)
	if size > 1<<32-1 {
		return nil, invalid("array size %d too large", size)
	}
	return &Type{class: ClassArray, size: uint32(size), base: base.lockedCopy(), dims: append([]uint32(nil), dims...)}, nil
}

// NewEnum returns an empty enumeration over an integer base type. Values
// are added with InsertEnum.
func NewEnum(base *Type) (*Type, error) {
	if base == nil || base.class != ClassInteger {
		return nil, invalid("enum base must be an integer type")
	}
	return &Type{class: ClassEnum, size: base.size, base: base.lockedCopy()}, nil
}

// NewReference returns an object or region reference type.
func NewReference(kind RefKind) (*Type, error) {
	switch kind {
	case RefObject:
		return &Type{class: ClassReference, size: 8, ref: kind}, nil
	case RefRegion:
		return &Type{class: ClassReference, size: 16, ref: kind}, nil
	}
	return nil, invalid("unknown reference kind %d", kind)
}

func validWidth(n int) bool { return n == 1 || n == 2 || n == 4 || n == 8 }

// InsertMember appends a member to a compound type. The byte range
// [offset, offset+size) must lie inside the compound and must not intersect
// any earlier member.
func (t *Type) InsertMember(name string, offset uint32, member *Type) error {
	if t.class != ClassCompound {
		return invalid("insert member into %s type", t.class)
	}
	if t.locked {
		return invalid("compound type is read-only")
	}
	if member == nil {
		return invalid("member %q has nil type", name)
	}
	if name == "" {
		return invalid("member name is empty")
	}
	for _, m := range t.members {
		if m.Name == name {
			return errs.New(errs.ErrDuplicateName, "compound member %q", name)
		}
	}
	end := uint64(offset) + uint64(member.size)
	if end > uint64(t.size) {
		return errs.New(errs.ErrOverlap, "member %q [%d,%d) extends past compound size %d", name, offset, end, t.size)
	}
	for _, m := range t.members {
		mEnd := uint64(m.Offset) + uint64(m.Type.size)
		if uint64(offset) < mEnd && uint64(m.Offset) < end {
			return errs.New(errs.ErrOverlap, "member %q [%d,%d) overlaps %q [%d,%d)", name, offset, end, m.Name, m.Offset, mEnd)
		}
	}
	t.members = append(t.members, Member{Name: name, Offset: offset, Type: member.lockedCopy()})
	return nil
}

// InsertEnum adds a named constant to an enumeration type.
func (t *Type) InsertEnum(name string, value int64) error {
	if t.class != ClassEnum {
		return invalid("insert enum value into %s type", t.class)
	}
	if t.locked {
		return invalid("enum type is read-only")
	}
	for _, e := range t.enums {
		if e.Name == name {
			return errs.New(errs.ErrDuplicateName, "enum name %q", name)
		}
		if e.Value == value {
			return errs.New(errs.ErrDuplicateName, "enum value %d already named %q", value, e.Name)
		}
	}
	if !intFits(value, t.base) {
		return errs.New(errs.ErrConversionRange, "enum value %d does not fit %d-byte base", value, t.size)
	}
	t.enums = append(t.enums, EnumValue{Name: name, Value: value})
	return nil
}

// Lock makes the type immutable.
func (t *Type) Lock() { t.locked = true }

// Locked reports whether the type can no longer be modified.
func (t *Type) Locked() bool { return t.locked }

// Clone returns an unlocked deep copy.
func (t *Type) Clone() *Type {
	c := *t
	c.locked = false
	c.members = make([]Member, len(t.members))
	copy(c.members, t.members)
	c.dims = append([]uint32(nil), t.dims...)
	c.enums = append([]EnumValue(nil), t.enums...)
	return &c
}

func (t *Type) lockedCopy() *Type {
	if t.locked {
		return t
	}
	c := t.Clone()
	c.locked = true
	return c
}

func (t *Type) Class() Class { return t.class }
func (t *Type) Size() int { return int(t.size) }
func (t *Type) Order() ByteOrder { return t.order }
func (t *Type) Signed() bool { return t.signed }
func (t *Type) Charset() Charset { return t.charset }
func (t *Type) Padding() Padding { return t.padding }
func (t *Type) IsVariable() bool { return t.variable }
func (t *Type) Tag() string { return t.tag }
func (t *Type) Base() *Type { return t.base }
func (t *Type) RefKind() RefKind { return t.ref }
func (t *Type) Dims() []uint32 { return append([]uint32(nil), t.dims...) }
func (t *Type) NumMembers() int { return len(t.members) }
func (t *Type) Member(i int) Member { return t.members[i] }

// Members returns the compound members in insertion order.
func (t *Type) Members() []Member {
	return append([]Member(nil), t.members...)
}

// EnumValues returns the enumeration constants in insertion order.
func (t *Type) EnumValues() []EnumValue {
	return append([]EnumValue(nil), t.enums...)
}

// EnumName returns the name of value, if it has one.
func (t *Type) EnumName(value int64) (string, bool) {
	for _, e := range t.enums {
		if e.Value == value {
			return e.Name, true
		}
	}
	return "", false
}

// EnumValueOf returns the value named name.
func (t *Type) EnumValueOf(name string) (int64, bool) {
	for _, e := range t.enums {
		if e.Name == name {
			return e.Value, true
		}
	}
	return 0, false
}

// ArrayLen returns the number of base elements in an array type.
func (t *Type) ArrayLen() int {
	n := 1
	for _, d := range t.dims {
		n *= int(d)
	}
	return n
}

// HasVarLen reports whether elements of t reference heap storage.
func (t *Type) HasVarLen() bool {
	switch t.class {
	case ClassString:
		return t.variable
	case ClassArray:
		return t.base.HasVarLen()
	case ClassCompound:
		for _, m := range t.members {
			if m.Type.HasVarLen() {
				return true
			}
		}
	case ClassReference:
		return t.ref == RefRegion
	}
	return false
}

// Equal reports whether two types describe the same layout.
func (t *Type) Equal(o *Type) bool {
	if t == o {
		return true
	}
	if t == nil || o == nil {
		return false
	}
	if t.class != o.class || t.size != o.size {
		return false
	}
	switch t.class {
	case ClassInteger:
		return t.order == o.order && t.signed == o.signed
	case ClassFloat, ClassBitfield:
		return t.order == o.order
	case ClassString:
		return t.charset == o.charset && t.padding == o.padding && t.variable == o.variable
	case ClassOpaque:
		return t.tag == o.tag
	case ClassCompound:
		if len(t.members) != len(o.members) {
			return false
		}
		for i, m := range t.members {
			om := o.members[i]
			if m.Name != om.Name || m.Offset != om.Offset || !m.Type.Equal(om.Type) {
				return false
			}
		}
		return true
	case ClassEnum:
		if !t.base.Equal(o.base) || len(t.enums) != len(o.enums) {
			return false
		}
		for i := range t.enums {
			if t.enums[i] != o.enums[i] {
				return false
			}
		}
		return true
	case ClassArray:
		if len(t.dims) != len(o.dims) || !t.base.Equal(o.base) {
			return false
		}
		for i := range t.dims {
			if t.dims[i] != o.dims[i] {
				return false
			}
		}
		return true
	case ClassReference:
		return t.ref == o.ref
	}
	return false
}

// String returns a compact human-readable description.
func (t *Type) String() string {
	order := func() string {
		if t.order == OrderBE {
			return "be"
		}
		return "le"
	}
	switch t.class {
	case ClassInteger:
		prefix := "uint"
		if t.signed {
			prefix = "int"
		}
		return fmt.Sprintf("%s%d%s", prefix, t.size*8, order())
	case ClassFloat:
		return fmt.Sprintf("float%d%s", t.size*8, order())
	case ClassBitfield:
		return fmt.Sprintf("bitfield%d%s", t.size*8, order())
	case ClassString:
		cs := "ascii"
		if t.charset == CharsetUTF8 {
			cs = "utf8"
		}
		if t.variable {
			return "vstring(" + cs + ")"
		}
		return fmt.Sprintf("string[%d](%s)", t.size, cs)
	case ClassOpaque:
		return fmt.Sprintf("opaque[%d](%q)", t.size, t.tag)
	case ClassCompound:
		parts := make([]string, len(t.members))
		for i, m := range t.members {
			parts[i] = fmt.Sprintf("%s@%d:%s", m.Name, m.Offset, m.Type)
		}
		return fmt.Sprintf("compound[%d]{%s}", t.size, strings.Join(parts, ", "))
	case ClassEnum:
		return fmt.Sprintf("enum(%s){%d values}", t.base, len(t.enums))
	case ClassArray:
		return fmt.Sprintf("array%v(%s)", t.dims, t.base)
	case ClassReference:
		if t.ref == RefRegion {
			return "ref(region)"
		}
		return "ref(object)"
	}
	return t.class.String()
}
