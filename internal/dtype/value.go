package dtype

// Go Value Codec
//
// Encode and Decode move elements between stored bytes and Go values.
//
//   - Integers, floats and bitfields accept any Go integer or float kind and
//     apply the conversion policy of convert.go.
//   - Strings map to Go strings. Variable-length strings keep their payload
//     in a Heap; the element stores the payload length and heap address.
//   - Opaque elements map to []byte of exactly the type size.
//   - Compounds map to structs (fields matched by `hstore:"name"` tag, then by
//     name, then case-insensitively) or to map[string]any.
//   - Enumerations accept constant names as strings or their integer values.
//   - Arrays accept any nesting of Go slices and arrays holding the right
//     number of base elements, and decode to flat slices in row-major order.
//   - References map to ObjectRef and RegionRef.
//
// Encode flattens nested slices, so [][]int32 and []int32 both encode as a
// sequence of elements in row-major order.

import (
	"encoding/binary"
	"fmt"
	"reflect"
	"strings"

	"github.com/robert-malhotra/go-hstore/internal/errs"
)

// Heap stores variable-length payloads outside the element bytes.
type Heap interface {
	Put(data []byte) (uint64, error)
	Get(addr, length uint64) ([]byte, error)
}

// ObjectRef refers to an object by its stable identifier.
type ObjectRef uint64

// RegionRef refers to a selection of a dataset: the dataset identifier and
// the heap address of the serialized selection.
type RegionRef struct {
	Object    uint64
	Selection uint64
}

var (
	objectRefType = reflect.TypeOf(ObjectRef(0))
	regionRefType = reflect.TypeOf(RegionRef{})
)

// Encode converts a Go value (scalar, slice, or nested slices) into stored
// element bytes.
func Encode(t *Type, src any, h Heap) ([]byte, error) {
	v, err := indirect(reflect.ValueOf(src))
	if err != nil {
		return nil, err
	}
	size := int(t.size)

	var elems []reflect.Value
	if t.class == ClassArray {
		leaf, per := t.leaf()
		var leaves []reflect.Value
		flatten(leaf, v, &leaves)
		if len(leaves)%per != 0 {
			return nil, errs.New(errs.ErrDimensionMismatch, "%d values do not fill whole %s elements", len(leaves), t)
		}
		out := make([]byte, len(leaves)*int(leaf.size))
		ls := int(leaf.size)
		for i, lv := range leaves {
			if err := encodeElem(leaf, lv, out[i*ls:(i+1)*ls], h); err != nil {
				return nil, withIndex(err, i/per)
			}
		}
		return out, nil
	}

	flatten(t, v, &elems)
	out := make([]byte, len(elems)*size)
	for i, ev := range elems {
		if err := encodeElem(t, ev, out[i*size:(i+1)*size], h); err != nil {
			return nil, withIndex(err, i)
		}
	}
	return out, nil
}

// Count returns the number of elements Encode would produce for src.
func Count(t *Type, src any) (int, error) {
	v, err := indirect(reflect.ValueOf(src))
	if err != nil {
		return 0, err
	}
	if t.class == ClassArray {
		leaf, per := t.leaf()
		var leaves []reflect.Value
		flatten(leaf, v, &leaves)
		return len(leaves) / per, nil
	}
	var elems []reflect.Value
	flatten(t, v, &elems)
	return len(elems), nil
}

// leaf returns the innermost non-array base of t and how many leaves make
// one element of t.
func (t *Type) leaf() (*Type, int) {
	n := 1
	for t.class == ClassArray {
		n *= t.ArrayLen()
		t = t.base
	}
	return t, n
}

func withIndex(err error, i int) error {
	if e, ok := err.(*errs.Error); ok && e.Coords == nil {
		e.Coords = []uint64{uint64(i)}
	}
	return err
}

func indirect(v reflect.Value) (reflect.Value, error) {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return v, errs.New(errs.ErrTypeMismatch, "nil value")
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return v, errs.New(errs.ErrTypeMismatch, "nil value")
	}
	return v, nil
}

func isByteSlice(v reflect.Value) bool {
	return (v.Kind() == reflect.Slice || v.Kind() == reflect.Array) && v.Type().Elem().Kind() == reflect.Uint8
}

// flatten appends the element values contained in v.
func flatten(t *Type, v reflect.Value, out *[]reflect.Value) {
	v, err := indirect(v)
	if err != nil {
		*out = append(*out, v)
		return
	}
	switch t.class {
	case ClassOpaque:
		if isByteSlice(v) {
			size := int(t.size)
			if v.Len() <= size {
				*out = append(*out, v)
				return
			}
			for i := 0; i+size <= v.Len(); i += size {
				*out = append(*out, v.Slice(i, i+size))
			}
			return
		}
	case ClassCompound:
		if v.Kind() == reflect.Struct || v.Kind() == reflect.Map {
			*out = append(*out, v)
			return
		}
	case ClassReference:
		if v.Type() == regionRefType {
			*out = append(*out, v)
			return
		}
	}
	if v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
		for i := 0; i < v.Len(); i++ {
			flatten(t, v.Index(i), out)
		}
		return
	}
	*out = append(*out, v)
}

func numberOf(v reflect.Value) (number, bool) {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return number{kind: numSigned, i: v.Int()}, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return number{kind: numUnsigned, u: v.Uint()}, true
	case reflect.Float32, reflect.Float64:
		return number{kind: numFloat, f: v.Float()}, true
	case reflect.Bool:
		if v.Bool() {
			return number{kind: numUnsigned, u: 1}, true
		}
		return number{kind: numUnsigned}, true
	}
	return number{}, false
}

func mismatch(v reflect.Value, t *Type) error {
	return errs.New(errs.ErrTypeMismatch, "cannot store Go %s as %s", v.Type(), t)
}

func encodeElem(t *Type, v reflect.Value, out []byte, h Heap) error {
	v, err := indirect(v)
	if err != nil {
		return err
	}
	switch t.class {
	case ClassInteger, ClassFloat, ClassBitfield:
		n, ok := numberOf(v)
		if !ok {
			return mismatch(v, t)
		}
		if t.class == ClassBitfield && n.kind != numUnsigned {
			if n.kind == numSigned && n.i >= 0 {
				n = number{kind: numUnsigned, u: uint64(n.i)}
			} else {
				return mismatch(v, t)
			}
		}
		return store(t, n, out)

	case ClassEnum:
		if v.Kind() == reflect.String {
			val, ok := t.EnumValueOf(v.String())
			if !ok {
				return errs.New(errs.ErrConversionRange, "%q is not a constant of %s", v.String(), t)
			}
			return store(t, number{kind: numSigned, i: val}, out)
		}
		n, ok := numberOf(v)
		if !ok || n.kind == numFloat {
			return mismatch(v, t)
		}
		raw := n.i
		if n.kind == numUnsigned {
			raw = int64(n.u)
		}
		if _, named := t.EnumName(raw); !named {
			return errs.New(errs.ErrConversionRange, "%d is not a constant of %s", raw, t)
		}
		return store(t, n, out)

	case ClassString:
		var s string
		switch {
		case v.Kind() == reflect.String:
			s = v.String()
		case isByteSlice(v) && v.Kind() == reflect.Slice:
			s = string(v.Bytes())
		default:
			return mismatch(v, t)
		}
		if !t.variable {
			writeFixedString(t, s, out)
			return nil
		}
		return putVarLen(out, []byte(s), h)

	case ClassOpaque:
		if !isByteSlice(v) {
			return mismatch(v, t)
		}
		if v.Len() != int(t.size) {
			return errs.New(errs.ErrDimensionMismatch, "opaque value has %d bytes, type holds %d", v.Len(), t.size)
		}
		reflect.Copy(reflect.ValueOf(out), v)
		return nil

	case ClassCompound:
		for i := range out {
			out[i] = 0
		}
		for _, m := range t.members {
			field, ok := memberValue(v, m.Name)
			if !ok {
				continue
			}
			if err := encodeElem(m.Type, field, out[m.Offset:m.Offset+m.Type.size], h); err != nil {
				return fmt.Errorf("member %q: %w", m.Name, err)
			}
		}
		return nil

	case ClassArray:
		leaf, per := t.leaf()
		var leaves []reflect.Value
		flatten(leaf, v, &leaves)
		if len(leaves) != per {
			return errs.New(errs.ErrDimensionMismatch, "array element has %d values, type holds %d", len(leaves), per)
		}
		ls := int(leaf.size)
		for i, lv := range leaves {
			if err := encodeElem(leaf, lv, out[i*ls:(i+1)*ls], h); err != nil {
				return err
			}
		}
		return nil

	case ClassReference:
		if t.ref == RefRegion {
			if v.Type() != regionRefType {
				return mismatch(v, t)
			}
			r := v.Interface().(RegionRef)
			binary.LittleEndian.PutUint64(out, r.Object)
			binary.LittleEndian.PutUint64(out[8:], r.Selection)
			return nil
		}
		switch v.Kind() {
		case reflect.Uint, reflect.Uint32, reflect.Uint64:
			binary.LittleEndian.PutUint64(out, v.Uint())
			return nil
		}
		return mismatch(v, t)
	}
	return mismatch(v, t)
}

func putVarLen(out, payload []byte, h Heap) error {
	for i := range out[:VarLenSize] {
		out[i] = 0
	}
	if len(payload) == 0 {
		return nil
	}
	if h == nil {
		return fmt.Errorf("variable-length data needs a heap")
	}
	addr, err := h.Put(payload)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(out, uint64(len(payload)))
	binary.LittleEndian.PutUint64(out[8:], addr)
	return nil
}

func getVarLen(b []byte, h Heap) ([]byte, error) {
	n := binary.LittleEndian.Uint64(b)
	if n == 0 {
		return nil, nil
	}
	if h == nil {
		return nil, fmt.Errorf("variable-length data needs a heap")
	}
	return h.Get(binary.LittleEndian.Uint64(b[8:]), n)
}

// VarLenAddrs returns the heap addresses referenced by n elements of t, so
// that overwritten or deleted elements can release their payloads.
func VarLenAddrs(t *Type, data []byte, n int) []uint64 {
	var addrs []uint64
	var walk func(t *Type, b []byte)
	walk = func(t *Type, b []byte) {
		switch t.class {
		case ClassString:
			if t.variable && binary.LittleEndian.Uint64(b) != 0 {
				addrs = append(addrs, binary.LittleEndian.Uint64(b[8:]))
			}
		case ClassReference:
			if t.ref == RefRegion && binary.LittleEndian.Uint64(b[8:]) != 0 {
				addrs = append(addrs, binary.LittleEndian.Uint64(b[8:]))
			}
		case ClassCompound:
			for _, m := range t.members {
				walk(m.Type, b[m.Offset:m.Offset+m.Type.size])
			}
		case ClassArray:
			bs := int(t.base.size)
			for i := 0; i < t.ArrayLen(); i++ {
				walk(t.base, b[i*bs:(i+1)*bs])
			}
		}
	}
	if !t.HasVarLen() {
		return nil
	}
	size := int(t.size)
	for i := 0; i < n && (i+1)*size <= len(data); i++ {
		walk(t, data[i*size:(i+1)*size])
	}
	return addrs
}

// memberValue finds the struct field or map entry holding member name.
func memberValue(v reflect.Value, name string) (reflect.Value, bool) {
	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return reflect.Value{}, false
		}
		mv := v.MapIndex(reflect.ValueOf(name).Convert(v.Type().Key()))
		return mv, mv.IsValid()
	case reflect.Struct:
		idx, ok := fieldIndex(v.Type(), name)
		if !ok {
			return reflect.Value{}, false
		}
		return v.Field(idx), true
	}
	return reflect.Value{}, false
}

func fieldIndex(st reflect.Type, name string) (int, bool) {
	fallback := -1
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if !f.IsExported() {
			continue
		}
		if tag := f.Tag.Get("hstore"); tag != "" {
			if tag == name {
				return i, true
			}
			continue
		}
		if f.Name == name {
			return i, true
		}
		if fallback < 0 && strings.EqualFold(f.Name, name) {
			fallback = i
		}
	}
	return fallback, fallback >= 0
}

// Decode converts n stored elements into dest, which must be a pointer to a
// slice, a Go array, or (for n == 1) a single element.
func Decode(t *Type, data []byte, n int, dest any, h Heap) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return errs.New(errs.ErrTypeMismatch, "destination must be a non-nil pointer")
	}
	size := int(t.size)
	if len(data) < n*size {
		return errs.New(errs.ErrDimensionMismatch, "buffer holds %d bytes, need %d", len(data), n*size)
	}
	target := dv.Elem()

	if n == 1 && holdsElement(t, target.Type()) {
		return decodeElem(t, data[:size], target, h)
	}

	// A flat slice of leaves for array types.
	if t.class == ClassArray && target.Kind() == reflect.Slice {
		leaf, per := t.leaf()
		if holdsElement(leaf, target.Type().Elem()) && !holdsElement(t, target.Type().Elem()) {
			target.Set(reflect.MakeSlice(target.Type(), n*per, n*per))
			ls := int(leaf.size)
			for i := 0; i < n*per; i++ {
				if err := decodeElem(leaf, data[i*ls:(i+1)*ls], target.Index(i), h); err != nil {
					return withIndex(err, i/per)
				}
			}
			return nil
		}
	}

	switch target.Kind() {
	case reflect.Slice:
		target.Set(reflect.MakeSlice(target.Type(), n, n))
	case reflect.Array:
		if target.Len() != n {
			return errs.New(errs.ErrDimensionMismatch, "destination array holds %d elements, need %d", target.Len(), n)
		}
	case reflect.Interface:
		vals, err := Values(t, data, n, h)
		if err != nil {
			return err
		}
		target.Set(reflect.ValueOf(vals))
		return nil
	default:
		if n != 1 {
			return errs.New(errs.ErrDimensionMismatch, "scalar destination for %d elements", n)
		}
		return decodeElem(t, data[:size], target, h)
	}
	for i := 0; i < n; i++ {
		if err := decodeElem(t, data[i*size:(i+1)*size], target.Index(i), h); err != nil {
			return withIndex(err, i)
		}
	}
	return nil
}

// holdsElement reports whether a Go value of type gt represents exactly one
// element of t.
func holdsElement(t *Type, gt reflect.Type) bool {
	switch gt.Kind() {
	case reflect.Interface, reflect.Pointer:
		return false
	}
	switch t.class {
	case ClassOpaque:
		return gt.Kind() == reflect.Slice && gt.Elem().Kind() == reflect.Uint8 ||
			gt.Kind() == reflect.Array && gt.Elem().Kind() == reflect.Uint8 && gt.Len() == int(t.size)
	case ClassString:
		return gt.Kind() == reflect.String
	case ClassCompound:
		return gt.Kind() == reflect.Struct || gt.Kind() == reflect.Map
	case ClassArray:
		return (gt.Kind() == reflect.Array && gt.Len() == t.ArrayLen()) ||
			(gt.Kind() == reflect.Slice && gt.Elem().Kind() != reflect.Slice && holdsElement(t.base, gt.Elem()))
	case ClassReference:
		if t.ref == RefRegion {
			return gt == regionRefType
		}
		return gt.Kind() == reflect.Uint64
	case ClassEnum:
		return gt.Kind() == reflect.String || isNumberKind(gt.Kind())
	default:
		return isNumberKind(gt.Kind())
	}
}

func isNumberKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func decodeElem(t *Type, b []byte, dst reflect.Value, h Heap) error {
	if dst.Kind() == reflect.Interface && dst.NumMethod() == 0 {
		val, err := valueOf(t, b, h)
		if err != nil {
			return err
		}
		if val == nil {
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		dst.Set(reflect.ValueOf(val))
		return nil
	}
	if dst.Kind() == reflect.Pointer {
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		dst = dst.Elem()
	}

	switch t.class {
	case ClassInteger, ClassFloat, ClassBitfield:
		return setNumber(dst, load(t, b), t)

	case ClassEnum:
		if dst.Kind() == reflect.String {
			raw := enumRaw(t, b)
			name, ok := t.EnumName(raw)
			if !ok {
				return errs.New(errs.ErrConversionRange, "%d is not a constant of %s", raw, t)
			}
			dst.SetString(name)
			return nil
		}
		return setNumber(dst, load(t, b), t)

	case ClassString:
		var s []byte
		if t.variable {
			payload, err := getVarLen(b, h)
			if err != nil {
				return err
			}
			s = payload
		} else {
			s = []byte(readFixedString(t, b))
		}
		switch {
		case dst.Kind() == reflect.String:
			dst.SetString(string(s))
		case dst.Kind() == reflect.Slice && dst.Type().Elem().Kind() == reflect.Uint8:
			dst.SetBytes(s)
		default:
			return errs.New(errs.ErrTypeMismatch, "cannot load %s into Go %s", t, dst.Type())
		}
		return nil

	case ClassOpaque:
		switch {
		case dst.Kind() == reflect.Slice && dst.Type().Elem().Kind() == reflect.Uint8:
			dst.SetBytes(append([]byte(nil), b...))
		case dst.Kind() == reflect.Array && dst.Type().Elem().Kind() == reflect.Uint8 && dst.Len() == len(b):
			reflect.Copy(dst, reflect.ValueOf(b))
		default:
			return errs.New(errs.ErrTypeMismatch, "cannot load %s into Go %s", t, dst.Type())
		}
		return nil

	case ClassCompound:
		switch dst.Kind() {
		case reflect.Struct:
			for _, m := range t.members {
				idx, ok := fieldIndex(dst.Type(), m.Name)
				if !ok {
					continue
				}
				if err := decodeElem(m.Type, b[m.Offset:m.Offset+m.Type.size], dst.Field(idx), h); err != nil {
					return fmt.Errorf("member %q: %w", m.Name, err)
				}
			}
			return nil
		case reflect.Map:
			val, err := valueOf(t, b, h)
			if err != nil {
				return err
			}
			mv := reflect.ValueOf(val)
			if !mv.Type().AssignableTo(dst.Type()) {
				return errs.New(errs.ErrTypeMismatch, "cannot load %s into Go %s", t, dst.Type())
			}
			dst.Set(mv)
			return nil
		}
		return errs.New(errs.ErrTypeMismatch, "cannot load %s into Go %s", t, dst.Type())

	case ClassArray:
		per := t.ArrayLen()
		bs := int(t.base.size)
		switch dst.Kind() {
		case reflect.Slice:
			dst.Set(reflect.MakeSlice(dst.Type(), per, per))
		case reflect.Array:
			if dst.Len() != per {
				return errs.New(errs.ErrDimensionMismatch, "Go array holds %d values, type holds %d", dst.Len(), per)
			}
		default:
			return errs.New(errs.ErrTypeMismatch, "cannot load %s into Go %s", t, dst.Type())
		}
		for i := 0; i < per; i++ {
			if err := decodeElem(t.base, b[i*bs:(i+1)*bs], dst.Index(i), h); err != nil {
				return err
			}
		}
		return nil

	case ClassReference:
		if t.ref == RefRegion {
			if dst.Type() != regionRefType {
				return errs.New(errs.ErrTypeMismatch, "cannot load %s into Go %s", t, dst.Type())
			}
			dst.Set(reflect.ValueOf(RegionRef{
				Object:    binary.LittleEndian.Uint64(b),
				Selection: binary.LittleEndian.Uint64(b[8:]),
			}))
			return nil
		}
		if dst.Kind() != reflect.Uint64 {
			return errs.New(errs.ErrTypeMismatch, "cannot load %s into Go %s", t, dst.Type())
		}
		dst.SetUint(binary.LittleEndian.Uint64(b))
		return nil
	}
	return errs.New(errs.ErrTypeMismatch, "cannot load %s into Go %s", t, dst.Type())
}

// setNumber stores n into a Go numeric value, failing when it does not fit.
func setNumber(dst reflect.Value, n number, t *Type) error {
	rangeErr := func() error {
		return errs.New(errs.ErrConversionRange, "%s value does not fit Go %s", t, dst.Type())
	}
	switch dst.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		var v int64
		switch n.kind {
		case numSigned:
			v = n.i
		case numUnsigned:
			if n.u > 1<<63-1 {
				return rangeErr()
			}
			v = int64(n.u)
		default:
			if n.f != n.f || n.f < -(1<<63) || n.f >= 1<<63 {
				return rangeErr()
			}
			v = int64(n.f)
		}
		if dst.OverflowInt(v) {
			return rangeErr()
		}
		dst.SetInt(v)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		var v uint64
		switch n.kind {
		case numSigned:
			if n.i < 0 {
				return rangeErr()
			}
			v = uint64(n.i)
		case numUnsigned:
			v = n.u
		default:
			if n.f != n.f || n.f < 0 || n.f >= 1<<64 {
				return rangeErr()
			}
			v = uint64(n.f)
		}
		if dst.OverflowUint(v) {
			return rangeErr()
		}
		dst.SetUint(v)
	case reflect.Float32, reflect.Float64:
		var f float64
		switch n.kind {
		case numSigned:
			f = float64(n.i)
		case numUnsigned:
			f = float64(n.u)
		default:
			f = n.f
		}
		if dst.Kind() == reflect.Float32 && dst.OverflowFloat(f) {
			return rangeErr()
		}
		dst.SetFloat(f)
	case reflect.Bool:
		dst.SetBool(n.i != 0 || n.u != 0 || n.f != 0)
	default:
		return errs.New(errs.ErrTypeMismatch, "cannot load %s into Go %s", t, dst.Type())
	}
	return nil
}

// Values decodes n elements into their natural Go representation: int64 or
// uint64 for integers, float64, uint64 for bitfields, string, []byte for
// opaque data, map[string]any for compounds, the constant name for enums,
// []any for arrays and ObjectRef/RegionRef for references.
func Values(t *Type, data []byte, n int, h Heap) ([]any, error) {
	size := int(t.size)
	if len(data) < n*size {
		return nil, errs.New(errs.ErrDimensionMismatch, "buffer holds %d bytes, need %d", len(data), n*size)
	}
	out := make([]any, n)
	for i := range out {
		v, err := valueOf(t, data[i*size:(i+1)*size], h)
		if err != nil {
			return nil, withIndex(err, i)
		}
		out[i] = v
	}
	return out, nil
}

func valueOf(t *Type, b []byte, h Heap) (any, error) {
	switch t.class {
	case ClassInteger:
		n := load(t, b)
		if t.signed {
			return n.i, nil
		}
		return n.u, nil
	case ClassFloat:
		return load(t, b).f, nil
	case ClassBitfield:
		return load(t, b).u, nil
	case ClassString:
		if t.variable {
			payload, err := getVarLen(b, h)
			return string(payload), err
		}
		return readFixedString(t, b), nil
	case ClassOpaque:
		return append([]byte(nil), b...), nil
	case ClassCompound:
		m := make(map[string]any, len(t.members))
		for _, mem := range t.members {
			v, err := valueOf(mem.Type, b[mem.Offset:mem.Offset+mem.Type.size], h)
			if err != nil {
				return nil, fmt.Errorf("member %q: %w", mem.Name, err)
			}
			m[mem.Name] = v
		}
		return m, nil
	case ClassEnum:
		raw := enumRaw(t, b)
		if name, ok := t.EnumName(raw); ok {
			return name, nil
		}
		return raw, nil
	case ClassArray:
		return Values(t.base, b, t.ArrayLen(), h)
	case ClassReference:
		if t.ref == RefRegion {
			return RegionRef{Object: binary.LittleEndian.Uint64(b), Selection: binary.LittleEndian.Uint64(b[8:])}, nil
		}
		return ObjectRef(binary.LittleEndian.Uint64(b)), nil
	}
	return nil, fmt.Errorf("unknown datatype class %d", t.class)
}

// FromGo infers a type for the Go element type gt: sized integers and
// floats, variable-length UTF-8 strings, Go arrays, structs (packed in
// field order) and references.
func FromGo(gt reflect.Type) (*Type, error) {
	switch gt {
	case objectRefType:
		return NewReference(RefObject)
	case regionRefType:
		return NewReference(RefRegion)
	}
	switch gt.Kind() {
	case reflect.Int8:
		return Int8, nil
	case reflect.Int16:
		return Int16, nil
	case reflect.Int32:
		return Int32, nil
	case reflect.Int64, reflect.Int:
		return Int64, nil
	case reflect.Uint8:
		return Uint8, nil
	case reflect.Uint16:
		return Uint16, nil
	case reflect.Uint32:
		return Uint32, nil
	case reflect.Uint64, reflect.Uint:
		return Uint64, nil
	case reflect.Float32:
		return Float32, nil
	case reflect.Float64:
		return Float64, nil
	case reflect.String:
		return NewString(CharsetUTF8, Variable, PadNullTerm)
	case reflect.Array:
		dims := []uint32{uint32(gt.Len())}
		elem := gt.Elem()
		for elem.Kind() == reflect.Array {
			dims = append(dims, uint32(elem.Len()))
			elem = elem.Elem()
		}
		base, err := FromGo(elem)
		if err != nil {
			return nil, err
		}
		return NewArray(base, dims)
	case reflect.Struct:
		var members []Member
		offset := uint32(0)
		for i := 0; i < gt.NumField(); i++ {
			f := gt.Field(i)
			if !f.IsExported() {
				continue
			}
			ft, err := FromGo(f.Type)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
			name := f.Tag.Get("hstore")
			if name == "" {
				name = f.Name
			}
			members = append(members, Member{Name: name, Offset: offset, Type: ft})
			offset += ft.size
		}
		if offset == 0 {
			return nil, invalid("struct %s has no exported fields", gt)
		}
		ct, _ := NewCompound(int(offset))
		for _, m := range members {
			if err := ct.InsertMember(m.Name, m.Offset, m.Type); err != nil {
				return nil, err
			}
		}
		return ct, nil
	}
	return nil, invalid("no stored type for Go %s", gt)
}
