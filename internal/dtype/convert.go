package dtype

// Numeric Conversion Policy
//
// Conversion between element types happens when a caller reads or writes
// with a memory type that differs from the stored type.
//
//   - Integer to integer: exact when the value fits the target width and
//     signedness; otherwise ErrConversionRange. Negative values never convert
//     to unsigned targets.
//   - Float to integer: the fraction is truncated toward zero. NaN, infinities
//     and values outside the target range fail with ErrConversionRange.
//   - Integer to float and float64 to float32: rounding to the nearest
//     representable value is allowed. A finite value whose magnitude exceeds
//     the target's largest finite value fails with ErrConversionRange.
//   - Enumerations convert to and from their base integer by value and to
//     other enumerations by constant name.
//   - Fixed strings convert between lengths and padding policies; content that
//     does not fit is truncated, as for any fixed-length string write.
//   - Compounds convert member by member, matched by name. Target members
//     missing from the source are zero filled.
//   - Arrays convert element-wise when their shapes match.
//
// Byte order is always converted. Nothing saturates.

import (
	"math"

	"github.com/robert-malhotra/go-hstore/internal/errs"
)

type numKind uint8

const (
	numSigned numKind = iota
	numUnsigned
	numFloat
)

// number holds one numeric element in widened form.
type number struct {
	kind numKind
	i    int64
	u    uint64
	f    float64
}

func loadUint(t *Type, b []byte) uint64 {
	order := t.order.binary()
	switch t.size {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(order.Uint16(b))
	case 4:
		return uint64(order.Uint32(b))
	default:
		return order.Uint64(b)
	}
}

func storeUint(t *Type, v uint64, b []byte) {
	order := t.order.binary()
	switch t.size {
	case 1:
		b[0] = uint8(v)
	case 2:
		order.PutUint16(b, uint16(v))
	case 4:
		order.PutUint32(b, uint32(v))
	default:
		order.PutUint64(b, v)
	}
}

func load(t *Type, b []byte) number {
	switch t.class {
	case ClassFloat:
		raw := loadUint(t, b)
		if t.size == 4 {
			return number{kind: numFloat, f: float64(math.Float32frombits(uint32(raw)))}
		}
		return number{kind: numFloat, f: math.Float64frombits(raw)}
	case ClassEnum:
		return load(t.base, b)
	case ClassInteger:
		raw := loadUint(t, b)
		if t.signed {
			shift := 64 - 8*t.size
			return number{kind: numSigned, i: int64(raw<<shift) >> shift}
		}
		return number{kind: numUnsigned, u: raw}
	default:
		return number{kind: numUnsigned, u: loadUint(t, b)}
	}
}

// store writes n into b using t, failing when the value does not fit.
func store(t *Type, n number, b []byte) error {
	switch t.class {
	case ClassFloat:
		var f float64
		switch n.kind {
		case numSigned:
			f = float64(n.i)
		case numUnsigned:
			f = float64(n.u)
		default:
			f = n.f
		}
		if t.size == 4 {
			if !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
				return errs.New(errs.ErrConversionRange, "%g overflows float32", f)
			}
			storeUint(t, uint64(math.Float32bits(float32(f))), b)
			return nil
		}
		storeUint(t, math.Float64bits(f), b)
		return nil
	case ClassEnum:
		return store(t.base, n, b)
	}

	signed := t.class == ClassInteger && t.signed
	bits := 8 * t.size
	switch n.kind {
	case numFloat:
		if math.IsNaN(n.f) || math.IsInf(n.f, 0) {
			return errs.New(errs.ErrConversionRange, "%g has no integer value", n.f)
		}
		f := math.Trunc(n.f)
		if signed {
			lo, hi := -math.Ldexp(1, int(bits)-1), math.Ldexp(1, int(bits)-1)
			if f < lo || f >= hi {
				return errs.New(errs.ErrConversionRange, "%g outside int%d", n.f, bits)
			}
			storeUint(t, uint64(int64(f)), b)
			return nil
		}
		if f < 0 || f >= math.Ldexp(1, int(bits)) {
			return errs.New(errs.ErrConversionRange, "%g outside uint%d", n.f, bits)
		}
		storeUint(t, uint64(f), b)
		return nil
	case numSigned:
		if signed {
			if bits < 64 && (n.i < -(1<<(bits-1)) || n.i >= 1<<(bits-1)) {
				return errs.New(errs.ErrConversionRange, "%d outside int%d", n.i, bits)
			}
			storeUint(t, uint64(n.i), b)
			return nil
		}
		if n.i < 0 || (bits < 64 && uint64(n.i) >= 1<<bits) {
			return errs.New(errs.ErrConversionRange, "%d outside uint%d", n.i, bits)
		}
		storeUint(t, uint64(n.i), b)
		return nil
	default:
		if signed {
			if n.u >= 1<<(bits-1) {
				return errs.New(errs.ErrConversionRange, "%d outside int%d", n.u, bits)
			}
			storeUint(t, n.u, b)
			return nil
		}
		if bits < 64 && n.u >= 1<<bits {
			return errs.New(errs.ErrConversionRange, "%d outside uint%d", n.u, bits)
		}
		storeUint(t, n.u, b)
		return nil
	}
}

// enumRaw returns the stored value of an enum element as int64.
func enumRaw(t *Type, b []byte) int64 {
	v := load(t, b)
	if v.kind == numUnsigned {
		return int64(v.u)
	}
	return v.i
}

func intFits(v int64, t *Type) bool {
	return store(t, number{kind: numSigned, i: v}, make([]byte, t.size)) == nil
}

func isNumeric(t *Type) bool {
	return t.class == ClassInteger || t.class == ClassFloat || t.class == ClassEnum
}

// Convertible reports whether Convert supports the pair.
func Convertible(dst, src *Type) bool {
	if dst.Equal(src) {
		return true
	}
	switch {
	case isNumeric(dst) && isNumeric(src):
		return true
	case dst.class == ClassBitfield && src.class == ClassBitfield:
		return true
	case dst.class == ClassString && src.class == ClassString:
		return !dst.variable && !src.variable
	case dst.class == ClassCompound && src.class == ClassCompound:
		for _, dm := range dst.members {
			if sm, ok := src.member(dm.Name); ok && !Convertible(dm.Type, sm.Type) {
				return false
			}
		}
		return true
	case dst.class == ClassArray && src.class == ClassArray:
		return dst.ArrayLen() == src.ArrayLen() && Convertible(dst.base, src.base)
	}
	return false
}

func (t *Type) member(name string) (Member, bool) {
	for _, m := range t.members {
		if m.Name == name {
			return m, true
		}
	}
	return Member{}, false
}

// Convert converts n elements of src type in `in` to dst type.
func Convert(dst, src *Type, in []byte, n int) ([]byte, error) {
	if !Convertible(dst, src) {
		return nil, errs.New(errs.ErrTypeMismatch, "cannot convert %s to %s", src, dst)
	}
	ss, ds := int(src.size), int(dst.size)
	if len(in) < n*ss {
		return nil, errs.New(errs.ErrDimensionMismatch, "buffer holds %d bytes, need %d", len(in), n*ss)
	}
	out := make([]byte, n*ds)
	if dst.Equal(src) {
		copy(out, in)
		return out, nil
	}
	for i := 0; i < n; i++ {
		if err := convertElem(dst, src, in[i*ss:(i+1)*ss], out[i*ds:(i+1)*ds]); err != nil {
			if e, ok := err.(*errs.Error); ok && e.Coords == nil {
				e.Coords = []uint64{uint64(i)}
			}
			return nil, err
		}
	}
	return out, nil
}

func convertElem(dst, src *Type, in, out []byte) error {
	if dst.Equal(src) {
		copy(out, in)
		return nil
	}
	switch {
	case dst.class == ClassEnum && src.class == ClassEnum:
		name, ok := src.EnumName(enumRaw(src, in))
		if !ok {
			return errs.New(errs.ErrConversionRange, "value has no name in source enum")
		}
		dv, ok := dst.EnumValueOf(name)
		if !ok {
			return errs.New(errs.ErrConversionRange, "enum name %q missing from target", name)
		}
		return store(dst, number{kind: numSigned, i: dv}, out)
	case isNumeric(dst) && isNumeric(src), dst.class == ClassBitfield:
		return store(dst, load(src, in), out)
	case dst.class == ClassString:
		writeFixedString(dst, readFixedString(src, in), out)
		return nil
	case dst.class == ClassCompound:
		for i := range out {
			out[i] = 0
		}
		for _, dm := range dst.members {
			sm, ok := src.member(dm.Name)
			if !ok {
				continue
			}
			sb := in[sm.Offset : sm.Offset+sm.Type.size]
			db := out[dm.Offset : dm.Offset+dm.Type.size]
			if err := convertElem(dm.Type, sm.Type, sb, db); err != nil {
				return err
			}
		}
		return nil
	case dst.class == ClassArray:
		ss, ds := int(src.base.size), int(dst.base.size)
		for i := 0; i < dst.ArrayLen(); i++ {
			if err := convertElem(dst.base, src.base, in[i*ss:(i+1)*ss], out[i*ds:(i+1)*ds]); err != nil {
				return err
			}
		}
		return nil
	}
	return errs.New(errs.ErrTypeMismatch, "cannot convert %s to %s", src, dst)
}

// readFixedString returns the logical content of a fixed-length string.
func readFixedString(t *Type, b []byte) string {
	switch t.padding {
	case PadSpace:
		end := len(b)
		for end > 0 && (b[end-1] == ' ' || b[end-1] == 0) {
			end--
		}
		return string(b[:end])
	default:
		for i, c := range b {
			if c == 0 {
				return string(b[:i])
			}
		}
		return string(b)
	}
}

// writeFixedString stores s in b according to t's padding, truncating
// content that does not fit.
func writeFixedString(t *Type, s string, b []byte) {
	limit := len(b)
	if t.padding == PadNullTerm && limit > 0 {
		limit--
	}
	if len(s) > limit {
		s = s[:limit]
	}
	n := copy(b, s)
	pad := byte(0)
	if t.padding == PadSpace {
		pad = ' '
	}
	for i := n; i < len(b); i++ {
		b[i] = pad
	}
}
