// Package binary encodes and decodes the fixed-layout records stored in a
// container: superblock, object headers, chunk indexes and heap blobs.
//
// Addresses and lengths are written with the widths recorded in the
// superblock, so every record codec is configured from a Config.
package binary

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrInvalidSize is returned when an invalid offset or length size is specified.
	ErrInvalidSize = errors.New("invalid offset/length size: must be 2, 4, or 8")

	// ErrShortBuffer is recorded by a Decoder that runs past the end of its input.
	ErrShortBuffer = errors.New("record truncated")
)

// ByteOrder is satisfied by binary.LittleEndian and binary.BigEndian.
type ByteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// Config holds the field widths shared by an encoder/decoder pair.
type Config struct {
	ByteOrder  ByteOrder
	OffsetSize int // 2, 4, or 8 bytes
	LengthSize int // 2, 4, or 8 bytes
}

// DefaultConfig is little-endian with 8-byte offsets and lengths.
func DefaultConfig() Config {
	return Config{
		ByteOrder:  binary.LittleEndian,
		OffsetSize: 8,
		LengthSize: 8,
	}
}

// Validate rejects unsupported field widths.
func (c Config) Validate() error {
	for _, n := range []int{c.OffsetSize, c.LengthSize} {
		if n != 2 && n != 4 && n != 8 {
			return fmt.Errorf("%w: %d", ErrInvalidSize, n)
		}
	}
	return nil
}

// UndefinedOffset is the all-ones address marking "not allocated" for the
// configured offset width.
func (c Config) UndefinedOffset() uint64 {
	if c.OffsetSize >= 8 {
		return ^uint64(0)
	}
	return 1<<(8*uint(c.OffsetSize)) - 1
}

// Encoder appends fields to a growing byte slice.
type Encoder struct {
	cfg Config
	buf []byte
}

// NewEncoder returns an empty encoder.
func NewEncoder(cfg Config) *Encoder {
	return &Encoder{cfg: cfg}
}

// Config returns the encoder configuration.
func (e *Encoder) Config() Config { return e.cfg }

// Len returns the number of bytes encoded so far.
func (e *Encoder) Len() int { return len(e.buf) }

// Bytes returns the encoded record. The slice aliases the encoder buffer.
func (e *Encoder) Bytes() []byte { return e.buf }

func (e *Encoder) Uint8(v uint8) { e.buf = append(e.buf, v) }

func (e *Encoder) Uint16(v uint16) { e.buf = e.cfg.ByteOrder.AppendUint16(e.buf, v) }

func (e *Encoder) Uint32(v uint32) { e.buf = e.cfg.ByteOrder.AppendUint32(e.buf, v) }

func (e *Encoder) Uint64(v uint64) { e.buf = e.cfg.ByteOrder.AppendUint64(e.buf, v) }

// UintN writes v using n bytes (1, 2, 4, or 8).
func (e *Encoder) UintN(v uint64, n int) {
	switch n {
	case 1:
		e.Uint8(uint8(v))
	case 2:
		e.Uint16(uint16(v))
	case 4:
		e.Uint32(uint32(v))
	default:
		e.Uint64(v)
	}
}

// Offset writes a container address.
func (e *Encoder) Offset(v uint64) { e.UintN(v, e.cfg.OffsetSize) }

// Length writes a byte length.
func (e *Encoder) Length(v uint64) { e.UintN(v, e.cfg.LengthSize) }

// Raw appends b verbatim.
func (e *Encoder) Raw(b []byte) { e.buf = append(e.buf, b...) }

// Blob writes a 32-bit length prefix followed by b.
func (e *Encoder) Blob(b []byte) {
	e.Uint32(uint32(len(b)))
	e.Raw(b)
}

// String writes s as a Blob.
func (e *Encoder) String(s string) {
	e.Uint32(uint32(len(s)))
	e.buf = append(e.buf, s...)
}

// Zeros appends n zero bytes.
func (e *Encoder) Zeros(n int) {
	for i := 0; i < n; i++ {
		e.buf = append(e.buf, 0)
	}
}

// Decoder reads fields from a byte slice. The first failure is latched and
// every later read returns a zero value; check Err once at the end.
type Decoder struct {
	cfg  Config
	data []byte
	pos  int
	err  error
}

// NewDecoder returns a decoder positioned at the start of data.
func NewDecoder(data []byte, cfg Config) *Decoder {
	return &Decoder{cfg: cfg, data: data}
}

// Err returns the first decoding failure.
func (d *Decoder) Err() error { return d.err }

// Pos returns the current read position.
func (d *Decoder) Pos() int { return d.pos }

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int { return len(d.data) - d.pos }

// Fail latches err if no failure has been recorded yet.
func (d *Decoder) Fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.pos+n > len(d.data) {
		d.err = fmt.Errorf("%w: need %d bytes at %d, have %d", ErrShortBuffer, n, d.pos, len(d.data)-d.pos)
		return nil
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b
}

func (d *Decoder) Uint8() uint8 {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *Decoder) Uint16() uint16 {
	b := d.take(2)
	if b == nil {
		return 0
	}
	return d.cfg.ByteOrder.Uint16(b)
}

func (d *Decoder) Uint32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return d.cfg.ByteOrder.Uint32(b)
}

func (d *Decoder) Uint64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return d.cfg.ByteOrder.Uint64(b)
}

// UintN reads an n-byte unsigned integer (1, 2, 4, or 8).
func (d *Decoder) UintN(n int) uint64 {
	switch n {
	case 1:
		return uint64(d.Uint8())
	case 2:
		return uint64(d.Uint16())
	case 4:
		return uint64(d.Uint32())
	default:
		return d.Uint64()
	}
}

// Offset reads a container address.
func (d *Decoder) Offset() uint64 { return d.UintN(d.cfg.OffsetSize) }

// Length reads a byte length.
func (d *Decoder) Length() uint64 { return d.UintN(d.cfg.LengthSize) }

// Raw reads n bytes. The result is a copy.
func (d *Decoder) Raw(n int) []byte {
	b := d.take(n)
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

// Blob reads a length-prefixed byte string.
func (d *Decoder) Blob() []byte {
	n := d.Uint32()
	return d.Raw(int(n))
}

// String reads a length-prefixed string.
func (d *Decoder) String() string {
	return string(d.Blob())
}

// Skip advances past n bytes.
func (d *Decoder) Skip(n int) { d.take(n) }
