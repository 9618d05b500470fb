package binary

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncoderDecoderWidths(t *testing.T) {
	for _, size := range []int{2, 4, 8} {
		cfg := Config{ByteOrder: binary.LittleEndian, OffsetSize: size, LengthSize: size}
		require.NoError(t, cfg.Validate())

		e := NewEncoder(cfg)
		e.Uint8(7)
		e.Offset(0x1234)
		e.Length(0x42)
		e.String("links")
		e.Blob([]byte{9, 8})
		assert.Equal(t, 1+2*size+4+5+4+2, e.Len())

		d := NewDecoder(e.Bytes(), cfg)
		assert.Equal(t, uint8(7), d.Uint8())
		assert.Equal(t, uint64(0x1234), d.Offset())
		assert.Equal(t, uint64(0x42), d.Length())
		assert.Equal(t, "links", d.String())
		assert.Equal(t, []byte{9, 8}, d.Blob())
		require.NoError(t, d.Err())
		assert.Zero(t, d.Remaining())
	}
}

func TestDecoderLatchesShortBuffer(t *testing.T) {
	d := NewDecoder([]byte{1, 2, 3}, DefaultConfig())
	assert.Equal(t, uint16(0x0201), d.Uint16())
	assert.Zero(t, d.Uint32())
	assert.Zero(t, d.Uint8())
	assert.True(t, errors.Is(d.Err(), ErrShortBuffer))
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OffsetSize = 3
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidSize)
}

func TestUndefinedOffset(t *testing.T) {
	tests := []struct {
		size int
		want uint64
	}{
		{2, 0xffff},
		{4, 0xffffffff},
		{8, 0xffffffffffffffff},
	}
	for _, tt := range tests {
		cfg := Config{ByteOrder: binary.LittleEndian, OffsetSize: tt.size, LengthSize: 8}
		assert.Equal(t, tt.want, cfg.UndefinedOffset())
	}
}

func TestBigEndian(t *testing.T) {
	cfg := Config{ByteOrder: binary.BigEndian, OffsetSize: 4, LengthSize: 4}
	e := NewEncoder(cfg)
	e.Uint32(0x01020304)
	assert.Equal(t, []byte{1, 2, 3, 4}, e.Bytes())
}
