package binary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup3(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  uint32
	}{
		// Reference values from the lookup3.c self test (hashlittle, seed 0).
		{"empty", []byte{}, 0xdeadbeef},
		{"four score", []byte("Four score and seven years ago"), 0x17770551},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Lookup3(tt.input))
		})
	}
}

func TestLookup3LengthVariations(t *testing.T) {
	seen := make(map[uint32]int)
	for length := 0; length <= 24; length++ {
		data := make([]byte, length)
		for i := range data {
			data[i] = byte(i)
		}
		seen[Lookup3(data)] = length
	}
	assert.Len(t, seen, 25)
}

func TestVerifyChecksum(t *testing.T) {
	record := AppendChecksum([]byte("object header"))

	body, ok := VerifyChecksum(record)
	require.True(t, ok)
	assert.Equal(t, []byte("object header"), body)

	record[0] ^= 0xff
	_, ok = VerifyChecksum(record)
	assert.False(t, ok)

	_, ok = VerifyChecksum([]byte{1, 2})
	assert.False(t, ok)
}
