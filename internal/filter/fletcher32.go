package filter

import (
	"encoding/binary"
	"fmt"
)

// Fletcher32Filter appends a Fletcher-32 checksum and verifies it on decode.
type Fletcher32Filter struct{}

func newFletcher32([]uint32, int) (Filter, error) {
	return Fletcher32Filter{}, nil
}

func (Fletcher32Filter) Encode(input []byte) ([]byte, error) {
	out := make([]byte, len(input), len(input)+4)
	copy(out, input)
	return binary.LittleEndian.AppendUint32(out, Fletcher32(input)), nil
}

// Decode verifies the checksum stored in the last 4 bytes and strips it.
func (Fletcher32Filter) Decode(input []byte) ([]byte, error) {
	if len(input) < 4 {
		return nil, fmt.Errorf("fletcher32: input too short for checksum")
	}
	data := input[:len(input)-4]
	stored := binary.LittleEndian.Uint32(input[len(input)-4:])
	if computed := Fletcher32(data); stored != computed {
		return nil, fmt.Errorf("fletcher32: checksum mismatch (stored=0x%08x, computed=0x%08x)", stored, computed)
	}
	return data, nil
}

// Fletcher32 computes the checksum over big-endian 16-bit words; an odd
// trailing byte is treated as the high byte of a final word.
func Fletcher32(data []byte) uint32 {
	var sum1, sum2 uint32
	n := len(data) / 2
	for n > 0 {
		block := min(n, 360)
		n -= block
		for ; block > 0; block-- {
			sum1 += uint32(data[0])<<8 | uint32(data[1])
			sum2 += sum1
			data = data[2:]
		}
		sum1 = (sum1 & 0xffff) + (sum1 >> 16)
		sum2 = (sum2 & 0xffff) + (sum2 >> 16)
	}
	if len(data) == 1 {
		sum1 += uint32(data[0]) << 8
		sum2 += sum1
		sum1 = (sum1 & 0xffff) + (sum1 >> 16)
		sum2 = (sum2 & 0xffff) + (sum2 >> 16)
	}
	sum1 = (sum1 & 0xffff) + (sum1 >> 16)
	sum2 = (sum2 & 0xffff) + (sum2 >> 16)
	return sum2<<16 | sum1
}
