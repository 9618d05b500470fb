package filter

import (
	"encoding/binary"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// LZ4 compresses with LZ4 block mode. The stored form is the 4-byte
// little-endian raw length followed by the block.
type LZ4 struct{}

func newLZ4([]uint32, int) (Filter, error) { return LZ4{}, nil }

func (LZ4) Encode(input []byte) ([]byte, error) {
	if len(input) == 0 {
		return nil, ErrIncompressible
	}
	dst := make([]byte, 4+lz4.CompressBlockBound(len(input)))
	binary.LittleEndian.PutUint32(dst, uint32(len(input)))
	written, err := lz4.CompressBlock(input, dst[4:], nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 when the data does not compress.
	if written == 0 || written+4 >= len(input) {
		return nil, ErrIncompressible
	}
	return dst[:4+written], nil
}

func (LZ4) Decode(input []byte) ([]byte, error) {
	if len(input) < 4 {
		return nil, fmt.Errorf("lz4: input too short for header")
	}
	size := int(binary.LittleEndian.Uint32(input))
	// LZ4 cannot expand a block by more than 255x.
	if size > 255*len(input) {
		return nil, fmt.Errorf("lz4: header claims %d bytes from %d", size, len(input))
	}
	dst := make([]byte, size)
	read, err := lz4.UncompressBlock(input[4:], dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != size {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
	}
	return dst, nil
}
