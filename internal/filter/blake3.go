package filter

import (
	"crypto/subtle"
	"fmt"

	"github.com/zeebo/blake3"
)

// Blake3Size is the digest length appended by the blake3 filter.
const Blake3Size = 32

// Blake3 appends a BLAKE3-256 digest of the payload and verifies it on
// decode. It detects corruption that Fletcher-32 can miss.
type Blake3 struct{}

func newBlake3([]uint32, int) (Filter, error) { return Blake3{}, nil }

func (Blake3) Encode(input []byte) ([]byte, error) {
	sum := blake3.Sum256(input)
	out := make([]byte, len(input), len(input)+Blake3Size)
	copy(out, input)
	return append(out, sum[:]...), nil
}

func (Blake3) Decode(input []byte) ([]byte, error) {
	if len(input) < Blake3Size {
		return nil, fmt.Errorf("blake3: input too short for digest")
	}
	data := input[:len(input)-Blake3Size]
	sum := blake3.Sum256(data)
	if subtle.ConstantTimeCompare(sum[:], input[len(data):]) != 1 {
		return nil, fmt.Errorf("blake3: digest mismatch")
	}
	return data, nil
}
