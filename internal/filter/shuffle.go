package filter

// Shuffle groups byte lanes across elements: all first bytes, then all
// second bytes, and so on. Trailing bytes that do not fill an element are
// copied unchanged.
type Shuffle struct {
	elemSize int
}

// newShuffle takes the element size from params[0] when present.
func newShuffle(params []uint32, elemSize int) (Filter, error) {
	if len(params) > 0 && params[0] > 0 {
		elemSize = int(params[0])
	}
	if elemSize < 1 {
		elemSize = 1
	}
	return &Shuffle{elemSize: elemSize}, nil
}

func (f *Shuffle) Encode(input []byte) ([]byte, error) {
	n := len(input) / f.elemSize
	if f.elemSize <= 1 || n <= 1 {
		return input, nil
	}
	out := make([]byte, len(input))
	for i := 0; i < n; i++ {
		for j := 0; j < f.elemSize; j++ {
			out[j*n+i] = input[i*f.elemSize+j]
		}
	}
	copy(out[n*f.elemSize:], input[n*f.elemSize:])
	return out, nil
}

// Decode reverses the shuffle.
// Input is organized as: [all byte 0s][all byte 1s]...[all byte N-1s]
func (f *Shuffle) Decode(input []byte) ([]byte, error) {
	n := len(input) / f.elemSize
	if f.elemSize <= 1 || n <= 1 {
		return input, nil
	}
	out := make([]byte, len(input))
	for i := 0; i < n; i++ {
		for j := 0; j < f.elemSize; j++ {
			out[i*f.elemSize+j] = input[j*n+i]
		}
	}
	copy(out[n*f.elemSize:], input[n*f.elemSize:])
	return out, nil
}
