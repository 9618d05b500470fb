package filter

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// DefaultDeflateLevel is used when no level parameter is stored.
const DefaultDeflateLevel = 6

// Deflate compresses with zlib-wrapped DEFLATE.
type Deflate struct {
	level int
}

// newDeflate reads the compression level (0-9) from params[0].
func newDeflate(params []uint32, _ int) (Filter, error) {
	level := DefaultDeflateLevel
	if len(params) > 0 {
		level = int(params[0])
	}
	if level < 0 || level > 9 {
		return nil, fmt.Errorf("deflate level %d not in 0-9", level)
	}
	return &Deflate{level: level}, nil
}

func (f *Deflate) Encode(input []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, f.level)
	if err != nil {
		return nil, fmt.Errorf("zlib writer: %w", err)
	}
	if _, err := w.Write(input); err != nil {
		return nil, fmt.Errorf("zlib compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("zlib compress: %w", err)
	}
	return buf.Bytes(), nil
}

func (f *Deflate) Decode(input []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(input))
	if err != nil {
		return nil, fmt.Errorf("zlib reader: %w", err)
	}
	defer r.Close()

	output, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("zlib decompress: %w", err)
	}
	return output, nil
}
