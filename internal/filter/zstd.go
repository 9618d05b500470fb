package filter

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Zstd compresses with Zstandard at the level in params[0] (1-22, default 3).
type Zstd struct {
	enc *zstd.Encoder
}

var (
	zstdEncoders sync.Map // zstd.EncoderLevel -> *zstd.Encoder
	zstdDecoder  = sync.OnceValues(func() (*zstd.Decoder, error) { return zstd.NewReader(nil) })
)

func newZstd(params []uint32, _ int) (Filter, error) {
	level := 3
	if len(params) > 0 && params[0] > 0 {
		level = int(params[0])
	}
	if level > 22 {
		return nil, fmt.Errorf("zstd level %d not in 1-22", level)
	}
	speed := zstd.EncoderLevelFromZstd(level)
	if enc, ok := zstdEncoders.Load(speed); ok {
		return &Zstd{enc: enc.(*zstd.Encoder)}, nil
	}
	// zstd.Encoder is safe for concurrent EncodeAll calls.
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(speed))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	actual, _ := zstdEncoders.LoadOrStore(speed, enc)
	return &Zstd{enc: actual.(*zstd.Encoder)}, nil
}

func (f *Zstd) Encode(input []byte) ([]byte, error) {
	return f.enc.EncodeAll(input, nil), nil
}

func (f *Zstd) Decode(input []byte) ([]byte, error) {
	dec, err := zstdDecoder()
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	out, err := dec.DecodeAll(input, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return out, nil
}
