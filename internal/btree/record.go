package btree

import (
	"errors"
	"fmt"

	"github.com/robert-malhotra/go-hstore/internal/binary"
)

var signature = []byte("BTRE")

const recordVersion = 1

// ErrCorrupt is returned for record blocks that fail validation.
var ErrCorrupt = errors.New("btree: corrupt record block")

// Encode writes the tree as a checksummed record block in key order.
func Encode[V any](t *Tree[V], encodeVal func(V) []byte) []byte {
	e := binary.NewEncoder(binary.DefaultConfig())
	e.Raw(signature)
	e.Uint8(recordVersion)
	e.Uint64(uint64(t.Len()))
	t.Ascend("", func(k string, v V) bool {
		e.String(k)
		e.Blob(encodeVal(v))
		return true
	})
	return binary.AppendChecksum(e.Bytes())
}

// Decode rebuilds a tree from a block written by Encode.
func Decode[V any](block []byte, degree int, decodeVal func([]byte) (V, error)) (*Tree[V], error) {
	body, ok := binary.VerifyChecksum(block)
	if !ok {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	d := binary.NewDecoder(body, binary.DefaultConfig())
	if sig := d.Raw(4); string(sig) != string(signature) {
		return nil, fmt.Errorf("%w: bad signature %q", ErrCorrupt, sig)
	}
	if v := d.Uint8(); v != recordVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, v)
	}
	count := d.Uint64()
	t := New[V](degree)
	prev := ""
	for i := uint64(0); i < count && d.Err() == nil; i++ {
		k := d.String()
		raw := d.Blob()
		if d.Err() != nil {
			break
		}
		if i > 0 && k <= prev {
			return nil, fmt.Errorf("%w: keys out of order", ErrCorrupt)
		}
		v, err := decodeVal(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrCorrupt, i, err)
		}
		t.Set(k, v)
		prev = k
	}
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return t, nil
}
