package alloc

import (
	"errors"
	"fmt"

	"github.com/robert-malhotra/go-hstore/internal/binary"
)

var freeSignature = []byte{'F', 'R', 'E', 'E'}

const freeVersion = 1

// ErrBadFreeList is returned for a free-list record that fails validation.
var ErrBadFreeList = errors.New("corrupt free-space record")

// RecordSize returns the encoded size of a free-list record with n blocks.
func RecordSize(n int, cfg binary.Config) uint64 {
	return uint64(4+1+8+n*(cfg.OffsetSize+cfg.LengthSize)) + 4
}

// EncodeFree writes the free list as a checksummed record, zero padded to
// size bytes when size is larger than the record.
func EncodeFree(blocks []Block, cfg binary.Config, size uint64) []byte {
	e := binary.NewEncoder(cfg)
	e.Raw(freeSignature)
	e.Uint8(freeVersion)
	e.Uint64(uint64(len(blocks)))
	for _, b := range blocks {
		e.Offset(b.Addr)
		e.Length(b.Size)
	}
	rec := binary.AppendChecksum(e.Bytes())
	if uint64(len(rec)) < size {
		rec = append(rec, make([]byte, size-uint64(len(rec)))...)
	}
	return rec
}

// DecodeFree parses a record written by EncodeFree. Padding after the
// checksum is ignored.
func DecodeFree(data []byte, cfg binary.Config) ([]Block, error) {
	d := binary.NewDecoder(data, cfg)
	if sig := d.Raw(4); string(sig) != string(freeSignature) {
		return nil, fmt.Errorf("%w: bad signature %q", ErrBadFreeList, sig)
	}
	if v := d.Uint8(); v != freeVersion {
		return nil, fmt.Errorf("%w: version %d", ErrBadFreeList, v)
	}
	n := d.Uint64()
	if d.Err() != nil || n > uint64(len(data)) {
		return nil, fmt.Errorf("%w: block count %d", ErrBadFreeList, n)
	}
	size := RecordSize(int(n), cfg)
	if size > uint64(len(data)) {
		return nil, fmt.Errorf("%w: %d blocks need %d bytes, have %d", ErrBadFreeList, n, size, len(data))
	}
	if _, ok := binary.VerifyChecksum(data[:size]); !ok {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrBadFreeList)
	}
	blocks := make([]Block, n)
	for i := range blocks {
		blocks[i] = Block{Addr: d.Offset(), Size: d.Length()}
	}
	return blocks, d.Err()
}
