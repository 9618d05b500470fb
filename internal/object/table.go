package object

import (
	"fmt"
	"sort"

	"github.com/robert-malhotra/go-hstore/internal/binary"
)

var tableSignature = []byte{'O', 'T', 'A', 'B'}

// Entry locates an object header block.
type Entry struct {
	Addr uint64
	Size uint64
}

// Table maps object identifiers to header blocks.
type Table map[uint64]Entry

// IDs returns the identifiers in ascending order.
func (t Table) IDs() []uint64 {
	ids := make([]uint64, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Encode writes the table record.
func (t Table) Encode(cfg binary.Config) []byte {
	e := binary.NewEncoder(cfg)
	e.Raw(tableSignature)
	e.Uint8(headerVersion)
	e.Uint64(uint64(len(t)))
	for _, id := range t.IDs() {
		en := t[id]
		e.Uint64(id)
		e.Offset(en.Addr)
		e.Length(en.Size)
	}
	return binary.AppendChecksum(e.Bytes())
}

// DecodeTable parses a table record.
func DecodeTable(block []byte, cfg binary.Config) (Table, error) {
	body, ok := binary.VerifyChecksum(block)
	if !ok {
		return nil, fmt.Errorf("object table: %w", ErrChecksumMismatch)
	}
	d := binary.NewDecoder(body, cfg)
	if sig := d.Raw(4); string(sig) != string(tableSignature) {
		return nil, fmt.Errorf("%w: bad object table signature %q", ErrInvalidHeader, sig)
	}
	if v := d.Uint8(); v != headerVersion {
		return nil, fmt.Errorf("%w: object table %d", ErrUnsupportedVersion, v)
	}
	n := d.Uint64()
	per := uint64(8 + cfg.OffsetSize + cfg.LengthSize)
	if d.Err() == nil && n*per != uint64(d.Remaining()) {
		return nil, fmt.Errorf("%w: object table claims %d entries in %d bytes", ErrInvalidHeader, n, d.Remaining())
	}
	t := make(Table, n)
	for i := uint64(0); i < n; i++ {
		id := d.Uint64()
		t[id] = Entry{Addr: d.Offset(), Size: d.Length()}
	}
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}
	if uint64(len(t)) != n {
		return nil, fmt.Errorf("%w: duplicate object ids", ErrInvalidHeader)
	}
	return t, nil
}
