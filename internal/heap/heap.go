package heap

import (
	"encoding/binary"
	"fmt"

	binpkg "github.com/robert-malhotra/go-hstore/internal/binary"
	"github.com/robert-malhotra/go-hstore/internal/errs"
	"github.com/robert-malhotra/go-hstore/internal/storage"
)

// Overhead is the number of bytes a record adds to its payload.
const Overhead = 8

// MaxBlob is the largest payload a record can hold.
const MaxBlob = 1<<32 - 1

// Heap reads and writes blob records.
type Heap struct {
	f *storage.File
}

// New returns a heap backed by f.
func New(f *storage.File) *Heap {
	return &Heap{f: f}
}

// Put stores data and returns the record address.
func (h *Heap) Put(data []byte) (uint64, error) {
	if uint64(len(data)) > MaxBlob {
		return 0, errs.New(errs.ErrDimensionMismatch, "blob of %d bytes exceeds heap limit", len(data))
	}
	rec := make([]byte, 4, len(data)+Overhead)
	binary.LittleEndian.PutUint32(rec, uint32(len(data)))
	rec = append(rec, data...)
	rec = binpkg.AppendChecksum(rec)
	return h.f.Put(rec, "heap")
}

// Get returns the payload of the record at addr, which must hold exactly
// length bytes.
func (h *Heap) Get(addr, length uint64) ([]byte, error) {
	rec, err := h.f.ReadAt(addr, length+Overhead)
	if err != nil {
		return nil, err
	}
	if n := uint64(binary.LittleEndian.Uint32(rec)); n != length {
		return nil, errs.IO(fmt.Errorf("heap record at %d holds %d bytes, element expects %d", addr, n, length))
	}
	payload, ok := binpkg.VerifyChecksum(rec)
	if !ok {
		return nil, errs.IO(fmt.Errorf("heap record at %d: checksum mismatch", addr))
	}
	return payload[4:], nil
}

// Load returns the payload of the record at addr using its stored length.
func (h *Heap) Load(addr uint64) ([]byte, error) {
	n, err := h.size(addr)
	if err != nil {
		return nil, err
	}
	return h.Get(addr, n)
}

// Free releases the record at addr.
func (h *Heap) Free(addr uint64) error {
	n, err := h.size(addr)
	if err != nil {
		return err
	}
	h.f.Free(addr, n+Overhead)
	return nil
}

func (h *Heap) size(addr uint64) (uint64, error) {
	hdr, err := h.f.ReadAt(addr, 4)
	if err != nil {
		return 0, err
	}
	return uint64(binary.LittleEndian.Uint32(hdr)), nil
}
