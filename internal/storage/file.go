// Package storage reads and writes the container file and hands out file
// space.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/robert-malhotra/go-hstore/internal/alloc"
	"github.com/robert-malhotra/go-hstore/internal/errs"
	"github.com/robert-malhotra/go-hstore/internal/metrics"
)

// Backend is the random-access medium under a container.
type Backend interface {
	io.ReaderAt
	io.WriterAt
	Truncate(size int64) error
	Sync() error
	Close() error
}

// ErrReadOnly is returned for writes to a file opened read-only.
var ErrReadOnly = errors.New("container is read-only")

// File is a container file. The allocator is installed once the superblock
// has been read (or a new one laid out).
type File struct {
	b        Backend
	writable bool
	alloc    *alloc.Allocator
	metrics  *metrics.Metrics
}

// Create truncates or creates path for writing.
func Create(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errs.IO(err)
	}
	return &File{b: f, writable: true}, nil
}

// Open opens an existing file.
func Open(path string, writable bool) (*File, error) {
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errs.New(errs.ErrPathNotFound, "%s", path)
		}
		return nil, errs.IO(err)
	}
	return &File{b: f, writable: writable}, nil
}

// New wraps an arbitrary backend.
func New(b Backend, writable bool) *File {
	return &File{b: b, writable: writable}
}

// SetAllocator installs the space allocator.
func (f *File) SetAllocator(a *alloc.Allocator) { f.alloc = a }

// Allocator returns the installed allocator.
func (f *File) Allocator() *alloc.Allocator { return f.alloc }

// SetMetrics attaches collectors; nil disables them.
func (f *File) SetMetrics(m *metrics.Metrics) { f.metrics = m }

// ReaderAt exposes the backend for structures at fixed positions, such as
// the superblock.
func (f *File) ReaderAt() io.ReaderAt { return f.b }

// Writable reports whether the file accepts writes.
func (f *File) Writable() bool { return f.writable }

// ReadAt reads exactly n bytes at addr.
func (f *File) ReadAt(addr, n uint64) ([]byte, error) {
	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}
	read, err := f.b.ReadAt(buf, int64(addr))
	f.metrics.BytesRead(read)
	if err != nil && !(errors.Is(err, io.EOF) && uint64(read) == n) {
		return nil, errs.IO(fmt.Errorf("read %d bytes at %d: %w", n, addr, err))
	}
	return buf, nil
}

// WriteAt writes data at addr.
func (f *File) WriteAt(addr uint64, data []byte) error {
	if !f.writable {
		return errs.IO(ErrReadOnly)
	}
	if len(data) == 0 {
		return nil
	}
	n, err := f.b.WriteAt(data, int64(addr))
	f.metrics.BytesWritten(n)
	if err != nil {
		return errs.IO(fmt.Errorf("write %d bytes at %d: %w", len(data), addr, err))
	}
	return nil
}

// Alloc reserves size bytes of file space.
func (f *File) Alloc(size uint64, tag string) (uint64, error) {
	if !f.writable {
		return 0, errs.IO(ErrReadOnly)
	}
	addr := f.alloc.AllocTagged(size, tag)
	f.updateSpace()
	return addr, nil
}

// Put allocates space for data and writes it.
func (f *File) Put(data []byte, tag string) (uint64, error) {
	addr, err := f.Alloc(uint64(len(data)), tag)
	if err != nil {
		return 0, err
	}
	if err := f.WriteAt(addr, data); err != nil {
		f.alloc.Free(addr, uint64(len(data)))
		return 0, err
	}
	return addr, nil
}

// Free releases file space.
func (f *File) Free(addr, size uint64) {
	if !f.writable || size == 0 {
		return
	}
	f.alloc.Free(addr, size)
	f.updateSpace()
}

func (f *File) updateSpace() {
	if f.metrics != nil {
		f.metrics.FileSpace(f.alloc.EOFAddr(), f.alloc.Stats().FreeBytes)
	}
}

// Sync flushes the file to stable storage and trims it to the allocator's
// end of file.
func (f *File) Sync() error {
	if !f.writable {
		return nil
	}
	if f.alloc != nil {
		if err := f.b.Truncate(int64(f.alloc.EOFAddr())); err != nil {
			return errs.IO(err)
		}
	}
	return errs.IO(f.b.Sync())
}

// Close closes the backend.
func (f *File) Close() error {
	return errs.IO(f.b.Close())
}
