package layout

import (
	"errors"
	"fmt"
	"io"

	"github.com/robert-malhotra/go-hstore/internal/errs"
	"github.com/robert-malhotra/go-hstore/internal/message"
	"github.com/robert-malhotra/go-hstore/internal/space"
)

// Contiguous stores the raw data as a single extent, either in the
// container file or spread over external files.
type Contiguous struct {
	cfg     Config
	alloc   message.AllocTime
	addr    uint64
	size    uint64
	strides []uint64
}

func newContiguous(msg *message.Layout, cfg Config, dims []uint64) (*Contiguous, error) {
	size := product(dims) * uint64(cfg.ElemSize)
	if msg.Size != 0 && msg.Size != size {
		return nil, errs.New(errs.ErrIO, "contiguous storage holds %d bytes, extent needs %d", msg.Size, size)
	}
	if len(cfg.External) > 0 {
		var total uint64
		for _, f := range cfg.External {
			if f.Size == space.Unlimited {
				total = space.Unlimited
				break
			}
			total += f.Size
		}
		if total < size {
			return nil, errs.New(errs.ErrDimensionMismatch, "external files hold %d bytes, extent needs %d", total, size)
		}
	}
	return &Contiguous{
		cfg:     cfg,
		alloc:   msg.AllocTime,
		addr:    msg.Addr,
		size:    size,
		strides: strides(dims),
	}, nil
}

func (c *Contiguous) Class() message.LayoutClass { return message.LayoutContiguous }

func (c *Contiguous) external() bool { return len(c.cfg.External) > 0 }

// Allocated reports whether the extent has file space.
func (c *Contiguous) Allocated() bool { return c.external() || c.addr != 0 }

func (c *Contiguous) Read(sel *space.Space, dims []uint64) ([]byte, error) {
	es := uint64(c.cfg.ElemSize)
	out := make([]byte, sel.SelectedCount()*es)
	if !c.Allocated() {
		fillInto(out, c.cfg.Fill)
		return out, nil
	}
	if c.external() {
		fillInto(out, c.cfg.Fill)
		files := &openFiles{dir: c.cfg.ExternalDir}
		defer files.close()
		var pos uint64
		for _, r := range sel.Runs() {
			n := r.Len * es
			if err := c.readExternal(files, linear(r.Coord, c.strides)*es, out[pos:pos+n]); err != nil {
				return nil, err
			}
			pos += n
		}
		return out, nil
	}
	var pos uint64
	for _, r := range sel.Runs() {
		n := r.Len * es
		b, err := c.cfg.File.ReadAt(c.addr+linear(r.Coord, c.strides)*es, n)
		if err != nil {
			return nil, err
		}
		pos += uint64(copy(out[pos:], b))
	}
	return out, nil
}

func (c *Contiguous) Write(sel *space.Space, dims []uint64, data []byte) error {
	if err := checkBuffer(sel, data, c.cfg.ElemSize); err != nil {
		return err
	}
	if err := c.Allocate(dims); err != nil {
		return err
	}
	es := uint64(c.cfg.ElemSize)
	if c.external() {
		files := &openFiles{dir: c.cfg.ExternalDir, writable: true}
		var pos uint64
		for _, r := range sel.Runs() {
			n := r.Len * es
			if err := c.writeExternal(files, linear(r.Coord, c.strides)*es, data[pos:pos+n]); err != nil {
				files.close()
				return err
			}
			pos += n
		}
		return errs.IO(files.close())
	}
	var pos uint64
	for _, r := range sel.Runs() {
		n := r.Len * es
		if err := c.cfg.File.WriteAt(c.addr+linear(r.Coord, c.strides)*es, data[pos:pos+n]); err != nil {
			return err
		}
		pos += n
	}
	return nil
}

// Allocate reserves the extent and writes the fill value into it.
// External storage is never preallocated.
func (c *Contiguous) Allocate([]uint64) error {
	if c.Allocated() || c.size == 0 {
		return nil
	}
	addr, err := c.cfg.File.Put(fillBuffer(c.cfg.Fill, c.size/uint64(c.cfg.ElemSize)), "contiguous")
	if err != nil {
		return err
	}
	c.addr = addr
	c.cfg.Logger.Debugw("allocated contiguous storage", "object", c.cfg.Object, "addr", addr, "size", c.size)
	return nil
}

func (c *Contiguous) Resize(oldDims, newDims []uint64) error {
	if !sameDims(oldDims, newDims) {
		return errs.New(errs.ErrDimensionMismatch, "contiguous datasets cannot be resized")
	}
	return nil
}

func (c *Contiguous) Message() *message.Layout {
	m := &message.Layout{Class: message.LayoutContiguous, AllocTime: c.alloc, Size: c.size}
	if !c.external() {
		m.Addr = c.addr
	}
	return m
}

func (c *Contiguous) Flush() error { return nil }

func (c *Contiguous) Release() {
	if c.addr != 0 && !c.external() {
		c.cfg.File.Free(c.addr, c.size)
		c.addr = 0
	}
}

func (c *Contiguous) StorageSize() uint64 {
	if c.addr == 0 {
		return 0
	}
	return c.size
}

// segments calls fn for each part of [off, off+n) and the external file
// holding it.
func (c *Contiguous) segments(off, n uint64, fn func(f message.ExternalFile, fileOff, bufOff, length uint64) error) error {
	var start, done uint64
	for _, f := range c.cfg.External {
		if done == n {
			return nil
		}
		end := start + f.Size
		if f.Size == space.Unlimited {
			end = space.Unlimited
		}
		cur := off + done
		if cur >= start && cur < end {
			length := min(n-done, end-cur)
			if err := fn(f, f.Offset+(cur-start), done, length); err != nil {
				return err
			}
			done += length
		}
		start = end
	}
	if done < n {
		return errs.New(errs.ErrIO, "external storage ends before byte %d", off+done)
	}
	return nil
}

func (c *Contiguous) readExternal(files *openFiles, off uint64, buf []byte) error {
	return c.segments(off, uint64(len(buf)), func(ef message.ExternalFile, fileOff, bufOff, length uint64) error {
		f, err := files.get(ef.Name)
		if err != nil {
			return errs.IO(fmt.Errorf("external file %s: %w", ef.Name, err))
		}
		// Bytes past the end of an external file keep the fill value.
		_, err = f.ReadAt(buf[bufOff:bufOff+length], int64(fileOff))
		if err != nil && !errors.Is(err, io.EOF) {
			return errs.IO(fmt.Errorf("external file %s: %w", ef.Name, err))
		}
		return nil
	})
}

func (c *Contiguous) writeExternal(files *openFiles, off uint64, data []byte) error {
	return c.segments(off, uint64(len(data)), func(ef message.ExternalFile, fileOff, bufOff, length uint64) error {
		f, err := files.get(ef.Name)
		if err != nil {
			return errs.IO(fmt.Errorf("external file %s: %w", ef.Name, err))
		}
		if _, err := f.WriteAt(data[bufOff:bufOff+length], int64(fileOff)); err != nil {
			return errs.IO(fmt.Errorf("external file %s: %w", ef.Name, err))
		}
		return nil
	})
}
