package heap

import (
	"bytes"
	"errors"
	"testing"

	"github.com/robert-malhotra/go-hstore/internal/alloc"
	"github.com/robert-malhotra/go-hstore/internal/errs"
	"github.com/robert-malhotra/go-hstore/internal/storage"
)

func newHeap(t *testing.T) (*Heap, *storage.File, *storage.Memory) {
	t.Helper()
	mem := storage.NewMemory()
	f := storage.New(mem, true)
	f.SetAllocator(alloc.New(16))
	return New(f), f, mem
}

func TestPutGet(t *testing.T) {
	h, _, _ := newHeap(t)

	tests := []struct {
		name string
		data []byte
	}{
		{"short string", []byte("hello")},
		{"empty", []byte{}},
		{"binary", []byte{0, 1, 2, 0xff, 0}},
		{"larger", bytes.Repeat([]byte("abc"), 1000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := h.Put(tt.data)
			if err != nil {
				t.Fatalf("Put: %v", err)
			}
			got, err := h.Get(addr, uint64(len(tt.data)))
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if !bytes.Equal(got, tt.data) {
				t.Errorf("Get = %q, want %q", got, tt.data)
			}
			loaded, err := h.Load(addr)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if !bytes.Equal(loaded, tt.data) {
				t.Errorf("Load = %q, want %q", loaded, tt.data)
			}
		})
	}
}

func TestLengthMismatch(t *testing.T) {
	h, _, _ := newHeap(t)
	addr, err := h.Put([]byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.Get(addr, 4); !errors.Is(err, errs.ErrIO) {
		t.Errorf("Get with wrong length: got %v, want ErrIO", err)
	}
}

func TestCorruptRecord(t *testing.T) {
	h, f, _ := newHeap(t)
	addr, err := h.Put([]byte("payload"))
	if err != nil {
		t.Fatal(err)
	}
	if err := f.WriteAt(addr+5, []byte{'X'}); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Get(addr, 7); !errors.Is(err, errs.ErrIO) {
		t.Errorf("Get on corrupt record: got %v, want ErrIO", err)
	}
}

func TestFreeReusesSpace(t *testing.T) {
	h, f, _ := newHeap(t)
	a, _ := h.Put([]byte("first record"))
	b, _ := h.Put([]byte("second"))
	if err := h.Free(a); err != nil {
		t.Fatal(err)
	}
	c, err := h.Put([]byte("third"))
	if err != nil {
		t.Fatal(err)
	}
	if c != a {
		t.Errorf("expected freed record at %d to be reused, got %d", a, c)
	}
	if err := h.Free(b); err != nil {
		t.Fatal(err)
	}
	if err := f.Allocator().Validate(); err != nil {
		t.Errorf("allocator invalid: %v", err)
	}
}
