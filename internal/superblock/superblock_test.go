package superblock

import (
	"bytes"
	"testing"

	"github.com/google/uuid"

	binpkg "github.com/robert-malhotra/go-hstore/internal/binary"
)

// bytesReaderAt wraps a byte slice to implement io.ReaderAt.
type bytesReaderAt []byte

func (b bytesReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(b)) {
		return 0, nil
	}
	n := copy(p, b[off:])
	return n, nil
}

func TestRoundTrip(t *testing.T) {
	for _, width := range []int{4, 8} {
		cfg := binpkg.DefaultConfig()
		cfg.OffsetSize = width
		cfg.LengthSize = width

		sb := New(cfg)
		sb.Flags = FlagWriterOpen
		sb.EOFAddress = 4096
		sb.TableAddress = 1024
		sb.TableSize = 96
		sb.FreeListAddress = 2048
		sb.FreeListSize = 40
		sb.NextID = 17

		enc := sb.Encode()
		if len(enc) != sb.Size() {
			t.Fatalf("encoded %d bytes, Size() = %d", len(enc), sb.Size())
		}
		got, err := Read(bytesReaderAt(enc))
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if *got != *sb {
			t.Errorf("width %d: got %+v, want %+v", width, got, sb)
		}
	}
}

func TestNewAssignsIdentity(t *testing.T) {
	a := New(binpkg.DefaultConfig())
	b := New(binpkg.DefaultConfig())
	if a.ID == uuid.Nil || a.ID == b.ID {
		t.Errorf("expected distinct non-nil ids, got %s and %s", a.ID, b.ID)
	}
	// The root group takes the first id when the container is created.
	if a.RootID != 1 || a.NextID != 1 {
		t.Errorf("unexpected initial ids root=%d next=%d", a.RootID, a.NextID)
	}
}

func TestReadNotContainer(t *testing.T) {
	data := make(bytesReaderAt, 4096)
	if _, err := Read(data); err != ErrNotContainer {
		t.Errorf("expected ErrNotContainer, got %v", err)
	}
}

func TestReadUnsupportedVersion(t *testing.T) {
	data := make(bytesReaderAt, 256)
	copy(data[0:8], Signature)
	data[8] = 99

	if _, err := Read(data); err != ErrUnsupportedVersion {
		t.Errorf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestReadCorrupt(t *testing.T) {
	enc := New(binpkg.DefaultConfig()).Encode()
	enc[30] ^= 0xff
	if _, err := Read(bytesReaderAt(enc)); err != ErrInvalidSuperblock {
		t.Errorf("expected ErrInvalidSuperblock, got %v", err)
	}
	if !bytes.Equal(enc[:8], Signature) {
		t.Fatal("signature clobbered")
	}
}
