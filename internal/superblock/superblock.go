package superblock

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/google/uuid"

	binpkg "github.com/robert-malhotra/go-hstore/internal/binary"
)

/*
Superblock Layout:
Offset  Size  Description
0       8     Signature
8       1     Version
9       1     Size of offsets (O)
10      1     Size of lengths (L)
11      1     Flags
12      16    Container UUID
28      O     EOF address
28+O    O     Object table address
28+2O   L     Object table size
28+2O+L O     Free list address
28+3O+L L     Free list size
28+3O+2L 8    Root object id
36+3O+2L 8    Next object id
44+3O+2L 4    Checksum (lookup3)
*/

// Signature identifies a container file.
var Signature = []byte{0x89, 'H', 'S', 'T', '\r', '\n', 0x1a, '\n'}

// Version is the only format version written and read.
const Version = 1

// FlagWriterOpen is set while a writer holds the container open.
const FlagWriterOpen = 0x01

// Errors
var (
	ErrNotContainer       = errors.New("not a container file: signature not found")
	ErrUnsupportedVersion = errors.New("unsupported superblock version")
	ErrInvalidSuperblock  = errors.New("invalid superblock structure")
)

// Superblock holds the container entry-point metadata.
type Superblock struct {
	Version    uint8
	OffsetSize uint8
	LengthSize uint8
	Flags      uint8

	// ID is assigned at creation and never changes.
	ID uuid.UUID

	// EOFAddress is the logical end of file.
	EOFAddress uint64

	TableAddress uint64
	TableSize    uint64

	FreeListAddress uint64
	FreeListSize    uint64

	// RootID is the object id of the root group.
	RootID uint64

	// NextID is the next unused object id.
	NextID uint64
}

// New returns a superblock for a new container.
func New(cfg binpkg.Config) *Superblock {
	return &Superblock{
		Version:    Version,
		OffsetSize: uint8(cfg.OffsetSize),
		LengthSize: uint8(cfg.LengthSize),
		ID:         uuid.New(),
		RootID:     1,
		NextID:     1,
	}
}

// Config returns the codec configuration described by the superblock.
func (sb *Superblock) Config() binpkg.Config {
	return binpkg.Config{
		ByteOrder:  binary.LittleEndian,
		OffsetSize: int(sb.OffsetSize),
		LengthSize: int(sb.LengthSize),
	}
}

// Size returns the encoded size in bytes.
func (sb *Superblock) Size() int {
	return size(int(sb.OffsetSize), int(sb.LengthSize))
}

func size(o, l int) int {
	return 44 + 3*o + 2*l + 4
}

// Encode serializes the superblock including its checksum.
func (sb *Superblock) Encode() []byte {
	e := binpkg.NewEncoder(sb.Config())
	e.Raw(Signature)
	e.Uint8(sb.Version)
	e.Uint8(sb.OffsetSize)
	e.Uint8(sb.LengthSize)
	e.Uint8(sb.Flags)
	e.Raw(sb.ID[:])
	e.Offset(sb.EOFAddress)
	e.Offset(sb.TableAddress)
	e.Length(sb.TableSize)
	e.Offset(sb.FreeListAddress)
	e.Length(sb.FreeListSize)
	e.Uint64(sb.RootID)
	e.Uint64(sb.NextID)
	return binpkg.AppendChecksum(e.Bytes())
}

// Read parses the superblock at address 0.
func Read(r io.ReaderAt) (*Superblock, error) {
	head := make([]byte, 12)
	if _, err := r.ReadAt(head, 0); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNotContainer
		}
		return nil, err
	}
	if !bytes.Equal(head[:8], Signature) {
		return nil, ErrNotContainer
	}
	if head[8] != Version {
		return nil, ErrUnsupportedVersion
	}

	cfg := binpkg.Config{ByteOrder: binary.LittleEndian, OffsetSize: int(head[9]), LengthSize: int(head[10])}
	if err := cfg.Validate(); err != nil {
		return nil, ErrInvalidSuperblock
	}
	buf := make([]byte, size(cfg.OffsetSize, cfg.LengthSize))
	if _, err := r.ReadAt(buf, 0); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrInvalidSuperblock
		}
		return nil, err
	}
	body, ok := binpkg.VerifyChecksum(buf)
	if !ok {
		return nil, ErrInvalidSuperblock
	}

	d := binpkg.NewDecoder(body[12:], cfg)
	sb := &Superblock{
		Version:    head[8],
		OffsetSize: head[9],
		LengthSize: head[10],
		Flags:      head[11],
	}
	copy(sb.ID[:], d.Raw(16))
	sb.EOFAddress = d.Offset()
	sb.TableAddress = d.Offset()
	sb.TableSize = d.Length()
	sb.FreeListAddress = d.Offset()
	sb.FreeListSize = d.Length()
	sb.RootID = d.Uint64()
	sb.NextID = d.Uint64()
	if err := d.Err(); err != nil {
		return nil, ErrInvalidSuperblock
	}
	return sb, nil
}
