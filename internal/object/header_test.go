package object

import (
	"errors"
	"testing"

	"github.com/robert-malhotra/go-hstore/internal/binary"
	"github.com/robert-malhotra/go-hstore/internal/dtype"
	"github.com/robert-malhotra/go-hstore/internal/message"
	"github.com/robert-malhotra/go-hstore/internal/space"
)

func datasetHeader(t *testing.T) *Header {
	t.Helper()
	sp, err := space.NewSimple([]uint64{10, 20}, nil)
	if err != nil {
		t.Fatal(err)
	}
	h := &Header{Kind: KindDataset, RefCount: 1}
	h.AddFlagged(&message.Dataspace{Space: sp}, 0)
	h.AddFlagged(&message.Datatype{Datatype: dtype.Int32}, FlagConstant)
	h.Add(&message.Layout{Class: message.LayoutContiguous, Addr: 4096, Size: 800})
	h.Add(&message.Attribute{Name: "attr1", Datatype: dtype.Int32, Space: space.NewScalar(), Data: make([]byte, 4)})
	h.Add(&message.Attribute{Name: "attr2", Datatype: dtype.Int32, Space: space.NewScalar(), Data: make([]byte, 4)})
	return h
}

func TestHeaderGetMessage(t *testing.T) {
	h := datasetHeader(t)

	ds := h.Dataspace()
	if ds == nil {
		t.Fatal("expected to find dataspace message")
	}
	if ds.Space.Rank() != 2 {
		t.Errorf("expected rank 2, got %d", ds.Space.Rank())
	}

	if fp := h.FilterPipeline(); fp != nil {
		t.Error("expected nil for missing filter pipeline message")
	}
	if attrs := h.GetMessages(message.TypeAttribute); len(attrs) != 2 {
		t.Errorf("expected 2 attributes, got %d", len(attrs))
	}
	if links := h.Links(); len(links) != 0 {
		t.Errorf("expected 0 links, got %d", len(links))
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	cfg := binary.DefaultConfig()
	h := datasetHeader(t)
	block := h.Encode(cfg)

	got, err := Decode(block, cfg)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Kind != KindDataset || got.RefCount != 1 {
		t.Errorf("kind/refcount = %v/%d", got.Kind, got.RefCount)
	}
	if len(got.Messages) != len(h.Messages) {
		t.Fatalf("got %d messages, want %d", len(got.Messages), len(h.Messages))
	}
	if got.Flags[1] != FlagConstant {
		t.Errorf("datatype flags = %#x", got.Flags[1])
	}
	if l := got.Layout(); l == nil || l.Addr != 4096 || l.Size != 800 {
		t.Errorf("layout = %+v", l)
	}
	attrs := got.Attributes()
	if len(attrs) != 2 || attrs[0].Name != "attr1" || attrs[1].Name != "attr2" {
		t.Errorf("attributes out of order: %+v", attrs)
	}
}

func TestHeaderCorruption(t *testing.T) {
	cfg := binary.DefaultConfig()
	block := datasetHeader(t).Encode(cfg)

	bad := append([]byte(nil), block...)
	bad[12] ^= 0x01
	if _, err := Decode(bad, cfg); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("expected checksum mismatch, got %v", err)
	}

	if _, err := Decode(block[:len(block)-1], cfg); err == nil {
		t.Error("expected error for truncated block")
	}
}

func TestTableRoundTrip(t *testing.T) {
	cfg := binary.Config{ByteOrder: binary.DefaultConfig().ByteOrder, OffsetSize: 4, LengthSize: 4}
	tab := Table{1: {Addr: 100, Size: 40}, 7: {Addr: 300, Size: 12}, 3: {Addr: 140, Size: 99}}

	got, err := DecodeTable(tab.Encode(cfg), cfg)
	if err != nil {
		t.Fatalf("DecodeTable: %v", err)
	}
	if len(got) != 3 || got[7] != tab[7] || got[3] != tab[3] {
		t.Errorf("got %v, want %v", got, tab)
	}
	ids := got.IDs()
	if ids[0] != 1 || ids[1] != 3 || ids[2] != 7 {
		t.Errorf("IDs not sorted: %v", ids)
	}
}
