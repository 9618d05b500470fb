package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/go-hstore/internal/binary"
	"github.com/robert-malhotra/go-hstore/internal/dtype"
	"github.com/robert-malhotra/go-hstore/internal/filter"
	"github.com/robert-malhotra/go-hstore/internal/space"
)

func roundTrip(t *testing.T, m Message) Message {
	t.Helper()
	cfg := binary.DefaultConfig()
	got, err := Parse(m.Type(), Marshal(m, cfg), cfg)
	require.NoError(t, err)
	require.Equal(t, m.Type(), got.Type())
	return got
}

func TestLayoutMessages(t *testing.T) {
	tests := []struct {
		name string
		msg  *Layout
	}{
		{"chunked", &Layout{Class: LayoutChunked, AllocTime: AllocEarly, Chunk: []uint64{4, 4}, IndexAddr: 4096, IndexSize: 120}},
		{"contiguous", &Layout{Class: LayoutContiguous, Addr: 512, Size: 800}},
		{"compact", &Layout{Class: LayoutCompact, Data: []byte{1, 2, 3}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := roundTrip(t, tt.msg).(*Layout)
			assert.Equal(t, tt.msg, got)
		})
	}
}

func TestLayoutRejectsZeroChunk(t *testing.T) {
	cfg := binary.DefaultConfig()
	body := Marshal(&Layout{Class: LayoutChunked, Chunk: []uint64{4, 0}}, cfg)
	_, err := Parse(TypeLayout, body, cfg)
	assert.Error(t, err)
}

func TestLinkMessages(t *testing.T) {
	hard := &Link{Name: "data", CreationOrder: 7, Object: 42}
	assert.Equal(t, hard, roundTrip(t, hard))

	soft := &Link{Name: "alias", CreationOrder: 8, Kind: LinkSoft, Target: "/a/b"}
	assert.Equal(t, soft, roundTrip(t, soft))

	back, err := ParseLink(Marshal(soft, binary.DefaultConfig()), binary.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, "/a/b", back.Target)

	info := &LinkInfo{NextOrder: 9, Dense: true, IndexAddr: 100, IndexSize: 64}
	assert.Equal(t, info, roundTrip(t, info))

	_, err = Parse(TypeGroupInfo, Marshal(&GroupInfo{MaxCompact: 3, MinDense: 3}, binary.DefaultConfig()), binary.DefaultConfig())
	assert.Error(t, err, "min dense must be below max compact")
}

func TestAttributeMessage(t *testing.T) {
	sp, err := space.NewSimple([]uint64{3}, nil)
	require.NoError(t, err)
	data, err := dtype.Encode(dtype.Int32, []int32{1, 2, 3}, nil)
	require.NoError(t, err)

	attr := &Attribute{Name: "units", CreationOrder: 2, Datatype: dtype.Int32, Space: sp, Data: data}
	got := roundTrip(t, attr).(*Attribute)
	assert.Equal(t, "units", got.Name)
	assert.Equal(t, uint32(2), got.CreationOrder)
	assert.True(t, got.Datatype.Equal(dtype.Int32))
	assert.Equal(t, []uint64{3}, got.Space.Dims())
	assert.Equal(t, data, got.Data)

	attr.Data = data[:8]
	_, err = Parse(TypeAttribute, Marshal(attr, binary.DefaultConfig()), binary.DefaultConfig())
	assert.Error(t, err, "size mismatch")
}

func TestFilterPipelineMessage(t *testing.T) {
	m := &FilterPipeline{Filters: []filter.Spec{
		{ID: filter.IDShuffle, Name: "shuffle"},
		{ID: filter.IDDeflate, Name: "deflate", Params: []uint32{9}},
		{ID: filter.IDLZ4, Name: "lz4", Optional: true},
	}}
	got := roundTrip(t, m).(*FilterPipeline)
	assert.Equal(t, m.Filters, got.Filters)
}

func TestMiscMessages(t *testing.T) {
	fv := &FillValue{Defined: true, Value: []byte{0xff, 0xff, 0xff, 0xff}}
	assert.Equal(t, fv, roundTrip(t, fv))
	assert.Equal(t, &FillValue{}, roundTrip(t, &FillValue{}))

	ext := &External{Files: []ExternalFile{{Name: "a.raw", Size: 100}, {Name: "b.raw", Offset: 16, Size: space.Unlimited}}}
	assert.Equal(t, ext, roundTrip(t, ext))

	assert.Equal(t, &SharedType{Object: 5}, roundTrip(t, &SharedType{Object: 5}))
	assert.Equal(t, &AttributeInfo{NextOrder: 3}, roundTrip(t, &AttributeInfo{NextOrder: 3}))

	sp, err := space.NewSimple([]uint64{2, 3}, []uint64{space.Unlimited, 3})
	require.NoError(t, err)
	ds := roundTrip(t, &Dataspace{Space: sp}).(*Dataspace)
	assert.Equal(t, sp.MaxDims(), ds.Space.MaxDims())

	dt := roundTrip(t, &Datatype{Datatype: dtype.Float64BE}).(*Datatype)
	assert.True(t, dt.Datatype.Equal(dtype.Float64BE))
}

func TestUnknownPreserved(t *testing.T) {
	got, err := Parse(Type(0x0100), []byte{9, 8, 7}, binary.DefaultConfig())
	require.NoError(t, err)
	u, ok := got.(*Unknown)
	require.True(t, ok)
	assert.Equal(t, []byte{9, 8, 7}, Marshal(u, binary.DefaultConfig()))
	assert.Equal(t, "message-0x0100", Type(0x0100).String())
}
