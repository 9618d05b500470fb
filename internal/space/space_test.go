package space

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/go-hstore/internal/binary"
	"github.com/robert-malhotra/go-hstore/internal/errs"
)

func mustSimple(t *testing.T, dims, maxdims []uint64) *Space {
	t.Helper()
	s, err := NewSimple(dims, maxdims)
	require.NoError(t, err)
	return s
}

func TestNewSimple(t *testing.T) {
	s := mustSimple(t, []uint64{4, 7}, nil)
	assert.Equal(t, 2, s.Rank())
	assert.Equal(t, uint64(28), s.NumElements())
	assert.Equal(t, []uint64{4, 7}, s.MaxDims())
	assert.False(t, s.Extendible())
	assert.Equal(t, uint64(28), s.SelectedCount())

	_, err := NewSimple([]uint64{4}, []uint64{3})
	assert.ErrorIs(t, err, errs.ErrDimensionMismatch)
	_, err = NewSimple(nil, nil)
	assert.ErrorIs(t, err, errs.ErrDimensionMismatch)

	sc := NewScalar()
	assert.True(t, sc.IsScalar())
	assert.Equal(t, uint64(1), sc.SelectedCount())
	assert.Len(t, sc.Runs(), 1)
}

func TestSetThenNotBIsEmpty(t *testing.T) {
	s := mustSimple(t, []uint64{10, 10}, nil)
	start, count := []uint64{2, 3}, []uint64{4, 5}
	require.NoError(t, s.SelectHyperslab(OpSet, start, nil, count, nil))
	assert.Equal(t, uint64(20), s.SelectedCount())
	require.NoError(t, s.SelectHyperslab(OpNotB, start, nil, count, nil))
	assert.Equal(t, uint64(0), s.SelectedCount())
	assert.Empty(t, s.Runs())
}

func TestStridedNotB(t *testing.T) {
	s := mustSimple(t, []uint64{6, 8}, nil)
	start := []uint64{0, 0}
	stride := []uint64{3, 3}
	count := []uint64{2, 2}
	require.NoError(t, s.SelectHyperslab(OpSet, start, stride, count, []uint64{2, 2}))
	assert.Equal(t, uint64(16), s.SelectedCount())
	require.NoError(t, s.SelectHyperslab(OpNotB, start, stride, count, []uint64{1, 1}))
	assert.Equal(t, uint64(12), s.SelectedCount())

	for _, tc := range []struct {
		coord []uint64
		want  bool
	}{
		{[]uint64{0, 0}, false},
		{[]uint64{0, 1}, true},
		{[]uint64{1, 0}, true},
		{[]uint64{3, 3}, false},
		{[]uint64{4, 4}, true},
		{[]uint64{2, 2}, false},
		{[]uint64{5, 7}, false},
	} {
		assert.Equal(t, tc.want, s.Contains(tc.coord), "%v", tc.coord)
	}

	var prev int64 = -1
	var total uint64
	for _, r := range s.Runs() {
		lin := int64(r.Coord[0]*8 + r.Coord[1])
		assert.Greater(t, lin, prev)
		prev = lin + int64(r.Len) - 1
		total += r.Len
	}
	assert.Equal(t, uint64(12), total)
}

func TestHyperslabOutOfBounds(t *testing.T) {
	s := mustSimple(t, []uint64{4, 7}, nil)
	err := s.SelectHyperslab(OpSet, []uint64{0, 0}, []uint64{3, 3}, []uint64{2, 2}, []uint64{2, 2})
	require.ErrorIs(t, err, errs.ErrSelectionBounds)
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, []uint64{4, 4}, e.Coords)

	// The failed call leaves the selection untouched.
	assert.True(t, s.IsAll())

	err = s.SelectHyperslab(OpSet, []uint64{0}, nil, []uint64{1}, nil)
	assert.ErrorIs(t, err, errs.ErrDimensionMismatch)
	err = s.SelectHyperslab(OpSet, []uint64{0, 0}, []uint64{0, 1}, []uint64{2, 1}, nil)
	assert.ErrorIs(t, err, errs.ErrSelectionBounds)
	err = s.SelectHyperslab(OpSet, []uint64{0, 1 << 63}, []uint64{1, 1 << 63}, []uint64{1, 3}, nil)
	assert.ErrorIs(t, err, errs.ErrSelectionBounds)
}

func TestSetOperations(t *testing.T) {
	a := func(s *Space) {
		require.NoError(t, s.SelectHyperslab(OpSet, []uint64{0}, nil, []uint64{6}, nil))
	}
	cases := []struct {
		op   Op
		want uint64
	}{
		{OpOr, 9},
		{OpAnd, 3},
		{OpXor, 6},
		{OpNotB, 3},
		{OpNotA, 3},
		{OpSet, 6},
	}
	for _, tc := range cases {
		t.Run(tc.op.String(), func(t *testing.T) {
			s := mustSimple(t, []uint64{12}, nil)
			a(s)
			require.NoError(t, s.SelectHyperslab(tc.op, []uint64{3}, nil, []uint64{6}, nil))
			assert.Equal(t, tc.want, s.SelectedCount())
		})
	}
}

func TestOverlappingBlocks(t *testing.T) {
	s := mustSimple(t, []uint64{20}, nil)
	require.NoError(t, s.SelectHyperslab(OpSet, []uint64{0}, []uint64{2}, []uint64{4}, []uint64{3}))
	assert.Equal(t, uint64(9), s.SelectedCount())
	runs := s.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, uint64(9), runs[0].Len)
}

func TestPointOrder(t *testing.T) {
	s := mustSimple(t, []uint64{5, 5}, nil)
	pts := [][]uint64{{4, 4}, {0, 1}, {2, 3}}
	require.NoError(t, s.SelectElements(OpSet, pts))
	assert.True(t, s.IsPoints())
	require.NoError(t, s.SelectElements(OpOr, [][]uint64{{0, 1}, {1, 1}}))
	assert.Equal(t, uint64(4), s.SelectedCount())

	var got [][]uint64
	for _, r := range s.Runs() {
		assert.Equal(t, uint64(1), r.Len)
		got = append(got, r.Coord)
	}
	assert.Equal(t, [][]uint64{{4, 4}, {0, 1}, {2, 3}, {1, 1}}, got)

	// Mixing with a hyperslab falls back to row-major order.
	require.NoError(t, s.SelectHyperslab(OpOr, []uint64{0, 0}, nil, []uint64{1, 1}, nil))
	assert.False(t, s.IsPoints())
	runs := s.Runs()
	assert.Equal(t, []uint64{0, 0}, runs[0].Coord)
	assert.Equal(t, uint64(2), runs[0].Len)

	err := s.SelectElements(OpSet, [][]uint64{{5, 0}})
	assert.ErrorIs(t, err, errs.ErrSelectionBounds)
	err = s.SelectElements(OpSet, [][]uint64{{1}})
	assert.ErrorIs(t, err, errs.ErrDimensionMismatch)
}

func TestPointsNotB(t *testing.T) {
	s := mustSimple(t, []uint64{3, 3}, nil)
	require.NoError(t, s.SelectElements(OpSet, [][]uint64{{0, 0}, {1, 1}, {2, 2}}))
	require.NoError(t, s.SelectElements(OpNotB, [][]uint64{{1, 1}, {1, 1}}))
	assert.Equal(t, uint64(2), s.SelectedCount())
	assert.False(t, s.Contains([]uint64{1, 1}))
}

func TestSetExtent(t *testing.T) {
	s := mustSimple(t, []uint64{2, 3}, []uint64{Unlimited, 5})
	assert.True(t, s.Extendible())
	require.NoError(t, s.SetExtent([]uint64{100, 5}))
	assert.Equal(t, []uint64{100, 5}, s.Dims())

	assert.ErrorIs(t, s.SetExtent([]uint64{1, 6}), errs.ErrDimensionMismatch)
	assert.ErrorIs(t, s.SetExtent([]uint64{1}), errs.ErrDimensionMismatch)
	assert.Equal(t, "[100/inf, 5]", s.String())
}

func TestValidateAgainstShrunkExtent(t *testing.T) {
	s := mustSimple(t, []uint64{10}, nil)
	require.NoError(t, s.SelectHyperslab(OpSet, []uint64{6}, nil, []uint64{3}, nil))
	assert.NoError(t, s.Validate([]uint64{10}))
	assert.ErrorIs(t, s.Validate([]uint64{8}), errs.ErrSelectionBounds)
	assert.ErrorIs(t, s.Validate([]uint64{8, 1}), errs.ErrDimensionMismatch)
}

func TestSelectionRoundTrip(t *testing.T) {
	s := mustSimple(t, []uint64{6, 8}, []uint64{Unlimited, 8})
	require.NoError(t, s.SelectHyperslab(OpSet, []uint64{0, 0}, []uint64{3, 3}, []uint64{2, 2}, []uint64{2, 2}))
	require.NoError(t, s.SelectHyperslab(OpNotB, []uint64{0, 0}, []uint64{3, 3}, []uint64{2, 2}, nil))

	p := mustSimple(t, []uint64{4}, nil)
	require.NoError(t, p.SelectElements(OpSet, [][]uint64{{3}, {1}}))

	for _, sp := range []*Space{s, p, NewScalar()} {
		e := binary.NewEncoder(binary.DefaultConfig())
		sp.MarshalSelection(e)
		got, err := ParseSelection(binary.NewDecoder(e.Bytes(), binary.DefaultConfig()))
		require.NoError(t, err)
		assert.True(t, got.SameShape(sp))
		assert.Equal(t, sp.SelectedCount(), got.SelectedCount())
		assert.Equal(t, sp.Runs(), got.Runs())
	}
}
