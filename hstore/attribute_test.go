package hstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributeCreateAndRead(t *testing.T) {
	c, path := create(t)
	r := root(t, c)

	a, err := r.CreateAttribute("version", Int32, NewScalarSpace())
	require.NoError(t, err)
	var v int32
	require.NoError(t, a.Read(&v))
	assert.Zero(t, v)
	require.NoError(t, a.Write(int32(3)))
	require.NoError(t, a.Close())

	vec, err := r.CreateAttribute("origin", Float64, simple(t, 3))
	require.NoError(t, err)
	require.NoError(t, vec.Write([]float64{1.5, -2, 0.25}))
	assert.Equal(t, "/", vec.Object())
	assert.Equal(t, uint32(1), vec.CreationOrder())
	require.NoError(t, vec.Close())

	_, err = r.CreateAttribute("version", Int64, NewScalarSpace())
	assert.ErrorIs(t, err, ErrNameExists)

	require.NoError(t, r.Close())
	c = reopen(t, c, path, false)
	r = root(t, c)

	got, err := r.Attr("version")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got)

	got, err = r.Attr("origin")
	require.NoError(t, err)
	assert.Equal(t, []any{1.5, -2.0, 0.25}, got)

	a, err = r.OpenAttribute("origin")
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, []uint64{3}, a.Space().Dims())
	assert.True(t, a.Type().Equal(Float64))
	var xs []float64
	require.NoError(t, a.Read(&xs))
	assert.Equal(t, []float64{1.5, -2, 0.25}, xs)

	_, err = r.OpenAttribute("missing")
	assert.ErrorIs(t, err, ErrPathNotFound)
}

func TestAttributeCreationOrder(t *testing.T) {
	c, path := create(t)
	r := root(t, c)

	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, r.SetAttr(name, name))
	}
	require.NoError(t, r.DeleteAttribute("alpha"))
	require.NoError(t, r.SetAttr("beta", int16(2)))
	require.NoError(t, r.RenameAttribute("zeta", "omega"))

	names, err := r.Attributes()
	require.NoError(t, err)
	assert.Equal(t, []string{"omega", "mid", "beta"}, names)

	require.NoError(t, r.Close())
	c = reopen(t, c, path, true)
	r = root(t, c)

	names, err = r.Attributes()
	require.NoError(t, err)
	assert.Equal(t, []string{"omega", "mid", "beta"}, names)

	a, err := r.OpenAttribute("beta")
	require.NoError(t, err)
	assert.Equal(t, uint32(3), a.CreationOrder())
	require.NoError(t, a.Close())

	// Creation order counters are never reused.
	require.NoError(t, r.SetAttr("gamma", "g"))
	a, err = r.OpenAttribute("gamma")
	require.NoError(t, err)
	assert.Equal(t, uint32(4), a.CreationOrder())
	require.NoError(t, a.Close())
}

func TestAttributeRenameAndDelete(t *testing.T) {
	c, _ := create(t)
	r := root(t, c)
	require.NoError(t, r.SetAttr("a", int32(1)))
	require.NoError(t, r.SetAttr("b", int32(2)))

	assert.ErrorIs(t, r.RenameAttribute("a", "b"), ErrNameExists)
	assert.ErrorIs(t, r.RenameAttribute("missing", "c"), ErrPathNotFound)
	assert.ErrorIs(t, r.RenameAttribute("a", ""), ErrPathNotFound)
	require.NoError(t, r.RenameAttribute("a", "a"))
	require.NoError(t, r.RenameAttribute("a", "c"))

	ok, err := r.HasAttribute("a")
	require.NoError(t, err)
	assert.False(t, ok)
	v, err := r.Attr("c")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	assert.ErrorIs(t, r.DeleteAttribute("a"), ErrPathNotFound)
	require.NoError(t, r.DeleteAttribute("c"))
	n, err := r.NumAttributes()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAttributeStaleHandle(t *testing.T) {
	c, _ := create(t)
	r := root(t, c)
	require.NoError(t, r.SetAttr("count", int32(1)))

	a, err := r.OpenAttribute("count")
	require.NoError(t, err)
	defer a.Close()

	// Same type and shape overwrites in place.
	require.NoError(t, r.SetAttr("count", int32(7)))
	var v int32
	require.NoError(t, a.Read(&v))
	assert.Equal(t, int32(7), v)

	// A different type replaces the attribute.
	require.NoError(t, r.SetAttr("count", "seven"))
	assert.ErrorIs(t, a.Read(&v), ErrStaleHandle)

	b, err := r.OpenAttribute("count")
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, uint32(0), b.CreationOrder())
	require.NoError(t, r.DeleteAttribute("count"))
	_, err = b.Value()
	assert.ErrorIs(t, err, ErrStaleHandle)
	assert.ErrorIs(t, b.Write("x"), ErrStaleHandle)
}

func TestAttributeKeepsObjectAlive(t *testing.T) {
	c, _ := create(t)
	r := root(t, c)

	d, err := r.CreateDataset("d", Int32, simple(t, 2))
	require.NoError(t, err)
	require.NoError(t, d.SetAttr("note", "kept"))
	a, err := d.OpenAttribute("note")
	require.NoError(t, err)
	require.NoError(t, d.Close())

	require.NoError(t, r.DeleteLink("d"))
	v, err := a.Value()
	require.NoError(t, err)
	assert.Equal(t, "kept", v)

	before, err := c.Stats()
	require.NoError(t, err)
	require.NoError(t, a.Close())
	after, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, before.Objects-1, after.Objects)
}

func TestAttributeLimits(t *testing.T) {
	c, _ := create(t)
	r := root(t, c)

	_, err := r.CreateAttribute("huge", Float64, simple(t, 1<<14))
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	a, err := r.CreateAttribute("pair", Int32, simple(t, 2))
	require.NoError(t, err)
	defer a.Close()
	assert.ErrorIs(t, a.Write([]int32{1, 2, 3}), ErrDimensionMismatch)
	assert.ErrorIs(t, a.WriteRaw(make([]byte, 4)), ErrDimensionMismatch)
	require.NoError(t, a.Write([]int32{1, 1 << 30}))

	require.NoError(t, r.SetAttr("small", int8(1)))
	assert.ErrorIs(t, r.SetAttr("wide", nil), ErrTypeMismatch)

	var narrow int8
	require.NoError(t, r.SetAttr("big", int32(1000)))
	big, err := r.OpenAttribute("big")
	require.NoError(t, err)
	defer big.Close()
	assert.ErrorIs(t, big.Read(&narrow), ErrConversionRange)
}

func TestAttributeVarLenStorage(t *testing.T) {
	c, _ := create(t)
	r := root(t, c)

	require.NoError(t, r.SetAttr("tags", []string{"alpha", "beta", ""}))
	v, err := r.Attr("tags")
	require.NoError(t, err)
	assert.Equal(t, []any{"alpha", "beta", ""}, v)

	require.NoError(t, r.SetAttr("tags", []string{"gamma", "delta", "epsilon"}))
	v, err = r.Attr("tags")
	require.NoError(t, err)
	assert.Equal(t, []any{"gamma", "delta", "epsilon"}, v)

	// A longer list changes the shape and replaces the attribute.
	require.NoError(t, r.SetAttr("tags", []string{"a", "b", "c", "d"}))
	a, err := r.OpenAttribute("tags")
	require.NoError(t, err)
	assert.Equal(t, []uint64{4}, a.Space().Dims())
	assert.Equal(t, uint32(0), a.CreationOrder())
	require.NoError(t, a.Close())
	require.NoError(t, r.DeleteAttribute("tags"))
}

func TestVisitAttributes(t *testing.T) {
	c, _ := create(t)
	r := root(t, c)
	g, err := r.CreateGroup("g")
	require.NoError(t, err)
	defer g.Close()

	require.NoError(t, g.SetAttr("one", int32(1)))
	require.NoError(t, g.SetAttr("two", int32(2)))
	require.NoError(t, g.SetAttr("three", int32(3)))

	var seen []string
	err = VisitAttributes(g, func(objectPath string, a *Attribute) error {
		assert.Equal(t, "/g", objectPath)
		seen = append(seen, a.Name())
		if a.Name() == "one" {
			return g.DeleteAttribute("two")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "three"}, seen)

	seen = nil
	err = VisitAttributes(g, func(_ string, a *Attribute) error {
		seen = append(seen, a.Name())
		return ErrStopWalk
	})
	assert.ErrorIs(t, err, ErrStopWalk)
	assert.Equal(t, []string{"one"}, seen)
}
