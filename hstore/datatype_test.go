package hstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// particle is a 100-byte record with explicit member offsets.
func particle(t *testing.T) *Type {
	t.Helper()
	name, err := NewString(ASCII, 80, NullTerm)
	require.NoError(t, err)
	ct, err := NewCompound(100)
	require.NoError(t, err)
	require.NoError(t, ct.InsertMember("id", 0, Int32))
	require.NoError(t, ct.InsertMember("name", 4, name))
	require.NoError(t, ct.InsertMember("mass", 84, Float64))
	require.NoError(t, ct.InsertMember("charge", 92, Float64))
	return ct
}

func TestCompoundMembers(t *testing.T) {
	ct := particle(t)

	err := ct.InsertMember("overlap", 88, Int64)
	assert.ErrorIs(t, err, ErrOverlap)
	err = ct.InsertMember("mass", 96, Int32)
	assert.ErrorIs(t, err, ErrDuplicateName)
	err = ct.InsertMember("tail", 98, Int32)
	assert.Error(t, err)

	var names []string
	var offsets []uint32
	for _, m := range ct.Members() {
		names = append(names, m.Name)
		offsets = append(offsets, m.Offset)
	}
	assert.Equal(t, []string{"id", "name", "mass", "charge"}, names)
	assert.Equal(t, []uint32{0, 4, 84, 92}, offsets)
	assert.Equal(t, 100, ct.Size())
}

func TestEnumType(t *testing.T) {
	et, err := NewEnum(Uint8)
	require.NoError(t, err)
	require.NoError(t, et.InsertEnum("RED", 0))
	require.NoError(t, et.InsertEnum("GREEN", 1))
	assert.ErrorIs(t, et.InsertEnum("RED", 5), ErrDuplicateName)
	assert.ErrorIs(t, et.InsertEnum("BLUE", 1), ErrDuplicateName)
	assert.ErrorIs(t, et.InsertEnum("BIG", 300), ErrConversionRange)

	c, _ := create(t)
	r := root(t, c)
	d, err := r.CreateDataset("colors", et, simple(t, 3))
	require.NoError(t, err)
	defer d.Close()
	require.NoError(t, d.Write(nil, []uint8{1, 0, 1}))

	vals, err := d.ReadValues(nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"GREEN", "RED", "GREEN"}, vals)
}

func TestCommittedType(t *testing.T) {
	c, path := create(t)
	r := root(t, c)

	nt, err := r.CommitType("particle", particle(t))
	require.NoError(t, err)
	assert.Equal(t, KindNamedType, nt.Kind())
	shared, err := nt.Type()
	require.NoError(t, err)
	assert.True(t, shared.Locked())
	assert.ErrorIs(t, shared.InsertMember("spin", 0, Int8), ErrTypeMismatch)

	_, err = r.CommitType("particle", Int32)
	assert.ErrorIs(t, err, ErrNameExists)

	d, err := r.CreateDataset("particles", shared, simple(t, 2))
	require.NoError(t, err)
	id, err := d.SharedType()
	require.NoError(t, err)
	assert.Equal(t, nt.ID(), id)

	type record struct {
		ID     int32
		Name   string
		Mass   float64
		Charge float64
	}
	in := []record{{1, "electron", 9.109e-31, -1}, {2, "proton", 1.673e-27, 1}}
	require.NoError(t, d.Write(nil, in))
	require.NoError(t, d.SetAttr("unit", "SI"))
	a, err := d.CreateAttribute("reference", shared, NewScalarSpace())
	require.NoError(t, err)
	require.NoError(t, a.Close())

	refs, err := nt.RefCount()
	require.NoError(t, err)
	assert.Equal(t, 3, refs)
	require.NoError(t, d.Close())
	require.NoError(t, nt.Close())
	require.NoError(t, r.Close())

	c = reopen(t, c, path, true)
	r = root(t, c)

	nt, err = c.OpenType("/particle")
	require.NoError(t, err)
	defer nt.Close()
	loaded, err := nt.Type()
	require.NoError(t, err)
	var names []string
	for _, m := range loaded.Members() {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"id", "name", "mass", "charge"}, names)

	d, err = r.OpenDataset("particles")
	require.NoError(t, err)
	typ, err := d.Type()
	require.NoError(t, err)
	assert.True(t, typ.Equal(loaded))
	var out []record
	require.NoError(t, d.Read(nil, &out))
	assert.Equal(t, in, out)
	require.NoError(t, d.Close())

	// The type outlives its name while a dataset uses it.
	require.NoError(t, r.DeleteLink("particle"))
	refs, err = nt.RefCount()
	require.NoError(t, err)
	assert.Equal(t, 2, refs)
	ok, err := r.Exists("particle")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.DeleteLink("particles"))
	refs, err = nt.RefCount()
	require.NoError(t, err)
	assert.Equal(t, 0, refs)
	require.NoError(t, nt.Close())
	_, err = nt.Type()
	assert.ErrorIs(t, err, ErrStaleHandle)

	st, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Objects)
}

func TestCommittedTypeIsCopied(t *testing.T) {
	c, _ := create(t)
	r := root(t, c)

	// Room is left after the last member for a later insert.
	ct, err := NewCompound(16)
	require.NoError(t, err)
	require.NoError(t, ct.InsertMember("id", 0, Int32))
	require.NoError(t, ct.InsertMember("mass", 4, Float64))
	nt, err := r.CommitType("p", ct)
	require.NoError(t, err)
	defer nt.Close()

	// The caller's type stays editable and is not the committed one.
	require.NoError(t, ct.InsertMember("extra", 12, Int32))
	assert.Equal(t, 3, ct.NumMembers())
	shared, err := nt.Type()
	require.NoError(t, err)
	assert.Equal(t, 2, shared.NumMembers())

	d, err := r.CreateDataset("copy", ct, simple(t, 1))
	require.NoError(t, err)
	defer d.Close()
	id, err := d.SharedType()
	require.NoError(t, err)
	assert.Zero(t, id)
}
