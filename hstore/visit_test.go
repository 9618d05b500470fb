package hstore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func visitPaths(t *testing.T, obj Object) []string {
	t.Helper()
	var paths []string
	require.NoError(t, Visit(obj, func(path string, _ ObjectInfo) error {
		paths = append(paths, path)
		return nil
	}))
	return paths
}

func TestVisitOrderAndCycles(t *testing.T) {
	c, _ := create(t)
	r := root(t, c)

	b, err := r.CreateGroup("b")
	require.NoError(t, err)
	defer b.Close()
	mkgroups(t, r, "a")
	mkgroups(t, b, "y", "x")
	d, err := b.CreateDataset("x/data", Int8, simple(t, 4))
	require.NoError(t, err)
	require.NoError(t, d.Close())

	// A hard link back to the root and a second name for b/x.
	require.NoError(t, b.CreateHardLink("up", r))
	x, err := b.OpenGroup("x")
	require.NoError(t, err)
	require.NoError(t, r.CreateHardLink("alias", x))
	require.NoError(t, x.Close())
	require.NoError(t, r.CreateSoftLink("soft", "/b"))

	assert.Equal(t, []string{"/", "/a", "/alias", "/alias/data", "/b", "/b/y"}, visitPaths(t, r))
	assert.Equal(t, []string{"/b", "/b/up", "/b/up/a", "/b/up/alias", "/b/up/alias/data", "/b/y"}, visitPaths(t, b))

	info, err := x.Info()
	assert.ErrorIs(t, err, ErrStaleHandle)
	assert.Zero(t, info)
	info, err = r.Info()
	require.NoError(t, err)
	assert.Equal(t, KindGroup, info.Kind)
	assert.Equal(t, 4, info.NumLinks)
	assert.Equal(t, 2, info.RefCount) // its own plus b/up
}

func TestVisitStop(t *testing.T) {
	c, _ := create(t)
	r := root(t, c)
	mkgroups(t, r, "a", "b", "c")

	var seen []string
	err := Visit(r, func(path string, _ ObjectInfo) error {
		seen = append(seen, path)
		if path == "/b" {
			return ErrStopWalk
		}
		return nil
	})
	assert.ErrorIs(t, err, ErrStopWalk)
	assert.Equal(t, []string{"/", "/a", "/b"}, seen)

	boom := errors.New("boom")
	err = Visit(r, func(string, ObjectInfo) error { return boom })
	assert.Same(t, boom, err)
}

func TestVisitCallbackMayModify(t *testing.T) {
	c, _ := create(t)
	r := root(t, c)
	mkgroups(t, r, "a", "b")

	var infos []ObjectInfo
	err := Visit(r, func(path string, info ObjectInfo) error {
		infos = append(infos, info)
		if path == "/a" {
			return r.DeleteLink("b")
		}
		return nil
	})
	require.NoError(t, err)
	// b was captured before the callback deleted it.
	assert.Len(t, infos, 3)
}

func TestObjectReferences(t *testing.T) {
	c, path := create(t)
	r := root(t, c)

	g, err := r.CreateGroup("g")
	require.NoError(t, err)
	target, err := g.CreateDataset("target", Int32, simple(t, 3))
	require.NoError(t, err)
	require.NoError(t, target.Write(nil, []int32{10, 20, 30}))

	refType, err := NewReference(RefObject)
	require.NoError(t, err)
	refs, err := r.CreateDataset("refs", refType, simple(t, 3))
	require.NoError(t, err)
	require.NoError(t, refs.Write(nil, []ObjectRef{g.Ref(), target.Ref(), 0}))
	require.NoError(t, refs.Close())
	require.NoError(t, target.Close())
	require.NoError(t, g.Close())
	require.NoError(t, r.Close())

	c = reopen(t, c, path, true)
	refs, err = c.OpenDataset("/refs")
	require.NoError(t, err)
	defer refs.Close()
	var got []ObjectRef
	require.NoError(t, refs.Read(nil, &got))
	require.Len(t, got, 3)

	obj, err := c.Dereference(got[1])
	require.NoError(t, err)
	defer obj.Close()
	assert.Equal(t, "/g/target", obj.Path())
	d, ok := obj.(*Dataset)
	require.True(t, ok)
	var vals []int32
	require.NoError(t, d.Read(nil, &vals))
	assert.Equal(t, []int32{10, 20, 30}, vals)

	grp, err := c.Dereference(got[0])
	require.NoError(t, err)
	assert.Equal(t, KindGroup, grp.Kind())
	require.NoError(t, grp.Close())

	_, err = c.Dereference(got[2])
	assert.ErrorIs(t, err, ErrPathNotFound)

	r = root(t, c)
	require.NoError(t, r.DeleteLink("g"))
	// The open dataset handle keeps the object; its name is gone.
	again, err := c.Dereference(got[1])
	require.NoError(t, err)
	assert.Equal(t, "", again.Path())
	require.NoError(t, again.Close())
	require.NoError(t, obj.Close())
	_, err = c.Dereference(got[1])
	assert.ErrorIs(t, err, ErrPathNotFound)
}

func TestRegionReferences(t *testing.T) {
	c, path := create(t)
	r := root(t, c)

	d, err := r.CreateDataset("grid", Int32, simple(t, 4, 5), WithChunks(2, 5), WithMaxDims(Unlimited, 5))
	require.NoError(t, err)
	require.NoError(t, d.Write(nil, grid(4, 5, func(i, j int) int32 { return int32(10*i + j) })))

	sel := simple(t, 4, 5)
	require.NoError(t, sel.SelectHyperslab(OpSet, []uint64{1, 1}, nil, []uint64{2, 3}, nil))
	ref, err := d.RegionRef(sel)
	require.NoError(t, err)
	require.NoError(t, d.Close())

	regType, err := NewReference(RefRegion)
	require.NoError(t, err)
	holder, err := r.CreateDataset("regions", regType, NewScalarSpace())
	require.NoError(t, err)
	require.NoError(t, holder.Write(nil, ref))
	require.NoError(t, holder.Close())
	require.NoError(t, r.Close())

	c = reopen(t, c, path, true)
	holder, err = c.OpenDataset("/regions")
	require.NoError(t, err)
	defer holder.Close()
	var stored RegionRef
	require.NoError(t, holder.Read(nil, &stored))
	assert.Equal(t, ref, stored)

	target, region, err := c.DereferenceRegion(stored)
	require.NoError(t, err)
	defer target.Close()
	assert.Equal(t, "/grid", target.Path())
	assert.Equal(t, uint64(6), region.SelectedCount())
	var vals []int32
	require.NoError(t, target.Read(region, &vals))
	assert.Equal(t, []int32{11, 12, 13, 21, 22, 23}, vals)

	// Shrinking the dataset below the region invalidates it.
	require.NoError(t, target.Resize(2, 5))
	_, _, err = c.DereferenceRegion(stored)
	assert.ErrorIs(t, err, ErrSelectionBounds)

	_, _, err = c.DereferenceRegion(RegionRef{})
	assert.ErrorIs(t, err, ErrPathNotFound)

	r = root(t, c)
	_, _, err = c.DereferenceRegion(RegionRef{Object: r.ID(), Selection: stored.Selection})
	assert.ErrorIs(t, err, ErrTypeMismatch)
}
