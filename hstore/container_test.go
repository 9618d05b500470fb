package hstore

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func create(t *testing.T, opts ...ContainerOption) (*Container, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.hst")
	c, err := Create(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, path
}

func root(t *testing.T, c *Container) *Group {
	t.Helper()
	g, err := c.Root()
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })
	return g
}

func reopen(t *testing.T, c *Container, path string, writable bool) *Container {
	t.Helper()
	require.NoError(t, c.Close())
	open := Open
	if writable {
		open = OpenReadWrite
	}
	c2, err := open(path)
	require.NoError(t, err)
	t.Cleanup(func() { c2.Close() })
	return c2
}

func simple(t *testing.T, dims ...uint64) *Space {
	t.Helper()
	s, err := NewSimpleSpace(dims, nil)
	require.NoError(t, err)
	return s
}

func TestCreateAndReopen(t *testing.T) {
	c, path := create(t)
	id := c.ID()
	assert.True(t, c.Writable())
	assert.Equal(t, path, c.Path())

	r := root(t, c)
	g, err := r.CreateGroup("sensors")
	require.NoError(t, err)
	require.NoError(t, g.Close())

	c2 := reopen(t, c, path, false)
	assert.Equal(t, id, c2.ID())
	assert.False(t, c2.Writable())

	g2, err := c2.OpenGroup("/sensors")
	require.NoError(t, err)
	defer g2.Close()
	assert.Equal(t, "/sensors", g2.Path())
	assert.Equal(t, KindGroup, g2.Kind())
}

func TestRootOfNewContainer(t *testing.T) {
	c, path := create(t)
	r, err := c.Root()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), r.ID())
	assert.Equal(t, "/", r.Path())

	g, err := r.CreateGroup("first")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), g.ID())
	require.NoError(t, g.Close())
	require.NoError(t, r.Close())

	c2 := reopen(t, c, path, false)
	r2 := root(t, c2)
	assert.Equal(t, uint64(1), r2.ID())
	g2, err := c2.OpenGroup("/first")
	require.NoError(t, err)
	defer g2.Close()
	assert.Equal(t, uint64(2), g2.ID())
}

func TestOpenInvalidFile(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
	}{
		{"empty file", []byte{}},
		{"random bytes", []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77}},
		{"almost valid signature", []byte{0x89, 'H', 'S', 'T', '\r', '\n', 0x1a, 'X'}},
		{"signature only", []byte{0x89, 'H', 'S', 'T', '\r', '\n', 0x1a, '\n'}},
		{"text file", []byte("This is not a container file")},
		{"binary garbage", bytes.Repeat([]byte{0xFF}, 1024)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.hst")
			require.NoError(t, os.WriteFile(path, tt.content, 0o644))
			_, err := Open(path)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrIO)
		})
	}
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.hst"))
	assert.ErrorIs(t, err, ErrPathNotFound)
}

func TestOpenDirectory(t *testing.T) {
	_, err := Open(t.TempDir())
	assert.Error(t, err)
}

func TestDoubleClose(t *testing.T) {
	c, _ := create(t)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestCloseInvalidatesHandles(t *testing.T) {
	c, _ := create(t)
	r, err := c.Root()
	require.NoError(t, err)
	g, err := r.CreateGroup("a")
	require.NoError(t, err)

	require.NoError(t, c.Close())

	_, err = g.NumLinks()
	assert.ErrorIs(t, err, ErrStaleHandle)
	_, err = r.CreateGroup("b")
	assert.ErrorIs(t, err, ErrStaleHandle)
	_, err = c.OpenGroup("/a")
	assert.ErrorIs(t, err, ErrStaleHandle)
	assert.NoError(t, g.Close())
}

func TestStrictClose(t *testing.T) {
	c, _ := create(t, WithStrictClose())
	r, err := c.Root()
	require.NoError(t, err)

	err = c.Close()
	assert.ErrorIs(t, err, ErrHandlesStillOpen)

	// The container stays usable.
	_, err = r.NumLinks()
	require.NoError(t, err)

	require.NoError(t, r.Close())
	require.NoError(t, c.Close())
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	c, path := create(t)
	c2 := reopen(t, c, path, false)
	r := root(t, c2)

	_, err := r.CreateGroup("x")
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, r.SetAttr("a", int32(1)), ErrIO)
}

func TestInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.hst")
	_, err := Create(path, WithGroupThresholds(4, 4))
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.NotErrorIs(t, err, ErrDimensionMismatch)

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "configure", e.Op)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("groups:\n  max_compact: 5\n  min_dense: 3\n"), 0o644))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	c, _ := create(t, WithConfig(cfg))
	r := root(t, c)
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		g, err := r.CreateGroup(name)
		require.NoError(t, err)
		g.Close()
	}
	state, err := r.StorageState()
	require.NoError(t, err)
	assert.Equal(t, StateDense, state)
}

func TestStatsAndReuse(t *testing.T) {
	c, path := create(t)
	r := root(t, c)

	d, err := r.CreateDataset("big", Int64, simple(t, 4096))
	require.NoError(t, err)
	vals := make([]int64, 4096)
	for i := range vals {
		vals[i] = int64(i)
	}
	require.NoError(t, d.Write(nil, vals))
	require.NoError(t, d.Close())
	require.NoError(t, c.Flush())

	before, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, before.Objects)
	assert.Equal(t, 1, before.OpenHandles)

	require.NoError(t, r.DeleteLink("big"))
	require.NoError(t, c.Flush())
	after, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, after.Objects)
	// The data block is either free for reuse or trimmed off the end.
	assert.True(t, after.FreeBytes > before.FreeBytes || after.FileSize < before.FileSize)

	// Freed blocks are handed out again.
	d, err = r.CreateDataset("again", Int64, simple(t, 4096))
	require.NoError(t, err)
	require.NoError(t, d.Write(nil, vals))
	require.NoError(t, d.Close())
	require.NoError(t, c.Flush())
	again, err := c.Stats()
	require.NoError(t, err)
	assert.Greater(t, again.Alloc.ReusedBytes, after.Alloc.ReusedBytes)

	c2 := reopen(t, c, path, false)
	d2, err := c2.OpenDataset("/again")
	require.NoError(t, err)
	defer d2.Close()
	var got []int64
	require.NoError(t, d2.Read(nil, &got))
	assert.Equal(t, vals, got)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, _ := create(t, WithMetrics(reg))
	r := root(t, c)

	d, err := r.CreateDataset("d", Int32, simple(t, 16), WithChunks(4), WithDeflate(6))
	require.NoError(t, err)
	defer d.Close()
	require.NoError(t, d.Write(nil, make([]int32, 16)))
	require.NoError(t, c.Flush())

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestGetAttr(t *testing.T) {
	c, _ := create(t)
	r := root(t, c)
	require.NoError(t, r.SetAttr("title", "experiment"))

	d, err := r.CreateDataset("data", Float64, simple(t, 3), WithAttribute("units", "m/s"))
	require.NoError(t, err)
	defer d.Close()

	v, err := c.GetAttr("/@title")
	require.NoError(t, err)
	assert.Equal(t, "experiment", v)

	v, err = c.GetAttr("/data@units")
	require.NoError(t, err)
	assert.Equal(t, "m/s", v)

	_, err = c.GetAttr("/data@missing")
	assert.ErrorIs(t, err, ErrPathNotFound)
	_, err = c.GetAttr("/data")
	assert.ErrorIs(t, err, ErrPathNotFound)
}
