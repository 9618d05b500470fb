package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/robert-malhotra/go-hstore/hstore"
)

func fixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.hst")
	c, err := hstore.Create(path)
	require.NoError(t, err)
	r, err := c.Root()
	require.NoError(t, err)
	require.NoError(t, r.SetAttr("title", "fixture"))

	g, err := r.CreateGroup("results")
	require.NoError(t, err)
	d, err := g.CreateDataset("grid", hstore.Int32, mustSpace(t, 2, 3),
		hstore.WithChunks(1, 3), hstore.WithDeflate(6), hstore.WithAttribute("units", "K"))
	require.NoError(t, err)
	require.NoError(t, d.Write(nil, []int32{1, 2, 3, 4, 5, 6}))
	require.NoError(t, d.Close())
	require.NoError(t, r.CreateSoftLink("latest", "/results/grid"))
	require.NoError(t, g.Close())
	require.NoError(t, r.Close())
	require.NoError(t, c.Close())
	return path
}

func mustSpace(t *testing.T, dims ...uint64) *hstore.Space {
	t.Helper()
	sp, err := hstore.NewSimpleSpace(dims, nil)
	require.NoError(t, err)
	return sp
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := newApp(&out).Run(append([]string{"diagnose"}, args...))
	return out.String(), err
}

func TestLs(t *testing.T) {
	path := fixture(t)
	out, err := run(t, "ls", "--links", path)
	require.NoError(t, err)
	assert.Contains(t, out, "/ (2 links, 1 attrs)")
	assert.Contains(t, out, "  /results/ (1 links, 0 attrs)")
	assert.Contains(t, out, "    /results/grid ")
	assert.Contains(t, out, "latest -> /results/grid")
}

func TestInfo(t *testing.T) {
	path := fixture(t)

	out, err := run(t, "info", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Objects:     3")

	out, err = run(t, "info", "--chunks", path, "/latest")
	require.NoError(t, err)
	assert.Contains(t, out, "Dataset /latest")
	assert.Contains(t, out, "Layout:  chunked")
	assert.Contains(t, out, "Chunks:  [1 3]")
	assert.Contains(t, out, "Filter 0: deflate")
	assert.Contains(t, out, "[1 0] addr")

	out, err = run(t, "info", path, "/results")
	require.NoError(t, err)
	assert.Contains(t, out, "Storage: COMPACT")

	_, err = run(t, "info", path, "/missing")
	assert.ErrorIs(t, err, hstore.ErrPathNotFound)
}

func TestDump(t *testing.T) {
	path := fixture(t)

	out, err := run(t, "dump", path, "/results/grid")
	require.NoError(t, err)
	assert.Contains(t, out, "[0] 1 2 3\n")
	assert.Contains(t, out, "[1] 4 5 6\n")

	out, err = run(t, "dump", "--format", "yaml", path, "/results/grid")
	require.NoError(t, err)
	var y struct {
		Path   string   `yaml:"path"`
		Dims   []uint64 `yaml:"dims"`
		Values []int    `yaml:"values"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &y))
	assert.Equal(t, "/results/grid", y.Path)
	assert.Equal(t, []uint64{2, 3}, y.Dims)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, y.Values)

	out, err = run(t, "dump", "-f", "cbor", path, "/results/grid")
	require.NoError(t, err)
	var cb struct {
		Layout string  `cbor:"layout"`
		Values []int64 `cbor:"values"`
	}
	require.NoError(t, cbor.Unmarshal([]byte(out), &cb))
	assert.Equal(t, "chunked", cb.Layout)
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6}, cb.Values)

	_, err = run(t, "dump", "-f", "xml", path, "/results/grid")
	assert.Error(t, err)
	_, err = run(t, "dump", path)
	assert.Error(t, err)
}

func TestAttrs(t *testing.T) {
	path := fixture(t)
	out, err := run(t, "attrs", path, "/results/grid")
	require.NoError(t, err)
	assert.Contains(t, out, "units: ")
	assert.Contains(t, out, "= K\n")

	out, err = run(t, "attrs", path)
	require.NoError(t, err)
	assert.Contains(t, out, "title: ")
}

func TestFiltersCommand(t *testing.T) {
	out, err := run(t, "filters")
	require.NoError(t, err)
	for _, name := range []string{"deflate", "shuffle", "fletcher32", "lz4", "zstd", "blake3"} {
		assert.Contains(t, out, name)
	}
}

func TestBadLogLevel(t *testing.T) {
	path := fixture(t)
	_, err := run(t, "--log-level", "loud", "ls", path)
	assert.Error(t, err)
}
