package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8, cfg.Groups.MaxCompact)
	assert.Equal(t, 6, cfg.Groups.MinDense)
	assert.Equal(t, 512, cfg.Chunks.CacheSize)
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
groups:
  max_compact: 5
  min_dense: 3
chunks:
  concurrency: 2
log:
  level: debug
`))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Groups.MaxCompact)
	assert.Equal(t, 3, cfg.Groups.MinDense)
	assert.Equal(t, 2, cfg.Chunks.Concurrency)
	assert.Equal(t, 512, cfg.Chunks.CacheSize, "unset values keep their default")
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"hysteresis", "groups: {max_compact: 4, min_dense: 4}", "groups.min_dense"},
		{"offset", "file: {offset_size: 3}", "file.offset_size"},
		{"level", "log: {level: loud}", "log.level"},
		{"syntax", "groups: [", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunks: {cache_size: 0}\n"), 0o644))
	t.Setenv(EnvVar, path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Chunks.CacheSize)

	t.Setenv(EnvVar, "")
	_, err = Load()
	assert.Error(t, err)
}
