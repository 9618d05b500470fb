// Package config loads container settings from a YAML file.
//
// The file is named explicitly, either by path or by the HSTORE_CONFIG
// environment variable. Values missing from the file keep their defaults:
//
//	groups:
//	  max_compact: 8
//	  min_dense: 6
//	chunks:
//	  cache_size: 512
//	  concurrency: 8
//	file:
//	  offset_size: 8
//	  strict_close: false
//	log:
//	  level: info
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable read by Load.
const EnvVar = "HSTORE_CONFIG"

// Config holds container settings.
type Config struct {
	// Groups configures link storage of new groups.
	Groups GroupsConfig `yaml:"groups"`

	// Chunks configures the chunk store.
	Chunks ChunksConfig `yaml:"chunks"`

	// File configures the container file.
	File FileConfig `yaml:"file"`

	// Log configures logging.
	Log LogConfig `yaml:"log"`
}

// GroupsConfig holds the compact/dense thresholds.
type GroupsConfig struct {
	// MaxCompact is the link count above which a group switches to dense
	// storage.
	// Default: 8
	MaxCompact int `yaml:"max_compact"`

	// MinDense is the link count at which a dense group returns to compact
	// storage. Must be below MaxCompact.
	// Default: 6
	MinDense int `yaml:"min_dense"`
}

// ChunksConfig configures the chunk store.
type ChunksConfig struct {
	// CacheSize is the number of decoded chunks kept in memory. 0 disables
	// the cache.
	// Default: 512
	CacheSize int `yaml:"cache_size"`

	// Concurrency bounds the goroutines filtering chunks for one call.
	// Default: GOMAXPROCS
	Concurrency int `yaml:"concurrency"`
}

// FileConfig configures the container file.
type FileConfig struct {
	// OffsetSize is the width in bytes of file addresses in new containers.
	// Values: 2, 4, 8
	// Default: 8
	OffsetSize int `yaml:"offset_size"`

	// StrictClose makes Close fail while handles are open instead of
	// invalidating them.
	// Default: false
	StrictClose bool `yaml:"strict_close"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is the minimum zap level: debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Groups: GroupsConfig{MaxCompact: 8, MinDense: 6},
		Chunks: ChunksConfig{CacheSize: 512, Concurrency: runtime.GOMAXPROCS(0)},
		File:   FileConfig{OffsetSize: 8},
		Log:    LogConfig{Level: "info"},
	}
}

// Load reads the file named by HSTORE_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set", EnvVar)
	}
	return LoadFile(path)
}

// LoadFile reads and validates the configuration at path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error

	if c.Groups.MaxCompact < 1 || c.Groups.MaxCompact > 65535 {
		errs = append(errs, fmt.Errorf("groups.max_compact must be in 1-65535, got %d", c.Groups.MaxCompact))
	}
	if c.Groups.MinDense < 0 || c.Groups.MinDense >= c.Groups.MaxCompact {
		errs = append(errs, fmt.Errorf("groups.min_dense (%d) must be below groups.max_compact (%d)", c.Groups.MinDense, c.Groups.MaxCompact))
	}
	if c.Chunks.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("chunks.cache_size must not be negative"))
	}
	if c.Chunks.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("chunks.concurrency must be at least 1"))
	}
	switch c.File.OffsetSize {
	case 2, 4, 8:
	default:
		errs = append(errs, fmt.Errorf("file.offset_size must be one of 2, 4, 8"))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error"))
	}

	return errors.Join(errs...)
}
