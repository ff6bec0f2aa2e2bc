// Package config holds the simulator run configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/sarchlab/lc5sim/emu"
	"github.com/sarchlab/lc5sim/timing/cache"
)

// CacheConfig enables and sizes one access-profiling cache.
type CacheConfig struct {
	// Enabled turns the probe on. Default: false.
	Enabled bool `json:"enabled" yaml:"enabled"`

	cache.Config `yaml:",inline"`
}

// Config holds the settings of one simulation run.
type Config struct {
	// MemoryWords is the memory size. Programs shorter than this are padded
	// with zeros; 0 sizes memory to the program. Default: 0.
	MemoryWords int `json:"memory_words" yaml:"memory_words"`

	// MaxCycles stops a run that has not halted after this many cycles.
	// 0 means no limit. Default: 0.
	MaxCycles uint64 `json:"max_cycles" yaml:"max_cycles"`

	// StrictOpcodes makes a retiring JALR or data word a fatal error instead
	// of a counted no-op. Default: false.
	StrictOpcodes bool `json:"strict_opcodes" yaml:"strict_opcodes"`

	// Trace prints the machine state before every cycle. Default: true.
	Trace bool `json:"trace" yaml:"trace"`

	// ICache profiles instruction fetch addresses.
	ICache CacheConfig `json:"icache" yaml:"icache"`

	// DCache profiles load/store effective addresses.
	DCache CacheConfig `json:"dcache" yaml:"dcache"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MemoryWords:   0,
		MaxCycles:     0,
		StrictOpcodes: false,
		Trace:         true,
		ICache:        CacheConfig{Config: cache.DefaultL1IConfig()},
		DCache:        CacheConfig{Config: cache.DefaultL1DConfig()},
	}
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// LoadConfig loads a Config from a JSON or YAML file, chosen by extension.
// Fields missing from the file keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if isYAML(path) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// SaveConfig writes the Config to a JSON or YAML file, chosen by extension.
func (c *Config) SaveConfig(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks that all values are usable.
func (c *Config) Validate() error {
	if c.MemoryWords < 0 || c.MemoryWords > emu.MaxMemoryWords {
		return fmt.Errorf("memory_words must be in [0, %d]", emu.MaxMemoryWords)
	}
	if c.ICache.Enabled {
		if err := c.ICache.Validate(); err != nil {
			return fmt.Errorf("icache: %w", err)
		}
	}
	if c.DCache.Enabled {
		if err := c.DCache.Validate(); err != nil {
			return fmt.Errorf("dcache: %w", err)
		}
	}
	return nil
}

// Clone returns a deep copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
