// Package config handles gobf.toml run configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"gobf/pkg/compiler"
	"gobf/pkg/cpu"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "gobf.toml"

// Config represents a gobf.toml file.
type Config struct {
	Run  Run  `toml:"run"`
	Dump Dump `toml:"dump"`

	// Path is the file the configuration was loaded from (set at load time).
	Path string `toml:"-"`
}

// Run configures the interpreter.
type Run struct {
	Memory   int  `toml:"memory"`
	Start    int  `toml:"start"`
	Optimize int  `toml:"optimize"`
	Verbose  bool `toml:"verbose"`
}

// Dump configures diagnostic output files. Relative paths are resolved
// against the directory holding the configuration file.
type Dump struct {
	Memory       string `toml:"memory"`
	Instructions string `toml:"instructions"`
}

var (
	ErrMemory   = errors.New("memory must be a positive number of cells")
	ErrStart    = errors.New("start pointer must lie inside the tape")
	ErrOptimize = errors.New("optimize must be 0, 1 or 2")
)

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Run: Run{
			Memory:   cpu.DefaultMemory,
			Start:    0,
			Optimize: compiler.OptNone,
		},
	}
}

// Load parses the configuration file at path. Keys missing from the file keep
// their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	if _, err := toml.Decode(string(data), c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Path, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	c.Dump.Memory = c.resolve(c.Dump.Memory)
	c.Dump.Instructions = c.resolve(c.Dump.Instructions)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a gobf.toml file, then loads it.
// Returns the default configuration if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// Validate checks the run settings.
func (c *Config) Validate() error {
	if c.Run.Memory <= 0 {
		return fmt.Errorf("%w: %d", ErrMemory, c.Run.Memory)
	}
	if c.Run.Start < 0 || c.Run.Start >= c.Run.Memory {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrStart, c.Run.Start, c.Run.Memory)
	}
	if c.Run.Optimize < compiler.OptNone || c.Run.Optimize > compiler.OptClear {
		return fmt.Errorf("%w: got %d", ErrOptimize, c.Run.Optimize)
	}
	return nil
}

func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || c.Path == "" {
		return p
	}
	return filepath.Join(filepath.Dir(c.Path), p)
}
