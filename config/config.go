// Package config handles xvm.toml runtime configuration.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the xvm.toml layout.
type Config struct {
	Log    Log    `toml:"log"`
	Engine Engine `toml:"engine"`
	Store  Store  `toml:"store"`
}

// Log configures logging output.
type Log struct {
	Verbosity int  `toml:"verbosity"`
	Trace     bool `toml:"trace"`
}

// Engine configures execution defaults.
type Engine struct {
	// Entry is the default program image to run when none is given on the
	// command line.
	Entry string `toml:"entry"`
}

// Store configures the program store location.
type Store struct {
	Path string `toml:"path"`
}

// Default returns the configuration used when no xvm.toml is present.
func Default() *Config {
	return &Config{
		Log:   Log{Verbosity: 0},
		Store: Store{Path: "xvm-store.db"},
	}
}

// Load parses an xvm.toml file. Missing files are not an error: the
// default configuration is returned instead.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return cfg, nil
}
