// Package config loads .trellis.toml from the workspace root.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pelletier/go-toml/v2"
)

// FileName is the config file looked up at the workspace root.
const FileName = ".trellis.toml"

const (
	DefaultDBDir              = ".trellis"
	DefaultDBName             = "index.db"
	DefaultDebounceMS         = 300
	DefaultMaxStorageFailures = 3
	DefaultLogLevel           = "info"
)

// Config holds every setting a workspace can override.
type Config struct {
	DB        string   `toml:"db"`
	Languages []string `toml:"languages"`
	Include   []string `toml:"include"`
	Exclude   []string `toml:"exclude"`

	// ScriptsDir holds <language>.risor extractors; relative to the root.
	ScriptsDir string `toml:"scripts_dir"`
	// ScriptExtensions maps a scripted language to the extensions it handles.
	ScriptExtensions map[string][]string `toml:"script_extensions"`

	DebounceMS         int    `toml:"debounce_ms"`
	Workers            int    `toml:"workers"`
	MaxStorageFailures int    `toml:"max_storage_failures"`
	LogLevel           string `toml:"log_level"`
}

// ConfigError reports an invalid setting. It is returned before any
// indexing work starts.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DebounceMS:         DefaultDebounceMS,
		Workers:            runtime.NumCPU(),
		MaxStorageFailures: DefaultMaxStorageFailures,
		LogLevel:           DefaultLogLevel,
	}
}

// Load reads the config for root. When file is empty the default location
// is tried and a missing file yields Default(). An explicit file must exist.
func Load(root, file string) (*Config, error) {
	explicit := file != ""
	if !explicit {
		file = filepath.Join(root, FileName)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return Default(), nil
		}
		return nil, &ConfigError{Err: fmt.Errorf("reading %s: %w", file, err)}
	}
	return Parse(data)
}

// Parse decodes TOML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, &ConfigError{Err: fmt.Errorf("unknown keys:\n%s", strict.String())}
		}
		var de *toml.DecodeError
		if errors.As(err, &de) {
			row, col := de.Position()
			return nil, &ConfigError{Err: fmt.Errorf("line %d column %d: %w", row, col, err)}
		}
		return nil, &ConfigError{Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var logLevels = []string{"debug", "info", "warn", "error"}

// Validate checks ranges and patterns.
func (c *Config) Validate() error {
	if c.DebounceMS < 0 {
		return &ConfigError{Field: "debounce_ms", Err: fmt.Errorf("must be >= 0, got %d", c.DebounceMS)}
	}
	if c.Workers < 0 {
		return &ConfigError{Field: "workers", Err: fmt.Errorf("must be >= 0, got %d", c.Workers)}
	}
	if c.MaxStorageFailures < 1 {
		return &ConfigError{Field: "max_storage_failures", Err: fmt.Errorf("must be >= 1, got %d", c.MaxStorageFailures)}
	}
	if !validLevel(c.LogLevel) {
		return &ConfigError{Field: "log_level", Err: fmt.Errorf("must be one of %s, got %q", strings.Join(logLevels, "|"), c.LogLevel)}
	}
	for field, patterns := range map[string][]string{"include": c.Include, "exclude": c.Exclude} {
		for _, p := range patterns {
			if !doublestar.ValidatePattern(p) {
				return &ConfigError{Field: field, Err: fmt.Errorf("invalid glob %q", p)}
			}
		}
	}
	for lang, exts := range c.ScriptExtensions {
		for _, ext := range exts {
			if !strings.HasPrefix(ext, ".") {
				return &ConfigError{Field: "script_extensions." + lang, Err: fmt.Errorf("extension %q must start with a dot", ext)}
			}
		}
	}
	return nil
}

func validLevel(l string) bool {
	for _, v := range logLevels {
		if l == v {
			return true
		}
	}
	return false
}

// DBPath returns the index location for root. A relative db setting is
// taken relative to root.
func (c *Config) DBPath(root string) string {
	if c.DB == "" {
		return filepath.Join(root, DefaultDBDir, DefaultDBName)
	}
	if filepath.IsAbs(c.DB) {
		return c.DB
	}
	return filepath.Join(root, c.DB)
}

// ScriptsPath returns the absolute scripts directory, or "" when unset.
func (c *Config) ScriptsPath(root string) string {
	if c.ScriptsDir == "" || filepath.IsAbs(c.ScriptsDir) {
		return c.ScriptsDir
	}
	return filepath.Join(root, c.ScriptsDir)
}

// Debounce returns the watcher quiet window.
func (c *Config) Debounce() time.Duration {
	if c.DebounceMS == 0 {
		return DefaultDebounceMS * time.Millisecond
	}
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// WorkerCount returns the extraction pool size, never less than one.
func (c *Config) WorkerCount() int {
	if c.Workers <= 0 {
		return runtime.NumCPU()
	}
	return c.Workers
}
