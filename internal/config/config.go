// Package config loads and validates the optional .asynccmd YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the name of the configuration file.
const FileName = ".asynccmd"

// Default values for engine configuration.
const (
	DefaultDrainGrace = 2 * time.Second
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "console"
)

// Config holds the parsed .asynccmd configuration.
// All fields are optional; zero values represent defaults.
type Config struct {
	Version        int             `yaml:"version"`
	Verbose        bool            `yaml:"verbose"`     // verbose diagnostics for every command
	RawConcurrency int             `yaml:"concurrency"` // batch parallelism
	RawDrainGrace  string          `yaml:"drain_grace"` // e.g. "2s"
	ErrorPhrases   []string        `yaml:"error_phrases"`
	Log            LogConfig       `yaml:"log"`
	Commands       []CommandConfig `yaml:"commands"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console or json
}

// CommandConfig declares a named command.
type CommandConfig struct {
	Name         string   `yaml:"name"`
	Path         string   `yaml:"path"` // absolute, or a name resolved via PATH
	Args         []string `yaml:"args"`
	Dir          string   `yaml:"dir"` // relative paths are resolved against the config root
	ErrorPhrases []string `yaml:"error_phrases"`
	Verbose      bool     `yaml:"verbose"`
}

// Concurrency returns the configured batch parallelism or the number of CPUs.
func (c *Config) Concurrency() int {
	if c.RawConcurrency > 0 {
		return c.RawConcurrency
	}
	return runtime.NumCPU()
}

// DrainGrace returns the configured drain grace period or the default.
func (c *Config) DrainGrace() time.Duration {
	if c.RawDrainGrace != "" {
		d, err := time.ParseDuration(c.RawDrainGrace)
		if err == nil && d > 0 {
			return d
		}
	}
	return DefaultDrainGrace
}

// LogLevel returns the configured log level or the default.
func (c *Config) LogLevel() string {
	if c.Log.Level != "" {
		return c.Log.Level
	}
	return DefaultLogLevel
}

// LogFormat returns the configured log format or the default.
func (c *Config) LogFormat() string {
	if c.Log.Format != "" {
		return c.Log.Format
	}
	return DefaultLogFormat
}

// Command returns the command with the given name.
func (c *Config) Command(name string) (CommandConfig, bool) {
	for _, cmd := range c.Commands {
		if cmd.Name == name {
			return cmd, true
		}
	}
	return CommandConfig{}, false
}

// CommandNames returns the names of all configured commands in file order.
func (c *Config) CommandNames() []string {
	names := make([]string, 0, len(c.Commands))
	for _, cmd := range c.Commands {
		names = append(names, cmd.Name)
	}
	return names
}

// PhrasesFor returns the global error phrases followed by the command's own,
// without duplicates.
func (c *Config) PhrasesFor(cmd CommandConfig) []string {
	out := make([]string, 0, len(c.ErrorPhrases)+len(cmd.ErrorPhrases))
	for _, p := range slices.Concat(c.ErrorPhrases, cmd.ErrorPhrases) {
		if !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out
}

// Validate reports every command without a name or path, and duplicate names.
func (c *Config) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(c.Commands))
	for i, cmd := range c.Commands {
		if cmd.Name == "" {
			errs = append(errs, fmt.Errorf("commands[%d]: name is required", i))
		} else if seen[cmd.Name] {
			errs = append(errs, fmt.Errorf("commands[%d]: duplicate name %q", i, cmd.Name))
		}
		seen[cmd.Name] = true
		if cmd.Path == "" {
			errs = append(errs, fmt.Errorf("commands[%d]: path is required", i))
		}
	}
	return errors.Join(errs...)
}

// LoadResult holds the parsed config and the directory it was found in.
type LoadResult struct {
	Config *Config
	Root   string // directory containing .asynccmd; falls back to workspace
}

// Load reads the .asynccmd file, walking upward from workspace until one is
// found. If none exists, a default Config rooted at workspace is returned.
// Relative command directories are resolved against the root.
func Load(workspace string) (*LoadResult, error) {
	workspace, err := filepath.Abs(workspace)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace: %w", err)
	}

	path, err := findConfig(workspace)
	if err != nil {
		return &LoadResult{Config: &Config{}, Root: workspace}, nil
	}

	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return &LoadResult{Config: cfg, Root: filepath.Dir(path)}, nil
}

// LoadFile reads and validates a configuration file at an explicit path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}

	root := filepath.Dir(path)
	for i, cmd := range cfg.Commands {
		if cmd.Dir != "" && !filepath.IsAbs(cmd.Dir) && !hasScheme(cmd.Dir) {
			cfg.Commands[i].Dir = filepath.Join(root, cmd.Dir)
		}
	}
	return cfg, nil
}

// findConfig walks upward from dir looking for a .asynccmd file.
func findConfig(dir string) (string, error) {
	for {
		path := filepath.Join(dir, FileName)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%s not found", FileName)
		}
		dir = parent
	}
}

func hasScheme(ref string) bool {
	return strings.Contains(ref, "://")
}
