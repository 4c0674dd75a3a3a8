// Package config handles loupe.toml agent configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/loupe/pkg/eval"
)

// Config is the agent configuration loaded from loupe.toml.
type Config struct {
	Eval    Eval    `toml:"eval"`
	Policy  Policy  `toml:"policy"`
	Server  Server  `toml:"server"`
	Archive Archive `toml:"archive"`
	Forward Forward `toml:"forward"`

	// Dir is the directory containing the loupe.toml file (set at load time).
	Dir string `toml:"-"`
}

// Eval bounds expression compilation. The built-in limits are ceilings:
// configuration may lower them, never raise them.
type Eval struct {
	MaxExpressionLength int `toml:"max-expression-length"`
	MaxTreeDepth        int `toml:"max-tree-depth"`

	// MaxDeferredRetries caps how often a deferred expression is recompiled
	// on class-load notifications before being dropped.
	MaxDeferredRetries int `toml:"max-deferred-retries"`
}

// Policy configures member visibility and the method-call safety policy.
type Policy struct {
	// BlockedMethods are method names excluded from overload resolution.
	BlockedMethods []string `toml:"blocked-methods"`

	// HiddenFieldPrefixes hide matching fields from class metadata.
	HiddenFieldPrefixes []string `toml:"hidden-field-prefixes"`

	// DisableMethodCalls blocks debuggee method invocation entirely;
	// expressions containing calls then fail to compile.
	DisableMethodCalls bool `toml:"disable-method-calls"`
}

// Server configures the debug RPC endpoint.
type Server struct {
	Listen string `toml:"listen"`
}

// Archive configures local snapshot persistence.
type Archive struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Forward configures snapshot forwarding to a collector.
type Forward struct {
	Enabled bool   `toml:"enabled"`
	Target  string `toml:"target"`
	Method  string `toml:"method"` // "package.Service/Method"
}

// Load parses a loupe.toml file from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, "loupe.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	c.applyDefaults()
	return &c, nil
}

// Default returns the configuration used when no loupe.toml exists.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Eval.MaxDeferredRetries == 0 {
		c.Eval.MaxDeferredRetries = 10
	}
	if c.Server.Listen == "" {
		c.Server.Listen = ":4590"
	}
	if c.Archive.Path == "" {
		c.Archive.Path = "loupe-snapshots.db"
	}
}

// IsMethodBlocked applies the policy to one method name.
func (c *Config) IsMethodBlocked(name string) bool {
	if c.Policy.DisableMethodCalls {
		return true
	}
	for _, blocked := range c.Policy.BlockedMethods {
		if blocked == name {
			return true
		}
	}
	return false
}

// EvalOptions converts the configured limits to compiler options. Zero values
// fall back to the built-in limits; values above the ceiling are clamped by
// the compiler itself.
func (c *Config) EvalOptions() eval.Options {
	return eval.Options{
		MaxExpressionLength: c.Eval.MaxExpressionLength,
		MaxTreeDepth:        c.Eval.MaxTreeDepth,
	}
}

// ArchivePath returns the snapshot database path, resolved against the
// config directory when relative.
func (c *Config) ArchivePath() string {
	if filepath.IsAbs(c.Archive.Path) || c.Dir == "" {
		return c.Archive.Path
	}
	return filepath.Join(c.Dir, c.Archive.Path)
}
