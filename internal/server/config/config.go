// Package config loads the server's runtime configuration from
// defaults, an optional YAML file, and MURAL_-prefixed environment
// variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for environment variable overrides, e.g.
// MURAL_ADDR, MURAL_AGENT_COMMAND.
const EnvPrefix = "MURAL_"

// Config holds the server's runtime configuration.
type Config struct {
	Addr         string        `koanf:"addr"`          // listen address
	DataDir      string        `koanf:"data_dir"`      // sqlite db and asset storage
	AgentCommand string        `koanf:"agent_command"` // command line for the image agent process
	TurnTimeout  time.Duration `koanf:"turn_timeout"`  // max duration of one agent turn
	MaxUploadMB  int64         `koanf:"max_upload_mb"` // multipart upload size cap
	LogLevel     string        `koanf:"log_level"`     // debug, info, warn, error
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"addr":          ":8080",
		"data_dir":      defaultDataDir(),
		"agent_command": "",
		"turn_timeout":  5 * time.Minute,
		"max_upload_mb": int64(50),
		"log_level":     "info",
	}
}

// Load builds the configuration. path names an optional YAML file; an
// empty path skips the file layer.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	var c Config
	if err := k.Unmarshal("", &c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}

// Validate checks the configuration and ensures the data directories
// exist.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("max_upload_mb must be positive")
	}
	if err := os.MkdirAll(c.StorageDir(), 0o750); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}
	return nil
}

// DBPath returns the path to the SQLite database file.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "mural.db")
}

// StorageDir returns the directory holding generated and uploaded
// image assets, served under /assets/.
func (c *Config) StorageDir() string {
	return filepath.Join(c.DataDir, "storage")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "mural")
	}
	return filepath.Join(home, ".config", "mural")
}
