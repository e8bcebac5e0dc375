package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/xdg/tether/internal/tlog"
)

// Load loads the agent configuration from the default config path.
// If the config file doesn't exist, it writes and returns Default().
// If the file exists but cannot be read or parsed, it returns an error.
// Fields the file leaves unset fall back to their defaults, and all
// paths containing ~ are expanded to the actual home directory.
func Load() (*Config, error) {
	return LoadFrom(Path())
}

// LoadFrom loads the agent configuration from an explicit path.
// Unlike Load, a missing file does not seed a default config file.
func LoadFrom(path string) (*Config, error) {
	tlog.Debug("config: loading from %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			tlog.Debug("config: file not found, using defaults")
			if path == Path() {
				if writeErr := WriteDefaultConfig(); writeErr != nil {
					tlog.Warn("config: failed to create default config: %v", writeErr)
				}
			}
			cfg := Default()
			expandPaths(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	applyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	expandPaths(cfg)
	return cfg, nil
}

// applyDefaults fills unset fields of cfg from Default().
// The config file only needs to name what it changes.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Listen == "" {
		cfg.Listen = def.Listen
	}
	if cfg.Command.MaxRunning == 0 {
		cfg.Command.MaxRunning = def.Command.MaxRunning
	}
	if cfg.Command.ExecTimeout == "" {
		cfg.Command.ExecTimeout = def.Command.ExecTimeout
	}
	if cfg.Command.MaxOutputBytes == 0 {
		cfg.Command.MaxOutputBytes = def.Command.MaxOutputBytes
	}
	if cfg.Auth.CredentialsFile == "" {
		cfg.Auth.CredentialsFile = def.Auth.CredentialsFile
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
}
