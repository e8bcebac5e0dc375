package config

import (
	"os"
	"strconv"

	"github.com/xdg/tether/internal/pathutil"
)

// Environment variables consulted when the config file leaves the
// corresponding engine constant unset. They exist so a deployment can
// tune the engine without shipping a config file.
const (
	EnvMaxRunning  = "TETHER_CMD_MAX_RUNNING"
	EnvExecTimeout = "TETHER_CMD_EXEC_TIMEOUT" // seconds
)

// Built-in engine defaults.
const (
	DefaultMaxRunning     = 5
	DefaultExecTimeout    = "30s"
	DefaultMaxOutputBytes = 4 * 1024 * 1024 // 4MB combined stdout+stderr
)

// Default returns a Config with all defaults populated.
// Engine constants honor the TETHER_CMD_* environment variables when set,
// then fall back to the built-in values.
func Default() *Config {
	cfg := &Config{
		Listen: "~/.local/share/tether/agent.sock",
		Command: CommandConfig{
			MaxRunning:     DefaultMaxRunning,
			ExecTimeout:    DefaultExecTimeout,
			MaxOutputBytes: DefaultMaxOutputBytes,
		},
		Auth: AuthConfig{
			CredentialsFile: CredentialsPath(),
		},
		Log: LogConfig{
			File:  "~/.local/state/tether/tether.log",
			Level: "info",
			Audit: "~/.local/state/tether/audit.log",
		},
	}

	if v := os.Getenv(EnvMaxRunning); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Command.MaxRunning = n
		}
	}
	if v := os.Getenv(EnvExecTimeout); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Command.ExecTimeout = strconv.Itoa(n) + "s"
		}
	}

	return cfg
}

// expandPaths expands ~ in all path-valued fields of cfg in place.
func expandPaths(cfg *Config) {
	cfg.Listen = pathutil.ExpandHome(cfg.Listen)
	cfg.Auth.CredentialsFile = pathutil.ExpandHome(cfg.Auth.CredentialsFile)
	cfg.Log.File = pathutil.ExpandHome(cfg.Log.File)
	cfg.Log.Audit = pathutil.ExpandHome(cfg.Log.Audit)
}
