package config

import (
	"fmt"
	"os"

	"github.com/xdg/tether/internal/pathutil"
)

// Dir returns the tether configuration directory path.
// By default, this is ~/.config/tether/. If the XDG_CONFIG_HOME
// environment variable is set, it uses $XDG_CONFIG_HOME/tether/ instead.
// The returned path always has a trailing slash.
func Dir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = "~/.config"
	}
	return pathutil.ExpandHome(base) + "/tether/"
}

// EnsureDir creates the tether configuration directory if it
// doesn't exist. It uses 0700 permissions for security (user-only access).
// Returns nil if the directory already exists or was successfully created.
func EnsureDir() error {
	if err := os.MkdirAll(Dir(), 0o700); err != nil {
		return fmt.Errorf("ensure config dir: %w", err)
	}
	return nil
}

// Path returns the full path to the configuration file.
// This is Dir() + "config.yaml".
func Path() string {
	return Dir() + "config.yaml"
}

// CredentialsPath returns the default path to the credential store.
// This is Dir() + "credentials".
func CredentialsPath() string {
	return Dir() + "credentials"
}
