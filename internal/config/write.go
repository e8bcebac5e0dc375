package config

import (
	"errors"
	"fmt"
	"os"
)

// defaultConfigTemplate is written on first load so users have a
// commented starting point. Values mirror Default().
const defaultConfigTemplate = `# tether agent configuration
#
# Unix socket the control-channel server listens on.
#listen: ~/.local/share/tether/agent.sock

command:
  # Maximum commands running concurrently; further requests queue FIFO.
  #max_running: 5

  # Fixed wall-clock deadline per command (never refreshed by activity).
  #exec_timeout: 30s

  # Cap on combined captured stdout+stderr per command.
  #max_output_bytes: 4194304

auth:
  # Credential store managed by 'tether user add'.
  #credentials_file: ~/.config/tether/credentials

log:
  #file: ~/.local/state/tether/tether.log
  #level: info
  #audit: ~/.local/state/tether/audit.log
`

// WriteDefaultConfig creates the default configuration file with helpful comments.
// If the config file already exists, it returns nil without overwriting.
// The config directory is created if it doesn't exist.
// The file is written with 0600 permissions (user read/write only).
func WriteDefaultConfig() error {
	path := Path()

	_, err := os.Stat(path)
	if err == nil {
		// File exists, don't overwrite
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat config file: %w", err)
	}

	if err := EnsureDir(); err != nil {
		return err
	}

	if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0o600); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}
