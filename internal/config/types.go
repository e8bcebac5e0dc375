// Package config provides configuration types for the tether agent.
// These types map to the YAML configuration file.
package config

// Config represents the tether agent configuration.
// It is typically stored at ~/.config/tether/config.yaml.
type Config struct {
	// Listen is the unix socket path the control-channel server binds to.
	Listen string `yaml:"listen,omitempty"`

	Command CommandConfig `yaml:"command,omitempty"`
	Auth    AuthConfig    `yaml:"auth,omitempty"`
	Log     LogConfig     `yaml:"log,omitempty"`
}

// CommandConfig contains settings for the command-execution engine.
type CommandConfig struct {
	// MaxRunning bounds how many commands execute concurrently.
	// Requests beyond the bound queue FIFO until a slot frees.
	MaxRunning int `yaml:"max_running,omitempty"`

	// ExecTimeout is the fixed per-command wall-clock deadline,
	// as a Go duration string (e.g. "30s"). Set at start, never
	// refreshed by output activity.
	ExecTimeout string `yaml:"exec_timeout,omitempty"`

	// MaxOutputBytes caps the combined captured stdout+stderr of one
	// command. A command exceeding it gets a "too big" error reply.
	MaxOutputBytes int64 `yaml:"max_output_bytes,omitempty"`
}

// AuthConfig contains settings for the credential gate.
type AuthConfig struct {
	// CredentialsFile is the path to the credential store
	// (username to salted hash, managed by `tether user`).
	CredentialsFile string `yaml:"credentials_file,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// File is the operational log path. Empty disables file logging.
	File string `yaml:"file,omitempty"`

	// Level is the minimum level: debug, info, warn, or error.
	Level string `yaml:"level,omitempty"`

	// Audit is the audit trail path. Empty disables the audit log.
	Audit string `yaml:"audit,omitempty"`
}
