package config

import (
	"fmt"
	"time"
)

// Validate checks a Config for invalid values.
// It is called after parsing and before the config is used.
func Validate(cfg *Config) error {
	if cfg.Command.MaxRunning < 1 {
		return fmt.Errorf("command.max_running must be at least 1, got %d", cfg.Command.MaxRunning)
	}
	if cfg.Command.MaxOutputBytes < 1 {
		return fmt.Errorf("command.max_output_bytes must be positive, got %d", cfg.Command.MaxOutputBytes)
	}
	if _, err := cfg.ExecTimeout(); err != nil {
		return err
	}
	switch cfg.Log.Level {
	case "", "debug", "info", "warn", "warning", "error", "err":
	default:
		return fmt.Errorf("log.level %q is not a recognized level", cfg.Log.Level)
	}
	return nil
}

// ExecTimeout parses the configured per-command deadline.
func (c *Config) ExecTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Command.ExecTimeout)
	if err != nil {
		return 0, fmt.Errorf("command.exec_timeout %q: %w", c.Command.ExecTimeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("command.exec_timeout must be positive, got %s", d)
	}
	return d, nil
}
