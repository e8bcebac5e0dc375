package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil): %v", err)
	}
	if cfg.Command.MaxRunning != 0 {
		t.Errorf("empty input should yield zero value, got MaxRunning=%d", cfg.Command.MaxRunning)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("command:\n  max_runing: 3\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseFull(t *testing.T) {
	data := []byte(`
listen: /tmp/agent.sock
command:
  max_running: 2
  exec_timeout: 10s
  max_output_bytes: 1024
auth:
  credentials_file: /tmp/creds
log:
  level: debug
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Command.MaxRunning != 2 {
		t.Errorf("MaxRunning: got %d, want 2", cfg.Command.MaxRunning)
	}
	d, err := cfg.ExecTimeout()
	if err != nil {
		t.Fatalf("ExecTimeout: %v", err)
	}
	if d != 10*time.Second {
		t.Errorf("ExecTimeout: got %s, want 10s", d)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"zero max_running", func(c *Config) { c.Command.MaxRunning = 0 }, "max_running"},
		{"bad timeout", func(c *Config) { c.Command.ExecTimeout = "soon" }, "exec_timeout"},
		{"negative timeout", func(c *Config) { c.Command.ExecTimeout = "-5s" }, "exec_timeout"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"zero output cap", func(c *Config) { c.Command.MaxOutputBytes = 0 }, "max_output_bytes"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := Default()
			c.mutate(cfg)
			err := Validate(cfg)
			if c.wantErr == "" {
				if err != nil {
					t.Errorf("Validate: unexpected error %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), c.wantErr) {
				t.Errorf("Validate: got %v, want error containing %q", err, c.wantErr)
			}
		})
	}
}

func TestDefaultEnvOverrides(t *testing.T) {
	t.Setenv(EnvMaxRunning, "9")
	t.Setenv(EnvExecTimeout, "7")

	cfg := Default()
	if cfg.Command.MaxRunning != 9 {
		t.Errorf("MaxRunning: got %d, want 9", cfg.Command.MaxRunning)
	}
	if cfg.Command.ExecTimeout != "7s" {
		t.Errorf("ExecTimeout: got %q, want \"7s\"", cfg.Command.ExecTimeout)
	}
}

func TestDefaultIgnoresBadEnv(t *testing.T) {
	t.Setenv(EnvMaxRunning, "lots")
	t.Setenv(EnvExecTimeout, "-3")

	cfg := Default()
	if cfg.Command.MaxRunning != DefaultMaxRunning {
		t.Errorf("MaxRunning: got %d, want default %d", cfg.Command.MaxRunning, DefaultMaxRunning)
	}
	if cfg.Command.ExecTimeout != DefaultExecTimeout {
		t.Errorf("ExecTimeout: got %q, want default %q", cfg.Command.ExecTimeout, DefaultExecTimeout)
	}
}

func TestLoadFromMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Command.MaxRunning != DefaultMaxRunning {
		t.Errorf("MaxRunning: got %d, want default", cfg.Command.MaxRunning)
	}
}

func TestLoadFromPartialFileFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("command:\n  max_running: 3\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Command.MaxRunning != 3 {
		t.Errorf("MaxRunning: got %d, want 3", cfg.Command.MaxRunning)
	}
	if cfg.Command.ExecTimeout != DefaultExecTimeout {
		t.Errorf("ExecTimeout should fall back to default, got %q", cfg.Command.ExecTimeout)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level should fall back to info, got %q", cfg.Log.Level)
	}
}

func TestLoadFromRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("command:\n  exec_timeout: never\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Error("expected error for invalid exec_timeout")
	}
}
