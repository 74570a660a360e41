package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	osalerrors "github.com/wippyai/osal/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "osal.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
registry:
  max_sockets: 16
  exclusive_timeout: 500ms
socket:
  backend: nosock
log:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Registry.MaxSockets != 16 {
		t.Errorf("MaxSockets = %d", cfg.Registry.MaxSockets)
	}
	if cfg.Registry.ExclusiveTimeout != 500*time.Millisecond {
		t.Errorf("ExclusiveTimeout = %v", cfg.Registry.ExclusiveTimeout)
	}
	if cfg.Registry.MaxNameLen != 64 {
		t.Errorf("MaxNameLen = %d, want default 64", cfg.Registry.MaxNameLen)
	}
	if cfg.Socket.Backend != BackendNoSock || !cfg.Socket.NonBlocking || cfg.Socket.Backlog != 10 {
		t.Errorf("socket section = %+v", cfg.Socket)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		kind osalerrors.Kind
	}{
		{"bad yaml", "registry: [", osalerrors.KindInvalidArgument},
		{"too many sockets", "registry:\n  max_sockets: 5000\n", osalerrors.KindInvalidArgument},
		{"zero backlog", "socket:\n  backlog: 0\n", osalerrors.KindInvalidArgument},
		{"unknown backend", "socket:\n  backend: winsock\n", osalerrors.KindInvalidArgument},
		{"bad level", "log:\n  level: loud\n", osalerrors.KindInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if osalerrors.KindOf(err) != tt.kind {
				t.Errorf("Load returned %v, want kind %s", err, tt.kind)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file returned %v", err)
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("LoadOrDefault failed: %v", err)
	}
	if cfg != Default() {
		t.Errorf("empty path did not return defaults: %+v", cfg)
	}
}

func TestLogConfig_Logger(t *testing.T) {
	l, err := LogConfig{Level: "warn", Development: true}.Logger()
	if err != nil {
		t.Fatalf("Logger failed: %v", err)
	}
	if l.Core().Enabled(-1) {
		t.Error("debug enabled at warn level")
	}

	if _, err := (LogConfig{Level: "nope"}).Logger(); !errors.Is(err, osalerrors.ErrInvalidArgument) {
		t.Errorf("bad level returned %v", err)
	}
}
