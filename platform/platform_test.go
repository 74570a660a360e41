package platform

import (
	"errors"
	"runtime"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/wippyai/osal/config"
	osalerrors "github.com/wippyai/osal/errors"
)

func TestNewBackend_Stub(t *testing.T) {
	cfg := config.Default().Socket
	cfg.Backend = config.BackendNoSock

	b, err := NewBackend(cfg, nil, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewBackend failed: %v", err)
	}
	if b.Name() != "nosock" {
		t.Errorf("backend = %s, want nosock", b.Name())
	}
}

func TestNewBackend_Default(t *testing.T) {
	b, err := NewBackend(config.Default().Socket, nil, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewBackend failed: %v", err)
	}
	switch runtime.GOOS {
	case "linux", "darwin", "freebsd", "netbsd", "openbsd", "dragonfly":
		if b.Name() != "bsd" {
			t.Errorf("backend = %s, want bsd", b.Name())
		}
	default:
		if b.Name() != "nosock" {
			t.Errorf("backend = %s, want nosock", b.Name())
		}
	}
}

func TestNewBackend_Unknown(t *testing.T) {
	cfg := config.Default().Socket
	cfg.Backend = "winsock"

	if _, err := NewBackend(cfg, nil, zaptest.NewLogger(t)); !errors.Is(err, osalerrors.ErrInvalidArgument) {
		t.Errorf("unknown backend returned %v", err)
	}
}

func TestTaskID(t *testing.T) {
	if TaskID() == 0 {
		t.Error("TaskID returned 0")
	}
}
