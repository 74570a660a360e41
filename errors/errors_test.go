package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseSocket,
				Kind:   KindIncorrectObjState,
				Op:     "bind",
				Detail: "already bound",
			},
			contains: []string{"[socket]", "incorrect_obj_state", "in bind", "already bound"},
		},
		{
			name: "minimal error",
			err: &Error{
				Kind: KindTimeout,
			},
			contains: []string{"timeout"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase: PhaseBackend,
				Kind:  KindError,
				Op:    "recvfrom",
				Cause: errors.New("connection reset"),
			},
			contains: []string{"[backend]", "error", "caused by", "connection reset"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Native("sendto", cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
	if errors.Unwrap(err) != cause {
		t.Error("Unwrap did not return cause")
	}
}

func TestError_IsSentinel(t *testing.T) {
	err := Timeout(PhaseSelect, "wait single")

	if !errors.Is(err, ErrTimeout) {
		t.Error("timeout error should match ErrTimeout")
	}
	if errors.Is(err, ErrQueueEmpty) {
		t.Error("timeout error should not match ErrQueueEmpty")
	}

	wrapped := fmt.Errorf("accept: %w", err)
	if !errors.Is(wrapped, ErrTimeout) {
		t.Error("wrapped timeout should still match ErrTimeout")
	}
}

func TestError_IsPhase(t *testing.T) {
	err := NotFound(PhaseRegistry, "get by id", 42)

	if !errors.Is(err, &Error{Phase: PhaseRegistry, Kind: KindNotFound}) {
		t.Error("expected match on phase and kind")
	}
	if errors.Is(err, &Error{Phase: PhaseSocket, Kind: KindNotFound}) {
		t.Error("expected no match on a different phase")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("EADDRINUSE")
	err := New(PhaseBackend, KindError).
		Op("bind").
		Value("0.0.0.0:9000").
		Detail("bind %s", "0.0.0.0:9000").
		Cause(cause).
		Build()

	if err.Op != "bind" {
		t.Errorf("Op = %q", err.Op)
	}
	if err.Value != "0.0.0.0:9000" {
		t.Errorf("Value = %v", err.Value)
	}
	if err.Detail != "bind 0.0.0.0:9000" {
		t.Errorf("Detail = %q", err.Detail)
	}
	if err.Cause != cause {
		t.Error("Cause not set")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, ""},
		{errors.New("plain"), KindError},
		{BadAddress(PhaseSocket, "bind", "family"), KindBadAddress},
		{fmt.Errorf("ctx: %w", QueueEmpty(PhaseSocket, "recvfrom")), KindQueueEmpty},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		err  *Error
		kind Kind
	}{
		{IncorrectState(PhaseSocket, "accept", "not bound"), KindIncorrectObjState},
		{IncorrectType(PhaseSocket, "accept", "datagram"), KindIncorrectObjType},
		{NotImplemented(PhaseBackend, "open"), KindNotImplemented},
		{InvalidPointer(PhaseSocket, "bind", "address"), KindInvalidPointer},
		{InvalidArgument(PhaseConfig, "load", "max sockets"), KindInvalidArgument},
		{Wrap(PhaseRegistry, KindNoFreeIDs, "allocate", nil), KindNoFreeIDs},
	}
	for _, tt := range tests {
		if tt.err.Kind != tt.kind {
			t.Errorf("%v: kind = %q, want %q", tt.err, tt.err.Kind, tt.kind)
		}
		if tt.err.Error() == "" {
			t.Error("empty message")
		}
	}
}
