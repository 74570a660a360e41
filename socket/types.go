package socket

import (
	"strings"

	"github.com/wippyai/osal/poll"
	"github.com/wippyai/osal/resource"
)

// Domain is the socket address family.
type Domain uint8

const (
	DomainInvalid Domain = iota
	DomainInet
	DomainInet6
)

func (d Domain) String() string {
	switch d {
	case DomainInet:
		return "inet"
	case DomainInet6:
		return "inet6"
	}
	return "invalid"
}

// Type is the socket type.
type Type uint8

const (
	TypeInvalid Type = iota
	TypeDatagram
	TypeStream
)

func (t Type) String() string {
	switch t {
	case TypeDatagram:
		return "datagram"
	case TypeStream:
		return "stream"
	}
	return "invalid"
}

// State is the socket state bitmask.
type State uint8

const (
	StateBound     State = 0x01
	StateConnected State = 0x02
	StateReadable        = State(poll.Readable)
	StateWritable        = State(poll.Writable)

	stateReadiness = StateReadable | StateWritable
)

func (s State) String() string {
	if s == 0 {
		return "created"
	}
	var parts []string
	if s&StateBound != 0 {
		parts = append(parts, "bound")
	}
	if s&StateConnected != 0 {
		parts = append(parts, "connected")
	}
	if s&StateReadable != 0 {
		parts = append(parts, "readable")
	}
	if s&StateWritable != 0 {
		parts = append(parts, "writable")
	}
	return strings.Join(parts, "|")
}

// ShutdownMode selects which direction of a connection to shut down.
type ShutdownMode uint8

const (
	ShutdownRead ShutdownMode = iota + 1
	ShutdownWrite
	ShutdownBoth
)

// Native is the backend's handle for one open socket. Selectable
// reports whether the handle supports readiness polling; when it does
// not, timeouts cannot be honored and blocking is left to the native
// call.
type Native struct {
	FD         int
	Selectable bool
}

// Stream is the registry payload of a socket record. Domain, Type and
// Native are fixed at creation; State changes only under the table lock.
type Stream struct {
	release func(Native) error
	Native  Native
	Domain  Domain
	Type    Type
	State   State
}

// Drop closes the native handle of a socket whose record is released by
// registry shutdown rather than by Close.
func (s Stream) Drop() error {
	if s.release == nil {
		return nil
	}
	return s.release(s.Native)
}

// Props is the information reported by GetInfo.
type Props struct {
	Local      Addr
	Name       string
	ID         resource.ID
	Creator    uint32
	Domain     Domain
	Type       Type
	State      State
	Selectable bool
}

// BackendInfo is what a backend reports about an open handle.
type BackendInfo struct {
	Local      Addr
	Selectable bool
}
