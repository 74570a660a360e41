package socket

import "github.com/wippyai/osal/poll"

// Backend is the native side of the socket subsystem. One implementation
// exists per platform; the Manager works identically on top of any of
// them.
//
// Backends never take registry locks. Calls that may block (Connect, and
// Accept/RecvFrom/Read/Write on non-selectable handles) are made by the
// Manager while it holds only a reference on the record.
type Backend interface {
	// Name identifies the backend in logs and diagnostics.
	Name() string

	// Open creates a native socket.
	Open(domain Domain, typ Type) (Native, error)
	// Close releases the native socket.
	Close(n Native) error
	// Bind binds n to addr; stream sockets also start listening. When
	// listening fails the handle stays bound, and GetInfo reports the
	// address.
	Bind(n Native, typ Type, addr Addr) error
	// Connect connects n to addr, waiting up to timeoutMs for completion
	// when the handle is selectable.
	Connect(n Native, addr Addr, timeoutMs int32) error
	// Accept takes one pending connection from a listening socket.
	Accept(n Native) (Native, Addr, error)
	// RecvFrom reads one datagram and its sender.
	RecvFrom(n Native, buf []byte) (int, Addr, error)
	// SendTo sends one datagram to addr.
	SendTo(n Native, buf []byte, addr Addr) (int, error)
	// Read reads from a connected stream.
	Read(n Native, buf []byte) (int, error)
	// Write writes to a connected stream.
	Write(n Native, buf []byte) (int, error)
	// Shutdown shuts down one or both directions of a connection.
	Shutdown(n Native, mode ShutdownMode) error
	// GetInfo reports native details of an open handle.
	GetInfo(n Native) (BackendInfo, error)

	AddrInit(addr *Addr, domain Domain) error
	AddrToString(addr Addr) (string, error)
	AddrFromString(addr *Addr, s string) error
	AddrGetPort(addr Addr) (uint16, error)
	AddrSetPort(addr *Addr, port uint16) error
}

// Multiplexer waits for native handles to become ready. *poll.Multiplexer
// implements it.
type Multiplexer interface {
	WaitSingle(fd int, flags *poll.Flags, timeoutMs int32) error
	WaitMultiple(read, write *poll.FdSet, timeoutMs int32) error
}
