//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package bsd

import (
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/wippyai/osal/errors"
	"github.com/wippyai/osal/poll"
	"github.com/wippyai/osal/socket"
)

// DefaultBacklog is the listen backlog used when none is set.
const DefaultBacklog = 10

var _ socket.Backend = (*Backend)(nil)

// Option configures a Backend.
type Option func(*Backend)

// WithMultiplexer sets the multiplexer used to wait for connects to
// complete.
func WithMultiplexer(mux socket.Multiplexer) Option {
	return func(b *Backend) {
		b.mux = mux
	}
}

// WithLogger sets the backend logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Backend) {
		b.logger = l
	}
}

// WithBacklog sets the listen backlog for stream sockets.
func WithBacklog(n int) Option {
	return func(b *Backend) {
		b.backlog = n
	}
}

// WithNonBlocking controls whether sockets are put in non-blocking mode.
// Only non-blocking sockets are selectable.
func WithNonBlocking(on bool) Option {
	return func(b *Backend) {
		b.nonBlocking = on
	}
}

// WithReuseAddr controls SO_REUSEADDR on new sockets.
func WithReuseAddr(on bool) Option {
	return func(b *Backend) {
		b.reuseAddr = on
	}
}

// Backend implements socket.Backend on BSD sockets.
type Backend struct {
	socket.AddrCodec

	mux         socket.Multiplexer
	logger      *zap.Logger
	backlog     int
	nonBlocking bool
	reuseAddr   bool
}

// New returns a BSD socket backend. By default sockets are non-blocking
// with SO_REUSEADDR set.
func New(opts ...Option) *Backend {
	b := &Backend{
		logger:      socket.Logger(),
		backlog:     DefaultBacklog,
		nonBlocking: true,
		reuseAddr:   true,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.mux == nil {
		b.mux = poll.New(poll.WithLogger(b.logger))
	}
	return b
}

func (b *Backend) Name() string {
	return "bsd"
}

func (b *Backend) Open(domain socket.Domain, typ socket.Type) (socket.Native, error) {
	const op = "socket"

	var family, sotype int
	switch domain {
	case socket.DomainInet:
		family = unix.AF_INET
	case socket.DomainInet6:
		family = unix.AF_INET6
	default:
		return socket.Native{}, errors.NotImplemented(errors.PhaseBackend, op+" "+domain.String())
	}
	switch typ {
	case socket.TypeStream:
		sotype = unix.SOCK_STREAM
	case socket.TypeDatagram:
		sotype = unix.SOCK_DGRAM
	default:
		return socket.Native{}, errors.NotImplemented(errors.PhaseBackend, op+" "+typ.String())
	}

	// Hold the fork lock so a concurrent exec cannot inherit the fd before
	// close-on-exec is set.
	syscall.ForkLock.RLock()
	fd, err := unix.Socket(family, sotype, 0)
	if err == nil {
		unix.CloseOnExec(fd)
	}
	syscall.ForkLock.RUnlock()
	if err != nil {
		return socket.Native{}, mapErrno(op, err)
	}

	if b.reuseAddr {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			b.logger.Warn("SO_REUSEADDR failed",
				zap.Int("fd", fd),
				zap.Error(err))
		}
	}
	return b.configure(fd), nil
}

// configure puts fd in non-blocking mode when enabled. The handle is
// selectable only if that succeeded.
func (b *Backend) configure(fd int) socket.Native {
	n := socket.Native{FD: fd}
	if !b.nonBlocking {
		return n
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		b.logger.Warn("non-blocking mode failed, socket is not selectable",
			zap.Int("fd", fd),
			zap.Error(err))
		return n
	}
	n.Selectable = true
	return n
}

func (b *Backend) Close(n socket.Native) error {
	if err := unix.Close(n.FD); err != nil {
		return mapErrno("close", err)
	}
	return nil
}

// Bind binds and, for streams, listens. A failed listen leaves the
// address bound; there is no native way to undo bind.
func (b *Backend) Bind(n socket.Native, typ socket.Type, addr socket.Addr) error {
	sa, err := toSockaddr(addr)
	if err != nil {
		return err
	}
	if err := unix.Bind(n.FD, sa); err != nil {
		return mapErrno("bind", err)
	}
	if typ == socket.TypeStream {
		if err := unix.Listen(n.FD, b.backlog); err != nil {
			return mapErrno("listen", err)
		}
	}
	return nil
}

// Connect starts the connection and, for selectable handles, waits for it
// to complete and collects the result from SO_ERROR.
func (b *Backend) Connect(n socket.Native, addr socket.Addr, timeoutMs int32) error {
	const op = "connect"

	sa, err := toSockaddr(addr)
	if err != nil {
		return err
	}

	err = unix.Connect(n.FD, sa)
	if err == nil {
		return nil
	}
	if !n.Selectable || (err != unix.EINPROGRESS && err != unix.EINTR) {
		return mapErrno(op, err)
	}

	flags := poll.Writable
	if err := b.mux.WaitSingle(n.FD, &flags, timeoutMs); err != nil {
		return err
	}
	soerr, err := unix.GetsockoptInt(n.FD, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return mapErrno(op, err)
	}
	if soerr != 0 {
		return mapErrno(op, unix.Errno(soerr))
	}
	return nil
}

func (b *Backend) Accept(n socket.Native) (socket.Native, socket.Addr, error) {
	const op = "accept"

	syscall.ForkLock.RLock()
	fd, sa, err := unix.Accept(n.FD)
	if err == nil {
		unix.CloseOnExec(fd)
	}
	syscall.ForkLock.RUnlock()
	if err != nil {
		return socket.Native{}, socket.Addr{}, mapErrno(op, err)
	}

	peer, err := fromSockaddr(sa)
	if err != nil {
		unix.Close(fd)
		return socket.Native{}, socket.Addr{}, err
	}
	return b.configure(fd), peer, nil
}

func (b *Backend) RecvFrom(n socket.Native, buf []byte) (int, socket.Addr, error) {
	const op = "recvfrom"

	nr, sa, err := unix.Recvfrom(n.FD, buf, 0)
	if err != nil {
		return 0, socket.Addr{}, mapErrno(op, err)
	}
	var from socket.Addr
	if sa != nil {
		if from, err = fromSockaddr(sa); err != nil {
			return 0, socket.Addr{}, err
		}
	}
	return nr, from, nil
}

func (b *Backend) SendTo(n socket.Native, buf []byte, addr socket.Addr) (int, error) {
	sa, err := toSockaddr(addr)
	if err != nil {
		return 0, err
	}
	if err := unix.Sendto(n.FD, buf, 0, sa); err != nil {
		return 0, mapErrno("sendto", err)
	}
	return len(buf), nil
}

func (b *Backend) Read(n socket.Native, buf []byte) (int, error) {
	nr, err := unix.Read(n.FD, buf)
	if err != nil {
		return 0, mapErrno("read", err)
	}
	return nr, nil
}

func (b *Backend) Write(n socket.Native, buf []byte) (int, error) {
	nw, err := unix.Write(n.FD, buf)
	if err != nil {
		return 0, mapErrno("write", err)
	}
	return nw, nil
}

func (b *Backend) Shutdown(n socket.Native, mode socket.ShutdownMode) error {
	var how int
	switch mode {
	case socket.ShutdownRead:
		how = unix.SHUT_RD
	case socket.ShutdownWrite:
		how = unix.SHUT_WR
	case socket.ShutdownBoth:
		how = unix.SHUT_RDWR
	default:
		return errors.InvalidArgument(errors.PhaseBackend, "shutdown", "unknown shutdown mode")
	}
	if err := unix.Shutdown(n.FD, how); err != nil {
		return mapErrno("shutdown", err)
	}
	return nil
}

// GetInfo reports the local address the kernel assigned to the handle.
func (b *Backend) GetInfo(n socket.Native) (socket.BackendInfo, error) {
	sa, err := unix.Getsockname(n.FD)
	if err != nil {
		return socket.BackendInfo{}, mapErrno("getsockname", err)
	}
	local, err := fromSockaddr(sa)
	if err != nil {
		return socket.BackendInfo{}, err
	}
	return socket.BackendInfo{Local: local, Selectable: n.Selectable}, nil
}
