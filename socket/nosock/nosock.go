// Package nosock is the socket backend for platforms without a network
// stack. Every operation fails with a not-implemented error, so the
// socket manager can be built and linked anywhere.
package nosock

import (
	"github.com/wippyai/osal/errors"
	"github.com/wippyai/osal/socket"
)

var _ socket.Backend = Backend{}

// Backend is the stub backend.
type Backend struct{}

// New returns the stub backend.
func New() Backend {
	return Backend{}
}

func notImplemented(op string) error {
	return errors.NotImplemented(errors.PhaseBackend, op)
}

func (Backend) Name() string {
	return "nosock"
}

func (Backend) Open(socket.Domain, socket.Type) (socket.Native, error) {
	return socket.Native{}, notImplemented("socket")
}

func (Backend) Close(socket.Native) error {
	return notImplemented("close")
}

func (Backend) Bind(socket.Native, socket.Type, socket.Addr) error {
	return notImplemented("bind")
}

func (Backend) Connect(socket.Native, socket.Addr, int32) error {
	return notImplemented("connect")
}

func (Backend) Accept(socket.Native) (socket.Native, socket.Addr, error) {
	return socket.Native{}, socket.Addr{}, notImplemented("accept")
}

func (Backend) RecvFrom(socket.Native, []byte) (int, socket.Addr, error) {
	return 0, socket.Addr{}, notImplemented("recvfrom")
}

func (Backend) SendTo(socket.Native, []byte, socket.Addr) (int, error) {
	return 0, notImplemented("sendto")
}

func (Backend) Read(socket.Native, []byte) (int, error) {
	return 0, notImplemented("read")
}

func (Backend) Write(socket.Native, []byte) (int, error) {
	return 0, notImplemented("write")
}

func (Backend) Shutdown(socket.Native, socket.ShutdownMode) error {
	return notImplemented("shutdown")
}

func (Backend) GetInfo(socket.Native) (socket.BackendInfo, error) {
	return socket.BackendInfo{}, notImplemented("getinfo")
}

func (Backend) AddrInit(*socket.Addr, socket.Domain) error {
	return notImplemented("addr init")
}

func (Backend) AddrToString(socket.Addr) (string, error) {
	return "", notImplemented("addr to string")
}

func (Backend) AddrFromString(*socket.Addr, string) error {
	return notImplemented("addr from string")
}

func (Backend) AddrGetPort(socket.Addr) (uint16, error) {
	return 0, notImplemented("addr get port")
}

func (Backend) AddrSetPort(*socket.Addr, uint16) error {
	return notImplemented("addr set port")
}
