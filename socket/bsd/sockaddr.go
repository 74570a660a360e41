//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package bsd

import (
	"encoding/binary"

	"golang.org/x/sys/unix"

	"github.com/wippyai/osal/errors"
	"github.com/wippyai/osal/socket"
)

// toSockaddr converts an address to its native form through the
// serialized buffer, so the length check happens at the boundary.
func toSockaddr(addr socket.Addr) (unix.Sockaddr, error) {
	buf, err := addr.Marshal()
	if err != nil {
		return nil, err
	}

	port := int(binary.BigEndian.Uint16(buf.Data[2:4]))
	switch {
	case buf.Domain == socket.DomainInet && buf.Len == socket.InetAddrLen:
		sa := &unix.SockaddrInet4{Port: port}
		copy(sa.Addr[:], buf.Data[4:8])
		return sa, nil
	case buf.Domain == socket.DomainInet6 && buf.Len == socket.Inet6AddrLen:
		sa := &unix.SockaddrInet6{Port: port}
		copy(sa.Addr[:], buf.Data[8:24])
		sa.ZoneId = binary.BigEndian.Uint32(buf.Data[24:28])
		return sa, nil
	}
	return nil, errors.BadAddress(errors.PhaseBackend, "to sockaddr", "unsupported address "+addr.String())
}

// fromSockaddr converts a native address returned by the kernel.
func fromSockaddr(sa unix.Sockaddr) (socket.Addr, error) {
	var buf socket.AddrBuf
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		buf.Domain = socket.DomainInet
		buf.Len = socket.InetAddrLen
		binary.BigEndian.PutUint16(buf.Data[2:4], uint16(sa.Port))
		copy(buf.Data[4:8], sa.Addr[:])
	case *unix.SockaddrInet6:
		buf.Domain = socket.DomainInet6
		buf.Len = socket.Inet6AddrLen
		binary.BigEndian.PutUint16(buf.Data[2:4], uint16(sa.Port))
		copy(buf.Data[8:24], sa.Addr[:])
		binary.BigEndian.PutUint32(buf.Data[24:28], sa.ZoneId)
	default:
		return socket.Addr{}, errors.BadAddress(errors.PhaseBackend, "from sockaddr", "unsupported native address family")
	}
	binary.BigEndian.PutUint16(buf.Data[0:2], uint16(buf.Domain))
	return socket.UnmarshalAddr(buf)
}
