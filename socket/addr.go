package socket

import (
	"encoding/binary"
	"net"
	"net/netip"
	"strconv"

	"github.com/wippyai/osal/errors"
)

const (
	// MaxAddrLen is the size of the serialized form of the largest
	// supported address (sockaddr_in6).
	MaxAddrLen = 28

	// InetAddrLen and Inet6AddrLen are the serialized lengths of inet and
	// inet6 addresses.
	InetAddrLen  = 16
	Inet6AddrLen = 28
)

// Addr is a socket address: either an IPv4 (inet) or IPv6 (inet6)
// address plus a port. Inet6 addresses may carry a zone naming the
// interface of a scoped address. The zero value is an uninitialized
// address that every operation rejects.
type Addr struct {
	ip     netip.Addr
	port   uint16
	domain Domain
}

// NewInetAddr returns an inet address. ip must be an IPv4 address.
func NewInetAddr(ip netip.Addr, port uint16) (Addr, error) {
	if !ip.Is4() {
		return Addr{}, errors.BadAddress(errors.PhaseSocket, "new inet addr", ip.String()+" is not an IPv4 address")
	}
	return Addr{ip: ip, port: port, domain: DomainInet}, nil
}

// NewInet6Addr returns an inet6 address. IPv4 addresses are mapped. A
// zone on ip is kept.
func NewInet6Addr(ip netip.Addr, port uint16) (Addr, error) {
	if !ip.IsValid() {
		return Addr{}, errors.BadAddress(errors.PhaseSocket, "new inet6 addr", "invalid IP")
	}
	if ip.Is4() {
		ip = netip.AddrFrom16(ip.As16())
	}
	return Addr{ip: ip, port: port, domain: DomainInet6}, nil
}

// AddrFromAddrPort picks the domain from the IP: IPv4 yields inet,
// everything else inet6.
func AddrFromAddrPort(ap netip.AddrPort) (Addr, error) {
	if ap.Addr().Is4() {
		return NewInetAddr(ap.Addr(), ap.Port())
	}
	return NewInet6Addr(ap.Addr(), ap.Port())
}

// Domain returns the address family tag.
func (a Addr) Domain() Domain {
	return a.domain
}

// Zone returns the zone of an inet6 address, or "".
func (a Addr) Zone() string {
	return a.ip.Zone()
}

// IP returns the IP part of the address.
func (a Addr) IP() netip.Addr {
	return a.ip
}

// Port returns the port.
func (a Addr) Port() uint16 {
	return a.port
}

// IsValid reports whether the address has been initialized.
func (a Addr) IsValid() bool {
	return a.domain != DomainInvalid && a.ip.IsValid()
}

// AddrPort returns the address as a netip.AddrPort.
func (a Addr) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(a.ip, a.port)
}

// WithPort returns a copy of a with the port replaced.
func (a Addr) WithPort(port uint16) Addr {
	a.port = port
	return a
}

// WithIP returns a copy of a with the IP replaced. The IP must fit the
// address domain.
func (a Addr) WithIP(ip netip.Addr) (Addr, error) {
	switch a.domain {
	case DomainInet:
		return NewInetAddr(ip, a.port)
	case DomainInet6:
		if ip.Is4() {
			return Addr{}, errors.BadAddress(errors.PhaseSocket, "set ip", ip.String()+" is not an IPv6 address")
		}
		return NewInet6Addr(ip, a.port)
	}
	return Addr{}, errors.BadAddress(errors.PhaseSocket, "set ip", "address not initialized")
}

func (a Addr) String() string {
	if !a.IsValid() {
		return "<invalid>"
	}
	return a.AddrPort().String()
}

// AddrBuf is the serialized form of an Addr handed across the backend
// boundary: a fixed-size buffer, the number of bytes in use, and the
// family tag. The layout follows sockaddr_in / sockaddr_in6 with the
// port and address in network byte order; the first two bytes carry the
// family tag instead of a native AF_ constant.
type AddrBuf struct {
	Data   [MaxAddrLen]byte
	Len    int
	Domain Domain
}

// Marshal serializes the address.
func (a Addr) Marshal() (AddrBuf, error) {
	var b AddrBuf
	if !a.IsValid() {
		return b, errors.BadAddress(errors.PhaseSocket, "marshal addr", "address not initialized")
	}
	b.Domain = a.domain
	binary.BigEndian.PutUint16(b.Data[0:2], uint16(a.domain))
	binary.BigEndian.PutUint16(b.Data[2:4], a.port)
	switch a.domain {
	case DomainInet:
		ip := a.ip.As4()
		copy(b.Data[4:8], ip[:])
		b.Len = InetAddrLen
	case DomainInet6:
		ip := a.ip.As16()
		copy(b.Data[8:24], ip[:])
		scope, err := zoneIndex(a.ip.Zone())
		if err != nil {
			return AddrBuf{}, err
		}
		binary.BigEndian.PutUint32(b.Data[24:28], scope)
		b.Len = Inet6AddrLen
	}
	return b, nil
}

// UnmarshalAddr parses a serialized address, checking that the family
// tag and length agree.
func UnmarshalAddr(b AddrBuf) (Addr, error) {
	const op = "unmarshal addr"

	tag := Domain(binary.BigEndian.Uint16(b.Data[0:2]))
	if tag != b.Domain {
		return Addr{}, errors.BadAddress(errors.PhaseSocket, op, "family tag mismatch")
	}
	port := binary.BigEndian.Uint16(b.Data[2:4])

	switch b.Domain {
	case DomainInet:
		if b.Len != InetAddrLen {
			return Addr{}, errors.BadAddress(errors.PhaseSocket, op, "inet length "+strconv.Itoa(b.Len))
		}
		var ip [4]byte
		copy(ip[:], b.Data[4:8])
		return Addr{ip: netip.AddrFrom4(ip), port: port, domain: DomainInet}, nil
	case DomainInet6:
		if b.Len != Inet6AddrLen {
			return Addr{}, errors.BadAddress(errors.PhaseSocket, op, "inet6 length "+strconv.Itoa(b.Len))
		}
		var raw [16]byte
		copy(raw[:], b.Data[8:24])
		ip := netip.AddrFrom16(raw)
		if scope := binary.BigEndian.Uint32(b.Data[24:28]); scope != 0 {
			ip = ip.WithZone(zoneName(scope))
		}
		return Addr{ip: ip, port: port, domain: DomainInet6}, nil
	}
	return Addr{}, errors.BadAddress(errors.PhaseSocket, op, "unknown family "+b.Domain.String())
}

// zoneIndex resolves a zone to the interface index stored as the scope
// id. Numeric zones are taken as indexes.
func zoneIndex(zone string) (uint32, error) {
	if zone == "" {
		return 0, nil
	}
	if n, err := strconv.ParseUint(zone, 10, 32); err == nil {
		return uint32(n), nil
	}
	ifi, err := net.InterfaceByName(zone)
	if err != nil {
		return 0, errors.New(errors.PhaseSocket, errors.KindBadAddress).
			Op("marshal addr").
			Detail("unknown zone %q", zone).
			Cause(err).
			Build()
	}
	return uint32(ifi.Index), nil
}

// zoneName turns a scope id back into an interface name, falling back to
// the decimal index when the interface is gone.
func zoneName(scope uint32) string {
	if ifi, err := net.InterfaceByIndex(int(scope)); err == nil {
		return ifi.Name
	}
	return strconv.FormatUint(uint64(scope), 10)
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (a Addr) MarshalBinary() ([]byte, error) {
	b, err := a.Marshal()
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b.Data[:b.Len]...), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (a *Addr) UnmarshalBinary(data []byte) error {
	if len(data) < 2 || len(data) > MaxAddrLen {
		return errors.BadAddress(errors.PhaseSocket, "unmarshal addr", "length "+strconv.Itoa(len(data)))
	}
	var b AddrBuf
	b.Len = copy(b.Data[:], data)
	b.Domain = Domain(binary.BigEndian.Uint16(b.Data[0:2]))
	parsed, err := UnmarshalAddr(b)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// AddrCodec implements the address capabilities of a Backend in portable
// Go. Backends with a real network stack embed it.
type AddrCodec struct{}

// AddrInit resets addr to the unspecified address of domain, port 0.
func (AddrCodec) AddrInit(addr *Addr, domain Domain) error {
	const op = "addr init"
	if addr == nil {
		return errors.InvalidPointer(errors.PhaseBackend, op, "addr")
	}
	switch domain {
	case DomainInet:
		*addr = Addr{ip: netip.IPv4Unspecified(), domain: DomainInet}
	case DomainInet6:
		*addr = Addr{ip: netip.IPv6Unspecified(), domain: DomainInet6}
	default:
		return errors.NotImplemented(errors.PhaseBackend, op+" "+domain.String())
	}
	return nil
}

// AddrToString formats the IP part of addr.
func (AddrCodec) AddrToString(addr Addr) (string, error) {
	if !addr.IsValid() {
		return "", errors.BadAddress(errors.PhaseBackend, "addr to string", "address not initialized")
	}
	return addr.ip.String(), nil
}

// AddrFromString parses s into the IP part of addr. The address must
// already be initialized, and s must be of the same family.
func (AddrCodec) AddrFromString(addr *Addr, s string) error {
	const op = "addr from string"
	if addr == nil {
		return errors.InvalidPointer(errors.PhaseBackend, op, "addr")
	}
	if addr.domain == DomainInvalid {
		return errors.BadAddress(errors.PhaseBackend, op, "address not initialized")
	}
	ip, err := netip.ParseAddr(s)
	if err != nil {
		return errors.New(errors.PhaseBackend, errors.KindError).
			Op(op).
			Detail("parse %q", s).
			Cause(err).
			Build()
	}
	updated, err := addr.WithIP(ip)
	if err != nil {
		return err
	}
	*addr = updated
	return nil
}

// AddrGetPort returns the port of addr.
func (AddrCodec) AddrGetPort(addr Addr) (uint16, error) {
	if !addr.IsValid() {
		return 0, errors.BadAddress(errors.PhaseBackend, "addr get port", "address not initialized")
	}
	return addr.port, nil
}

// AddrSetPort sets the port of addr.
func (AddrCodec) AddrSetPort(addr *Addr, port uint16) error {
	const op = "addr set port"
	if addr == nil {
		return errors.InvalidPointer(errors.PhaseBackend, op, "addr")
	}
	if !addr.IsValid() {
		return errors.BadAddress(errors.PhaseBackend, op, "address not initialized")
	}
	addr.port = port
	return nil
}
