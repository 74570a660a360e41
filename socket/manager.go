package socket

import (
	"strconv"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/osal/errors"
	"github.com/wippyai/osal/poll"
	"github.com/wippyai/osal/resource"
)

// DefaultMaxSockets is the socket table capacity used when none is set.
const DefaultMaxSockets = 64

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithMultiplexer sets the readiness multiplexer used for timed waits.
func WithMultiplexer(mux Multiplexer) Option {
	return func(m *Manager) {
		m.mux = mux
	}
}

// WithMaxSockets sets the number of sockets that can be open at once.
func WithMaxSockets(n int) Option {
	return func(m *Manager) {
		m.maxSockets = n
	}
}

// Manager is the generic socket layer. It owns the socket records in the
// registry, enforces the socket state machine, and calls the backend for
// the native work.
type Manager struct {
	table      *resource.Table[Stream]
	reg        *resource.Registry
	backend    Backend
	mux        Multiplexer
	logger     *zap.Logger
	maxSockets int
}

// NewManager creates the socket table in reg and returns a manager using
// backend for native calls.
func NewManager(reg *resource.Registry, backend Backend, opts ...Option) (*Manager, error) {
	if reg == nil {
		return nil, errors.InvalidPointer(errors.PhaseSocket, "new manager", "registry")
	}
	if backend == nil {
		return nil, errors.InvalidPointer(errors.PhaseSocket, "new manager", "backend")
	}

	m := &Manager{
		reg:        reg,
		backend:    backend,
		logger:     Logger(),
		maxSockets: DefaultMaxSockets,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.mux == nil {
		m.mux = poll.New(poll.WithLogger(m.logger))
	}

	table, err := resource.NewTable[Stream](reg, resource.TypeStream, m.maxSockets)
	if err != nil {
		return nil, err
	}
	m.table = table
	return m, nil
}

// Backend returns the backend the manager calls into.
func (m *Manager) Backend() Backend {
	return m.backend
}

// Open creates a socket of the given domain and type. The new socket has
// no state bits set.
func (m *Manager) Open(domain Domain, typ Type) (resource.ID, error) {
	const op = "open"

	if domain != DomainInet && domain != DomainInet6 {
		return 0, errors.NotImplemented(errors.PhaseSocket, op+" "+domain.String())
	}
	if typ != TypeStream && typ != TypeDatagram {
		return 0, errors.NotImplemented(errors.PhaseSocket, op+" "+typ.String())
	}

	tok, err := m.table.AllocateNew("")
	if err != nil {
		return 0, err
	}
	s := tok.Value()
	s.Domain = domain
	s.Type = typ

	native, err := m.backend.Open(domain, typ)
	if err == nil {
		s.Native = native
		s.release = m.backend.Close
	}
	id, err := m.table.FinalizeNew(tok, err)
	if err != nil {
		return 0, err
	}

	m.logger.Debug("socket opened",
		zap.Stringer("id", id),
		zap.Stringer("domain", domain),
		zap.Stringer("type", typ),
		zap.Bool("selectable", native.Selectable))
	return id, nil
}

// Bind binds a fresh socket to addr. Stream sockets start listening. The
// socket is named after its local address.
func (m *Manager) Bind(id resource.ID, addr Addr) error {
	const op = "bind"

	tok, err := m.table.GetByID(resource.LockGlobal, id)
	if err != nil {
		return err
	}
	defer tok.Release()

	rec := tok.Record()
	s := tok.Value()
	if rec.Refcount > 0 || s.State&(StateBound|StateConnected) != 0 {
		return errors.IncorrectState(errors.PhaseSocket, op, id.String()+" is "+s.State.String())
	}
	if addr.Domain() != s.Domain {
		return errors.BadAddress(errors.PhaseSocket, op, "address family "+addr.Domain().String()+" on "+s.Domain.String()+" socket")
	}

	if err := m.backend.Bind(s.Native, s.Type, addr); err != nil {
		// A stream socket can be bound natively and still fail to
		// listen. The address is taken either way, so record it.
		if local, ok := m.boundAddr(s.Native); ok {
			s.State |= StateBound
			m.rename(tok, m.addrName(local))
			m.logger.Warn("socket bound but not listening",
				zap.Stringer("id", id),
				zap.Stringer("addr", local),
				zap.Error(err))
		}
		return err
	}
	s.State |= StateBound

	local := addr
	if bound, ok := m.boundAddr(s.Native); ok {
		local = bound
	}
	m.rename(tok, m.addrName(local))

	m.logger.Debug("socket bound",
		zap.Stringer("id", id),
		zap.Stringer("addr", local))
	return nil
}

// Connect connects a socket to addr, waiting at most timeoutMs for a
// stream connection to complete.
func (m *Manager) Connect(id resource.ID, addr Addr, timeoutMs int32) error {
	const op = "connect"

	tok, err := m.table.GetByID(resource.LockRefcount, id)
	if err != nil {
		return err
	}
	defer tok.Release()

	s := tok.Value()
	state := m.state(tok)
	if s.Type == TypeStream && state&StateConnected != 0 {
		return errors.IncorrectState(errors.PhaseSocket, op, id.String()+" is already connected")
	}
	if addr.Domain() != s.Domain {
		return errors.BadAddress(errors.PhaseSocket, op, "address family "+addr.Domain().String()+" on "+s.Domain.String()+" socket")
	}

	if err := m.backend.Connect(s.Native, addr, timeoutMs); err != nil {
		return err
	}

	tok.Locked(func(r *resource.Record[Stream]) {
		r.Value.State |= StateConnected | StateReadable | StateWritable
	})
	m.logger.Debug("socket connected",
		zap.Stringer("id", id),
		zap.Stringer("peer", addr))
	return nil
}

// Accept waits at most timeoutMs for a connection on a bound stream
// socket and returns the id of a new connected socket with the peer
// address. The accepted socket is named "<peer>-<listener name>".
func (m *Manager) Accept(id resource.ID, timeoutMs int32) (resource.ID, Addr, error) {
	const op = "accept"

	tok, err := m.table.GetByID(resource.LockRefcount, id)
	if err != nil {
		return 0, Addr{}, err
	}
	defer tok.Release()

	s := tok.Value()
	if s.Type != TypeStream {
		return 0, Addr{}, errors.IncorrectType(errors.PhaseSocket, op, id.String()+" is "+s.Type.String())
	}
	state := m.state(tok)
	if state&StateBound == 0 || state&StateConnected != 0 {
		return 0, Addr{}, errors.IncorrectState(errors.PhaseSocket, op, id.String()+" is "+state.String())
	}

	var (
		conn Native
		peer Addr
	)
	for {
		if err := m.waitReady(s.Native, poll.Readable, timeoutMs); err != nil {
			return 0, Addr{}, err
		}
		conn, peer, err = m.backend.Accept(s.Native)
		if err == nil {
			break
		}
		if errors.KindOf(err) != errors.KindQueueEmpty {
			return 0, Addr{}, err
		}
		// Another acceptor took the pending connection.
		if timeoutMs >= 0 {
			return 0, Addr{}, errors.Timeout(errors.PhaseSocket, op)
		}
	}

	var listener string
	tok.Locked(func(r *resource.Record[Stream]) {
		listener = r.Name
	})

	ctok, err := m.table.AllocateNew("")
	if err != nil {
		m.closeNative(conn, "accepted")
		return 0, Addr{}, err
	}
	cs := ctok.Value()
	cs.Domain = s.Domain
	cs.Type = TypeStream
	cs.Native = conn
	cs.release = m.backend.Close
	cs.State = StateConnected | StateReadable | StateWritable

	name := m.addrName(peer)
	if name != "" && listener != "" {
		name += "-" + listener
	}
	m.rename(ctok, name)

	newID, err := m.table.FinalizeNew(ctok, nil)
	if err != nil {
		m.closeNative(conn, "accepted")
		return 0, Addr{}, err
	}

	m.logger.Debug("connection accepted",
		zap.Stringer("listener", id),
		zap.Stringer("id", newID),
		zap.Stringer("peer", peer))
	return newID, peer, nil
}

// RecvFrom receives one datagram into buf, waiting at most timeoutMs.
// With a zero timeout and nothing queued it fails with a queue-empty
// error; a positive timeout that expires fails with a timeout error.
func (m *Manager) RecvFrom(id resource.ID, buf []byte, timeoutMs int32) (int, Addr, error) {
	const op = "recvfrom"

	if len(buf) == 0 {
		return 0, Addr{}, errors.InvalidPointer(errors.PhaseSocket, op, "buffer")
	}

	tok, err := m.table.GetByID(resource.LockRefcount, id)
	if err != nil {
		return 0, Addr{}, err
	}
	defer tok.Release()

	s := tok.Value()
	if s.Type != TypeDatagram {
		return 0, Addr{}, errors.IncorrectType(errors.PhaseSocket, op, id.String()+" is "+s.Type.String())
	}
	if m.state(tok)&StateBound == 0 {
		return 0, Addr{}, errors.IncorrectState(errors.PhaseSocket, op, id.String()+" is not bound")
	}

	if err := m.waitReady(s.Native, poll.Readable, timeoutMs); err != nil {
		if timeoutMs == 0 && errors.KindOf(err) == errors.KindTimeout {
			return 0, Addr{}, errors.QueueEmpty(errors.PhaseSocket, op)
		}
		return 0, Addr{}, err
	}
	return m.backend.RecvFrom(s.Native, buf)
}

// SendTo sends buf as one datagram to addr.
func (m *Manager) SendTo(id resource.ID, buf []byte, addr Addr) (int, error) {
	const op = "sendto"

	if len(buf) == 0 {
		return 0, errors.InvalidPointer(errors.PhaseSocket, op, "buffer")
	}

	tok, err := m.table.GetByID(resource.LockRefcount, id)
	if err != nil {
		return 0, err
	}
	defer tok.Release()

	s := tok.Value()
	if s.Type != TypeDatagram {
		return 0, errors.IncorrectType(errors.PhaseSocket, op, id.String()+" is "+s.Type.String())
	}
	if addr.Domain() != s.Domain {
		return 0, errors.BadAddress(errors.PhaseSocket, op, "address family "+addr.Domain().String()+" on "+s.Domain.String()+" socket")
	}
	return m.backend.SendTo(s.Native, buf, addr)
}

// Read reads from a connected stream socket, waiting at most timeoutMs
// for data. Zero bytes with a nil error means the peer closed.
func (m *Manager) Read(id resource.ID, buf []byte, timeoutMs int32) (int, error) {
	const op = "read"

	if len(buf) == 0 {
		return 0, errors.InvalidPointer(errors.PhaseSocket, op, "buffer")
	}
	tok, s, err := m.connected(op, id)
	if err != nil {
		return 0, err
	}
	defer tok.Release()

	if err := m.waitReady(s.Native, poll.Readable, timeoutMs); err != nil {
		return 0, err
	}
	return m.backend.Read(s.Native, buf)
}

// Write writes to a connected stream socket, waiting at most timeoutMs
// for it to accept data.
func (m *Manager) Write(id resource.ID, buf []byte, timeoutMs int32) (int, error) {
	const op = "write"

	if len(buf) == 0 {
		return 0, errors.InvalidPointer(errors.PhaseSocket, op, "buffer")
	}
	tok, s, err := m.connected(op, id)
	if err != nil {
		return 0, err
	}
	defer tok.Release()

	if err := m.waitReady(s.Native, poll.Writable, timeoutMs); err != nil {
		return 0, err
	}
	return m.backend.Write(s.Native, buf)
}

// Shutdown shuts down one or both directions of a connected stream and
// clears the matching readiness bits.
func (m *Manager) Shutdown(id resource.ID, mode ShutdownMode) error {
	const op = "shutdown"

	var drop State
	switch mode {
	case ShutdownRead:
		drop = StateReadable
	case ShutdownWrite:
		drop = StateWritable
	case ShutdownBoth:
		drop = stateReadiness
	default:
		return errors.InvalidArgument(errors.PhaseSocket, op, "unknown shutdown mode "+strconv.Itoa(int(mode)))
	}

	tok, s, err := m.connected(op, id)
	if err != nil {
		return err
	}
	defer tok.Release()

	if err := m.backend.Shutdown(s.Native, mode); err != nil {
		return err
	}
	tok.Locked(func(r *resource.Record[Stream]) {
		r.Value.State &^= drop
	})
	return nil
}

// Close closes the native socket and frees the record. It waits for
// in-flight operations on the socket to finish; new ones fail while it
// waits.
func (m *Manager) Close(id resource.ID) error {
	tok, err := m.table.GetByID(resource.LockExclusive, id)
	if err != nil {
		return err
	}
	defer tok.Release()

	if err := m.backend.Close(tok.Value().Native); err != nil {
		m.logger.Warn("native close failed",
			zap.Stringer("id", id),
			zap.Error(err))
		return err
	}
	if err := tok.Destroy(); err != nil {
		return err
	}

	m.logger.Debug("socket closed", zap.Stringer("id", id))
	return nil
}

// CloseAll closes every open socket and returns the combined failures.
// Sockets with calls in flight are shut down first so blocked waits
// return and Close does not have to wait them out.
func (m *Manager) CloseAll() error {
	var ids []resource.ID
	var busy []Native
	m.table.ForEach(func(r resource.Record[Stream]) bool {
		ids = append(ids, r.ID)
		if r.Refcount > 0 {
			busy = append(busy, r.Value.Native)
		}
		return true
	})

	for _, n := range busy {
		if err := m.backend.Shutdown(n, ShutdownBoth); err != nil {
			m.logger.Debug("interrupt before close failed",
				zap.Int("fd", n.FD),
				zap.Error(err))
		}
	}

	var err error
	for _, id := range ids {
		if cerr := m.Close(id); cerr != nil && errors.KindOf(cerr) != errors.KindNotFound {
			err = multierr.Append(err, cerr)
		}
	}
	return err
}

// GetInfo returns the properties of a socket.
func (m *Manager) GetInfo(id resource.ID) (Props, error) {
	tok, err := m.table.GetByID(resource.LockGlobal, id)
	if err != nil {
		return Props{}, err
	}
	defer tok.Release()

	rec := tok.Record()
	props := propsOf(*rec)
	if info, err := m.backend.GetInfo(rec.Value.Native); err == nil {
		props.Local = info.Local
	} else if errors.KindOf(err) != errors.KindNotImplemented {
		return Props{}, err
	}
	return props, nil
}

// List returns a snapshot of every open socket. Local addresses are not
// queried.
func (m *Manager) List() []Props {
	var out []Props
	m.table.ForEach(func(r resource.Record[Stream]) bool {
		out = append(out, propsOf(r))
		return true
	})
	return out
}

// GetIDByName returns the id of the socket with the given name.
func (m *Manager) GetIDByName(name string) (resource.ID, error) {
	return m.table.FindByName(name)
}

// AddrInit resets addr to the unspecified address of domain.
func (m *Manager) AddrInit(addr *Addr, domain Domain) error {
	return m.backend.AddrInit(addr, domain)
}

// AddrToString formats the IP part of addr.
func (m *Manager) AddrToString(addr Addr) (string, error) {
	return m.backend.AddrToString(addr)
}

// AddrFromString parses an IP into addr.
func (m *Manager) AddrFromString(addr *Addr, s string) error {
	return m.backend.AddrFromString(addr, s)
}

// AddrGetPort returns the port of addr.
func (m *Manager) AddrGetPort(addr Addr) (uint16, error) {
	return m.backend.AddrGetPort(addr)
}

// AddrSetPort sets the port of addr.
func (m *Manager) AddrSetPort(addr *Addr, port uint16) error {
	return m.backend.AddrSetPort(addr, port)
}

// connected looks up a stream socket that must be connected. The
// returned token holds a reference and must be released.
func (m *Manager) connected(op string, id resource.ID) (*resource.Token[Stream], *Stream, error) {
	tok, err := m.table.GetByID(resource.LockRefcount, id)
	if err != nil {
		return nil, nil, err
	}
	s := tok.Value()
	if s.Type != TypeStream {
		tok.Release()
		return nil, nil, errors.IncorrectType(errors.PhaseSocket, op, id.String()+" is "+s.Type.String())
	}
	if m.state(tok)&StateConnected == 0 {
		tok.Release()
		return nil, nil, errors.IncorrectState(errors.PhaseSocket, op, id.String()+" is not connected")
	}
	return tok, s, nil
}

// waitReady waits for n to become ready. Non-selectable handles are not
// waited on; the native call that follows decides whether to block.
func (m *Manager) waitReady(n Native, want poll.Flags, timeoutMs int32) error {
	if !n.Selectable {
		return nil
	}
	flags := want
	return m.mux.WaitSingle(n.FD, &flags, timeoutMs)
}

func (m *Manager) state(tok *resource.Token[Stream]) State {
	var st State
	tok.Locked(func(r *resource.Record[Stream]) {
		st = r.Value.State
	})
	return st
}

// boundAddr returns the local address of n when the backend reports one
// with a port assigned, which is only the case once n is bound.
func (m *Manager) boundAddr(n Native) (Addr, bool) {
	info, err := m.backend.GetInfo(n)
	if err != nil || !info.Local.IsValid() || info.Local.Port() == 0 {
		return Addr{}, false
	}
	return info.Local, true
}

// addrName renders addr as "ip:port" using the backend's formatting. It
// returns "" when the backend cannot format addresses.
func (m *Manager) addrName(addr Addr) string {
	ip, err := m.backend.AddrToString(addr)
	if err != nil {
		return ""
	}
	port, err := m.backend.AddrGetPort(addr)
	if err != nil {
		return ip
	}
	if addr.Domain() == DomainInet6 {
		ip = "[" + ip + "]"
	}
	return ip + ":" + strconv.Itoa(int(port))
}

// rename sets a diagnostic name on a record held under the table lock.
// Names are truncated to the registry limit; a name already in use is
// skipped since socket names are informational.
func (m *Manager) rename(tok *resource.Token[Stream], name string) {
	if name == "" {
		return
	}
	if limit := m.reg.MaxNameLen(); len(name) > limit {
		name = name[:limit]
	}
	if err := tok.SetName(name); err != nil {
		m.logger.Debug("socket name not set",
			zap.String("name", name),
			zap.Error(err))
	}
}

func (m *Manager) closeNative(n Native, what string) {
	if err := m.backend.Close(n); err != nil {
		m.logger.Warn("native close failed",
			zap.String("socket", what),
			zap.Error(err))
	}
}

func propsOf(r resource.Record[Stream]) Props {
	return Props{
		ID:         r.ID,
		Name:       r.Name,
		Creator:    r.Creator,
		Domain:     r.Value.Domain,
		Type:       r.Value.Type,
		State:      r.Value.State,
		Selectable: r.Value.Native.Selectable,
	}
}
