package socket

import (
	"net/netip"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/wippyai/osal/errors"
	"github.com/wippyai/osal/poll"
	"github.com/wippyai/osal/resource"
)

// fakeBackend hands out increasing fake fds and records what was asked
// of it.
type fakeBackend struct {
	AddrCodec

	mu         sync.Mutex
	nextFD     int
	selectable bool
	open       map[int]bool
	bound      map[int]Addr
	shutdowns  map[int]ShutdownMode
	openErr    error
	closeErr   error
	listenErr  error

	// acceptErrs are returned by successive Accept calls before they
	// start succeeding.
	acceptErrs  []error
	acceptCalls int

	// acceptGate, when set, makes Accept block until it is opened by
	// openGate or by shutting the listener down. acceptEntered is closed
	// when Accept starts.
	acceptGate    chan struct{}
	acceptEntered chan struct{}
	gateOnce      sync.Once
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		nextFD:     100,
		selectable: true,
		open:       make(map[int]bool),
		bound:      make(map[int]Addr),
		shutdowns:  make(map[int]ShutdownMode),
	}
}

var fakePeer = mustAddr("10.0.0.2:5000")

func mustAddr(s string) Addr {
	a, err := AddrFromAddrPort(netip.MustParseAddrPort(s))
	if err != nil {
		panic(err)
	}
	return a
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) newNative() Native {
	f.mu.Lock()
	defer f.mu.Unlock()
	fd := f.nextFD
	f.nextFD++
	f.open[fd] = true
	return Native{FD: fd, Selectable: f.selectable}
}

func (f *fakeBackend) isOpen(fd int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open[fd]
}

func (f *fakeBackend) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.open)
}

func (f *fakeBackend) Open(Domain, Type) (Native, error) {
	if f.openErr != nil {
		return Native{}, f.openErr
	}
	return f.newNative(), nil
}

func (f *fakeBackend) Close(n Native) error {
	if f.closeErr != nil {
		return f.closeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.open, n.FD)
	return nil
}

func (f *fakeBackend) Bind(n Native, typ Type, addr Addr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bound[n.FD] = addr
	if typ == TypeStream && f.listenErr != nil {
		return f.listenErr
	}
	return nil
}

func (f *fakeBackend) Connect(Native, Addr, int32) error { return nil }

func (f *fakeBackend) openGate() {
	f.gateOnce.Do(func() {
		close(f.acceptGate)
	})
}

func (f *fakeBackend) Accept(n Native) (Native, Addr, error) {
	if f.acceptEntered != nil {
		close(f.acceptEntered)
	}
	if f.acceptGate != nil {
		<-f.acceptGate
	}

	f.mu.Lock()
	f.acceptCalls++
	_, down := f.shutdowns[n.FD]
	var err error
	if len(f.acceptErrs) > 0 {
		err = f.acceptErrs[0]
		f.acceptErrs = f.acceptErrs[1:]
	}
	f.mu.Unlock()

	if down {
		return Native{}, Addr{}, errors.IncorrectState(errors.PhaseBackend, "accept", "listener shut down")
	}
	if err != nil {
		return Native{}, Addr{}, err
	}
	return f.newNative(), fakePeer, nil
}

func (f *fakeBackend) acceptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acceptCalls
}

func (f *fakeBackend) RecvFrom(_ Native, buf []byte) (int, Addr, error) {
	return copy(buf, "hello"), fakePeer, nil
}

func (f *fakeBackend) SendTo(_ Native, buf []byte, _ Addr) (int, error) {
	return len(buf), nil
}

func (f *fakeBackend) Read(_ Native, buf []byte) (int, error) {
	return copy(buf, "data"), nil
}

func (f *fakeBackend) Write(_ Native, buf []byte) (int, error) {
	return len(buf), nil
}

func (f *fakeBackend) Shutdown(n Native, mode ShutdownMode) error {
	f.mu.Lock()
	f.shutdowns[n.FD] = mode
	f.mu.Unlock()
	if f.acceptGate != nil {
		f.openGate()
	}
	return nil
}

func (f *fakeBackend) GetInfo(n Native) (BackendInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return BackendInfo{Local: f.bound[n.FD], Selectable: n.Selectable}, nil
}

// fakeMux reports the readiness configured per fd and never blocks.
type fakeMux struct {
	mu    sync.Mutex
	ready map[int]poll.Flags
	calls int
}

func newFakeMux() *fakeMux {
	return &fakeMux{ready: make(map[int]poll.Flags)}
}

func (f *fakeMux) set(fd int, flags poll.Flags) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ready[fd] = flags
}

func (f *fakeMux) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeMux) WaitSingle(fd int, flags *poll.Flags, _ int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	got := f.ready[fd] & *flags
	*flags = got
	if got == 0 {
		return errors.Timeout(errors.PhaseSelect, "wait single")
	}
	return nil
}

func (f *fakeMux) WaitMultiple(read, write *poll.FdSet, _ int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	reduce := func(set *poll.FdSet, want poll.Flags) int {
		if set == nil {
			return 0
		}
		for _, fd := range set.Fds() {
			if f.ready[fd]&want == 0 {
				set.Remove(fd)
			}
		}
		return set.Len()
	}
	if reduce(read, poll.Readable)+reduce(write, poll.Writable) == 0 {
		return errors.Timeout(errors.PhaseSelect, "wait multiple")
	}
	return nil
}

type fixture struct {
	reg     *resource.Registry
	m       *Manager
	backend *fakeBackend
	mux     *fakeMux
}

func newFixture(t *testing.T, regOpts []resource.Option, opts ...Option) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t)

	reg := resource.NewRegistry(append([]resource.Option{resource.WithLogger(log)}, regOpts...)...)
	f := &fixture{reg: reg, backend: newFakeBackend(), mux: newFakeMux()}

	opts = append([]Option{WithLogger(log), WithMultiplexer(f.mux)}, opts...)
	m, err := NewManager(reg, f.backend, opts...)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if err := reg.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() {
		_ = m.CloseAll()
		_ = reg.Shutdown()
	})
	f.m = m
	return f
}

func (f *fixture) open(t *testing.T, typ Type) resource.ID {
	t.Helper()
	id, err := f.m.Open(DomainInet, typ)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return id
}

func (f *fixture) bound(t *testing.T, typ Type, ap string) resource.ID {
	t.Helper()
	id := f.open(t, typ)
	if err := f.m.Bind(id, mustAddr(ap)); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	return id
}

func (f *fixture) native(t *testing.T, id resource.ID) Native {
	t.Helper()
	tok, err := f.m.table.GetByID(resource.LockNone, id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	return tok.Value().Native
}
