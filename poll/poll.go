package poll

import (
	stderrors "errors"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/wippyai/osal/errors"
)

// Flags is a readiness bitmask. The values line up with the socket
// state bits so the socket layer can merge them directly.
type Flags uint8

const (
	Readable Flags = 0x04
	Writable Flags = 0x08

	readiness = Readable | Writable
)

func (f Flags) String() string {
	switch f & readiness {
	case Readable:
		return "readable"
	case Writable:
		return "writable"
	case readiness:
		return "readable|writable"
	}
	return "none"
}

// pollFd is one entry handed to the native wait primitive.
type pollFd struct {
	fd      int
	events  Flags
	revents Flags
	invalid bool
}

// pollFunc waits on fds for at most timeoutMs milliseconds (negative
// waits forever) and returns the number of entries with revents set.
type pollFunc func(fds []pollFd, timeoutMs int) (int, error)

// Option configures a Multiplexer.
type Option func(*Multiplexer)

// WithClock sets the clock used for deadline computation.
func WithClock(c clock.Clock) Option {
	return func(m *Multiplexer) {
		m.clock = c
	}
}

// WithLogger sets the multiplexer logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Multiplexer) {
		m.logger = l
	}
}

// Multiplexer waits for native handles to become readable or writable.
// It holds no per-call state and is safe for concurrent use.
type Multiplexer struct {
	clock  clock.Clock
	logger *zap.Logger
	sys    pollFunc
}

// New creates a Multiplexer backed by the platform wait primitive.
func New(opts ...Option) *Multiplexer {
	m := &Multiplexer{
		clock:  clock.New(),
		logger: Logger(),
		sys:    nativePoll,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WaitSingle waits until fd satisfies any of the readiness bits in
// *flags, or until timeoutMs elapses. A negative timeout waits forever
// and zero polls without blocking. On return *flags holds the readiness
// actually observed; it is zero on timeout.
func (m *Multiplexer) WaitSingle(fd int, flags *Flags, timeoutMs int32) error {
	const op = "wait single"

	if flags == nil {
		return errors.InvalidPointer(errors.PhaseSelect, op, "flags")
	}
	if *flags&readiness == 0 {
		return errors.InvalidArgument(errors.PhaseSelect, op, "no readiness requested")
	}

	fds := []pollFd{{fd: fd, events: *flags & readiness}}
	n, err := m.wait(op, fds, timeoutMs)
	if err != nil {
		return err
	}
	if fds[0].invalid {
		return errors.New(errors.PhaseSelect, errors.KindError).
			Op(op).
			Detail("fd %d is not open", fd).
			Build()
	}
	if n == 0 {
		*flags = 0
		return errors.Timeout(errors.PhaseSelect, op)
	}
	*flags = fds[0].revents
	return nil
}

// WaitMultiple waits until any fd in read is readable or any fd in write
// is writable. On success both sets are reduced to the ready members; on
// timeout both are emptied. Either set may be nil, not both.
func (m *Multiplexer) WaitMultiple(read, write *FdSet, timeoutMs int32) error {
	const op = "wait multiple"

	if read == nil && write == nil {
		return errors.InvalidPointer(errors.PhaseSelect, op, "fd sets")
	}

	index := make(map[int]int)
	var fds []pollFd
	add := func(set *FdSet, f Flags) {
		if set == nil {
			return
		}
		for _, fd := range set.Fds() {
			if i, ok := index[fd]; ok {
				fds[i].events |= f
				continue
			}
			index[fd] = len(fds)
			fds = append(fds, pollFd{fd: fd, events: f})
		}
	}
	add(read, Readable)
	add(write, Writable)

	if len(fds) == 0 {
		return errors.InvalidArgument(errors.PhaseSelect, op, "fd sets are empty")
	}

	n, err := m.wait(op, fds, timeoutMs)
	if err != nil {
		return err
	}
	for _, p := range fds {
		if p.invalid {
			return errors.New(errors.PhaseSelect, errors.KindError).
				Op(op).
				Detail("fd %d is not open", p.fd).
				Build()
		}
	}

	if read != nil {
		read.Clear()
	}
	if write != nil {
		write.Clear()
	}
	if n == 0 {
		return errors.Timeout(errors.PhaseSelect, op)
	}

	for _, p := range fds {
		if read != nil && p.revents&Readable != 0 {
			read.Add(p.fd)
		}
		if write != nil && p.revents&Writable != 0 {
			write.Add(p.fd)
		}
	}
	return nil
}

// wait runs the native primitive against a deadline fixed once on entry.
// Interrupted waits are retried with whatever time remains.
func (m *Multiplexer) wait(op string, fds []pollFd, timeoutMs int32) (int, error) {
	var deadline time.Time
	if timeoutMs > 0 {
		deadline = m.clock.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	}

	for {
		waitMs := -1
		if timeoutMs == 0 {
			waitMs = 0
		} else if timeoutMs > 0 {
			waitMs = 0
			if remaining := deadline.Sub(m.clock.Now()); remaining > 0 {
				waitMs = int((remaining + time.Millisecond - 1) / time.Millisecond)
			}
		}

		n, err := m.sys(fds, waitMs)
		if err == nil {
			return n, nil
		}
		if retryable(err) {
			m.logger.Debug("native wait interrupted, retrying",
				zap.String("op", op),
				zap.Int("wait_ms", waitMs),
				zap.Error(err))
			continue
		}

		var e *errors.Error
		if stderrors.As(err, &e) {
			return 0, e
		}
		return 0, errors.Wrap(errors.PhaseSelect, errors.KindError, op, err)
	}
}
