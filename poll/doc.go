// Package poll implements the readiness multiplexer used for blocking I/O
// with timeouts.
//
// Callers never block inside a native read or accept; they first wait
// here for the handle to become ready, bounded by a millisecond timeout:
//
//	negative  wait forever
//	zero      poll once, never block
//	positive  wait at most that many milliseconds
//
// The deadline is computed once per call from the injected clock. When the
// native wait is interrupted (EINTR) it is retried with the time that
// remains rather than the original timeout, so retries never extend the
// wait.
//
//	m := poll.New(poll.WithClock(clock.New()))
//
//	flags := poll.Readable
//	if err := m.WaitSingle(fd, &flags, 100); errors.Is(err, errors.ErrTimeout) {
//	    // nothing arrived within 100ms
//	}
//
// WaitMultiple does the same over sets of handles and reduces the sets to
// the members that are ready.
package poll
