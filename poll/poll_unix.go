//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package poll

import (
	stderrors "errors"

	"golang.org/x/sys/unix"
)

func nativePoll(fds []pollFd, timeoutMs int) (int, error) {
	pfds := make([]unix.PollFd, len(fds))
	for i, f := range fds {
		pfds[i].Fd = int32(f.fd)
		if f.events&Readable != 0 {
			pfds[i].Events |= unix.POLLIN
		}
		if f.events&Writable != 0 {
			pfds[i].Events |= unix.POLLOUT
		}
	}

	n, err := unix.Poll(pfds, timeoutMs)
	if err != nil {
		return 0, err
	}

	for i := range pfds {
		re := pfds[i].Revents
		var got Flags
		if re&unix.POLLIN != 0 {
			got |= Readable
		}
		if re&unix.POLLOUT != 0 {
			got |= Writable
		}
		// Errors and hangups make the next native call fail immediately,
		// so report them as the readiness that was asked for.
		if re&(unix.POLLERR|unix.POLLHUP) != 0 {
			got |= fds[i].events
		}
		fds[i].revents = got & fds[i].events
		fds[i].invalid = re&unix.POLLNVAL != 0
	}
	return n, nil
}

func retryable(err error) bool {
	return stderrors.Is(err, unix.EINTR) || stderrors.Is(err, unix.EAGAIN)
}
