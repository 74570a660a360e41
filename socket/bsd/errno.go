//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package bsd

import (
	stderrors "errors"

	"golang.org/x/sys/unix"

	"github.com/wippyai/osal/errors"
)

// mapErrno converts a failed native call into a module error. The errno
// is kept as the cause.
func mapErrno(op string, err error) error {
	if err == nil {
		return nil
	}

	var errno unix.Errno
	if !stderrors.As(err, &errno) {
		return errors.Native(op, err)
	}

	kind := errors.KindError
	switch errno {
	case unix.EAFNOSUPPORT, unix.EPROTONOSUPPORT, unix.ESOCKTNOSUPPORT, unix.EOPNOTSUPP:
		kind = errors.KindNotImplemented
	case unix.EADDRNOTAVAIL, unix.EDESTADDRREQ:
		kind = errors.KindBadAddress
	case unix.ETIMEDOUT:
		kind = errors.KindTimeout
	case unix.EAGAIN:
		kind = errors.KindQueueEmpty
	case unix.ENOTCONN, unix.EISCONN, unix.EALREADY:
		kind = errors.KindIncorrectObjState
	case unix.EFAULT:
		kind = errors.KindInvalidPointer
	}
	return errors.Wrap(errors.PhaseBackend, kind, op, err)
}
