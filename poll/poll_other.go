//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package poll

import "github.com/wippyai/osal/errors"

func nativePoll([]pollFd, int) (int, error) {
	return 0, errors.NotImplemented(errors.PhaseSelect, "native poll")
}

func retryable(error) bool {
	return false
}
