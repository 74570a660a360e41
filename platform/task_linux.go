package platform

import "golang.org/x/sys/unix"

// TaskID returns the kernel thread id of the caller. Goroutines migrate
// between threads, so the value identifies the creating thread at the
// moment of the call only.
func TaskID() uint32 {
	return uint32(unix.Gettid())
}
