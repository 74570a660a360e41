//go:build !linux

package platform

import "os"

// TaskID returns the process id; per-thread ids are not exposed here.
func TaskID() uint32 {
	return uint32(os.Getpid())
}
