// Package bsd is the socket backend for Unix-like systems. It drives BSD
// sockets through golang.org/x/sys/unix.
//
// Sockets are created close-on-exec with SO_REUSEADDR and, unless
// disabled, in non-blocking mode. A handle is reported selectable only
// when non-blocking mode was set successfully; the socket manager then
// waits on the readiness multiplexer before each native call so that
// per-call timeouts hold. Stream sockets start listening when bound.
//
// Native errno values are mapped onto the module's error kinds and kept
// as the cause, so errors.Is(err, unix.ECONNREFUSED) still works.
package bsd
