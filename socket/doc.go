// Package socket is the portable socket layer. Sockets are registry
// records addressed by resource.ID; the Manager enforces the state
// machine and delegates native work to a Backend.
//
// # State machine
//
// A socket is created with no state bits. Binding a stream socket makes it
// a listener (Bound); Accept yields new sockets that are Connected.
// Connect marks a socket Connected. Readable and Writable are readiness
// hints updated by Connect, Shutdown and SelectSingle.
//
//	Open ──► (none) ──Bind──► Bound ──Accept──► new socket: Connected
//	              └──Connect──► Connected ──Shutdown──► readiness cleared
//
// Operations check the state under the record lock and return
// errors.ErrIncorrectObjState or errors.ErrIncorrectObjType on mismatch.
//
// # Timeouts
//
// Accept, RecvFrom, Read and Write take a millisecond timeout (negative
// waits forever, zero polls). When the backend reports the handle as
// selectable the Manager waits on the Multiplexer before the native call.
// Non-selectable handles are handed straight to the backend, which may
// block regardless of the timeout.
//
// # Addresses
//
// Addr is an inet or inet6 address with a port. It is serialized into an
// AddrBuf only at the backend boundary. The Addr* methods on Manager go
// through the backend so a stub backend rejects them like every other
// operation.
package socket
