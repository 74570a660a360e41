// Package osal is an OS abstraction layer exposing a uniform, id-based
// resource API over native operating system facilities.
//
// Every resource (a socket today) is a record in an object id registry and
// is addressed by an opaque resource.ID. Ids carry a type tag and a slot
// generation, so an id kept after its resource is closed is rejected
// instead of reaching whatever reused the slot.
//
// # Architecture Overview
//
//	osal/                Root package wiring one registry to its subsystems
//	├── resource/        Object id registry: allocation, lock modes, refcounts
//	├── poll/            Readiness multiplexer with millisecond timeouts
//	├── socket/          Socket manager, addresses, backend interface
//	│   ├── bsd/         BSD socket backend (Unix-like targets)
//	│   └── nosock/      Stub backend, every call not implemented
//	├── platform/        Build-target backend and task identity selection
//	├── config/          YAML configuration
//	├── errors/          Closed status taxonomy and structured errors
//	└── cmd/osalnet/     Echo server, datagram tool, live socket inspector
//
// # Quick Start
//
//	o, err := osal.New(config.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := o.Init(); err != nil {
//	    log.Fatal(err)
//	}
//	defer o.Shutdown()
//
//	id, err := o.Sockets.Open(socket.DomainInet, socket.TypeDatagram)
//	...
//	n, from, err := o.Sockets.RecvFrom(id, buf, 100)
//	if errors.Is(err, errors.ErrTimeout) {
//	    // nothing within 100ms
//	}
//
// # Thread Safety
//
// Registry, Multiplexer and Manager are safe for concurrent use. Calls on
// the same socket from several goroutines are serialized only as far as
// the registry lock modes require: Close waits for in-flight calls to
// finish, other calls may overlap.
package osal
