// Package resource provides the object id registry shared by every OS
// resource type.
//
// Each resource type (tasks, queues, streams, ...) has its own Table with a
// fixed number of slots and its own lock. A record is addressed by an ID
// that encodes the type, the slot index and a generation counter; the
// generation is bumped every time a slot is reused, so an id held past the
// record's deletion is rejected instead of silently naming a new record.
//
// # Lifecycle
//
//	reg := resource.NewRegistry(resource.WithLogger(log))
//	reg.Init()
//	defer reg.Shutdown()
//
//	streams, _ := resource.NewTable[Stream](reg, resource.TypeStream, 64)
//
//	tok, err := streams.AllocateNew("")   // table locked, slot pending
//	if err != nil {
//	    return err
//	}
//	tok.Value().Domain = DomainInet
//	id, err := streams.FinalizeNew(tok, openNative(tok.Value()))
//
// # Lock modes
//
// GetByID supports four modes:
//
//	LockNone      validate only, returns a snapshot
//	LockGlobal    hold the table lock until Release (short metadata work)
//	LockRefcount  bump the refcount, drop the lock (anything that blocks)
//	LockExclusive hold the lock once the refcount drains (destruction)
//
// Structural changes (allocate, rename, destroy) on one type are totally
// ordered by the table lock. Blocking I/O runs under LockRefcount, so one
// slow call never stalls operations on other records of the same type,
// and a record cannot be destroyed while a call is using it.
//
// Every token must be released on every path:
//
//	tok, err := streams.GetByID(resource.LockRefcount, id)
//	if err != nil {
//	    return err
//	}
//	defer tok.Release()
//
// # Observers
//
// Register observers to track record lifecycle events. Observers run
// without any table lock held:
//
//	reg.Subscribe(observer)
package resource
