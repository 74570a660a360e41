// Package errors provides structured error types for the osal module.
//
// Errors are categorized by Phase (which layer failed) and Kind (the status
// code). The set of kinds is closed; every failure returned by the registry,
// the socket manager, the backends and the multiplexer carries exactly one.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseSocket, errors.KindIncorrectObjState).
//		Op("bind").
//		Detail("socket %v is already bound", id).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Timeout(errors.PhaseSelect, "wait single")
//	err := errors.NotFound(errors.PhaseRegistry, "get by id", id)
//
// Callers test for a status with errors.Is against the exported sentinels,
// which match on kind alone:
//
//	if errors.Is(err, errors.ErrTimeout) { ... }
package errors
