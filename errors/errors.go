package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates which layer produced the error
type Phase string

const (
	PhaseRegistry Phase = "registry" // object id table
	PhaseSocket   Phase = "socket"   // socket manager
	PhaseBackend  Phase = "backend"  // native socket calls
	PhaseSelect   Phase = "select"   // readiness multiplexer
	PhaseConfig   Phase = "config"   // configuration loading
)

// Kind is the status code of a failed call. The set is closed: every
// failure returned by this module carries one of these kinds.
type Kind string

const (
	KindError             Kind = "error"
	KindInvalidPointer    Kind = "invalid_pointer"
	KindIncorrectObjType  Kind = "incorrect_obj_type"
	KindIncorrectObjState Kind = "incorrect_obj_state"
	KindBadAddress        Kind = "bad_address"
	KindTimeout           Kind = "timeout"
	KindQueueEmpty        Kind = "queue_empty"
	KindNotImplemented    Kind = "not_implemented"
	KindNoFreeIDs         Kind = "no_free_ids"
	KindNotFound          Kind = "not_found"
	KindNameTaken         Kind = "name_taken"
	KindNameTooLong       Kind = "name_too_long"
	KindInvalidArgument   Kind = "invalid_argument"
	KindNotInitialized    Kind = "not_initialized"
	KindObjectInUse       Kind = "object_in_use"
)

// Sentinels for errors.Is. They match any error of the same Kind,
// regardless of phase or detail.
var (
	ErrGeneric            = &Error{Kind: KindError}
	ErrInvalidPointer     = &Error{Kind: KindInvalidPointer}
	ErrIncorrectObjType   = &Error{Kind: KindIncorrectObjType}
	ErrIncorrectObjState  = &Error{Kind: KindIncorrectObjState}
	ErrBadAddress         = &Error{Kind: KindBadAddress}
	ErrTimeout            = &Error{Kind: KindTimeout}
	ErrQueueEmpty         = &Error{Kind: KindQueueEmpty}
	ErrNotImplemented     = &Error{Kind: KindNotImplemented}
	ErrNoFreeIDs          = &Error{Kind: KindNoFreeIDs}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrNameTaken          = &Error{Kind: KindNameTaken}
	ErrNameTooLong        = &Error{Kind: KindNameTooLong}
	ErrInvalidArgument    = &Error{Kind: KindInvalidArgument}
	ErrRegistryNotRunning = &Error{Kind: KindNotInitialized}
	ErrObjectInUse        = &Error{Kind: KindObjectInUse}
)

// Error is the structured error type used throughout the module
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Op     string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	if e.Phase != "" {
		b.WriteByte('[')
		b.WriteString(string(e.Phase))
		b.WriteString("] ")
	}
	b.WriteString(string(e.Kind))

	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. A target without a phase
// matches on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Phase == "" || t.Phase == e.Phase
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Op sets the operation name
func (b *Builder) Op(op string) *Builder {
	b.err.Op = op
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// KindOf returns the Kind carried by err. Errors that are not *Error
// report KindError; nil reports the empty kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindError
}

// Convenience constructors for common error patterns

// NotFound creates a not-found error for a stale or unknown id
func NotFound(phase Phase, op string, id any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Op:     op,
		Detail: fmt.Sprintf("id %v is not valid", id),
		Value:  id,
	}
}

// IncorrectState creates an incorrect object state error
func IncorrectState(phase Phase, op, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindIncorrectObjState,
		Op:     op,
		Detail: detail,
	}
}

// IncorrectType creates an incorrect object type error
func IncorrectType(phase Phase, op, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindIncorrectObjType,
		Op:     op,
		Detail: detail,
	}
}

// BadAddress creates a bad address error
func BadAddress(phase Phase, op, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindBadAddress,
		Op:     op,
		Detail: detail,
	}
}

// NotImplemented creates an unsupported operation error
func NotImplemented(phase Phase, op string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotImplemented,
		Op:     op,
		Detail: "not implemented",
	}
}

// InvalidPointer creates an error for a missing required argument
func InvalidPointer(phase Phase, op, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidPointer,
		Op:     op,
		Detail: fmt.Sprintf("%s is nil", what),
	}
}

// Timeout creates a timeout error
func Timeout(phase Phase, op string) *Error {
	return &Error{
		Phase: phase,
		Kind:  KindTimeout,
		Op:    op,
	}
}

// QueueEmpty creates an error for a poll that found nothing to read
func QueueEmpty(phase Phase, op string) *Error {
	return &Error{
		Phase: phase,
		Kind:  KindQueueEmpty,
		Op:    op,
	}
}

// InvalidArgument creates an invalid argument error
func InvalidArgument(phase Phase, op, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidArgument,
		Op:     op,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, op string, cause error) *Error {
	return &Error{
		Phase: phase,
		Kind:  kind,
		Op:    op,
		Cause: cause,
	}
}

// Native wraps a failed native call as a generic, recoverable error.
func Native(op string, cause error) *Error {
	return &Error{
		Phase: PhaseBackend,
		Kind:  KindError,
		Op:    op,
		Cause: cause,
	}
}
