package resource

import (
	"go.uber.org/zap"

	"github.com/wippyai/osal/errors"
)

// Token is a scoped claim on one record, returned by AllocateNew and
// GetByID. Release must run on every exit path; `defer tok.Release()`
// right after a successful lookup is the intended use. Release is
// idempotent.
//
// In LockGlobal and LockExclusive modes, and for pending allocations, the
// table lock is held until Release. In LockRefcount mode only the
// reference is held; record fields that change after creation must be
// accessed through Locked.
type Token[T any] struct {
	table      *Table[T]
	rec        *Record[T]
	events     []Event
	id         ID
	index      int
	mode       LockMode
	allocating bool
	released   bool
}

// ID returns the id of the record. Zero for a pending allocation.
func (tok *Token[T]) ID() ID {
	return tok.id
}

// Index returns the slot index of the record.
func (tok *Token[T]) Index() int {
	return tok.index
}

// Mode returns the lock mode of the token.
func (tok *Token[T]) Mode() LockMode {
	return tok.mode
}

// Record returns the record. For LockNone tokens this is a snapshot.
func (tok *Token[T]) Record() *Record[T] {
	return tok.rec
}

// Value returns a pointer to the record payload.
func (tok *Token[T]) Value() *T {
	return &tok.rec.Value
}

// Locked runs fn on the record with the table lock held. Tokens that
// already hold the lock run fn directly.
func (tok *Token[T]) Locked(fn func(*Record[T])) {
	switch {
	case tok.mode == LockNone:
		fn(tok.rec)
	case tok.released:
		return
	case tok.mode == LockRefcount:
		tok.table.mu.Lock()
		fn(tok.rec)
		tok.table.mu.Unlock()
	default:
		fn(tok.rec)
	}
}

// SetName renames the record. The token must hold the table lock.
func (tok *Token[T]) SetName(name string) error {
	if !tok.holdsLock() {
		return errors.IncorrectState(errors.PhaseRegistry, "rename", "token does not hold the table lock")
	}
	t := tok.table
	if len(name) > t.reg.maxNameLen {
		return errors.New(errors.PhaseRegistry, errors.KindNameTooLong).
			Op("rename").
			Detail("name %q exceeds %d bytes", name, t.reg.maxNameLen).
			Build()
	}
	if name != "" {
		if idx := t.findLocked(name); idx >= 0 && idx != tok.index {
			return errors.New(errors.PhaseRegistry, errors.KindNameTaken).
				Op("rename").
				Detail("%s %q already exists", t.typ, name).
				Build()
		}
	}
	tok.rec.Name = name
	if !tok.allocating {
		tok.events = append(tok.events, Event{Type: EventRenamed, ID: tok.id, Name: name})
	}
	return nil
}

// Destroy frees the record's slot and releases the token. The token must
// hold the table lock and the record must have no outstanding references.
func (tok *Token[T]) Destroy() error {
	if !tok.holdsLock() || tok.allocating {
		return errors.IncorrectState(errors.PhaseRegistry, "destroy", "token does not hold the table lock")
	}
	t := tok.table
	if tok.rec.Refcount > 0 {
		return errors.New(errors.PhaseRegistry, errors.KindObjectInUse).
			Op("destroy").
			Detail("%s has %d references", tok.id, tok.rec.Refcount).
			Build()
	}

	name := tok.rec.Name
	t.freeLocked(tok.index)
	tok.released = true
	events := append(tok.events, Event{Type: EventDestroyed, ID: tok.id, Name: name})
	tok.events = nil
	t.mu.Unlock()

	t.reg.logger.Debug("resource destroyed",
		zap.Stringer("id", tok.id),
		zap.String("name", name))
	t.reg.notify(events...)
	return nil
}

// Release gives back whatever the token holds: the table lock, a
// reference, or a pending allocation (which is cancelled).
func (tok *Token[T]) Release() {
	if tok == nil || tok.released {
		return
	}
	tok.released = true
	t := tok.table

	switch {
	case tok.allocating:
		t.slots[tok.index].state = slotFree
		t.slots[tok.index].rec = Record[T]{}
		tok.events = nil
		t.mu.Unlock()

	case tok.mode == LockGlobal || tok.mode == LockExclusive:
		events := tok.events
		tok.events = nil
		t.mu.Unlock()
		t.reg.notify(events...)

	case tok.mode == LockRefcount:
		var ev *Event
		t.mu.Lock()
		s := &t.slots[tok.index]
		if s.state == slotActive && s.rec.ID == tok.id && s.rec.Refcount > 0 {
			s.rec.Refcount--
			if s.rec.Refcount == 0 {
				t.idle.Broadcast()
			}
			ev = &Event{Type: EventReleased, ID: tok.id, Name: s.rec.Name, Refcount: s.rec.Refcount}
		}
		t.mu.Unlock()
		if ev != nil {
			t.reg.notify(*ev)
		}
	}
}

// RefcountDecr releases a LockRefcount token. It is Release under the
// name used by callers that pair it explicitly with a refcount lookup.
func (tok *Token[T]) RefcountDecr() {
	tok.Release()
}

func (tok *Token[T]) holdsLock() bool {
	if tok.released {
		return false
	}
	return tok.allocating || tok.mode == LockGlobal || tok.mode == LockExclusive
}
