package resource

import (
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/osal/errors"
)

type slotState uint8

const (
	slotFree slotState = iota
	slotPending
	slotActive
)

type slot[T any] struct {
	rec        Record[T]
	generation uint32
	state      slotState
	closing    bool
}

// Table is the slot table for one resource type. Its mutex is the
// per-type lock: it guards allocation, destruction, renaming and every
// change to a record's refcount.
type Table[T any] struct {
	reg   *Registry
	idle  *sync.Cond
	slots []slot[T]
	mu    sync.Mutex
	last  int
	count int
	typ   Type
}

// NewTable creates the table for typ with room for capacity records and
// registers it with reg.
func NewTable[T any](reg *Registry, typ Type, capacity int) (*Table[T], error) {
	if reg == nil {
		return nil, errors.InvalidPointer(errors.PhaseRegistry, "new table", "registry")
	}
	if typ == TypeUndefined || typ >= typeCount {
		return nil, errors.InvalidArgument(errors.PhaseRegistry, "new table", "unknown resource type "+typ.String())
	}
	if capacity <= 0 || capacity > MaxSlots {
		return nil, errors.New(errors.PhaseRegistry, errors.KindInvalidArgument).
			Op("new table").
			Detail("capacity %d out of range (1..%d)", capacity, MaxSlots).
			Build()
	}

	t := &Table[T]{
		reg:   reg,
		slots: make([]slot[T], capacity),
		last:  capacity - 1,
		typ:   typ,
	}
	t.idle = sync.NewCond(&t.mu)

	if err := reg.register(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Type returns the resource type served by the table.
func (t *Table[T]) Type() Type {
	return t.typ
}

// Capacity returns the number of slots.
func (t *Table[T]) Capacity() int {
	return len(t.slots)
}

// Len returns the number of live records.
func (t *Table[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// AllocateNew reserves a free slot and returns a token holding the table
// lock. The slot stays pending until FinalizeNew; no other structural
// change on this type can happen in between.
func (t *Table[T]) AllocateNew(name string) (*Token[T], error) {
	if !t.reg.Running() {
		return nil, errors.New(errors.PhaseRegistry, errors.KindNotInitialized).
			Op("allocate").
			Detail("registry not running").
			Build()
	}
	if len(name) > t.reg.maxNameLen {
		return nil, errors.New(errors.PhaseRegistry, errors.KindNameTooLong).
			Op("allocate").
			Detail("name %q exceeds %d bytes", name, t.reg.maxNameLen).
			Build()
	}

	t.mu.Lock()

	if name != "" && t.findLocked(name) >= 0 {
		t.mu.Unlock()
		return nil, errors.New(errors.PhaseRegistry, errors.KindNameTaken).
			Op("allocate").
			Detail("%s %q already exists", t.typ, name).
			Build()
	}

	// Round-robin from the last issued slot so a freed slot is the last
	// to be reused.
	idx := -1
	for i := 1; i <= len(t.slots); i++ {
		j := (t.last + i) % len(t.slots)
		if t.slots[j].state == slotFree {
			idx = j
			break
		}
	}
	if idx < 0 {
		t.mu.Unlock()
		return nil, errors.New(errors.PhaseRegistry, errors.KindNoFreeIDs).
			Op("allocate").
			Detail("%s table full (%d slots)", t.typ, len(t.slots)).
			Build()
	}

	s := &t.slots[idx]
	s.state = slotPending
	s.closing = false
	s.rec = Record[T]{
		Name:    name,
		Creator: t.reg.creator(),
	}
	t.last = idx

	return &Token[T]{
		table:      t,
		rec:        &s.rec,
		index:      idx,
		mode:       LockGlobal,
		allocating: true,
	}, nil
}

// FinalizeNew completes an allocation. With a nil status the record is
// published under a fresh id; otherwise the slot is freed and status is
// returned unchanged. The table lock is released either way.
func (t *Table[T]) FinalizeNew(tok *Token[T], status error) (ID, error) {
	if tok == nil || tok.table != t || !tok.allocating || tok.released {
		return 0, errors.InvalidArgument(errors.PhaseRegistry, "finalize", "token is not a pending allocation")
	}

	s := &t.slots[tok.index]
	tok.released = true

	if status != nil {
		s.state = slotFree
		s.rec = Record[T]{}
		t.mu.Unlock()
		return 0, status
	}

	s.generation = s.generation%generationMask + 1
	id := makeID(t.typ, s.generation, tok.index)
	s.rec.ID = id
	s.state = slotActive
	t.count++
	tok.id = id
	ev := Event{Type: EventCreated, ID: id, Name: s.rec.Name}
	events := append(tok.events, ev)
	tok.events = nil
	t.mu.Unlock()

	t.reg.logger.Debug("resource created",
		zap.Stringer("id", id),
		zap.String("name", ev.Name))
	t.reg.notify(events...)
	return id, nil
}

// GetByID validates id and returns a token protecting the record in the
// requested mode. Stale or foreign ids fail with a not-found error.
func (t *Table[T]) GetByID(mode LockMode, id ID) (*Token[T], error) {
	t.mu.Lock()

	s, err := t.lookupLocked(id)
	if err != nil {
		t.mu.Unlock()
		return nil, err
	}

	tok := &Token[T]{
		table: t,
		rec:   &s.rec,
		id:    id,
		index: id.Index(),
		mode:  mode,
	}

	switch mode {
	case LockNone:
		snapshot := s.rec
		tok.rec = &snapshot
		tok.released = true
		t.mu.Unlock()
		return tok, nil

	case LockGlobal:
		return tok, nil

	case LockRefcount:
		if s.closing {
			t.mu.Unlock()
			return nil, errors.IncorrectState(errors.PhaseRegistry, "get by id", id.String()+" is being deleted")
		}
		s.rec.Refcount++
		ev := Event{Type: EventAcquired, ID: id, Name: s.rec.Name, Refcount: s.rec.Refcount}
		t.mu.Unlock()
		t.reg.notify(ev)
		return tok, nil

	case LockExclusive:
		if err := t.waitIdleLocked(s, id); err != nil {
			t.mu.Unlock()
			return nil, err
		}
		return tok, nil
	}

	t.mu.Unlock()
	return nil, errors.InvalidArgument(errors.PhaseRegistry, "get by id", "unknown lock mode "+mode.String())
}

// FindByName returns the id of the live record named name.
func (t *Table[T]) FindByName(name string) (ID, error) {
	if name == "" {
		return 0, errors.InvalidPointer(errors.PhaseRegistry, "find by name", "name")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.findLocked(name)
	if idx < 0 {
		return 0, errors.New(errors.PhaseRegistry, errors.KindNotFound).
			Op("find by name").
			Detail("%s %q not found", t.typ, name).
			Build()
	}
	return t.slots[idx].rec.ID, nil
}

// ForEach calls fn with a snapshot of every live record until fn returns
// false. fn runs without the table lock held.
func (t *Table[T]) ForEach(fn func(Record[T]) bool) {
	t.mu.Lock()
	snapshot := make([]Record[T], 0, t.count)
	for i := range t.slots {
		if t.slots[i].state == slotActive {
			snapshot = append(snapshot, t.slots[i].rec)
		}
	}
	t.mu.Unlock()

	for _, rec := range snapshot {
		if !fn(rec) {
			return
		}
	}
}

func (t *Table[T]) resourceType() Type {
	return t.typ
}

func (t *Table[T]) lookupLocked(id ID) (*slot[T], error) {
	if id == 0 || id.Type() != t.typ || id.Index() >= len(t.slots) {
		return nil, errors.NotFound(errors.PhaseRegistry, "get by id", id)
	}
	s := &t.slots[id.Index()]
	if s.state != slotActive || s.rec.ID != id {
		return nil, errors.NotFound(errors.PhaseRegistry, "get by id", id)
	}
	return s, nil
}

func (t *Table[T]) findLocked(name string) int {
	for i := range t.slots {
		if t.slots[i].state == slotActive && t.slots[i].rec.Name == name {
			return i
		}
	}
	return -1
}

// waitIdleLocked blocks, with the table lock released while waiting,
// until s has no outstanding references. New refcount lookups are refused
// while a wait is in progress.
func (t *Table[T]) waitIdleLocked(s *slot[T], id ID) error {
	if s.closing {
		return errors.New(errors.PhaseRegistry, errors.KindObjectInUse).
			Op("get by id").
			Detail("%s already has an exclusive request pending", id).
			Build()
	}
	if s.rec.Refcount == 0 {
		return nil
	}

	s.closing = true
	timeout := t.reg.exclusiveTimeout
	clk := t.reg.clock
	deadline := clk.Now().Add(timeout)

	for s.rec.Refcount > 0 {
		if timeout > 0 {
			remaining := deadline.Sub(clk.Now())
			if remaining <= 0 {
				s.closing = false
				return errors.New(errors.PhaseRegistry, errors.KindObjectInUse).
					Op("get by id").
					Detail("%s still has %d references", id, s.rec.Refcount).
					Build()
			}
			timer := clk.AfterFunc(remaining, t.wake)
			t.idle.Wait()
			timer.Stop()
		} else {
			t.idle.Wait()
		}
		if s.state != slotActive || s.rec.ID != id {
			return errors.NotFound(errors.PhaseRegistry, "get by id", id)
		}
	}
	s.closing = false
	return nil
}

func (t *Table[T]) wake() {
	t.mu.Lock()
	t.idle.Broadcast()
	t.mu.Unlock()
}

func (t *Table[T]) freeLocked(idx int) {
	s := &t.slots[idx]
	if s.state == slotActive {
		t.count--
	}
	s.state = slotFree
	s.closing = false
	s.rec = Record[T]{}
	t.idle.Broadcast()
}

func (t *Table[T]) shutdown() error {
	t.mu.Lock()

	var busy []ID
	var dropped []any
	var events []Event
	for i := range t.slots {
		s := &t.slots[i]
		if s.state != slotActive {
			continue
		}
		if s.rec.Refcount > 0 {
			busy = append(busy, s.rec.ID)
		}
		dropped = append(dropped, s.rec.Value)
		events = append(events, Event{Type: EventDestroyed, ID: s.rec.ID, Name: s.rec.Name})
		t.freeLocked(i)
	}
	t.mu.Unlock()

	var err error
	for _, v := range dropped {
		if d, ok := v.(Dropper); ok {
			err = multierr.Append(err, d.Drop())
		}
	}
	t.reg.notify(events...)

	if len(busy) > 0 {
		t.reg.logger.Warn("records still referenced at shutdown",
			zap.Stringer("type", t.typ),
			zap.Int("count", len(busy)))
		err = multierr.Append(err, errors.New(errors.PhaseRegistry, errors.KindObjectInUse).
			Op("shutdown").
			Value(busy).
			Detail("%d %s records still referenced", len(busy), t.typ).
			Build())
	}
	return err
}
