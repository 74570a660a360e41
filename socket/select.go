package socket

import (
	"slices"

	"github.com/wippyai/osal/errors"
	"github.com/wippyai/osal/poll"
	"github.com/wippyai/osal/resource"
)

// IDSet is a set of socket ids for SelectMultiple.
type IDSet struct {
	ids map[resource.ID]struct{}
}

// NewIDSet returns a set holding ids.
func NewIDSet(ids ...resource.ID) *IDSet {
	s := &IDSet{ids: make(map[resource.ID]struct{}, len(ids))}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func (s *IDSet) Add(id resource.ID) {
	if s.ids == nil {
		s.ids = make(map[resource.ID]struct{})
	}
	s.ids[id] = struct{}{}
}

func (s *IDSet) Remove(id resource.ID) {
	delete(s.ids, id)
}

func (s *IDSet) Has(id resource.ID) bool {
	_, ok := s.ids[id]
	return ok
}

func (s *IDSet) Clear() {
	clear(s.ids)
}

func (s *IDSet) Len() int {
	return len(s.ids)
}

// IDs returns the members in ascending order.
func (s *IDSet) IDs() []resource.ID {
	out := make([]resource.ID, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// SelectSingle waits at most timeoutMs for the socket to become ready for
// the operations in flags, and leaves the ready subset in flags. The
// socket's readiness bits are updated to match.
func (m *Manager) SelectSingle(id resource.ID, flags *poll.Flags, timeoutMs int32) error {
	const op = "select single"

	if flags == nil {
		return errors.InvalidPointer(errors.PhaseSocket, op, "flags")
	}

	tok, err := m.table.GetByID(resource.LockRefcount, id)
	if err != nil {
		return err
	}
	defer tok.Release()

	n := tok.Value().Native
	if !n.Selectable {
		return errors.NotImplemented(errors.PhaseSocket, op+" on non-selectable "+id.String())
	}

	want := *flags
	err = m.mux.WaitSingle(n.FD, flags, timeoutMs)
	if err != nil && errors.KindOf(err) != errors.KindTimeout {
		return err
	}

	got := State(*flags)
	tok.Locked(func(r *resource.Record[Stream]) {
		r.Value.State = r.Value.State&^State(want) | got
	})
	return err
}

// SelectMultiple waits at most timeoutMs until any socket in read is
// readable or any socket in write is writable. On return the sets hold
// only the ready sockets. Non-selectable sockets are never reported ready.
func (m *Manager) SelectMultiple(read, write *IDSet, timeoutMs int32) error {
	const op = "select multiple"

	if read == nil && write == nil {
		return errors.InvalidPointer(errors.PhaseSocket, op, "id sets")
	}

	var tokens []*resource.Token[Stream]
	defer func() {
		for _, tok := range tokens {
			tok.Release()
		}
	}()

	byFD := make(map[int]resource.ID)
	collect := func(set *IDSet) (*poll.FdSet, error) {
		if set == nil {
			return nil, nil
		}
		fds := poll.NewFdSet()
		for _, id := range set.IDs() {
			tok, err := m.table.GetByID(resource.LockRefcount, id)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			if n := tok.Value().Native; n.Selectable {
				fds.Add(n.FD)
				byFD[n.FD] = id
			}
		}
		return fds, nil
	}

	rfds, err := collect(read)
	if err != nil {
		return err
	}
	wfds, err := collect(write)
	if err != nil {
		return err
	}
	if (rfds == nil || rfds.Len() == 0) && (wfds == nil || wfds.Len() == 0) {
		return errors.InvalidArgument(errors.PhaseSocket, op, "no selectable sockets")
	}

	err = m.mux.WaitMultiple(rfds, wfds, timeoutMs)
	if err != nil && errors.KindOf(err) != errors.KindTimeout {
		return err
	}

	reduce := func(set *IDSet, fds *poll.FdSet) {
		if set == nil {
			return
		}
		set.Clear()
		if fds == nil {
			return
		}
		for _, fd := range fds.Fds() {
			set.Add(byFD[fd])
		}
	}
	reduce(read, rfds)
	reduce(write, wfds)
	return err
}
