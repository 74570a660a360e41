package poll

import "math/bits"

// FdSet is a bitmap of native handles.
type FdSet struct {
	bits []uint64
}

// NewFdSet returns a set holding fds.
func NewFdSet(fds ...int) *FdSet {
	s := &FdSet{}
	for _, fd := range fds {
		s.Add(fd)
	}
	return s
}

// Add inserts fd. Negative fds are ignored.
func (s *FdSet) Add(fd int) {
	if fd < 0 {
		return
	}
	word := fd / 64
	for len(s.bits) <= word {
		s.bits = append(s.bits, 0)
	}
	s.bits[word] |= 1 << uint(fd%64)
}

// Remove deletes fd.
func (s *FdSet) Remove(fd int) {
	if fd < 0 || fd/64 >= len(s.bits) {
		return
	}
	s.bits[fd/64] &^= 1 << uint(fd%64)
}

// Has reports whether fd is in the set.
func (s *FdSet) Has(fd int) bool {
	if fd < 0 || fd/64 >= len(s.bits) {
		return false
	}
	return s.bits[fd/64]&(1<<uint(fd%64)) != 0
}

// Clear empties the set.
func (s *FdSet) Clear() {
	for i := range s.bits {
		s.bits[i] = 0
	}
}

// Len returns the number of members.
func (s *FdSet) Len() int {
	n := 0
	for _, w := range s.bits {
		n += bits.OnesCount64(w)
	}
	return n
}

// Fds returns the members in ascending order.
func (s *FdSet) Fds() []int {
	out := make([]int, 0, s.Len())
	for i, w := range s.bits {
		for w != 0 {
			b := bits.TrailingZeros64(w)
			out = append(out, i*64+b)
			w &^= 1 << uint(b)
		}
	}
	return out
}
