package resource

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	osalerrors "github.com/wippyai/osal/errors"
)

type testValue struct {
	label string
}

func newTestTable(t *testing.T, capacity int, opts ...Option) (*Registry, *Table[testValue]) {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	reg := NewRegistry(opts...)
	tbl, err := NewTable[testValue](reg, TypeStream, capacity)
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}
	if err := reg.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { _ = reg.Shutdown() })
	return reg, tbl
}

func create(t *testing.T, tbl *Table[testValue], name, label string) ID {
	t.Helper()
	tok, err := tbl.AllocateNew(name)
	if err != nil {
		t.Fatalf("AllocateNew failed: %v", err)
	}
	tok.Value().label = label
	id, err := tbl.FinalizeNew(tok, nil)
	if err != nil {
		t.Fatalf("FinalizeNew failed: %v", err)
	}
	return id
}

func destroy(t *testing.T, tbl *Table[testValue], id ID) {
	t.Helper()
	tok, err := tbl.GetByID(LockExclusive, id)
	if err != nil {
		t.Fatalf("GetByID exclusive failed: %v", err)
	}
	if err := tok.Destroy(); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
}

func TestID_Encoding(t *testing.T) {
	id := makeID(TypeStream, 7, 42)

	if id.Type() != TypeStream {
		t.Errorf("Type() = %v, want stream", id.Type())
	}
	if id.Index() != 42 {
		t.Errorf("Index() = %d, want 42", id.Index())
	}
	if id.generation() != 7 {
		t.Errorf("generation() = %d, want 7", id.generation())
	}
	if id.String() != "stream:42.7" {
		t.Errorf("String() = %q", id.String())
	}
	if !id.IsValid() {
		t.Error("non-zero id should be valid")
	}
	if ID(0).IsValid() {
		t.Error("id 0 must be invalid")
	}
}

func TestTable_AllocateAndGet(t *testing.T) {
	_, tbl := newTestTable(t, 4)

	id := create(t, tbl, "alpha", "first")
	if id == 0 {
		t.Fatal("expected non-zero id")
	}
	if id.Type() != TypeStream {
		t.Errorf("id type = %v", id.Type())
	}

	tok, err := tbl.GetByID(LockGlobal, id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	defer tok.Release()

	if tok.Record().Name != "alpha" {
		t.Errorf("name = %q", tok.Record().Name)
	}
	if tok.Value().label != "first" {
		t.Errorf("label = %q", tok.Value().label)
	}
	if tok.ID() != id {
		t.Errorf("token id = %v, want %v", tok.ID(), id)
	}
}

func TestTable_FinalizeFailureFreesSlot(t *testing.T) {
	_, tbl := newTestTable(t, 1)

	tok, err := tbl.AllocateNew("")
	if err != nil {
		t.Fatalf("AllocateNew failed: %v", err)
	}
	status := errors.New("native open failed")
	id, err := tbl.FinalizeNew(tok, status)
	if err != status {
		t.Fatalf("FinalizeNew returned %v, want original status", err)
	}
	if id != 0 {
		t.Errorf("failed finalize returned id %v", id)
	}
	if tbl.Len() != 0 {
		t.Errorf("Len() = %d after failed finalize", tbl.Len())
	}

	// The only slot must be available again.
	create(t, tbl, "", "")
}

func TestTable_ReleaseCancelsAllocation(t *testing.T) {
	_, tbl := newTestTable(t, 1)

	tok, err := tbl.AllocateNew("pending")
	if err != nil {
		t.Fatalf("AllocateNew failed: %v", err)
	}
	tok.Release()

	if _, err := tbl.FindByName("pending"); !errors.Is(err, osalerrors.ErrNotFound) {
		t.Errorf("cancelled allocation visible by name: %v", err)
	}
	create(t, tbl, "pending", "")
}

func TestTable_NoFreeIDs(t *testing.T) {
	_, tbl := newTestTable(t, 2)

	create(t, tbl, "", "")
	create(t, tbl, "", "")

	_, err := tbl.AllocateNew("")
	if !errors.Is(err, osalerrors.ErrNoFreeIDs) {
		t.Fatalf("expected NoFreeIDs, got %v", err)
	}
}

func TestTable_Names(t *testing.T) {
	_, tbl := newTestTable(t, 4, WithMaxNameLen(8))

	id := create(t, tbl, "dup", "")

	if _, err := tbl.AllocateNew("dup"); !errors.Is(err, osalerrors.ErrNameTaken) {
		t.Errorf("expected NameTaken, got %v", err)
	}
	if _, err := tbl.AllocateNew("much-too-long"); !errors.Is(err, osalerrors.ErrNameTooLong) {
		t.Errorf("expected NameTooLong, got %v", err)
	}

	found, err := tbl.FindByName("dup")
	if err != nil {
		t.Fatalf("FindByName failed: %v", err)
	}
	if found != id {
		t.Errorf("FindByName = %v, want %v", found, id)
	}

	if _, err := tbl.FindByName("missing"); !errors.Is(err, osalerrors.ErrNotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestTable_Rename(t *testing.T) {
	_, tbl := newTestTable(t, 4)

	a := create(t, tbl, "a", "")
	create(t, tbl, "b", "")

	tok, err := tbl.GetByID(LockGlobal, a)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if err := tok.SetName("b"); !errors.Is(err, osalerrors.ErrNameTaken) {
		t.Errorf("expected NameTaken on rename, got %v", err)
	}
	if err := tok.SetName("c"); err != nil {
		t.Errorf("rename failed: %v", err)
	}
	tok.Release()

	if found, _ := tbl.FindByName("c"); found != a {
		t.Errorf("FindByName(c) = %v, want %v", found, a)
	}

	ref, err := tbl.GetByID(LockRefcount, a)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	defer ref.Release()
	if err := ref.SetName("d"); !errors.Is(err, osalerrors.ErrIncorrectObjState) {
		t.Errorf("rename without lock should fail, got %v", err)
	}
}

func TestTable_StaleIDAfterReuse(t *testing.T) {
	_, tbl := newTestTable(t, 1)

	old := create(t, tbl, "", "old")
	destroy(t, tbl, old)

	fresh := create(t, tbl, "", "new")
	if fresh.Index() != old.Index() {
		t.Fatalf("single-slot table should reuse index %d, got %d", old.Index(), fresh.Index())
	}
	if fresh == old {
		t.Fatal("reused slot must get a new id")
	}

	for _, mode := range []LockMode{LockNone, LockGlobal, LockRefcount, LockExclusive} {
		if _, err := tbl.GetByID(mode, old); !errors.Is(err, osalerrors.ErrNotFound) {
			t.Errorf("mode %v: stale id lookup returned %v, want NotFound", mode, err)
		}
	}

	tok, err := tbl.GetByID(LockNone, fresh)
	if err != nil {
		t.Fatalf("fresh id lookup failed: %v", err)
	}
	if tok.Value().label != "new" {
		t.Errorf("label = %q", tok.Value().label)
	}
}

func TestTable_ForeignID(t *testing.T) {
	_, tbl := newTestTable(t, 4)
	create(t, tbl, "", "")

	foreign := makeID(TypeQueue, 1, 0)
	if _, err := tbl.GetByID(LockGlobal, foreign); !errors.Is(err, osalerrors.ErrNotFound) {
		t.Errorf("foreign type id returned %v", err)
	}
	if _, err := tbl.GetByID(LockGlobal, 0); !errors.Is(err, osalerrors.ErrNotFound) {
		t.Errorf("zero id returned %v", err)
	}
	if _, err := tbl.GetByID(LockGlobal, makeID(TypeStream, 1, 100)); !errors.Is(err, osalerrors.ErrNotFound) {
		t.Errorf("out of range index returned %v", err)
	}
}

func TestTable_RefcountBlocksDestroy(t *testing.T) {
	_, tbl := newTestTable(t, 4)
	id := create(t, tbl, "", "")

	ref, err := tbl.GetByID(LockRefcount, id)
	if err != nil {
		t.Fatalf("refcount lookup failed: %v", err)
	}

	glob, err := tbl.GetByID(LockGlobal, id)
	if err != nil {
		t.Fatalf("global lookup failed: %v", err)
	}
	if glob.Record().Refcount != 1 {
		t.Errorf("Refcount = %d, want 1", glob.Record().Refcount)
	}
	if err := glob.Destroy(); !errors.Is(err, osalerrors.ErrObjectInUse) {
		t.Errorf("destroy with reference returned %v", err)
	}
	glob.Release()

	ref.RefcountDecr()
	ref.RefcountDecr() // idempotent

	destroy(t, tbl, id)
}

func TestTable_ExclusiveWaitsForReferences(t *testing.T) {
	_, tbl := newTestTable(t, 4)
	id := create(t, tbl, "", "")

	ref, err := tbl.GetByID(LockRefcount, id)
	if err != nil {
		t.Fatalf("refcount lookup failed: %v", err)
	}

	released := make(chan struct{})
	go func() {
		time.Sleep(30 * time.Millisecond)
		close(released)
		ref.Release()
	}()

	tok, err := tbl.GetByID(LockExclusive, id)
	if err != nil {
		t.Fatalf("exclusive lookup failed: %v", err)
	}
	select {
	case <-released:
	default:
		t.Error("exclusive lookup returned before the reference was released")
	}
	if err := tok.Destroy(); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
}

func TestTable_ExclusiveTimeoutFollowsClock(t *testing.T) {
	mock := clock.NewMock()
	_, tbl := newTestTable(t, 4, WithClock(mock), WithExclusiveTimeout(time.Hour))
	id := create(t, tbl, "", "")

	ref, err := tbl.GetByID(LockRefcount, id)
	if err != nil {
		t.Fatalf("refcount lookup failed: %v", err)
	}
	defer ref.Release()

	done := make(chan error, 1)
	go func() {
		_, err := tbl.GetByID(LockExclusive, id)
		done <- err
	}()

	// Only the mock clock moves the deadline; keep advancing it until the
	// waiter has armed its timer and given up.
	giveUp := time.After(5 * time.Second)
	for {
		select {
		case err := <-done:
			if !errors.Is(err, osalerrors.ErrObjectInUse) {
				t.Fatalf("expected ObjectInUse, got %v", err)
			}
			return
		case <-giveUp:
			t.Fatal("exclusive wait did not follow the injected clock")
		case <-time.After(10 * time.Millisecond):
			mock.Add(time.Hour)
		}
	}
}

func TestTable_ExclusiveTimeout(t *testing.T) {
	_, tbl := newTestTable(t, 4, WithExclusiveTimeout(20*time.Millisecond))
	id := create(t, tbl, "", "")

	ref, err := tbl.GetByID(LockRefcount, id)
	if err != nil {
		t.Fatalf("refcount lookup failed: %v", err)
	}
	defer ref.Release()

	start := time.Now()
	if _, err := tbl.GetByID(LockExclusive, id); !errors.Is(err, osalerrors.ErrObjectInUse) {
		t.Fatalf("expected ObjectInUse, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("exclusive lookup gave up after %v", elapsed)
	}

	// A timed-out exclusive request must not leave the record closing.
	again, err := tbl.GetByID(LockRefcount, id)
	if err != nil {
		t.Fatalf("refcount lookup after timeout failed: %v", err)
	}
	again.Release()
}

func TestTable_LockedUpdatesUnderRefcount(t *testing.T) {
	_, tbl := newTestTable(t, 4)
	id := create(t, tbl, "", "")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := tbl.GetByID(LockRefcount, id)
			if err != nil {
				t.Errorf("lookup failed: %v", err)
				return
			}
			defer tok.Release()
			tok.Locked(func(r *Record[testValue]) {
				r.Value.label += "x"
			})
		}()
	}
	wg.Wait()

	tok, err := tbl.GetByID(LockNone, id)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if len(tok.Value().label) != 20 {
		t.Errorf("label length = %d, want 20", len(tok.Value().label))
	}
	if tok.Record().Refcount != 0 {
		t.Errorf("Refcount = %d after all releases", tok.Record().Refcount)
	}
}

func TestTable_ConcurrentAllocate(t *testing.T) {
	const n = 64
	_, tbl := newTestTable(t, n)

	ids := make([]ID, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			tok, err := tbl.AllocateNew("")
			if err != nil {
				return err
			}
			id, err := tbl.FinalizeNew(tok, nil)
			ids[i] = id
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent allocation failed: %v", err)
	}

	seenID := make(map[ID]bool)
	seenSlot := make(map[int]bool)
	for _, id := range ids {
		if seenID[id] {
			t.Errorf("id %v issued twice", id)
		}
		if seenSlot[id.Index()] {
			t.Errorf("slot %d assigned twice", id.Index())
		}
		seenID[id] = true
		seenSlot[id.Index()] = true
	}
	if tbl.Len() != n {
		t.Errorf("Len() = %d, want %d", tbl.Len(), n)
	}
}

func TestTable_ForEach(t *testing.T) {
	_, tbl := newTestTable(t, 8)
	create(t, tbl, "a", "")
	create(t, tbl, "b", "")
	create(t, tbl, "c", "")

	count := 0
	tbl.ForEach(func(Record[testValue]) bool {
		count++
		return true
	})
	if count != 3 {
		t.Fatalf("Expected to iterate over 3 records, got %d", count)
	}

	count = 0
	tbl.ForEach(func(Record[testValue]) bool {
		count++
		return false
	})
	if count != 1 {
		t.Fatalf("Expected early termination after 1 record, got %d", count)
	}
}

func TestTable_Creator(t *testing.T) {
	_, tbl := newTestTable(t, 2, WithTaskIdentity(func() uint32 { return 77 }))
	id := create(t, tbl, "", "")

	tok, err := tbl.GetByID(LockNone, id)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if tok.Record().Creator != 77 {
		t.Errorf("Creator = %d, want 77", tok.Record().Creator)
	}
}
