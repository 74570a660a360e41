package resource

import "fmt"

// ID is an opaque reference to a record in a registry table.
//
// Layout, most significant first: type tag (8 bits), generation (12 bits),
// slot index (12 bits). ID 0 is reserved and always invalid.
type ID uint32

const (
	indexBits      = 12
	generationBits = 12
	typeShift      = indexBits + generationBits

	// MaxSlots is the largest capacity a single table may have.
	MaxSlots = 1 << indexBits

	indexMask      = MaxSlots - 1
	generationMask = 1<<generationBits - 1
)

func makeID(typ Type, generation uint32, index int) ID {
	return ID(uint32(typ)<<typeShift | (generation&generationMask)<<indexBits | uint32(index)&indexMask)
}

// Type returns the resource type tag encoded in the id.
func (id ID) Type() Type {
	return Type(id >> typeShift)
}

// Index returns the slot index encoded in the id.
func (id ID) Index() int {
	return int(id & indexMask)
}

func (id ID) generation() uint32 {
	return uint32(id>>indexBits) & generationMask
}

// IsValid reports whether the id is non-zero. It says nothing about
// whether the record it names is still alive.
func (id ID) IsValid() bool {
	return id != 0
}

func (id ID) String() string {
	if id == 0 {
		return "undefined"
	}
	return fmt.Sprintf("%s:%d.%d", id.Type(), id.Index(), id.generation())
}

// Type tags one kind of OS resource. Each type has its own table and lock.
type Type uint8

const (
	TypeUndefined Type = iota
	TypeTask
	TypeQueue
	TypeCountSem
	TypeBinSem
	TypeMutex
	TypeStream
	TypeDir
	TypeTimeBase
	TypeTimerCB
	TypeModule
	TypeFileSys
	TypeConsole
	TypeCondVar
	typeCount
)

var typeNames = [typeCount]string{
	TypeUndefined: "undefined",
	TypeTask:      "task",
	TypeQueue:     "queue",
	TypeCountSem:  "countsem",
	TypeBinSem:    "binsem",
	TypeMutex:     "mutex",
	TypeStream:    "stream",
	TypeDir:       "dir",
	TypeTimeBase:  "timebase",
	TypeTimerCB:   "timercb",
	TypeModule:    "module",
	TypeFileSys:   "filesys",
	TypeConsole:   "console",
	TypeCondVar:   "condvar",
}

func (t Type) String() string {
	if t < typeCount {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// LockMode selects how GetByID protects the record it returns.
type LockMode uint8

const (
	// LockNone validates the id and returns without holding anything.
	LockNone LockMode = iota
	// LockGlobal holds the table lock until the token is released.
	LockGlobal
	// LockRefcount increments the record refcount and drops the table
	// lock before returning. Use before any call that may block.
	LockRefcount
	// LockExclusive holds the table lock and waits for the refcount to
	// reach zero. Use before destroying a record.
	LockExclusive
)

func (m LockMode) String() string {
	switch m {
	case LockNone:
		return "none"
	case LockGlobal:
		return "global"
	case LockRefcount:
		return "refcount"
	case LockExclusive:
		return "exclusive"
	}
	return fmt.Sprintf("lockmode(%d)", uint8(m))
}

// Event types for resource lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDestroyed
	EventAcquired
	EventReleased
	EventRenamed
)

func (e EventType) String() string {
	switch e {
	case EventCreated:
		return "created"
	case EventDestroyed:
		return "destroyed"
	case EventAcquired:
		return "acquired"
	case EventReleased:
		return "released"
	case EventRenamed:
		return "renamed"
	}
	return "unknown"
}

// Event represents a resource lifecycle event.
type Event struct {
	Name     string
	ID       ID
	Refcount int
	Type     EventType
}

// Observer receives notifications about resource lifecycle events.
// Observers are called without any table lock held.
type Observer interface {
	OnResourceEvent(Event)
}

// TaskIdentity returns the identity of the calling task, recorded as the
// creator of new records.
type TaskIdentity func() uint32

// Record is the per-slot metadata of a live resource.
type Record[T any] struct {
	Value    T
	Name     string
	ID       ID
	Creator  uint32
	Refcount int
}

// Dropper is optionally implemented by record values that need cleanup
// when the registry shuts down with the record still alive.
type Dropper interface {
	Drop() error
}
