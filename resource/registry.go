package resource

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/osal/errors"
)

const (
	// DefaultMaxNameLen bounds record names when WithMaxNameLen is not given.
	DefaultMaxNameLen = 64

	// DefaultExclusiveTimeout bounds how long an exclusive lookup waits for
	// outstanding references to drain.
	DefaultExclusiveTimeout = 2 * time.Second
)

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithTaskIdentity sets the function used to attribute new records.
func WithTaskIdentity(fn TaskIdentity) Option {
	return func(r *Registry) {
		r.identity = fn
	}
}

// WithMaxNameLen sets the maximum record name length in bytes.
func WithMaxNameLen(n int) Option {
	return func(r *Registry) {
		r.maxNameLen = n
	}
}

// WithExclusiveTimeout sets how long LockExclusive waits for the refcount
// to drain. Zero or negative waits forever.
func WithExclusiveTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.exclusiveTimeout = d
	}
}

// WithClock sets the clock used for exclusive-wait deadlines.
func WithClock(c clock.Clock) Option {
	return func(r *Registry) {
		r.clock = c
	}
}

// table is the type-erased view of a Table used for registry-wide work.
type table interface {
	resourceType() Type
	shutdown() error
	Len() int
}

// Registry owns one table per resource type. It is constructed once at
// startup and handed to every subsystem that needs ids.
type Registry struct {
	logger           *zap.Logger
	identity         TaskIdentity
	clock            clock.Clock
	tables           map[Type]table
	observers        []Observer
	maxNameLen       int
	exclusiveTimeout time.Duration
	mu               sync.RWMutex
	obsMu            sync.RWMutex
	running          bool
}

// NewRegistry creates a registry. Call Init before allocating ids.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		tables:           make(map[Type]table),
		maxNameLen:       DefaultMaxNameLen,
		exclusiveTimeout: DefaultExclusiveTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = Logger()
	}
	if r.identity == nil {
		r.identity = func() uint32 { return 0 }
	}
	if r.clock == nil {
		r.clock = clock.New()
	}
	return r
}

// Init starts the registry.
func (r *Registry) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.IncorrectState(errors.PhaseRegistry, "init", "registry already initialized")
	}
	r.running = true
	r.logger.Debug("registry initialized", zap.Int("tables", len(r.tables)))
	return nil
}

// Shutdown stops accepting allocations and releases every live record in
// every table. Records that were still referenced are released anyway and
// reported in the returned error.
func (r *Registry) Shutdown() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	tables := make([]table, 0, len(r.tables))
	for _, t := range r.tables {
		tables = append(tables, t)
	}
	r.mu.Unlock()

	var err error
	for _, t := range tables {
		err = multierr.Append(err, t.shutdown())
	}
	r.logger.Debug("registry shut down", zap.Error(err))
	return err
}

// Running reports whether Init has been called without a later Shutdown.
func (r *Registry) Running() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// MaxNameLen returns the maximum record name length.
func (r *Registry) MaxNameLen() int {
	return r.maxNameLen
}

// Count returns the number of live records of typ, or 0 if no table is
// registered for it.
func (r *Registry) Count(typ Type) int {
	r.mu.RLock()
	t, ok := r.tables[typ]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	return t.Len()
}

// Subscribe adds an observer for lifecycle events.
func (r *Registry) Subscribe(o Observer) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	r.observers = append(r.observers, o)
}

// Unsubscribe removes an observer.
func (r *Registry) Unsubscribe(o Observer) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	for i, obs := range r.observers {
		if obs == o {
			r.observers = append(r.observers[:i], r.observers[i+1:]...)
			return
		}
	}
}

func (r *Registry) register(t table) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	typ := t.resourceType()
	if _, exists := r.tables[typ]; exists {
		return errors.New(errors.PhaseRegistry, errors.KindInvalidArgument).
			Op("new table").
			Detail("table for %s already registered", typ).
			Build()
	}
	r.tables[typ] = t
	return nil
}

func (r *Registry) notify(events ...Event) {
	if len(events) == 0 {
		return
	}
	r.obsMu.RLock()
	defer r.obsMu.RUnlock()
	for _, e := range events {
		for _, o := range r.observers {
			o.OnResourceEvent(e)
		}
	}
}

func (r *Registry) creator() uint32 {
	return r.identity()
}
