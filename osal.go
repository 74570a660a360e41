package osal

import (
	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/osal/config"
	"github.com/wippyai/osal/errors"
	"github.com/wippyai/osal/platform"
	"github.com/wippyai/osal/poll"
	"github.com/wippyai/osal/resource"
	"github.com/wippyai/osal/socket"
)

// Option configures an OSAL.
type Option func(*options)

type options struct {
	logger   *zap.Logger
	backend  socket.Backend
	clock    clock.Clock
	identity resource.TaskIdentity
}

// WithLogger sets the logger handed to every component.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithBackend replaces the socket backend selected from the config.
func WithBackend(b socket.Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithClock sets the clock used for readiness and exclusive-wait
// deadlines.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithTaskIdentity sets the function recording the creator of new
// records. The default is platform.TaskID.
func WithTaskIdentity(fn resource.TaskIdentity) Option {
	return func(o *options) {
		o.identity = fn
	}
}

// OSAL owns one registry and the subsystems built on it.
type OSAL struct {
	Registry *resource.Registry
	Mux      *poll.Multiplexer
	Sockets  *socket.Manager
	logger   *zap.Logger
}

// New wires the registry, multiplexer, backend and socket manager from
// cfg. Call Init before use.
func New(cfg config.Config, opts ...Option) (*OSAL, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{
		clock:    clock.New(),
		identity: platform.TaskID,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		l, err := cfg.Log.Logger()
		if err != nil {
			return nil, err
		}
		o.logger = l
	}

	reg := resource.NewRegistry(
		resource.WithLogger(o.logger.Named("registry")),
		resource.WithTaskIdentity(o.identity),
		resource.WithClock(o.clock),
		resource.WithMaxNameLen(cfg.Registry.MaxNameLen),
		resource.WithExclusiveTimeout(cfg.Registry.ExclusiveTimeout),
	)
	mux := poll.New(
		poll.WithClock(o.clock),
		poll.WithLogger(o.logger.Named("poll")),
	)

	backend := o.backend
	if backend == nil {
		b, err := platform.NewBackend(cfg.Socket, mux, o.logger.Named("backend"))
		if err != nil {
			return nil, err
		}
		backend = b
	}

	sockets, err := socket.NewManager(reg, backend,
		socket.WithLogger(o.logger.Named("socket")),
		socket.WithMultiplexer(mux),
		socket.WithMaxSockets(cfg.Registry.MaxSockets),
	)
	if err != nil {
		return nil, err
	}

	return &OSAL{
		Registry: reg,
		Mux:      mux,
		Sockets:  sockets,
		logger:   o.logger,
	}, nil
}

// Init starts the registry.
func (o *OSAL) Init() error {
	if err := o.Registry.Init(); err != nil {
		return err
	}
	o.logger.Info("osal initialized", zap.String("backend", o.Sockets.Backend().Name()))
	return nil
}

// Shutdown closes every open socket and stops the registry. All failures
// are reported together.
func (o *OSAL) Shutdown() error {
	if !o.Registry.Running() {
		return errors.New(errors.PhaseRegistry, errors.KindNotInitialized).
			Op("shutdown").
			Detail("not initialized").
			Build()
	}
	err := multierr.Combine(
		o.Sockets.CloseAll(),
		o.Registry.Shutdown(),
	)
	o.logger.Info("osal shut down", zap.Error(err))
	_ = o.logger.Sync()
	return err
}
