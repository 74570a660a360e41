// Package platform picks the socket backend and task identity source for
// the build target.
package platform

import (
	"go.uber.org/zap"

	"github.com/wippyai/osal/config"
	"github.com/wippyai/osal/errors"
	"github.com/wippyai/osal/socket"
	"github.com/wippyai/osal/socket/nosock"
)

// NewBackend returns the backend named in cfg. The default backend is the
// native one when the target has it and the stub otherwise.
func NewBackend(cfg config.SocketConfig, mux socket.Multiplexer, logger *zap.Logger) (socket.Backend, error) {
	switch cfg.Backend {
	case config.BackendNoSock:
		return nosock.New(), nil
	case config.BackendDefault:
		if b := nativeBackend(cfg, mux, logger); b != nil {
			return b, nil
		}
		logger.Info("no native socket backend on this platform, using stub")
		return nosock.New(), nil
	case config.BackendBSD:
		if b := nativeBackend(cfg, mux, logger); b != nil {
			return b, nil
		}
		return nil, errors.NotImplemented(errors.PhaseBackend, "bsd backend on this platform")
	}
	return nil, errors.InvalidArgument(errors.PhaseBackend, "new backend", "unknown backend "+cfg.Backend)
}
