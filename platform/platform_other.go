//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package platform

import (
	"go.uber.org/zap"

	"github.com/wippyai/osal/config"
	"github.com/wippyai/osal/socket"
)

func nativeBackend(config.SocketConfig, socket.Multiplexer, *zap.Logger) socket.Backend {
	return nil
}
