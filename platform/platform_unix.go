//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package platform

import (
	"go.uber.org/zap"

	"github.com/wippyai/osal/config"
	"github.com/wippyai/osal/socket"
	"github.com/wippyai/osal/socket/bsd"
)

func nativeBackend(cfg config.SocketConfig, mux socket.Multiplexer, logger *zap.Logger) socket.Backend {
	opts := []bsd.Option{
		bsd.WithLogger(logger),
		bsd.WithBacklog(cfg.Backlog),
		bsd.WithNonBlocking(cfg.NonBlocking),
		bsd.WithReuseAddr(cfg.ReuseAddr),
	}
	if mux != nil {
		opts = append(opts, bsd.WithMultiplexer(mux))
	}
	return bsd.New(opts...)
}
