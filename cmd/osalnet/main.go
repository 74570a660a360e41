package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/netip"
	"os"
	"os/signal"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/wippyai/osal"
	"github.com/wippyai/osal/config"
	osalerrors "github.com/wippyai/osal/errors"
	"github.com/wippyai/osal/resource"
	"github.com/wippyai/osal/socket"
)

const (
	// defaultSliceMs bounds each wait when -timeout is negative so loops
	// can notice cancellation.
	defaultSliceMs = 500

	// minSliceMs replaces a zero -timeout inside loops, which would
	// otherwise poll without sleeping.
	minSliceMs = 10
)

type options struct {
	addr    socket.Addr
	peer    socket.Addr
	mode    string
	msg     string
	timeout int32
	count   int
}

type reportFunc func(format string, args ...any)

func main() {
	var (
		configFile  = flag.String("config", "", "Path to YAML config file")
		mode        = flag.String("mode", "echo", "Mode: echo, send, recv, inspect")
		addr        = flag.String("addr", "127.0.0.1:7000", "Local address (ip:port)")
		peer        = flag.String("peer", "", "Peer address for send (ip:port)")
		msg         = flag.String("msg", "hello", "Datagram payload for send")
		timeout     = flag.Int("timeout", 1000, "Per-call wait in milliseconds (negative waits forever)")
		count       = flag.Int("n", 0, "Stop after n connections or datagrams (0 = unlimited, send defaults to 1)")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	opts, err := parseOptions(*mode, *addr, *peer, *msg, *timeout, *count)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		fmt.Fprintln(os.Stderr, "Usage: osalnet -mode echo [-addr ip:port]")
		fmt.Fprintln(os.Stderr, "       osalnet -mode recv [-addr ip:port] [-n count]")
		fmt.Fprintln(os.Stderr, "       osalnet -mode send -peer ip:port [-msg text] [-n count]")
		fmt.Fprintln(os.Stderr, "       osalnet -mode inspect [-addr ip:port]  (echo server with TUI)")
		os.Exit(1)
	}
	if opts.mode == "inspect" {
		*interactive = true
	}

	if err := run(*configFile, opts, *interactive); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseOptions(mode, addr, peer, msg string, timeout, count int) (options, error) {
	opts := options{mode: mode, msg: msg, timeout: int32(timeout), count: count}

	switch mode {
	case "echo", "recv", "inspect":
	case "send":
		if peer == "" {
			return opts, fmt.Errorf("send needs -peer")
		}
		if opts.count == 0 {
			opts.count = 1
		}
	default:
		return opts, fmt.Errorf("unknown mode %q", mode)
	}

	var err error
	if opts.addr, err = parseAddr(addr); err != nil {
		return opts, fmt.Errorf("-addr: %w", err)
	}
	if peer != "" {
		if opts.peer, err = parseAddr(peer); err != nil {
			return opts, fmt.Errorf("-peer: %w", err)
		}
	}
	return opts, nil
}

func parseAddr(s string) (socket.Addr, error) {
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		return socket.Addr{}, err
	}
	return socket.AddrFromAddrPort(ap)
}

func run(configFile string, opts options, interactive bool) error {
	cfg, err := config.LoadOrDefault(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if interactive && !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "stdout is not a terminal, running without TUI")
		interactive = false
	}

	var osalOpts []osal.Option
	if interactive {
		// Log lines would corrupt the alt screen.
		osalOpts = append(osalOpts, osal.WithLogger(zap.NewNop()))
	}
	o, err := osal.New(cfg, osalOpts...)
	if err != nil {
		return fmt.Errorf("create osal: %w", err)
	}
	if err := o.Init(); err != nil {
		return fmt.Errorf("init osal: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var runErr error
	if interactive {
		runErr = runInteractive(ctx, o, opts)
	} else {
		runErr = runMode(ctx, o, opts, func(format string, args ...any) {
			fmt.Printf(format+"\n", args...)
		})
	}
	return multierr.Combine(runErr, o.Shutdown())
}

func runMode(ctx context.Context, o *osal.OSAL, opts options, report reportFunc) error {
	switch opts.mode {
	case "send":
		return runSend(o.Sockets, opts, report)
	case "recv":
		return runRecv(ctx, o.Sockets, opts, report)
	default:
		return runEcho(ctx, o.Sockets, opts, report)
	}
}

// waitSlice is the per-call wait used inside loops.
func waitSlice(timeout int32) int32 {
	switch {
	case timeout < 0:
		return defaultSliceMs
	case timeout == 0:
		return minSliceMs
	}
	return timeout
}

func idle(err error) bool {
	return errors.Is(err, osalerrors.ErrTimeout) || errors.Is(err, osalerrors.ErrQueueEmpty)
}

// runEcho accepts connections and echoes everything read on each of them,
// one goroutine per connection.
func runEcho(ctx context.Context, m *socket.Manager, opts options, report reportFunc) error {
	listener, err := m.Open(opts.addr.Domain(), socket.TypeStream)
	if err != nil {
		return fmt.Errorf("open listener: %w", err)
	}
	defer m.Close(listener)
	if err := m.Bind(listener, opts.addr); err != nil {
		return fmt.Errorf("bind %s: %w", opts.addr, err)
	}
	props, err := m.GetInfo(listener)
	if err != nil {
		return fmt.Errorf("listener info: %w", err)
	}
	report("echo server listening on %s (%s)", props.Local, listener)

	g, gctx := errgroup.WithContext(ctx)
	accepted := 0
	for gctx.Err() == nil && (opts.count == 0 || accepted < opts.count) {
		conn, peer, err := m.Accept(listener, waitSlice(opts.timeout))
		if idle(err) {
			continue
		}
		if err != nil {
			report("accept failed: %v", err)
			break
		}
		accepted++
		report("accepted %s from %s", conn, peer)
		g.Go(func() error {
			serveEcho(gctx, m, conn, opts.timeout, report)
			return nil
		})
	}
	return g.Wait()
}

func serveEcho(ctx context.Context, m *socket.Manager, conn resource.ID, timeout int32, report reportFunc) {
	defer func() {
		if err := m.Close(conn); err != nil {
			report("close %s: %v", conn, err)
		}
	}()

	buf := make([]byte, 4096)
	for ctx.Err() == nil {
		n, err := m.Read(conn, buf, waitSlice(timeout))
		if idle(err) {
			continue
		}
		if err != nil {
			report("read %s: %v", conn, err)
			return
		}
		if n == 0 {
			report("%s closed by peer", conn)
			return
		}
		for off := 0; off < n; {
			w, err := m.Write(conn, buf[off:n], waitSlice(timeout))
			if err != nil {
				report("write %s: %v", conn, err)
				return
			}
			off += w
		}
	}
}

func runSend(m *socket.Manager, opts options, report reportFunc) error {
	id, err := m.Open(opts.peer.Domain(), socket.TypeDatagram)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer m.Close(id)

	for i := 0; i < opts.count; i++ {
		n, err := m.SendTo(id, []byte(opts.msg), opts.peer)
		if err != nil {
			return fmt.Errorf("send to %s: %w", opts.peer, err)
		}
		report("sent %d bytes to %s", n, opts.peer)
	}
	return nil
}

func runRecv(ctx context.Context, m *socket.Manager, opts options, report reportFunc) error {
	id, err := m.Open(opts.addr.Domain(), socket.TypeDatagram)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer m.Close(id)

	if err := m.Bind(id, opts.addr); err != nil {
		return fmt.Errorf("bind %s: %w", opts.addr, err)
	}
	report("receiving on %s (%s)", opts.addr, id)

	buf := make([]byte, 65536)
	for received := 0; ctx.Err() == nil && (opts.count == 0 || received < opts.count); {
		n, from, err := m.RecvFrom(id, buf, waitSlice(opts.timeout))
		if idle(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("receive: %w", err)
		}
		received++
		report("%d bytes from %s: %q", n, from, buf[:n])
	}
	return nil
}
