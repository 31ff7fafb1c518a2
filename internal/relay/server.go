package relay

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Config bundles the externally tunable parameters of the Acceptor &
// Lifecycle Controller, all of which were compile-time constants in the
// original design and are now runtime-configurable per the resolved
// Open Question on listener/frame parameters.
type Config struct {
	ListenAddr string
	FrameSize  int
	QueueCap   int
	MixPeriod  time.Duration
	SocketBuf  int
}

// Server binds the voice-data listening socket, admits new clients,
// wires up their ingress/egress tasks, runs the mixer, and orchestrates
// graceful shutdown, modeled on the teacher's top-level orchestration in
// cmd/flowpbx/main.go generalized into a reusable component.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	registry *Registry
	mixer    *Mixer

	listener net.Listener
	cancel   context.CancelFunc

	shuttingDown atomic.Bool
	acceptWG     sync.WaitGroup
	clientsWG    sync.WaitGroup
}

// NewServer creates a Server ready to Start. registry is constructed by
// the caller (rather than internally) so the admin HTTP surface can
// observe it before the mixer exists; metrics may be the zero value.
func NewServer(cfg Config, logger *slog.Logger, registry *Registry, metrics MixerMetrics) *Server {
	logger = logger.With("subsystem", "relay-server")
	mixer := NewMixer(registry, cfg.MixPeriod, cfg.FrameSize, logger, metrics)
	return &Server{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		mixer:    mixer,
	}
}

// Registry exposes the server's broadcast registry, e.g. for the admin
// HTTP surface's active-client-count gauge.
func (s *Server) Registry() *Registry {
	return s.registry
}

// ShuttingDown reports whether graceful shutdown has been requested, for
// the health endpoint to flip from 200 to 503.
func (s *Server) ShuttingDown() bool {
	return s.shuttingDown.Load()
}

// listenConfig builds a net.ListenConfig whose Control callback sets
// SO_REUSEADDR before bind, so a restarted server can rebind its port
// immediately instead of waiting out TIME_WAIT.
func listenConfig() net.ListenConfig {
	return net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var controlErr error
			err := c.Control(func(fd uintptr) {
				controlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return controlErr
		},
	}
}

// Start binds the listener and spawns the mixer and the accept loop,
// returning once the listener is ready to accept connections. The
// caller is responsible for calling Stop once its shutdown signal
// fires; ctx only bounds the listener bind itself.
func (s *Server) Start(ctx context.Context) error {
	lc := listenConfig()
	ln, err := lc.Listen(ctx, "tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("binding listen address %s: %w", s.cfg.ListenAddr, err)
	}
	s.listener = ln

	mixCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.logger.Info("listening", "addr", ln.Addr().String())

	go s.mixer.Run(mixCtx)

	s.acceptWG.Add(1)
	go s.acceptLoop()

	return nil
}

// acceptLoop admits connections until Stop closes the listener.
// AcceptFailed errors are logged and the loop continues unless shutdown
// has been requested.
func (s *Server) acceptLoop() {
	defer s.acceptWG.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.shuttingDown.Load() {
				return
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}

		s.admit(conn)
	}
}

// admit tunes the accepted socket, registers a Client Entry, and spawns
// its reader and sender tasks.
func (s *Server) admit(conn net.Conn) {
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
		tc.SetReadBuffer(s.cfg.SocketBuf)
		tc.SetWriteBuffer(s.cfg.SocketBuf)
	}

	entry := newClientEntry(conn, s.cfg.QueueCap)
	s.registry.Insert(entry)

	entry.wg.Add(2)
	s.clientsWG.Add(1)

	go runIngress(entry, s.mixer, s.registry, s.logger, func() {})
	go runEgress(entry, s.logger, func() {})

	go func() {
		entry.wait()
		s.registry.Remove(entry)
		s.clientsWG.Done()
	}()

	s.logger.Info("client connected", "client_id", entry.ID, "remote", conn.RemoteAddr().String())
}

// Stop sets the shutdown flag, closes the listener to stop accepting,
// tears down every registered client (snapshot-iterate-deactivate-join),
// and waits for the mixer to observe cancellation. Safe to call more
// than once; only the first call has any effect.
func (s *Server) Stop() {
	if !s.shuttingDown.CompareAndSwap(false, true) {
		return
	}

	s.logger.Info("shutdown requested")

	if s.listener != nil {
		s.listener.Close()
	}
	s.acceptWG.Wait()

	for _, entry := range s.registry.Snapshot() {
		if entry.deactivate() {
			entry.teardown()
		}
	}
	s.clientsWG.Wait()

	if s.cancel != nil {
		s.cancel()
	}
	<-s.mixer.Done()

	s.logger.Info("shutdown complete")
}
