package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/someonegg/gox/syncx"
	"go.uber.org/zap"

	"github.com/LemmyAI/puckserver/internal/bus"
	"github.com/LemmyAI/puckserver/internal/framing"
	"github.com/LemmyAI/puckserver/internal/protocol"
)

// Server listens on one TCP port and admits exactly one peer. Connections
// arriving while a peer is admitted are kicked.
//
// A Server runs once: after Stop, Start returns ErrServerStopped. A restart
// on the same port uses a new Server sharing the previous one's ShutdownSlot.
type Server struct {
	cfg      Config
	reg      *protocol.Registry
	bus      *bus.Bus
	slot     *ShutdownSlot
	lc       net.ListenConfig
	log      *zap.Logger
	stopHook func()
	hookOnce sync.Once

	mu       sync.Mutex
	state    State
	session  Session
	ln       net.Listener
	peer     *peerConn
	stopping bool
	startErr error

	startD   syncx.DoneChan // nil until Start runs
	bindD    syncx.DoneChan // nil until Start runs
	connD    syncx.DoneChan
	quitD    syncx.DoneChan
	stoppedD syncx.DoneChan

	wg         sync.WaitGroup
	packetsIn  atomic.Int64
	packetsOut atomic.Int64
	kicked     atomic.Int64
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// WithBus sets the bus inbound packets are posted to.
func WithBus(b *bus.Bus) Option {
	return func(s *Server) {
		s.bus = b
	}
}

// WithShutdownSlot shares a shutdown slot with earlier servers on the same
// port.
func WithShutdownSlot(slot *ShutdownSlot) Option {
	return func(s *Server) {
		s.slot = slot
	}
}

// WithStopHook sets the function called when the peer is lost while the
// server is not stopping. It runs on its own goroutine.
func WithStopHook(fn func()) Option {
	return func(s *Server) {
		s.stopHook = fn
	}
}

// WithListenConfig sets the socket options used to bind.
func WithListenConfig(lc net.ListenConfig) Option {
	return func(s *Server) {
		s.lc = lc
	}
}

// NewServer creates a Server. reg is used to encode and decode packets.
func NewServer(cfg Config, reg *protocol.Registry, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg.withDefaults(),
		reg:      reg,
		log:      zap.NewNop(),
		connD:    syncx.NewDoneChan(),
		quitD:    syncx.NewDoneChan(),
		stoppedD: syncx.NewDoneChan(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.bus == nil {
		s.bus = bus.New(bus.WithLogger(s.log))
	}
	if s.slot == nil {
		s.slot = NewShutdownSlot()
	}
	s.log = s.log.Named("transport").With(zap.Int("port", s.cfg.Port))
	s.session.Port = s.cfg.Port
	return s
}

// Start binds the listening socket and blocks until a peer is admitted.
//
// It first waits for the teardown of the previous server on the shared
// ShutdownSlot. A bind failure returns a *BindError. Stop interrupts a
// pending Start with ErrServerStopped. If ctx ends first, Start returns
// ctx.Err() and the server keeps listening until Stop.
//
// Calling Start again waits for the first call's outcome.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.startD != nil {
		startD := s.startD
		s.mu.Unlock()
		select {
		case <-startD:
			s.mu.Lock()
			defer s.mu.Unlock()
			return s.startErr
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.stopping {
		s.mu.Unlock()
		return ErrServerStopped
	}
	s.startD = syncx.NewDoneChan()
	s.bindD = syncx.NewDoneChan()
	s.state = StateBinding
	s.mu.Unlock()

	err := s.start(ctx)

	s.mu.Lock()
	s.startErr = err
	s.mu.Unlock()
	s.startD.SetDone()
	return err
}

func (s *Server) start(ctx context.Context) error {
	ln, err := s.bind(ctx)
	if err != nil {
		s.mu.Lock()
		s.state = StateUnbound
		s.mu.Unlock()
		s.bindD.SetDone()
		return err
	}

	s.mu.Lock()
	if s.stopping {
		s.state = StateUnbound
		s.mu.Unlock()
		_ = ln.Close()
		s.bindD.SetDone()
		return ErrServerStopped
	}
	s.ln = ln
	s.state = StateListening
	s.wg.Add(1)
	s.mu.Unlock()

	s.log.Info("listening", zap.Stringer("addr", ln.Addr()))
	go s.acceptLoop(ln)
	s.bindD.SetDone()

	select {
	case <-s.connD:
		return nil
	case <-s.quitD:
		return ErrServerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) bind(ctx context.Context) (net.Listener, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.quitD:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.log.Debug("waiting for previous socket to release")
	if err := s.slot.Wait(ctx); err != nil {
		return nil, s.interrupted(err)
	}

	s.log.Debug("binding")
	ln, err := s.lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		if err := s.interrupted(nil); err != nil {
			return nil, err
		}
		return nil, &BindError{Port: s.cfg.Port, Err: err}
	}
	return ln, nil
}

// interrupted returns ErrServerStopped once Stop has been called, err
// otherwise.
func (s *Server) interrupted(err error) error {
	select {
	case <-s.quitD:
		return ErrServerStopped
	default:
		return err
	}
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || s.interrupted(nil) != nil {
				return
			}
			s.log.Warn("accept failed", zap.Error(err))
			time.Sleep(10 * time.Millisecond)
			continue
		}
		s.admit(conn)
	}
}

func (s *Server) admit(conn net.Conn) {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	if s.state != StateListening {
		s.wg.Add(1)
		s.mu.Unlock()
		go s.kick(conn)
		return
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	c := newPeerConn(s, conn)
	s.peer = c
	s.state = StateConnected
	id := uuid.New().String()[:8]
	s.session.ID = id
	s.session.RemoteAddr = c.remote
	s.session.ConnectedAt = time.Now()
	s.wg.Add(1)
	s.mu.Unlock()

	c.log.Info("peer connected", zap.String("session", id))
	s.connD.SetDone()

	go func() {
		defer s.wg.Done()
		cause := c.run()
		s.peerLost(c, cause)
	}()
}

func (s *Server) kick(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	s.kicked.Add(1)
	s.log.Info("kicking connection", zap.String("remote", remote))

	payload, err := s.reg.Encode(protocol.Kick{Reason: s.cfg.KickReason})
	if err != nil {
		s.log.Error("encode kick failed", zap.Error(err))
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if _, err := conn.Write(framing.Encode(payload)); err != nil {
		s.log.Debug("kick write failed", zap.String("remote", remote), zap.Error(err))
	}
}

func (s *Server) peerLost(c *peerConn, cause error) {
	s.mu.Lock()
	if s.peer == c {
		s.peer = nil
	}
	stopping := s.stopping
	if !stopping {
		s.state = StateDisconnecting
	}
	s.mu.Unlock()

	c.log.Info("peer disconnected", zap.NamedError("cause", cause), zap.Bool("stopping", stopping))

	if stopping || s.stopHook == nil {
		return
	}
	s.hookOnce.Do(func() {
		go s.stopHook()
	})
}

// Stop closes the listener and the peer, waits for every server goroutine
// and then resolves the shutdown token it published. A bind in progress is
// allowed to finish first; a Start waiting for a peer returns
// ErrServerStopped.
//
// Stop is safe to call when Start never ran or failed, and more than once.
// If ctx ends first, teardown continues in the background.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.stopping {
		s.stopping = true
		bindD := s.bindD
		s.mu.Unlock()

		s.log.Debug("stopping")
		resolve := s.slot.Publish()
		s.quitD.SetDone()
		go s.teardown(bindD, resolve)
	} else {
		s.mu.Unlock()
	}

	select {
	case <-s.stoppedD:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) teardown(bindD syncx.DoneChan, resolve func()) {
	defer s.stoppedD.SetDone()
	defer resolve()

	if bindD != nil {
		<-bindD
	}

	s.mu.Lock()
	ln, peer := s.ln, s.peer
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	if peer != nil {
		peer.close(ErrServerStopped)
	}
	s.wg.Wait()

	s.mu.Lock()
	s.state = StateUnbound
	s.ln = nil
	s.peer = nil
	s.mu.Unlock()

	s.log.Info("stopped")
}

// SendPacket queues p for the connected peer. The returned channel is
// buffered and receives nil once p is flushed to the socket, or a
// *SendError. With no peer connected it fails with ErrNoPeer.
func (s *Server) SendPacket(p protocol.Packet) <-chan error {
	done := make(chan error, 1)
	if p == nil {
		done <- &SendError{Err: ErrNilPacket}
		return done
	}

	s.mu.Lock()
	c := s.peer
	s.mu.Unlock()

	if c == nil {
		done <- &SendError{Kind: p.Kind(), Err: ErrNoPeer}
		return done
	}
	c.enqueue(p, done)
	return done
}

// Register adds a listener to the server's bus.
func (s *Server) Register(kind protocol.Kind, fn bus.Listener) bus.Handle {
	return s.bus.Register(kind, fn)
}

// Unregister removes a listener from the server's bus.
func (s *Server) Unregister(h bus.Handle) bool {
	return s.bus.Unregister(h)
}

// Post delivers p to the server's bus.
func (s *Server) Post(p protocol.Packet) protocol.Packet {
	return s.bus.Post(p)
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Addr returns the listening address, or nil when not listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Session returns a snapshot of the current session.
func (s *Server) Session() Session {
	s.mu.Lock()
	sess := s.session
	sess.State = s.state
	if s.ln != nil {
		if addr, ok := s.ln.Addr().(*net.TCPAddr); ok {
			sess.Port = addr.Port
		}
	}
	s.mu.Unlock()

	sess.PacketsIn = s.packetsIn.Load()
	sess.PacketsOut = s.packetsOut.Load()
	sess.Kicked = s.kicked.Load()
	return sess
}

var _ Transport = (*Server)(nil)
