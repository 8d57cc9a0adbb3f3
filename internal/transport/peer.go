package transport

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/someonegg/gox/syncx"
	"go.uber.org/zap"

	"github.com/LemmyAI/puckserver/internal/framing"
	"github.com/LemmyAI/puckserver/internal/protocol"
)

var errPeerDisconnected = errors.New("transport: peer sent disconnect")

type outbound struct {
	kind    protocol.Kind
	payload []byte
	done    chan<- error
}

func (o outbound) fail(err error) {
	o.done <- &SendError{Kind: o.kind, Err: err}
}

// peerConn is the admitted connection. One goroutine reads and posts, one
// drains the write queue.
type peerConn struct {
	srv    *Server
	conn   net.Conn
	remote string
	log    *zap.Logger

	mu     sync.Mutex
	queue  *queue.Queue
	closed bool
	cause  error
	signal chan struct{}

	closeOnce sync.Once
	closedD   syncx.DoneChan
}

func newPeerConn(s *Server, conn net.Conn) *peerConn {
	remote := conn.RemoteAddr().String()
	return &peerConn{
		srv:     s,
		conn:    conn,
		remote:  remote,
		log:     s.log.With(zap.String("remote", remote)),
		queue:   queue.New(),
		signal:  make(chan struct{}, 1),
		closedD: syncx.NewDoneChan(),
	}
}

// run serves the connection until it is closed and returns the close cause.
func (c *peerConn) run() error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writeLoop()
	}()

	c.readLoop()
	wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cause
}

func (c *peerConn) enqueue(p protocol.Packet, done chan<- error) {
	payload, err := c.srv.reg.Encode(p)
	if err != nil {
		done <- &SendError{Kind: p.Kind(), Err: err}
		return
	}
	o := outbound{kind: p.Kind(), payload: payload, done: done}

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		o.fail(ErrConnClosed)
		return
	case c.queue.Length() >= c.srv.cfg.WriteQueueSize:
		c.mu.Unlock()
		o.fail(ErrQueueFull)
		return
	}
	c.queue.Add(o)
	c.mu.Unlock()

	select {
	case c.signal <- struct{}{}:
	default:
	}
}

func (c *peerConn) next() (outbound, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.queue.Length() == 0 {
		return outbound{}, false
	}
	return c.queue.Remove().(outbound), true
}

func (c *peerConn) writeLoop() {
	w := framing.NewWriter(c.conn)
	var unflushed []outbound

	fail := func(err error) {
		for _, o := range unflushed {
			o.fail(err)
		}
		unflushed = nil
	}

	for {
		o, ok := c.next()
		if ok {
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.srv.cfg.WriteTimeout))
			if err := w.WriteFrame(o.payload); err != nil {
				unflushed = append(unflushed, o)
				fail(err)
				c.close(err)
				return
			}
			unflushed = append(unflushed, o)
			continue
		}

		if len(unflushed) > 0 {
			if err := w.Flush(); err != nil {
				fail(err)
				c.close(err)
				return
			}
			c.srv.packetsOut.Add(int64(len(unflushed)))
			for _, o := range unflushed {
				o.done <- nil
			}
			unflushed = unflushed[:0]
		}

		select {
		case <-c.signal:
		case <-c.closedD:
			fail(ErrConnClosed)
			return
		}
	}
}

func (c *peerConn) readLoop() {
	r := framing.NewReader(idleReader{conn: c.conn, timeout: c.srv.cfg.KeepAliveTimeout}, c.srv.cfg.MaxFrameSize)
	for {
		frame, err := r.ReadFrame()
		if err != nil {
			c.close(c.readError(err))
			return
		}

		p, err := c.srv.reg.Decode(frame)
		if err != nil {
			c.log.Error("decode failed", zap.Error(err))
			c.close(err)
			return
		}
		c.srv.packetsIn.Add(1)

		switch p := p.(type) {
		case protocol.Ping:
			c.enqueue(protocol.Pong{}, make(chan error, 1))
		case protocol.Disconnect:
			c.close(errPeerDisconnected)
			c.srv.Post(p)
			return
		default:
			if c.isClosed() {
				return
			}
			c.srv.Post(p)
		}
	}
}

func (c *peerConn) readError(err error) error {
	var ne net.Error
	switch {
	case errors.As(err, &ne) && ne.Timeout():
		err = &IdleTimeoutError{Remote: c.remote, Timeout: c.srv.cfg.KeepAliveTimeout}
		c.log.Warn("connection timed out", zap.Duration("timeout", c.srv.cfg.KeepAliveTimeout))
	case errors.Is(err, framing.ErrFraming):
		c.log.Error("framing failed", zap.Error(err))
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
	default:
		c.log.Debug("read failed", zap.Error(err))
	}
	return err
}

func (c *peerConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// close shuts the socket and fails every queued send. Only the first cause is
// kept.
func (c *peerConn) close(cause error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.cause = cause
		var pending []outbound
		for c.queue.Length() > 0 {
			pending = append(pending, c.queue.Remove().(outbound))
		}
		c.mu.Unlock()

		_ = c.conn.Close()
		c.closedD.SetDone()

		for _, o := range pending {
			o.fail(ErrConnClosed)
		}
	})
}

// idleReader refreshes the read deadline before every read, so the
// keep-alive timeout measures time since the last byte arrived.
type idleReader struct {
	conn    net.Conn
	timeout time.Duration
}

func (r idleReader) Read(p []byte) (int, error) {
	if err := r.conn.SetReadDeadline(time.Now().Add(r.timeout)); err != nil {
		return 0, err
	}
	return r.conn.Read(p)
}
