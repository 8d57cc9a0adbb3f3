// Package webbridge lets a browser reach the TCP game server over a
// WebSocket. Each binary WebSocket message carries one packet payload; the
// bridge frames it for TCP and unframes the replies. Payloads are not
// decoded.
package webbridge

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/LemmyAI/puckserver/internal/framing"
	"github.com/LemmyAI/puckserver/internal/status"
)

// Config holds bridge configuration.
type Config struct {
	Addr         string
	Upstream     string
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	MaxFrameSize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		Upstream:     "localhost:9000",
		DialTimeout:  3 * time.Second,
		WriteTimeout: 5 * time.Second,
		MaxFrameSize: framing.DefaultMaxFrameSize,
	}
}

type client struct {
	id  string
	ws  *websocket.Conn
	tcp net.Conn
}

func (c *client) close() {
	_ = c.ws.Close()
	_ = c.tcp.Close()
}

// Bridge pairs each browser WebSocket with its own upstream TCP connection.
type Bridge struct {
	cfg      Config
	log      *zap.Logger
	upgrader websocket.Upgrader
	http     *status.Server

	mu      sync.Mutex
	clients map[string]*client
	closed  bool
	wg      sync.WaitGroup

	sessions   atomic.Int64
	dialFails  atomic.Int64
	framesUp   atomic.Int64
	framesDown atomic.Int64
}

// New creates a Bridge.
func New(cfg Config, log *zap.Logger) *Bridge {
	def := DefaultConfig()
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = def.MaxFrameSize
	}
	if log == nil {
		log = zap.NewNop()
	}

	b := &Bridge{
		cfg: cfg,
		log: log.Named("webbridge"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
	b.http = status.NewServer(cfg.Addr, b.Handler(), b.log)
	return b
}

// Handler returns the bridge routes: /ws and /status.
func (b *Bridge) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", b.handleWS)
	mux.Handle("/status", status.Handler(b.StatusFields, b.log))
	return mux
}

// Start serves the bridge on its configured address.
func (b *Bridge) Start(ctx context.Context) error {
	return b.http.Start(ctx)
}

// Stop closes every bridged connection, waits for their handlers and shuts
// the HTTP server down.
func (b *Bridge) Stop(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	clients := make([]*client, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	b.wg.Wait()
	return b.http.Stop(ctx)
}

// Addr returns the bound HTTP address once started.
func (b *Bridge) Addr() net.Addr {
	return b.http.Addr()
}

// StatusFields reports bridge counters.
func (b *Bridge) StatusFields() map[string]any {
	b.mu.Lock()
	active := len(b.clients)
	b.mu.Unlock()

	return map[string]any{
		"upstream":       b.cfg.Upstream,
		"active_clients": active,
		"sessions":       b.sessions.Load(),
		"dial_failures":  b.dialFails.Load(),
		"frames_up":      b.framesUp.Load(),
		"frames_down":    b.framesDown.Load(),
	}
}

func (b *Bridge) handleWS(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		http.Error(w, "bridge closed", http.StatusServiceUnavailable)
		return
	}
	b.wg.Add(1)
	b.mu.Unlock()
	defer b.wg.Done()

	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Debug("upgrade failed", zap.Error(err))
		return
	}

	dialer := net.Dialer{Timeout: b.cfg.DialTimeout}
	tcp, err := dialer.DialContext(r.Context(), "tcp", b.cfg.Upstream)
	if err != nil {
		b.dialFails.Add(1)
		b.log.Warn("upstream dial failed", zap.String("upstream", b.cfg.Upstream), zap.Error(err))
		b.closeWS(ws, websocket.CloseTryAgainLater, "game server unavailable")
		_ = ws.Close()
		return
	}

	c := &client{id: uuid.New().String()[:8], ws: ws, tcp: tcp}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		c.close()
		return
	}
	b.clients[c.id] = c
	b.mu.Unlock()
	b.sessions.Add(1)

	log := b.log.With(zap.String("client", c.id), zap.String("remote", r.RemoteAddr))
	log.Info("browser connected")

	err = b.pump(c)

	b.mu.Lock()
	delete(b.clients, c.id)
	b.mu.Unlock()
	log.Info("browser disconnected", zap.NamedError("cause", err))
}

// pump copies in both directions until either side closes.
func (b *Bridge) pump(c *client) error {
	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		for {
			mt, msg, err := c.ws.ReadMessage()
			if err != nil {
				return err
			}
			if mt != websocket.BinaryMessage {
				continue
			}
			_ = c.tcp.SetWriteDeadline(time.Now().Add(b.cfg.WriteTimeout))
			if _, err := c.tcp.Write(framing.Encode(msg)); err != nil {
				return err
			}
			b.framesUp.Add(1)
		}
	})

	g.Go(func() error {
		r := framing.NewReader(c.tcp, b.cfg.MaxFrameSize)
		for {
			frame, err := r.ReadFrame()
			if err != nil {
				if errors.Is(err, io.EOF) {
					b.closeWS(c.ws, websocket.CloseNormalClosure, "game server closed the connection")
				}
				return err
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(b.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return err
			}
			b.framesDown.Add(1)
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		c.close()
		return nil
	})

	return g.Wait()
}

func (b *Bridge) closeWS(ws *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
