// Package transport owns the TCP listening socket and the single peer
// connection of a game session. Inbound frames are decoded and posted to an
// event bus; outbound packets are framed and written in call order.
package transport

import (
	"time"

	"github.com/LemmyAI/puckserver/internal/bus"
	"github.com/LemmyAI/puckserver/internal/framing"
	"github.com/LemmyAI/puckserver/internal/protocol"
)

// Transport is the capability game logic consumes. It is implemented by
// Server and by MockTransport.
type Transport interface {
	// Register adds a listener for packets of kind (bus.All for every kind).
	Register(kind protocol.Kind, fn bus.Listener) bus.Handle

	// Unregister removes a listener.
	Unregister(h bus.Handle) bool

	// Post delivers a packet to the registered listeners and returns it.
	Post(p protocol.Packet) protocol.Packet

	// SendPacket queues a packet for the connected peer. The returned channel
	// receives exactly one value: nil once the packet is flushed, or the
	// failure.
	SendPacket(p protocol.Packet) <-chan error
}

// DefaultKickReason is sent to connections rejected while a peer is
// connected.
const DefaultKickReason = "A player is already connected"

// Config holds transport configuration.
type Config struct {
	Port             int
	KeepAliveTimeout time.Duration
	WriteTimeout     time.Duration
	WriteQueueSize   int
	MaxFrameSize     int
	KickReason       string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Port:             9000,
		KeepAliveTimeout: 5 * time.Second,
		WriteTimeout:     5 * time.Second,
		WriteQueueSize:   256,
		MaxFrameSize:     framing.DefaultMaxFrameSize,
		KickReason:       DefaultKickReason,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.KeepAliveTimeout <= 0 {
		c.KeepAliveTimeout = def.KeepAliveTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.WriteQueueSize <= 0 {
		c.WriteQueueSize = def.WriteQueueSize
	}
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = def.MaxFrameSize
	}
	if c.KickReason == "" {
		c.KickReason = def.KickReason
	}
	return c
}

// State is the position of a Server in its lifecycle.
type State int32

const (
	StateUnbound State = iota
	StateBinding
	StateListening
	StateConnected
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateBinding:
		return "binding"
	case StateListening:
		return "listening"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// Session is a snapshot of the server's single session.
type Session struct {
	ID          string
	Port        int
	State       State
	RemoteAddr  string
	ConnectedAt time.Time
	PacketsIn   int64
	PacketsOut  int64
	Kicked      int64
}
