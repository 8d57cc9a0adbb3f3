package transport

import (
	"sync"

	"github.com/LemmyAI/puckserver/internal/bus"
	"github.com/LemmyAI/puckserver/internal/protocol"
)

// MockTransport is a mock implementation for testing.
type MockTransport struct {
	bus *bus.Bus

	mu       sync.Mutex
	sent     []protocol.Packet
	received []protocol.Packet
	sendErr  error
}

// NewMockTransport creates a new mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		bus:      bus.New(),
		sent:     make([]protocol.Packet, 0),
		received: make([]protocol.Packet, 0),
	}
}

// Register adds a listener.
func (t *MockTransport) Register(kind protocol.Kind, fn bus.Listener) bus.Handle {
	return t.bus.Register(kind, fn)
}

// Unregister removes a listener.
func (t *MockTransport) Unregister(h bus.Handle) bool {
	return t.bus.Unregister(h)
}

// Post delivers p to the listeners.
func (t *MockTransport) Post(p protocol.Packet) protocol.Packet {
	return t.bus.Post(p)
}

// SendPacket records the packet as sent. It fails with the error set by
// FailSends, if any.
func (t *MockTransport) SendPacket(p protocol.Packet) <-chan error {
	done := make(chan error, 1)
	if p == nil {
		done <- &SendError{Err: ErrNilPacket}
		return done
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		done <- &SendError{Kind: p.Kind(), Err: t.sendErr}
		return done
	}
	t.sent = append(t.sent, p)
	done <- nil
	return done
}

// --- Test helpers ---

// Simulate simulates receiving a packet from the peer.
func (t *MockTransport) Simulate(p protocol.Packet) {
	t.mu.Lock()
	t.received = append(t.received, p)
	t.mu.Unlock()

	t.bus.Post(p)
}

// FailSends makes every following SendPacket fail with err. A nil err
// restores normal sends.
func (t *MockTransport) FailSends(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendErr = err
}

// SentPackets returns all sent packets.
func (t *MockTransport) SentPackets() []protocol.Packet {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]protocol.Packet{}, t.sent...)
}

// ReceivedPackets returns all simulated packets.
func (t *MockTransport) ReceivedPackets() []protocol.Packet {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]protocol.Packet{}, t.received...)
}

// Listeners returns the number of registered listeners.
func (t *MockTransport) Listeners() int {
	return t.bus.Len()
}

// Clear clears all recorded packets.
func (t *MockTransport) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = t.sent[:0]
	t.received = t.received[:0]
}

var _ Transport = (*MockTransport)(nil)
