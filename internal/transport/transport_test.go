package transport

import (
	"errors"
	"testing"
	"time"

	"github.com/LemmyAI/puckserver/internal/bus"
	"github.com/LemmyAI/puckserver/internal/protocol"
)

func TestMockTransport_Simulate(t *testing.T) {
	mock := NewMockTransport()

	var received protocol.PuckPosition
	bus.On(mock, func(p protocol.PuckPosition) {
		received = p
	})

	mock.Simulate(protocol.PuckPosition{PosX: 3})

	if received.PosX != 3 {
		t.Errorf("expected PosX 3, got %v", received.PosX)
	}
	if got := mock.ReceivedPackets(); len(got) != 1 {
		t.Errorf("expected 1 received packet, got %d", len(got))
	}
}

func TestMockTransport_SendPacket(t *testing.T) {
	mock := NewMockTransport()

	if err := <-mock.SendPacket(protocol.Ping{}); err != nil {
		t.Fatalf("SendPacket failed: %v", err)
	}

	sent := mock.SentPackets()
	if len(sent) != 1 {
		t.Fatalf("expected 1 sent packet, got %d", len(sent))
	}
	if sent[0] != (protocol.Ping{}) {
		t.Errorf("expected ping, got %v", sent[0])
	}

	mock.Clear()
	if len(mock.SentPackets()) != 0 {
		t.Error("expected Clear to drop sent packets")
	}
}

func TestMockTransport_FailSends(t *testing.T) {
	mock := NewMockTransport()
	mock.FailSends(ErrNoPeer)

	err := <-mock.SendPacket(protocol.Ping{})
	var sendErr *SendError
	if !errors.As(err, &sendErr) || !errors.Is(err, ErrNoPeer) {
		t.Fatalf("expected SendError wrapping ErrNoPeer, got %v", err)
	}
	if sendErr.Kind != protocol.KindPing {
		t.Errorf("expected kind ping, got %s", sendErr.Kind)
	}

	mock.FailSends(nil)
	if err := <-mock.SendPacket(protocol.Ping{}); err != nil {
		t.Errorf("expected send to succeed, got %v", err)
	}
}

func TestMockTransport_RegisterUnregister(t *testing.T) {
	mock := NewMockTransport()

	count := 0
	h := mock.Register(bus.All, func(protocol.Packet) { count++ })
	mock.Simulate(protocol.Ping{})
	mock.Unregister(h)
	mock.Simulate(protocol.Ping{})

	if count != 1 {
		t.Errorf("expected 1 delivery, got %d", count)
	}
	if mock.Listeners() != 0 {
		t.Errorf("expected no listeners, got %d", mock.Listeners())
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Port != 9000 {
		t.Errorf("expected Port 9000, got %d", cfg.Port)
	}
	if cfg.KeepAliveTimeout != 5*time.Second {
		t.Errorf("expected KeepAliveTimeout 5s, got %s", cfg.KeepAliveTimeout)
	}
	if cfg.KickReason != DefaultKickReason {
		t.Errorf("expected kick reason %q, got %q", DefaultKickReason, cfg.KickReason)
	}
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{Port: 1234}.withDefaults()

	if cfg.Port != 1234 {
		t.Errorf("expected Port 1234, got %d", cfg.Port)
	}
	if cfg.WriteQueueSize != DefaultConfig().WriteQueueSize {
		t.Errorf("expected default WriteQueueSize, got %d", cfg.WriteQueueSize)
	}
	if cfg.KickReason != DefaultKickReason {
		t.Errorf("expected default kick reason, got %q", cfg.KickReason)
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateUnbound:       "unbound",
		StateBinding:       "binding",
		StateListening:     "listening",
		StateConnected:     "connected",
		StateDisconnecting: "disconnecting",
		State(42):          "unknown",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("expected %q, got %q", want, s.String())
		}
	}
}

func TestErrorsMatchSentinels(t *testing.T) {
	bindErr := &BindError{Port: 9000, Err: errors.New("address in use")}
	if !errors.Is(bindErr, ErrBind) {
		t.Error("expected BindError to match ErrBind")
	}

	idle := &IdleTimeoutError{Remote: "127.0.0.1:1", Timeout: time.Second}
	if !errors.Is(idle, ErrIdleTimeout) {
		t.Error("expected IdleTimeoutError to match ErrIdleTimeout")
	}
}
