package game

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/LemmyAI/puckserver/internal/protocol"
	"github.com/LemmyAI/puckserver/internal/transport"
)

func TestEngineStartStop(t *testing.T) {
	mock := transport.NewMockTransport()
	engine := NewEngine(DefaultConfig(), mock, zaptest.NewLogger(t))

	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond) // Let it tick a few times
	if err := engine.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := engine.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}

	if tick := engine.CurrentTick(); tick < 1 {
		t.Errorf("expected at least 1 tick, got %d", tick)
	}
	if len(mock.SentPackets()) == 0 {
		t.Error("expected at least one position update")
	}
}

func TestEngineSendsPuckPosition(t *testing.T) {
	mock := transport.NewMockTransport()
	engine := NewEngine(DefaultConfig(), mock, nil)

	engine.Puck().Reset(protocol.PuckPosition{PosX: 100, PosY: 100, MotionX: 5})
	engine.step()
	engine.sendState()

	sent := mock.SentPackets()
	if len(sent) != 1 {
		t.Fatalf("expected 1 sent packet, got %d", len(sent))
	}
	pos, ok := sent[0].(protocol.PuckPosition)
	if !ok {
		t.Fatalf("expected PuckPosition, got %T", sent[0])
	}
	if pos.PosX != 105 {
		t.Errorf("expected PosX 105, got %v", pos.PosX)
	}
}

func TestEngineSkipsUnchangedPosition(t *testing.T) {
	mock := transport.NewMockTransport()
	config := DefaultConfig()
	config.FullSync = 3
	engine := NewEngine(config, mock, nil)

	for i := 0; i < 7; i++ {
		engine.sendState()
	}

	// the first update, then one forced every third call
	if got := len(mock.SentPackets()); got != 3 {
		t.Errorf("expected 3 updates for a resting puck, got %d", got)
	}
}

func TestEngineCountsSendFailures(t *testing.T) {
	mock := transport.NewMockTransport()
	mock.FailSends(transport.ErrNoPeer)
	engine := NewEngine(DefaultConfig(), mock, nil)

	engine.sendState()
	engine.sendState()

	if got := engine.Stats()["send_failures"]; got != uint64(2) {
		t.Errorf("expected 2 send failures, got %v", got)
	}
	if len(mock.SentPackets()) != 0 {
		t.Error("expected nothing sent")
	}
}

// heldTransport keeps every send pending until the test resolves it.
type heldTransport struct {
	*transport.MockTransport
	held []chan error
}

func (h *heldTransport) SendPacket(p protocol.Packet) <-chan error {
	done := make(chan error, 1)
	h.held = append(h.held, done)
	return done
}

func TestEngineCountsLateSendFailures(t *testing.T) {
	held := &heldTransport{MockTransport: transport.NewMockTransport()}
	config := DefaultConfig()
	config.FullSync = 3
	engine := NewEngine(config, held, nil)

	engine.sendState()
	if got := engine.Stats()["updates_sent"]; got != uint64(0) {
		t.Errorf("expected no confirmed updates yet, got %v", got)
	}

	held.held[0] <- transport.ErrConnClosed
	engine.sendState()

	if got := engine.Stats()["send_failures"]; got != uint64(1) {
		t.Errorf("expected 1 send failure, got %v", got)
	}
	if len(held.held) != 2 {
		t.Fatalf("expected the failed position to be resent, got %d sends", len(held.held))
	}

	held.held[1] <- nil
	engine.sendState()

	if got := engine.Stats()["updates_sent"]; got != uint64(1) {
		t.Errorf("expected 1 confirmed update, got %v", got)
	}
	if len(held.held) != 2 {
		t.Errorf("expected unchanged position to be skipped, got %d sends", len(held.held))
	}
}

func TestEngineStopsSendingAfterDisconnect(t *testing.T) {
	mock := transport.NewMockTransport()
	engine := NewEngine(DefaultConfig(), mock, nil)

	mock.Simulate(protocol.Disconnect{})
	engine.sendState()

	if len(mock.SentPackets()) != 0 {
		t.Error("expected no updates after the peer left")
	}
}

func TestEngineClose(t *testing.T) {
	mock := transport.NewMockTransport()
	engine := NewEngine(DefaultConfig(), mock, nil)

	if mock.Listeners() == 0 {
		t.Fatal("expected engine listeners")
	}
	engine.Close()
	if mock.Listeners() != 0 {
		t.Errorf("expected no listeners after Close, got %d", mock.Listeners())
	}
}

func BenchmarkEngineStep(b *testing.B) {
	engine := NewEngine(DefaultConfig(), transport.NewMockTransport(), nil)
	engine.Puck().Reset(protocol.PuckPosition{PosX: 400, PosY: 300, MotionX: 20, MotionY: 20})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		engine.step()
	}
}
