package game

import (
	"math"
	"testing"

	"github.com/LemmyAI/puckserver/internal/protocol"
	"github.com/LemmyAI/puckserver/internal/transport"
)

func approx(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-4
}

func TestPuckTickMovesAndSlowsDown(t *testing.T) {
	puck := NewPuck(transport.NewMockTransport(), DefaultConfig(), protocol.PuckPosition{
		PosX: 100, PosY: 100, MotionX: 3, MotionY: 4,
	})

	puck.Tick()
	pos := puck.Position()

	if !approx(pos.PosX, 103) || !approx(pos.PosY, 104) {
		t.Errorf("expected (103, 104), got (%v, %v)", pos.PosX, pos.PosY)
	}
	// speed 5 minus friction 0.1, same direction
	if !approx(pos.MotionX, 3*4.9/5) || !approx(pos.MotionY, 4*4.9/5) {
		t.Errorf("expected motion scaled to 4.9, got (%v, %v)", pos.MotionX, pos.MotionY)
	}
}

func TestPuckMotionCap(t *testing.T) {
	puck := NewPuck(transport.NewMockTransport(), DefaultConfig(), protocol.PuckPosition{
		PosX: 100, PosY: 300, MotionX: 60,
	})

	puck.Tick()
	pos := puck.Position()

	if !approx(pos.PosX, 100+MotionCap) {
		t.Errorf("expected capped move to %v, got %v", 100+MotionCap, pos.PosX)
	}
	if !approx(pos.MotionX, MotionCap-MotionStep) {
		t.Errorf("expected motion %v, got %v", MotionCap-MotionStep, pos.MotionX)
	}
}

func TestPuckComesToRest(t *testing.T) {
	puck := NewPuck(transport.NewMockTransport(), DefaultConfig(), protocol.PuckPosition{
		PosX: 400, PosY: 300, MotionX: 0.25,
	})

	for i := 0; i < 5; i++ {
		puck.Tick()
	}

	pos := puck.Position()
	if pos.MotionX != 0 || pos.MotionY != 0 {
		t.Errorf("expected puck at rest, got motion (%v, %v)", pos.MotionX, pos.MotionY)
	}
}

func TestPuckClampedToTable(t *testing.T) {
	config := DefaultConfig()
	tests := []struct {
		name    string
		start   protocol.PuckPosition
		expectY float32
	}{
		{"top wall", protocol.PuckPosition{PosY: 20, MotionY: -10}, config.PuckRadius},
		{"bottom wall", protocol.PuckPosition{PosY: 580, MotionY: 10}, config.TableHeight - config.PuckRadius},
		{"inside", protocol.PuckPosition{PosY: 300, MotionY: 10}, 310},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			puck := NewPuck(transport.NewMockTransport(), config, tt.start)
			puck.Tick()
			if got := puck.Position().PosY; !approx(got, tt.expectY) {
				t.Errorf("expected PosY %v, got %v", tt.expectY, got)
			}
		})
	}
}

func TestPuckFollowsPeerUpdates(t *testing.T) {
	mock := transport.NewMockTransport()
	puck := NewPuck(mock, DefaultConfig(), protocol.PuckPosition{})

	update := protocol.PuckPosition{PosX: 1, PosY: 2, MotionX: 3, MotionY: 4}
	mock.Simulate(update)

	if got := puck.Position(); got != update {
		t.Errorf("expected %+v, got %+v", update, got)
	}

	puck.Close()
	mock.Simulate(protocol.PuckPosition{PosX: 9})
	if got := puck.Position(); got != update {
		t.Errorf("expected closed puck to ignore updates, got %+v", got)
	}
}
