package game

import (
	"math"
	"sync"

	"github.com/LemmyAI/puckserver/internal/bus"
	"github.com/LemmyAI/puckserver/internal/protocol"
)

const (
	// MotionCap is the largest distance the puck travels in one tick.
	MotionCap = 30
	// MotionStep is the friction applied to the speed every tick.
	MotionStep = 0.1
)

// Puck is the puck entity. It follows PuckPosition packets from the peer
// until Close is called.
type Puck struct {
	mu      sync.Mutex
	posX    float32
	posY    float32
	motionX float32
	motionY float32

	radius float32
	height float32
	scope  *bus.Scope
}

// NewPuck creates a puck at the given position and registers it for
// position updates on r.
func NewPuck(r bus.Registrar, cfg Config, start protocol.PuckPosition) *Puck {
	cfg = cfg.withDefaults()
	p := &Puck{
		radius: cfg.PuckRadius,
		height: cfg.TableHeight,
		scope:  bus.NewScope(r),
	}
	p.Reset(start)
	bus.On(p.scope, p.onPuckPosition)
	return p
}

func (p *Puck) onPuckPosition(pkt protocol.PuckPosition) {
	p.Reset(pkt)
}

// Reset moves the puck without clamping.
func (p *Puck) Reset(pos protocol.PuckPosition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posX, p.posY = pos.PosX, pos.PosY
	p.motionX, p.motionY = pos.MotionX, pos.MotionY
}

// Tick advances the puck by one step: the speed is capped at MotionCap, the
// puck moves, then friction slows it by MotionStep.
func (p *Puck) Tick() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.motionX, p.motionY = scale(p.motionX, p.motionY, func(m float32) float32 {
		return min(m, MotionCap)
	})

	p.posX += p.motionX
	p.setPosY(p.posY + p.motionY)

	p.motionX, p.motionY = scale(p.motionX, p.motionY, func(m float32) float32 {
		return max(0, m-MotionStep)
	})
}

// setPosY keeps the puck inside the top and bottom walls.
func (p *Puck) setPosY(y float32) {
	p.posY = y
	if p.posY-p.radius < 0 {
		p.posY = p.radius
	}
	if p.posY+p.radius > p.height {
		p.posY = p.height - p.radius
	}
}

// Position returns the puck state as a packet.
func (p *Puck) Position() protocol.PuckPosition {
	p.mu.Lock()
	defer p.mu.Unlock()
	return protocol.PuckPosition{
		PosX:    p.posX,
		PosY:    p.posY,
		MotionX: p.motionX,
		MotionY: p.motionY,
	}
}

// Close stops following position updates.
func (p *Puck) Close() {
	p.scope.Close()
}

// scale rescales the motion vector to the length returned by f, keeping its
// direction.
func scale(x, y float32, f func(float32) float32) (float32, float32) {
	m := float32(math.Sqrt(float64(x*x + y*y)))
	if m == 0 {
		return x, y
	}
	n := f(m)
	return x * n / m, y * n / m
}
