// Package bus routes decoded packets to the consumers that registered for
// them. Delivery is synchronous, on the goroutine that calls Post, in
// registration order.
package bus

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/LemmyAI/puckserver/internal/protocol"
)

// All registers a listener for every packet kind.
const All protocol.Kind = "*"

// Listener receives one packet.
type Listener func(p protocol.Packet)

// Handle identifies a registration. The zero Handle is never issued.
type Handle uint64

// Registrar is the registration half of a Bus.
type Registrar interface {
	Register(kind protocol.Kind, fn Listener) Handle
	Unregister(h Handle) bool
}

type registration struct {
	handle  Handle
	kind    protocol.Kind
	fn      Listener
	removed atomic.Bool
}

// Bus is a publish/subscribe router for packets.
//
// The listener set is copy-on-write: Post reads a snapshot without locking,
// writers serialize on mu. A listener unregistered while a Post is running is
// skipped by that Post if it has not been reached yet.
type Bus struct {
	mu   sync.Mutex
	regs atomic.Pointer[[]*registration]
	next Handle
	log  *zap.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used to report listener panics.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bus) {
		b.log = l
	}
}

// New creates an empty Bus.
func New(opts ...Option) *Bus {
	b := &Bus{log: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.Named("bus")
	b.regs.Store(&[]*registration{})
	return b
}

// Register adds fn for packets of kind, or for every packet when kind is All.
func (b *Bus) Register(kind protocol.Kind, fn Listener) Handle {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	reg := &registration{handle: b.next, kind: kind, fn: fn}

	old := *b.regs.Load()
	regs := make([]*registration, len(old), len(old)+1)
	copy(regs, old)
	regs = append(regs, reg)
	b.regs.Store(&regs)

	return reg.handle
}

// Unregister removes a registration. It reports false if h was not
// registered.
func (b *Bus) Unregister(h Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	old := *b.regs.Load()
	for i, reg := range old {
		if reg.handle != h {
			continue
		}
		reg.removed.Store(true)

		regs := make([]*registration, 0, len(old)-1)
		regs = append(regs, old[:i]...)
		regs = append(regs, old[i+1:]...)
		b.regs.Store(&regs)
		return true
	}
	return false
}

// Post delivers p to every matching listener and returns p.
func (b *Bus) Post(p protocol.Packet) protocol.Packet {
	kind := p.Kind()
	for _, reg := range *b.regs.Load() {
		if reg.kind != All && reg.kind != kind {
			continue
		}
		if reg.removed.Load() {
			continue
		}
		b.deliver(reg, p)
	}
	return p
}

// Len returns the number of active registrations.
func (b *Bus) Len() int {
	return len(*b.regs.Load())
}

func (b *Bus) deliver(reg *registration, p protocol.Packet) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("listener panicked",
				zap.Uint64("handle", uint64(reg.handle)),
				zap.String("kind", string(p.Kind())),
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()
	reg.fn(p)
}

// On registers fn for the kind reported by T's zero value. T must be a
// concrete packet type such as protocol.PuckPosition.
func On[T protocol.Packet](r Registrar, fn func(T)) Handle {
	var zero T
	return r.Register(zero.Kind(), func(p protocol.Packet) {
		if v, ok := p.(T); ok {
			fn(v)
		}
	})
}
