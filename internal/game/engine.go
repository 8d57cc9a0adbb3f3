package game

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/LemmyAI/puckserver/internal/bus"
	"github.com/LemmyAI/puckserver/internal/protocol"
	"github.com/LemmyAI/puckserver/internal/transport"
)

// Engine runs the game tick loop and streams the puck position to the peer.
type Engine struct {
	config    Config
	transport transport.Transport
	puck      *Puck
	scope     *bus.Scope
	log       *zap.Logger

	tickRate     time.Duration
	sendInterval time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	tick         atomic.Uint64
	sent         atomic.Uint64
	sendFailures atomic.Uint64
	peerLeft     atomic.Bool

	// touched only by the tick loop
	lastSent  protocol.PuckPosition
	sinceFull int
	inflight  []<-chan error
}

// NewEngine creates a new game engine. The puck starts at the center of the
// table.
func NewEngine(config Config, t transport.Transport, log *zap.Logger) *Engine {
	config = config.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}

	e := &Engine{
		config:       config,
		transport:    t,
		scope:        bus.NewScope(t),
		log:          log.Named("game"),
		tickRate:     time.Second / time.Duration(config.TickRate),
		sendInterval: time.Second / time.Duration(config.SendRate),
	}
	e.puck = NewPuck(t, config, protocol.PuckPosition{
		PosX: config.TableWidth / 2,
		PosY: config.TableHeight / 2,
	})

	bus.On(e.scope, func(protocol.Disconnect) {
		e.peerLeft.Store(true)
		e.log.Info("peer left the game")
	})
	bus.On(e.scope, func(k protocol.Kick) {
		e.log.Warn("kicked by peer", zap.String("reason", k.Reason))
	})
	return e
}

// Start begins the tick loop. Calling Start on a running engine does
// nothing.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.wg.Add(1)
	go e.tickLoop(e.stopCh)

	e.log.Info("engine started",
		zap.Int("tick_rate", e.config.TickRate),
		zap.Duration("tick_interval", e.tickRate),
		zap.Duration("send_interval", e.sendInterval))
	return nil
}

// Stop stops the tick loop. It is safe to call more than once.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	close(e.stopCh)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	e.log.Info("engine stopped", zap.Uint64("ticks", e.tick.Load()))
	return nil
}

// Close drops the engine's listeners. The engine must be stopped.
func (e *Engine) Close() {
	e.puck.Close()
	e.scope.Close()
}

// tickLoop runs at the configured tick rate.
func (e *Engine) tickLoop(stopCh <-chan struct{}) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.tickRate)
	defer ticker.Stop()

	lastSend := time.Now()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			e.step()

			if time.Since(lastSend) >= e.sendInterval {
				e.sendState()
				lastSend = time.Now()
			}
		}
	}
}

// step processes one game tick.
func (e *Engine) step() {
	e.tick.Add(1)
	e.puck.Tick()
}

// sendState sends the puck position when it changed since the last update,
// and at least every FullSync updates.
func (e *Engine) sendState() {
	e.settle()
	if e.peerLeft.Load() {
		return
	}

	pos := e.puck.Position()
	e.sinceFull++
	if pos == e.lastSent && e.sinceFull < e.config.FullSync {
		return
	}

	e.inflight = append(e.inflight, e.transport.SendPacket(pos))
	e.lastSent = pos
	e.sinceFull = 0
	e.settle()
}

// settle collects the results of updates that completed, oldest first. A
// failed update forces the next one out even if the puck has not moved.
func (e *Engine) settle() {
	for len(e.inflight) > 0 {
		select {
		case err := <-e.inflight[0]:
			e.inflight = e.inflight[1:]
			if err != nil {
				e.sendFailures.Add(1)
				e.sinceFull = e.config.FullSync
				e.log.Debug("send position failed", zap.Error(err))
				continue
			}
			e.sent.Add(1)
		default:
			return
		}
	}
}

// Puck returns the puck entity.
func (e *Engine) Puck() *Puck {
	return e.puck
}

// CurrentTick returns the current game tick.
func (e *Engine) CurrentTick() uint64 {
	return e.tick.Load()
}

// Stats returns counters for the status endpoint.
func (e *Engine) Stats() map[string]any {
	return map[string]any{
		"tick":          e.tick.Load(),
		"updates_sent":  e.sent.Load(),
		"send_failures": e.sendFailures.Load(),
	}
}
