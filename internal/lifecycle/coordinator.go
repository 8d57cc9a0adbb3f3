// Package lifecycle starts and stops the long-lived services of a process
// in a fixed order.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/someonegg/gox/syncx"
	"go.uber.org/zap"
)

// Service is implemented by every long-lived component.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// ErrStopped is returned by Start once the coordinator is stopping.
var ErrStopped = errors.New("lifecycle: coordinator stopped")

// DefaultStopTimeout bounds the stop run triggered by StopAsync.
const DefaultStopTimeout = 10 * time.Second

type entry struct {
	name string
	svc  Service
}

// Coordinator starts services in registration order and stops them in
// reverse. The stop run happens once, whoever asks first; later calls wait
// for it.
type Coordinator struct {
	log         *zap.Logger
	stopTimeout time.Duration

	mu       sync.Mutex
	services []entry
	started  int
	stopping bool
	stopErr  error

	doneD syncx.DoneChan
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		c.log = l
	}
}

// WithStopTimeout bounds the stop run started by StopAsync.
func WithStopTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.stopTimeout = d
	}
}

// New creates an empty Coordinator.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		log:         zap.NewNop(),
		stopTimeout: DefaultStopTimeout,
		doneD:       syncx.NewDoneChan(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.Named("lifecycle")
	return c
}

// Register appends a service. Services registered after Start began are
// neither started nor stopped by the current run.
func (c *Coordinator) Register(name string, svc Service) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services = append(c.services, entry{name: name, svc: svc})
}

// Start starts every registered service in order. A service counts as
// started as soon as its Start is called, so a concurrent Stop reaches a
// service that is still blocked in Start.
//
// If a service fails, the services started so far are stopped in reverse
// and the failure is returned.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	services := append([]entry(nil), c.services...)
	c.mu.Unlock()

	for i, e := range services {
		c.mu.Lock()
		if c.stopping {
			c.mu.Unlock()
			return ErrStopped
		}
		c.started = i + 1
		c.mu.Unlock()

		c.log.Info("starting service", zap.String("service", e.name))
		if err := e.svc.Start(ctx); err != nil {
			if c.Stopping() {
				return ErrStopped
			}
			c.log.Error("service failed to start", zap.String("service", e.name), zap.Error(err))
			err = fmt.Errorf("lifecycle: start %s: %w", e.name, err)
			if stopErr := c.Stop(ctx); stopErr != nil {
				return errors.Join(err, stopErr)
			}
			return err
		}
	}
	return nil
}

// Stop stops the started services in reverse registration order and
// returns their joined errors. Only the first call runs the services' Stop;
// the others wait for it or for ctx.
//
// A service must not call Stop from its own Stop; use StopAsync instead.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.stopping {
		c.mu.Unlock()
		select {
		case <-c.doneD:
			return c.Err()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.stopping = true
	services := append([]entry(nil), c.services[:c.started]...)
	c.mu.Unlock()

	var errs []error
	for i := len(services) - 1; i >= 0; i-- {
		e := services[i]
		c.log.Info("stopping service", zap.String("service", e.name))
		if err := e.svc.Stop(ctx); err != nil {
			c.log.Error("service failed to stop", zap.String("service", e.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("lifecycle: stop %s: %w", e.name, err))
		}
	}
	err := errors.Join(errs...)

	c.mu.Lock()
	c.stopErr = err
	c.mu.Unlock()

	c.log.Info("all services stopped")
	c.doneD.SetDone()
	return err
}

// StopAsync runs Stop on a new goroutine, bounded by the stop timeout.
func (c *Coordinator) StopAsync() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.stopTimeout)
		defer cancel()
		_ = c.Stop(ctx)
	}()
}

// Stopping reports whether a stop run has begun.
func (c *Coordinator) Stopping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopping
}

// Done is closed when the stop run completes.
func (c *Coordinator) Done() syncx.DoneChanR {
	return c.doneD.R()
}

// Err returns the stop run's error once Done is closed.
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopErr
}
