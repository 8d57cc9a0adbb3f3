package transport

import (
	"context"
	"sync"

	"github.com/someonegg/gox/syncx"
)

// ShutdownSlot holds the teardown token of the last server bound through it.
// A new server waits on the token before binding, so a quick restart on the
// same port never races the previous socket's release.
//
// Servers that share a port should share a slot.
type ShutdownSlot struct {
	mu   sync.Mutex
	last syncx.DoneChan
}

// NewShutdownSlot creates an empty slot. Wait returns immediately until the
// first Publish.
func NewShutdownSlot() *ShutdownSlot {
	return &ShutdownSlot{}
}

// Wait blocks until the current token is resolved or ctx is done.
func (s *ShutdownSlot) Wait(ctx context.Context) error {
	s.mu.Lock()
	d := s.last
	s.mu.Unlock()

	if d == nil {
		return nil
	}
	select {
	case <-d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish replaces the token with a new unresolved one and returns the
// function that resolves it. The new token resolves only after resolve is
// called and every token published before it has resolved, so a server
// stopped while still waiting on its predecessor never lets a successor bind
// early.
func (s *ShutdownSlot) Publish() (resolve func()) {
	d := syncx.NewDoneChan()
	own := syncx.NewDoneChan()

	s.mu.Lock()
	prev := s.last
	s.last = d
	s.mu.Unlock()

	go func() {
		<-own
		if prev != nil {
			<-prev
		}
		d.SetDone()
	}()

	var once sync.Once
	return func() {
		once.Do(own.SetDone)
	}
}
