package bus

import (
	"sync"

	"github.com/LemmyAI/puckserver/internal/protocol"
)

// Scope ties a group of registrations to one consumer. Closing the scope
// drops them all, so a consumer only has to call Close when it is torn down.
type Scope struct {
	r Registrar

	mu      sync.Mutex
	handles map[Handle]struct{}
	closed  bool
}

// NewScope creates a Scope registering through r.
func NewScope(r Registrar) *Scope {
	return &Scope{
		r:       r,
		handles: make(map[Handle]struct{}),
	}
}

// Register adds a listener owned by the scope. After Close it registers
// nothing and returns the zero Handle.
func (s *Scope) Register(kind protocol.Kind, fn Listener) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0
	}
	h := s.r.Register(kind, fn)
	s.handles[h] = struct{}{}
	return h
}

// Unregister removes one listener owned by the scope.
func (s *Scope) Unregister(h Handle) bool {
	s.mu.Lock()
	_, owned := s.handles[h]
	delete(s.handles, h)
	s.mu.Unlock()

	if !owned {
		return false
	}
	return s.r.Unregister(h)
}

// Close unregisters every listener of the scope. It is safe to call more
// than once.
func (s *Scope) Close() {
	s.mu.Lock()
	handles := s.handles
	s.handles = nil
	s.closed = true
	s.mu.Unlock()

	for h := range handles {
		s.r.Unregister(h)
	}
}

// Len returns the number of listeners the scope still owns.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}
