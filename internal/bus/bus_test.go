package bus

import (
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/LemmyAI/puckserver/internal/protocol"
)

func TestPostPreservesOrder(t *testing.T) {
	b := New()

	var got []protocol.Packet
	b.Register(All, func(p protocol.Packet) {
		got = append(got, p)
	})

	first := protocol.Kick{Reason: "a"}
	second := protocol.PuckPosition{PosX: 1}
	third := protocol.Kick{Reason: "c"}
	for _, p := range []protocol.Packet{first, second, third} {
		if ret := b.Post(p); ret != p {
			t.Errorf("expected Post to return %v, got %v", p, ret)
		}
	}

	if len(got) != 3 || got[0] != first || got[1] != second || got[2] != third {
		t.Errorf("expected A, B, C in order, got %v", got)
	}
}

func TestRegistrationOrderAndKindFilter(t *testing.T) {
	b := New()

	var calls []string
	b.Register(protocol.KindKick, func(protocol.Packet) { calls = append(calls, "kick-1") })
	b.Register(All, func(protocol.Packet) { calls = append(calls, "all") })
	b.Register(protocol.KindPuckPosition, func(protocol.Packet) { calls = append(calls, "puck") })
	b.Register(protocol.KindKick, func(protocol.Packet) { calls = append(calls, "kick-2") })

	b.Post(protocol.Kick{})

	want := []string{"kick-1", "all", "kick-2"}
	if len(calls) != len(want) {
		t.Fatalf("expected %v, got %v", want, calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d: expected %s, got %s", i, want[i], calls[i])
		}
	}
}

func TestUnregister(t *testing.T) {
	b := New()

	count := 0
	h := b.Register(All, func(protocol.Packet) { count++ })
	if h == 0 {
		t.Fatal("expected non-zero handle")
	}

	b.Post(protocol.Ping{})
	if !b.Unregister(h) {
		t.Fatal("expected Unregister to succeed")
	}
	if b.Unregister(h) {
		t.Error("expected second Unregister to report false")
	}
	b.Post(protocol.Ping{})

	if count != 1 {
		t.Errorf("expected 1 delivery, got %d", count)
	}
	if b.Len() != 0 {
		t.Errorf("expected no registrations, got %d", b.Len())
	}
}

func TestListenerRemovedDuringPostIsSkipped(t *testing.T) {
	b := New()

	var second Handle
	secondCalled := false
	b.Register(All, func(protocol.Packet) {
		b.Unregister(second)
	})
	second = b.Register(All, func(protocol.Packet) {
		secondCalled = true
	})

	b.Post(protocol.Ping{})

	if secondCalled {
		t.Error("expected removed listener to be skipped")
	}
}

func TestListenerPanicIsRecovered(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	b := New(WithLogger(zap.New(core)))

	after := false
	b.Register(All, func(protocol.Packet) { panic("boom") })
	b.Register(All, func(protocol.Packet) { after = true })

	b.Post(protocol.Ping{})

	if !after {
		t.Error("expected later listener to run after a panic")
	}
	if logs.FilterMessage("listener panicked").Len() != 1 {
		t.Errorf("expected one panic log entry, got %d", logs.Len())
	}
}

func TestOnTyped(t *testing.T) {
	b := New()

	var got protocol.PuckPosition
	On(b, func(p protocol.PuckPosition) { got = p })

	b.Post(protocol.Kick{})
	b.Post(protocol.PuckPosition{PosX: 4, PosY: 2})

	if got.PosX != 4 || got.PosY != 2 {
		t.Errorf("expected puck at (4, 2), got %+v", got)
	}
}

func TestScopeClose(t *testing.T) {
	b := New()
	scope := NewScope(b)

	count := 0
	scope.Register(All, func(protocol.Packet) { count++ })
	On(scope, func(protocol.Kick) { count++ })
	b.Register(All, func(protocol.Packet) {})

	if scope.Len() != 2 || b.Len() != 3 {
		t.Fatalf("expected 2 scoped of 3 registrations, got %d of %d", scope.Len(), b.Len())
	}

	b.Post(protocol.Kick{})
	scope.Close()
	scope.Close()
	b.Post(protocol.Kick{})

	if count != 2 {
		t.Errorf("expected 2 deliveries before Close, got %d", count)
	}
	if b.Len() != 1 {
		t.Errorf("expected only the unscoped listener left, got %d", b.Len())
	}
	if h := scope.Register(All, func(protocol.Packet) {}); h != 0 {
		t.Error("expected closed scope to refuse registrations")
	}
}

func TestScopeUnregisterForeignHandle(t *testing.T) {
	b := New()
	scope := NewScope(b)

	h := b.Register(All, func(protocol.Packet) {})
	if scope.Unregister(h) {
		t.Error("expected scope to refuse a handle it does not own")
	}
	if b.Len() != 1 {
		t.Error("expected foreign registration to survive")
	}
}

func TestConcurrentRegisterAndPost(t *testing.T) {
	b := New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				h := b.Register(All, func(protocol.Packet) {})
				b.Post(protocol.Ping{})
				b.Unregister(h)
			}
		}()
	}
	wg.Wait()

	if b.Len() != 0 {
		t.Errorf("expected empty bus, got %d registrations", b.Len())
	}
}
