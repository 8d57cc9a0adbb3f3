package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.events...)
}

type fakeService struct {
	name     string
	rec      *recorder
	startErr error
	stopErr  error
	stops    atomic.Int32
}

func (s *fakeService) Start(ctx context.Context) error {
	s.rec.add("start " + s.name)
	return s.startErr
}

func (s *fakeService) Stop(ctx context.Context) error {
	s.stops.Add(1)
	s.rec.add("stop " + s.name)
	return s.stopErr
}

// blockingService blocks in Start until it is stopped, like a server
// waiting for its first peer.
type blockingService struct {
	stopped chan struct{}
	once    sync.Once
}

func (s *blockingService) Start(ctx context.Context) error {
	select {
	case <-s.stopped:
		return errors.New("stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *blockingService) Stop(ctx context.Context) error {
	s.once.Do(func() { close(s.stopped) })
	return nil
}

func expectEvents(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestCoordinator_StartStopOrder(t *testing.T) {
	rec := &recorder{}
	c := New(WithLogger(zaptest.NewLogger(t)))
	for _, name := range []string{"a", "b", "c"} {
		c.Register(name, &fakeService{name: name, rec: rec})
	}

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	expectEvents(t, rec.get(), []string{"start a", "start b", "start c", "stop c", "stop b", "stop a"})
}

func TestCoordinator_StopIsIdempotent(t *testing.T) {
	rec := &recorder{}
	svc := &fakeService{name: "a", rec: rec}
	c := New()
	c.Register("a", svc)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Stop(context.Background())
		}()
	}
	wg.Wait()

	if got := svc.stops.Load(); got != 1 {
		t.Errorf("expected 1 stop, got %d", got)
	}
	select {
	case <-c.Done():
	default:
		t.Error("expected Done to be closed")
	}
}

func TestCoordinator_StartFailureStopsStarted(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")
	c := New(WithLogger(zaptest.NewLogger(t)))
	c.Register("a", &fakeService{name: "a", rec: rec})
	c.Register("b", &fakeService{name: "b", rec: rec, startErr: boom})
	c.Register("c", &fakeService{name: "c", rec: rec})

	err := c.Start(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	expectEvents(t, rec.get(), []string{"start a", "start b", "stop b", "stop a"})
	if !c.Stopping() {
		t.Error("expected coordinator to be stopping")
	}
}

func TestCoordinator_StopCollectsErrors(t *testing.T) {
	rec := &recorder{}
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	c := New()
	c.Register("a", &fakeService{name: "a", rec: rec, stopErr: errA})
	c.Register("b", &fakeService{name: "b", rec: rec, stopErr: errB})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	err := c.Stop(context.Background())
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("expected both errors, got %v", err)
	}
	if !errors.Is(c.Err(), errA) {
		t.Errorf("expected Err to keep the stop error, got %v", c.Err())
	}
	expectEvents(t, rec.get(), []string{"start a", "start b", "stop b", "stop a"})
}

func TestCoordinator_StopReachesBlockedStart(t *testing.T) {
	rec := &recorder{}
	c := New(WithLogger(zaptest.NewLogger(t)))
	c.Register("a", &fakeService{name: "a", rec: rec})
	c.Register("server", &blockingService{stopped: make(chan struct{})})
	c.Register("c", &fakeService{name: "c", rec: rec})

	errc := make(chan error, 1)
	go func() {
		errc <- c.Start(context.Background())
	}()

	time.Sleep(20 * time.Millisecond)
	c.StopAsync()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrStopped) {
			t.Errorf("expected ErrStopped, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Start")
	}

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Done")
	}
	expectEvents(t, rec.get(), []string{"start a", "stop a"})
}

func TestCoordinator_StopBeforeStart(t *testing.T) {
	rec := &recorder{}
	c := New()
	c.Register("a", &fakeService{name: "a", rec: rec})

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := c.Start(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
	if len(rec.get()) != 0 {
		t.Errorf("expected no events, got %v", rec.get())
	}
}

func TestCoordinator_StopWaitRespectsContext(t *testing.T) {
	c := New()
	release := make(chan struct{})
	c.Register("slow", stopFunc(func(ctx context.Context) error {
		<-release
		return nil
	}))
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	go c.Stop(context.Background())
	for !c.Stopping() {
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	close(release)
	<-c.Done()
}

type stopFunc func(ctx context.Context) error

func (f stopFunc) Start(ctx context.Context) error { return nil }
func (f stopFunc) Stop(ctx context.Context) error  { return f(ctx) }
