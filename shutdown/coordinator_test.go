package shutdown

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// --- Unit Tests ---

func TestPhasesRunInOrder(t *testing.T) {
	c := NewCoordinator(DefaultConfig())

	var mu sync.Mutex
	var order []string
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}
	c.RegisterFunc("telemetry", PhaseTelemetry, record("telemetry"))
	c.RegisterFunc("listener", PhaseListener, record("listener"))
	c.RegisterFunc("bus", PhaseBackends, record("bus"))
	c.RegisterFunc("matches", PhaseMatches, record("matches"))

	if err := c.ShutdownWithTimeout(time.Second); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	want := []string{"listener", "matches", "bus", "telemetry"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	select {
	case <-c.Done():
	default:
		t.Error("Done not closed")
	}
	if r := c.Result(); r == nil || len(r.Handlers) != 4 {
		t.Errorf("result = %+v", r)
	}
}

func TestSamePhaseRunsConcurrently(t *testing.T) {
	c := NewCoordinator(DefaultConfig())
	var running, peak int32
	h := func(context.Context) error {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil
	}
	c.RegisterFunc("bus", PhaseBackends, h)
	c.RegisterFunc("store", PhaseBackends, h)

	if err := c.ShutdownWithTimeout(time.Second); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if peak != 2 {
		t.Errorf("peak concurrency = %d, want 2", peak)
	}
}

func TestFailuresAreJoinedAndLaterPhasesRun(t *testing.T) {
	c := NewCoordinator(DefaultConfig())
	boom := errors.New("boom")
	ran := false
	c.RegisterFunc("bus", PhaseBackends, func(context.Context) error { return boom })
	c.Register("telemetry", PhaseTelemetry, Closer(func() error {
		ran = true
		return nil
	}))

	err := c.ShutdownWithTimeout(time.Second)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if !ran {
		t.Error("later phase skipped after failure")
	}
	if failed := c.Result().Failed(); len(failed) != 1 || failed[0] != "bus" {
		t.Errorf("failed = %v", failed)
	}
}

func TestTimeoutSkipsRemainingPhases(t *testing.T) {
	c := NewCoordinator(DefaultConfig())
	late := false
	c.RegisterFunc("listener", PhaseListener, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	c.RegisterFunc("matches", PhaseMatches, func(context.Context) error {
		late = true
		return nil
	})

	err := c.ShutdownWithTimeout(20 * time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", err)
	}
	if late {
		t.Error("phase ran after the deadline")
	}
}

func TestSecondShutdownWaitsForFirst(t *testing.T) {
	c := NewCoordinator(DefaultConfig())
	release := make(chan struct{})
	c.RegisterFunc("slow", PhaseMatches, func(context.Context) error {
		<-release
		return nil
	})

	go c.ShutdownWithTimeout(time.Second)
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := c.Shutdown(ctx); !errors.Is(err, ErrAlreadyShutdown) {
		t.Errorf("concurrent Shutdown = %v, want ErrAlreadyShutdown", err)
	}

	close(release)
	<-c.Done()
	if err := c.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown after done = %v", err)
	}
}
