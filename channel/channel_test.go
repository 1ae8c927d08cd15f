package channel

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	gerrors "github.com/vinayprograms/taskparty/errors"
	"github.com/vinayprograms/taskparty/transport"
)

// newPair returns two running channels connected by an in-memory pipe.
func newPair(t *testing.T) (*Channel, *Channel) {
	t.Helper()
	a, b := transport.NewPipe(transport.DefaultConfig())
	server := New(a, WithID("server"))
	client := New(b, WithID("client"))

	ctx, cancel := context.WithCancel(context.Background())
	go server.Run(ctx)
	go client.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-server.Done()
		<-client.Done()
	})
	return server, client
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for %s", what)
	}
}

// --- Unit Tests ---

func TestEmitOn(t *testing.T) {
	server, client := newPair(t)

	got := make(chan int, 2)
	client.On("tick", func(payload json.RawMessage) {
		var v struct{ N int }
		json.Unmarshal(payload, &v)
		got <- v.N
	})

	server.Emit("tick", map[string]int{"n": 1})
	server.Emit("tick", map[string]int{"n": 2})

	for want := 1; want <= 2; want++ {
		select {
		case n := <-got:
			if n != want {
				t.Errorf("got %d, want %d", n, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timeout")
		}
	}
}

func TestOnceFiresOnlyOnce(t *testing.T) {
	server, client := newPair(t)

	var mu sync.Mutex
	count := 0
	all := make(chan struct{}, 3)
	client.Once("ping", func(json.RawMessage) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	client.On("ping", func(json.RawMessage) { all <- struct{}{} })

	for i := 0; i < 3; i++ {
		server.Emit("ping", nil)
	}
	for i := 0; i < 3; i++ {
		select {
		case <-all:
		case <-time.After(2 * time.Second):
			t.Fatal("timeout")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("once handler fired %d times, want 1", count)
	}
}

func TestOnceQueueIsFIFO(t *testing.T) {
	server, client := newPair(t)

	order := make(chan string, 2)
	client.Once("go", func(json.RawMessage) { order <- "first" })
	client.Once("go", func(json.RawMessage) { order <- "second" })

	server.Emit("go", nil)
	server.Emit("go", nil)

	for _, want := range []string{"first", "second"} {
		select {
		case got := <-order:
			if got != want {
				t.Errorf("got %s, want %s", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timeout")
		}
	}
}

func TestOnceRearmFromHandler(t *testing.T) {
	server, client := newPair(t)

	fired := make(chan int, 2)
	var handler Handler
	n := 0
	handler = func(json.RawMessage) {
		n++
		fired <- n
		if n == 1 {
			client.Once("step", handler)
		}
	}
	client.Once("step", handler)

	server.Emit("step", nil)
	server.Emit("step", nil)

	for want := 1; want <= 2; want++ {
		select {
		case got := <-fired:
			if got != want {
				t.Errorf("got %d, want %d", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("re-armed handler did not fire")
		}
	}
}

func TestSubscriptionCancel(t *testing.T) {
	server, client := newPair(t)

	cancelled := client.Once("evt", func(json.RawMessage) {
		t.Error("cancelled handler fired")
	})
	if !cancelled.Cancel() {
		t.Error("Cancel should report the handler was registered")
	}
	if cancelled.Cancel() {
		t.Error("second Cancel should report false")
	}

	done := make(chan struct{})
	client.Once("evt", func(json.RawMessage) { close(done) })
	server.Emit("evt", nil)
	waitFor(t, done, "remaining handler")
}

func TestEmitWithAck(t *testing.T) {
	server, client := newPair(t)

	client.Handle("doTask", func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		var p struct {
			TaskID string `json:"taskId"`
		}
		json.Unmarshal(params, &p)
		return map[string]interface{}{"started": p.TaskID == "wires"}, nil
	})

	done := make(chan struct{})
	err := server.EmitWithAck("doTask", map[string]string{"taskId": "wires"}, func(result json.RawMessage, err error) {
		defer close(done)
		if err != nil {
			t.Errorf("ack error: %v", err)
			return
		}
		var r struct{ Started bool }
		json.Unmarshal(result, &r)
		if !r.Started {
			t.Errorf("result = %s, want started", result)
		}
	})
	if err != nil {
		t.Fatalf("EmitWithAck: %v", err)
	}
	waitFor(t, done, "ack")
}

func TestRequestCarriesGameError(t *testing.T) {
	server, client := newPair(t)

	server.Handle("requestTask", func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		return nil, gerrors.TaskAlreadyCompleted("p1", "wires")
	})

	err := client.Request(context.Background(), "requestTask", map[string]string{"taskId": "wires"}, nil)
	if !gerrors.Is(err, gerrors.ErrCodeTaskCompleted) {
		t.Fatalf("err = %v, want TASK_ALREADY_COMPLETED", err)
	}
	if ge := gerrors.AsGameError(err); ge == nil || ge.TaskID() != "wires" {
		t.Errorf("task id not carried: %v", err)
	}
}

func TestRequestUnknownMethod(t *testing.T) {
	_, client := newPair(t)

	err := client.Request(context.Background(), "nope", nil, nil)
	rpcErr, ok := err.(*transport.Error)
	if !ok || rpcErr.Code != transport.MethodNotFound {
		t.Fatalf("err = %v, want method not found", err)
	}
}

func TestRequestContextTimeout(t *testing.T) {
	server, client := newPair(t)

	release := make(chan struct{})
	client.Handle("slow", func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		<-release
		return true, nil
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := server.Request(ctx, "slow", nil, nil)
	if !gerrors.Is(err, gerrors.ErrCodeTimeout) {
		t.Errorf("err = %v, want TIMEOUT", err)
	}
}

func TestDisconnectDropsPendingAcks(t *testing.T) {
	a, b := transport.NewPipe(transport.DefaultConfig())
	server := New(a)
	client := New(b)

	ctx := context.Background()
	go server.Run(ctx)
	go client.Run(ctx)

	acked := make(chan struct{}, 1)
	closed := make(chan struct{})
	server.OnClose(func(error) { close(closed) })

	// The peer drops the connection before answering.
	client.Handle("doTask", func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		client.Close()
		return true, nil
	})
	server.EmitWithAck("doTask", nil, func(json.RawMessage, error) { acked <- struct{}{} })

	waitFor(t, closed, "close callback")

	select {
	case <-acked:
		t.Error("ack must not be called after disconnect")
	case <-time.After(100 * time.Millisecond):
	}

	if err := server.Emit("late", nil); err != ErrClosed {
		t.Errorf("Emit after close = %v, want ErrClosed", err)
	}
}

func TestOnCloseAfterClose(t *testing.T) {
	server, client := newPair(t)
	client.Close()
	waitFor(t, server.Done(), "server done")

	called := false
	server.OnClose(func(error) { called = true })
	if !called {
		t.Error("OnClose on a closed channel should run immediately")
	}
}

func TestHandlerPanicKeepsChannel(t *testing.T) {
	server, client := newPair(t)

	client.Once("boom", func(json.RawMessage) { panic("bad handler") })
	done := make(chan struct{})
	client.Once("after", func(json.RawMessage) { close(done) })

	server.Emit("boom", nil)
	server.Emit("after", nil)
	waitFor(t, done, "event after panic")
}
