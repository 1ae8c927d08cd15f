package task

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/vinayprograms/taskparty/channel"
	"github.com/vinayprograms/taskparty/logging"
	"github.com/vinayprograms/taskparty/protocol"
	"github.com/vinayprograms/taskparty/transport"
)

type testPlayer struct {
	id string
	ch *channel.Channel
}

func (p *testPlayer) ID() string             { return p.id }
func (p *testPlayer) Events() channel.Events { return p.ch }

// device is the player's phone: the far end of the player's channel.
type device struct {
	*channel.Channel
	start chan bool // reply to doTask; blocks until the test sends one
}

// connect returns a server-side player and the device it talks to.
func connect(t *testing.T, id string) (*testPlayer, *device) {
	t.Helper()
	a, b := transport.NewPipe(transport.DefaultConfig())
	server := channel.New(a)
	client := channel.New(b)

	ctx, cancel := context.WithCancel(context.Background())
	go server.Run(ctx)
	go client.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-server.Done()
		<-client.Done()
	})

	d := &device{Channel: client, start: make(chan bool, 4)}
	client.Handle(protocol.EventDoTask, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		select {
		case ok := <-d.start:
			return protocol.DoTaskResult{Started: ok}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	return &testPlayer{id: id, ch: server}, d
}

func (d *device) finish(aborted bool) {
	d.Emit(protocol.EventTaskFinished, protocol.FinishedParams{Aborted: aborted})
}

// sync waits until the server side has dispatched everything the device
// sent so far.
func (d *device) sync(t *testing.T, p *testPlayer) {
	t.Helper()
	seen := make(chan struct{})
	p.ch.Once("sync", func(json.RawMessage) { close(seen) })
	d.Emit("sync", struct{}{})
	select {
	case <-seen:
	case <-time.After(2 * time.Second):
		t.Fatal("server never dispatched sync")
	}
}

func (d *device) confirm() {
	d.Emit(protocol.EventTaskComplete, protocol.CompleteParams{})
}

type recorder struct {
	mu        sync.Mutex
	runs      int
	finished  []bool
	completes int
	runCtx    context.Context

	// liveAtFinish records, per OnFinished call, whether Run's context
	// was still live.
	liveAtFinish []bool
}

func (r *recorder) Run(ctx context.Context, p Player) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs++
	r.runCtx = ctx
}

func (r *recorder) OnFinished(p Player, aborted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, aborted)
	r.liveAtFinish = append(r.liveAtFinish, r.runCtx != nil && r.runCtx.Err() == nil)
}

func (r *recorder) OnComplete(p Player) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completes++
}

func (r *recorder) snapshot() (runs int, finished []bool, completes int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs, append([]bool(nil), r.finished...), r.completes
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger() (*logging.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	l := logging.New()
	l.SetOutput(buf)
	l.SetLevel(logging.LevelDebug)
	return l, buf
}

func outcomes() (chan Outcome, func(Outcome)) {
	ch := make(chan Outcome, 4)
	return ch, func(o Outcome) { ch <- o }
}

func expectOutcome(t *testing.T, ch <-chan Outcome, want Outcome) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("outcome = %s, want %s", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for outcome %s", want)
	}
}

func expectNoOutcome(t *testing.T, ch <-chan Outcome) {
	t.Helper()
	select {
	case got := <-ch:
		t.Fatalf("unexpected outcome %s", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func waitState(t *testing.T, tk *Task, playerID string, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if tk.State(playerID) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", tk.State(playerID), want)
}
