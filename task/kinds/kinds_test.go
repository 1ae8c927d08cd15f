package kinds

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/vinayprograms/taskparty/channel"
	gerrors "github.com/vinayprograms/taskparty/errors"
	"github.com/vinayprograms/taskparty/logging"
	"github.com/vinayprograms/taskparty/protocol"
	"github.com/vinayprograms/taskparty/task"
	"github.com/vinayprograms/taskparty/transport"
)

type player struct {
	id string
	ch *channel.Channel
}

func (p *player) ID() string             { return p.id }
func (p *player) Events() channel.Events { return p.ch }

// connect returns a server-side player and a device that accepts every doTask.
func connect(t *testing.T, id string) (*player, *channel.Channel) {
	t.Helper()
	a, b := transport.NewPipe(transport.DefaultConfig())
	server := channel.New(a)
	dev := channel.New(b)

	ctx, cancel := context.WithCancel(context.Background())
	go server.Run(ctx)
	go dev.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-server.Done()
		<-dev.Done()
	})

	dev.Handle(protocol.EventDoTask, func(context.Context, json.RawMessage) (interface{}, error) {
		return protocol.DoTaskResult{Started: true}, nil
	})
	return &player{id: id, ch: server}, dev
}

func newRegistry(t *testing.T) *task.Registry {
	t.Helper()
	r := task.NewRegistry()
	if err := Register(r, logging.Discard()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return r
}

func recv(t *testing.T, ch <-chan json.RawMessage, v interface{}) {
	t.Helper()
	select {
	case raw := <-ch:
		if err := json.Unmarshal(raw, v); err != nil {
			t.Fatalf("decode: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func waitOutcome(t *testing.T, ch <-chan task.Outcome, want task.Outcome) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("outcome = %s, want %s", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for %s", want)
	}
}

// --- Unit Tests ---

func TestRegisterBuiltins(t *testing.T) {
	r := newRegistry(t)
	cat, err := r.Load([]task.Descriptor{
		{ID: "scan1", ClassID: ClassScan},
		{ID: "hold1", ClassID: ClassHold, Params: task.Params{"seconds": float64(3)}},
		{ID: "pad1", ClassID: ClassKeypad},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cat.Len() != 3 {
		t.Errorf("Len = %d, want 3", cat.Len())
	}
	if err := Register(r, nil); err == nil {
		t.Error("registering twice should fail")
	}
}

func TestInvalidParams(t *testing.T) {
	r := newRegistry(t)
	tests := []struct {
		name string
		desc task.Descriptor
	}{
		{"hold without seconds", task.Descriptor{ID: "h", ClassID: ClassHold}},
		{"hold negative", task.Descriptor{ID: "h", ClassID: ClassHold, Params: task.Params{"seconds": float64(-1)}}},
		{"hold string", task.Descriptor{ID: "h", ClassID: ClassHold, Params: task.Params{"seconds": "5"}}},
		{"keypad too long", task.Descriptor{ID: "k", ClassID: ClassKeypad, Params: task.Params{"digits": float64(9)}}},
		{"keypad zero", task.Descriptor{ID: "k", ClassID: ClassKeypad, Params: task.Params{"digits": float64(0)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Instantiate(tt.desc); !gerrors.Is(err, gerrors.ErrCodeInvalidInput) {
				t.Errorf("Instantiate = %v, want INVALID_INPUT", err)
			}
		})
	}
}

func TestHoldRun(t *testing.T) {
	r := newRegistry(t)
	tk, err := r.Instantiate(task.Descriptor{ID: "reactor", ClassID: ClassHold, Params: task.Params{"seconds": float64(4)}})
	if err != nil {
		t.Fatal(err)
	}
	hold := tk.Behavior().(*Hold)

	p, dev := connect(t, "p1")
	starts := make(chan json.RawMessage, 1)
	dev.On(EventHoldStart, func(payload json.RawMessage) { starts <- payload })

	done := make(chan task.Outcome, 1)
	tk.Begin(context.Background(), p, func(o task.Outcome) { done <- o })

	var start HoldStart
	recv(t, starts, &start)
	if start.TaskID != "reactor" || start.Seconds != 4 {
		t.Errorf("hold.start = %+v", start)
	}
	if !hold.Holding("p1") {
		t.Error("player should be holding after start")
	}

	tk.Abandon("p1")
	waitOutcome(t, done, task.OutcomeAbandoned)

	deadline := time.Now().Add(time.Second)
	for hold.Holding("p1") {
		if time.Now().After(deadline) {
			t.Fatal("abandoned run should be forgotten")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestKeypadRun(t *testing.T) {
	r := newRegistry(t)
	tk, err := r.Instantiate(task.Descriptor{ID: "pad", ClassID: ClassKeypad, Params: task.Params{"digits": float64(6)}})
	if err != nil {
		t.Fatal(err)
	}
	pad := tk.Behavior().(*Keypad)

	p, dev := connect(t, "p1")
	codes := make(chan json.RawMessage, 1)
	results := make(chan json.RawMessage, 2)
	dev.On(EventKeypadCode, func(payload json.RawMessage) { codes <- payload })
	dev.On(EventKeypadResult, func(payload json.RawMessage) { results <- payload })

	done := make(chan task.Outcome, 1)
	tk.Begin(context.Background(), p, func(o task.Outcome) { done <- o })

	var code KeypadCode
	recv(t, codes, &code)
	if len(code.Code) != 6 {
		t.Fatalf("code %q should have 6 digits", code.Code)
	}

	wrong := "x" + code.Code[1:]
	dev.Emit(EventKeypadEntry, KeypadEntry{TaskID: "pad", Code: wrong})
	var res KeypadResult
	recv(t, results, &res)
	if res.Correct {
		t.Error("wrong code accepted")
	}

	dev.Emit(EventKeypadEntry, KeypadEntry{TaskID: "pad", Code: code.Code})
	recv(t, results, &res)
	if !res.Correct {
		t.Error("right code rejected")
	}
	if !pad.Solved("p1") {
		t.Error("Solved should be true")
	}

	dev.Emit(protocol.EventTaskFinished, protocol.FinishedParams{})
	waitOutcome(t, done, task.OutcomeCompleted)
	if pad.Solved("p1") {
		t.Error("run state should be cleared after finishing")
	}
}
