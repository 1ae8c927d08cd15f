package task

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/vinayprograms/taskparty/channel"
	gerrors "github.com/vinayprograms/taskparty/errors"
	"github.com/vinayprograms/taskparty/logging"
	"github.com/vinayprograms/taskparty/protocol"
	"github.com/vinayprograms/taskparty/telemetry"
)

// DefaultAckTimeout bounds how long a device may take to acknowledge doTask.
const DefaultAckTimeout = 10 * time.Second

type options struct {
	log        *logging.Logger
	tracer     *telemetry.Tracer
	ackTimeout time.Duration
}

// Option configures tasks built by a Registry.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithTracer sets the tracer used for pairing spans.
func WithTracer(t *telemetry.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// WithAckTimeout sets how long to wait for the doTask ack.
func WithAckTimeout(d time.Duration) Option {
	return func(o *options) {
		o.ackTimeout = d
	}
}

func buildOptions(opts []Option) options {
	o := options{
		log:        logging.Discard(),
		tracer:     telemetry.GetTracer(),
		ackTimeout: DefaultAckTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Task is one task on the map and the pairings of every player running it.
type Task struct {
	desc     Descriptor
	behavior Behavior
	opts     options

	mu       sync.Mutex
	pairings map[string]*attempt // absent means Idle
}

// attempt is one try by one player. A release discards the attempt, so
// callbacks holding a stale attempt find it is no longer current.
type attempt struct {
	player    Player
	state     State
	onDone    func(Outcome)
	requested time.Time

	finished *channel.Subscription
	complete *channel.Subscription
	timer    *time.Timer
	stop     context.CancelFunc

	spanCtx context.Context
	span    trace.Span
}

// New creates a task from a descriptor and its behaviour.
func New(d Descriptor, b Behavior, opts ...Option) *Task {
	o := buildOptions(opts)
	o.log = o.log.WithComponent("task")
	return &Task{
		desc:     d,
		behavior: b,
		opts:     o,
		pairings: make(map[string]*attempt),
	}
}

// ID returns the task ID.
func (t *Task) ID() string {
	return t.desc.ID
}

// ClassID returns the task kind.
func (t *Task) ClassID() string {
	return t.desc.ClassID
}

// RequiresConfirmation reports whether completion needs a confirmation scan.
func (t *Task) RequiresConfirmation() bool {
	return t.desc.RequireConfirmationScan
}

// Descriptor returns the descriptor the task was built from.
func (t *Task) Descriptor() Descriptor {
	return t.desc
}

// Behavior returns the kind-specific behaviour.
func (t *Task) Behavior() Behavior {
	return t.behavior
}

// State returns the state of playerID's pairing.
func (t *Task) State(playerID string) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if a, ok := t.pairings[playerID]; ok {
		return a.state
	}
	return Idle
}

// Begin starts a pairing with p and returns without waiting for the device.
// onDone is called exactly once when the attempt ends, unless Begin returns
// an error.
func (t *Task) Begin(ctx context.Context, p Player, onDone func(Outcome)) error {
	pid := p.ID()

	t.mu.Lock()
	if prev, ok := t.pairings[pid]; ok {
		t.mu.Unlock()
		if prev.state == Completed {
			return gerrors.TaskAlreadyCompleted(pid, t.desc.ID)
		}
		return gerrors.TaskAlreadyInProgress(pid, t.desc.ID)
	}

	a := &attempt{
		player:    p,
		state:     Requested,
		onDone:    onDone,
		requested: time.Now(),
	}
	a.spanCtx, a.span = t.opts.tracer.StartPairingSpan(ctx, telemetry.PairingSpanOptions{
		PlayerID: pid,
		TaskID:   t.desc.ID,
		ClassID:  t.desc.ClassID,
		Confirm:  t.desc.RequireConfirmationScan,
	})
	t.pairings[pid] = a

	events := p.Events()
	a.finished = events.Once(protocol.EventTaskFinished, t.finishedHandler(a))
	if t.desc.RequireConfirmationScan {
		a.complete = events.Once(protocol.EventTaskComplete, t.completeHandler(a))
	}
	a.timer = time.AfterFunc(t.opts.ackTimeout, func() {
		t.ackExpired(a)
	})
	t.mu.Unlock()

	t.opts.log.TaskRequested(pid, t.desc.ID)

	params := protocol.DoTaskParams{TaskID: t.desc.ID, ClassID: t.desc.ClassID}
	if err := events.EmitWithAck(protocol.EventDoTask, params, t.ackHandler(a)); err != nil {
		t.mu.Lock()
		detached := t.detach(a)
		t.mu.Unlock()
		if detached {
			t.opts.log.TaskReleased(pid, t.desc.ID, OutcomeAbandoned.String())
			t.opts.tracer.EndPairingSpan(a.span, OutcomeAbandoned.String(), err)
		}
		return gerrors.Wrap(err, "start task", gerrors.WithPlayerID(pid), gerrors.WithTaskID(t.desc.ID))
	}
	return nil
}

// Abandon releases playerID's in-flight pairing. It reports whether there
// was one to release.
func (t *Task) Abandon(playerID string) bool {
	t.mu.Lock()
	a, ok := t.pairings[playerID]
	if !ok || !t.detach(a) {
		t.mu.Unlock()
		return false
	}
	t.mu.Unlock()

	t.released(a, OutcomeAbandoned)
	return true
}

func (t *Task) ackHandler(a *attempt) channel.AckFunc {
	return func(result json.RawMessage, err error) {
		var res protocol.DoTaskResult
		if err == nil {
			err = json.Unmarshal(result, &res)
		}

		t.mu.Lock()
		if !t.current(a) || a.state != Requested {
			t.mu.Unlock()
			return
		}
		if err != nil || !res.Started {
			t.detach(a)
			t.mu.Unlock()
			t.released(a, OutcomeDeclined)
			return
		}

		a.timer.Stop()
		a.state = Active
		runCtx, stop := context.WithCancel(a.spanCtx)
		a.stop = stop
		t.mu.Unlock()

		t.opts.log.TaskStarted(a.player.ID(), t.desc.ID)
		t.behavior.Run(runCtx, a.player)
	}
}

func (t *Task) finishedHandler(a *attempt) channel.Handler {
	var h channel.Handler
	h = func(payload json.RawMessage) {
		var msg protocol.FinishedParams
		decodeErr := json.Unmarshal(payload, &msg)

		t.mu.Lock()
		if !t.current(a) {
			t.mu.Unlock()
			return
		}
		if decodeErr != nil || !t.names(msg.TaskID) || a.state != Active {
			a.finished = a.player.Events().Once(protocol.EventTaskFinished, h)
			state := a.state
			t.mu.Unlock()
			t.opts.log.OutOfOrder(a.player.ID(), t.desc.ID, protocol.EventTaskFinished, state.String())
			return
		}

		// The abort flag is for the behaviour's cleanup; the pairing moves
		// on either way.
		p := a.player
		if t.desc.RequireConfirmationScan {
			a.state = FinishedUnconfirmed
			// Stay subscribed so duplicates are reported as out of order.
			a.finished = p.Events().Once(protocol.EventTaskFinished, h)
			t.mu.Unlock()
			t.behavior.OnFinished(p, msg.Aborted)
			return
		}

		stop := t.complete(a)
		t.mu.Unlock()
		t.behavior.OnFinished(p, msg.Aborted)
		stop()
		t.completed(a)
	}
	return h
}

func (t *Task) completeHandler(a *attempt) channel.Handler {
	var h channel.Handler
	h = func(payload json.RawMessage) {
		var msg protocol.CompleteParams
		decodeErr := json.Unmarshal(payload, &msg)

		t.mu.Lock()
		if !t.current(a) {
			t.mu.Unlock()
			return
		}
		if decodeErr != nil || !t.names(msg.TaskID) || a.state != FinishedUnconfirmed {
			a.complete = a.player.Events().Once(protocol.EventTaskComplete, h)
			state := a.state
			t.mu.Unlock()
			t.opts.log.OutOfOrder(a.player.ID(), t.desc.ID, protocol.EventTaskComplete, state.String())
			return
		}

		stop := t.complete(a)
		t.mu.Unlock()
		stop()
		t.completed(a)
	}
	return h
}

// ackExpired releases a if the device still has not answered doTask.
func (t *Task) ackExpired(a *attempt) {
	t.mu.Lock()
	if a.state != Requested || !t.detach(a) {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	t.released(a, OutcomeTimedOut)
}

// current reports whether a is the live attempt for its player.
// Caller holds t.mu.
func (t *Task) current(a *attempt) bool {
	return t.pairings[a.player.ID()] == a
}

// names reports whether an optional task ID from the device refers to t.
func (t *Task) names(taskID string) bool {
	return taskID == "" || taskID == t.desc.ID
}

// detach returns a's player to Idle. Completed pairings are never
// detached. Caller holds t.mu.
func (t *Task) detach(a *attempt) bool {
	if !t.current(a) || a.state == Completed {
		return false
	}
	delete(t.pairings, a.player.ID())
	a.state = Idle
	a.cleanup()
	return true
}

// complete marks a Completed and returns the function that ends its run.
// The caller runs it after OnFinished. Caller holds t.mu.
func (t *Task) complete(a *attempt) context.CancelFunc {
	a.state = Completed
	a.unsubscribe()
	stop := a.stop
	a.stop = nil
	if stop == nil {
		return func() {}
	}
	return stop
}

func (t *Task) released(a *attempt, outcome Outcome) {
	t.opts.log.TaskReleased(a.player.ID(), t.desc.ID, outcome.String())
	t.opts.tracer.EndPairingSpan(a.span, outcome.String(), nil)
	if a.onDone != nil {
		a.onDone(outcome)
	}
}

func (t *Task) completed(a *attempt) {
	t.opts.log.TaskCompleted(a.player.ID(), t.desc.ID, time.Since(a.requested))
	t.opts.tracer.EndPairingSpan(a.span, OutcomeCompleted.String(), nil)
	if c, ok := t.behavior.(Completer); ok {
		c.OnComplete(a.player)
	}
	if a.onDone != nil {
		a.onDone(OutcomeCompleted)
	}
}

func (a *attempt) cleanup() {
	a.unsubscribe()
	if a.stop != nil {
		a.stop()
	}
}

func (a *attempt) unsubscribe() {
	if a.timer != nil {
		a.timer.Stop()
	}
	if a.finished != nil {
		a.finished.Cancel()
	}
	if a.complete != nil {
		a.complete.Cancel()
	}
}
