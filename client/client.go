// Package client is the device side of a match: it keeps the player's view of
// the match current from server broadcasts and drives the task handshake.
//
// A GameManager wraps the device's channel. Screens subscribe to view
// changes with the On* methods; the scanner calls RequestTask and
// ReportBody; task screens call Finish and Confirm.
package client

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/vinayprograms/taskparty/channel"
	gerrors "github.com/vinayprograms/taskparty/errors"
	"github.com/vinayprograms/taskparty/logging"
	"github.com/vinayprograms/taskparty/protocol"
)

// TaskPolicy decides whether to start a task the server asked for.
type TaskPolicy func(protocol.DoTaskParams) bool

// ReportPolicy decides whether to confirm a body report.
type ReportPolicy func() bool

// Option configures a GameManager.
type Option func(*GameManager)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(g *GameManager) {
		g.log = l
	}
}

// WithTaskPolicy sets the doTask policy. The default starts every task.
func WithTaskPolicy(p TaskPolicy) Option {
	return func(g *GameManager) {
		g.taskPolicy = p
	}
}

// WithReportPolicy sets the report confirmation policy. The default confirms.
func WithReportPolicy(p ReportPolicy) Option {
	return func(g *GameManager) {
		g.reportPolicy = p
	}
}

// GameManager is one player's view of a match.
type GameManager struct {
	ch           *channel.Channel
	log          *logging.Logger
	taskPolicy   TaskPolicy
	reportPolicy ReportPolicy

	mu       sync.Mutex
	tasks    map[string]bool
	taskBar  float64
	barSeq   uint64
	roster   []protocol.RosterEntry
	state    protocol.MatchStateUpdate
	current  *protocol.DoTaskParams
	finished bool

	onTasks  []func(map[string]bool)
	onBar    []func(float64)
	onRoster []func([]protocol.RosterEntry)
	onState  []func(protocol.MatchStateUpdate)
	onDoTask []func(protocol.DoTaskParams)
}

// New wraps ch. Handlers are registered immediately, so create the
// GameManager before running the channel.
func New(ch *channel.Channel, opts ...Option) *GameManager {
	g := &GameManager{
		ch:           ch,
		log:          logging.Discard(),
		taskPolicy:   func(protocol.DoTaskParams) bool { return true },
		reportPolicy: func() bool { return true },
		tasks:        make(map[string]bool),
		state:        protocol.MatchStateUpdate{Phase: protocol.PhasePlaying},
	}
	for _, opt := range opts {
		opt(g)
	}
	g.log = g.log.WithComponent("client")

	ch.On(protocol.EventUpdateTasks, g.handleTasks)
	ch.On(protocol.EventUpdateTaskBar, g.handleTaskBar)
	ch.On(protocol.EventUpdateGameRoster, g.handleRoster)
	ch.On(protocol.EventMatchState, g.handleMatchState)
	ch.Handle(protocol.EventDoTask, g.handleDoTask)
	ch.Handle(protocol.EventReport, g.handleReport)
	return g
}

// OnUpdateTasks registers a callback for changes to the player's task list.
func (g *GameManager) OnUpdateTasks(fn func(map[string]bool)) {
	g.mu.Lock()
	g.onTasks = append(g.onTasks, fn)
	g.mu.Unlock()
}

// OnUpdateTaskBar registers a callback for task bar changes.
func (g *GameManager) OnUpdateTaskBar(fn func(float64)) {
	g.mu.Lock()
	g.onBar = append(g.onBar, fn)
	g.mu.Unlock()
}

// OnUpdateGameRoster registers a callback for roster changes.
func (g *GameManager) OnUpdateGameRoster(fn func([]protocol.RosterEntry)) {
	g.mu.Lock()
	g.onRoster = append(g.onRoster, fn)
	g.mu.Unlock()
}

// OnMatchState registers a callback for phase changes.
func (g *GameManager) OnMatchState(fn func(protocol.MatchStateUpdate)) {
	g.mu.Lock()
	g.onState = append(g.onState, fn)
	g.mu.Unlock()
}

// OnDoTask registers a callback for tasks the device agreed to start.
func (g *GameManager) OnDoTask(fn func(protocol.DoTaskParams)) {
	g.mu.Lock()
	g.onDoTask = append(g.onDoTask, fn)
	g.mu.Unlock()
}

// RequestTask asks to start a task. A nil error means the server accepted
// the request; the task itself starts with a doTask request.
func (g *GameManager) RequestTask(ctx context.Context, taskID string) error {
	var res protocol.RequestTaskResult
	if err := g.ch.Request(ctx, protocol.EventRequestTask, protocol.RequestTaskParams{TaskID: taskID}, &res); err != nil {
		return err
	}
	if !res.Accepted {
		return gerrors.Internal("request not accepted", gerrors.WithTaskID(taskID))
	}
	return nil
}

// ReportBody reports a dead body. The server then asks the device to
// confirm with a report request.
func (g *GameManager) ReportBody(ctx context.Context) error {
	var res protocol.ReportBodyResult
	return g.ch.Request(ctx, protocol.EventReportBody, struct{}{}, &res)
}

// Finish tells the server the player left the current task. aborted is
// passed to the task's cleanup; the server finishes the task either way,
// so a task that needs a confirmation scan still waits for Confirm.
func (g *GameManager) Finish(aborted bool) error {
	g.mu.Lock()
	cur := g.current
	if cur == nil || g.finished {
		g.mu.Unlock()
		return gerrors.OutOfOrder(protocol.EventTaskFinished, "no task running")
	}
	g.finished = true
	g.mu.Unlock()

	return g.ch.Emit(protocol.EventTaskFinished, protocol.FinishedParams{Aborted: aborted, TaskID: cur.TaskID})
}

// Confirm sends the confirmation scan for a finished task.
func (g *GameManager) Confirm() error {
	g.mu.Lock()
	cur := g.current
	if cur == nil || !g.finished {
		g.mu.Unlock()
		return gerrors.OutOfOrder(protocol.EventTaskComplete, "task not finished")
	}
	g.current = nil
	g.finished = false
	g.mu.Unlock()

	return g.ch.Emit(protocol.EventTaskComplete, protocol.CompleteParams{TaskID: cur.TaskID})
}

// CurrentTask returns the task the device is running, if any.
func (g *GameManager) CurrentTask() (protocol.DoTaskParams, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == nil {
		return protocol.DoTaskParams{}, false
	}
	return *g.current, true
}

// Tasks returns a copy of the player's task list.
func (g *GameManager) Tasks() map[string]bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return copyTasks(g.tasks)
}

// TaskBar returns the last task bar value received.
func (g *GameManager) TaskBar() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.taskBar
}

// Roster returns the last roster received.
func (g *GameManager) Roster() []protocol.RosterEntry {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]protocol.RosterEntry(nil), g.roster...)
}

// MatchState returns the current phase.
func (g *GameManager) MatchState() protocol.MatchStateUpdate {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *GameManager) handleTasks(payload json.RawMessage) {
	var msg protocol.TasksUpdate
	if !g.decode(protocol.EventUpdateTasks, payload, &msg) {
		return
	}
	g.mu.Lock()
	g.tasks = msg.Tasks
	if g.tasks == nil {
		g.tasks = make(map[string]bool)
	}
	if g.current != nil && g.tasks[g.current.TaskID] {
		g.current = nil
		g.finished = false
	}
	snapshot := copyTasks(g.tasks)
	fns := append(([]func(map[string]bool))(nil), g.onTasks...)
	g.mu.Unlock()

	for _, fn := range fns {
		fn(snapshot)
	}
}

func (g *GameManager) handleTaskBar(payload json.RawMessage) {
	var msg protocol.TaskBarUpdate
	if !g.decode(protocol.EventUpdateTaskBar, payload, &msg) {
		return
	}
	g.mu.Lock()
	if msg.Seq <= g.barSeq && g.barSeq != 0 {
		g.mu.Unlock()
		g.log.Debug("stale_task_bar", map[string]interface{}{"seq": msg.Seq, "last": g.barSeq})
		return
	}
	g.barSeq = msg.Seq
	g.taskBar = msg.TaskBar
	fns := append(([]func(float64))(nil), g.onBar...)
	g.mu.Unlock()

	for _, fn := range fns {
		fn(msg.TaskBar)
	}
}

func (g *GameManager) handleRoster(payload json.RawMessage) {
	var msg protocol.RosterUpdate
	if !g.decode(protocol.EventUpdateGameRoster, payload, &msg) {
		return
	}
	g.mu.Lock()
	g.roster = msg.Players
	fns := append(([]func([]protocol.RosterEntry))(nil), g.onRoster...)
	g.mu.Unlock()

	for _, fn := range fns {
		fn(append([]protocol.RosterEntry(nil), msg.Players...))
	}
}

func (g *GameManager) handleMatchState(payload json.RawMessage) {
	var msg protocol.MatchStateUpdate
	if !g.decode(protocol.EventMatchState, payload, &msg) {
		return
	}
	g.mu.Lock()
	g.state = msg
	if msg.Phase == protocol.PhaseMeeting {
		// The server abandons running tasks when a meeting starts.
		g.current = nil
		g.finished = false
	}
	fns := append(([]func(protocol.MatchStateUpdate))(nil), g.onState...)
	g.mu.Unlock()

	for _, fn := range fns {
		fn(msg)
	}
}

func (g *GameManager) handleDoTask(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req protocol.DoTaskParams
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, gerrors.InvalidInput("bad doTask params: " + err.Error())
	}
	if !g.taskPolicy(req) {
		return protocol.DoTaskResult{Started: false}, nil
	}

	g.mu.Lock()
	g.current = &req
	g.finished = false
	fns := append(([]func(protocol.DoTaskParams))(nil), g.onDoTask...)
	g.mu.Unlock()

	for _, fn := range fns {
		fn(req)
	}
	return protocol.DoTaskResult{Started: true}, nil
}

func (g *GameManager) handleReport(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return protocol.ReportResult{Confirmed: g.reportPolicy()}, nil
}

func (g *GameManager) decode(event string, payload json.RawMessage, v interface{}) bool {
	if err := json.Unmarshal(payload, v); err != nil {
		g.log.Warn("bad_payload", map[string]interface{}{"event": event, "error": err.Error()})
		return false
	}
	return true
}

func copyTasks(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
