package game

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/vinayprograms/taskparty/channel"
	gerrors "github.com/vinayprograms/taskparty/errors"
	"github.com/vinayprograms/taskparty/logging"
	"github.com/vinayprograms/taskparty/protocol"
	"github.com/vinayprograms/taskparty/state"
	"github.com/vinayprograms/taskparty/task"
)

// Session is one player's seat in a match. It outlives the player's
// connection for the reconnect grace period.
type Session struct {
	id    string
	coord *Coordinator
	log   *logging.Logger

	mu        sync.Mutex
	name      string
	ch        *channel.Channel
	ctx       context.Context
	alive     bool
	connected bool
	required  []string
	completed map[string]bool
	active    string
}

var _ task.Player = (*Session)(nil)

func newSession(c *Coordinator, id, name string, ch *channel.Channel) *Session {
	return &Session{
		id:        id,
		coord:     c,
		log:       c.log.WithComponent("session"),
		name:      name,
		ch:        ch,
		ctx:       c.ctx,
		alive:     true,
		connected: true,
		completed: make(map[string]bool),
	}
}

// ID returns the player ID.
func (s *Session) ID() string {
	return s.id
}

// Events returns the player's current channel.
func (s *Session) Events() channel.Events {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

// Name returns the display name.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Alive reports whether the player is alive.
func (s *Session) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

// Connected reports whether the player's device is connected.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// ActiveTask returns the task the player is doing, or "".
func (s *Session) ActiveTask() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Required returns the player's required tasks in map order.
func (s *Session) Required() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.required...)
}

// Completed returns the tasks the player has completed, sorted.
func (s *Session) Completed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completedLocked()
}

func (s *Session) completedLocked() []string {
	out := make([]string, 0, len(s.completed))
	for id := range s.completed {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// RequestTask starts taskID for the player. The task is started on the
// device asynchronously; a nil error only means the request was accepted.
func (s *Session) RequestTask(taskID string) error {
	if phase := s.coord.Phase(); phase != protocol.PhasePlaying {
		return gerrors.WrongPhase(phase, gerrors.WithPlayerID(s.id), gerrors.WithTaskID(taskID))
	}
	t, exists := s.coord.catalog.Get(taskID)

	s.mu.Lock()
	switch {
	case !s.alive:
		s.mu.Unlock()
		return gerrors.PlayerNotAlive(s.id)
	case !exists:
		s.mu.Unlock()
		return gerrors.NotFound(fmt.Sprintf("no task %q on this map", taskID),
			gerrors.WithPlayerID(s.id), gerrors.WithTaskID(taskID))
	case s.completed[taskID]:
		s.mu.Unlock()
		return gerrors.TaskAlreadyCompleted(s.id, taskID)
	case s.active != "":
		active := s.active
		s.mu.Unlock()
		return gerrors.TaskAlreadyInProgress(s.id, active)
	case !s.connected:
		s.mu.Unlock()
		return gerrors.Disconnected(s.id, gerrors.WithTaskID(taskID))
	}
	s.active = taskID
	ctx := s.ctx
	s.mu.Unlock()

	err := t.Begin(ctx, s, func(o task.Outcome) {
		s.taskEnded(taskID, o)
	})
	if err != nil {
		s.mu.Lock()
		if s.active == taskID {
			s.active = ""
		}
		s.mu.Unlock()
		return err
	}
	// callMeeting sets the phase before it abandons pairings, so a meeting
	// that started since the first check either abandoned this pairing
	// already or is seen here.
	if phase := s.coord.Phase(); phase != protocol.PhasePlaying {
		t.Abandon(s.id)
		return gerrors.WrongPhase(phase, gerrors.WithPlayerID(s.id), gerrors.WithTaskID(taskID))
	}
	return nil
}

// taskEnded runs when a pairing started by RequestTask ends.
func (s *Session) taskEnded(taskID string, o task.Outcome) {
	s.mu.Lock()
	if s.active == taskID {
		s.active = ""
	}
	first := o == task.OutcomeCompleted && !s.completed[taskID]
	if first {
		s.completed[taskID] = true
	}
	s.mu.Unlock()

	if first {
		s.coord.taskCompleted(s, taskID)
	}
}

// ReportBody asks the player's device to confirm a body report. A confirmed
// report starts a meeting.
func (s *Session) ReportBody() error {
	s.mu.Lock()
	alive, ch, matchCtx := s.alive, s.ch, s.ctx
	s.mu.Unlock()

	if !alive {
		return gerrors.PlayerNotAlive(s.id)
	}
	if phase := s.coord.Phase(); phase != protocol.PhasePlaying {
		return gerrors.WrongPhase(phase, gerrors.WithPlayerID(s.id))
	}

	timeout := s.coord.opts.settings.ReportTimeout
	go func() {
		ctx, cancel := context.WithTimeout(matchCtx, timeout)
		defer cancel()

		var res protocol.ReportResult
		if err := ch.Request(ctx, protocol.EventReport, struct{}{}, &res); err != nil {
			s.log.Info("report_unconfirmed", map[string]interface{}{
				"player": s.id,
				"error":  err.Error(),
			})
			return
		}
		if res.Confirmed {
			s.coord.callMeeting(s.id)
		}
	}()
	return nil
}

// bind serves the player's requests on ch.
func (s *Session) bind(ch *channel.Channel) {
	ch.Handle(protocol.EventRequestTask, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		var req protocol.RequestTaskParams
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, gerrors.InvalidInput("bad requestTask params", gerrors.WithCause(err), gerrors.WithPlayerID(s.id))
		}
		if !s.coord.limiter.Allow(s.id) {
			err := gerrors.RateLimited(s.id, gerrors.WithPlayerID(s.id), gerrors.WithTaskID(req.TaskID))
			s.log.TaskRejected(s.id, req.TaskID, err)
			return nil, err
		}
		if err := s.RequestTask(req.TaskID); err != nil {
			s.log.TaskRejected(s.id, req.TaskID, err)
			return nil, err
		}
		return protocol.RequestTaskResult{Accepted: true}, nil
	})
	ch.Handle(protocol.EventReportBody, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		if !s.coord.limiter.Allow(s.id) {
			return nil, gerrors.RateLimited(s.id, gerrors.WithPlayerID(s.id))
		}
		if err := s.ReportBody(); err != nil {
			return nil, err
		}
		return protocol.ReportBodyResult{Reported: true}, nil
	})
}

// rebind moves the session to a new connection and returns the old one.
func (s *Session) rebind(ch *channel.Channel, name string) *channel.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.ch
	s.ch = ch
	s.connected = true
	if name != "" {
		s.name = name
	}
	return old
}

// detach marks the session disconnected if ch is still its connection.
func (s *Session) detach(ch *channel.Channel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch != ch || !s.connected {
		return false
	}
	s.connected = false
	return true
}

// setAlive reports whether the value changed.
func (s *Session) setAlive(alive bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.alive == alive {
		return false
	}
	s.alive = alive
	return true
}

// restore applies saved progress to a new session.
func (s *Session) restore(p *state.Progress, catalog *task.Catalog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alive = p.Alive
	if s.name == "" {
		s.name = p.Name
	}
	for _, id := range p.Required {
		if _, ok := catalog.Get(id); ok {
			s.required = append(s.required, id)
		}
	}
	for _, id := range p.Completed {
		if _, ok := catalog.Get(id); ok {
			s.completed[id] = true
		}
	}
}

func (s *Session) progress() state.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return state.Progress{
		PlayerID:  s.id,
		Name:      s.name,
		Alive:     s.alive,
		Required:  append([]string(nil), s.required...),
		Completed: s.completedLocked(),
	}
}

func (s *Session) tasksUpdate() protocol.TasksUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks := make(map[string]bool, len(s.required))
	for _, id := range s.required {
		tasks[id] = s.completed[id]
	}
	return protocol.TasksUpdate{Tasks: tasks}
}

func (s *Session) rosterEntry() protocol.RosterEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return protocol.RosterEntry{
		ID:        s.id,
		Name:      s.name,
		Alive:     s.alive,
		Connected: s.connected,
	}
}

// emit sends an event if the player is connected.
func (s *Session) emit(event string, payload interface{}) {
	s.mu.Lock()
	ch, connected := s.ch, s.connected
	s.mu.Unlock()
	if !connected {
		return
	}
	if err := ch.Emit(event, payload); err != nil {
		s.log.Debug("emit_failed", map[string]interface{}{
			"player": s.id,
			"event":  event,
			"error":  err.Error(),
		})
	}
}

func (s *Session) channel() *channel.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}
