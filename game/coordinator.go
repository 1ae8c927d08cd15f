package game

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/vinayprograms/taskparty/bus"
	"github.com/vinayprograms/taskparty/channel"
	gerrors "github.com/vinayprograms/taskparty/errors"
	"github.com/vinayprograms/taskparty/logging"
	"github.com/vinayprograms/taskparty/protocol"
	"github.com/vinayprograms/taskparty/ratelimit"
	"github.com/vinayprograms/taskparty/state"
	"github.com/vinayprograms/taskparty/task"
	"github.com/vinayprograms/taskparty/telemetry"
)

const (
	inboxSize    = 64
	storeTimeout = 2 * time.Second
)

// Coordinator runs one match.
type Coordinator struct {
	id      string
	mapName string
	catalog *task.Catalog
	opts    options
	log     *logging.Logger
	onEmpty func(matchID string)
	limiter *ratelimit.Limiter

	inbox    chan func()
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	meeting  atomic.Bool

	// Owned by the Run goroutine.
	ctx      context.Context
	sessions map[string]*Session
	order    []string
	grace    map[string]*time.Timer
	seq      uint64
	bar      float64
	reporter string
}

// NewCoordinator creates a match over catalog. Call Run to start it.
func NewCoordinator(id, mapName string, catalog *task.Catalog, opts ...Option) *Coordinator {
	o := buildOptions(opts)
	return &Coordinator{
		id:       id,
		mapName:  mapName,
		catalog:  catalog,
		opts:     o,
		log:      o.log.WithComponent("match").WithMatch(id),
		limiter:  ratelimit.New(o.settings.RequestLimit),
		inbox:    make(chan func(), inboxSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		ctx:      context.Background(),
		sessions: make(map[string]*Session),
		grace:    make(map[string]*time.Timer),
	}
}

// ID returns the match code.
func (c *Coordinator) ID() string {
	return c.id
}

// MapName returns the name of the map being played.
func (c *Coordinator) MapName() string {
	return c.mapName
}

// Catalog returns the match's tasks.
func (c *Coordinator) Catalog() *task.Catalog {
	return c.catalog
}

// Phase returns protocol.PhasePlaying or protocol.PhaseMeeting.
func (c *Coordinator) Phase() string {
	if c.meeting.Load() {
		return protocol.PhaseMeeting
	}
	return protocol.PhasePlaying
}

// Done is closed when Run has returned.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Stop ends the match. It does not wait for Run to return.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

// Run processes the match until Stop is called or ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	defer close(c.done)

	ctx, span := c.opts.tracer.StartMatchSpan(ctx, c.id, c.mapName)
	defer span.End()
	c.ctx = ctx

	if c.opts.bus != nil {
		sub, err := c.opts.bus.Subscribe(bus.SnapshotSubject(c.id))
		if err != nil {
			c.log.Warn("snapshot_subscribe_failed", map[string]interface{}{"error": err.Error()})
		} else {
			defer sub.Unsubscribe()
			go c.serveSnapshots(sub)
		}
	}

	c.log.Info("match_started", map[string]interface{}{"map": c.mapName, "tasks": c.catalog.Len()})
	c.record(telemetry.Event{Name: "match_started", Data: map[string]interface{}{"map": c.mapName}})

	for {
		select {
		case fn := <-c.inbox:
			fn()
		case <-c.stop:
			c.shutdown()
			return
		case <-ctx.Done():
			c.shutdown()
			return
		}
	}
}

func (c *Coordinator) shutdown() {
	for pid, t := range c.grace {
		t.Stop()
		delete(c.grace, pid)
	}
	for _, pid := range c.order {
		c.catalog.Abandon(pid)
		c.sessions[pid].channel().Close()
	}
	c.log.Info("match_ended", map[string]interface{}{"players": len(c.sessions)})
	c.record(telemetry.Event{Name: "match_ended"})
}

// do posts fn to the Run goroutine. It reports false once the match ended.
func (c *Coordinator) do(fn func()) bool {
	select {
	case c.inbox <- fn:
		return true
	case <-c.done:
		return false
	}
}

// call runs fn on the Run goroutine and waits for it.
func (c *Coordinator) call(fn func()) error {
	ran := make(chan struct{})
	if !c.do(func() {
		defer close(ran)
		fn()
	}) {
		return errMatchEnded(c.id)
	}
	select {
	case <-ran:
		return nil
	case <-c.done:
		return errMatchEnded(c.id)
	}
}

func errMatchEnded(id string) error {
	return gerrors.NotFound("match " + id + " has ended")
}

// Join seats a player, or reconnects them if they already have a seat.
// Requests from the player are served on ch from then on.
func (c *Coordinator) Join(ctx context.Context, playerID, name string, ch *channel.Channel) (*Session, error) {
	if err := validatePlayerID(playerID); err != nil {
		return nil, err
	}
	saved := c.loadProgress(ctx, playerID)

	var s *Session
	var err error
	if cerr := c.call(func() {
		s, err = c.join(playerID, name, ch, saved)
	}); cerr != nil {
		return nil, cerr
	}
	if err != nil {
		return nil, err
	}

	ch.OnClose(func(error) {
		c.disconnected(playerID, ch)
	})
	return s, nil
}

func validatePlayerID(id string) error {
	if id == "" || strings.Contains(id, ".") || state.ValidateKey(id) != nil {
		return gerrors.InvalidInput("invalid player id", gerrors.WithPlayerID(id))
	}
	return nil
}

func (c *Coordinator) join(pid, name string, ch *channel.Channel, saved *state.Progress) (*Session, error) {
	s, rejoin := c.sessions[pid]
	if rejoin {
		if t, ok := c.grace[pid]; ok {
			t.Stop()
			delete(c.grace, pid)
		}
		// Pairings are bound to the old connection.
		c.catalog.Abandon(pid)
		if old := s.rebind(ch, name); old != nil && old != ch {
			old.Close()
		}
	} else {
		if limit := c.opts.settings.MaxPlayers; limit > 0 && len(c.sessions) >= limit {
			return nil, gerrors.InvalidInput("match is full", gerrors.WithPlayerID(pid))
		}
		s = newSession(c, pid, name, ch)
		if saved != nil {
			s.restore(saved, c.catalog)
			rejoin = true
		}
		if len(s.required) == 0 {
			s.required = assignTasks(c.catalog.IDs(), c.opts.settings.TasksPerPlayer)
		}
		c.sessions[pid] = s
		c.order = append(c.order, pid)
	}
	s.bind(ch)

	c.log.PlayerJoined(pid, rejoin)
	c.record(telemetry.Event{Name: "player_joined", PlayerID: pid, Data: map[string]interface{}{"rejoin": rejoin}})
	telemetry.AddMatchEvent(c.ctx, "player_joined", attribute.String("player.id", pid), attribute.Bool("rejoin", rejoin))
	c.saveProgress(s)

	c.broadcastRoster()
	if !c.updateTaskBar(false) {
		s.emit(protocol.EventUpdateTaskBar, protocol.TaskBarUpdate{TaskBar: c.bar, Seq: c.seq})
	}
	s.emit(protocol.EventUpdateTasks, s.tasksUpdate())
	s.emit(protocol.EventMatchState, c.matchState())
	return s, nil
}

// disconnected runs when a player's connection ends.
func (c *Coordinator) disconnected(pid string, ch *channel.Channel) {
	c.do(func() {
		s, ok := c.sessions[pid]
		if !ok || !s.detach(ch) {
			return
		}
		c.catalog.Abandon(pid)
		c.log.PlayerLeft(pid, "disconnected")
		c.record(telemetry.Event{Name: "player_disconnected", PlayerID: pid})
		c.broadcastRoster()

		grace := c.opts.settings.ReconnectGrace
		if grace <= 0 {
			c.remove(pid, "disconnected")
			return
		}
		c.grace[pid] = time.AfterFunc(grace, func() {
			c.do(func() {
				c.expire(pid, ch)
			})
		})
	})
}

func (c *Coordinator) expire(pid string, ch *channel.Channel) {
	s, ok := c.sessions[pid]
	if !ok || s.Connected() || s.channel() != ch {
		return
	}
	c.remove(pid, "reconnect grace expired")
}

func (c *Coordinator) remove(pid, reason string) {
	delete(c.grace, pid)
	delete(c.sessions, pid)
	c.limiter.Forget(pid)
	for i, id := range c.order {
		if id == pid {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.log.PlayerLeft(pid, reason)
	c.record(telemetry.Event{Name: "player_removed", PlayerID: pid, Data: map[string]interface{}{"reason": reason}})

	c.broadcastRoster()
	c.updateTaskBar(false)
	if len(c.sessions) == 0 && c.onEmpty != nil {
		c.onEmpty(c.id)
	}
}

// SetAlive changes whether a player is alive. A player who dies abandons
// their task, and their tasks stop counting toward the task bar.
func (c *Coordinator) SetAlive(playerID string, alive bool) error {
	var err error
	if cerr := c.call(func() {
		s, ok := c.sessions[playerID]
		if !ok {
			err = gerrors.NotFound("no player "+playerID+" in match", gerrors.WithPlayerID(playerID))
			return
		}
		if !s.setAlive(alive) {
			return
		}
		if !alive {
			c.catalog.Abandon(playerID)
		}
		c.log.Info("alive_changed", map[string]interface{}{"player": playerID, "alive": alive})
		c.record(telemetry.Event{Name: "alive_changed", PlayerID: playerID, Data: map[string]interface{}{"alive": alive}})
		c.saveProgress(s)
		c.publish(bus.EventAlive, s.rosterEntry())
		c.broadcastRoster()
		c.updateTaskBar(false)
	}); cerr != nil {
		return cerr
	}
	return err
}

// taskCompleted runs when a player completes a task for the first time.
func (c *Coordinator) taskCompleted(s *Session, taskID string) {
	c.do(func() {
		if c.sessions[s.id] != s {
			return
		}
		c.record(telemetry.Event{Name: "task_completed", PlayerID: s.id, TaskID: taskID})
		c.publish(bus.EventTaskDone, map[string]string{"player": s.id, "task": taskID})
		c.saveProgress(s)
		s.emit(protocol.EventUpdateTasks, s.tasksUpdate())
		c.updateTaskBar(true)
	})
}

// callMeeting starts a meeting reported by reporter.
func (c *Coordinator) callMeeting(reporter string) {
	c.do(func() {
		s, ok := c.sessions[reporter]
		if !ok || !s.Alive() || c.meeting.Load() {
			return
		}
		c.meeting.Store(true)
		c.reporter = reporter
		for _, pid := range c.order {
			c.catalog.Abandon(pid)
		}
		c.log.Info("meeting_called", map[string]interface{}{"reporter": reporter})
		c.record(telemetry.Event{Name: "meeting_called", PlayerID: reporter})
		telemetry.AddMatchEvent(c.ctx, "meeting_called", attribute.String("player.id", reporter))
		c.broadcastMatchState()
	})
}

// EndMeeting returns the match to play.
func (c *Coordinator) EndMeeting() error {
	var err error
	if cerr := c.call(func() {
		if !c.meeting.Load() {
			err = gerrors.WrongPhase(protocol.PhasePlaying)
			return
		}
		c.meeting.Store(false)
		c.reporter = ""
		c.log.Info("meeting_ended")
		c.record(telemetry.Event{Name: "meeting_ended"})
		c.broadcastMatchState()
	}); cerr != nil {
		return cerr
	}
	return err
}

// Snapshot returns the current state of the match.
func (c *Coordinator) Snapshot() (Snapshot, error) {
	var snap Snapshot
	err := c.call(func() {
		snap = Snapshot{
			ID:       c.id,
			Map:      c.mapName,
			Phase:    c.Phase(),
			Reporter: c.reporter,
			TaskBar:  c.bar,
			Seq:      c.seq,
			Tasks:    c.catalog.IDs(),
			Players:  c.roster().Players,
		}
	})
	return snap, err
}

// Session returns a player's session.
func (c *Coordinator) Session(playerID string) (*Session, bool) {
	var s *Session
	var ok bool
	if err := c.call(func() {
		s, ok = c.sessions[playerID]
	}); err != nil {
		return nil, false
	}
	return s, ok
}

func (c *Coordinator) serveSnapshots(sub bus.Subscription) {
	for msg := range sub.Messages() {
		if msg.Reply == "" {
			continue
		}
		snap, err := c.Snapshot()
		if err != nil {
			return
		}
		data, err := json.Marshal(snap)
		if err != nil {
			c.log.Error("snapshot_encode_failed", map[string]interface{}{"error": err.Error()})
			continue
		}
		if err := c.opts.bus.Publish(msg.Reply, data); err != nil {
			c.log.Warn("snapshot_reply_failed", map[string]interface{}{"error": err.Error()})
		}
	}
}

// --- Broadcasts ---

func (c *Coordinator) roster() protocol.RosterUpdate {
	players := make([]protocol.RosterEntry, 0, len(c.order))
	for _, pid := range c.order {
		players = append(players, c.sessions[pid].rosterEntry())
	}
	return protocol.RosterUpdate{Players: players}
}

func (c *Coordinator) matchState() protocol.MatchStateUpdate {
	return protocol.MatchStateUpdate{Phase: c.Phase(), Reporter: c.reporter, Seq: c.seq}
}

func (c *Coordinator) broadcast(event string, payload interface{}) {
	for _, pid := range c.order {
		c.sessions[pid].emit(event, payload)
	}
}

func (c *Coordinator) broadcastRoster() {
	r := c.roster()
	c.broadcast(protocol.EventUpdateGameRoster, r)
	c.publish(bus.EventRoster, r)
}

func (c *Coordinator) broadcastMatchState() {
	c.seq++
	st := c.matchState()
	c.broadcast(protocol.EventMatchState, st)
	c.publish(bus.EventMatchState, st)
}

// updateTaskBar recomputes the bar and broadcasts it if it changed or
// force is set. It reports whether it broadcast.
func (c *Coordinator) updateTaskBar(force bool) bool {
	sessions := make([]*Session, 0, len(c.order))
	for _, pid := range c.order {
		sessions = append(sessions, c.sessions[pid])
	}
	v := taskBar(sessions)
	if !force && v == c.bar {
		return false
	}
	c.bar = v
	c.seq++
	c.log.TaskBar(v, c.seq)
	u := protocol.TaskBarUpdate{TaskBar: v, Seq: c.seq}
	c.broadcast(protocol.EventUpdateTaskBar, u)
	c.publish(bus.EventTaskBar, u)
	return true
}

func (c *Coordinator) publish(eventType string, payload interface{}) {
	if c.opts.bus == nil {
		return
	}
	ev, err := bus.NewMatchEvent(c.id, eventType, c.seq, payload)
	if err == nil {
		err = bus.PublishEvent(c.opts.bus, ev)
	}
	if err != nil {
		c.log.Warn("publish_failed", map[string]interface{}{"event": eventType, "error": err.Error()})
	}
}

func (c *Coordinator) record(ev telemetry.Event) {
	ev.MatchID = c.id
	c.opts.exporter.Record(ev)
}

// --- Progress ---

func (c *Coordinator) loadProgress(ctx context.Context, pid string) *state.Progress {
	if c.opts.progress == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	p, err := c.opts.progress.Load(ctx, c.id, pid)
	if err != nil {
		if !errors.Is(err, state.ErrNotFound) {
			c.log.Warn("progress_load_failed", map[string]interface{}{"player": pid, "error": err.Error()})
		}
		return nil
	}
	return p
}

func (c *Coordinator) saveProgress(s *Session) {
	if c.opts.progress == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.ctx, storeTimeout)
	defer cancel()
	if err := c.opts.progress.Save(ctx, c.id, s.progress()); err != nil {
		c.log.Warn("progress_save_failed", map[string]interface{}{"player": s.id, "error": err.Error()})
	}
}
