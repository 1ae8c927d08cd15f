package kinds

import (
	"context"
	"sync"
	"time"

	gerrors "github.com/vinayprograms/taskparty/errors"
	"github.com/vinayprograms/taskparty/logging"
	"github.com/vinayprograms/taskparty/task"
)

// EventHoldStart tells the device how long the player must hold.
const EventHoldStart = "hold.start"

// HoldStart is the payload of hold.start.
type HoldStart struct {
	TaskID  string `json:"taskId"`
	Seconds int    `json:"seconds"`
}

// Hold is a task where the player keeps a button pressed for a while.
// The device enforces the duration; the server only notes early finishes.
type Hold struct {
	taskID   string
	duration time.Duration
	log      *logging.Logger

	mu      sync.Mutex
	started map[string]time.Time
}

// NewHold builds a hold task. params.seconds must be a positive integer.
func NewHold(d task.Descriptor, log *logging.Logger) (*Hold, error) {
	secs, err := d.Params.Int("seconds", 0)
	if err != nil {
		return nil, err
	}
	if secs <= 0 {
		return nil, gerrors.InvalidInput("hold task needs params.seconds > 0", gerrors.WithTaskID(d.ID))
	}
	return &Hold{
		taskID:   d.ID,
		duration: time.Duration(secs) * time.Second,
		log:      log,
		started:  make(map[string]time.Time),
	}, nil
}

func (h *Hold) Run(ctx context.Context, p task.Player) {
	pid := p.ID()
	h.mu.Lock()
	h.started[pid] = time.Now()
	h.mu.Unlock()

	context.AfterFunc(ctx, func() { h.forget(pid) })

	p.Events().Emit(EventHoldStart, HoldStart{
		TaskID:  h.taskID,
		Seconds: int(h.duration / time.Second),
	})
}

func (h *Hold) OnFinished(p task.Player, aborted bool) {
	pid := p.ID()
	h.mu.Lock()
	start, ok := h.started[pid]
	delete(h.started, pid)
	h.mu.Unlock()

	if ok && !aborted {
		if held := time.Since(start); held < h.duration {
			h.log.Warn("hold_finished_early", map[string]interface{}{
				"player": pid,
				"task":   h.taskID,
				"held":   held.Round(time.Millisecond).String(),
			})
		}
	}
}

// Holding reports whether playerID is currently holding.
func (h *Hold) Holding(playerID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.started[playerID]
	return ok
}

func (h *Hold) forget(playerID string) {
	h.mu.Lock()
	delete(h.started, playerID)
	h.mu.Unlock()
}
