package kinds

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/vinayprograms/taskparty/channel"
	gerrors "github.com/vinayprograms/taskparty/errors"
	"github.com/vinayprograms/taskparty/logging"
	"github.com/vinayprograms/taskparty/task"
)

// Keypad events.
const (
	EventKeypadCode   = "keypad.code"
	EventKeypadEntry  = "keypad.entry"
	EventKeypadResult = "keypad.result"
)

const defaultKeypadDigits = 4

// KeypadCode shows the player the code to type.
type KeypadCode struct {
	TaskID string `json:"taskId"`
	Code   string `json:"code"`
}

// KeypadEntry is a code typed by the player.
type KeypadEntry struct {
	TaskID string `json:"taskId"`
	Code   string `json:"code"`
}

// KeypadResult says whether an entry matched.
type KeypadResult struct {
	TaskID  string `json:"taskId"`
	Correct bool   `json:"correct"`
}

// Keypad is a task where the player retypes a code shown on their device.
type Keypad struct {
	taskID string
	digits int
	log    *logging.Logger

	mu   sync.Mutex
	runs map[string]*keypadRun
}

type keypadRun struct {
	code    string
	entries *channel.Subscription
	solved  bool
}

// NewKeypad builds a keypad task. params.digits is 1..8, default 4.
func NewKeypad(d task.Descriptor, log *logging.Logger) (*Keypad, error) {
	digits, err := d.Params.Int("digits", defaultKeypadDigits)
	if err != nil {
		return nil, err
	}
	if digits < 1 || digits > 8 {
		return nil, gerrors.InvalidInput("keypad params.digits must be 1..8", gerrors.WithTaskID(d.ID))
	}
	return &Keypad{
		taskID: d.ID,
		digits: digits,
		log:    log,
		runs:   make(map[string]*keypadRun),
	}, nil
}

func (k *Keypad) Run(ctx context.Context, p task.Player) {
	pid := p.ID()
	run := &keypadRun{code: k.newCode()}

	events := p.Events()
	run.entries = events.On(EventKeypadEntry, func(payload json.RawMessage) {
		var entry KeypadEntry
		if err := json.Unmarshal(payload, &entry); err != nil || entry.TaskID != k.taskID {
			return
		}
		correct := k.check(pid, entry.Code)
		events.Emit(EventKeypadResult, KeypadResult{TaskID: k.taskID, Correct: correct})
	})

	k.mu.Lock()
	k.runs[pid] = run
	k.mu.Unlock()

	context.AfterFunc(ctx, func() { k.end(pid, run) })

	events.Emit(EventKeypadCode, KeypadCode{TaskID: k.taskID, Code: run.code})
}

func (k *Keypad) OnFinished(p task.Player, aborted bool) {
	pid := p.ID()
	k.mu.Lock()
	run, ok := k.runs[pid]
	solved := ok && run.solved
	k.mu.Unlock()
	if !ok {
		return
	}

	if !aborted && !solved {
		k.log.Warn("keypad_finished_unsolved", map[string]interface{}{
			"player": pid,
			"task":   k.taskID,
		})
	}
	k.end(pid, run)
}

// Solved reports whether playerID typed the right code in the current run.
func (k *Keypad) Solved(playerID string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	run, ok := k.runs[playerID]
	return ok && run.solved
}

func (k *Keypad) check(playerID, code string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	run, ok := k.runs[playerID]
	if !ok {
		return false
	}
	correct := strings.TrimSpace(code) == run.code
	if correct {
		run.solved = true
	}
	return correct
}

func (k *Keypad) end(playerID string, run *keypadRun) {
	run.entries.Cancel()
	k.mu.Lock()
	if k.runs[playerID] == run {
		delete(k.runs, playerID)
	}
	k.mu.Unlock()
}

func (k *Keypad) newCode() string {
	var b strings.Builder
	for i := 0; i < k.digits; i++ {
		b.WriteByte(byte('0' + rand.IntN(10)))
	}
	return b.String()
}
