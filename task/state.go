package task

// State is the lifecycle state of one (player, task) pairing.
type State int

const (
	Idle State = iota
	Requested
	Active
	FinishedUnconfirmed
	Completed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requested:
		return "requested"
	case Active:
		return "active"
	case FinishedUnconfirmed:
		return "finished_unconfirmed"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// Outcome is how a pairing attempt ended.
type Outcome int

const (
	// OutcomeCompleted: the task is done for this player.
	OutcomeCompleted Outcome = iota
	// OutcomeDeclined: the device refused or failed to start the task.
	OutcomeDeclined
	// OutcomeTimedOut: the device never acknowledged doTask.
	OutcomeTimedOut
	// OutcomeAbandoned: the server released the pairing (disconnect, death).
	OutcomeAbandoned
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeDeclined:
		return "declined"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}
