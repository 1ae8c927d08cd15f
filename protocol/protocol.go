// Package protocol defines the events exchanged between the match server and
// player devices, and their payloads.
//
// Requests carry a reply (JSON-RPC request/response); notifications do not.
//
//	doTask           S->C  request       DoTaskParams -> DoTaskResult
//	taskFinished     C->S  notification  FinishedParams
//	taskComplete     C->S  notification  CompleteParams
//	requestTask      C->S  request       RequestTaskParams -> RequestTaskResult
//	reportBody       C->S  request       {} -> ReportBodyResult
//	report           S->C  request       {} -> ReportResult
//	updateGameRoster S->C  notification  RosterUpdate
//	updateTaskBar    S->C  notification  TaskBarUpdate
//	updateTasks      S->C  notification  TasksUpdate
//	matchState       S->C  notification  MatchStateUpdate
//
// A rejected request is answered with a JSON-RPC error whose data is the
// structured error (code, category, message, task_id, player_id).
package protocol

// Task handshake.
const (
	EventDoTask       = "doTask"
	EventTaskFinished = "taskFinished"
	EventTaskComplete = "taskComplete"
)

// Player actions.
const (
	EventRequestTask = "requestTask"
	EventReportBody  = "reportBody"
	EventReport      = "report"
)

// Broadcasts.
const (
	EventUpdateGameRoster = "updateGameRoster"
	EventUpdateTaskBar    = "updateTaskBar"
	EventUpdateTasks      = "updateTasks"
	EventMatchState       = "matchState"
)

// Match phases.
const (
	PhasePlaying = "playing"
	PhaseMeeting = "meeting"
)

// DoTaskParams asks a device to start a task.
type DoTaskParams struct {
	TaskID  string `json:"taskId"`
	ClassID string `json:"classId"`
}

// DoTaskResult is the device's reply to doTask.
type DoTaskResult struct {
	Started bool `json:"started"`
}

// FinishedParams reports that the player left the task UI.
// TaskID is optional; when set it must name the task being finished.
type FinishedParams struct {
	Aborted bool   `json:"aborted"`
	TaskID  string `json:"taskId,omitempty"`
}

// CompleteParams confirms a finished task after the confirmation scan.
type CompleteParams struct {
	TaskID string `json:"taskId,omitempty"`
}

// RequestTaskParams is a player scanning a task's QR code.
type RequestTaskParams struct {
	TaskID string `json:"taskId"`
}

// RequestTaskResult acknowledges an accepted request. The task itself starts
// asynchronously with a doTask request.
type RequestTaskResult struct {
	Accepted bool `json:"accepted"`
}

// ReportBodyResult acknowledges a report; the device is then asked to
// confirm it with a report request.
type ReportBodyResult struct {
	Reported bool `json:"reported"`
}

// ReportResult is the device's confirmation of a body report.
type ReportResult struct {
	Confirmed bool `json:"confirmed"`
}

// RosterEntry is one player as shown to everyone.
type RosterEntry struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Alive     bool   `json:"alive"`
	Connected bool   `json:"connected"`
}

// RosterUpdate is the full roster in join order.
type RosterUpdate struct {
	Players []RosterEntry `json:"players"`
}

// TaskBarUpdate carries the match-wide completion fraction. Seq increases
// with every broadcast of the match; clients drop updates with a lower Seq.
type TaskBarUpdate struct {
	TaskBar float64 `json:"taskBar"`
	Seq     uint64  `json:"seq"`
}

// TasksUpdate is one player's required tasks and whether each is done.
type TasksUpdate struct {
	Tasks map[string]bool `json:"tasks"`
}

// MatchStateUpdate announces a phase change.
type MatchStateUpdate struct {
	Phase    string `json:"phase"`
	Reporter string `json:"reporter,omitempty"`
	Seq      uint64 `json:"seq"`
}
