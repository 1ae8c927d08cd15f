package errors

import (
	"encoding/json"
	"fmt"
	"time"
)

// GameError is the interface for all structured errors in taskparty.
type GameError interface {
	error

	// Code returns the specific error code identifying the failure type.
	Code() ErrorCode

	// Category returns the error category.
	Category() ErrorCategory

	// Retryable returns true if repeating the request may succeed.
	Retryable() bool

	// Metadata returns additional context as key-value pairs.
	Metadata() map[string]string

	// PlayerID returns the player the error concerns, or "".
	PlayerID() string

	// TaskID returns the task the error concerns, or "".
	TaskID() string

	// Unwrap returns the underlying error, if any.
	Unwrap() error
}

// Error is the concrete implementation of GameError.
type Error struct {
	code      ErrorCode
	category  ErrorCategory
	message   string
	cause     error
	metadata  map[string]string
	retryable *bool // nil means use the code default
	timestamp time.Time
	playerID  string
	taskID    string
}

var (
	_ GameError        = (*Error)(nil)
	_ json.Marshaler   = (*Error)(nil)
	_ json.Unmarshaler = (*Error)(nil)
)

// Error returns the error message.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the error code.
func (e *Error) Code() ErrorCode {
	return e.code
}

// Category returns the error category.
func (e *Error) Category() ErrorCategory {
	return e.category
}

// Message returns the message without the cause.
func (e *Error) Message() string {
	return e.message
}

// Retryable returns whether this error is retryable.
func (e *Error) Retryable() bool {
	if e.retryable != nil {
		return *e.retryable
	}
	return e.code.DefaultRetryable()
}

// Metadata returns a copy of the error metadata.
func (e *Error) Metadata() map[string]string {
	result := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		result[k] = v
	}
	return result
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Timestamp returns when the error occurred.
func (e *Error) Timestamp() time.Time {
	return e.timestamp
}

// PlayerID returns the player the error concerns, if set.
func (e *Error) PlayerID() string {
	return e.playerID
}

// TaskID returns the task the error concerns, if set.
func (e *Error) TaskID() string {
	return e.taskID
}

type errorJSON struct {
	Code      ErrorCode         `json:"code"`
	Category  ErrorCategory     `json:"category"`
	Message   string            `json:"message"`
	Cause     string            `json:"cause,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Retryable bool              `json:"retryable"`
	Timestamp string            `json:"timestamp,omitempty"`
	PlayerID  string            `json:"player_id,omitempty"`
	TaskID    string            `json:"task_id,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e *Error) MarshalJSON() ([]byte, error) {
	j := errorJSON{
		Code:      e.code,
		Category:  e.category,
		Message:   e.message,
		Metadata:  e.metadata,
		Retryable: e.Retryable(),
		PlayerID:  e.playerID,
		TaskID:    e.taskID,
	}
	if e.cause != nil {
		j.Cause = e.cause.Error()
	}
	if !e.timestamp.IsZero() {
		j.Timestamp = e.timestamp.Format(time.RFC3339Nano)
	}
	return json.Marshal(j)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Error) UnmarshalJSON(data []byte) error {
	var j errorJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	e.code = j.Code
	e.category = j.Category
	e.message = j.Message
	e.metadata = j.Metadata
	e.playerID = j.PlayerID
	e.taskID = j.TaskID
	r := j.Retryable
	e.retryable = &r
	if j.Cause != "" {
		e.cause = fmt.Errorf("%s", j.Cause)
	}
	if j.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339Nano, j.Timestamp); err == nil {
			e.timestamp = t
		}
	}
	return nil
}

// Option is a functional option for configuring an Error.
type Option func(*Error)

// WithRetryable explicitly sets whether the error is retryable.
func WithRetryable(retryable bool) Option {
	return func(e *Error) {
		e.retryable = &retryable
	}
}

// WithMetadata adds a metadata key-value pair.
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithPlayerID sets the player the error concerns.
func WithPlayerID(id string) Option {
	return func(e *Error) {
		e.playerID = id
	}
}

// WithTaskID sets the task the error concerns.
func WithTaskID(id string) Option {
	return func(e *Error) {
		e.taskID = id
	}
}

// WithCause sets the underlying cause.
func WithCause(cause error) Option {
	return func(e *Error) {
		e.cause = cause
	}
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string, opts ...Option) *Error {
	e := &Error{
		code:      code,
		category:  code.DefaultCategory(),
		message:   message,
		timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Newf creates a new Error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// FromCode creates an error with the default description for the code.
func FromCode(code ErrorCode, opts ...Option) *Error {
	return New(code, code.Description(), opts...)
}

// UnknownTaskType reports a class ID with no registered factory.
func UnknownTaskType(classID string, opts ...Option) *Error {
	opts = append([]Option{WithMetadata("class_id", classID)}, opts...)
	return New(ErrCodeUnknownTaskType, fmt.Sprintf("unknown task type %q", classID), opts...)
}

// DuplicateTaskID reports a task ID used twice in one map.
func DuplicateTaskID(taskID string, opts ...Option) *Error {
	opts = append([]Option{WithTaskID(taskID)}, opts...)
	return New(ErrCodeDuplicateTaskID, fmt.Sprintf("duplicate task id %q", taskID), opts...)
}

// InvalidInput creates an invalid input error.
func InvalidInput(message string, opts ...Option) *Error {
	return New(ErrCodeInvalidInput, message, opts...)
}

// TaskAlreadyInProgress reports that the player already has an active task.
func TaskAlreadyInProgress(playerID, activeTaskID string) *Error {
	return New(ErrCodeTaskInProgress,
		fmt.Sprintf("player %s is already doing task %s", playerID, activeTaskID),
		WithPlayerID(playerID), WithTaskID(activeTaskID))
}

// TaskAlreadyCompleted reports a request for a task the player already did.
func TaskAlreadyCompleted(playerID, taskID string) *Error {
	return New(ErrCodeTaskCompleted,
		fmt.Sprintf("player %s already completed task %s", playerID, taskID),
		WithPlayerID(playerID), WithTaskID(taskID))
}

// PlayerNotAlive reports a request from a dead player.
func PlayerNotAlive(playerID string) *Error {
	return New(ErrCodePlayerNotAlive, fmt.Sprintf("player %s is not alive", playerID),
		WithPlayerID(playerID))
}

// NotFound creates a not found error.
func NotFound(message string, opts ...Option) *Error {
	return New(ErrCodeNotFound, message, opts...)
}

// WrongPhase reports a request the current match phase does not allow.
func WrongPhase(phase string, opts ...Option) *Error {
	opts = append([]Option{WithMetadata("phase", phase)}, opts...)
	return New(ErrCodeWrongPhase, fmt.Sprintf("not allowed during %s", phase), opts...)
}

// RateLimited reports a request dropped because key sent too many.
func RateLimited(key string, opts ...Option) *Error {
	opts = append([]Option{WithMetadata("key", key)}, opts...)
	return New(ErrCodeRateLimited, fmt.Sprintf("too many requests from %s", key), opts...)
}

// OutOfOrder reports an event the pairing cannot accept in its current state.
func OutOfOrder(event, state string, opts ...Option) *Error {
	opts = append([]Option{WithMetadata("event", event), WithMetadata("state", state)}, opts...)
	return New(ErrCodeOutOfOrder, fmt.Sprintf("event %s not expected in state %s", event, state), opts...)
}

// Disconnected creates a channel disconnected error.
func Disconnected(playerID string, opts ...Option) *Error {
	opts = append([]Option{WithPlayerID(playerID)}, opts...)
	return New(ErrCodeDisconnected, fmt.Sprintf("player %s disconnected", playerID), opts...)
}

// Timeout creates a timeout error.
func Timeout(message string, opts ...Option) *Error {
	return New(ErrCodeTimeout, message, opts...)
}

// Internal creates an internal error.
func Internal(message string, opts ...Option) *Error {
	return New(ErrCodeInternal, message, opts...)
}
