package errors

// ErrorCategory classifies errors by where they arise and how they are handled.
type ErrorCategory string

// Error categories.
const (
	// CategorySetup covers failures while building a match.
	// They abort match creation.
	CategorySetup ErrorCategory = "setup"

	// CategoryRequest covers rejected player requests.
	// They are reported to the requesting player only.
	CategoryRequest ErrorCategory = "request"

	// CategoryProtocol covers protocol violations by a client.
	// They are logged and the offending event is ignored.
	CategoryProtocol ErrorCategory = "protocol"

	// CategoryTransient covers connection loss and timeouts.
	CategoryTransient ErrorCategory = "transient"

	// CategoryInternal indicates bugs or corrupted state.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	return c == CategoryTransient
}

// ErrorCode identifies specific error types within categories.
type ErrorCode string

// Error codes.
const (
	// Setup errors
	ErrCodeUnknownTaskType ErrorCode = "UNKNOWN_TASK_TYPE" // No factory for class ID
	ErrCodeDuplicateTaskID ErrorCode = "DUPLICATE_TASK_ID" // Task ID repeated in one map
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"     // Malformed map or params

	// Request errors
	ErrCodeTaskInProgress   ErrorCode = "TASK_ALREADY_IN_PROGRESS"
	ErrCodeTaskCompleted    ErrorCode = "TASK_ALREADY_COMPLETED"
	ErrCodePlayerNotAlive   ErrorCode = "PLAYER_NOT_ALIVE"
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrCodeWrongPhase       ErrorCode = "WRONG_PHASE"
	ErrCodeRateLimited      ErrorCode = "RATE_LIMITED"

	// Protocol errors
	ErrCodeOutOfOrder ErrorCode = "OUT_OF_ORDER_EVENT"

	// Transient errors
	ErrCodeDisconnected ErrorCode = "CHANNEL_DISCONNECTED"
	ErrCodeTimeout      ErrorCode = "TIMEOUT"

	// Internal errors
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeUnknownTaskType, ErrCodeDuplicateTaskID, ErrCodeInvalidInput:
		return CategorySetup
	case ErrCodeTaskInProgress, ErrCodeTaskCompleted, ErrCodePlayerNotAlive,
		ErrCodeNotFound, ErrCodeWrongPhase, ErrCodeRateLimited:
		return CategoryRequest
	case ErrCodeOutOfOrder:
		return CategoryProtocol
	case ErrCodeDisconnected, ErrCodeTimeout:
		return CategoryTransient
	default:
		return CategoryInternal
	}
}

// DefaultRetryable returns whether this error code is typically retryable.
// A task already in progress frees up once the current task ends, and a
// throttled request succeeds once the bucket refills.
func (c ErrorCode) DefaultRetryable() bool {
	if c == ErrCodeTaskInProgress || c == ErrCodeRateLimited {
		return true
	}
	return c.DefaultCategory().IsRetryable()
}

var codeDescriptions = map[ErrorCode]string{
	ErrCodeUnknownTaskType: "unknown task type",
	ErrCodeDuplicateTaskID: "duplicate task id",
	ErrCodeInvalidInput:    "invalid input provided",
	ErrCodeTaskInProgress:  "another task is already in progress",
	ErrCodeTaskCompleted:   "task already completed",
	ErrCodePlayerNotAlive:  "player is not alive",
	ErrCodeNotFound:        "not found",
	ErrCodeWrongPhase:      "not allowed in the current match phase",
	ErrCodeRateLimited:     "too many requests",
	ErrCodeOutOfOrder:      "out of order event",
	ErrCodeDisconnected:    "channel disconnected",
	ErrCodeTimeout:         "operation timed out",
	ErrCodeInternal:        "internal error",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}
