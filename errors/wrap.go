package errors

import (
	"context"
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context while preserving the error chain.
// If err is nil, Wrap returns nil.
// A wrapped *Error keeps its code, category and identifiers; context errors
// map to TIMEOUT or CHANNEL_DISCONNECTED; anything else becomes INTERNAL.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	var gameErr *Error
	if errors.As(err, &gameErr) {
		wrapped := &Error{
			code:      gameErr.code,
			category:  gameErr.category,
			message:   message,
			cause:     err,
			metadata:  gameErr.Metadata(),
			retryable: gameErr.retryable,
			timestamp: gameErr.timestamp,
			playerID:  gameErr.playerID,
			taskID:    gameErr.taskID,
		}
		for _, opt := range opts {
			opt(wrapped)
		}
		return wrapped
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return New(ErrCodeTimeout, message, append(opts, WithCause(err))...)
	}
	if errors.Is(err, context.Canceled) {
		return New(ErrCodeDisconnected, message, append(opts, WithCause(err))...)
	}

	return New(ErrCodeInternal, message, append(opts, WithCause(err))...)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// AsGameError extracts a GameError from an error chain.
// Returns nil if none is found.
func AsGameError(err error) GameError {
	var gameErr *Error
	if errors.As(err, &gameErr) {
		return gameErr
	}
	return nil
}

// Is checks if any error in the chain has the given error code.
func Is(err error, code ErrorCode) bool {
	var gameErr *Error
	if errors.As(err, &gameErr) {
		return gameErr.code == code
	}
	return false
}

// IsCategory checks if any error in the chain has the given category.
func IsCategory(err error, category ErrorCategory) bool {
	var gameErr *Error
	if errors.As(err, &gameErr) {
		return gameErr.category == category
	}
	return false
}

// IsRetryable checks if the error is retryable.
func IsRetryable(err error) bool {
	var gameErr *Error
	if errors.As(err, &gameErr) {
		return gameErr.Retryable()
	}
	return false
}

// Code extracts the error code from an error, or "" for foreign errors.
func Code(err error) ErrorCode {
	var gameErr *Error
	if errors.As(err, &gameErr) {
		return gameErr.code
	}
	return ""
}

// Join combines multiple errors into a single error.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
