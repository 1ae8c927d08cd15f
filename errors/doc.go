// Package errors provides the structured error taxonomy of taskparty.
//
// # Categories
//
//   - Setup: building a match failed (unknown task type, duplicate task id).
//     Match creation is aborted.
//   - Request: a player's request was rejected (task in progress, already
//     completed, player not alive). Only the requester is told.
//   - Protocol: a client sent an event the pairing cannot accept right now.
//     Logged and ignored, the connection stays up.
//   - Transient: the channel dropped or an ack timed out. Triggers release
//     of the in-flight task.
//   - Internal: bugs.
//
// # Usage
//
//	err := errors.TaskAlreadyCompleted("p1", "wires-1")
//	if errors.Is(err, errors.ErrCodeTaskCompleted) {
//	    // tell the player
//	}
//
// Errors marshal to JSON so they can travel as JSON-RPC error data.
package errors
