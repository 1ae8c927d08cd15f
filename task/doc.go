// Package task implements the task lifecycle shared by every task kind.
//
// A Task is one task on the map, e.g. "fix the wires in electrical". Each
// player that starts it gets an independent pairing that moves through
//
//	Idle -> Requested -> Active -> Completed
//	                            -> FinishedUnconfirmed -> Completed
//
// The Task drives the handshake with the player's device over their event
// channel:
//
//	server                         device
//	  | -- doTask {taskId} ----------> |
//	  | <----------- ack {started} --- |
//	  | <----- taskFinished {aborted}  |
//	  | <----------- taskComplete ---- |   (confirmation scan only)
//
// A declined start, an ack timeout, an abort or an abandonment releases the
// pairing back to Idle so the player may try again. Completed is terminal.
//
// Kind-specific behaviour lives behind the Behavior interface; the built-in
// kinds are in the kinds subpackage. A Registry maps class IDs to behaviour
// factories and builds a Catalog from a map's task descriptors.
package task
