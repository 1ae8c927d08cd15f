// Package channel provides the per-player event channel used by the match
// server and by player clients.
//
// A Channel sits on top of a transport.Transport and offers socket-style
// events:
//
//   - Emit: fire-and-forget notification
//   - EmitWithAck: request whose reply is handed to a callback at most once
//   - Once: handler for the next occurrence of an event only
//   - On: persistent handler
//   - Handle: serve requests sent by the peer
//
// # Ordering
//
// Every handler, ack callback and request handler of one Channel runs on the
// goroutine that called Run, one at a time, in arrival order. Registration is
// synchronous, so a Once registered before an Emit always sees the reply.
//
// Several Once handlers for the same event form a FIFO queue; each consumes
// exactly one occurrence.
//
// # Disconnection
//
// When the transport ends, pending acks are dropped without being called,
// subscriptions are cleared, and OnClose callbacks fire once.
package channel
