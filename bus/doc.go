// Package bus carries match events between processes.
//
// The match coordinator publishes every broadcast it sends to players as a
// MatchEvent on "match.<id>.events", so lobby screens, spectators and
// analytics can follow a match without a player connection. It also answers
// snapshot requests on "match.<id>.snapshot".
//
// # Implementations
//
//   - NATSBus: NATS core pub/sub, for multi-process deployments
//   - MemoryBus: in-process, for single-server use and tests
//
// # Subjects
//
// Subjects are dot-separated tokens. Subscriptions accept the NATS
// wildcards "*" (one token) and ">" (one or more trailing tokens):
//
//	sub, _ := b.Subscribe("match.*.events")
//	for msg := range sub.Messages() {
//	    ev, _ := bus.DecodeEvent(msg.Data)
//	    fmt.Println(ev.MatchID, ev.Type)
//	}
//
// Request/Reply:
//
//	reply, _ := b.Request(bus.SnapshotSubject("ABCDEF"), nil, time.Second)
package bus
