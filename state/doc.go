// Package state persists per-player match progress.
//
// The Store interface is a small key-value abstraction with two backends:
// NATS JetStream KV for servers that must survive restarts or share state,
// and an in-memory map for single-process use and tests.
//
//	conn, _ := nats.Connect(nats.DefaultURL)
//	kv, _ := state.NewNATSStore(state.NATSStoreConfig{Conn: conn, Bucket: "taskparty"})
//	progress := state.NewProgressStore(kv)
//
//	progress.Save(ctx, "ABCDEF", state.Progress{PlayerID: "p1", Completed: []string{"wires"}})
//	p, _ := progress.Load(ctx, "ABCDEF", "p1")
//
// Keys are dot-separated tokens, e.g. "match.ABCDEF.player.p1".
package state
