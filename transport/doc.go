// Package transport provides pluggable transports for JSON-RPC 2.0 communication.
//
// # Overview
//
// A Transport moves JSON-RPC messages between a match server and one player
// device. Unlike a plain RPC server both ends may issue requests: the server
// asks the client to start a task ("doTask") and the client asks the server
// for a task ("requestTask").
//
// # Available Transports
//
//   - WebSocketTransport: Bidirectional over WebSocket (player devices)
//   - Pipe: In-memory pair for tests and bots
//
// # Usage
//
//	t := transport.NewWebSocketTransport(conn, transport.DefaultWebSocketConfig())
//	go t.Run(ctx)
//
//	for msg := range t.Recv() {
//	    switch {
//	    case msg.Request != nil:
//	        reply, _ := transport.NewResult(msg.Request.ID, result)
//	        t.Send(reply)
//	    case msg.Notification != nil:
//	        // event from the peer
//	    case msg.Response != nil:
//	        // ack for one of our requests
//	    }
//	}
//
// Most code should use package channel on top of a Transport instead of
// reading Recv directly.
//
// # Design Decisions
//
//   - Channel-based API: Go-idiomatic for concurrent use
//   - Run returns when the peer disconnects, so callers can treat its return
//     as the disconnect signal
//   - Reconnection: handled by the game layer, not here
//
// # Thread Safety
//
// All transport methods are safe for concurrent use. The Recv() channel
// is closed when the transport shuts down.
package transport
