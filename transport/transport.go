// Package transport provides pluggable transports for JSON-RPC 2.0 communication.
//
// Both ends of a connection may send requests, responses and notifications,
// so the same Transport serves the match server and player clients.
package transport

import (
	"context"
	"errors"
)

// Common errors.
var (
	ErrClosed      = errors.New("transport closed")
	ErrSendTimeout = errors.New("send timeout")
)

// Transport provides bidirectional JSON-RPC message passing.
type Transport interface {
	// Recv returns channel for incoming messages.
	// Channel is closed when transport shuts down or the peer goes away.
	Recv() <-chan *Message

	// Send queues a message for delivery.
	// Returns ErrClosed if transport is closed.
	Send(msg *Message) error

	// Run starts the transport, blocks until ctx is cancelled or the
	// connection ends. Returns nil when the peer closed the connection.
	Run(ctx context.Context) error

	// Close initiates graceful shutdown.
	Close() error
}

// Config holds common transport configuration.
type Config struct {
	// RecvBufferSize is the size of the receive channel buffer.
	// Default: 100
	RecvBufferSize int

	// SendBufferSize is the size of the internal send buffer.
	// Default: 100
	SendBufferSize int
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RecvBufferSize: 100,
		SendBufferSize: 100,
	}
}

func (c Config) withDefaults() Config {
	if c.RecvBufferSize <= 0 {
		c.RecvBufferSize = DefaultConfig().RecvBufferSize
	}
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = DefaultConfig().SendBufferSize
	}
	return c
}
