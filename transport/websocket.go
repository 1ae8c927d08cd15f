package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketTransport implements Transport over WebSocket.
// A single writer goroutine owns all writes to the connection.
type WebSocketTransport struct {
	conn   *websocket.Conn
	config WebSocketConfig

	recv    chan *Message
	send    chan *Message
	done    chan struct{}
	mu      sync.Mutex
	closed  bool
	running atomic.Bool
}

// WebSocketConfig holds WebSocket transport configuration.
type WebSocketConfig struct {
	Config // Embed base config

	// WriteTimeout for write operations.
	WriteTimeout time.Duration

	// ReadTimeout is how long the peer may stay silent (0 = no timeout).
	// Pongs count as traffic, so keep it above PingInterval.
	ReadTimeout time.Duration

	// MaxMessageSize limits incoming message size.
	MaxMessageSize int64

	// PingInterval for keepalive pings (0 = disabled).
	PingInterval time.Duration
}

// DefaultWebSocketConfig returns configuration with sensible defaults.
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		Config:         DefaultConfig(),
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    0,
		MaxMessageSize: 64 * 1024,
		PingInterval:   15 * time.Second,
	}
}

// NewWebSocketTransport creates a transport from an existing connection.
func NewWebSocketTransport(conn *websocket.Conn, cfg WebSocketConfig) *WebSocketTransport {
	cfg.Config = cfg.Config.withDefaults()
	if cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &WebSocketTransport{
		conn:   conn,
		config: cfg,
		recv:   make(chan *Message, cfg.RecvBufferSize),
		send:   make(chan *Message, cfg.SendBufferSize),
		done:   make(chan struct{}),
	}
}

// DialWebSocket connects to a WebSocket endpoint and wraps the connection.
func DialWebSocket(ctx context.Context, url string, cfg WebSocketConfig) (*WebSocketTransport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewWebSocketTransport(conn, cfg), nil
}

// NewWebSocketUpgrader creates an upgrader for accepting WebSocket connections.
// With no origins every origin is accepted.
func NewWebSocketUpgrader(allowedOrigins ...string) *websocket.Upgrader {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			return allowed[r.Header.Get("Origin")]
		},
	}
}

// Recv returns the channel for incoming messages.
func (t *WebSocketTransport) Recv() <-chan *Message {
	return t.recv
}

// Send queues a message for delivery.
func (t *WebSocketTransport) Send(msg *Message) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.mu.Unlock()

	select {
	case t.send <- msg:
		return nil
	case <-t.done:
		return ErrClosed
	}
}

// Run starts the transport, blocking until shutdown or peer disconnect.
func (t *WebSocketTransport) Run(ctx context.Context) error {
	t.running.Store(true)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		t.readLoop(ctx)
		// Peer went away or the read failed: stop writing too.
		t.Close()
	}()

	go func() {
		defer wg.Done()
		t.writeLoop(ctx)
	}()

	select {
	case <-ctx.Done():
	case <-t.done:
	}

	t.Close()
	wg.Wait()

	return ctx.Err()
}

// Close initiates graceful shutdown. Queued messages are flushed by the
// writer before the connection closes.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	t.mu.Unlock()

	if !t.running.Load() {
		return t.conn.Close()
	}
	return nil
}

// readLoop reads WebSocket messages and sends to recv channel.
func (t *WebSocketTransport) readLoop(ctx context.Context) {
	defer close(t.recv)

	if t.config.ReadTimeout > 0 {
		t.conn.SetReadDeadline(time.Now().Add(t.config.ReadTimeout))
		t.conn.SetPongHandler(func(string) error {
			return t.conn.SetReadDeadline(time.Now().Add(t.config.ReadTimeout))
		})
	}

	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			return
		}
		if t.config.ReadTimeout > 0 {
			t.conn.SetReadDeadline(time.Now().Add(t.config.ReadTimeout))
		}

		msg, parseErr := ParseMessage(data)
		if parseErr != nil {
			t.sendParseError(parseErr)
			continue
		}

		select {
		case t.recv <- msg:
		case <-ctx.Done():
			return
		case <-t.done:
			return
		}
	}
}

// writeLoop reads from send channel and writes to WebSocket.
func (t *WebSocketTransport) writeLoop(ctx context.Context) {
	ticker := t.createPingTicker()
	defer ticker.Stop()
	defer t.conn.Close()

	for {
		select {
		case <-ctx.Done():
			t.drainSendQueue()
			t.writeClose()
			return
		case <-t.done:
			t.drainSendQueue()
			t.writeClose()
			return
		case <-ticker.C:
			t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
		case msg := <-t.send:
			t.writeMessage(msg)
		}
	}
}

// createPingTicker creates a ticker for keepalive pings.
func (t *WebSocketTransport) createPingTicker() *time.Ticker {
	if t.config.PingInterval > 0 {
		return time.NewTicker(t.config.PingInterval)
	}
	// Return a ticker that never fires
	ticker := time.NewTicker(time.Hour)
	ticker.Stop()
	return ticker
}

// drainSendQueue writes remaining messages before shutdown.
func (t *WebSocketTransport) drainSendQueue() {
	for {
		select {
		case msg := <-t.send:
			t.writeMessage(msg)
		default:
			return
		}
	}
}

func (t *WebSocketTransport) writeClose() {
	t.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
}

// writeMessage serializes and writes a single message.
func (t *WebSocketTransport) writeMessage(msg *Message) {
	data, err := MarshalMessage(msg)
	if err != nil {
		return
	}

	if t.config.WriteTimeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout))
	}

	t.conn.WriteMessage(websocket.TextMessage, data)
}

// sendParseError answers an unparseable frame with an error response.
func (t *WebSocketTransport) sendParseError(parseErr error) {
	rpcErr, ok := parseErr.(*Error)
	if !ok {
		rpcErr = &Error{Code: ParseError, Message: "Parse error", Data: quote(parseErr.Error())}
	}

	t.Send(NewErrorResponse(nil, rpcErr))
}
