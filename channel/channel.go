package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	gerrors "github.com/vinayprograms/taskparty/errors"
	"github.com/vinayprograms/taskparty/logging"
	"github.com/vinayprograms/taskparty/transport"
)

// ErrClosed is returned when emitting on a channel whose connection ended.
var ErrClosed = gerrors.New(gerrors.ErrCodeDisconnected, "channel closed")

// AckFunc receives the peer's reply to an EmitWithAck.
// err is a *errors.Error when the peer answered with a structured game error.
type AckFunc func(result json.RawMessage, err error)

// RequestHandler serves a request sent by the peer.
type RequestHandler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Events is the emitting and subscribing half of a Channel.
type Events interface {
	Emit(event string, payload interface{}) error
	EmitWithAck(event string, payload interface{}, onAck AckFunc) error
	Once(event string, h Handler) *Subscription
	On(event string, h Handler) *Subscription
}

var _ Events = (*Channel)(nil)

// Channel is a bidirectional event channel over one transport connection.
type Channel struct {
	id  string
	t   transport.Transport
	log *logging.Logger

	mu       sync.Mutex
	once     map[string][]*Subscription
	on       map[string][]*Subscription
	handlers map[string]RequestHandler
	pending  map[string]AckFunc
	closeFns []func(error)
	closed   bool
	err      error
	done     chan struct{}
}

// Option configures a Channel.
type Option func(*Channel)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Channel) {
		c.log = l
	}
}

// WithID sets the channel ID (default: random UUID).
func WithID(id string) Option {
	return func(c *Channel) {
		c.id = id
	}
}

// New creates a Channel over t. Call Run to start delivering events.
func New(t transport.Transport, opts ...Option) *Channel {
	c := &Channel{
		id:       uuid.NewString(),
		t:        t,
		log:      logging.Discard(),
		once:     make(map[string][]*Subscription),
		on:       make(map[string][]*Subscription),
		handlers: make(map[string]RequestHandler),
		pending:  make(map[string]AckFunc),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithComponent("channel")
	return c
}

// ID returns the channel ID.
func (c *Channel) ID() string {
	return c.id
}

// Emit sends a fire-and-forget event.
func (c *Channel) Emit(event string, payload interface{}) error {
	if c.isClosed() {
		return ErrClosed
	}
	msg, err := transport.NewNotification(event, payload)
	if err != nil {
		return gerrors.Wrap(err, "encode "+event)
	}
	return c.send(msg)
}

// EmitWithAck sends a request; onAck is called at most once with the reply.
// onAck is never called if the connection drops first.
func (c *Channel) EmitWithAck(event string, payload interface{}, onAck AckFunc) error {
	_, err := c.emitWithAck(event, payload, onAck)
	return err
}

func (c *Channel) emitWithAck(event string, payload interface{}, onAck AckFunc) (string, error) {
	id := uuid.NewString()
	msg, err := transport.NewRequest(transport.StringID(id), event, payload)
	if err != nil {
		return "", gerrors.Wrap(err, "encode "+event)
	}

	key := string(msg.Request.ID)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	c.pending[key] = onAck
	c.mu.Unlock()

	if err := c.send(msg); err != nil {
		c.dropAck(key)
		return "", err
	}
	return key, nil
}

// Request sends a request and blocks for the reply, decoding it into out
// (which may be nil). Must not be called from a handler of this channel.
func (c *Channel) Request(ctx context.Context, method string, params, out interface{}) error {
	type ackResult struct {
		result json.RawMessage
		err    error
	}
	resCh := make(chan ackResult, 1)

	key, err := c.emitWithAck(method, params, func(result json.RawMessage, err error) {
		resCh <- ackResult{result, err}
	})
	if err != nil {
		return err
	}

	select {
	case res := <-resCh:
		if res.err != nil {
			return res.err
		}
		if out != nil && len(res.result) > 0 {
			if err := json.Unmarshal(res.result, out); err != nil {
				return gerrors.Wrapf(err, "decode %s reply", method)
			}
		}
		return nil
	case <-ctx.Done():
		c.dropAck(key)
		return gerrors.Wrap(ctx.Err(), method)
	case <-c.done:
		return ErrClosed
	}
}

// Once registers a handler for the next occurrence of event only.
func (c *Channel) Once(event string, h Handler) *Subscription {
	sub := &Subscription{event: event, handler: h, once: true, ch: c}
	c.mu.Lock()
	if c.closed {
		sub.removed = true
	} else {
		c.once[event] = append(c.once[event], sub)
	}
	c.mu.Unlock()
	return sub
}

// On registers a handler for every occurrence of event.
func (c *Channel) On(event string, h Handler) *Subscription {
	sub := &Subscription{event: event, handler: h, ch: c}
	c.mu.Lock()
	if c.closed {
		sub.removed = true
	} else {
		c.on[event] = append(c.on[event], sub)
	}
	c.mu.Unlock()
	return sub
}

// Handle registers the handler for requests named method, replacing any
// previous one.
func (c *Channel) Handle(method string, h RequestHandler) {
	c.mu.Lock()
	c.handlers[method] = h
	c.mu.Unlock()
}

// OnClose registers fn to run once when the connection ends. If it already
// ended, fn runs immediately.
func (c *Channel) OnClose(fn func(err error)) {
	c.mu.Lock()
	if c.closed {
		err := c.err
		c.mu.Unlock()
		fn(err)
		return
	}
	c.closeFns = append(c.closeFns, fn)
	c.mu.Unlock()
}

// Done is closed when the connection has ended.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended, once Done is closed.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close closes the underlying transport. Run returns shortly after.
func (c *Channel) Close() error {
	return c.t.Close()
}

// Run delivers events until the transport ends. It returns nil when the
// peer disconnected and ctx.Err() when ctx was cancelled.
func (c *Channel) Run(ctx context.Context) error {
	runErr := make(chan error, 1)
	go func() {
		runErr <- c.t.Run(ctx)
	}()

	for msg := range c.t.Recv() {
		c.dispatch(ctx, msg)
	}

	c.t.Close()
	err := <-runErr
	c.shutdown(err)
	return err
}

func (c *Channel) send(msg *transport.Message) error {
	if err := c.t.Send(msg); err != nil {
		if err == transport.ErrClosed {
			return ErrClosed
		}
		return gerrors.Wrap(err, "send")
	}
	return nil
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Channel) dropAck(key string) {
	c.mu.Lock()
	delete(c.pending, key)
	c.mu.Unlock()
}

func (c *Channel) shutdown(cause error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if cause == nil {
		cause = ErrClosed
	}
	c.err = cause
	for _, subs := range c.once {
		for _, s := range subs {
			s.removed = true
		}
	}
	for _, subs := range c.on {
		for _, s := range subs {
			s.removed = true
		}
	}
	c.once = make(map[string][]*Subscription)
	c.on = make(map[string][]*Subscription)
	c.pending = make(map[string]AckFunc)
	fns := c.closeFns
	c.closeFns = nil
	close(c.done)
	c.mu.Unlock()

	for _, fn := range fns {
		fn(cause)
	}
}

// dispatch handles one inbound message on the Run goroutine.
func (c *Channel) dispatch(ctx context.Context, msg *transport.Message) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("handler_panic", map[string]interface{}{
				"channel": c.id,
				"panic":   fmt.Sprintf("%v", r),
			})
		}
	}()

	switch {
	case msg.Notification != nil:
		c.dispatchEvent(msg.Notification.Method, msg.Notification.Params)
	case msg.Request != nil:
		c.dispatchRequest(ctx, msg.Request)
	case msg.Response != nil:
		c.dispatchAck(msg.Response)
	}
}

func (c *Channel) dispatchEvent(event string, params json.RawMessage) {
	c.mu.Lock()
	var first *Subscription
	if q := c.once[event]; len(q) > 0 {
		first = q[0]
		first.removed = true
		if len(q) == 1 {
			delete(c.once, event)
		} else {
			c.once[event] = q[1:]
		}
	}
	persistent := append([]*Subscription(nil), c.on[event]...)
	c.mu.Unlock()

	if first == nil && len(persistent) == 0 {
		c.log.Debug("unhandled_event", map[string]interface{}{"channel": c.id, "event": event})
		return
	}

	if first != nil {
		first.handler(params)
	}
	for _, s := range persistent {
		if s.active() {
			s.handler(params)
		}
	}
}

func (c *Channel) dispatchRequest(ctx context.Context, req *transport.Request) {
	c.mu.Lock()
	h, ok := c.handlers[req.Method]
	c.mu.Unlock()

	if !ok {
		c.send(transport.NewErrorResponse(req.ID, &transport.Error{
			Code:    transport.MethodNotFound,
			Message: "Method not found",
		}))
		return
	}

	result, err := h(ctx, req.Params)
	if err != nil {
		c.send(transport.NewErrorResponse(req.ID, toRPCError(err)))
		return
	}

	reply, encErr := transport.NewResult(req.ID, result)
	if encErr != nil {
		c.send(transport.NewErrorResponse(req.ID, toRPCError(gerrors.Wrap(encErr, "encode result"))))
		return
	}
	c.send(reply)
}

func (c *Channel) dispatchAck(resp *transport.Response) {
	key := string(resp.ID)

	c.mu.Lock()
	ack, ok := c.pending[key]
	delete(c.pending, key)
	c.mu.Unlock()

	if !ok {
		if resp.Error != nil {
			c.log.Warn("peer_error", map[string]interface{}{
				"channel": c.id,
				"code":    resp.Error.Code,
				"message": resp.Error.Message,
			})
		} else {
			c.log.Debug("unexpected_ack", map[string]interface{}{"channel": c.id, "id": key})
		}
		return
	}

	if resp.Error != nil {
		ack(nil, fromRPCError(resp.Error))
		return
	}
	ack(resp.Result, nil)
}

// toRPCError carries structured game errors in the JSON-RPC error data.
func toRPCError(err error) *transport.Error {
	if gameErr, ok := gerrors.AsGameError(err).(*gerrors.Error); ok && gameErr != nil {
		data, _ := json.Marshal(gameErr)
		return &transport.Error{
			Code:    transport.ApplicationError,
			Message: gameErr.Error(),
			Data:    data,
		}
	}
	if rpcErr, ok := err.(*transport.Error); ok {
		return rpcErr
	}
	return &transport.Error{Code: transport.InternalError, Message: err.Error()}
}

func fromRPCError(rpcErr *transport.Error) error {
	if rpcErr.Code == transport.ApplicationError && len(rpcErr.Data) > 0 {
		var gameErr gerrors.Error
		if err := json.Unmarshal(rpcErr.Data, &gameErr); err == nil && gameErr.Code() != "" {
			return &gameErr
		}
	}
	return rpcErr
}
