package transport

import (
	"context"
	"sync"
)

// Pipe is one end of an in-memory transport pair.
// Messages are encoded and re-parsed on every hop so both ends see exactly
// what a network peer would.
type Pipe struct {
	recv  chan *Message
	peer  *Pipe
	state *pipeState
}

type pipeState struct {
	mu   sync.RWMutex
	done chan struct{}
	once sync.Once
}

// NewPipe returns two connected transports. Closing either end closes both.
func NewPipe(cfg Config) (*Pipe, *Pipe) {
	cfg = cfg.withDefaults()
	st := &pipeState{done: make(chan struct{})}
	a := &Pipe{recv: make(chan *Message, cfg.RecvBufferSize), state: st}
	b := &Pipe{recv: make(chan *Message, cfg.RecvBufferSize), state: st}
	a.peer, b.peer = b, a
	return a, b
}

// Recv returns the channel for incoming messages.
func (p *Pipe) Recv() <-chan *Message {
	return p.recv
}

// Send delivers a message to the other end.
func (p *Pipe) Send(msg *Message) error {
	data, err := MarshalMessage(msg)
	if err != nil {
		return err
	}
	parsed, err := ParseMessage(data)
	if err != nil {
		return err
	}

	p.state.mu.RLock()
	defer p.state.mu.RUnlock()

	select {
	case <-p.state.done:
		return ErrClosed
	default:
	}

	select {
	case p.peer.recv <- parsed:
		return nil
	case <-p.state.done:
		return ErrClosed
	}
}

// Run blocks until ctx is cancelled or either end closes.
func (p *Pipe) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		p.Close()
		return ctx.Err()
	case <-p.state.done:
		return nil
	}
}

// Close closes both ends.
func (p *Pipe) Close() error {
	p.state.once.Do(func() {
		close(p.state.done)
		p.state.mu.Lock()
		close(p.recv)
		close(p.peer.recv)
		p.state.mu.Unlock()
	})
	return nil
}
