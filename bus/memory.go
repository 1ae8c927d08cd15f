package bus

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryBus implements MessageBus using in-memory channels.
type MemoryBus struct {
	config Config

	mu     sync.RWMutex
	subs   []*memorySub
	closed atomic.Bool

	replySeq atomic.Uint64
}

type memorySub struct {
	pattern string
	ch      chan *Message
	bus     *MemoryBus

	// closeMu orders sends against close(ch).
	closeMu sync.RWMutex
	closed  bool
}

// NewMemoryBus creates a new in-memory message bus.
func NewMemoryBus(cfg Config) *MemoryBus {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	return &MemoryBus{config: cfg}
}

// Publish sends a message to every matching subscriber.
func (b *MemoryBus) Publish(subject string, data []byte) error {
	return b.publish(&Message{Subject: subject, Data: data})
}

func (b *MemoryBus) publish(msg *Message) error {
	if err := ValidateSubject(msg.Subject, false); err != nil {
		return err
	}
	if b.closed.Load() {
		return ErrClosed
	}

	b.mu.RLock()
	subs := make([]*memorySub, 0, len(b.subs))
	for _, sub := range b.subs {
		if MatchSubject(sub.pattern, msg.Subject) {
			subs = append(subs, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.deliver(msg)
	}
	return nil
}

// Subscribe creates a subscription to a subject pattern.
func (b *MemoryBus) Subscribe(subject string) (Subscription, error) {
	if err := ValidateSubject(subject, true); err != nil {
		return nil, err
	}
	if b.closed.Load() {
		return nil, ErrClosed
	}

	sub := &memorySub{
		pattern: subject,
		ch:      make(chan *Message, b.config.BufferSize),
		bus:     b,
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	return sub, nil
}

// Request publishes with a unique reply subject and waits for one reply.
func (b *MemoryBus) Request(subject string, data []byte, timeout time.Duration) (*Message, error) {
	if err := ValidateSubject(subject, false); err != nil {
		return nil, err
	}

	inbox := fmt.Sprintf("_INBOX.%d", b.replySeq.Add(1))
	replySub, err := b.Subscribe(inbox)
	if err != nil {
		return nil, err
	}
	defer replySub.Unsubscribe()

	b.mu.RLock()
	responders := 0
	for _, sub := range b.subs {
		if MatchSubject(sub.pattern, subject) {
			responders++
		}
	}
	b.mu.RUnlock()
	if responders == 0 {
		return nil, ErrNoResponders
	}

	if err := b.publish(&Message{Subject: subject, Data: data, Reply: inbox}); err != nil {
		return nil, err
	}

	select {
	case reply, ok := <-replySub.Messages():
		if !ok {
			return nil, ErrClosed
		}
		return reply, nil
	case <-time.After(timeout):
		return nil, ErrTimeout
	}
}

// Close shuts down the bus and ends every subscription.
func (b *MemoryBus) Close() error {
	if b.closed.Swap(true) {
		return nil
	}

	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	return nil
}

func (s *memorySub) deliver(msg *Message) {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- msg:
	default:
		// Buffer full, drop message
	}
}

func (s *memorySub) close() bool {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	close(s.ch)
	return true
}

// Messages returns the message channel.
func (s *memorySub) Messages() <-chan *Message {
	return s.ch
}

// Unsubscribe cancels the subscription.
func (s *memorySub) Unsubscribe() error {
	if !s.close() {
		return nil
	}

	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	for i, sub := range s.bus.subs {
		if sub == s {
			s.bus.subs = append(s.bus.subs[:i:i], s.bus.subs[i+1:]...)
			break
		}
	}
	return nil
}
