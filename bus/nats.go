package bus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSBus implements MessageBus using NATS core messaging.
type NATSBus struct {
	conn   *nats.Conn
	config NATSConfig
	owned  bool
}

// NATSConfig holds NATS connection configuration.
type NATSConfig struct {
	Config

	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	URL string

	// Name is the client name for identification.
	Name string

	// Token for token-based auth.
	Token string

	// User and Password for basic auth.
	User     string
	Password string

	// ReconnectWait is the time to wait between reconnection attempts.
	ReconnectWait time.Duration

	// MaxReconnects is the maximum number of reconnection attempts.
	// -1 = unlimited
	MaxReconnects int

	// ConnectTimeout for initial connection.
	ConnectTimeout time.Duration
}

// DefaultNATSConfig returns configuration with sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		Config:         DefaultConfig(),
		URL:            nats.DefaultURL,
		Name:           "taskparty",
		ReconnectWait:  2 * time.Second,
		MaxReconnects:  -1,
		ConnectTimeout: 5 * time.Second,
	}
}

// NewNATSBus connects to NATS. The bus owns and closes the connection.
func NewNATSBus(cfg NATSConfig) (*NATSBus, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}

	conn, err := nats.Connect(cfg.URL, buildNATSOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &NATSBus{conn: conn, config: cfg, owned: true}, nil
}

// NewNATSBusFromConn wraps an existing connection, which the caller keeps
// ownership of.
func NewNATSBusFromConn(conn *nats.Conn, cfg NATSConfig) *NATSBus {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	return &NATSBus{conn: conn, config: cfg}
}

func buildNATSOptions(cfg NATSConfig) []nats.Option {
	opts := []nats.Option{
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
	}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}
	return opts
}

// Publish sends a message to a subject.
func (b *NATSBus) Publish(subject string, data []byte) error {
	if err := ValidateSubject(subject, false); err != nil {
		return err
	}
	if b.conn.IsClosed() {
		return ErrClosed
	}
	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// Subscribe creates a subscription to a subject pattern.
func (b *NATSBus) Subscribe(subject string) (Subscription, error) {
	if err := ValidateSubject(subject, true); err != nil {
		return nil, err
	}
	if b.conn.IsClosed() {
		return nil, ErrClosed
	}

	s := &natsSubscription{ch: make(chan *Message, b.config.BufferSize)}
	sub, err := b.conn.Subscribe(subject, func(m *nats.Msg) {
		s.deliver(&Message{Subject: m.Subject, Data: m.Data, Reply: m.Reply})
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe: %w", err)
	}
	s.sub = sub
	return s, nil
}

// Request sends a request and waits for reply.
func (b *NATSBus) Request(subject string, data []byte, timeout time.Duration) (*Message, error) {
	if err := ValidateSubject(subject, false); err != nil {
		return nil, err
	}
	if b.conn.IsClosed() {
		return nil, ErrClosed
	}

	reply, err := b.conn.Request(subject, data, timeout)
	if err != nil {
		switch {
		case errors.Is(err, nats.ErrTimeout):
			return nil, ErrTimeout
		case errors.Is(err, nats.ErrNoResponders):
			return nil, ErrNoResponders
		}
		return nil, fmt.Errorf("nats request: %w", err)
	}
	return &Message{Subject: reply.Subject, Data: reply.Data, Reply: reply.Reply}, nil
}

// Close closes the connection if the bus opened it.
func (b *NATSBus) Close() error {
	if b.owned {
		b.conn.Close()
	}
	return nil
}

// Conn returns the underlying NATS connection, e.g. for a JetStream store.
func (b *NATSBus) Conn() *nats.Conn {
	return b.conn
}

type natsSubscription struct {
	sub *nats.Subscription
	ch  chan *Message

	// mu orders handler sends against close(ch).
	mu     sync.RWMutex
	closed bool
}

func (s *natsSubscription) deliver(msg *Message) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- msg:
	default:
		// Buffer full
	}
}

func (s *natsSubscription) Messages() <-chan *Message {
	return s.ch
}

func (s *natsSubscription) Unsubscribe() error {
	err := s.sub.Unsubscribe()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return err
}
