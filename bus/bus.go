package bus

import (
	"errors"
	"strings"
	"time"
)

// Common errors.
var (
	ErrClosed         = errors.New("bus closed")
	ErrTimeout        = errors.New("request timeout")
	ErrNoResponders   = errors.New("no responders")
	ErrInvalidSubject = errors.New("invalid subject")
)

// Message represents a message received from the bus.
type Message struct {
	// Subject the message was published to.
	Subject string

	// Data is the message payload.
	Data []byte

	// Reply is the reply subject for request/reply.
	// Empty for regular pub/sub messages.
	Reply string
}

// MessageBus provides pub/sub and request/reply messaging.
type MessageBus interface {
	// Publish sends a message to all subscribers of a subject.
	Publish(subject string, data []byte) error

	// Subscribe creates a subscription. subject may contain wildcards.
	Subscribe(subject string) (Subscription, error)

	// Request sends a request and waits for a single reply.
	// Returns ErrTimeout if no reply within timeout.
	Request(subject string, data []byte, timeout time.Duration) (*Message, error)

	// Close shuts down the bus connection.
	Close() error
}

// Subscription represents an active subscription.
type Subscription interface {
	// Messages returns the channel for incoming messages.
	// Channel is closed when subscription ends.
	Messages() <-chan *Message

	// Unsubscribe cancels the subscription.
	Unsubscribe() error
}

// Config holds common bus configuration.
type Config struct {
	// BufferSize for subscription channels. Slow subscribers lose messages
	// once the buffer is full.
	// Default: 256
	BufferSize int
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize: 256,
	}
}

// ValidateSubject checks that subject is a run of non-empty tokens. With
// wildcards true, "*" tokens and a final ">" token are allowed.
func ValidateSubject(subject string, wildcards bool) error {
	if subject == "" || strings.ContainsAny(subject, " \t\r\n") {
		return ErrInvalidSubject
	}
	tokens := strings.Split(subject, ".")
	for i, tok := range tokens {
		switch {
		case tok == "":
			return ErrInvalidSubject
		case tok == "*":
			if !wildcards {
				return ErrInvalidSubject
			}
		case tok == ">":
			if !wildcards || i != len(tokens)-1 {
				return ErrInvalidSubject
			}
		case strings.ContainsAny(tok, "*>"):
			return ErrInvalidSubject
		}
	}
	return nil
}

// MatchSubject reports whether subject matches pattern.
func MatchSubject(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")
	for i, p := range pt {
		if p == ">" {
			return len(st) > i
		}
		if i >= len(st) {
			return false
		}
		if p != "*" && p != st[i] {
			return false
		}
	}
	return len(pt) == len(st)
}
