package channel

import "encoding/json"

// Handler receives the payload of an event.
type Handler func(payload json.RawMessage)

// Subscription is a registered event handler.
type Subscription struct {
	event   string
	handler Handler
	once    bool
	ch      *Channel

	// removed is guarded by ch.mu.
	removed bool
}

// Event returns the event name the subscription listens to.
func (s *Subscription) Event() string {
	return s.event
}

// Cancel removes the subscription. It reports whether the handler was still
// registered, i.e. for a Once subscription that it had not fired yet.
func (s *Subscription) Cancel() bool {
	s.ch.mu.Lock()
	defer s.ch.mu.Unlock()

	if s.removed {
		return false
	}
	s.removed = true

	if s.once {
		s.ch.once[s.event] = removeSub(s.ch.once[s.event], s)
		if len(s.ch.once[s.event]) == 0 {
			delete(s.ch.once, s.event)
		}
	} else {
		s.ch.on[s.event] = removeSub(s.ch.on[s.event], s)
		if len(s.ch.on[s.event]) == 0 {
			delete(s.ch.on, s.event)
		}
	}
	return true
}

func (s *Subscription) active() bool {
	s.ch.mu.Lock()
	defer s.ch.mu.Unlock()
	return !s.removed
}

func removeSub(subs []*Subscription, target *Subscription) []*Subscription {
	for i, sub := range subs {
		if sub == target {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}
