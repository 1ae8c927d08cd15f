package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vinayprograms/taskparty/protocol"
)

// Match event types, mirroring what players receive.
const (
	EventRoster     = protocol.EventUpdateGameRoster
	EventTaskBar    = protocol.EventUpdateTaskBar
	EventMatchState = protocol.EventMatchState
	EventTaskDone   = "taskCompleted"
	EventAlive      = "aliveChanged"
)

// MatchEvent is a broadcast of one match, as published on the bus.
type MatchEvent struct {
	MatchID string          `json:"match_id"`
	Type    string          `json:"type"`
	Seq     uint64          `json:"seq"`
	Time    time.Time       `json:"time"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EventsSubject is the subject a match publishes its events on.
func EventsSubject(matchID string) string {
	return fmt.Sprintf("match.%s.events", matchID)
}

// SnapshotSubject is the subject a match answers snapshot requests on.
func SnapshotSubject(matchID string) string {
	return fmt.Sprintf("match.%s.snapshot", matchID)
}

// NewMatchEvent encodes payload into an event.
func NewMatchEvent(matchID, eventType string, seq uint64, payload interface{}) (MatchEvent, error) {
	ev := MatchEvent{
		MatchID: matchID,
		Type:    eventType,
		Seq:     seq,
		Time:    time.Now().UTC(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return ev, fmt.Errorf("encode %s payload: %w", eventType, err)
		}
		ev.Payload = data
	}
	return ev, nil
}

// PublishEvent publishes ev on its match's events subject.
func PublishEvent(b MessageBus, ev MatchEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode match event: %w", err)
	}
	return b.Publish(EventsSubject(ev.MatchID), data)
}

// DecodeEvent parses a message published by PublishEvent.
func DecodeEvent(data []byte) (MatchEvent, error) {
	var ev MatchEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("decode match event: %w", err)
	}
	return ev, nil
}
