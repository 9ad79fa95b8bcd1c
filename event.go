package lockbox

import (
	"encoding/json"
	"time"
)

type (
	// Event is a single state-mutating or read-only operation submitted to a
	// Handle. Data carries the encoded payload; Sequence is assigned by the
	// backend once the event has been accepted into the journal
	Event struct {
		Timestamp time.Time       `json:"timestamp"`
		Sequence  int64           `json:"sequence"`
		Type      EventType       `json:"type"`
		Data      json.RawMessage `json:"data"`
	}

	// EventType identifies which Applier or Querier handles an Event
	EventType string
)

// NewEvent marshals the value into a new Event of the given type
func NewEvent(typ EventType, value any) (*Event, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return &Event{
		Timestamp: time.Now(),
		Type:      typ,
		Data:      data,
	}, nil
}

// coldEvent wraps an externally encoded payload without re-encoding it
func coldEvent(typ EventType, data []byte) *Event {
	return &Event{
		Timestamp: time.Now(),
		Type:      typ,
		Data:      data,
	}
}
