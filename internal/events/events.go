package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Event types
const (
	TypeUpdate = "update"
	TypeClosed = "closed"
)

var ErrBusClosed = errors.New("event bus is closed")

// Event represents a message published for one session.
type Event struct {
	Type    string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SessionClosedPayload is the payload for the "closed" event.
type SessionClosedPayload struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

// NewEvent marshals payload into an Event of the given type.
func NewEvent(eventType string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return Event{Type: eventType, Payload: data}, nil
}

// SessionChannel is the pub/sub channel name carrying one session's events.
func SessionChannel(sessionID string) string {
	return fmt.Sprintf("channel:session:%s", sessionID)
}

// Bus fans session events out to subscribers.
type Bus interface {
	Publish(ctx context.Context, sessionID string, ev Event) error
	Subscribe(ctx context.Context, sessionID string) (Subscription, error)
}

// Subscription is a live stream of one session's events.
type Subscription interface {
	Events() <-chan Event
	Close() error
}
