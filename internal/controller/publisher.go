package controller

import (
	"context"
	"ctchen222/tictactoe-solo/internal/events"
)

//go:generate mockgen -source=publisher.go -destination=mock_controller/mock_publisher.go

// Publisher receives an update event after every accepted transition.
type Publisher interface {
	Publish(ctx context.Context, sessionID string, ev events.Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, events.Event) error { return nil }
