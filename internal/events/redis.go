package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("events")

// RedisBus publishes session events over Redis pub/sub so that every
// process instance holding a websocket for the session receives them.
type RedisBus struct {
	rdb *redis.Client
}

// NewRedisBus creates a Bus backed by rdb.
func NewRedisBus(rdb *redis.Client) *RedisBus {
	return &RedisBus{rdb: rdb}
}

// Publish sends ev on the session channel.
func (b *RedisBus) Publish(ctx context.Context, sessionID string, ev Event) error {
	ctx, span := tracer.Start(ctx, "events.RedisBus.Publish", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("event.type", ev.Type),
	))
	defer span.End()

	data, err := json.Marshal(ev)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to marshal event")
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.rdb.Publish(ctx, SessionChannel(sessionID), data).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to publish event")
		return fmt.Errorf("failed to publish event to redis: %w", err)
	}
	return nil
}

// Subscribe listens on the session channel until Close or ctx ends.
func (b *RedisBus) Subscribe(ctx context.Context, sessionID string) (Subscription, error) {
	channel := SessionChannel(sessionID)
	pubsub := b.rdb.Subscribe(ctx, channel)

	// Wait for the subscription confirmation so that events published right
	// after Subscribe returns are not lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		ch:     make(chan Event, subscriberBuffer),
		done:   make(chan struct{}),
	}
	go sub.pump(ctx, sessionID)

	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	ch     chan Event
	done   chan struct{}
	once   sync.Once
}

func (s *redisSubscription) pump(ctx context.Context, sessionID string) {
	defer close(s.ch)

	msgs := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			_ = s.Close()
			return
		case <-s.done:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}

			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				slog.WarnContext(ctx, "dropping malformed event", "session.id", sessionID, "error", err)
				continue
			}

			select {
			case s.ch <- ev:
			case <-s.done:
				return
			}
		}
	}
}

func (s *redisSubscription) Events() <-chan Event {
	return s.ch
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}
