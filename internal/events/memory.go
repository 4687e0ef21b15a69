package events

import (
	"context"
	"log/slog"
	"sync"
)

const subscriberBuffer = 16

// MemoryBus is an in-process Bus. Delivery never blocks the publisher: a
// subscriber whose buffer is full misses the event.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string]map[*memorySubscription]struct{}
	closed bool
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[*memorySubscription]struct{})}
}

// Publish delivers ev to every current subscriber of the session.
func (b *MemoryBus) Publish(ctx context.Context, sessionID string, ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBusClosed
	}

	for sub := range b.subs[sessionID] {
		select {
		case sub.ch <- ev:
		default:
			slog.WarnContext(ctx, "dropping event for slow subscriber", "session.id", sessionID, "event.type", ev.Type)
		}
	}
	return nil
}

// Subscribe registers a new subscriber. It is removed on Close or when ctx ends.
func (b *MemoryBus) Subscribe(ctx context.Context, sessionID string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}

	sub := &memorySubscription{
		bus:       b,
		sessionID: sessionID,
		ch:        make(chan Event, subscriberBuffer),
		done:      make(chan struct{}),
	}
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[*memorySubscription]struct{})
	}
	b.subs[sessionID][sub] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.done:
		}
	}()

	return sub, nil
}

// Close drops every subscription and rejects further use.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for sessionID, subs := range b.subs {
		for sub := range subs {
			sub.shutdown()
		}
		delete(b.subs, sessionID)
	}
	return nil
}

func (b *MemoryBus) remove(sub *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subs[sub.sessionID]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(b.subs, sub.sessionID)
	}
	sub.shutdown()
}

type memorySubscription struct {
	bus       *MemoryBus
	sessionID string
	ch        chan Event
	done      chan struct{}
	once      sync.Once
}

// shutdown must be called with the bus lock held.
func (s *memorySubscription) shutdown() {
	s.once.Do(func() {
		close(s.ch)
		close(s.done)
	})
}

func (s *memorySubscription) Events() <-chan Event {
	return s.ch
}

func (s *memorySubscription) Close() error {
	s.bus.remove(s)
	return nil
}
