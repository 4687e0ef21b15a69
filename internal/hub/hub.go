package hub

import (
	"context"
	"ctchen222/tictactoe-solo/internal/bot"
	"ctchen222/tictactoe-solo/internal/controller"
	"ctchen222/tictactoe-solo/internal/events"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultIdleTimeout    = 30 * time.Minute
	DefaultReapInterval   = time.Minute
	DefaultForwardTimeout = 2 * time.Second

	closeReasonIdle     = "idle"
	closeReasonRemoved  = "removed"
	closeReasonShutdown = "shutdown"
)

var (
	ErrSessionNotFound = errors.New("session not found")

	tracer = otel.Tracer("hub")
	meter  = otel.Meter("hub")
)

// Config tunes the hub.
type Config struct {
	ComputerDelay time.Duration
	// Seed makes computer moves reproducible; each session derives its own
	// stream from it. Zero seeds every session from the runtime.
	Seed         uint64
	IdleTimeout  time.Duration
	ReapInterval time.Duration
	// Forward sends commands for sessions this hub does not own over the
	// bus, so any instance sharing the bus can serve any session.
	Forward bool
	// ForwardTimeout bounds the wait for the owning instance to answer.
	ForwardTimeout time.Duration
}

// Hub manages all live sessions.
type Hub struct {
	cfg    Config
	bus    events.Bus
	clock  controller.Clock
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*controller.Controller
	ctx      context.Context
	cancel   context.CancelFunc
	created  atomic.Uint64
	live     metric.Int64UpDownCounter
}

// NewHub creates a hub publishing session events to bus.
func NewHub(cfg Config, bus events.Bus, logger *slog.Logger) *Hub {
	if cfg.ComputerDelay <= 0 {
		cfg.ComputerDelay = controller.DefaultComputerDelay
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = DefaultReapInterval
	}
	if cfg.ForwardTimeout <= 0 {
		cfg.ForwardTimeout = DefaultForwardTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	live, err := meter.Int64UpDownCounter("tictactoe.sessions",
		metric.WithDescription("Sessions currently open."),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		otel.Handle(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:      cfg,
		bus:      bus,
		clock:    controller.RealClock(),
		logger:   logger.With("component", "hub"),
		sessions: make(map[string]*controller.Controller),
		ctx:      ctx,
		cancel:   cancel,
		live:     live,
	}
}

// Create opens a new session and starts its controller.
func (h *Hub) Create(ctx context.Context) (*controller.Controller, error) {
	ctx, span := tracer.Start(ctx, "hub.Create")
	defer span.End()

	id := uuid.New().String()
	span.SetAttributes(attribute.String("session.id", id))

	c := controller.New(id,
		controller.WithClock(h.clock),
		controller.WithComputerDelay(h.cfg.ComputerDelay),
		controller.WithSource(h.newSource()),
		controller.WithPublisher(h.bus),
		controller.WithLogger(h.logger),
	)

	// Listen for forwarded commands before anyone can learn the id.
	var commands events.Subscription
	if h.cfg.Forward {
		sub, err := h.bus.Subscribe(h.ctx, events.CommandTopic(id))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to subscribe to session commands")
			return nil, fmt.Errorf("subscribe to commands of session %s: %w", id, err)
		}
		commands = sub
	}

	h.mu.Lock()
	if h.ctx.Err() != nil {
		h.mu.Unlock()
		if commands != nil {
			_ = commands.Close()
		}
		return nil, controller.ErrClosed
	}
	h.sessions[id] = c
	h.mu.Unlock()

	go c.Run(h.ctx)
	if commands != nil {
		go h.serveCommands(c, commands)
	}
	h.addLive(ctx, 1)

	h.logger.InfoContext(ctx, "session created", "session.id", id)
	return c, nil
}

// Get returns the controller of a live session.
func (h *Hub) Get(id string) (*controller.Controller, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return c, nil
}

// Remove closes a session and forgets it, asking the owning instance to
// do so when the session lives elsewhere.
func (h *Hub) Remove(ctx context.Context, id string) error {
	err := h.removeLocal(ctx, id)
	if errors.Is(err, ErrSessionNotFound) && h.cfg.Forward {
		_, _, err = h.forward(ctx, id, Command{Action: ActionRemove})
	}
	return err
}

func (h *Hub) removeLocal(ctx context.Context, id string) error {
	h.mu.Lock()
	c, ok := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	h.close(ctx, c, closeReasonRemoved)
	return nil
}

// Len returns the number of live sessions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Run reaps idle sessions until ctx ends, then closes every session.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case <-ticker.C:
			h.reap(ctx)
		}
	}
}

func (h *Hub) reap(ctx context.Context) {
	deadline := h.clock.Now().Add(-h.cfg.IdleTimeout)

	var idle []*controller.Controller
	h.mu.Lock()
	for id, c := range h.sessions {
		if c.LastActive().Before(deadline) {
			idle = append(idle, c)
			delete(h.sessions, id)
		}
	}
	h.mu.Unlock()

	for _, c := range idle {
		h.logger.InfoContext(ctx, "closing idle session", "session.id", c.ID(), "last_active", c.LastActive())
		h.close(ctx, c, closeReasonIdle)
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[string]*controller.Controller)
	h.cancel()
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, c := range sessions {
		h.close(ctx, c, closeReasonShutdown)
	}
	h.logger.Info("hub stopped", "sessions.closed", len(sessions))
}

func (h *Hub) close(ctx context.Context, c *controller.Controller, reason string) {
	ctx, span := tracer.Start(ctx, "hub.close", trace.WithAttributes(
		attribute.String("session.id", c.ID()),
		attribute.String("close.reason", reason),
	))
	defer span.End()

	c.Close()
	h.addLive(ctx, -1)

	ev, err := events.NewEvent(events.TypeClosed, events.SessionClosedPayload{SessionID: c.ID(), Reason: reason})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to build closed event", "session.id", c.ID(), "error", err)
		return
	}
	if err := h.bus.Publish(ctx, c.ID(), ev); err != nil {
		h.logger.WarnContext(ctx, "failed to publish closed event", "session.id", c.ID(), "error", err)
		span.RecordError(err)
	}
}

func (h *Hub) newSource() bot.Source {
	n := h.created.Add(1)
	if h.cfg.Seed == 0 {
		return bot.NewSource(0)
	}
	return bot.NewSource(h.cfg.Seed + n)
}

func (h *Hub) addLive(ctx context.Context, delta int64) {
	if h.live != nil {
		h.live.Add(ctx, delta)
	}
}
