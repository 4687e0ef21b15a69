package controller

import (
	"context"
	"ctchen222/tictactoe-solo/internal/bot"
	"ctchen222/tictactoe-solo/internal/events"
	"ctchen222/tictactoe-solo/pkg/proto"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultComputerDelay is how long the computer "thinks" before replying.
const DefaultComputerDelay = 500 * time.Millisecond

var (
	ErrClosed = errors.New("game controller is closed")

	tracer = otel.Tracer("controller")
)

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces the clock that drives the computer's delayed reply.
func WithClock(clock Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithComputerDelay sets the delay before the computer moves.
func WithComputerDelay(d time.Duration) Option {
	return func(c *Controller) { c.delay = d }
}

// WithSource sets the randomness used for the computer's moves.
func WithSource(src bot.Source) Option {
	return func(c *Controller) { c.source = src }
}

// WithPublisher sets where update events are published.
func WithPublisher(p Publisher) Option {
	return func(c *Controller) { c.publisher = p }
}

// WithLogger sets the logger; the session id is added to it.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// Controller owns the state of one session. A single goroutine (Run)
// applies every command and the computer's timed reply, so transitions
// never interleave.
type Controller struct {
	id        string
	clock     Clock
	delay     time.Duration
	source    bot.Source
	publisher Publisher
	logger    *slog.Logger
	metrics   instruments

	commands   chan command
	closing    chan struct{}
	done       chan struct{}
	closeOnce  sync.Once
	lastActive atomic.Int64

	// Owned by the Run goroutine.
	state      State
	timer      Timer
	timerRound int
}

type command struct {
	ctx   context.Context
	name  string
	apply func(State) (State, bool)
	reply chan result
}

type result struct {
	view    proto.View
	applied bool
}

// New creates a controller for session id. Run must be started before any
// command is issued.
func New(id string, opts ...Option) *Controller {
	c := &Controller{
		id:        id,
		clock:     RealClock(),
		delay:     DefaultComputerDelay,
		publisher: nopPublisher{},
		metrics:   newInstruments(),
		commands:  make(chan command),
		closing:   make(chan struct{}),
		done:      make(chan struct{}),
		state:     Initial(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.source == nil {
		c.source = bot.NewSource(0)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("session.id", id)
	c.touch()

	return c
}

// ID returns the session id.
func (c *Controller) ID() string {
	return c.id
}

// Run processes commands until Close is called or ctx ends.
func (c *Controller) Run(ctx context.Context) {
	defer close(c.done)
	defer c.stopTimer()

	c.logger.DebugContext(ctx, "game controller started")

	for {
		var timerC <-chan time.Time
		if c.timer != nil {
			timerC = c.timer.C()
		}

		select {
		case <-ctx.Done():
			c.logger.DebugContext(ctx, "game controller stopped", "reason", ctx.Err())
			return

		case <-c.closing:
			c.logger.DebugContext(ctx, "game controller closed")
			return

		case cmd := <-c.commands:
			if c.isClosing() {
				return
			}
			c.handle(cmd)

		case <-timerC:
			c.timer = nil
			// Close may race with the timer; teardown wins.
			if c.isClosing() || ctx.Err() != nil {
				return
			}
			c.handleComputerTurn(ctx)
		}
	}
}

// Close stops the controller. A pending computer move is discarded.
// It does not wait for Run to return; use Done for that.
func (c *Controller) Close() {
	c.closeOnce.Do(func() { close(c.closing) })
}

// Done is closed once Run has returned.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// LastActive is the time of the last command.
func (c *Controller) LastActive() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

// View returns the current view without changing anything.
func (c *Controller) View(ctx context.Context) (proto.View, error) {
	view, _, err := c.do(ctx, "View", func(s State) (State, bool) { return s, false })
	return view, err
}

// StartGame handles the "Start Game" button.
func (c *Controller) StartGame(ctx context.Context) (proto.View, bool, error) {
	return c.do(ctx, "StartGame", StartGame)
}

// Click handles a click on a board cell.
func (c *Controller) Click(ctx context.Context, cell int) (proto.View, bool, error) {
	return c.do(ctx, "Click", func(s State) (State, bool) { return PlayerMove(s, cell) })
}

// TryAgain handles the "Try Again" button of the result modal.
func (c *Controller) TryAgain(ctx context.Context) (proto.View, bool, error) {
	return c.do(ctx, "TryAgain", TryAgain)
}

// Exit handles the "Exit" button of the result modal.
func (c *Controller) Exit(ctx context.Context) (proto.View, bool, error) {
	return c.do(ctx, "Exit", Exit)
}

func (c *Controller) do(ctx context.Context, name string, apply func(State) (State, bool)) (proto.View, bool, error) {
	cmd := command{
		ctx:   ctx,
		name:  name,
		apply: apply,
		reply: make(chan result, 1),
	}

	select {
	case c.commands <- cmd:
	case <-c.closing:
		return proto.View{}, false, ErrClosed
	case <-c.done:
		return proto.View{}, false, ErrClosed
	case <-ctx.Done():
		return proto.View{}, false, ctx.Err()
	}

	select {
	case res := <-cmd.reply:
		return res.view, res.applied, nil
	case <-c.done:
		return proto.View{}, false, ErrClosed
	case <-ctx.Done():
		return proto.View{}, false, ctx.Err()
	}
}

func (c *Controller) handle(cmd command) {
	ctx, span := tracer.Start(cmd.ctx, "controller."+cmd.name, trace.WithAttributes(
		attribute.String("session.id", c.id),
	))
	defer span.End()

	c.touch()

	next, applied := cmd.apply(c.state)
	span.SetAttributes(attribute.Bool("command.applied", applied))
	if applied {
		c.transition(ctx, cmd.name, next)
	} else if cmd.name != "View" {
		c.logger.DebugContext(ctx, "ignoring command", "command", cmd.name, "phase", c.state.Phase, "screen", c.state.Screen)
	}

	cmd.reply <- result{view: Render(c.state), applied: applied}
}

func (c *Controller) handleComputerTurn(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "controller.ComputerMove", trace.WithAttributes(
		attribute.String("session.id", c.id),
		attribute.Int("round", c.timerRound),
	))
	defer span.End()

	if c.timerRound != c.state.Round {
		c.logger.DebugContext(ctx, "discarding computer move from a previous round", "round", c.timerRound)
		return
	}

	next, cell, ok := ComputerMove(c.state, c.source)
	if !ok {
		c.logger.DebugContext(ctx, "discarding computer move", "phase", c.state.Phase)
		return
	}
	span.SetAttributes(attribute.Int("move.cell", cell))

	c.transition(ctx, "ComputerMove", next)
}

// transition installs next, manages the computer timer, records metrics
// and publishes the new view.
func (c *Controller) transition(ctx context.Context, cause string, next State) {
	prev := c.state
	next.Version = prev.Version + 1
	c.state = next

	if next.Round != prev.Round || next.Phase != PhaseComputerThinking {
		c.stopTimer()
	}
	if next.Phase == PhaseComputerThinking && prev.Phase != PhaseComputerThinking {
		c.timer = c.clock.NewTimer(c.delay)
		c.timerRound = next.Round
	}

	c.metrics.record(ctx, prev, next)

	c.logger.InfoContext(ctx, "state changed",
		"cause", cause,
		"screen", next.Screen,
		"phase", next.Phase,
		"round", next.Round,
		"outcome", next.Outcome,
	)

	c.publish(ctx, Render(next))
}

func (c *Controller) publish(ctx context.Context, view proto.View) {
	ev, err := events.NewEvent(events.TypeUpdate, view)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to build update event", "error", err)
		return
	}

	// The caller's request may end before subscribers are reached.
	if err := c.publisher.Publish(context.WithoutCancel(ctx), c.id, ev); err != nil {
		c.logger.WarnContext(ctx, "failed to publish update", "error", err)
		span := trace.SpanFromContext(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to publish update")
	}
}

func (c *Controller) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) isClosing() bool {
	select {
	case <-c.closing:
		return true
	default:
		return false
	}
}

func (c *Controller) touch() {
	c.lastActive.Store(c.clock.Now().UnixNano())
}
