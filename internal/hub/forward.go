package hub

import (
	"context"
	"ctchen222/tictactoe-solo/internal/controller"
	"ctchen222/tictactoe-solo/internal/events"
	"ctchen222/tictactoe-solo/pkg/proto"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Action names a command a session accepts.
type Action string

const (
	ActionView     Action = "view"
	ActionStart    Action = "start"
	ActionMove     Action = "move"
	ActionTryAgain Action = "try_again"
	ActionExit     Action = "exit"
	ActionRemove   Action = "remove"
)

const answerTimeout = 5 * time.Second

var ErrUnknownAction = errors.New("unknown session action")

// Command is one click (or a view read) addressed to a session.
type Command struct {
	Action Action
	// Cell is the clicked cell of an ActionMove.
	Cell int
}

// Dispatch runs cmd on the session. A session owned by another instance is
// reached over the bus when forwarding is enabled.
func (h *Hub) Dispatch(ctx context.Context, id string, cmd Command) (proto.View, bool, error) {
	if cmd.Action == ActionRemove {
		return proto.View{}, false, h.Remove(ctx, id)
	}

	c, err := h.Get(id)
	if err == nil {
		return apply(ctx, c, cmd)
	}
	if !h.cfg.Forward {
		return proto.View{}, false, err
	}
	return h.forward(ctx, id, cmd)
}

func apply(ctx context.Context, c *controller.Controller, cmd Command) (proto.View, bool, error) {
	switch cmd.Action {
	case ActionView:
		view, err := c.View(ctx)
		return view, false, err
	case ActionStart:
		return c.StartGame(ctx)
	case ActionMove:
		return c.Click(ctx, cmd.Cell)
	case ActionTryAgain:
		return c.TryAgain(ctx)
	case ActionExit:
		return c.Exit(ctx)
	default:
		return proto.View{}, false, fmt.Errorf("%w: %q", ErrUnknownAction, cmd.Action)
	}
}

// forward publishes cmd for the owning instance and waits for its reply.
// No reply within the forward timeout means no instance owns the session.
func (h *Hub) forward(ctx context.Context, id string, cmd Command) (proto.View, bool, error) {
	ctx, span := tracer.Start(ctx, "hub.forward", trace.WithAttributes(
		attribute.String("session.id", id),
		attribute.String("command.action", string(cmd.Action)),
	))
	defer span.End()

	requestID := uuid.New().String()
	waitCtx, cancel := context.WithTimeout(ctx, h.cfg.ForwardTimeout)
	defer cancel()

	sub, err := h.bus.Subscribe(waitCtx, events.ReplyTopic(requestID))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to subscribe for reply")
		return proto.View{}, false, fmt.Errorf("subscribe for reply to session %s: %w", id, err)
	}
	defer sub.Close()

	ev, err := events.NewEvent(events.TypeCommand, events.CommandPayload{
		RequestID: requestID,
		Action:    string(cmd.Action),
		Cell:      cmd.Cell,
	})
	if err != nil {
		return proto.View{}, false, err
	}
	if err := h.bus.Publish(waitCtx, events.CommandTopic(id), ev); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to publish command")
		return proto.View{}, false, fmt.Errorf("forward command to session %s: %w", id, err)
	}

	for {
		select {
		case <-waitCtx.Done():
			return proto.View{}, false, noReply(ctx)
		case ev, ok := <-sub.Events():
			if !ok {
				return proto.View{}, false, noReply(ctx)
			}
			if ev.Type != events.TypeReply {
				continue
			}

			var reply events.ReplyPayload
			if err := json.Unmarshal(ev.Payload, &reply); err != nil {
				h.logger.WarnContext(ctx, "dropping malformed reply", "session.id", id, "error", err)
				continue
			}
			span.SetAttributes(attribute.Bool("command.applied", reply.Applied))
			return replyResult(reply)
		}
	}
}

// serveCommands answers commands forwarded by other instances until the
// session ends.
func (h *Hub) serveCommands(c *controller.Controller, sub events.Subscription) {
	defer sub.Close()

	for {
		select {
		case <-c.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if ev.Type != events.TypeCommand {
				continue
			}
			h.answer(c, ev)
		}
	}
}

func (h *Hub) answer(c *controller.Controller, ev events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), answerTimeout)
	defer cancel()

	var cmd events.CommandPayload
	if err := json.Unmarshal(ev.Payload, &cmd); err != nil || cmd.RequestID == "" {
		h.logger.WarnContext(ctx, "dropping malformed command", "session.id", c.ID(), "error", err)
		return
	}

	reply := events.ReplyPayload{RequestID: cmd.RequestID}
	var err error
	if Action(cmd.Action) == ActionRemove {
		err = h.removeLocal(ctx, c.ID())
	} else {
		var view proto.View
		view, reply.Applied, err = apply(ctx, c, Command{Action: Action(cmd.Action), Cell: cmd.Cell})
		if err == nil {
			reply.View = &view
		}
	}
	reply.Error = replyError(err)

	out, err := events.NewEvent(events.TypeReply, reply)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to build reply", "session.id", c.ID(), "error", err)
		return
	}
	if err := h.bus.Publish(ctx, events.ReplyTopic(cmd.RequestID), out); err != nil {
		h.logger.WarnContext(ctx, "failed to publish reply", "session.id", c.ID(), "error", err)
	}
}

// noReply reports the caller's own error when it gave up first.
func noReply(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrSessionNotFound
}

func replyError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSessionNotFound):
		return events.ReplyErrNotFound
	case errors.Is(err, controller.ErrClosed):
		return events.ReplyErrClosed
	default:
		return err.Error()
	}
}

func replyResult(reply events.ReplyPayload) (proto.View, bool, error) {
	switch reply.Error {
	case "":
	case events.ReplyErrNotFound:
		return proto.View{}, false, ErrSessionNotFound
	case events.ReplyErrClosed:
		return proto.View{}, false, controller.ErrClosed
	default:
		return proto.View{}, false, errors.New(reply.Error)
	}

	var view proto.View
	if reply.View != nil {
		view = *reply.View
	}
	return view, reply.Applied, nil
}
