package server

import (
	"context"
	apicontroller "ctchen222/tictactoe-solo/internal/api/controller"
	"ctchen222/tictactoe-solo/internal/api/models"
	"ctchen222/tictactoe-solo/internal/api/response"
	"ctchen222/tictactoe-solo/internal/events"
	"ctchen222/tictactoe-solo/internal/player"
	"ctchen222/tictactoe-solo/internal/validator"
	"ctchen222/tictactoe-solo/pkg/proto"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// handleWebSocket upgrades an authenticated connection, pushes the current
// view and then relays every session event until either side goes away.
func (s *Server) handleWebSocket(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "server.handleWebSocket", trace.WithAttributes(
		attribute.String("http.url", c.Request.URL.Path),
		attribute.String("http.method", c.Request.Method),
	))
	defer span.End()

	sessionID, err := s.tokens.Verify(c.Query("token"))
	if err != nil {
		response.ErrorResponse(c, http.StatusUnauthorized, err.Error())
		return
	}
	span.SetAttributes(attribute.String("session.id", sessionID))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Subscribe before reading the view so no update falls in between.
	sub, err := s.bus.Subscribe(ctx, sessionID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to subscribe to session", "session.id", sessionID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to subscribe to session")
		response.ErrorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	defer sub.Close()

	view, err := s.sessions.View(ctx, sessionID)
	if err != nil {
		response.ErrorResponse(c, apicontroller.StatusFor(err), err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to upgrade connection", "session.id", sessionID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to upgrade connection")
		return
	}
	defer conn.Close()

	p := player.NewPlayer(sessionID, conn)
	defer p.Close()

	_ = p.Send(&proto.ServerToClientMessage{Type: proto.TypeUpdate, View: &view})

	go func() {
		if err := p.WritePump(ctx, s.pingInterval); err != nil && ctx.Err() == nil {
			s.logger.DebugContext(ctx, "write pump stopped", "session.id", sessionID, "error", err)
		}
		cancel()
		_ = conn.Close()
	}()
	go s.relay(ctx, p, sub)

	err = p.ReadPump(s.pingInterval, func(raw []byte) {
		s.handleMessage(ctx, p, raw)
	})
	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.logger.WarnContext(ctx, "player connection error", "session.id", sessionID, "error", err)
		span.RecordError(err)
	}
	s.logger.InfoContext(ctx, "player disconnected", "session.id", sessionID)
}

// relay forwards bus events for the session to the player.
func (s *Server) relay(ctx context.Context, p *player.Player, sub events.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				p.Close()
				return
			}
			switch ev.Type {
			case events.TypeUpdate:
				var view proto.View
				if err := json.Unmarshal(ev.Payload, &view); err != nil {
					s.logger.WarnContext(ctx, "dropping malformed update", "session.id", p.SessionID, "error", err)
					continue
				}
				s.send(ctx, p, &proto.ServerToClientMessage{Type: proto.TypeUpdate, View: &view})
			case events.TypeClosed:
				var payload events.SessionClosedPayload
				_ = json.Unmarshal(ev.Payload, &payload)
				s.send(ctx, p, &proto.ServerToClientMessage{Type: proto.TypeClosed, Reason: payload.Reason})
				p.Close()
				return
			}
		}
	}
}

// handleMessage validates a client message and applies it to the session.
func (s *Server) handleMessage(ctx context.Context, p *player.Player, raw []byte) {
	var message proto.ClientToServerMessage
	if err := json.Unmarshal(raw, &message); err != nil {
		s.send(ctx, p, &proto.ServerToClientMessage{Type: proto.TypeError, Reason: "malformed message"})
		return
	}
	if err := validator.GetValidator().Struct(message); err != nil {
		s.send(ctx, p, &proto.ServerToClientMessage{Type: proto.TypeError, Reason: err.Error()})
		return
	}

	var (
		res *models.ActionResponse
		err error
	)
	switch message.Type {
	case proto.TypeStart:
		res, err = s.sessions.Start(ctx, p.SessionID)
	case proto.TypeMove:
		res, err = s.sessions.Move(ctx, p.SessionID, *message.Cell)
	case proto.TypeTryAgain:
		res, err = s.sessions.TryAgain(ctx, p.SessionID)
	case proto.TypeExit:
		res, err = s.sessions.Exit(ctx, p.SessionID)
	}
	if err != nil {
		s.send(ctx, p, &proto.ServerToClientMessage{Type: proto.TypeError, Reason: err.Error()})
		return
	}

	// Applied commands reach the player through the bus.
	if !res.Applied {
		applied := false
		s.send(ctx, p, &proto.ServerToClientMessage{Type: proto.TypeUpdate, Applied: &applied, View: &res.View})
	}
}

func (s *Server) send(ctx context.Context, p *player.Player, message *proto.ServerToClientMessage) {
	if err := p.Send(message); err != nil {
		s.logger.WarnContext(ctx, "failed to queue message", "session.id", p.SessionID, "message.type", message.Type, "error", err)
	}
}
