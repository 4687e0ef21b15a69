package service

import (
	"context"
	"ctchen222/tictactoe-solo/internal/api/models"
	"ctchen222/tictactoe-solo/internal/controller"
	"ctchen222/tictactoe-solo/internal/hub"
	"ctchen222/tictactoe-solo/pkg/proto"
	"fmt"
)

// SessionStore is the registry of live sessions. Dispatch and Remove reach
// sessions owned by other instances too.
type SessionStore interface {
	Create(ctx context.Context) (*controller.Controller, error)
	Dispatch(ctx context.Context, id string, cmd hub.Command) (proto.View, bool, error)
	Remove(ctx context.Context, id string) error
}

// SessionService defines the session use cases exposed over HTTP and websocket.
type SessionService interface {
	Create(ctx context.Context) (*models.CreateSessionResponse, error)
	View(ctx context.Context, id string) (proto.View, error)
	Start(ctx context.Context, id string) (*models.ActionResponse, error)
	Move(ctx context.Context, id string, cell int) (*models.ActionResponse, error)
	TryAgain(ctx context.Context, id string) (*models.ActionResponse, error)
	Exit(ctx context.Context, id string) (*models.ActionResponse, error)
	Delete(ctx context.Context, id string) error
}

type sessionService struct {
	store  SessionStore
	tokens *TokenIssuer
}

// NewSessionService creates a new SessionService.
func NewSessionService(store SessionStore, tokens *TokenIssuer) SessionService {
	return &sessionService{store: store, tokens: tokens}
}

// Create opens a session and issues its token.
func (s *sessionService) Create(ctx context.Context) (*models.CreateSessionResponse, error) {
	c, err := s.store.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	token, err := s.tokens.Issue(c.ID())
	if err != nil {
		_ = s.store.Remove(ctx, c.ID())
		return nil, err
	}

	view, err := c.View(ctx)
	if err != nil {
		_ = s.store.Remove(ctx, c.ID())
		return nil, fmt.Errorf("read session %s: %w", c.ID(), err)
	}

	return &models.CreateSessionResponse{SessionID: c.ID(), Token: token, View: view}, nil
}

func (s *sessionService) View(ctx context.Context, id string) (proto.View, error) {
	view, _, err := s.store.Dispatch(ctx, id, hub.Command{Action: hub.ActionView})
	if err != nil {
		return proto.View{}, fmt.Errorf("read session %s: %w", id, err)
	}
	return view, nil
}

func (s *sessionService) Start(ctx context.Context, id string) (*models.ActionResponse, error) {
	return s.act(ctx, id, hub.Command{Action: hub.ActionStart})
}

func (s *sessionService) Move(ctx context.Context, id string, cell int) (*models.ActionResponse, error) {
	return s.act(ctx, id, hub.Command{Action: hub.ActionMove, Cell: cell})
}

func (s *sessionService) TryAgain(ctx context.Context, id string) (*models.ActionResponse, error) {
	return s.act(ctx, id, hub.Command{Action: hub.ActionTryAgain})
}

func (s *sessionService) Exit(ctx context.Context, id string) (*models.ActionResponse, error) {
	return s.act(ctx, id, hub.Command{Action: hub.ActionExit})
}

func (s *sessionService) Delete(ctx context.Context, id string) error {
	return s.store.Remove(ctx, id)
}

func (s *sessionService) act(ctx context.Context, id string, cmd hub.Command) (*models.ActionResponse, error) {
	view, applied, err := s.store.Dispatch(ctx, id, cmd)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", id, err)
	}
	return &models.ActionResponse{Applied: applied, View: view}, nil
}
