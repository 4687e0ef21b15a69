package controller

import (
	"context"
	"ctchen222/tictactoe-solo/internal/api/models"
	"ctchen222/tictactoe-solo/internal/api/response"
	"ctchen222/tictactoe-solo/internal/api/service"
	gamecontroller "ctchen222/tictactoe-solo/internal/controller"
	"ctchen222/tictactoe-solo/internal/hub"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SessionController handles session-related HTTP requests.
type SessionController struct {
	sessionService service.SessionService
}

// NewSessionController creates a new SessionController.
func NewSessionController(sessionService service.SessionService) *SessionController {
	return &SessionController{
		sessionService: sessionService,
	}
}

// Create opens a new session and returns its id, token and first view.
func (sc *SessionController) Create(c *gin.Context) {
	res, err := sc.sessionService.Create(c.Request.Context())
	if err != nil {
		sc.fail(c, err)
		return
	}

	response.CreatedResponse(c, res)
}

// Get returns the current view of a session.
func (sc *SessionController) Get(c *gin.Context) {
	var uri models.SessionURI
	if err := c.ShouldBindUri(&uri); err != nil {
		response.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	view, err := sc.sessionService.View(c.Request.Context(), uri.ID)
	if err != nil {
		sc.fail(c, err)
		return
	}

	response.SuccessResponse(c, view)
}

// Start handles the "Start Game" button.
func (sc *SessionController) Start(c *gin.Context) {
	sc.action(c, sc.sessionService.Start)
}

// TryAgain handles the "Try Again" button.
func (sc *SessionController) TryAgain(c *gin.Context) {
	sc.action(c, sc.sessionService.TryAgain)
}

// Exit handles the "Exit" button.
func (sc *SessionController) Exit(c *gin.Context) {
	sc.action(c, sc.sessionService.Exit)
}

// Move handles a click on a board cell.
func (sc *SessionController) Move(c *gin.Context) {
	var uri models.CellURI
	if err := c.ShouldBindUri(&uri); err != nil {
		response.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	res, err := sc.sessionService.Move(c.Request.Context(), uri.ID, *uri.Index)
	if err != nil {
		sc.fail(c, err)
		return
	}

	response.SuccessResponse(c, res)
}

// Delete closes a session.
func (sc *SessionController) Delete(c *gin.Context) {
	var uri models.SessionURI
	if err := c.ShouldBindUri(&uri); err != nil {
		response.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := sc.sessionService.Delete(c.Request.Context(), uri.ID); err != nil {
		sc.fail(c, err)
		return
	}

	response.SuccessResponse(c, gin.H{"session_id": uri.ID})
}

func (sc *SessionController) action(c *gin.Context, fn func(context.Context, string) (*models.ActionResponse, error)) {
	var uri models.SessionURI
	if err := c.ShouldBindUri(&uri); err != nil {
		response.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	res, err := fn(c.Request.Context(), uri.ID)
	if err != nil {
		sc.fail(c, err)
		return
	}

	response.SuccessResponse(c, res)
}

func (sc *SessionController) fail(c *gin.Context, err error) {
	code := StatusFor(err)
	if code == http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "session request failed", "http.path", c.FullPath(), "error", err)
	}
	response.ErrorResponse(c, code, err.Error())
}

// StatusFor maps a session error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, hub.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, gamecontroller.ErrClosed):
		return http.StatusGone
	case errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
