package models

import "ctchen222/tictactoe-solo/pkg/proto"

// SessionURI binds the :id path parameter.
type SessionURI struct {
	ID string `uri:"id" binding:"required,uuid"`
}

// CellURI binds the :id and :index path parameters of a move.
// Any integer index is accepted; cells off the board are ignored by the game.
type CellURI struct {
	ID    string `uri:"id" binding:"required,uuid"`
	Index *int   `uri:"index" binding:"required"`
}

// CreateSessionResponse is returned when a new session is opened.
type CreateSessionResponse struct {
	SessionID string     `json:"session_id"`
	Token     string     `json:"token"`
	View      proto.View `json:"view"`
}

// ActionResponse reports whether a command changed the session and the view after it.
type ActionResponse struct {
	Applied bool       `json:"applied"`
	View    proto.View `json:"view"`
}
