package proto

import "ctchen222/tictactoe-solo/internal/game"

// Client message types
const (
	TypeStart    = "start"
	TypeMove     = "move"
	TypeTryAgain = "try_again"
	TypeExit     = "exit"
)

// Server message types
const (
	TypeUpdate = "update"
	TypeError  = "error"
	TypeClosed = "closed"
)

// CellView is one board cell as shown to the player.
type CellView struct {
	Index   int       `json:"index"`
	Mark    game.Mark `json:"mark"`
	Enabled bool      `json:"enabled"`
}

// ModalView is the result dialog shown once a round is over.
type ModalView struct {
	Message string       `json:"message"`
	Outcome game.Outcome `json:"outcome"`
}

// View is the complete visual tree of a session.
type View struct {
	Screen  string       `json:"screen"`
	Title   string       `json:"title"`
	Phase   string       `json:"phase"`
	Turn    game.Mark    `json:"turn,omitempty"`
	Round   int          `json:"round"`
	Version int          `json:"version"`
	Outcome game.Outcome `json:"outcome,omitempty"`
	Cells   []CellView   `json:"cells,omitempty"`
	Actions []string     `json:"actions"`
	Modal   *ModalView   `json:"modal,omitempty"`
}

// ClientToServerMessage represents a message from the client to the server.
type ClientToServerMessage struct {
	Type string `json:"type" validate:"required,oneof=start move try_again exit"`
	Cell *int   `json:"cell,omitempty" validate:"required_if=Type move"`
}

// ServerToClientMessage represents a message from the server to the client.
type ServerToClientMessage struct {
	Type    string `json:"type" validate:"required"`
	Reason  string `json:"reason,omitempty"`
	Applied *bool  `json:"applied,omitempty"`
	View    *View  `json:"view,omitempty"`
}
