package controller

import (
	"ctchen222/tictactoe-solo/internal/bot"
	"ctchen222/tictactoe-solo/internal/game"
)

// Screen selects the top-level view.
type Screen string

// Phase is the turn scheduler state within a round.
type Phase string

const (
	ScreenStart Screen = "start"
	ScreenGame  Screen = "game"

	PhaseAwaitingPlayer   Phase = "awaiting_player"
	PhaseComputerThinking Phase = "computer_thinking"
	PhaseRoundOver        Phase = "round_over"
)

// State is the whole session state. Transitions below take a State and
// return the next one; a false result means the input was not accepted and
// the returned State equals the given one.
type State struct {
	Screen       Screen
	Board        game.Board
	Phase        Phase
	Outcome      game.Outcome
	ModalVisible bool
	// Round is bumped by every reset and tags the pending computer move.
	Round int
	// Version counts applied transitions. The controller bumps it; the
	// transitions here leave it alone.
	Version int
}

// Initial is the state of a freshly opened session.
func Initial() State {
	return State{
		Screen: ScreenStart,
		Phase:  PhaseAwaitingPlayer,
	}
}

// Turn returns the mark expected to move next, or game.Empty once the round is over.
func (s State) Turn() game.Mark {
	switch s.Phase {
	case PhaseAwaitingPlayer:
		return game.PlayerX
	case PhaseComputerThinking:
		return game.PlayerO
	default:
		return game.Empty
	}
}

// StartGame leaves the start screen with a fresh round.
func StartGame(s State) (State, bool) {
	if s.Screen != ScreenStart {
		return s, false
	}

	next := resetRound(s)
	next.Screen = ScreenGame
	return next, true
}

// PlayerMove places X on cell when the player is allowed to move there.
func PlayerMove(s State, cell int) (State, bool) {
	if s.Screen != ScreenGame || s.Phase != PhaseAwaitingPlayer || s.Outcome.Finished() {
		return s, false
	}

	board, err := s.Board.Place(cell, game.PlayerX)
	if err != nil {
		return s, false
	}

	s.Board = board
	return settle(s, PhaseComputerThinking), true
}

// ComputerMove places O on a random empty cell while the computer is thinking.
// cell is -1 when the board had no empty cell.
func ComputerMove(s State, src bot.Source) (next State, cell int, ok bool) {
	if s.Screen != ScreenGame || s.Phase != PhaseComputerThinking {
		return s, -1, false
	}

	cell, found := bot.RandomMove(s.Board, src)
	if found {
		// The cell comes from EmptyCells, Place cannot fail.
		s.Board, _ = s.Board.Place(cell, game.PlayerO)
	}

	return settle(s, PhaseAwaitingPlayer), cell, true
}

// TryAgain clears a finished round and stays on the game screen.
func TryAgain(s State) (State, bool) {
	if s.Screen != ScreenGame || !s.ModalVisible {
		return s, false
	}

	return resetRound(s), true
}

// Exit clears a finished round and returns to the start screen.
func Exit(s State) (State, bool) {
	if s.Screen != ScreenGame || !s.ModalVisible {
		return s, false
	}

	next := resetRound(s)
	next.Screen = ScreenStart
	return next, true
}

// settle runs the detector after a mark was placed.
func settle(s State, next Phase) State {
	if outcome := game.Winner(s.Board); outcome.Finished() {
		s.Outcome = outcome
		s.Phase = PhaseRoundOver
		s.ModalVisible = true
		return s
	}

	s.Phase = next
	return s
}

// resetRound clears board, turn, outcome and modal together.
func resetRound(s State) State {
	return State{
		Screen: s.Screen,
		Phase:  PhaseAwaitingPlayer,
		Round:  s.Round + 1,
	}
}
