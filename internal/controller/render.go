package controller

import (
	"ctchen222/tictactoe-solo/internal/game"
	"ctchen222/tictactoe-solo/pkg/proto"
)

const (
	startTitle = "Tic Tac Toe"
	gameTitle  = "Player vs Computer"
)

// Render maps the state to the view painted by the client.
func Render(s State) proto.View {
	view := proto.View{
		Screen:  string(s.Screen),
		Phase:   string(s.Phase),
		Round:   s.Round,
		Version: s.Version,
		Actions: []string{},
	}

	if s.Screen == ScreenStart {
		view.Title = startTitle
		view.Actions = append(view.Actions, proto.TypeStart)
		return view
	}

	view.Title = gameTitle
	view.Turn = s.Turn()
	view.Outcome = s.Outcome

	canMove := s.Phase == PhaseAwaitingPlayer && !s.Outcome.Finished()
	view.Cells = make([]proto.CellView, 0, game.BoardSize)
	for i, mark := range s.Board {
		view.Cells = append(view.Cells, proto.CellView{
			Index:   i,
			Mark:    mark,
			Enabled: canMove && mark == game.Empty,
		})
	}

	if s.ModalVisible {
		view.Modal = &proto.ModalView{
			Message: modalMessage(s.Outcome),
			Outcome: s.Outcome,
		}
		view.Actions = append(view.Actions, proto.TypeTryAgain, proto.TypeExit)
	}

	return view
}

func modalMessage(outcome game.Outcome) string {
	switch outcome {
	case game.OutcomeDraw:
		return "Draw!"
	case game.OutcomeX:
		return "You Win!"
	default:
		return "You Lose!"
	}
}
