package controller

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("controller")

type instruments struct {
	moves  metric.Int64Counter
	rounds metric.Int64Counter
}

func newInstruments() instruments {
	moves, err := meter.Int64Counter("tictactoe.moves",
		metric.WithDescription("Marks placed on the board."),
		metric.WithUnit("{move}"),
	)
	if err != nil {
		otel.Handle(err)
	}

	rounds, err := meter.Int64Counter("tictactoe.rounds",
		metric.WithDescription("Rounds that reached an outcome."),
		metric.WithUnit("{round}"),
	)
	if err != nil {
		otel.Handle(err)
	}

	return instruments{moves: moves, rounds: rounds}
}

// record compares two consecutive states and counts new marks and outcomes.
func (in instruments) record(ctx context.Context, prev, next State) {
	if prev.Round == next.Round {
		for i := range next.Board {
			if prev.Board[i] != next.Board[i] && in.moves != nil {
				in.moves.Add(ctx, 1, metric.WithAttributes(attribute.String("mark", string(next.Board[i]))))
			}
		}
	}

	if !prev.Outcome.Finished() && next.Outcome.Finished() && in.rounds != nil {
		in.rounds.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(next.Outcome))))
	}
}
