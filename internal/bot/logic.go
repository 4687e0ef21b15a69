package bot

import (
	"ctchen222/tictactoe-solo/internal/game"
	"math/rand/v2"
)

//go:generate mockgen -source=logic.go -destination=mock_bot/mock_source.go

// Source is the randomness the bot draws from. *rand.Rand satisfies it.
type Source interface {
	// IntN returns a uniform value in [0, n). It panics if n <= 0.
	IntN(n int) int
}

// NewSource returns a PCG-backed random source. A zero seed is replaced by a
// runtime-seeded value so production sessions do not share a sequence.
func NewSource(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// RandomMove picks an empty cell uniformly at random.
// ok is false when the board has no empty cell left.
func RandomMove(board game.Board, src Source) (cell int, ok bool) {
	availableMoves := board.EmptyCells()
	if len(availableMoves) == 0 {
		return -1, false
	}

	return availableMoves[src.IntN(len(availableMoves))], true
}
