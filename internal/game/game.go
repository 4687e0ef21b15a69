package game

import "errors"

// Mark represents the content of a cell: a player's mark or nothing.
type Mark string

// Outcome is the terminal result of a round, or OutcomeNone while it is still running.
type Outcome string

const (
	// Player marks
	Empty   Mark = ""
	PlayerX Mark = "X"
	PlayerO Mark = "O"

	// Round outcomes
	OutcomeNone Outcome = ""
	OutcomeX    Outcome = "X"
	OutcomeO    Outcome = "O"
	OutcomeDraw Outcome = "draw"

	// BoardSize is the number of cells on the board.
	BoardSize = 9
)

var (
	ErrCellOccupied = errors.New("cell is already occupied")
	ErrInvalidCell  = errors.New("invalid cell index")
	ErrInvalidMark  = errors.New("invalid mark")

	// Lines holds the eight index triples that win the game when uniformly marked.
	Lines = [8][3]int{
		{0, 1, 2},
		{3, 4, 5},
		{6, 7, 8},
		{0, 3, 6},
		{1, 4, 7},
		{2, 5, 8},
		{0, 4, 8},
		{2, 4, 6},
	}
)

// Board is the 3x3 grid stored row-major: index = row*3 + col.
type Board [BoardSize]Mark

// Place returns a copy of the board with mark placed at cell.
// The receiver is never modified.
func (b Board) Place(cell int, mark Mark) (Board, error) {
	if mark != PlayerX && mark != PlayerO {
		return b, ErrInvalidMark
	}
	if cell < 0 || cell >= BoardSize {
		return b, ErrInvalidCell
	}
	if b[cell] != Empty {
		return b, ErrCellOccupied
	}

	b[cell] = mark
	return b, nil
}

// EmptyCells lists the indices of unmarked cells in ascending order.
func (b Board) EmptyCells() []int {
	cells := make([]int, 0, BoardSize)
	for i, cell := range b {
		if cell == Empty {
			cells = append(cells, i)
		}
	}
	return cells
}

// IsFull reports whether every cell holds a mark.
func (b Board) IsFull() bool {
	for _, cell := range b {
		if cell == Empty {
			return false
		}
	}
	return true
}

// Winner evaluates the board. A completed line wins even on a full board,
// so a draw is only reported when no line is complete.
func Winner(b Board) Outcome {
	for _, line := range Lines {
		a := b[line[0]]
		if a != Empty && a == b[line[1]] && a == b[line[2]] {
			return Outcome(a)
		}
	}

	if b.IsFull() {
		return OutcomeDraw
	}

	return OutcomeNone
}

// Finished reports whether the outcome ends the round.
func (o Outcome) Finished() bool {
	return o != OutcomeNone
}
