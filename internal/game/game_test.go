package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	x = PlayerX
	o = PlayerO
	e = Empty
)

func TestWinner(t *testing.T) {
	tests := []struct {
		name  string
		board Board
		want  Outcome
	}{
		{
			name:  "No winner - empty board",
			board: Board{},
			want:  OutcomeNone,
		},
		{
			name:  "No winner - partial board",
			board: Board{x, e, e, e, o, e, e, e, e},
			want:  OutcomeNone,
		},
		{
			name:  "X wins - first row",
			board: Board{x, x, x, e, o, e, o, e, e},
			want:  OutcomeX,
		},
		{
			name:  "O wins - second column",
			board: Board{x, o, e, x, o, e, e, o, x},
			want:  OutcomeO,
		},
		{
			name:  "X wins - main diagonal",
			board: Board{x, o, e, e, x, o, e, e, x},
			want:  OutcomeX,
		},
		{
			name:  "O wins - anti-diagonal",
			board: Board{x, e, o, e, o, x, o, e, x},
			want:  OutcomeO,
		},
		{
			name:  "Draw - full board without line",
			board: Board{x, o, x, o, x, o, o, x, o},
			want:  OutcomeDraw,
		},
		{
			name:  "X wins on a full board",
			board: Board{x, x, x, o, o, x, x, o, o},
			want:  OutcomeX,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Winner(tt.board))
		})
	}
}

// TestWinner_AllBoards walks every assignment of the 9 cells and compares the
// detector against a direct line scan.
func TestWinner_AllBoards(t *testing.T) {
	marks := [3]Mark{e, x, o}

	for n := 0; n < 19683; n++ {
		var b Board
		v := n
		for i := range b {
			b[i] = marks[v%3]
			v /= 3
		}

		hasLine := map[Mark]bool{}
		for _, line := range Lines {
			m := b[line[0]]
			if m != e && b[line[1]] == m && b[line[2]] == m {
				hasLine[m] = true
			}
		}

		got := Winner(b)
		switch {
		case got == OutcomeX || got == OutcomeO:
			require.True(t, hasLine[Mark(got)], "board %v reported %s without a line", b, got)
		case len(hasLine) > 0:
			t.Fatalf("board %v has a line but reported %q", b, got)
		case b.IsFull():
			require.Equal(t, OutcomeDraw, got, "board %v", b)
		default:
			require.Equal(t, OutcomeNone, got, "board %v", b)
		}
	}
}

func TestBoard_Place(t *testing.T) {
	t.Run("Place", func(t *testing.T) {
		// Given: an empty board
		var b Board

		// When: X is placed on cell 4
		next, err := b.Place(4, x)
		require.NoError(t, err)

		// Then: only cell 4 changed and the original is untouched
		require.Equal(t, Board{e, e, e, e, x, e, e, e, e}, next)
		require.Equal(t, Board{}, b)
	})

	t.Run("Error on cell already occupied", func(t *testing.T) {
		b := Board{x, e, e, e, e, e, e, e, e}

		next, err := b.Place(0, o)

		require.ErrorIs(t, err, ErrCellOccupied)
		require.Equal(t, b, next)
	})

	t.Run("Invalid Cell", func(t *testing.T) {
		var b Board

		_, err := b.Place(9, x)
		assert.ErrorIs(t, err, ErrInvalidCell)

		_, err = b.Place(-1, x)
		assert.ErrorIs(t, err, ErrInvalidCell)
	})

	t.Run("Invalid Mark", func(t *testing.T) {
		var b Board

		_, err := b.Place(0, Empty)
		assert.ErrorIs(t, err, ErrInvalidMark)
	})
}

func TestBoard_EmptyCells(t *testing.T) {
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8}, Board{}.EmptyCells())
	assert.Equal(t, []int{3, 5, 7, 8}, Board{x, x, x, e, o, e, o, e, e}.EmptyCells())
	assert.Empty(t, Board{x, o, x, o, x, o, o, x, o}.EmptyCells())
}

func TestBoard_IsFull(t *testing.T) {
	assert.False(t, Board{}.IsFull())
	assert.False(t, Board{x, o, x, o, x, o, o, x, e}.IsFull())
	assert.True(t, Board{x, o, x, o, x, o, o, x, o}.IsFull())
}
