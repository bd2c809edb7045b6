// internal/game/board.go
package game

import "errors"

// Symbol is the mark a player places on the board. The zero value is an empty cell.
type Symbol string

const (
	Empty Symbol = ""
	X     Symbol = "X" // first player, always moves first
	O     Symbol = "O" // second player
)

// Opponent returns the other player's symbol. Empty maps to Empty.
func (s Symbol) Opponent() Symbol {
	switch s {
	case X:
		return O
	case O:
		return X
	}
	return Empty
}

// Valid reports whether s is one of the two player symbols.
func (s Symbol) Valid() bool {
	return s == X || s == O
}

// Result is the outcome of a round: empty while in progress, a symbol for a win, or Draw.
type Result string

const (
	InProgress Result = ""
	Draw       Result = "draw"
)

// ResultFor converts a winning symbol into a Result.
func ResultFor(s Symbol) Result {
	return Result(s)
}

// Cells is the number of squares on the board.
const Cells = 9

// Board holds the 3x3 grid in row-major order (0 = top-left, 8 = bottom-right).
type Board [Cells]Symbol

// winningLines are the 8 triples that end a round: rows, columns, diagonals.
var winningLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// Winner returns the symbol occupying a complete line, or Empty if there is none.
func (b Board) Winner() Symbol {
	for _, line := range winningLines {
		s := b[line[0]]
		if s != Empty && s == b[line[1]] && s == b[line[2]] {
			return s
		}
	}
	return Empty
}

// Full reports whether every cell is occupied.
func (b Board) Full() bool {
	for _, s := range b {
		if s == Empty {
			return false
		}
	}
	return true
}

var (
	ErrInvalidPosition = errors.New("position out of range")
	ErrNotYourTurn     = errors.New("not your turn")
	ErrCellOccupied    = errors.New("cell already occupied")
	ErrRoundOver       = errors.New("round already finished")
)

// Round is the state machine of a single game: in progress until a line is
// completed, the board fills up, or a player forfeits. Once finished the
// board is never written again.
type Round struct {
	Board  Board
	Turn   Symbol
	Result Result
}

// NewRound returns an empty board with X to move.
func NewRound() Round {
	return Round{Turn: X}
}

// Finished reports whether the round reached a terminal result.
func (r *Round) Finished() bool {
	return r.Result != InProgress
}

// Play places s at pos. Validation order is position, turn, occupancy.
func (r *Round) Play(s Symbol, pos int) error {
	if r.Finished() {
		return ErrRoundOver
	}
	if pos < 0 || pos >= Cells {
		return ErrInvalidPosition
	}
	if s != r.Turn {
		return ErrNotYourTurn
	}
	if r.Board[pos] != Empty {
		return ErrCellOccupied
	}

	r.Board[pos] = s
	if w := r.Board.Winner(); w != Empty {
		r.Result = ResultFor(w)
		return nil
	}
	if r.Board.Full() {
		r.Result = Draw
		return nil
	}
	r.Turn = r.Turn.Opponent()
	return nil
}

// Forfeit ends the round in favor of the opponent of loser.
// It has no effect on a finished round.
func (r *Round) Forfeit(loser Symbol) {
	if r.Finished() || !loser.Valid() {
		return
	}
	r.Result = ResultFor(loser.Opponent())
}
