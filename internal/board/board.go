// Package board implements the GameBoard component (SPEC_FULL.md §4.1):
// pure, single-threaded 7x7 Connect-Four rules with no I/O. The scan
// algorithm is ported from the original source's GameInfo.check_win_internal
// (original_source/src/game/game_info.rs).
package board

import (
	"errors"

	"fourinarow-server/internal/ids"
)

const Size = 7

var (
	ErrInvalidColumn = errors.New("invalid column")
	ErrNotYourTurn   = errors.New("not your turn")
)

// Winner records who won and, once a rematch has been requested, who has
// asked for it so far.
type Winner struct {
	Player            ids.Player
	RematchRequester  *ids.Player
}

// Board is the 7x7 grid. The zero value is not usable; construct with New.
type Board struct {
	cells  [Size][Size]*ids.Player // column-major, cells[col][row]
	turn   ids.Player
	winner *Winner
}

// Random is the minimal source of randomness the board needs to pick an
// initial turn; satisfied by internal/lobbyregistry's math/rand-backed
// source in production and a fixed-value fake in tests.
type Random interface {
	// Intn returns a pseudo-random number in [0, n).
	Intn(n int) int
}

// New constructs a board with a uniformly random initial turn.
func New(rnd Random) *Board {
	b := &Board{}
	b.randomizeTurn(rnd)
	return b
}

func (b *Board) randomizeTurn(rnd Random) {
	if rnd.Intn(2) == 0 {
		b.turn = ids.PlayerOne
	} else {
		b.turn = ids.PlayerTwo
	}
}

// Reset clears the grid and re-randomizes the turn, per SPEC_FULL.md §4.1
// and the rematch decision in §9 (reset happens once, at GameStart).
func (b *Board) Reset(rnd Random) {
	b.cells = [Size][Size]*ids.Player{}
	b.winner = nil
	b.randomizeTurn(rnd)
}

func (b *Board) Turn() ids.Player      { return b.turn }
func (b *Board) Winner() *Winner       { return b.winner }

// Place drops a chip for player into column. A move is legal iff it is
// player's turn, the column has room, and there is no winner yet.
func (b *Board) Place(column int, player ids.Player) (*Winner, error) {
	if column < 0 || column >= Size {
		return nil, ErrInvalidColumn
	}
	if b.winner != nil {
		return nil, ErrInvalidColumn
	}
	if player != b.turn {
		return nil, ErrNotYourTurn
	}

	row := -1
	for r := Size - 1; r >= 0; r-- {
		if b.cells[column][r] == nil {
			row = r
			break
		}
	}
	if row == -1 {
		return nil, ErrInvalidColumn
	}

	mover := player
	b.cells[column][row] = &mover
	b.turn = b.turn.Other()

	if winner := b.checkWin(); winner != nil {
		b.winner = &Winner{Player: *winner}
	}
	return b.winner, nil
}

// RequestRematch records that player has asked for a rematch against the
// current winner record. It returns true once both sides have asked.
func (b *Board) RequestRematch(player ids.Player) bool {
	if b.winner == nil {
		return false
	}
	if b.winner.RematchRequester == nil {
		p := player
		b.winner.RematchRequester = &p
		return false
	}
	return *b.winner.RematchRequester != player
}

func (b *Board) checkWin() *ids.Player {
	const need = 4

	lineWinner := func(cells []*ids.Player) *ids.Player {
		var run int
		var current *ids.Player
		for _, c := range cells {
			if c == nil {
				current, run = nil, 0
				continue
			}
			if current == nil || *current != *c {
				p := *c
				current = &p
				run = 0
			}
			run++
			if run >= need {
				return current
			}
		}
		return nil
	}

	// Columns (vertical).
	for col := 0; col < Size; col++ {
		col := col
		line := make([]*ids.Player, Size)
		for row := 0; row < Size; row++ {
			line[row] = b.cells[col][row]
		}
		if w := lineWinner(line); w != nil {
			return w
		}
	}

	// Rows (horizontal).
	for row := 0; row < Size; row++ {
		line := make([]*ids.Player, Size)
		for col := 0; col < Size; col++ {
			line[col] = b.cells[col][row]
		}
		if w := lineWinner(line); w != nil {
			return w
		}
	}

	// Diagonals, both directions, offset r in [-(Size-4), Size-4].
	for r := -(Size - 4); r <= Size-4; r++ {
		var diag1, diag2 []*ids.Player
		for i := 0; i < Size; i++ {
			col := i + r
			if col < 0 || col >= Size {
				continue
			}
			diag1 = append(diag1, b.cells[col][i])
			diag2 = append(diag2, b.cells[col][Size-1-i])
		}
		if w := lineWinner(diag1); w != nil {
			return w
		}
		if w := lineWinner(diag2); w != nil {
			return w
		}
	}

	return nil
}
