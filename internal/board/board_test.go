package board

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fourinarow-server/internal/ids"
)

// fixedRandom always returns n, pinning the initial turn (n=0 gives
// PlayerOne, n=1 PlayerTwo) so tests can drive moves deterministically.
type fixedRandom struct{ n int }

func (f fixedRandom) Intn(int) int { return f.n }

func newTestBoard(firstTurn int) *Board {
	return New(fixedRandom{n: firstTurn})
}

func TestPlace_TurnAlternates(t *testing.T) {
	b := newTestBoard(0) // PlayerOne starts
	assert.Equal(t, ids.PlayerOne, b.Turn())

	_, err := b.Place(0, ids.PlayerOne)
	assert.NoError(t, err)
	assert.Equal(t, ids.PlayerTwo, b.Turn())

	_, err = b.Place(0, ids.PlayerOne)
	assert.ErrorIs(t, err, ErrNotYourTurn)
}

func TestPlace_InvalidColumn(t *testing.T) {
	b := newTestBoard(0)
	_, err := b.Place(-1, ids.PlayerOne)
	assert.ErrorIs(t, err, ErrInvalidColumn)

	_, err = b.Place(Size, ids.PlayerOne)
	assert.ErrorIs(t, err, ErrInvalidColumn)
}

func TestPlace_FullColumnRejected(t *testing.T) {
	b := newTestBoard(0)
	for i := 0; i < Size; i++ {
		turn := b.Turn()
		_, err := b.Place(0, turn)
		assert.NoError(t, err)
	}
	_, err := b.Place(0, b.Turn())
	assert.ErrorIs(t, err, ErrInvalidColumn)
}

func TestPlace_VerticalWin(t *testing.T) {
	b := newTestBoard(0)
	// PlayerOne drops four in column 0; PlayerTwo drops elsewhere between.
	var winner *Winner
	var err error
	for i := 0; i < 4; i++ {
		winner, err = b.Place(0, ids.PlayerOne)
		assert.NoError(t, err)
		if i < 3 {
			assert.Nil(t, winner)
			_, err = b.Place(1, ids.PlayerTwo)
			assert.NoError(t, err)
		}
	}
	if assert.NotNil(t, winner) {
		assert.Equal(t, ids.PlayerOne, winner.Player)
	}
}

func TestPlace_NoMovesAcceptedAfterWin(t *testing.T) {
	b := newTestBoard(0)
	for i := 0; i < 4; i++ {
		_, err := b.Place(0, ids.PlayerOne)
		assert.NoError(t, err)
		if i < 3 {
			_, err = b.Place(1, ids.PlayerTwo)
			assert.NoError(t, err)
		}
	}
	assert.NotNil(t, b.Winner())

	_, err := b.Place(2, ids.PlayerTwo)
	assert.ErrorIs(t, err, ErrInvalidColumn)
}

func TestRequestRematch_RequiresBothSides(t *testing.T) {
	b := newTestBoard(0)
	for i := 0; i < 4; i++ {
		_, _ = b.Place(0, ids.PlayerOne)
		if i < 3 {
			_, _ = b.Place(1, ids.PlayerTwo)
		}
	}
	assert.NotNil(t, b.Winner())

	assert.False(t, b.RequestRematch(ids.PlayerOne))
	assert.True(t, b.RequestRematch(ids.PlayerTwo))
}

func TestReset_ClearsBoardAndWinner(t *testing.T) {
	b := newTestBoard(0)
	for i := 0; i < 4; i++ {
		_, _ = b.Place(0, ids.PlayerOne)
		if i < 3 {
			_, _ = b.Place(1, ids.PlayerTwo)
		}
	}
	assert.NotNil(t, b.Winner())

	b.Reset(fixedRandom{n: 1})
	assert.Nil(t, b.Winner())
	assert.Equal(t, ids.PlayerTwo, b.Turn())

	_, err := b.Place(0, ids.PlayerTwo)
	assert.NoError(t, err)
}
