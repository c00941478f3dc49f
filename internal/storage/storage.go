// Package storage implements contracts.UserDirectory and
// contracts.MessageArchive (SPEC_FULL.md §6, §10): Store is the pgx/v5
// backed production implementation, Memory is an in-process stand-in
// for tests and for running without a database configured. It also
// defines Clock (used by Memory to timestamp chat messages) and Random
// with their system implementations.
package storage

import (
	"time"

	"fourinarow-server/internal/contracts"
)

var ErrNotFound = contracts.ErrNotFound

type UserInfo = contracts.UserInfo
type PlayedGameInfo = contracts.PlayedGameInfo
type ChatMessage = contracts.ChatMessage

// Clock is the injected time source Memory stamps chat messages with, so
// tests can pin timestamps. The actors read time.Now directly.
type Clock interface {
	Now() time.Time
}

// Random is a randomness source with the same shape as board.Random.
// Tokens and game ids are minted by internal/ids from crypto/rand, not
// through it.
type Random interface {
	Intn(n int) int
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
