// Package ids defines the small opaque identifier types shared across the
// session layer: user ids, session tokens, game (lobby) ids, chat thread
// ids, and the two-valued Player enum used to address per-side resources.
package ids

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Player is one of the two sides of a match.
type Player int

const (
	PlayerOne Player = iota
	PlayerTwo
)

func (p Player) Other() Player {
	if p == PlayerOne {
		return PlayerTwo
	}
	return PlayerOne
}

// Select picks one or two depending on which side p is, the Go analogue of
// the original source's Player::select helper.
func Select[T any](p Player, one, two T) T {
	if p == PlayerOne {
		return one
	}
	return two
}

func (p Player) String() string {
	if p == PlayerOne {
		return "one"
	}
	return "two"
}

// UserID is a 12-character lowercase hex string, opaque externally.
type UserID string

const userIDLen = 12

func NewUserID() UserID {
	const alphabet = "0123456789abcdef"
	return UserID(randomString(alphabet, userIDLen))
}

// SessionToken survives socket reconnects; it is distinct from any
// REST-facing auth token (see SPEC_FULL.md §9).
type SessionToken string

const SessionTokenLen = 32

func NewSessionToken() SessionToken {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// Cryptographically-adequate PRNG plus a wall-clock suffix, as required
	// by SPEC_FULL.md §3; the suffix only adds entropy diversity across
	// process restarts, it is not relied on for uniqueness by itself.
	suffix := fmt.Sprintf("%x", time.Now().UnixNano())
	body := randomString(alphabet, SessionTokenLen-len(suffix))
	return SessionToken(body + suffix)
}

func (t SessionToken) Valid() bool {
	return len(t) >= SessionTokenLen
}

// GameID is the 4-character human-friendly lobby identifier. The alphabet
// excludes visually ambiguous glyphs (no I, O, W, V, and similar), matching
// the original source's GameId::generate.
const (
	GameIDLen      = 4
	gameIDAlphabet = "ABCDEFGHJKLMNPQRSTUXYZ1"
)

type GameID string

// NewGameID mints a GameID not present in any of the given existing sets.
func NewGameID(existing ...map[GameID]struct{}) GameID {
	for {
		candidate := GameID(randomString(gameIDAlphabet, GameIDLen))
		collision := false
		for _, set := range existing {
			if _, ok := set[candidate]; ok {
				collision = true
				break
			}
		}
		if !collision {
			return candidate
		}
	}
}

func ParseGameID(s string) (GameID, bool) {
	s = strings.ToUpper(s)
	if len(s) != GameIDLen {
		return "", false
	}
	for _, c := range s {
		if !strings.ContainsRune(gameIDAlphabet, c) {
			return "", false
		}
	}
	return GameID(s), true
}

// ChatThreadID identifies a chat thread; GlobalChatThread is the one
// reserved constant denoting the server-wide thread.
type ChatThreadID string

const GlobalChatThread ChatThreadID = "global-chat-thread"

func randomString(alphabet string, n int) string {
	var sb strings.Builder
	max := big.NewInt(int64(len(alphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand failing means the host is broken; there is no
			// sane fallback for token generation.
			panic(fmt.Errorf("ids: reading random bytes: %w", err))
		}
		sb.WriteByte(alphabet[idx.Int64()])
	}
	return sb.String()
}
