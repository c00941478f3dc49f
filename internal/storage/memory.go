package storage

import (
	"context"
	"sync"

	"fourinarow-server/internal/contracts"
	"fourinarow-server/internal/ids"
)

// Memory is an in-process implementation of contracts.UserDirectory and
// contracts.MessageArchive, patterned on the teacher's
// session_manager.go (map + sync.RWMutex, one method per operation). It
// backs unit tests and lets the server run with no database configured.
type Memory struct {
	mu       sync.RWMutex
	users    map[ids.UserID]*UserInfo
	tokens   map[string]ids.UserID
	playing  map[ids.UserID]contracts.PlayerHandle
	threads  map[ids.ChatThreadID][]ChatMessage
	nextChat int64
	clock    Clock
}

func NewMemory(clock Clock) *Memory {
	return &Memory{
		users:   make(map[ids.UserID]*UserInfo),
		tokens:  make(map[string]ids.UserID),
		playing: make(map[ids.UserID]contracts.PlayerHandle),
		threads: make(map[ids.ChatThreadID][]ChatMessage),
		clock:   clock,
	}
}

// Health and Close satisfy server.closer alongside Store, so NewServer
// can treat both storage backends the same way; Memory has no
// connection to probe or release.
func (m *Memory) Health(_ context.Context) error { return nil }

func (m *Memory) Close() {}

// PutUser registers a user and the session token that authenticates them;
// a real deployment would do this through the (out-of-scope) REST/auth
// surface, but tests need a direct seam.
func (m *Memory) PutUser(token string, info UserInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := info
	m.users[info.ID] = &u
	m.tokens[token] = info.ID
}

func (m *Memory) LookupBySessionToken(_ context.Context, token string) (*UserInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	uid, ok := m.tokens[token]
	if !ok {
		return nil, ErrNotFound
	}
	info := *m.users[uid]
	return &info, nil
}

func (m *Memory) SetPlaying(_ context.Context, uid ids.UserID, handle contracts.PlayerHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playing[uid] = handle
	return nil
}

func (m *Memory) ClearPlaying(_ context.Context, uid ids.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.playing, uid)
	return nil
}

func (m *Memory) RecordPlayedGame(_ context.Context, _ PlayedGameInfo) error {
	// Win/loss ledgering lives in the (out-of-scope) persistence backing
	// store; Memory only needs to accept the call without erroring so
	// Lobby's ranked-game path has somewhere to report to in tests.
	return nil
}

func (m *Memory) ResolveBattleTarget(_ context.Context, uid ids.UserID) (contracts.PlayerHandle, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	handle, ok := m.playing[uid]
	if !ok {
		return nil, false, nil
	}
	return handle, true, nil
}

func (m *Memory) Append(_ context.Context, thread ids.ChatThreadID, fromUID *ids.UserID, text string) (ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextChat++
	msg := ChatMessage{
		ID:        m.nextChat,
		Thread:    thread,
		FromUID:   fromUID,
		Body:      text,
		CreatedAt: m.clock.Now(),
	}
	m.threads[thread] = append(m.threads[thread], msg)
	return msg, nil
}

func (m *Memory) ReadPage(_ context.Context, thread ids.ChatThreadID, beforeID int64, limit int) ([]ChatMessage, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.threads[thread]
	var eligible []ChatMessage
	for _, msg := range all {
		if beforeID == 0 || msg.ID < beforeID {
			eligible = append(eligible, msg)
		}
	}
	// Most recent first, like a typical chat-history page.
	for i, j := 0, len(eligible)-1; i < j; i, j = i+1, j-1 {
		eligible[i], eligible[j] = eligible[j], eligible[i]
	}

	more := len(eligible) > limit
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}
	return eligible, more, nil
}
