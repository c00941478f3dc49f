package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fourinarow-server/internal/contracts"
	"fourinarow-server/internal/ids"
)

// Store is the pgx/v5-backed contracts.UserDirectory + MessageArchive,
// grounded on the teacher's PersistenceManager (internal/server/
// persistence.go): one struct over a pool, one method per operation.
// Unlike the teacher's SQL, which uses `?` placeholders against a pgx
// driver, this uses pgx's native `$N` positional placeholders
// (SPEC_FULL.md §10) since `?` is a sqlite/mysql-ism that pgx does not
// accept. Presence (SetPlaying/ResolveBattleTarget) is necessarily an
// in-process side table, not a database column — a PlayerHandle is a
// live Go value, not something Postgres could round-trip.
type Store struct {
	pool *pgxpool.Pool

	mu       sync.RWMutex
	presence map[ids.UserID]contracts.PlayerHandle
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, presence: make(map[ids.UserID]contracts.PlayerHandle)}
}

func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: connecting to postgres: %w", err)
	}
	return NewStore(pool), nil
}

func (s *Store) Health(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("storage: health check: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) LookupBySessionToken(ctx context.Context, token string) (*UserInfo, error) {
	var info UserInfo
	err := s.pool.QueryRow(ctx, `
		SELECT u.id, u.username
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token = $1
	`, token).Scan(&info.ID, &info.Username)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: looking up session token: %w", err)
	}
	return &info, nil
}

func (s *Store) SetPlaying(ctx context.Context, uid ids.UserID, handle contracts.PlayerHandle) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users SET playing = true WHERE id = $1
	`, uid)
	if err != nil {
		return fmt.Errorf("storage: setting playing for %s: %w", uid, err)
	}
	s.mu.Lock()
	s.presence[uid] = handle
	s.mu.Unlock()
	return nil
}

func (s *Store) ClearPlaying(ctx context.Context, uid ids.UserID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users SET playing = false WHERE id = $1
	`, uid)
	if err != nil {
		return fmt.Errorf("storage: clearing playing for %s: %w", uid, err)
	}
	s.mu.Lock()
	delete(s.presence, uid)
	s.mu.Unlock()
	return nil
}

func (s *Store) RecordPlayedGame(ctx context.Context, info PlayedGameInfo) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO played_games (winner_id, loser_id, played_at)
		VALUES ($1, $2, $3)
	`, info.Winner, info.Loser, time.Now())
	if err != nil {
		return fmt.Errorf("storage: recording played game: %w", err)
	}
	return nil
}

func (s *Store) ResolveBattleTarget(ctx context.Context, uid ids.UserID) (contracts.PlayerHandle, bool, error) {
	s.mu.RLock()
	handle, ok := s.presence[uid]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	return handle, true, nil
}

func (s *Store) Append(ctx context.Context, thread ids.ChatThreadID, fromUID *ids.UserID, text string) (ChatMessage, error) {
	msg := ChatMessage{Thread: thread, FromUID: fromUID, Body: text, CreatedAt: time.Now()}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO chat_messages (thread_id, from_user_id, body, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, thread, fromUID, text, msg.CreatedAt).Scan(&msg.ID)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("storage: appending chat message: %w", err)
	}
	return msg, nil
}

func (s *Store) ReadPage(ctx context.Context, thread ids.ChatThreadID, beforeID int64, limit int) ([]ChatMessage, bool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, thread_id, from_user_id, body, created_at
		FROM chat_messages
		WHERE thread_id = $1 AND ($2 = 0 OR id < $2)
		ORDER BY id DESC
		LIMIT $3
	`, thread, beforeID, limit+1)
	if err != nil {
		return nil, false, fmt.Errorf("storage: reading chat page: %w", err)
	}
	defer rows.Close()

	var messages []ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.Thread, &m.FromUID, &m.Body, &m.CreatedAt); err != nil {
			return nil, false, fmt.Errorf("storage: scanning chat message: %w", err)
		}
		messages = append(messages, m)
	}
	more := len(messages) > limit
	if more {
		messages = messages[:limit]
	}
	return messages, more, rows.Err()
}
