package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fourinarow-server/internal/ids"
	"fourinarow-server/internal/wire"
)

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }

type fakeHandle struct{ uid ids.UserID }

func (f fakeHandle) UserID() *ids.UserID        { return &f.uid }
func (f fakeHandle) Deliver(wire.ServerMessage) {}
func (f fakeHandle) ResetToIdle(context.Context) {}

func TestMemory_LookupBySessionToken(t *testing.T) {
	m := NewMemory(fixedClock{t: time.Unix(0, 0)})
	ctx := context.Background()

	_, err := m.LookupBySessionToken(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	m.PutUser("tok-1", UserInfo{ID: "user-1", Username: "alice"})
	info, err := m.LookupBySessionToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", info.Username)
}

func TestMemory_ChatAppendAndReadPage(t *testing.T) {
	clock := fixedClock{t: time.Unix(1000, 0)}
	m := NewMemory(clock)
	ctx := context.Background()
	thread := ids.ChatThreadID("thread-1")

	for i := 0; i < 5; i++ {
		_, err := m.Append(ctx, thread, nil, "hello")
		require.NoError(t, err)
	}

	page, more, err := m.ReadPage(ctx, thread, 0, 3)
	require.NoError(t, err)
	assert.True(t, more)
	assert.Len(t, page, 3)
	// Most recent first: ids 5, 4, 3.
	assert.Equal(t, int64(5), page[0].ID)
	assert.Equal(t, int64(3), page[2].ID)

	rest, more, err := m.ReadPage(ctx, thread, page[2].ID, 10)
	require.NoError(t, err)
	assert.False(t, more)
	assert.Len(t, rest, 2)
}

func TestMemory_RecordPlayedGameDoesNotError(t *testing.T) {
	m := NewMemory(fixedClock{})
	err := m.RecordPlayedGame(context.Background(), PlayedGameInfo{Winner: "a", Loser: "b"})
	assert.NoError(t, err)
}

func TestMemory_PresenceTracksLiveHandle(t *testing.T) {
	m := NewMemory(fixedClock{})
	ctx := context.Background()
	uid := ids.UserID("user-1")

	_, ok, err := m.ResolveBattleTarget(ctx, uid)
	require.NoError(t, err)
	assert.False(t, ok)

	handle := fakeHandle{uid: uid}
	require.NoError(t, m.SetPlaying(ctx, uid, handle))

	resolved, ok, err := m.ResolveBattleTarget(ctx, uid)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, &uid, resolved.UserID())

	require.NoError(t, m.ClearPlaying(ctx, uid))
	_, ok, err = m.ResolveBattleTarget(ctx, uid)
	require.NoError(t, err)
	assert.False(t, ok)
}
